package pipelines

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	scrapy "github.com/siskinc/scrapy-charlie-chaplin"
	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/items"
)

type CsvPipeline struct {
	Path string

	locker sync.Mutex
	file   *os.File
	writer *csv.Writer
}

func NewCsvPipeline(path string) *CsvPipeline {
	return &CsvPipeline{Path: path}
}

func (p *CsvPipeline) OpenSpider(spider scrapy.Spider) error {
	file, err := createFeed(p.Path)
	if err != nil {
		return err
	}
	p.file = file
	p.writer = csv.NewWriter(file)
	if err := p.writer.Write(items.Fields); err != nil {
		_ = file.Close()
		return fmt.Errorf("write csv header: %w", err)
	}
	return nil
}

func (p *CsvPipeline) CloseSpider(spider scrapy.Spider) error {
	if p.file == nil {
		return nil
	}
	p.writer.Flush()
	err := p.writer.Error()
	if closeErr := p.file.Close(); err == nil {
		err = closeErr
	}
	p.file = nil
	return err
}

func (p *CsvPipeline) ProcessItem(item any, spider scrapy.Spider) error {
	record, ok := item.(*items.Record)
	if !ok {
		return nil
	}
	p.locker.Lock()
	defer p.locker.Unlock()
	if err := p.writer.Write(record.Values()); err != nil {
		return fmt.Errorf("write %s: %w", p.Path, err)
	}
	return nil
}
