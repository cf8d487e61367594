package pipelines

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	scrapy "github.com/siskinc/scrapy-charlie-chaplin"
	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/items"
)

// JsonLinesPipeline writes one JSON object per record.
type JsonLinesPipeline struct {
	Path string

	locker  sync.Mutex
	file    *os.File
	encoder *json.Encoder
}

func NewJsonLinesPipeline(path string) *JsonLinesPipeline {
	return &JsonLinesPipeline{Path: path}
}

func (p *JsonLinesPipeline) OpenSpider(spider scrapy.Spider) error {
	file, err := createFeed(p.Path)
	if err != nil {
		return err
	}
	p.file = file
	p.encoder = json.NewEncoder(file)
	p.encoder.SetEscapeHTML(false)
	return nil
}

func (p *JsonLinesPipeline) CloseSpider(spider scrapy.Spider) error {
	if p.file == nil {
		return nil
	}
	err := p.file.Close()
	p.file = nil
	return err
}

func (p *JsonLinesPipeline) ProcessItem(item any, spider scrapy.Spider) error {
	record, ok := item.(*items.Record)
	if !ok {
		return nil
	}
	p.locker.Lock()
	defer p.locker.Unlock()
	if err := p.encoder.Encode(record); err != nil {
		return fmt.Errorf("write %s: %w", p.Path, err)
	}
	return nil
}

func createFeed(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("create feed directory: %w", err)
	}
	file, err := os.Create(path) //nolint:gosec // feed path comes from the user
	if err != nil {
		return nil, fmt.Errorf("create feed: %w", err)
	}
	return file, nil
}
