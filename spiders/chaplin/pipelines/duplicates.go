package pipelines

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"

	scrapy "github.com/siskinc/scrapy-charlie-chaplin"
	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/items"
)

// DuplicatesPipeline drops records whose video URL was already seen during
// this crawl. Detail pages reached through different listing URLs resolve to
// the same download link.
type DuplicatesPipeline struct {
	seen mapset.Set[string]
}

func NewDuplicatesPipeline() *DuplicatesPipeline {
	return &DuplicatesPipeline{seen: mapset.NewSet[string]()}
}

func (p *DuplicatesPipeline) OpenSpider(spider scrapy.Spider) error {
	p.seen.Clear()
	return nil
}

func (p *DuplicatesPipeline) CloseSpider(spider scrapy.Spider) error {
	return nil
}

func (p *DuplicatesPipeline) ProcessItem(item any, spider scrapy.Spider) error {
	record, ok := item.(*items.Record)
	if !ok {
		return nil
	}
	if !record.Valid() {
		return fmt.Errorf("%w: missing title or video url", scrapy.DropItemErr)
	}
	if !p.seen.Add(record.VideoURL) {
		return fmt.Errorf("%w: duplicate video url %s", scrapy.DropItemErr, record.VideoURL)
	}
	return nil
}
