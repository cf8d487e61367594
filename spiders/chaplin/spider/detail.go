package spider

import (
	"github.com/antchfx/xpath"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/html"

	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/items"
)

var (
	detailTitle               = xpath.MustCompile(`//div[@class="relative-row row"]/div/h1/text()`)
	detailDescription         = xpath.MustCompile(`//div[@class="relative-row row"]/div/div[@id="descript"]/text()`)
	detailDescriptionFallback = xpath.MustCompile(`//div[@class="relative-row row"]/div/div[@id="descript"]/p/text()`)
	detailDate                = xpath.MustCompile(`//div[@class="relative-row row"]/div/div[@class="boxy"]/div[@class="boxy-ttl"]/text()`)
	detailVideoURL            = xpath.MustCompile(`//div[@class="relative-row row"]/div/div[@class="boxy quick-down"]/div[@class="format-group"]/a[@class="format-summary download-pill"]/@href`)
)

type DetailParser struct {
	Log logrus.FieldLogger
}

// Parse completes partial from a detail page. It returns false when the page
// has no title (not an item page) or no video link.
func (p *DetailParser) Parse(top *html.Node, pageURL string, partial items.Record) (items.Record, bool) {
	record := partial
	record.Title = text(top, detailTitle)
	if record.Title == "" {
		return items.Record{}, false
	}
	p.logger().Infof("now crawling item page: %s", pageURL)

	record.Description = text(top, detailDescription)
	if record.Description == "" {
		record.Description = text(top, detailDescriptionFallback)
	}
	record.Date = text(top, detailDate)
	record.VideoURL = attr(top, detailVideoURL)
	if record.VideoURL == "" {
		return items.Record{}, false
	}
	return record, true
}

func (p *DetailParser) logger() logrus.FieldLogger {
	if p.Log == nil {
		return logrus.StandardLogger()
	}
	return p.Log
}
