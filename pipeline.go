package scrapy

import "errors"

var (
	DropItemErr = errors.New("drop item")
)

// ItemPipeline receives every scraped item in registration order. Returning
// DropItemErr stops the item from reaching later pipelines. ProcessItem may
// be called from several goroutines at once.
type ItemPipeline interface {
	OpenSpider(spider Spider) error
	CloseSpider(spider Spider) error
	ProcessItem(item any, spider Spider) error
}
