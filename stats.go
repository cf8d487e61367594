package scrapy

import "sync/atomic"

type Stats struct {
	RequestsScheduled atomic.Int64
	RequestsFiltered  atomic.Int64
	Responses         atomic.Int64
	DownloadErrors    atomic.Int64
	ItemsScraped      atomic.Int64
	ItemsDropped      atomic.Int64
}
