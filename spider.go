package scrapy

type Spider interface {
	Name() string
	StartRequests() ([]*Request, error)
	// Parse is the callback for requests that do not set one.
	Parse(crawl *Engine, resp *Response)
}
