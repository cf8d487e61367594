package spider

import (
	"github.com/sirupsen/logrus"

	scrapy "github.com/siskinc/scrapy-charlie-chaplin"
	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/items"
)

const (
	Name       = "spider_with_thumbnail"
	SiteOrigin = "https://archive.org"
	SiteDomain = "archive.org"
)

// StartURLs are pages 1 to 3 of the Charlie Chaplin movies search.
var StartURLs = []string{
	"https://archive.org/search.php?query=subject%3A%22Charlie+Chaplin%22&and%5B%5D=mediatype%3A%22movies%22",
	"https://archive.org/search.php?query=subject%3A%22Charlie+Chaplin%22&and%5B%5D=mediatype%3A%22movies%22&page=2",
	"https://archive.org/search.php?query=subject%3A%22Charlie+Chaplin%22&and%5B%5D=mediatype%3A%22movies%22&page=3",
}

// ChaplinSpider parses the search listing and follows every result to its
// detail page, carrying the listing thumbnail along.
type ChaplinSpider struct {
	Origin    string
	StartURLs []string
	Log       logrus.FieldLogger

	detail DetailParser
}

func NewChaplinSpider(origin string, startURLs []string, log logrus.FieldLogger) *ChaplinSpider {
	if origin == "" {
		origin = SiteOrigin
	}
	if len(startURLs) == 0 {
		startURLs = StartURLs
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ChaplinSpider{
		Origin:    origin,
		StartURLs: startURLs,
		Log:       log,
		detail:    DetailParser{Log: log},
	}
}

func (spider *ChaplinSpider) Name() string {
	return Name
}

func (spider *ChaplinSpider) StartRequests() ([]*scrapy.Request, error) {
	requests := make([]*scrapy.Request, 0, len(spider.StartURLs))
	for _, startURL := range spider.StartURLs {
		req, err := scrapy.NewRequest(startURL, nil)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}

// Parse handles a search listing page.
func (spider *ChaplinSpider) Parse(crawl *scrapy.Engine, resp *scrapy.Response) {
	top, err := resp.Node()
	if err != nil {
		spider.Log.Errorf("new document from %s is err: %v", resp.URL(), err)
		return
	}
	for follow := range ParseListing(top, spider.Origin) {
		partial := follow.Partial
		req, err := scrapy.NewRequest(follow.URL, func(crawl *scrapy.Engine, resp *scrapy.Response) {
			spider.ParseItem(crawl, resp, partial)
		})
		if err != nil {
			spider.Log.Errorf("New request is err: %v", err)
			continue
		}
		crawl.AddRequest(req)
	}
}

// ParseItem handles a detail page reached from a listing entry.
func (spider *ChaplinSpider) ParseItem(crawl *scrapy.Engine, resp *scrapy.Response, partial items.Record) {
	top, err := resp.Node()
	if err != nil {
		spider.Log.Errorf("new document from %s is err: %v", resp.URL(), err)
		return
	}
	record, ok := spider.detail.Parse(top, resp.URL().String(), partial)
	if !ok {
		return
	}
	crawl.AddItem(&record)
}
