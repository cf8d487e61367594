package spider

import (
	"iter"

	"github.com/antchfx/htmlquery"
	"github.com/antchfx/xpath"
	"golang.org/x/net/html"

	"github.com/siskinc/scrapy-charlie-chaplin/spiders/chaplin/items"
)

var (
	listingResults   = xpath.MustCompile(`//div[@class="results"]/div/div[@class="C234"]/div[@class="item-ttl C C2"]/a`)
	listingThumbnail = xpath.MustCompile(`div[@class="tile-img"]/img/@source`)
	listingLink      = xpath.MustCompile(`@href`)
)

// Follow is a detail page to fetch, with the partial record built from its
// listing entry.
type Follow struct {
	URL     string
	Partial items.Record
}

// ParseListing yields one Follow per search result that has both a
// thumbnail and a link. Entries missing either are skipped.
func ParseListing(top *html.Node, origin string) iter.Seq[Follow] {
	return func(yield func(Follow) bool) {
		for _, result := range htmlquery.QuerySelectorAll(top, listingResults) {
			thumbnail := attr(result, listingThumbnail)
			link := attr(result, listingLink)
			if thumbnail == "" || link == "" {
				continue
			}
			follow := Follow{
				URL:     origin + link,
				Partial: items.Record{Thumbnail: thumbnail},
			}
			if !yield(follow) {
				return
			}
		}
	}
}
