package scrapy

import (
	"fmt"
	"net/http"
)

// ParseFunc handles a downloaded response. Values a callback needs from the
// page that scheduled it are captured by the closure.
type ParseFunc func(crawl *Engine, resp *Response)

// ErrFunc handles a request whose download failed.
type ErrFunc func(crawl *Engine, req *Request, err error)

type Request struct {
	HttpRequest *http.Request
	Callback    ParseFunc // nil routes to Spider.Parse
	ErrBack     ErrFunc
	DontFilter  bool // skip the duplicate filter
}

func NewRequest(rawURL string, callback ParseFunc) (*Request, error) {
	httpReq, err := http.NewRequest(http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("new request %s: %w", rawURL, err)
	}
	return &Request{
		HttpRequest: httpReq,
		Callback:    callback,
	}, nil
}

func (r *Request) String() string {
	return fmt.Sprintf("%s %s", r.HttpRequest.Method, r.HttpRequest.URL)
}
