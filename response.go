package scrapy

import (
	"bytes"
	"fmt"
	"net/http"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

type Response struct {
	Request      *Request
	HttpResponse *http.Response
	Body         []byte // fully read, HttpResponse.Body is already closed
}

// URL returns the final URL of the response, after redirects.
func (r *Response) URL() *url.URL {
	if r.HttpResponse != nil && r.HttpResponse.Request != nil {
		return r.HttpResponse.Request.URL
	}
	return r.Request.HttpRequest.URL
}

// Document decodes the body to UTF-8 using the Content-Type header and
// meta tags, then parses it.
func (r *Response) Document() (*goquery.Document, error) {
	contentType := ""
	if r.HttpResponse != nil {
		contentType = r.HttpResponse.Header.Get("Content-Type")
	}
	reader, err := charset.NewReader(bytes.NewReader(r.Body), contentType)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", r.URL(), err)
	}
	document, err := goquery.NewDocumentFromReader(reader)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.URL(), err)
	}
	return document, nil
}

// Node returns the root of the parsed document, for XPath queries.
func (r *Response) Node() (*html.Node, error) {
	document, err := r.Document()
	if err != nil {
		return nil, err
	}
	return document.Get(0), nil
}
