package scrapy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// linkSpider follows every <a href> on its pages and emits each page's
// path as an item.
type linkSpider struct {
	startURLs []string
	locker    sync.Mutex
	failed    []string
}

func (s *linkSpider) Name() string { return "links" }

func (s *linkSpider) StartRequests() ([]*Request, error) {
	var requests []*Request
	for _, startURL := range s.startURLs {
		req, err := NewRequest(startURL, nil)
		if err != nil {
			return nil, err
		}
		req.ErrBack = s.errBack
		requests = append(requests, req)
	}
	return requests, nil
}

func (s *linkSpider) Parse(crawl *Engine, resp *Response) {
	document, err := resp.Document()
	if err != nil {
		return
	}
	crawl.AddItem(resp.URL().Path)
	for _, href := range document.Find("a").Map(func(i int, sel *goquery.Selection) string {
		return sel.AttrOr("href", "")
	}) {
		next, err := resp.URL().Parse(href)
		if err != nil {
			continue
		}
		req, err := NewRequest(next.String(), nil)
		if err != nil {
			continue
		}
		req.ErrBack = s.errBack
		crawl.AddRequest(req)
	}
}

func (s *linkSpider) errBack(crawl *Engine, req *Request, err error) {
	s.locker.Lock()
	defer s.locker.Unlock()
	s.failed = append(s.failed, req.HttpRequest.URL.Path)
}

type recordPipeline struct {
	locker sync.Mutex
	opened bool
	closed bool
	items  []any
	drop   func(item any) bool
}

func (p *recordPipeline) OpenSpider(spider Spider) error {
	p.opened = true
	return nil
}

func (p *recordPipeline) CloseSpider(spider Spider) error {
	p.closed = true
	return nil
}

func (p *recordPipeline) ProcessItem(item any, spider Spider) error {
	if p.drop != nil && p.drop(item) {
		return DropItemErr
	}
	p.locker.Lock()
	defer p.locker.Unlock()
	p.items = append(p.items, item)
	return nil
}

type failingPipeline struct{ recordPipeline }

func (p *failingPipeline) OpenSpider(spider Spider) error {
	return errors.New("disk full")
}

func newSiteServer(t *testing.T, pages map[string]string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page, ok := pages[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, page)
	}))
	return server
}

func links(hrefs ...string) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	for _, href := range hrefs {
		fmt.Fprintf(&b, `<a href="%s">%s</a>`, href, href)
	}
	b.WriteString("</body></html>")
	return b.String()
}

// newTestEngine returns an engine with its own transport and a func that
// closes the transport's idle connections.
func newTestEngine() (*Engine, func()) {
	transport := &http.Transport{}
	engine := NewEngine(&EngineConfig{
		DownloaderConfig: &DownloaderConfig{WorkerNumber: 3},
		ParserNumber:     2,
	})
	engine.SetClient(&http.Client{Transport: transport})
	return engine, transport.CloseIdleConnections
}

func TestEngine_RunUntilIdle(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	server := newSiteServer(t, map[string]string{
		"/":  links("/a", "/b", "/missing"),
		"/a": links("/", "/b", "/c"),
		"/b": links("/a"),
		"/c": links(),
	})
	defer server.Close()
	spider := &linkSpider{startURLs: []string{server.URL + "/"}}
	pipeline := &recordPipeline{}
	engine, closeIdle := newTestEngine()
	defer closeIdle()
	engine.RegisterSpider(spider)
	engine.RegisterPipeline(pipeline)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, engine.Run(ctx))

	assert.True(t, pipeline.opened)
	assert.True(t, pipeline.closed)
	assert.ElementsMatch(t, []any{"/", "/a", "/b", "/c"}, pipeline.items)
	assert.Equal(t, []string{"/missing"}, spider.failed)

	stats := engine.Stats()
	assert.Equal(t, int64(5), stats.RequestsScheduled.Load())
	assert.Equal(t, int64(3), stats.RequestsFiltered.Load())
	assert.Equal(t, int64(4), stats.Responses.Load())
	assert.Equal(t, int64(1), stats.DownloadErrors.Load())
	assert.Equal(t, int64(4), stats.ItemsScraped.Load())
}

func TestEngine_DropItem(t *testing.T) {
	server := newSiteServer(t, map[string]string{
		"/":  links("/a"),
		"/a": links(),
	})
	defer server.Close()
	first := &recordPipeline{drop: func(item any) bool { return item == "/a" }}
	second := &recordPipeline{}
	engine, closeIdle := newTestEngine()
	defer closeIdle()
	engine.RegisterSpider(&linkSpider{startURLs: []string{server.URL + "/"}})
	engine.RegisterPipeline(first, second)

	require.NoError(t, engine.Run(context.Background()))

	assert.Equal(t, []any{"/"}, second.items)
	assert.Equal(t, int64(1), engine.Stats().ItemsDropped.Load())
}

func TestEngine_Offsite(t *testing.T) {
	server := newSiteServer(t, map[string]string{
		"/":  links("http://elsewhere.invalid/x", "/a"),
		"/a": links(),
	})
	defer server.Close()
	pipeline := &recordPipeline{}
	engine, closeIdle := newTestEngine()
	defer closeIdle()
	engine.RegisterSpider(&linkSpider{startURLs: []string{server.URL + "/"}})
	engine.RegisterMiddleWare(NewOffsiteMiddleWare("127.0.0.1"))
	engine.RegisterPipeline(pipeline)

	require.NoError(t, engine.Run(context.Background()))

	assert.ElementsMatch(t, []any{"/", "/a"}, pipeline.items)
	assert.Zero(t, engine.Stats().DownloadErrors.Load())
}

func TestEngine_NoStartRequests(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	engine := NewEngine(nil)
	engine.RegisterSpider(&linkSpider{})

	assert.NoError(t, engine.Run(context.Background()))
}

func TestEngine_NoSpider(t *testing.T) {
	assert.ErrorIs(t, NewEngine(nil).Run(context.Background()), NoSpiderErr)
}

func TestEngine_OpenPipelineFails(t *testing.T) {
	opened := &recordPipeline{}
	engine := NewEngine(nil)
	engine.RegisterSpider(&linkSpider{})
	engine.RegisterPipeline(opened, &failingPipeline{})

	err := engine.Run(context.Background())

	assert.ErrorContains(t, err, "disk full")
	assert.True(t, opened.closed)
}

func TestEngine_Cancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	block := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(block)

	engine, closeIdle := newTestEngine()
	defer closeIdle()
	engine.RegisterSpider(&linkSpider{startURLs: []string{server.URL + "/"}})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, engine.Run(ctx), context.DeadlineExceeded)
}
