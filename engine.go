package scrapy

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var NoSpiderErr = errors.New("no spider registered")

type EngineConfig struct {
	DownloaderConfig *DownloaderConfig
	SchedulerConfig  *SchedulerConfig
	ParserNumber     int // goroutines running callbacks, default 1
}

type Engine struct {
	downloader   *Downloader
	scheduler    Scheduler
	spider       Spider
	pipelines    []ItemPipeline
	parserNumber int
	stats        Stats

	// inflight counts requests accepted by the scheduler whose callback or
	// errback has not returned yet. The crawl is over when it drops to zero.
	inflight atomic.Int64
	idle     chan struct{}
	idleOnce sync.Once
}

func NewEngine(config *EngineConfig) *Engine {
	if config == nil {
		config = &EngineConfig{}
	}
	engine := &Engine{
		downloader:   NewDownloader(config.DownloaderConfig),
		scheduler:    NewDupeFilterScheduler(config.SchedulerConfig),
		parserNumber: max(config.ParserNumber, 1),
		idle:         make(chan struct{}),
	}
	return engine
}

// AddRequest schedules r and reports whether the scheduler accepted it.
func (e *Engine) AddRequest(r *Request) bool {
	if !e.scheduler.AddRequest(r) {
		e.stats.RequestsFiltered.Add(1)
		logrus.Debugf("Filtered duplicate request: %s", r)
		return false
	}
	e.inflight.Add(1)
	e.stats.RequestsScheduled.Add(1)
	return true
}

func (e *Engine) release() {
	if e.inflight.Add(-1) <= 0 {
		e.idleOnce.Do(func() { close(e.idle) })
	}
}

func (e *Engine) AddItem(item any) {
	e.stats.ItemsScraped.Add(1)
	for _, pipeline := range e.pipelines {
		err := pipeline.ProcessItem(item, e.spider)
		if errors.Is(err, DropItemErr) {
			e.stats.ItemsDropped.Add(1)
			logrus.Debugf("Dropped item in pipeline(%T): %v", pipeline, err)
			return
		}
		if err != nil {
			logrus.Errorf("pipeline(%T) process item is err: %v", pipeline, err)
		}
	}
}

func (e *Engine) RegisterSpider(spider Spider) {
	e.spider = spider
}

func (e *Engine) RegisterPipeline(pipelines ...ItemPipeline) {
	e.pipelines = append(e.pipelines, pipelines...)
}

func (e *Engine) RegisterMiddleWare(middleWares ...DownloadMiddleWare) {
	e.downloader.RegisterMiddleWare(middleWares...)
}

func (e *Engine) SetClient(client *http.Client) {
	e.downloader.SetClient(client)
}

func (e *Engine) SetScheduler(scheduler Scheduler) {
	e.scheduler = scheduler
}

func (e *Engine) Stats() *Stats {
	return &e.stats
}

// Run crawls until every scheduled request has been handled or ctx is done.
// An Engine runs once.
func (e *Engine) Run(ctx context.Context) (err error) {
	if e.spider == nil {
		return NoSpiderErr
	}
	if err := e.openPipelines(); err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, e.closePipelines())
	}()

	startRequests, err := e.spider.StartRequests()
	if err != nil {
		return fmt.Errorf("start requests of %s: %w", e.spider.Name(), err)
	}
	for _, r := range startRequests {
		e.AddRequest(r)
	}
	if e.inflight.Load() == 0 {
		e.idleOnce.Do(func() { close(e.idle) })
	}
	logrus.Infof("Spider %s opened, %d start requests", e.spider.Name(), len(startRequests))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	results := make(chan *downloadResult, e.downloader.workerNumber)
	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		for {
			req, ok := e.scheduler.NextRequest(groupCtx)
			if !ok {
				return nil
			}
			if !e.downloader.AddRequest(groupCtx, req) {
				return nil
			}
		}
	})
	for i := 0; i < e.downloader.workerNumber; i++ {
		group.Go(func() error {
			e.downloader.run(groupCtx, results)
			return nil
		})
	}
	for i := 0; i < e.parserNumber; i++ {
		group.Go(func() error {
			for {
				select {
				case result := <-results:
					e.handle(result)
				case <-groupCtx.Done():
					return nil
				}
			}
		})
	}
	group.Go(func() error {
		select {
		case <-e.idle:
			cancel()
		case <-groupCtx.Done():
		}
		return nil
	})
	_ = group.Wait()

	logrus.Infof("Spider %s closed, requests: %d, filtered: %d, responses: %d, download errors: %d, items: %d, dropped: %d",
		e.spider.Name(),
		e.stats.RequestsScheduled.Load(), e.stats.RequestsFiltered.Load(),
		e.stats.Responses.Load(), e.stats.DownloadErrors.Load(),
		e.stats.ItemsScraped.Load(), e.stats.ItemsDropped.Load())
	return ctx.Err()
}

func (e *Engine) handle(result *downloadResult) {
	req := result.request
	defer e.release()
	defer func() {
		if r := recover(); r != nil {
			logrus.Errorf("callback for %s panicked: %v", req, r)
		}
	}()
	switch {
	case result.reschedule != nil:
		e.AddRequest(result.reschedule)
	case result.err != nil:
		e.stats.DownloadErrors.Add(1)
		if req.ErrBack != nil {
			req.ErrBack(e, req, result.err)
		}
	case result.response != nil:
		e.stats.Responses.Add(1)
		resp := result.response
		if resp.Request == nil {
			resp.Request = req
		}
		callback := req.Callback
		if callback == nil {
			callback = e.spider.Parse
		}
		callback(e, resp)
	}
}

func (e *Engine) openPipelines() error {
	for i, pipeline := range e.pipelines {
		if err := pipeline.OpenSpider(e.spider); err != nil {
			for _, opened := range e.pipelines[:i] {
				_ = opened.CloseSpider(e.spider)
			}
			return fmt.Errorf("open pipeline(%T): %w", pipeline, err)
		}
	}
	return nil
}

func (e *Engine) closePipelines() error {
	var errs []error
	for _, pipeline := range e.pipelines {
		if err := pipeline.CloseSpider(e.spider); err != nil {
			errs = append(errs, fmt.Errorf("close pipeline(%T): %w", pipeline, err))
		}
	}
	return errors.Join(errs...)
}
