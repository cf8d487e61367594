package scrapy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type DownloadMiddleWare interface {
	// ProcessRequest may return a replacement request, which is scheduled
	// instead of r, or a response, which skips the download.
	ProcessRequest(r *Request) (*Request, *Response, error)
	// ProcessResponse may return a request to schedule instead of handing
	// resp to its callback, or a replacement response.
	ProcessResponse(resp *Response) (*Request, *Response, error)
}

type DownloaderConfig struct {
	RetryMax      int
	RetrySleep    time.Duration
	WorkerNumber  int
	RequestNumber uint64
	Timeout       time.Duration
	UserAgent     string
	RateLimit     float64 // requests per second per host, 0 disables
	RateBurst     int
}

const DefaultUserAgent = "go-scrapy (+https://github.com/siskinc/scrapy-charlie-chaplin)"

var (
	IgnoreRequest  = errors.New("ignore this request")
	IgnoreResponse = errors.New("ignore this response")
	RetryMaxErr    = errors.New("retry max")
)

type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status code is: %d", e.StatusCode)
}

var retryStatus = map[int]bool{
	http.StatusRequestTimeout:      true,
	http.StatusTooManyRequests:     true,
	http.StatusInternalServerError: true,
	http.StatusBadGateway:          true,
	http.StatusServiceUnavailable:  true,
	http.StatusGatewayTimeout:      true,
	522:                            true,
	524:                            true,
}

type Downloader struct {
	client       *http.Client
	requests     chan *Request
	workerNumber int
	retry        int
	retrySleep   time.Duration
	timeout      time.Duration
	userAgent    string
	middleWares  []DownloadMiddleWare

	rateLimit   rate.Limit
	rateBurst   int
	limitLocker sync.Mutex
	limiters    map[string]*rate.Limiter
}

func NewDownloader(config *DownloaderConfig) *Downloader {
	if config == nil {
		config = &DownloaderConfig{}
	}
	downloader := &Downloader{
		retry:        config.RetryMax,
		retrySleep:   config.RetrySleep,
		timeout:      config.Timeout,
		userAgent:    config.UserAgent,
		workerNumber: config.WorkerNumber,
		limiters:     make(map[string]*rate.Limiter),
	}
	if downloader.workerNumber <= 0 {
		downloader.workerNumber = 1
	}
	requestNumber := config.RequestNumber
	if requestNumber == 0 {
		requestNumber = uint64(downloader.workerNumber)
	}
	if downloader.userAgent == "" {
		downloader.userAgent = DefaultUserAgent
	}
	if config.RateLimit > 0 {
		downloader.rateLimit = rate.Limit(config.RateLimit)
		downloader.rateBurst = max(config.RateBurst, 1)
	} else {
		downloader.rateLimit = rate.Inf
	}
	downloader.requests = make(chan *Request, requestNumber)
	downloader.client = http.DefaultClient
	return downloader
}

func (d *Downloader) RegisterMiddleWare(middleWares ...DownloadMiddleWare) {
	d.middleWares = append(d.middleWares, middleWares...)
}

func (d *Downloader) SetClient(client *http.Client) {
	d.client = client
}

// AddRequest hands r to a worker, blocking while the request buffer is full.
func (d *Downloader) AddRequest(ctx context.Context, r *Request) bool {
	select {
	case d.requests <- r:
		return true
	case <-ctx.Done():
		return false
	}
}

// downloadResult is what a worker reports for one request: a response to
// parse, a request to schedule in its place, an error, or none of them when
// a middleware ignored it.
type downloadResult struct {
	request    *Request
	response   *Response
	reschedule *Request
	err        error
}

func (d *Downloader) run(ctx context.Context, results chan<- *downloadResult) {
	for {
		var req *Request
		select {
		case req = <-d.requests:
		case <-ctx.Done():
			return
		}
		beginTime := time.Now()
		result := d.download(ctx, req)
		logrus.Debugf("Download %s is done, time cost: %v", req, time.Since(beginTime))
		select {
		case results <- result:
		case <-ctx.Done():
			return
		}
	}
}

func (d *Downloader) limiter(host string) *rate.Limiter {
	d.limitLocker.Lock()
	defer d.limitLocker.Unlock()
	limiter, ok := d.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(d.rateLimit, d.rateBurst)
		d.limiters[host] = limiter
	}
	return limiter
}

func (d *Downloader) download(ctx context.Context, req *Request) *downloadResult {
	result := &downloadResult{request: req}
	for _, middleWare := range d.middleWares {
		request, response, err := middleWare.ProcessRequest(req)
		if err != nil {
			if !errors.Is(err, IgnoreRequest) {
				logrus.Errorf("%s in download middleware(%T) is err: %v.", req, middleWare, err)
				result.err = err
			}
			return result
		}
		if request != nil {
			logrus.Debugf("reschedule in middleware: %T.", middleWare)
			result.reschedule = request
			return result
		}
		if response != nil {
			logrus.Debugf("break in middleware: %T.", middleWare)
			result.response = response
			return result
		}
	}

	resp, err := d.fetch(ctx, req)
	if err != nil {
		result.err = err
		return result
	}

	for _, middleWare := range d.middleWares {
		request, response, err := middleWare.ProcessResponse(resp)
		if err != nil {
			if !errors.Is(err, IgnoreResponse) {
				logrus.Errorf("%s in download middleware(%T) is err: %v", req, middleWare, err)
				result.err = err
			}
			return result
		}
		if request != nil {
			result.reschedule = request
			return result
		}
		if response != nil {
			resp = response
		}
	}
	result.response = resp
	return result
}

func (d *Downloader) fetch(ctx context.Context, req *Request) (*Response, error) {
	var lastErr error
	for retry := 0; retry <= d.retry; retry++ {
		if retry > 0 {
			if d.retrySleep > 0 {
				logrus.Infof("%s retry count: %d, sleep: %v.", req, retry, d.retrySleep)
				select {
				case <-time.After(d.retrySleep):
				case <-ctx.Done():
					return nil, ctx.Err()
				}
			} else {
				logrus.Infof("%s retry count: %d, don't sleep.", req, retry)
			}
		}
		if err := d.limiter(req.HttpRequest.URL.Host).Wait(ctx); err != nil {
			return nil, err
		}
		resp, err := d.do(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var statusErr *StatusError
		if errors.As(err, &statusErr) && !retryStatus[statusErr.StatusCode] {
			logrus.Errorf("%s is failed, %v.", req, err)
			return nil, err
		}
		logrus.Errorf("%s is err: %v.", req, err)
		lastErr = err
	}
	logrus.Errorf("%s is retry max", req)
	return nil, fmt.Errorf("%w: %v", RetryMaxErr, lastErr)
}

func (d *Downloader) do(ctx context.Context, req *Request) (*Response, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	httpReq := req.HttpRequest.Clone(ctx)
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", d.userAgent)
	}
	httpResp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		return nil, &StatusError{StatusCode: httpResp.StatusCode}
	}
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return &Response{
		Request:      req,
		HttpResponse: httpResp,
		Body:         body,
	}, nil
}
