package scrapy

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
)

type Scheduler interface {
	// AddRequest queues r and reports whether it was accepted.
	AddRequest(r *Request) bool
	// NextRequest blocks until a request is queued or ctx is done.
	NextRequest(ctx context.Context) (*Request, bool)
	Len() int
}

type SchedulerConfig struct {
	ReqQueueLen int // initial queue capacity, the queue grows past it
}

// DupeFilterScheduler hands out requests in FIFO order and drops requests
// whose fingerprint has already been seen. Its queue is unbounded so that
// callbacks scheduling follow-ups never block on the downloader.
type DupeFilterScheduler struct {
	locker         sync.Mutex
	reqQueue       []*Request
	ready          chan struct{}
	reqFingerPrint mapset.Set[string]
}

func NewDupeFilterScheduler(config *SchedulerConfig) *DupeFilterScheduler {
	reqQueueLen := 0
	if config != nil {
		reqQueueLen = config.ReqQueueLen
	}
	return &DupeFilterScheduler{
		reqQueue:       make([]*Request, 0, reqQueueLen),
		ready:          make(chan struct{}, 1),
		reqFingerPrint: mapset.NewSet[string](),
	}
}

func RequestFingerPrint(r *Request) string {
	httpReq := r.HttpRequest
	sha1obj := sha1.New()
	sha1obj.Write([]byte(httpReq.Method))
	sha1obj.Write([]byte(httpReq.URL.String()))
	keys := make([]string, 0, len(httpReq.Header))
	for key := range httpReq.Header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		sha1obj.Write([]byte(key))
		for _, value := range httpReq.Header[key] {
			sha1obj.Write([]byte(value))
		}
	}
	return hex.EncodeToString(sha1obj.Sum(nil))
}

func (d *DupeFilterScheduler) AddRequest(r *Request) bool {
	if !r.DontFilter && !d.reqFingerPrint.Add(RequestFingerPrint(r)) {
		return false
	}
	d.locker.Lock()
	d.reqQueue = append(d.reqQueue, r)
	d.locker.Unlock()
	select {
	case d.ready <- struct{}{}:
	default:
	}
	return true
}

func (d *DupeFilterScheduler) NextRequest(ctx context.Context) (*Request, bool) {
	for {
		d.locker.Lock()
		if len(d.reqQueue) > 0 {
			r := d.reqQueue[0]
			d.reqQueue[0] = nil
			d.reqQueue = d.reqQueue[1:]
			d.locker.Unlock()
			return r, true
		}
		d.locker.Unlock()
		select {
		case <-d.ready:
		case <-ctx.Done():
			return nil, false
		}
	}
}

func (d *DupeFilterScheduler) Len() int {
	d.locker.Lock()
	defer d.locker.Unlock()
	return len(d.reqQueue)
}
