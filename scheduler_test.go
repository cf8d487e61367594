package scrapy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustRequest(t *testing.T, rawURL string) *Request {
	t.Helper()
	req, err := NewRequest(rawURL, nil)
	require.NoError(t, err)
	return req
}

func TestDupeFilterScheduler_FIFOAndDupeFilter(t *testing.T) {
	scheduler := NewDupeFilterScheduler(&SchedulerConfig{ReqQueueLen: 1})

	assert.True(t, scheduler.AddRequest(mustRequest(t, "https://archive.org/a")))
	assert.True(t, scheduler.AddRequest(mustRequest(t, "https://archive.org/b")))
	assert.False(t, scheduler.AddRequest(mustRequest(t, "https://archive.org/a")))
	assert.Equal(t, 2, scheduler.Len())

	ctx := context.Background()
	first, ok := scheduler.NextRequest(ctx)
	require.True(t, ok)
	second, ok := scheduler.NextRequest(ctx)
	require.True(t, ok)
	assert.Equal(t, "/a", first.HttpRequest.URL.Path)
	assert.Equal(t, "/b", second.HttpRequest.URL.Path)
	assert.Zero(t, scheduler.Len())
}

func TestDupeFilterScheduler_DontFilter(t *testing.T) {
	scheduler := NewDupeFilterScheduler(nil)
	req := mustRequest(t, "https://archive.org/a")
	again := mustRequest(t, "https://archive.org/a")
	again.DontFilter = true

	assert.True(t, scheduler.AddRequest(req))
	assert.True(t, scheduler.AddRequest(again))
	assert.Equal(t, 2, scheduler.Len())
}

func TestDupeFilterScheduler_NextRequestWaits(t *testing.T) {
	scheduler := NewDupeFilterScheduler(nil)
	got := make(chan *Request)
	go func() {
		req, _ := scheduler.NextRequest(context.Background())
		got <- req
	}()

	time.Sleep(10 * time.Millisecond)
	scheduler.AddRequest(mustRequest(t, "https://archive.org/late"))

	select {
	case req := <-got:
		assert.Equal(t, "/late", req.HttpRequest.URL.Path)
	case <-time.After(time.Second):
		t.Fatal("NextRequest did not return after AddRequest")
	}
}

func TestDupeFilterScheduler_NextRequestCancelled(t *testing.T) {
	scheduler := NewDupeFilterScheduler(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	req, ok := scheduler.NextRequest(ctx)
	assert.False(t, ok)
	assert.Nil(t, req)
}

func TestRequestFingerPrint(t *testing.T) {
	a := mustRequest(t, "https://archive.org/a")
	a.HttpRequest.Header.Set("Accept", "text/html")
	a.HttpRequest.Header.Set("Accept-Language", "en")
	b := mustRequest(t, "https://archive.org/a")
	b.HttpRequest.Header.Set("Accept-Language", "en")
	b.HttpRequest.Header.Set("Accept", "text/html")
	c := mustRequest(t, "https://archive.org/a?page=2")

	assert.Equal(t, RequestFingerPrint(a), RequestFingerPrint(b))
	assert.NotEqual(t, RequestFingerPrint(a), RequestFingerPrint(c))
}
