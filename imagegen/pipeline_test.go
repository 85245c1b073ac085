package imagegen

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/korylprince/chat-image-relay/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// fakeFetcher answers by variant name and records every request
type fakeFetcher struct {
	mu       sync.Mutex
	requests []Request
	fail     map[string]error
	started  *sync.WaitGroup
}

func (f *fakeFetcher) Fetch(ctx context.Context, req Request) (*Image, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if f.started != nil {
		f.started.Done()
		f.started.Wait()
	}

	if err := f.fail[req.Variant]; err != nil {
		return nil, err
	}
	return &Image{ContentType: "image/jpeg", Data: []byte(req.Variant)}, nil
}

func counterSeed() func() int64 {
	var n int64
	return func() int64 {
		n++
		return n
	}
}

func newTestPipeline(t *testing.T, f Fetcher, cfg Config) (*Pipeline, *metrics.Metrics) {
	t.Helper()
	m := metrics.NewNop()
	p, err := NewPipeline(zaptest.NewLogger(t), m, f, cfg)
	require.NoError(t, err)
	p.Seed = counterSeed()
	return p, m
}

func TestPipelineRequests(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeFetcher{}, Config{
		Endpoint: "https://img.example/prompt/",
		Variants: MultiVariants(),
	})

	reqs := p.Requests("a red fox")
	require.Len(t, reqs, 2)

	assert.Equal(t, "https://img.example/prompt/a%20red%20fox?height=1024&nologo=true&seed=1&steps=4&width=1024", reqs[0].URL)
	assert.Equal(t, "https://img.example/prompt/a%20red%20fox?height=720&nologo=true&safe=true&seed=2&steps=8&width=1280", reqs[1].URL)
	assert.Equal(t, int64(1), reqs[0].Seed)
	assert.Equal(t, int64(2), reqs[1].Seed)
	assert.Equal(t, "no-cache", reqs[0].Headers.Get("Cache-Control"))
	assert.Equal(t, "max-age=0", reqs[1].Headers.Get("Cache-Control"))
}

func TestPipelineRequestsEscapePayload(t *testing.T) {
	p, _ := newTestPipeline(t, &fakeFetcher{}, Config{Variants: SingleVariants()})

	reqs := p.Requests("cats/dogs? 100%")
	require.Len(t, reqs, 1)
	assert.Equal(t, DefaultEndpoint+"/cats%2Fdogs%3F%20100%25?nologo=true&seed=1", reqs[0].URL)
}

func TestPipelineRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := &fakeFetcher{}
	p, m := newTestPipeline(t, f, Config{Variants: MultiVariants()})

	results := p.Run(context.Background(), "a red fox")

	require.Len(t, results, 2)
	assert.Equal(t, Result{Index: 0, Variant: "square", Content: "data:image/jpeg;base64,c3F1YXJl"}, results[0])
	assert.Equal(t, Result{Index: 1, Variant: "wide", Content: "data:image/jpeg;base64,d2lkZQ=="}, results[1])
	assert.Len(t, f.requests, 2)
	assert.Equal(t, float64(2), testutil.ToFloat64(m.ImageFetches.WithLabelValues(metrics.ImageOK)))
}

func TestPipelineRunIsolatesFailures(t *testing.T) {
	defer goleak.VerifyNone(t)

	boom := errors.New("boom")
	f := &fakeFetcher{fail: map[string]error{"square": boom}}
	p, m := newTestPipeline(t, f, Config{Variants: MultiVariants()})

	results := p.Run(context.Background(), "a red fox")

	require.Len(t, results, 2)
	assert.ErrorIs(t, results[0].Err, boom)
	assert.Empty(t, results[0].Content)
	assert.NoError(t, results[1].Err)
	assert.Equal(t, "data:image/jpeg;base64,d2lkZQ==", results[1].Content)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ImageFetches.WithLabelValues(metrics.ImageError)))
}

func TestPipelineRunConcurrent(t *testing.T) {
	defer goleak.VerifyNone(t)

	// each fetch waits until every variant has started
	var started sync.WaitGroup
	started.Add(2)
	f := &fakeFetcher{started: &started}
	p, _ := newTestPipeline(t, f, Config{Variants: MultiVariants()})

	done := make(chan []Result)
	go func() { done <- p.Run(context.Background(), "a red fox") }()

	select {
	case results := <-done:
		assert.Len(t, results, 2)
	case <-time.After(5 * time.Second):
		t.Fatal("variants were not fetched concurrently")
	}
}

func TestPipelineURLDelivery(t *testing.T) {
	f := &fakeFetcher{}
	p, _ := newTestPipeline(t, f, Config{Variants: SingleVariants(), Delivery: DeliveryURL})

	results := p.Run(context.Background(), "a boat")

	require.Len(t, results, 1)
	assert.Equal(t, DefaultEndpoint+"/a%20boat?nologo=true&seed=1", results[0].Content)
	assert.Empty(t, f.requests)
}

func TestPipelineTimeout(t *testing.T) {
	f := FetcherFunc(func(ctx context.Context, req Request) (*Image, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p, _ := newTestPipeline(t, f, Config{Variants: SingleVariants(), Timeout: 10 * time.Millisecond})

	results := p.Run(context.Background(), "a boat")

	require.Len(t, results, 1)
	assert.ErrorIs(t, results[0].Err, context.DeadlineExceeded)
}

func TestNewPipelineValidation(t *testing.T) {
	f := &fakeFetcher{}

	_, err := NewPipeline(nil, nil, f, Config{})
	assert.Error(t, err, "no variants")

	_, err = NewPipeline(nil, nil, f, Config{Variants: SingleVariants(), Delivery: "carrier-pigeon"})
	assert.Error(t, err, "bad delivery")

	_, err = NewPipeline(nil, nil, nil, Config{Variants: SingleVariants()})
	assert.Error(t, err, "inline without fetcher")

	_, err = NewPipeline(nil, nil, nil, Config{Variants: SingleVariants(), Delivery: DeliveryURL})
	assert.NoError(t, err)
}

func TestRandomSeed(t *testing.T) {
	for i := 0; i < 1000; i++ {
		s := RandomSeed()
		require.GreaterOrEqual(t, s, int64(1))
		require.LessOrEqual(t, s, int64(MaxSeed))
	}
}

func TestFallbackSeed(t *testing.T) {
	for i := 0; i < 1000; i++ {
		s := fallbackSeed(errors.New("no entropy"))
		require.GreaterOrEqual(t, s, int64(1))
		require.LessOrEqual(t, s, int64(MaxSeed))
	}
}
