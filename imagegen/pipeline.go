// Package imagegen turns image directives into upstream image requests and inline images.
package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/korylprince/chat-image-relay/metrics"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultEndpoint is the image generation service
const DefaultEndpoint = "https://image.pollinations.ai/prompt"

// Delivery modes
const (
	DeliveryInline = "inline" // fetch and send a data URI
	DeliveryURL    = "url"    // send the request URL without fetching
)

// Config configures a Pipeline
type Config struct {
	Endpoint string
	Variants []Variant
	Delivery string
	Timeout  time.Duration // per variant; zero means no timeout
}

// Result is the outcome of one variant. Exactly one of Content and Err is set.
type Result struct {
	Index   int
	Variant string
	Content string
	Err     error
}

// Pipeline requests every configured variant for a directive payload
type Pipeline struct {
	log      *zap.Logger
	metrics  *metrics.Metrics
	fetcher  Fetcher
	endpoint string
	variants []Variant
	delivery string
	timeout  time.Duration

	// Seed returns the seed for each request
	Seed func() int64
}

// NewPipeline validates cfg and returns a Pipeline
func NewPipeline(log *zap.Logger, m *metrics.Metrics, fetcher Fetcher, cfg Config) (*Pipeline, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, fmt.Errorf("invalid image endpoint: %w", err)
	}
	if cfg.Delivery == "" {
		cfg.Delivery = DeliveryInline
	}
	if cfg.Delivery != DeliveryInline && cfg.Delivery != DeliveryURL {
		return nil, fmt.Errorf("unknown image delivery %q", cfg.Delivery)
	}
	if len(cfg.Variants) == 0 {
		return nil, errors.New("at least one image variant is required")
	}
	if fetcher == nil && cfg.Delivery == DeliveryInline {
		return nil, errors.New("inline delivery requires a fetcher")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if m == nil {
		m = metrics.NewNop()
	}

	return &Pipeline{
		log:      log,
		metrics:  m,
		fetcher:  fetcher,
		endpoint: strings.TrimSuffix(cfg.Endpoint, "/"),
		variants: cfg.Variants,
		delivery: cfg.Delivery,
		timeout:  cfg.Timeout,
		Seed:     RandomSeed,
	}, nil
}

// Requests builds one request per variant for payload, each with its own seed
func (p *Pipeline) Requests(payload string) []Request {
	reqs := make([]Request, len(p.variants))
	for i, v := range p.variants {
		seed := p.Seed()
		header := make(http.Header, len(v.Headers))
		for k, val := range v.Headers {
			header.Set(k, val)
		}
		reqs[i] = Request{
			Index:   i,
			Variant: v.Name,
			Seed:    seed,
			URL:     p.endpoint + "/" + url.PathEscape(payload) + "?" + v.query(seed).Encode(),
			Headers: header,
		}
	}
	return reqs
}

// Run requests every variant for payload and returns the results in variant order.
// Variants are fetched concurrently; a failed variant never affects the others.
func (p *Pipeline) Run(ctx context.Context, payload string) []Result {
	reqs := p.Requests(payload)
	results := make([]Result, len(reqs))

	if p.delivery == DeliveryURL {
		for i, req := range reqs {
			results[i] = Result{Index: i, Variant: req.Variant, Content: req.URL}
		}
		return results
	}

	var g errgroup.Group
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			results[i] = p.fetch(ctx, req)
			return nil
		})
	}
	g.Wait()

	return results
}

func (p *Pipeline) fetch(ctx context.Context, req Request) Result {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	log := p.log.With(zap.Int("variant", req.Index), zap.String("name", req.Variant), zap.Int64("seed", req.Seed))
	log.Debug("Fetching image", zap.String("url", req.URL))

	start := time.Now()
	img, err := p.fetcher.Fetch(ctx, req)
	p.metrics.ImageFetchSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		p.metrics.ImageFetches.WithLabelValues(metrics.ImageError).Inc()
		log.Warn("Image fetch failed", zap.Error(err))
		return Result{Index: req.Index, Variant: req.Variant, Err: err}
	}

	p.metrics.ImageFetches.WithLabelValues(metrics.ImageOK).Inc()
	log.Debug("Image fetched", zap.String("content_type", img.ContentType), zap.Int("bytes", len(img.Data)))
	return Result{Index: req.Index, Variant: req.Variant, Content: img.DataURI()}
}
