package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
)

// Request is a single upstream image request
type Request struct {
	Index   int
	Variant string
	Seed    int64
	URL     string
	Headers http.Header
}

// Image is a fetched image body
type Image struct {
	ContentType string
	Data        []byte
}

// DataURI encodes the image for inline embedding
func (i *Image) DataURI() string {
	return "data:" + i.ContentType + ";base64," + base64.StdEncoding.EncodeToString(i.Data)
}

// Fetcher retrieves images
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Image, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, req Request) (*Image, error)

// Fetch calls f(ctx, req)
func (f FetcherFunc) Fetch(ctx context.Context, req Request) (*Image, error) {
	return f(ctx, req)
}

var (
	errTooLarge  = errors.New("image body exceeds size limit")
	errEmptyBody = errors.New("image body is empty")
)

// FetchError is returned when an image cannot be retrieved
type FetchError struct {
	URL        string
	StatusCode int // zero when no response was received
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("image service returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return "image request failed: " + e.Err.Error()
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// HTTPFetcher fetches images over HTTP
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

// NewHTTPFetcher returns an HTTPFetcher. maxBytes <= 0 means no size limit.
func NewHTTPFetcher(client *http.Client, maxBytes int64) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPFetcher{client: client, maxBytes: maxBytes}
}

// Fetch GETs req.URL and buffers the body. Non-2xx responses and non-image bodies are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Image, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	for k, vals := range req.Headers {
		for _, v := range vals {
			httpReq.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &FetchError{URL: req.URL, StatusCode: resp.StatusCode}
	}

	var body io.Reader = resp.Body
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("could not read body: %w", err)}
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, &FetchError{URL: req.URL, Err: errTooLarge}
	}
	if len(data) == 0 {
		return nil, &FetchError{URL: req.URL, Err: errEmptyBody}
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("could not parse content type %q: %w", contentType, err)}
	}
	if !strings.HasPrefix(mediaType, "image/") {
		return nil, &FetchError{URL: req.URL, Err: fmt.Errorf("unexpected content type %q", mediaType)}
	}

	return &Image{ContentType: mediaType, Data: data}, nil
}
