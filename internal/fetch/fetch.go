// Package fetch implements HTTP retrieval with retry/backoff-with-jitter
// and transparent gzip decompression, streamed to the caller without
// buffering the whole file in memory.
package fetch

import (
	"context"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"compress/gzip"

	"github.com/klauspost/pgzip"

	"github.com/healthrates/mrf-engine/internal/pipeline"
)

const (
	maxRetries         = 3
	defaultRequestTimeout = 120 * time.Second
)

// Fetcher retrieves MRF TOC and in-network files over HTTP, retrying
// transient failures with exponential backoff and jitter, and transparently
// decompressing gzip-encoded responses.
type Fetcher struct {
	Client        *http.Client
	UseStdGzip    bool // disables the parallel pgzip decompressor
	RequestTimeout time.Duration
}

// New returns a Fetcher configured with long idle timeouts appropriate for
// multi-GB downloads over a kept-alive connection.
func New() *Fetcher {
	return &Fetcher{
		Client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		RequestTimeout: defaultRequestTimeout,
	}
}

// Open retrieves url and returns a ReadCloser yielding decompressed bytes.
// The caller is responsible for closing the returned stream. Retries
// transient failures (network errors, 5xx, 429) up to maxRetries times with
// exponential backoff and jitter; 4xx responses other than 429 are treated
// as permanent and not retried.
func (f *Fetcher) Open(ctx context.Context, url string) (io.ReadCloser, error) {
	resp, err := f.getWithRetry(ctx, url)
	if err != nil {
		return nil, err
	}

	gz := strings.HasSuffix(strings.ToLower(url), ".gz") ||
		strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") ||
		strings.Contains(resp.Header.Get("Content-Type"), "gzip")

	if !gz {
		return resp.Body, nil
	}

	r, err := f.gzipReader(resp.Body)
	if err != nil {
		resp.Body.Close()
		return nil, &pipeline.FetchError{URL: url, Transient: false, Err: fmt.Errorf("opening gzip stream: %w", err)}
	}
	return &closeBoth{Reader: r, inner: r, outer: resp.Body}, nil
}

// Head probes url for its size and content encoding without downloading
// the body. It makes a single attempt, with no retry.
func (f *Fetcher) Head(ctx context.Context, url string) (size int64, gzipEncoded bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return 0, false, &pipeline.FetchError{URL: url, Transient: false, Err: err}
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, false, &pipeline.FetchError{URL: url, Transient: true, Err: err}
	}
	defer resp.Body.Close()
	return resp.ContentLength, strings.Contains(resp.Header.Get("Content-Encoding"), "gzip"), nil
}

func (f *Fetcher) getWithRetry(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := backoffWithJitter(attempt)
			select {
			case <-ctx.Done():
				return nil, &pipeline.FetchError{URL: url, Transient: false, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}

		reqCtx := ctx
		var cancel context.CancelFunc
		if f.RequestTimeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, f.RequestTimeout)
		}
		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
		if err != nil {
			if cancel != nil {
				cancel()
			}
			return nil, &pipeline.FetchError{URL: url, Transient: false, Err: err}
		}

		resp, err := f.Client.Do(req)
		if err != nil {
			if cancel != nil {
				cancel()
			}
			lastErr = err
			continue // transient: network error
		}

		if resp.StatusCode == http.StatusOK {
			return resp, nil
		}

		resp.Body.Close()
		if cancel != nil {
			cancel()
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("http status %d", resp.StatusCode)
			continue // transient: retry
		}

		return nil, &pipeline.FetchError{URL: url, Transient: false, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}
	return nil, &pipeline.FetchError{URL: url, Transient: true, Err: fmt.Errorf("exhausted %d retries: %w", maxRetries, lastErr)}
}

// backoffWithJitter computes 2^attempt seconds plus up to 50% random
// jitter, which keeps retries from synchronizing across concurrent payer
// pipelines hitting the same CDN.
func backoffWithJitter(attempt int) time.Duration {
	base := time.Duration(math.Pow(2, float64(attempt))) * time.Second
	jitter := time.Duration(rand.Int63n(int64(base) / 2))
	return base + jitter
}

func (f *Fetcher) gzipReader(r io.Reader) (io.ReadCloser, error) {
	if !f.UseStdGzip {
		if zr, err := pgzip.NewReader(r); err == nil {
			return zr, nil
		}
	}
	return gzip.NewReader(r)
}

// closeBoth closes both the decompressor and the underlying HTTP body.
type closeBoth struct {
	io.Reader
	inner io.ReadCloser
	outer io.ReadCloser
}

func (c *closeBoth) Close() error {
	err1 := c.inner.Close()
	err2 := c.outer.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
