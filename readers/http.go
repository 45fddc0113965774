//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of PQRows.
//
// PQRows is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// PQRows is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with PQRows. If not, see https://www.gnu.org/licenses/.

package readers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// HTTPFetcherError provides structured error information for HTTP downloads
type HTTPFetcherError struct {
	Op         string // Operation that failed (e.g., "request", "status_check", "read_body")
	StatusCode int    // HTTP status code if applicable
	URL        string // URL being fetched
	Err        error  // Underlying error
}

func (e *HTTPFetcherError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("http fetcher %s [%d] %s: %v", e.Op, e.StatusCode, e.URL, e.Err)
	}
	return fmt.Sprintf("http fetcher %s %s: %v", e.Op, e.URL, e.Err)
}

func (e *HTTPFetcherError) Unwrap() error {
	return e.Err
}

// HTTPOptions configures downloads of http:// and https:// paths
type HTTPOptions struct {
	Headers       map[string]string // Additional request headers
	BearerToken   string            // Sent as "Authorization: Bearer <token>"
	Username      string            // Basic auth user
	Password      string            // Basic auth password
	Timeout       time.Duration     // Per-request timeout
	RetryAttempts int               // Retries after the first attempt
	RetryDelay    time.Duration     // Base delay, doubled on each retry
	MaxObjectSize int64             // Largest body accepted, in bytes
	UserAgent     string
	Client        *http.Client // Replaces the default client
}

// HTTPOption represents a configuration function for HTTPOptions
type HTTPOption func(*HTTPOptions)

func WithHTTPHeaders(headers map[string]string) HTTPOption {
	return func(opts *HTTPOptions) {
		if opts.Headers == nil {
			opts.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			opts.Headers[k] = v
		}
	}
}

func WithHTTPBearerToken(token string) HTTPOption {
	return func(opts *HTTPOptions) {
		opts.BearerToken = token
	}
}

func WithHTTPBasicAuth(username, password string) HTTPOption {
	return func(opts *HTTPOptions) {
		opts.Username = username
		opts.Password = password
	}
}

func WithHTTPTimeout(timeout time.Duration) HTTPOption {
	return func(opts *HTTPOptions) {
		opts.Timeout = timeout
	}
}

func WithHTTPRetries(attempts int, delay time.Duration) HTTPOption {
	return func(opts *HTTPOptions) {
		opts.RetryAttempts = attempts
		opts.RetryDelay = delay
	}
}

func WithHTTPMaxObjectSize(size int64) HTTPOption {
	return func(opts *HTTPOptions) {
		opts.MaxObjectSize = size
	}
}

func WithHTTPClient(client *http.Client) HTTPOption {
	return func(opts *HTTPOptions) {
		opts.Client = client
	}
}

func (opts HTTPOptions) withDefaults() HTTPOptions {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.RetryAttempts < 0 {
		opts.RetryAttempts = 0
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	if opts.MaxObjectSize <= 0 {
		opts.MaxObjectSize = DefaultMaxObjectSize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "pqrows/1.0"
	}
	return opts
}

// HTTPFetchStats holds statistics about downloaded objects
type HTTPFetchStats struct {
	RequestCount  int64
	RetryCount    int64
	BytesRead     int64
	FetchDuration time.Duration
}

// HTTPFetcher downloads whole Parquet objects over HTTP so they can be
// decoded with random access.
type HTTPFetcher struct {
	client *http.Client
	opts   HTTPOptions
	stats  HTTPFetchStats
}

// NewHTTPFetcher creates a fetcher. Server errors and 429 responses are
// retried with exponential backoff; other 4xx responses fail immediately.
func NewHTTPFetcher(opts HTTPOptions) *HTTPFetcher {
	opts = opts.withDefaults()
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	return &HTTPFetcher{client: client, opts: opts}
}

// Fetch downloads url into memory.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	defer func() {
		f.stats.FetchDuration += time.Since(start)
	}()

	var lastErr error
	for attempt := 0; attempt <= f.opts.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := f.opts.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			f.stats.RetryCount++
		}

		data, err := f.fetchOnce(ctx, url)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var httpErr *HTTPFetcherError
		if !errors.As(err, &httpErr) || !retryable(httpErr.StatusCode) {
			break
		}
	}
	return nil, lastErr
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &HTTPFetcherError{Op: "create_request", URL: url, Err: err}
	}

	req.Header.Set("User-Agent", f.opts.UserAgent)
	for k, v := range f.opts.Headers {
		req.Header.Set(k, v)
	}
	switch {
	case f.opts.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+f.opts.BearerToken)
	case f.opts.Username != "":
		req.SetBasicAuth(f.opts.Username, f.opts.Password)
	}

	f.stats.RequestCount++
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &HTTPFetcherError{Op: "request", URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &HTTPFetcherError{
			Op:         "status_check",
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status code: %d", resp.StatusCode),
		}
	}
	if resp.ContentLength > f.opts.MaxObjectSize {
		return nil, &HTTPFetcherError{
			Op:  "status_check",
			URL: url,
			Err: fmt.Errorf("object is %d bytes, limit is %d", resp.ContentLength, f.opts.MaxObjectSize),
		}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.opts.MaxObjectSize+1))
	if err != nil {
		return nil, &HTTPFetcherError{Op: "read_body", URL: url, Err: err}
	}
	if int64(len(data)) > f.opts.MaxObjectSize {
		return nil, &HTTPFetcherError{Op: "read_body", URL: url, Err: fmt.Errorf("body exceeds limit of %d bytes", f.opts.MaxObjectSize)}
	}

	f.stats.BytesRead += int64(len(data))
	return data, nil
}

// Stats returns download statistics
func (f *HTTPFetcher) Stats() HTTPFetchStats {
	return f.stats
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// IsHTTPURL reports whether path uses the http:// or https:// scheme.
func IsHTTPURL(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}
