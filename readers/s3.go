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
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3ReaderError provides structured error information for S3 operations
type S3ReaderError struct {
	Op  string // Operation that failed (e.g., "get_object", "read_body")
	Err error  // Underlying error
}

func (e *S3ReaderError) Error() string {
	return fmt.Sprintf("s3 reader %s: %v", e.Op, e.Err)
}

func (e *S3ReaderError) Unwrap() error {
	return e.Err
}

// DefaultMaxObjectSize bounds the size of a Parquet object downloaded into
// memory.
const DefaultMaxObjectSize = 1 << 30

// S3Options configures the S3 client used for s3:// paths
type S3Options struct {
	Region         string          // AWS region
	Profile        string          // AWS profile to use
	Credentials    aws.Credentials // Explicit credentials
	EndpointURL    string          // Custom S3 endpoint (for S3-compatible services)
	ForcePathStyle bool            // Use path-style addressing
	MaxObjectSize  int64           // Largest object accepted, in bytes
}

// S3Option represents a configuration function for S3Options
type S3Option func(*S3Options)

func WithS3Region(region string) S3Option {
	return func(opts *S3Options) {
		opts.Region = region
	}
}

func WithS3Profile(profile string) S3Option {
	return func(opts *S3Options) {
		opts.Profile = profile
	}
}

func WithS3Credentials(creds aws.Credentials) S3Option {
	return func(opts *S3Options) {
		opts.Credentials = creds
	}
}

func WithS3Endpoint(endpoint string) S3Option {
	return func(opts *S3Options) {
		opts.EndpointURL = endpoint
	}
}

func WithS3PathStyle(pathStyle bool) S3Option {
	return func(opts *S3Options) {
		opts.ForcePathStyle = pathStyle
	}
}

func WithS3MaxObjectSize(size int64) S3Option {
	return func(opts *S3Options) {
		opts.MaxObjectSize = size
	}
}

// S3FetchStats holds statistics about downloaded objects
type S3FetchStats struct {
	ObjectsRead   int64
	BytesRead     int64
	FetchDuration time.Duration
}

// S3Fetcher downloads whole Parquet objects so they can be decoded with
// random access.
type S3Fetcher struct {
	client *s3.Client
	opts   S3Options
	stats  S3FetchStats
}

// NewS3Fetcher creates an S3 client from the default AWS configuration chain,
// overridden by opts.
func NewS3Fetcher(ctx context.Context, opts S3Options) (*S3Fetcher, error) {
	if opts.MaxObjectSize <= 0 {
		opts.MaxObjectSize = DefaultMaxObjectSize
	}

	cfg, err := createAWSConfig(ctx, opts)
	if err != nil {
		return nil, &S3ReaderError{Op: "create_aws_config", Err: err}
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.EndpointURL != "" {
			o.BaseEndpoint = aws.String(opts.EndpointURL)
		}
		o.UsePathStyle = opts.ForcePathStyle
	})

	return &S3Fetcher{client: client, opts: opts}, nil
}

// Fetch downloads s3://bucket/key into memory.
func (f *S3Fetcher) Fetch(ctx context.Context, bucket, key string) ([]byte, error) {
	start := time.Now()

	result, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, &S3ReaderError{Op: "get_object", Err: fmt.Errorf("failed to get object %s: %w", key, err)}
	}
	defer result.Body.Close()

	if result.ContentLength != nil && *result.ContentLength > f.opts.MaxObjectSize {
		return nil, &S3ReaderError{
			Op:  "get_object",
			Err: fmt.Errorf("object %s is %d bytes, limit is %d", key, *result.ContentLength, f.opts.MaxObjectSize),
		}
	}

	data, err := io.ReadAll(io.LimitReader(result.Body, f.opts.MaxObjectSize+1))
	if err != nil {
		return nil, &S3ReaderError{Op: "read_body", Err: err}
	}
	if int64(len(data)) > f.opts.MaxObjectSize {
		return nil, &S3ReaderError{
			Op:  "read_body",
			Err: fmt.Errorf("object %s exceeds limit of %d bytes", key, f.opts.MaxObjectSize),
		}
	}

	f.stats.ObjectsRead++
	f.stats.BytesRead += int64(len(data))
	f.stats.FetchDuration += time.Since(start)
	return data, nil
}

// Stats returns download statistics
func (f *S3Fetcher) Stats() S3FetchStats {
	return f.stats
}

// IsS3URL reports whether path uses the s3:// scheme.
func IsS3URL(path string) bool {
	return strings.HasPrefix(strings.ToLower(path), "s3://")
}

// ParseS3URL splits s3://bucket/key into its bucket and key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	if !strings.EqualFold(u.Scheme, "s3") {
		return "", "", fmt.Errorf("not an s3 url: %s", raw)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("missing bucket in %s", raw)
	}
	if key == "" {
		return "", "", fmt.Errorf("missing object key in %s", raw)
	}
	return bucket, key, nil
}

// createAWSConfig creates AWS configuration from options
func createAWSConfig(ctx context.Context, opts S3Options) (aws.Config, error) {
	configOpts := []func(*config.LoadOptions) error{}

	if opts.Region != "" {
		configOpts = append(configOpts, config.WithRegion(opts.Region))
	}

	if opts.Profile != "" {
		configOpts = append(configOpts, config.WithSharedConfigProfile(opts.Profile))
	}

	cfg, err := config.LoadDefaultConfig(ctx, configOpts...)
	if err != nil {
		return aws.Config{}, err
	}

	// Override with explicit credentials if provided
	if opts.Credentials.AccessKeyID != "" {
		cfg.Credentials = aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(
				opts.Credentials.AccessKeyID,
				opts.Credentials.SecretAccessKey,
				opts.Credentials.SessionToken,
			),
		)
	}

	return cfg, nil
}
