// Package miniostore talks to S3 compatible services (MinIO, Ceph RGW, ...) through minio-go.
package miniostore

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/dev-tams/deployprune/internal/storage/prunable"
)

type Options struct {
	Name      string
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
	PathStyle bool
	// Insecure skips TLS verification, only for self signed certificates.
	Insecure bool
}

type Storage struct {
	name   string
	bucket string
	client *minio.Client
}

func New(opt Options) (*Storage, error) {
	if opt.Bucket == "" {
		return nil, fmt.Errorf("minio: bucket is required")
	}
	host, secure, err := splitEndpoint(opt.Endpoint)
	if err != nil {
		return nil, err
	}

	options := &minio.Options{
		Creds:  credentials.NewStaticV4(opt.AccessKey, opt.SecretKey, ""),
		Secure: secure,
		Region: opt.Region,
	}
	if opt.PathStyle {
		options.BucketLookup = minio.BucketLookupPath
	}
	if opt.Insecure {
		options.Transport = &http.Transport{
			MaxIdleConns:       10,
			IdleConnTimeout:    30 * time.Second,
			DisableCompression: true,
			TLSClientConfig:    &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := minio.New(host, options)
	if err != nil {
		return nil, fmt.Errorf("minio: new client: %w", err)
	}
	return &Storage{name: opt.Name, bucket: opt.Bucket, client: client}, nil
}

func (s *Storage) Name() string { return s.name }

func (s *Storage) ListPrefixes(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var out []string
	for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: false}) {
		if object.Err != nil {
			return nil, fmt.Errorf("minio listobjects: %w", object.Err)
		}
		// non-recursive listings report common prefixes as keys ending in the delimiter
		if strings.HasSuffix(object.Key, prunable.Delimiter) {
			out = append(out, object.Key)
		}
	}
	return out, nil
}

func (s *Storage) List(ctx context.Context, prefix string, limit int) ([]prunable.ObjectInfo, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
	if limit > 0 {
		opts.MaxKeys = limit
	}

	var out []prunable.ObjectInfo
	for object := range s.client.ListObjects(ctx, s.bucket, opts) {
		if object.Err != nil {
			return nil, fmt.Errorf("minio listobjects: %w", object.Err)
		}
		out = append(out, prunable.ObjectInfo{
			Key:     object.Key,
			Size:    object.Size,
			ModTime: object.LastModified,
		})
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Storage) DeletePrefix(ctx context.Context, prefix string) (int, error) {
	if err := prunable.CheckPrefix(prefix); err != nil {
		return 0, fmt.Errorf("delete %q: %w", prefix, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	objectsCh := make(chan minio.ObjectInfo)
	listErr := make(chan error, 1)
	listDone := make(chan struct{})
	sent := 0

	go func() {
		defer close(listDone)
		defer close(objectsCh)
		for object := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
			if object.Err != nil {
				listErr <- object.Err
				return
			}
			if !strings.HasPrefix(object.Key, prefix) {
				continue
			}
			select {
			case objectsCh <- object:
				sent++
			case <-ctx.Done():
				return
			}
		}
	}()

	failed := 0
	var firstErr error
	for rErr := range s.client.RemoveObjects(ctx, s.bucket, objectsCh, minio.RemoveObjectsOptions{}) {
		failed++
		if firstErr == nil {
			firstErr = fmt.Errorf("minio removeobjects %s: %w", rErr.ObjectName, rErr.Err)
		}
	}

	cancel()
	<-listDone

	deleted := sent - failed
	select {
	case err := <-listErr:
		return deleted, fmt.Errorf("minio listobjects: %w", err)
	default:
	}
	if firstErr != nil {
		return deleted, firstErr
	}
	return deleted, nil
}

// splitEndpoint accepts "https://host:port" as well as a bare "host:port" (plain http).
func splitEndpoint(endpoint string) (string, bool, error) {
	if !strings.Contains(endpoint, "://") {
		if endpoint == "" {
			return "", false, fmt.Errorf("minio: endpoint is required")
		}
		return endpoint, false, nil
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, fmt.Errorf("minio: parse endpoint: %w", err)
	}
	if u.Host == "" {
		return "", false, fmt.Errorf("minio: endpoint %q has no host", endpoint)
	}
	return u.Host, u.Scheme == "https", nil
}
