// Package metastore uploads NFT metadata documents and hands back the URI
// that goes on chain.
package metastore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	appcfg "github.com/clarity-app/core/internal/config"
)

// Store persists one metadata document and returns its public URI.
type Store interface {
	Upload(ctx context.Context, key string, payload []byte, contentType string) (string, error)
}

// S3Store puts documents into an S3-compatible bucket. Works against AWS
// and against MinIO/R2 style endpoints via BaseEndpoint.
type S3Store struct {
	client       *s3.Client
	bucket       string
	region       string
	endpoint     string
	customDomain string
	pathStyle    bool
}

// NewS3Store validates the options and builds the SDK client.
func NewS3Store(ctx context.Context, opts appcfg.S3Options) (*S3Store, error) {
	bucket := strings.TrimSpace(opts.Bucket)
	region := strings.TrimSpace(opts.Region)
	accessKey := strings.TrimSpace(opts.AccessKeyID)
	secretKey := strings.TrimSpace(opts.SecretAccessKey)
	if bucket == "" || region == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("metastore: incomplete s3 config, bucket/region/access_key_id/secret_access_key are required")
	}

	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	endpoint = strings.TrimSuffix(endpoint, "/")

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, err
	}

	pathStyle := opts.PathStyleAccess
	if endpoint != "" {
		// Custom endpoints are almost always MinIO style deployments.
		pathStyle = true
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
		o.UsePathStyle = pathStyle
	})

	return &S3Store{
		client:       client,
		bucket:       bucket,
		region:       region,
		endpoint:     endpoint,
		customDomain: strings.TrimRight(strings.TrimSpace(opts.CustomDomain), "/"),
		pathStyle:    pathStyle,
	}, nil
}

func (s *S3Store) Upload(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	key = normalizeKey(key)
	if key == "" {
		return "", fmt.Errorf("metastore: invalid object key")
	}
	if contentType == "" {
		contentType = "application/json"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(payload),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", err
	}
	return s.publicURL(key), nil
}

func (s *S3Store) publicURL(key string) string {
	escaped := escapeKey(key)
	if s.customDomain != "" {
		return s.customDomain + "/" + escaped
	}
	if s.endpoint != "" {
		if s.pathStyle {
			return s.endpoint + "/" + s.bucket + "/" + escaped
		}
		u, err := url.Parse(s.endpoint)
		if err == nil {
			return u.Scheme + "://" + s.bucket + "." + u.Host + "/" + escaped
		}
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, escaped)
}

func normalizeKey(key string) string {
	key = strings.TrimSpace(key)
	key = strings.TrimLeft(key, "/")
	if strings.Contains(key, "..") {
		return ""
	}
	return key
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}

// MemoryStore keeps documents in process memory. It is the fallback when
// no bucket is configured, so minting keeps working on a fully offline
// install; the URI is only resolvable by this process.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: map[string][]byte{}}
}

func (m *MemoryStore) Upload(ctx context.Context, key string, payload []byte, contentType string) (string, error) {
	key = normalizeKey(key)
	if key == "" {
		return "", fmt.Errorf("metastore: invalid object key")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)

	m.mu.Lock()
	m.docs[key] = cp
	m.mu.Unlock()
	return "local://" + key, nil
}

// Get returns a previously uploaded document, for the local metadata
// route and for tests.
func (m *MemoryStore) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[normalizeKey(key)]
	return doc, ok
}
