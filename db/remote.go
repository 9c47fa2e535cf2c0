package db

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config authenticates reads and writes of s3:// schema, data and
// resolution files. Empty fields fall back to the default AWS chain.
type S3Config struct {
	AccessKey string `yaml:"access_key,omitempty"`
	SecretKey string `yaml:"secret_key,omitempty"`
	Region    string `yaml:"region,omitempty"`
	// Endpoint selects an S3-compatible service and path-style addressing.
	Endpoint string `yaml:"endpoint,omitempty"`
}

type location int

const (
	localFile location = iota
	httpFile
	s3Object
)

func locate(path string) (location, string) {
	lower := strings.ToLower(path)
	switch {
	case strings.HasPrefix(lower, "s3://"):
		return s3Object, path[len("s3://"):]
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return httpFile, path
	case strings.HasPrefix(lower, "file://"):
		return localFile, path[len("file://"):]
	}
	return localFile, path
}

// remoteTimeout bounds one HTTP download or S3 request.
var remoteTimeout = 5 * time.Minute

func openRemoteReader(path string, cfg *S3Config) (io.ReadCloser, error) {
	where, target := locate(path)
	switch where {
	case httpFile:
		return openHTTPReader(target)
	case s3Object:
		return openS3Reader(target, cfg)
	}
	f, err := osOpen(target)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", target, err)
	}
	return f, nil
}

func openRemoteWriter(path string, cfg *S3Config) (io.WriteCloser, error) {
	where, target := locate(path)
	switch where {
	case httpFile:
		return nil, fmt.Errorf("cannot write to %s: http locations are read-only", path)
	case s3Object:
		return openS3Writer(target, cfg)
	}
	f, err := osCreate(target)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", target, err)
	}
	return f, nil
}

func openHTTPReader(url string) (io.ReadCloser, error) {
	client := &http.Client{Timeout: remoteTimeout}
	resp, err := client.Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}

func splitObject(target string) (bucket, key string, err error) {
	bucket, key, ok := strings.Cut(target, "/")
	if !ok || bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 location s3://%s", target)
	}
	return bucket, key, nil
}

func s3Client(ctx context.Context, cfg *S3Config) (*s3.Client, error) {
	if cfg == nil {
		cfg = &S3Config{}
	}
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

func openS3Reader(target string, cfg *S3Config) (io.ReadCloser, error) {
	bucket, key, err := splitObject(target)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	client, err := s3Client(ctx, cfg)
	if err != nil {
		cancel()
		return nil, err
	}
	resp, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to get s3://%s: %w", target, err)
	}
	return &cancelReader{ReadCloser: resp.Body, cancel: cancel}, nil
}

type cancelReader struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (r *cancelReader) Close() error {
	defer r.cancel()
	return r.ReadCloser.Close()
}

// s3Writer buffers an object and uploads it on Close.
type s3Writer struct {
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (w *s3Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed s3://%s/%s", w.bucket, w.key)
	}
	return w.buf.Write(p)
}

func (w *s3Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	ctx, cancel := context.WithTimeout(context.Background(), remoteTimeout)
	defer cancel()
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(w.key),
		Body:   bytes.NewReader(w.buf.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %w", w.bucket, w.key, err)
	}
	return nil
}

func openS3Writer(target string, cfg *S3Config) (io.WriteCloser, error) {
	bucket, key, err := splitObject(target)
	if err != nil {
		return nil, err
	}
	client, err := s3Client(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &s3Writer{client: client, bucket: bucket, key: key}, nil
}

// Swapped in tests.
var (
	osOpen   = func(path string) (io.ReadCloser, error) { return os.Open(path) }
	osCreate = func(path string) (io.WriteCloser, error) { return os.Create(path) }
)
