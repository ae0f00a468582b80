// Package storage moves router-level artifacts between S3 and local disk.
// The pipeline never imports it; the server resolves s3:// inputs to local
// files before a job starts and uploads the delivered output afterwards.
package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"github.com/ironsheep/doc-tools-mcp/internal/job"
)

// URIParseError reports a malformed s3:// URI.
type URIParseError struct {
	URI string
}

func (e *URIParseError) Error() string {
	return fmt.Sprintf("invalid s3 uri: '%s'", e.URI)
}

// IsS3URI reports whether s names an S3 object.
func IsS3URI(s string) bool {
	return strings.HasPrefix(strings.ToLower(s), "s3://")
}

// ParseURI splits s3://bucket/key. A key ending in "/" names a prefix.
func ParseURI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "s3" || u.Host == "" || len(u.Path) < 2 {
		return "", "", &URIParseError{URI: uri}
	}
	return u.Host, u.Path[1:], nil
}

// Store downloads and uploads objects.
type Store struct {
	down s3manageriface.DownloaderAPI
	up   s3manageriface.UploaderAPI
	log  *slog.Logger
}

// Options selects the AWS region and shared-config profile. Empty values
// fall back to the SDK's environment and shared-config resolution.
type Options struct {
	Region  string
	Profile string
	Logger  *slog.Logger
}

// New opens an AWS session.
func New(opts Options) (*Store, error) {
	cfg := aws.Config{}
	if opts.Region != "" {
		cfg.Region = aws.String(opts.Region)
	}
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            cfg,
		Profile:           opts.Profile,
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize AWS session: %w", err)
	}
	return NewWithClients(s3manager.NewDownloader(sess), s3manager.NewUploader(sess), opts.Logger), nil
}

// NewWithClients builds a Store over existing transfer clients.
func NewWithClients(down s3manageriface.DownloaderAPI, up s3manageriface.UploaderAPI, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{down: down, up: up, log: logger}
}

// Fetch downloads uri into dir and returns it as an artifact named after
// the object key's base name.
func (s *Store) Fetch(ctx context.Context, uri, dir string) (job.Artifact, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return job.Artifact{}, &job.Error{Kind: job.ErrInvalidInput, Op: "s3", Err: err}
	}
	name := path.Base(key)
	if strings.HasSuffix(key, "/") || name == "." || name == "/" {
		return job.Artifact{}, job.Errorf(job.ErrInvalidInput, "s3", "%s names a prefix, not an object", uri)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return job.Artifact{}, job.Wrap(job.ErrWorkspace, "s3", err)
	}
	f, err := os.CreateTemp(dir, "s3-*-"+name)
	if err != nil {
		return job.Artifact{}, job.Wrap(job.ErrWorkspace, "s3", err)
	}
	n, err := s.down.DownloadWithContext(ctx, f, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(f.Name())
		return job.Artifact{}, classify(uri, err)
	}
	s.log.Debug("fetched object", "uri", uri, "bytes", n)
	return job.NewArtifact(f.Name(), name), nil
}

// Put uploads the file at local to uri and returns the object location. A
// uri ending in "/" receives the file's base name.
func (s *Store) Put(ctx context.Context, local, uri string) (string, error) {
	bucket, key, err := ParseURI(uri)
	if err != nil {
		return "", &job.Error{Kind: job.ErrInvalidInput, Op: "s3", Err: err}
	}
	if strings.HasSuffix(key, "/") {
		key += filepath.Base(local)
	}
	f, err := os.Open(local)
	if err != nil {
		return "", job.Wrap(job.ErrWorkspace, "s3", err)
	}
	defer f.Close()

	out, err := s.up.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return "", classify(uri, err)
	}
	s.log.Debug("uploaded object", "uri", uri, "location", out.Location)
	return out.Location, nil
}

func classify(uri string, err error) error {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		switch aerr.Code() {
		case s3.ErrCodeNoSuchKey, s3.ErrCodeNoSuchBucket, "NotFound":
			return &job.Error{Kind: job.ErrInvalidInput, Op: "s3", Msg: uri + " not found", Err: err}
		case request.CanceledErrorCode:
			return &job.Error{Kind: job.ErrCancelled, Op: "s3", Msg: uri, Err: err}
		}
	}
	return &job.Error{Kind: job.ErrToolFailed, Op: "s3", Msg: uri, Err: err}
}
