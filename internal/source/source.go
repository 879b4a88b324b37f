// Package source opens the files the CLI uploads. A reference is a local
// path, "-" for standard input, or an s3://bucket/key object.
package source

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"artai-go/internal/artai"
	"artai-go/internal/config"
)

// Downloader is the part of manager.Downloader the opener uses.
type Downloader interface {
	Download(ctx context.Context, w io.WriterAt, input *s3.GetObjectInput, options ...func(*manager.Downloader)) (int64, error)
}

var _ Downloader = (*manager.Downloader)(nil)

// File is an opened upload input. Close releases it.
type File struct {
	artai.Upload
	close func() error
}

func (f *File) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}

// Opener resolves references into uploads.
type Opener struct {
	s3    Downloader
	stdin io.Reader
}

// NewOpener creates an Opener. d may be nil, in which case s3:// references
// fail.
func NewOpener(d Downloader) *Opener {
	return &Opener{s3: d, stdin: os.Stdin}
}

// NewOpenerFromConfig creates an Opener whose S3 downloader uses cfg on top
// of the default AWS credential chain.
func NewOpenerFromConfig(ctx context.Context, cfg config.S3Config) (*Opener, error) {
	d, err := NewS3Downloader(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewOpener(d), nil
}

// NewS3Downloader builds a download manager for cfg. Static keys, when set,
// take precedence over the environment.
func NewS3Downloader(ctx context.Context, cfg config.S3Config) (*manager.Downloader, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(aws.NewCredentialsCache(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return manager.NewDownloader(client), nil
}

// ParseS3URI splits s3://bucket/key. ok is false when ref is not an s3 URI.
func ParseS3URI(ref string) (bucket, key string, ok bool, err error) {
	rest, found := strings.CutPrefix(ref, "s3://")
	if !found {
		return "", "", false, nil
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" || strings.HasSuffix(key, "/") {
		return "", "", true, fmt.Errorf("s3 reference %q must be s3://bucket/key", ref)
	}
	return bucket, key, true, nil
}

// Open resolves ref. The caller must Close the result.
func (o *Opener) Open(ctx context.Context, ref string) (*File, error) {
	if ref == "-" {
		return &File{Upload: artai.Upload{Filename: "stdin", Content: o.stdin}}, nil
	}

	bucket, key, isS3, err := ParseS3URI(ref)
	if err != nil {
		return nil, err
	}
	if isS3 {
		return o.openS3(ctx, bucket, key)
	}

	f, err := os.Open(ref)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", ref, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", ref, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%s is a directory", ref)
	}
	return &File{
		Upload: artai.Upload{Filename: filepath.Base(ref), Content: f},
		close:  f.Close,
	}, nil
}

func (o *Opener) openS3(ctx context.Context, bucket, key string) (*File, error) {
	if o.s3 == nil {
		return nil, fmt.Errorf("s3://%s/%s: no S3 downloader configured", bucket, key)
	}
	buf := manager.NewWriteAtBuffer(nil)
	if _, err := o.s3.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	}); err != nil {
		return nil, fmt.Errorf("downloading s3://%s/%s: %w", bucket, key, err)
	}
	return &File{
		Upload: artai.Upload{Filename: path.Base(key), Content: bytes.NewReader(buf.Bytes())},
	}, nil
}
