package mailer

import (
	"context"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"outreach-pipeline/internal/config"
)

// Attachment is a file sent with every email.
type Attachment struct {
	Name string
	Data []byte
}

// AttachmentSource lists the resume files to attach.
type AttachmentSource interface {
	Load(ctx context.Context) ([]Attachment, error)
}

// NewAttachmentSource reads from S3 when a bucket is configured, otherwise
// from the local attachment directory.
func NewAttachmentSource(ctx context.Context, cfg config.Config) (AttachmentSource, error) {
	if cfg.AttachmentS3Bucket == "" {
		return NewDirSource(cfg.AttachmentDir), nil
	}
	client, err := newS3Client(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &s3Source{client: client, bucket: cfg.AttachmentS3Bucket, prefix: cfg.AttachmentS3Prefix}, nil
}

type dirSource struct {
	dir string
}

func NewDirSource(dir string) AttachmentSource {
	return &dirSource{dir: dir}
}

// Load returns every regular file in the directory, sorted by name. A missing
// directory yields no attachments.
func (s *dirSource) Load(ctx context.Context) ([]Attachment, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		zap.L().Warn("attachment directory not found", zap.String("dir", s.dir))
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "list attachments in %s", s.dir)
	}

	var out []Attachment
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.Type().IsRegular() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read attachment %s", e.Name())
		}
		out = append(out, Attachment{Name: e.Name(), Data: data})
	}
	return out, nil
}

type s3Source struct {
	client *s3.Client
	bucket string
	prefix string
}

func (s *s3Source) Load(ctx context.Context) ([]Attachment, error) {
	var keys []string
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrapf(err, "list s3://%s/%s", s.bucket, s.prefix)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if key == "" || strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	out := make([]Attachment, 0, len(keys))
	for _, key := range keys {
		obj, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return nil, errors.Wrapf(err, "get s3://%s/%s", s.bucket, key)
		}
		data, err := io.ReadAll(obj.Body)
		_ = obj.Body.Close()
		if err != nil {
			return nil, errors.Wrapf(err, "read s3://%s/%s", s.bucket, key)
		}
		out = append(out, Attachment{Name: path.Base(key), Data: data})
	}
	return out, nil
}

func newS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AttachmentS3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AttachmentS3Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "load aws config")
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.AttachmentS3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.AttachmentS3Endpoint)
		}
		o.UsePathStyle = cfg.AttachmentS3PathStyle
	}), nil
}
