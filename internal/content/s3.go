package content

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/ignite/newsletter/internal/pkg/logger"
)

// S3API is the subset of the S3 client S3Loader uses.
type S3API interface {
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Loader reads markdown issues stored under a bucket prefix.
type S3Loader struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Loader creates a loader for s3://bucket/prefix.
func NewS3Loader(client S3API, bucket, prefix string) *S3Loader {
	return &S3Loader{client: client, bucket: bucket, prefix: prefix}
}

func (l *S3Loader) Load(ctx context.Context) ([]Entry, error) {
	p := s3.NewListObjectsV2Paginator(l.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(l.bucket),
		Prefix: aws.String(l.prefix),
	})

	var entries []Entry
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", l.bucket, l.prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			// Only direct children of the prefix; nested keys are assets.
			if !isMarkdown(key) || strings.Contains(strings.TrimPrefix(key, l.prefix), "/") {
				continue
			}
			raw, err := l.get(ctx, key)
			if err != nil {
				return nil, err
			}
			e, err := ParseMarkdown(slugOf(key), raw)
			if err != nil {
				logger.Warn("skipping unreadable issue object", "key", key, "error", err)
				continue
			}
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (l *S3Loader) get(ctx context.Context, key string) ([]byte, error) {
	out, err := l.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", l.bucket, key, err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", l.bucket, key, err)
	}
	return raw, nil
}
