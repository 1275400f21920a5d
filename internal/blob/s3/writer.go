package s3blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/cowprotocol/cow-amm-trade-envy/internal/domain"
)

// S3 rejects multipart parts below 5 MiB.
const minPartSize int64 = 5 * 1024 * 1024

// Writer uploads objects under an optional key prefix.
type Writer struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewWriter creates a Writer for c's bucket. Keys are joined under prefix.
func NewWriter(c *Client, prefix string) *Writer {
	return &Writer{
		client: c.S3(),
		bucket: c.Bucket(),
		prefix: strings.Trim(prefix, "/"),
	}
}

var _ domain.BlobWriter = (*Writer)(nil)

func (w *Writer) key(p string) string {
	p = strings.TrimLeft(p, "/")
	if w.prefix == "" {
		return p
	}
	return path.Join(w.prefix, p)
}

// Put uploads data in a single PutObject call.
func (w *Writer) Put(ctx context.Context, p string, data io.Reader, contentType string) error {
	key := w.key(p)
	_, err := w.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", key, err)
	}
	return nil
}

// PutMultipart streams data through the SDK upload manager in parts of
// partSize bytes (at least 5 MiB).
func (w *Writer) PutMultipart(ctx context.Context, p string, data io.Reader, partSize int64) error {
	partSize = max(partSize, minPartSize)
	key := w.key(p)

	uploader := manager.NewUploader(w.client, func(u *manager.Uploader) {
		u.PartSize = partSize
	})
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(w.bucket),
		Key:    aws.String(key),
		Body:   data,
	})
	if err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
	}
	return nil
}
