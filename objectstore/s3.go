// Package objectstore wraps the S3 API surface the sync engine needs:
// listing under a prefix, streaming uploads with attached metadata, and
// object tagging. Everything goes through the narrow API interface so tests
// can substitute a fake client.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/dustin/go-humanize"

	"monks.co/syncd/config"
	"monks.co/syncd/logger"
)

// ErrSizeMismatch is returned when exact-size enforcement is on and the
// bytes streamed differ from the declared expected size.
var ErrSizeMismatch = errors.New("streamed bytes differ from declared size")

// maxParts is the S3 limit on multipart upload part count.
const maxParts = 10000

// API is the slice of the S3 client this package uses.
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	GetObjectTagging(ctx context.Context, params *s3.GetObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.GetObjectTaggingOutput, error)
	PutObjectTagging(ctx context.Context, params *s3.PutObjectTaggingInput, optFns ...func(*s3.Options)) (*s3.PutObjectTaggingOutput, error)
	ListMultipartUploads(ctx context.Context, params *s3.ListMultipartUploadsInput, optFns ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
}

// Verify that the AWS S3 client implements our interface.
var _ API = (*s3.Client)(nil)

type Object struct {
	Key          string
	Size         int64
	LastModified time.Time
}

type Client struct {
	api         API
	bucket      string
	partSize    int64
	enforceSize bool
}

// New builds a client from the bucket section of the config, using the
// default AWS credential chain.
func New(ctx context.Context, conf *config.Config) (*Client, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	if conf.Bucket.Region != "" {
		cfg.Region = conf.Bucket.Region
	}
	return NewWithAPI(
		s3.NewFromConfig(cfg),
		conf.Bucket.Name,
		conf.Bucket.PartSize,
		conf.Bucket.EnforceSize,
	), nil
}

// NewWithAPI wires an explicit API implementation; tests use this.
func NewWithAPI(api API, bucket string, partSize int64, enforceSize bool) *Client {
	return &Client{
		api:         api,
		bucket:      bucket,
		partSize:    partSize,
		enforceSize: enforceSize,
	}
}

func (c *Client) Bucket() string {
	return c.bucket
}

// List returns every object under prefix, following pagination.
func (c *Client) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	var token *string
	for {
		page, err := c.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(c.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing '%s': %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, Object{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
		if page.NextContinuationToken == nil {
			break
		}
		token = page.NextContinuationToken
	}
	return out, nil
}

// Metadata returns the user metadata attached to an object at upload time.
func (c *Client) Metadata(ctx context.Context, key string) (map[string]string, error) {
	head, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("head '%s': %w", key, err)
	}
	return head.Metadata, nil
}

// GetTag returns the value of one tag on an object, or "" if unset.
func (c *Client) GetTag(ctx context.Context, key, tagKey string) (string, error) {
	tags, err := c.api.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("getting tags of '%s': %w", key, err)
	}
	for _, tag := range tags.TagSet {
		if aws.ToString(tag.Key) == tagKey {
			return aws.ToString(tag.Value), nil
		}
	}
	return "", nil
}

// SetTag replaces the object's tag set with the single given tag. Setting
// the same tag again is harmless, which keeps commit idempotent.
func (c *Client) SetTag(ctx context.Context, key, tagKey, tagValue string) error {
	_, err := c.api.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Tagging: &s3types.Tagging{
			TagSet: []s3types.Tag{{Key: aws.String(tagKey), Value: aws.String(tagValue)}},
		},
	})
	if err != nil {
		return fmt.Errorf("tagging '%s': %w", key, err)
	}
	return nil
}

// ListInProgressUploads names the multipart uploads still open under
// prefix. Stale entries mean an interrupted run left debris behind; this is
// advisory only.
func (c *Client) ListInProgressUploads(ctx context.Context, prefix string) ([]string, error) {
	out, err := c.api.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{
		Bucket: aws.String(c.bucket),
		Prefix: aws.String(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("listing multipart uploads under '%s': %w", prefix, err)
	}
	var keys []string
	for _, up := range out.Uploads {
		keys = append(keys, aws.ToString(up.Key))
	}
	return keys, nil
}

// Upload streams body into an object as a multipart upload, attaching the
// given user metadata. expectedSize sizes the parts (S3 caps uploads at
// 10000 parts); when exact-size enforcement is on, a final byte count that
// differs from expectedSize aborts the upload with ErrSizeMismatch.
//
// On any failure the multipart upload is aborted: a failed transfer leaves
// no completed object behind, only debris that ListInProgressUploads can
// point at.
func (c *Client) Upload(ctx context.Context, logger logger.Logger, key string, body io.Reader, expectedSize int64, metadata map[string]string) (int64, error) {
	partSize := c.partSize
	if min := expectedSize/maxParts + 1; partSize < min {
		partSize = min
	}

	create, err := c.api.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		Metadata: metadata,
	})
	if err != nil {
		return 0, fmt.Errorf("creating upload for '%s': %w", key, err)
	}
	uploadID := create.UploadId

	abort := func() {
		_, abortErr := c.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(c.bucket),
			Key:      aws.String(key),
			UploadId: uploadID,
		})
		if abortErr != nil {
			logger.Printf("abort of upload '%s' failed: %s", key, abortErr)
		}
	}

	var total int64
	var completed []s3types.CompletedPart
	buf := make([]byte, partSize)
	for partNumber := int32(1); ; partNumber++ {
		n, readErr := io.ReadFull(body, buf)
		if readErr != nil && readErr != io.EOF && readErr != io.ErrUnexpectedEOF {
			abort()
			return total, fmt.Errorf("reading stream for '%s': %w", key, readErr)
		}
		if n > 0 {
			part, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
				Bucket:        aws.String(c.bucket),
				Key:           aws.String(key),
				UploadId:      uploadID,
				PartNumber:    aws.Int32(partNumber),
				Body:          bytes.NewReader(buf[:n]),
				ContentLength: aws.Int64(int64(n)),
			})
			if err != nil {
				abort()
				return total, fmt.Errorf("uploading part %d of '%s': %w", partNumber, key, err)
			}
			total += int64(n)
			completed = append(completed, s3types.CompletedPart{
				ETag:       part.ETag,
				PartNumber: aws.Int32(partNumber),
			})
			logger.Printf("uploaded part %d of '%s': %s of %s",
				partNumber, key, humanize.Bytes(uint64(total)), humanize.Bytes(uint64(expectedSize)))
		}
		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
	}

	if total == 0 {
		abort()
		return 0, fmt.Errorf("empty stream for '%s'", key)
	}

	if c.enforceSize && total != expectedSize {
		abort()
		return total, fmt.Errorf("'%s': expected %d bytes, streamed %d: %w", key, expectedSize, total, ErrSizeMismatch)
	}

	if _, err := c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(c.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
		MultipartUpload: &s3types.CompletedMultipartUpload{
			Parts: completed,
		},
	}); err != nil {
		abort()
		return total, fmt.Errorf("completing upload of '%s': %w", key, err)
	}

	return total, nil
}
