// internal/storage/s3.go

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

const presignTTL = 24 * time.Hour

// S3MediaStore resolves media object keys to presigned URLs. Listing
// photos and other marketplace media live in S3; notifications carry
// only the object key and get a short-lived URL at send time.
type S3MediaStore struct {
	s3Client *s3.S3
	bucket   string
}

// NewS3MediaStore creates an S3-backed media store
func NewS3MediaStore(bucket, region string) (*S3MediaStore, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(region),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return &S3MediaStore{
		s3Client: s3.New(sess),
		bucket:   bucket,
	}, nil
}

// ResolveURL returns a presigned GET URL for the object key
func (s *S3MediaStore) ResolveURL(ctx context.Context, key string) (string, error) {
	req, _ := s.s3Client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})

	url, err := req.Presign(presignTTL)
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return url, nil
}
