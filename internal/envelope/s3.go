package envelope

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

// maxDocumentSize bounds a contract download; the provider rejects larger documents.
const maxDocumentSize = 25 << 20

// S3API is the subset of the S3 client used by S3Documents.
type S3API interface {
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Documents reads contract documents from S3.
type S3Documents struct {
	client S3API
}

// Compile-time interface satisfaction check.
var _ DocumentSource = (*S3Documents)(nil)

// NewS3Documents creates an S3 document source.
func NewS3Documents(client S3API) *S3Documents {
	return &S3Documents{client: client}
}

// Fetch downloads the object at ref.
func (s *S3Documents) Fetch(ctx context.Context, ref types.DocumentRef) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(ref.Bucket),
		Key:    aws.String(ref.Key),
	})
	if err != nil {
		return nil, fmt.Errorf("getting s3://%s/%s: %w", ref.Bucket, ref.Key, err)
	}
	defer func() { _ = out.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(out.Body, maxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading s3://%s/%s: %w", ref.Bucket, ref.Key, err)
	}
	if len(data) > maxDocumentSize {
		return nil, fmt.Errorf("document s3://%s/%s exceeds %d bytes", ref.Bucket, ref.Key, maxDocumentSize)
	}
	return data, nil
}
