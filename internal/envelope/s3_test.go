package envelope

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwsmith1983/contractsync/pkg/types"
)

type mockS3 struct {
	body string
	err  error
	key  string
}

func (m *mockS3) GetObject(_ context.Context, input *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.key = *input.Key
	if m.err != nil {
		return nil, m.err
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(m.body))}, nil
}

func TestS3Documents_Fetch(t *testing.T) {
	mock := &mockS3{body: "%PDF-1.7"}
	data, err := NewS3Documents(mock).Fetch(context.Background(), types.DocumentRef{Bucket: "b", Key: "contratos-gerados/a-a@b.co.pdf"})
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.7", string(data))
	assert.Equal(t, "contratos-gerados/a-a@b.co.pdf", mock.key)
}

func TestS3Documents_Error(t *testing.T) {
	boom := errors.New("NoSuchKey")
	_, err := NewS3Documents(&mockS3{err: boom}).Fetch(context.Background(), types.DocumentRef{Bucket: "b", Key: "k"})
	assert.ErrorIs(t, err, boom)
}
