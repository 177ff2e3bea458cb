package objectstore

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"

	"mailtriage/internal/model"
	"mailtriage/pkg/util"
)

func TestBodyCodec(t *testing.T) {
	small := []byte("short body")
	doc, err := encodeBody("k", small, "message/rfc822")
	require.NoError(t, err)
	assert.False(t, doc.IsCompressed)
	assert.Equal(t, int64(len(small)), doc.Size)

	large := []byte(strings.Repeat("newsletter content ", 200))
	doc, err = encodeBody("k", large, "message/rfc822")
	require.NoError(t, err)
	assert.True(t, doc.IsCompressed)
	assert.Less(t, len(doc.Body), len(large))

	got, err := decodeBody(doc)
	require.NoError(t, err)
	assert.Equal(t, large, got)
}

func TestMapError(t *testing.T) {
	err := mapError("get raw/a", mongo.ErrNoDocuments)
	assert.True(t, errors.Is(err, model.ErrObjectNotFound))

	err = mapError("get raw/a", context.DeadlineExceeded)
	assert.True(t, errors.Is(err, model.ErrStorageUnavailable))

	err = mapError("get raw/a.eml", context.Canceled)
	assert.True(t, errors.Is(err, model.ErrStorageUnavailable))
	retryable, _ := util.IsRetryableError(err)
	assert.True(t, retryable)

	err = mapError("put raw/a", errors.New("document too large"))
	assert.False(t, errors.Is(err, model.ErrStorageUnavailable))
	assert.Contains(t, err.Error(), "put raw/a")
}
