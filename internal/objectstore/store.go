package objectstore

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"mailtriage/internal/model"
	"mailtriage/pkg/util"
)

// 超过该大小的对象压缩后存储
const compressionThreshold = 1024

// objectDocument is one stored object; _id is the object key.
type objectDocument struct {
	Key          string    `bson:"_id"`
	Body         []byte    `bson:"body"`
	IsCompressed bool      `bson:"is_compressed"`
	ContentType  string    `bson:"content_type"`
	Size         int64     `bson:"size"`
	UpdatedAt    time.Time `bson:"updated_at"`
}

// Store implements the pipeline object store over a MongoDB database.
type Store struct {
	db *mongo.Database
}

func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Get returns the object body. A missing object wraps model.ErrObjectNotFound.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	var doc objectDocument
	err := s.db.Collection(bucket).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		return nil, mapError(fmt.Sprintf("get %s/%s", bucket, key), err)
	}
	return decodeBody(doc)
}

// Put upserts the object, so rewriting the same key is idempotent.
func (s *Store) Put(ctx context.Context, bucket, key string, body []byte, contentType string) error {
	doc, err := encodeBody(key, body, contentType)
	if err != nil {
		return err
	}

	opts := options.Replace().SetUpsert(true)
	if _, err := s.db.Collection(bucket).ReplaceOne(ctx, bson.M{"_id": key}, doc, opts); err != nil {
		return mapError(fmt.Sprintf("put %s/%s", bucket, key), err)
	}
	return nil
}

func mapError(op string, err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("%w: %s", model.ErrObjectNotFound, op)
	}
	if retryable, _ := util.IsRetryableError(err); retryable {
		return fmt.Errorf("%w: %s: %v", model.ErrStorageUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func encodeBody(key string, body []byte, contentType string) (objectDocument, error) {
	doc := objectDocument{
		Key:         key,
		Body:        body,
		ContentType: contentType,
		Size:        int64(len(body)),
		UpdatedAt:   time.Now().UTC(),
	}
	if len(body) <= compressionThreshold {
		return doc, nil
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return objectDocument{}, fmt.Errorf("compress %s: %w", key, err)
	}
	if err := zw.Close(); err != nil {
		return objectDocument{}, fmt.Errorf("compress %s: %w", key, err)
	}
	doc.Body = buf.Bytes()
	doc.IsCompressed = true
	return doc, nil
}

func decodeBody(doc objectDocument) ([]byte, error) {
	if !doc.IsCompressed {
		return doc.Body, nil
	}
	zr, err := gzip.NewReader(bytes.NewReader(doc.Body))
	if err != nil {
		return nil, fmt.Errorf("decompress %s: %w", doc.Key, err)
	}
	defer zr.Close()
	return io.ReadAll(zr)
}
