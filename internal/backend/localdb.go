package backend

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/credself/credstore/internal/models"
	bolt "go.etcd.io/bbolt"
)

// Local implements Operator against the embedded local key-value store.
// Records live in one bucket per secret type, keyed by the user's
// surrogate identifier.
type Local[R any] struct {
	// DB is the open bbolt handle, shared between operators.
	DB *bolt.DB
	// Bucket names the bucket for this secret type.
	Bucket string
}

// NewLocal creates a Local operator over db using the named bucket.
func NewLocal[R any](db *bolt.DB, bucket string) *Local[R] {
	return &Local[R]{DB: db, Bucket: bucket}
}

// Kind reports models.EmbeddedStore.
func (l *Local[R]) Kind() models.BackendKind { return models.EmbeddedStore }

// NeedsGUID is true: entries are keyed by surrogate identifier.
func (l *Local[R]) NeedsGUID() bool { return true }

// Read fetches and decodes the stored record, or (nil, nil) when the
// bucket or key does not exist.
func (l *Local[R]) Read(ctx context.Context, user, guid string) (*R, error) {
	var data []byte
	err := l.DB.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(l.Bucket))
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(guid)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, operational(models.EmbeddedStore, "read", fmt.Errorf("view bucket %s: %w", l.Bucket, err))
	}
	if data == nil {
		return nil, nil
	}

	var record R
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, operational(models.EmbeddedStore, "read", fmt.Errorf("decode stored record: %w", err))
	}
	return &record, nil
}

// Write replaces the stored record.
func (l *Local[R]) Write(ctx context.Context, user, guid string, record R) error {
	data, err := json.Marshal(record)
	if err != nil {
		return operational(models.EmbeddedStore, "write", fmt.Errorf("encode record: %w", err))
	}

	err = l.DB.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(l.Bucket))
		if err != nil {
			return err
		}
		return b.Put([]byte(guid), data)
	})
	if err != nil {
		return operational(models.EmbeddedStore, "write", fmt.Errorf("put bucket %s: %w", l.Bucket, err))
	}
	return nil
}

// Clear deletes the stored record. Deleting a missing key succeeds.
func (l *Local[R]) Clear(ctx context.Context, user, guid string) error {
	err := l.DB.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(l.Bucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(guid))
	})
	if err != nil {
		return operational(models.EmbeddedStore, "clear", fmt.Errorf("delete bucket %s: %w", l.Bucket, err))
	}
	return nil
}
