// Package blob stores uploaded policy documents so assessments can be
// audited after the fact.
package blob

import "context"

// Store persists raw document bytes and returns a stable key. A nil Store
// means document retention is disabled; assessments still run, they just
// keep no copy of the upload.
type Store interface {
	Put(ctx context.Context, key string, contentType string, data []byte) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Close() error
}
