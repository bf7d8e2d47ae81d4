// Package kv defines the key-value storage backends the app state blob is
// persisted to. Every backend stores opaque strings under string keys.
package kv

import (
	"context"
	"errors"
)

var (
	// ErrNotFound is returned by Get when no value is stored under the key.
	ErrNotFound = errors.New("key not found")
	// ErrClosed is returned by any call made after Close.
	ErrClosed = errors.New("backend is closed")
)

// Backend is the storage contract the state store depends on.
type Backend interface {
	// Init prepares the backend for first use (directories, schema).
	Init(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error

	// Location describes where data lives without leaking credentials.
	Location() string
}

// Pinger is implemented by backends that can check their connection.
type Pinger interface {
	Ping(ctx context.Context) error
}

// FileBacked is implemented by backends whose data lives in a single local
// path that can be copied for backups.
type FileBacked interface {
	Path() string
}
