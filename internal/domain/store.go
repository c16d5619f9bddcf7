package domain

import (
	"context"
	"io"
	"time"
)

// ListOpts carries standard pagination and time-range options.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OrderLogEntry is one audit record of a submitted trade action. The engine
// itself is stateless; the order log is an operator-facing trail kept by the
// hosting service, never consulted by the lifecycle logic.
type OrderLogEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// OrderLogStore records and queries the audit trail of submitted actions.
type OrderLogStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]OrderLogEntry, error)
	ListBefore(ctx context.Context, before time.Time) ([]OrderLogEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// BlobWriter uploads objects to blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// Archiver moves aged order-log records into blob storage.
type Archiver interface {
	ArchiveOrderLog(ctx context.Context, before time.Time) (int64, error)
}
