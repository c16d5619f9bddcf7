package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/keirwatson/perpdesk/internal/domain"
)

// ArchiveImpl implements domain.Archiver: it drains aged order-log records
// into JSONL files on S3-compatible storage, partitioned by the cutoff
// month. Deletion from the primary store happens only after the upload
// succeeded, so a failed upload leaves the rows in place for the next run.
type ArchiveImpl struct {
	writer domain.BlobWriter
	log    domain.OrderLogStore
}

// NewArchiver creates an ArchiveImpl over the given writer and order log.
func NewArchiver(writer domain.BlobWriter, log domain.OrderLogStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		log:    log,
	}
}

// ArchiveOrderLog uploads every order-log entry older than the cutoff to
// archive/order_log/YYYY-MM.jsonl, deletes the archived rows, and records
// the archival itself in the log. It returns the number of archived
// entries; zero entries is a clean no-op.
func (a *ArchiveImpl) ArchiveOrderLog(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.log.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive order log query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive order log marshal: %w", err)
	}

	path := archivePath("order_log", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive order log upload: %w", err)
	}

	deleted, err := a.log.DeleteBefore(ctx, before)
	if err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive order log prune: %w", err)
	}

	if err := a.log.Log(ctx, "archive.order_log", map[string]any{
		"path":    path,
		"count":   len(entries),
		"deleted": deleted,
		"before":  before.Format(time.RFC3339),
	}); err != nil {
		return int64(len(entries)), fmt.Errorf("s3blob: archive order log record: %w", err)
	}

	return int64(len(entries)), nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ArchiveImpl)(nil)
