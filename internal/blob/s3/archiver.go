package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/brianmcmichael/ajna-core/internal/domain"
)

// Archiver implements domain.Archiver by draining aged rows from the event
// and audit stores into JSONL objects in the bucket. Rows are pruned from
// the primary store only after the upload has succeeded, so a failed run
// leaves the database untouched and the next run picks up the same rows.
type Archiver struct {
	writer domain.BlobWriter
	events domain.EventStore
	audit  domain.AuditStore
	logger *slog.Logger
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver that uploads archive objects through the
// given writer.
func NewArchiver(writer domain.BlobWriter, events domain.EventStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		events: events,
		audit:  audit,
		logger: logger,
	}
}

// ArchiveEvents uploads every position event older than the cutoff to
// archive/events/YYYY-MM/<cutoff>.jsonl, deletes the archived rows, and
// records the run in the audit log. Returns the number of rows moved.
func (a *Archiver) ArchiveEvents(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.events.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events query: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	path := archivePath("events", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	count := int64(len(records))
	if _, err := a.events.DeleteBefore(ctx, before); err != nil {
		return 0, fmt.Errorf("s3blob: archive events prune: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.events", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive events audit log: %w", err)
	}

	if a.logger != nil {
		a.logger.InfoContext(ctx, "s3blob: archived events",
			slog.String("path", path),
			slog.Int64("count", count),
		)
	}
	return count, nil
}

// ArchiveAudit uploads every audit entry older than the cutoff to
// archive/audit/YYYY-MM/<cutoff>.jsonl and deletes the archived rows. The
// run itself is logged afterwards so the fresh entry never lands inside the
// window it just drained. Returns the number of rows moved.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before, 0)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))
	if _, err := a.audit.DeleteBefore(ctx, before); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit prune: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.audit", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit audit log: %w", err)
	}

	if a.logger != nil {
		a.logger.InfoContext(ctx, "s3blob: archived audit entries",
			slog.String("path", path),
			slog.Int64("count", count),
		)
	}
	return count, nil
}

// archivePath builds the object key for an archive file. Keys are
// partitioned by the year-month of the cutoff and named after the full
// cutoff timestamp, so a retry after a failed upload overwrites the same
// object instead of duplicating it:
//
//	archive/events/2026-08/20260801T000000Z.jsonl
//	archive/audit/2026-08/20260801T000000Z.jsonl
func archivePath(kind string, before time.Time) string {
	cutoff := before.UTC()
	return fmt.Sprintf("archive/%s/%s/%s.jsonl", kind, cutoff.Format("2006-01"), cutoff.Format("20060102T150405Z"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
