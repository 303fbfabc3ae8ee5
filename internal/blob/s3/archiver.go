package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/polyfolio/syncd/internal/domain"
)

// ActivityArchiveStore is the narrow slice of the activity store the archiver
// needs: read the aged rows, then prune them once the upload is confirmed.
type ActivityArchiveStore interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.TradeActivity, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ActivityArchiver implements domain.Archiver by exporting trade-activity
// rows older than the cutoff to CSV in object storage, then deleting them
// from the primary store. The delete only happens after a successful upload,
// so a failed run leaves the rows in place for the next attempt.
type ActivityArchiver struct {
	writer   domain.BlobWriter
	activity ActivityArchiveStore
	logger   *slog.Logger
}

// NewActivityArchiver creates an ActivityArchiver.
func NewActivityArchiver(writer domain.BlobWriter, activity ActivityArchiveStore, logger *slog.Logger) *ActivityArchiver {
	return &ActivityArchiver{
		writer:   writer,
		activity: activity,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveActivity exports all trade activity before the cutoff to
// archive/trade_activity/YYYY-MM.csv, prunes the exported rows, and returns
// the archived count.
func (a *ActivityArchiver) ArchiveActivity(ctx context.Context, before time.Time) (int64, error) {
	records, err := a.activity.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activity query: %w", err)
	}
	if len(records) == 0 {
		a.logger.InfoContext(ctx, "nothing to archive",
			slog.Time("before", before),
		)
		return 0, nil
	}

	buf, err := marshalActivityCSV(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive activity marshal: %w", err)
	}

	path := archivePath("trade_activity", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "text/csv"); err != nil {
		return 0, fmt.Errorf("s3blob: archive activity upload: %w", err)
	}

	deleted, err := a.activity.DeleteBefore(ctx, before)
	if err != nil {
		// The upload landed but the prune failed; the next run re-exports the
		// same rows to the same key, which is harmless.
		return int64(len(records)), fmt.Errorf("s3blob: archive activity prune: %w", err)
	}

	a.logger.InfoContext(ctx, "activity archived",
		slog.String("path", path),
		slog.Int("exported", len(records)),
		slog.Int64("pruned", deleted),
	)
	return int64(len(records)), nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time, e.g. archive/trade_activity/2025-01.csv.
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.csv", kind, before.Format("2006-01"))
}

var activityCSVHeader = []string{
	"id", "market_id", "transaction_hash", "outcome_index", "wallet",
	"side", "outcome", "price", "size", "usdc_size", "timestamp",
}

// marshalActivityCSV serialises trade-activity rows as CSV with a header row.
func marshalActivityCSV(records []domain.TradeActivity) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(activityCSVHeader); err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	for i, rec := range records {
		row := []string{
			rec.ID,
			rec.MarketID,
			rec.TransactionHash,
			strconv.Itoa(rec.OutcomeIndex),
			rec.Wallet,
			rec.Side,
			rec.Outcome,
			strconv.FormatFloat(rec.Price, 'f', -1, 64),
			strconv.FormatFloat(rec.Size, 'f', -1, 64),
			strconv.FormatFloat(rec.USDCSize, 'f', -1, 64),
			rec.Timestamp.UTC().Format(time.RFC3339),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("csv record %d: %w", i, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}
	return buf.Bytes(), nil
}

// Compile-time interface check.
var _ domain.Archiver = (*ActivityArchiver)(nil)
