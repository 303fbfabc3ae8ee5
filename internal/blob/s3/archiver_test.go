package s3blob

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polyfolio/syncd/internal/domain"
)

type memWriter struct {
	puts map[string]string
	err  error
}

func (w *memWriter) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	b, _ := io.ReadAll(data)
	if w.puts == nil {
		w.puts = make(map[string]string)
	}
	w.puts[path] = string(b)
	return nil
}

func (w *memWriter) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return w.Put(ctx, path, data, "")
}

type memActivityStore struct {
	rows    []domain.TradeActivity
	deleted bool
	delErr  error
}

func (s *memActivityStore) ListBefore(ctx context.Context, before time.Time) ([]domain.TradeActivity, error) {
	var out []domain.TradeActivity
	for _, r := range s.rows {
		if r.Timestamp.Before(before) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memActivityStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	if s.delErr != nil {
		return 0, s.delErr
	}
	s.deleted = true
	var n int64
	for _, r := range s.rows {
		if r.Timestamp.Before(before) {
			n++
		}
	}
	return n, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleActivity(ts time.Time) domain.TradeActivity {
	return domain.TradeActivity{
		ID:              domain.ActivityID("0xabc", 0),
		MarketID:        "m1",
		TransactionHash: "0xabc",
		Wallet:          "0x1111111111111111111111111111111111111111",
		Side:            "BUY",
		Outcome:         "Yes",
		Price:           0.42,
		Size:            100,
		USDCSize:        42,
		Timestamp:       ts,
	}
}

func TestArchiveActivityExportsAndPrunes(t *testing.T) {
	cutoff := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	store := &memActivityStore{rows: []domain.TradeActivity{
		sampleActivity(cutoff.Add(-time.Hour)),
		sampleActivity(cutoff.Add(time.Hour)), // too new, stays
	}}
	writer := &memWriter{}
	arch := NewActivityArchiver(writer, store, discardLogger())

	count, err := arch.ArchiveActivity(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
	assert.True(t, store.deleted)

	body, ok := writer.puts["archive/trade_activity/2025-07.csv"]
	require.True(t, ok)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(activityCSVHeader, ","), lines[0])
	assert.Contains(t, lines[1], "0xabc-0")
	assert.Contains(t, lines[1], "0.42")
}

func TestArchiveActivityEmptyWindow(t *testing.T) {
	writer := &memWriter{}
	arch := NewActivityArchiver(writer, &memActivityStore{}, discardLogger())

	count, err := arch.ArchiveActivity(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.puts)
}

func TestArchiveActivityUploadFailureLeavesRows(t *testing.T) {
	cutoff := time.Now().UTC()
	store := &memActivityStore{rows: []domain.TradeActivity{
		sampleActivity(cutoff.Add(-time.Hour)),
	}}
	writer := &memWriter{err: errors.New("bucket unreachable")}
	arch := NewActivityArchiver(writer, store, discardLogger())

	_, err := arch.ArchiveActivity(context.Background(), cutoff)
	require.Error(t, err)
	assert.False(t, store.deleted)
}

func TestArchiveActivityPruneFailureStillReportsCount(t *testing.T) {
	cutoff := time.Now().UTC()
	store := &memActivityStore{
		rows:   []domain.TradeActivity{sampleActivity(cutoff.Add(-time.Hour))},
		delErr: errors.New("db down"),
	}
	arch := NewActivityArchiver(&memWriter{}, store, discardLogger())

	count, err := arch.ArchiveActivity(context.Background(), cutoff)
	require.Error(t, err)
	assert.Equal(t, int64(1), count)
}
