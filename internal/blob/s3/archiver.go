package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/markettwin/internal/domain"
)

// RunArchiver implements domain.Archiver by serializing run artifacts and
// uploading them under runs/{run_id}/. Archival is strictly post-hoc: it
// reads finished-run data only and its failures never affect the run itself.
type RunArchiver struct {
	writer domain.BlobWriter
	logger *slog.Logger
}

// NewRunArchiver creates a RunArchiver writing through the given BlobWriter.
func NewRunArchiver(writer domain.BlobWriter, logger *slog.Logger) *RunArchiver {
	return &RunArchiver{
		writer: writer,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveRun uploads two objects: runs/{id}/summary.json with the run
// summary, and runs/{id}/trades.jsonl with one trade per line.
func (a *RunArchiver) ArchiveRun(ctx context.Context, summary domain.RunSummary, trades []domain.Trade) error {
	summaryJSON, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: marshal summary %s: %w", summary.RunID, err)
	}

	prefix := "runs/" + summary.RunID
	if err := a.writer.Put(ctx, prefix+"/summary.json",
		bytes.NewReader(summaryJSON), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive summary %s: %w", summary.RunID, err)
	}

	var tape bytes.Buffer
	enc := json.NewEncoder(&tape)
	for i := range trades {
		if err := enc.Encode(trades[i]); err != nil {
			return fmt.Errorf("s3blob: encode trade for run %s: %w", summary.RunID, err)
		}
	}
	if err := a.writer.Put(ctx, prefix+"/trades.jsonl",
		&tape, "application/x-ndjson"); err != nil {
		return fmt.Errorf("s3blob: archive trades %s: %w", summary.RunID, err)
	}

	a.logger.Info("run archived",
		slog.String("run_id", summary.RunID),
		slog.Int("trades", len(trades)),
	)
	return nil
}

// Compile-time interface check.
var _ domain.Archiver = (*RunArchiver)(nil)
