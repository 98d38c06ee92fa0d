package usecase

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"time"

	"BarLake/internal/domain/models"
	"BarLake/internal/source"
	"BarLake/pkg/logger"
	"BarLake/pkg/util"
)

// ErrOutsideWindow reports a file whose rows all predate the recency window.
var ErrOutsideWindow = errors.New("all rows outside recency window")

// FileIngestor ingests every supported file of a directory, one batch per
// file, continuing past failures.
type FileIngestor struct {
	ingestor *Ingestor
	window   time.Duration
	now      func() time.Time
	logger   *logger.Logger
}

// DirSummary aggregates the outcome of a directory run.
type DirSummary struct {
	Files    int                    `json:"files"`
	Accepted int                    `json:"accepted"`
	Rejected int                    `json:"rejected"`
	Failed   int                    `json:"failed"`
	Stale    int                    `json:"stale"`
	Inserted int64                  `json:"inserted"`
	Reports  []*models.IngestReport `json:"reports"`
}

// NewFileIngestor keeps only rows dated within window of now; zero keeps
// everything.
func NewFileIngestor(ingestor *Ingestor, window time.Duration, l *logger.Logger) *FileIngestor {
	return &FileIngestor{ingestor: ingestor, window: window, now: time.Now, logger: l}
}

func (f *FileIngestor) IngestDir(ctx context.Context, dir string) (*DirSummary, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && source.Supported(d.Name()) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Strings(paths)

	summary := &DirSummary{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		summary.Files++

		report, err := f.IngestFile(ctx, path)
		if report != nil {
			summary.Reports = append(summary.Reports, report)
			summary.Inserted += report.Inserted()
		}
		switch {
		case errors.Is(err, ErrOutsideWindow):
			summary.Stale++
		case report == nil:
			summary.Failed++
			f.logger.Error("file skipped", logger.String("path", path), logger.Error(err))
		case !report.Accepted:
			summary.Rejected++
		case report.Success():
			summary.Accepted++
		default:
			summary.Failed++
		}
	}

	f.logger.Info("directory ingested",
		logger.String("dir", dir),
		logger.Int("files", summary.Files),
		logger.Int("accepted", summary.Accepted),
		logger.Int("rejected", summary.Rejected),
		logger.Int("failed", summary.Failed),
		logger.Int("stale", summary.Stale),
		logger.Int64("inserted", summary.Inserted),
	)
	return summary, nil
}

// IngestFile reads one file and ingests it as a single batch. A nil
// report means the file could not be read.
func (f *FileIngestor) IngestFile(ctx context.Context, path string) (*models.IngestReport, error) {
	raw, err := source.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return f.IngestRecent(ctx, raw)
}

// IngestRecent ingests the rows of raw dated inside the recency window. A
// batch whose rows all fall outside it is not ingested and yields
// ErrOutsideWindow alongside a report carrying the reason.
func (f *FileIngestor) IngestRecent(ctx context.Context, raw models.RawBatch) (*models.IngestReport, error) {
	kept := f.recent(raw)
	if len(raw.Rows) > 0 && len(kept.Rows) == 0 {
		f.logger.Info("batch skipped",
			logger.String("source", raw.Source),
			logger.Int("rows", len(raw.Rows)),
			logger.Duration("window", f.window),
		)
		return &models.IngestReport{
			Source: raw.Source,
			Rows:   len(raw.Rows),
			Reason: fmt.Sprintf("%d rows outside recency window %s", len(raw.Rows), f.window),
		}, ErrOutsideWindow
	}
	return f.ingestor.IngestBatch(ctx, kept)
}

// IngestRaw ingests an explicitly submitted batch as is; the recency
// window only applies to directory runs.
func (f *FileIngestor) IngestRaw(ctx context.Context, raw models.RawBatch) (*models.IngestReport, error) {
	return f.ingestor.IngestBatch(ctx, raw)
}

// recent drops rows dated before now-window. Rows whose date does not
// parse are kept so the cleaner and validator report them.
func (f *FileIngestor) recent(raw models.RawBatch) models.RawBatch {
	if f.window <= 0 {
		return raw
	}
	col := canonicalIndex(raw.Columns, models.ColDate)
	if col < 0 {
		return raw
	}
	cutoff := util.TruncateDay(f.now().UTC().Add(-f.window))

	out := raw
	out.Rows = make([][]*string, 0, len(raw.Rows))
	for _, r := range raw.Rows {
		if col < len(r) && r[col] != nil {
			if d, ok := util.ParseDate(*r[col]); ok && d.Before(cutoff) {
				continue
			}
		}
		out.Rows = append(out.Rows, r)
	}
	if dropped := len(raw.Rows) - len(out.Rows); dropped > 0 {
		f.logger.Debug("rows outside recency window dropped",
			logger.String("source", raw.Source),
			logger.Int("dropped", dropped),
		)
	}
	return out
}
