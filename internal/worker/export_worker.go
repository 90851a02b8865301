package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"fintrack/internal/amqp"
	"fintrack/internal/core"
	"fintrack/internal/ledger"
	"fintrack/internal/services"
)

// SummaryReader computes an owner's summary. *services.ReportingService
// implements it.
type SummaryReader interface {
	GetSummary(ctx context.Context, req services.SummaryRequest) (core.Summary, error)
}

// SummaryExporter writes a summary somewhere outside the ledger.
// *google.Exporter implements it.
type SummaryExporter interface {
	ExportSummary(ctx context.Context, ownerID string, s core.Summary) (string, error)
}

// ExportWorker keeps exported summaries in step with the ledger. Events
// trigger a re-export for one owner; ExportAll refreshes every owner.
type ExportWorker struct {
	reports     SummaryReader
	exporter    SummaryExporter
	owners      ledger.OwnerLister
	concurrency int
}

func NewExportWorker(reports SummaryReader, exporter SummaryExporter, owners ledger.OwnerLister, concurrency int) *ExportWorker {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ExportWorker{
		reports:     reports,
		exporter:    exporter,
		owners:      owners,
		concurrency: concurrency,
	}
}

// HandleLedgerEvent re-exports the summary of the event's owner. A returned
// error makes the consumer requeue the message.
func (w *ExportWorker) HandleLedgerEvent(ctx context.Context, event *amqp.LedgerEvent) error {
	slog.InfoContext(ctx, "Processing ledger event",
		"event_type", event.Type,
		"owner_id", event.OwnerID)

	if err := w.ExportOwner(ctx, event.OwnerID); err != nil {
		return fmt.Errorf("handle %s: %w", event.Type, err)
	}
	return nil
}

// ExportOwner recomputes and exports one owner's summary.
func (w *ExportWorker) ExportOwner(ctx context.Context, ownerID string) error {
	sum, err := w.reports.GetSummary(ctx, services.SummaryRequest{OwnerID: ownerID})
	if err != nil {
		return fmt.Errorf("compute summary: %w", err)
	}

	rng, err := w.exporter.ExportSummary(ctx, ownerID, sum)
	if err != nil {
		return fmt.Errorf("export summary: %w", err)
	}

	slog.InfoContext(ctx, "Successfully exported summary",
		"owner_id", ownerID,
		"sheet_range", rng)
	return nil
}

// ExportAll exports every owner with at most concurrency exports in flight.
// One owner failing does not stop the others; all failures are joined.
func (w *ExportWorker) ExportAll(ctx context.Context) (int, error) {
	owners, err := w.owners.ListOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}
	if len(owners) == 0 {
		slog.InfoContext(ctx, "No owners to export")
		return 0, nil
	}

	slog.InfoContext(ctx, "Exporting summaries", "owners", len(owners), "concurrency", w.concurrency)

	errs := make([]error, len(owners))
	var g errgroup.Group
	g.SetLimit(w.concurrency)
	for i, owner := range owners {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return nil
			}
			if err := w.ExportOwner(ctx, owner); err != nil {
				slog.ErrorContext(ctx, "Failed to export summary", "owner_id", owner, "error", err)
				errs[i] = fmt.Errorf("owner %s: %w", owner, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	exported := 0
	for _, err := range errs {
		if err == nil {
			exported++
		}
	}

	slog.InfoContext(ctx, "Export completed", "exported", exported, "failed", len(owners)-exported)
	return exported, errors.Join(errs...)
}

// RunPeriodic calls ExportAll every interval until ctx ends.
func (w *ExportWorker) RunPeriodic(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ExportAll(ctx); err != nil {
				slog.WarnContext(ctx, "Periodic export finished with errors", "error", err)
			}
		}
	}
}
