package app

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/article-harvester/internal/harvest"
	"github.com/JakeFAU/article-harvester/internal/sink"
	"github.com/JakeFAU/article-harvester/internal/source"
)

// Outcome is one processed record.
type Outcome struct {
	Document harvest.Document
	Result   sink.Result
	Err      error
}

// Summary counts what a Harvest call produced.
type Summary struct {
	Total        int
	Placeholders int
	WriteErrors  int
}

// Harvest streams records through the pipeline and stores every resulting
// document. report, when non-nil, sees each outcome as it completes. Writes
// outlive ctx so that items accepted before cancellation are still stored.
func (a *App) Harvest(ctx context.Context, records []source.Record, report func(Outcome)) Summary {
	in := make(chan harvest.Item)
	go func() {
		defer close(in)
		for _, rec := range records {
			select {
			case in <- rec.Item():
			case <-ctx.Done():
				return
			}
		}
	}()

	writeCtx := context.WithoutCancel(ctx)
	var sum Summary
	for doc := range a.runner.Run(ctx, in) {
		res, err := a.sink.Write(writeCtx, doc)
		sum.Total++
		if doc.Placeholder {
			sum.Placeholders++
		}
		if err != nil {
			sum.WriteErrors++
			a.logger.Error("document write failed", zap.String("url", doc.URL), zap.Error(err))
		}
		if report != nil {
			report(Outcome{Document: doc, Result: res, Err: err})
		}
	}
	a.logger.Info("harvest finished",
		zap.Int("records", len(records)),
		zap.Int("documents", sum.Total),
		zap.Int("placeholders", sum.Placeholders),
		zap.Int("write_errors", sum.WriteErrors),
	)
	return sum
}
