package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"invoice-intel/internal/domain"
	"invoice-intel/internal/domain/model"
	"invoice-intel/internal/domain/ports/adapter"
	"invoice-intel/internal/domain/ports/repository"
	"invoice-intel/internal/infra/metrics"
)

// Processor is the driver loop: it claims one job at a time, runs the
// pipeline over it, and applies the retry policy on failure. One job is in
// flight at any instant; redundancy across processes is safe because the
// claim itself is atomic.
type Processor struct {
	invoices repository.InvoiceRepository
	pipeline *Pipeline
	idle     time.Duration
	log      *zerolog.Logger
}

func NewProcessor(invoices repository.InvoiceRepository, pipeline *Pipeline, idle time.Duration, logger *zerolog.Logger) *Processor {
	if idle <= 0 {
		idle = 5 * time.Second
	}
	l := logger.With().Str("component", "Processor").Logger()
	return &Processor{invoices: invoices, pipeline: pipeline, idle: idle, log: &l}
}

// Start runs the loop until the context is cancelled. A processed job
// schedules the next claim immediately to drain the queue; an empty queue or
// a job failure waits one idle interval.
func (p *Processor) Start(ctx context.Context) {
	p.log.Info().Dur("idle_interval", p.idle).Msg("invoice processor started")
	for {
		if ctx.Err() != nil {
			p.log.Info().Msg("invoice processor stopping")
			return
		}
		if p.tick(ctx) {
			continue
		}
		select {
		case <-ctx.Done():
			p.log.Info().Msg("invoice processor stopping")
			return
		case <-time.After(p.idle):
		}
	}
}

// tick claims and processes at most one job. It reports whether the next
// claim should happen immediately.
func (p *Processor) tick(ctx context.Context) bool {
	inv, err := p.invoices.AcquireNext(ctx)
	if err != nil {
		if err == domain.ErrNotFound {
			metrics.IncClaim("empty")
			return false
		}
		metrics.IncClaim("error")
		p.log.Error().Err(err).Msg("claim failed")
		return false
	}
	metrics.IncClaim("claimed")

	if err := p.processOne(ctx, inv); err != nil {
		p.log.Error().Err(err).
			Str("invoice_id", inv.ID).
			Int("attempts", inv.Processing.Attempts).
			Str("status", string(inv.Status)).
			Msg("invoice job failed")
		return false
	}
	p.log.Info().
		Str("invoice_id", inv.ID).
		Int("attempts", inv.Processing.Attempts).
		Msg("invoice processed")
	return true
}

// processOne wraps one pipeline execution with the retry policy: a failed
// attempt increments the counter and either re-queues the job or parks it in
// the failed state once the ceiling is reached. The pipeline error is
// returned after the record is updated so the loop observes the true
// outcome.
func (p *Processor) processOne(ctx context.Context, inv *model.Invoice) error {
	start := time.Now()
	err := p.pipeline.Run(ctx, inv)
	if err == nil {
		metrics.IncInvoiceOutcome("processed")
		metrics.ObserveTerminalAttempts(inv.Processing.Attempts + 1)
		p.log.Info().Str("invoice_id", inv.ID).Dur("duration", time.Since(start)).Msg("pipeline completed")
		return nil
	}

	inv.Processing.Attempts++
	inv.Processing.LastError = err.Error()

	if inv.Processing.Attempts >= model.MaxAttempts {
		inv.Status = model.InvoiceStatusFailed
		inv.Processing.Stage = model.StageFailed
		metrics.IncInvoiceOutcome("failed")
		metrics.ObserveTerminalAttempts(inv.Processing.Attempts)
	} else {
		inv.Status = model.InvoiceStatusQueued
		inv.Processing.Stage = model.StageQueued
		inv.Processing.LockedAt = nil
		metrics.IncInvoiceOutcome("requeued")
	}

	// The terminal write must survive loop cancellation.
	if saveErr := p.invoices.Save(context.Background(), nil, inv); saveErr != nil {
		p.log.Error().Err(saveErr).Str("invoice_id", inv.ID).Msg("retry-policy save failed")
	}
	if inv.Status == model.InvoiceStatusFailed {
		p.pipeline.moveSourceFile(ctx, inv, adapter.FolderFailed)
	}
	return err
}
