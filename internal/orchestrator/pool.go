package orchestrator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/healthrates/mrf-engine/internal/batch"
	"github.com/healthrates/mrf-engine/internal/config"
	"github.com/healthrates/mrf-engine/internal/fetch"
	"github.com/healthrates/mrf-engine/internal/handler"
	"github.com/healthrates/mrf-engine/internal/pipeline"
	"github.com/healthrates/mrf-engine/internal/progress"
)

// Pool runs one Pipeline per configured payer, bounded to a fixed number of
// concurrent payers via golang.org/x/sync/errgroup for structured
// cancellation — but per-payer errors are captured into that payer's
// manifest rather than returned to the group, since a permanent failure on
// one payer must never cancel the others.
type Pool struct {
	Config   config.Config
	Registry *handler.Registry
	Backend  batch.Backend
	Progress progress.Manager
}

// Run launches one Pipeline per entry in Config.PayerEndpoints, bounded to
// Config.Processing.ParallelWorkers concurrent goroutines (4 when unset),
// and returns every payer's final manifest.
func (p *Pool) Run(ctx context.Context) []pipeline.PayerManifest {
	workers := p.Config.Processing.ParallelWorkers
	if workers <= 0 {
		workers = 4
	}

	type job struct {
		name string
		url  string
	}
	jobs := make([]job, 0, len(p.Config.PayerEndpoints))
	for name, url := range p.Config.PayerEndpoints {
		jobs = append(jobs, job{name: name, url: url})
	}

	results := make([]pipeline.PayerManifest, len(jobs))

	// A per-payer goroutine never returns its error to the group — it is
	// folded into that payer's own manifest instead — so one payer's
	// permanent failure can never cancel the group's shared context and
	// abort every other payer mid-run.
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, j := range jobs {
		i, j := i, j
		g.Go(func() error {
			f := fetch.New()
			batcher := batch.NewBatcher(p.Backend, j.name, p.Config.Processing.BatchSize)
			var tracker progress.Tracker
			if p.Progress != nil {
				tracker = p.Progress.NewTracker(i, len(jobs), j.name)
				batcher.Tracker = tracker
			}

			pl := NewPipeline(j.name, j.url, f, p.Registry, batcher, p.Config, tracker)
			m := pl.Run(gctx)
			if tracker != nil {
				tracker.Done()
			}

			if mmErr := batch.WriteManifest(p.Backend, m.FinishedAt.Format("2006-01-02"), m); mmErr != nil && !m.Failed {
				m.Failed = true
				m.FailureReason = mmErr.Error()
			}
			results[i] = m
			return nil
		})
	}

	_ = g.Wait() // never non-nil: no goroutine above returns an error
	if p.Progress != nil {
		p.Progress.Wait()
	}
	return results
}

// AllFailed reports whether no payer emitted any rates and every payer
// either shows Failed=true or finished truncated — the exit-code-3
// condition.
func AllFailed(manifests []pipeline.PayerManifest) bool {
	if len(manifests) == 0 {
		return false
	}
	for _, m := range manifests {
		if m.RatesEmitted > 0 {
			return false
		}
		if !m.Failed && m.RatesEmitted == 0 && !m.Truncated {
			return false
		}
	}
	return true
}

// ExitCode derives the process exit code from the run's manifests and
// whether the context was cancelled.
func ExitCode(ctx context.Context, manifests []pipeline.PayerManifest) pipeline.ExitCode {
	if ctx.Err() != nil {
		return pipeline.ExitCancelled
	}
	if AllFailed(manifests) {
		return pipeline.ExitAllFailed
	}
	return pipeline.ExitSuccess
}
