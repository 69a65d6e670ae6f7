package orchestrator

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/healthrates/mrf-engine/internal/batch"
	"github.com/healthrates/mrf-engine/internal/config"
	"github.com/healthrates/mrf-engine/internal/fetch"
	"github.com/healthrates/mrf-engine/internal/handler"
	"github.com/healthrates/mrf-engine/internal/identity"
	"github.com/healthrates/mrf-engine/internal/model"
	"github.com/healthrates/mrf-engine/internal/normalize"
	"github.com/healthrates/mrf-engine/internal/pipeline"
	"github.com/healthrates/mrf-engine/internal/progress"
	"github.com/healthrates/mrf-engine/internal/quality"
	"github.com/healthrates/mrf-engine/internal/streamparse"
)

// Pipeline drives one payer's run through the state machine. Each payer
// owns its own dedup indexes, counters, and context handle — nothing here
// is shared with another payer's Pipeline.
type Pipeline struct {
	PayerName string
	IndexURL  string
	Fetcher   *fetch.Fetcher
	Registry  *handler.Registry
	Batcher   *batch.Batcher
	Budgets   Budgets
	Tracker   progress.Tracker

	whitelist normalize.Whitelist
	gate      *quality.Gate
	analytics *analyticsAccumulator
	state     State
	manifest  pipeline.PayerManifest

	filesProcessed int
	recordsInFile  int
	totalRecords   int64
	truncated      bool
	truncReason    string
}

// maxReasonableRateCeilings converts the configured billing_code -> ceiling
// map into decimals once per run, rather than on every candidate.
func maxReasonableRateCeilings(cfgCeilings map[string]float64) map[string]decimal.Decimal {
	if len(cfgCeilings) == 0 {
		return nil
	}
	ceilings := make(map[string]decimal.Decimal, len(cfgCeilings))
	for code, v := range cfgCeilings {
		ceilings[code] = decimal.NewFromFloat(v)
	}
	return ceilings
}

// Budgets mirrors the processing.* config keys that can truncate a run
// without failing it.
type Budgets struct {
	MaxFilesPerPayer  int
	MaxRecordsPerFile int
	MaxProcessingTime time.Duration
	MemoryThresholdMB int
}

// NewPipeline constructs a Pipeline for one payer from the run's Config.
func NewPipeline(payerName, indexURL string, f *fetch.Fetcher, registry *handler.Registry, batcher *batch.Batcher, cfg config.Config, tracker progress.Tracker) *Pipeline {
	maxProcTime, _ := time.ParseDuration(cfg.Processing.MaxProcessingTime)

	gate := &quality.Gate{Thresholds: quality.Thresholds{
		MinCompletenessPct: cfg.Processing.MinCompletenessPct,
		MinAccuracyScore:   cfg.Processing.MinAccuracyScore,
		MinRate:            decimal.NewFromFloat(cfg.QualityRules.Rates.MinRate),
		MaxRate:            decimal.NewFromFloat(cfg.QualityRules.Rates.MaxRate),
		MaxReasonableRates: maxReasonableRateCeilings(cfg.QualityRules.HighCostProcedures.MaxReasonableRates),
	}}

	return &Pipeline{
		PayerName: payerName,
		IndexURL:  indexURL,
		Fetcher:   f,
		Registry:  registry,
		Batcher:   batcher,
		Budgets: Budgets{
			MaxFilesPerPayer:  cfg.Processing.MaxFilesPerPayer,
			MaxRecordsPerFile: cfg.Processing.MaxRecordsPerFile,
			MaxProcessingTime: maxProcTime,
			MemoryThresholdMB: cfg.Processing.MemoryThresholdMB,
		},
		Tracker:   tracker,
		whitelist: normalize.NewWhitelist(cfg.CPTWhitelist),
		gate:      gate,
		analytics: newAnalyticsAccumulator(),
		state:     StateInit,
		manifest: pipeline.PayerManifest{
			Payer:     payerName,
			Parser:    streamparse.ParserName(),
			StartedAt: time.Now().UTC(),
		},
	}
}

// Run drives the pipeline from INIT to DONE, returning the final manifest.
// Run returns no error: a budget breach is recorded in the manifest's
// Truncated/TruncationReason fields, and any other failure of the TOC walk
// or the final flush (context cancellation included) in Failed/
// FailureReason, so one payer's trouble never aborts the run.
func (p *Pipeline) Run(ctx context.Context) pipeline.PayerManifest {
	var deadline <-chan time.Time
	if p.Budgets.MaxProcessingTime > 0 {
		timer := time.NewTimer(p.Budgets.MaxProcessingTime)
		defer timer.Stop()
		deadline = timer.C
	}

	p.state = StateFetchToc
	h := p.Registry.For(p.PayerName)

	pg := identity.PayerUUID(p.PayerName)

	err := p.walkToc(ctx, pg, h, deadline)
	if err != nil {
		if _, ok := err.(*pipeline.BudgetExceeded); !ok {
			p.manifest.Failed = true
			p.manifest.FailureReason = err.Error()
		}
	}

	p.state = StateFinalize
	for _, a := range p.analytics.Rollup(pg) {
		p.Batcher.AddAnalytics(a)
	}
	if flushErr := p.Batcher.Flush(); flushErr != nil && !p.manifest.Failed {
		p.manifest.Failed = true
		p.manifest.FailureReason = flushErr.Error()
	}
	p.manifest.PartitionsFailed = p.Batcher.PartitionsFailed()

	p.manifest.FinishedAt = time.Now().UTC()
	p.manifest.Truncated = p.truncated
	p.manifest.TruncationReason = p.truncReason
	p.manifest.Counters = p.gate.Counters
	p.manifest.RatesEmitted = p.gate.Counters.Admitted
	p.state = StateDone
	return p.manifest
}

func (p *Pipeline) walkToc(ctx context.Context, payerUUID string, h handler.Handler, deadline <-chan time.Time) error {
	stream, err := p.Fetcher.Open(ctx, p.IndexURL)
	if err != nil {
		return err
	}
	defer stream.Close()

	p.state = StateParseToc
	_, err = streamparse.IterateToc(stream, p.IndexURL, func(entry streamparse.TocEntry) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			p.truncated = true
			p.truncReason = "max_processing_time"
			return &pipeline.BudgetExceeded{Budget: "max_processing_time"}
		default:
		}

		if p.Budgets.MaxFilesPerPayer > 0 && p.filesProcessed >= p.Budgets.MaxFilesPerPayer {
			p.truncated = true
			p.truncReason = "max_files_per_payer"
			return &pipeline.BudgetExceeded{Budget: "max_files_per_payer"}
		}

		entry = h.PreprocessToc(entry).(streamparse.TocEntry)
		// A location still relative after preprocessing is resolved against
		// the TOC's own URL.
		if ref, rerr := url.Parse(entry.URL); rerr == nil && !ref.IsAbs() {
			if base, berr := url.Parse(p.IndexURL); berr == nil {
				entry.URL = base.ResolveReference(ref).String()
			}
		}

		p.manifest.FilesDiscovered++
		if ferr := p.processFile(ctx, payerUUID, h, entry); ferr != nil {
			if be, ok := ferr.(*pipeline.BudgetExceeded); ok {
				p.truncated = true
				p.truncReason = be.Budget
				return ferr
			}
			p.manifest.FilesFailed++
			return nil // file-level errors never abort the payer
		}
		p.filesProcessed++
		p.manifest.FilesProcessed++
		return nil
	})

	if be, ok := err.(*pipeline.BudgetExceeded); ok {
		return be
	}
	return err
}

func (p *Pipeline) processFile(ctx context.Context, payerUUID string, h handler.Handler, entry streamparse.TocEntry) error {
	p.state = StateFetchFile
	if p.Tracker != nil {
		p.Tracker.SetStage(fmt.Sprintf("fetching %s", entry.URL))
	}

	refs, fileMeta, err := p.extractRefs(ctx, entry.URL)
	if err != nil {
		return err
	}
	planMeta := mergePlanMetadata(entry, fileMeta)

	stream, err := p.Fetcher.Open(ctx, entry.URL)
	if err != nil {
		return err
	}
	defer stream.Close()

	p.state = StateParseFile
	p.recordsInFile = 0

	norm := &normalize.Normalizer{
		PayerUUID: payerUUID,
		PlanMeta:  planMeta,
		Whitelist: p.whitelist,
		Gate:      p.gate,
		Tracker:   p.Tracker,
	}

	return streamparse.IterateInNetwork(stream, entry.URL, p.whitelist, func(raw model.RawInNetworkItem) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if p.Budgets.MaxRecordsPerFile > 0 && p.recordsInFile >= p.Budgets.MaxRecordsPerFile {
			return &pipeline.BudgetExceeded{Budget: "max_records_per_file"}
		}

		item, herr := h.ParseInNetwork(raw)
		if herr != nil {
			return &pipeline.HandlerError{Payer: p.PayerName, Err: herr}
		}

		p.state = StateNormalizeFile
		norm.Normalize(item, refs, func(e normalize.Emitted) {
			p.state = StateWriteFile
			p.analytics.Observe(e.Rate)
			_ = p.Batcher.AddRate(e.Rate, e.Organization, e.Providers)
			p.totalRecords++

			if p.Budgets.MemoryThresholdMB > 0 {
				ceiling := int64(p.Budgets.MemoryThresholdMB) * 1024 * 1024
				if p.Batcher.EstimatedResidentBytes() > ceiling {
					_ = p.Batcher.Flush() // early flush; backpressures the next AddRate by freeing the queue
				}
			}
		})

		p.recordsInFile++
		return nil
	})
}

// extractRefs performs the two-pass provider_references resolution: a
// first read of the file builds the group_id -> group table, discarded
// once the second pass (processFile's IterateInNetwork call) has consumed
// it. The same pass also captures the file's own root-level plan metadata
// scalars, since both sit ahead of in_network. Files without a
// provider_references section yield an empty table at negligible cost.
func (p *Pipeline) extractRefs(ctx context.Context, url string) (streamparse.ProviderGroupTable, model.RawPlanMetadata, error) {
	stream, err := p.Fetcher.Open(ctx, url)
	if err != nil {
		return nil, model.RawPlanMetadata{}, err
	}
	defer stream.Close()
	return streamparse.ExtractProviderReferences(stream, url)
}

// mergePlanMetadata prefers the plan identifiers resolved during the TOC
// walk (entry), which are scoped to the exact reporting_plans block this
// file was discovered under, and falls back to the in-network file's own
// root-level scalars for fields the TOC shape doesn't carry (issuer_name,
// plan_market_type, plan_sponsor_name) or for shapes where entry carries
// fewer plan fields (legacy_blobs carries none; direct_in_network carries
// only a plan name, taken from reporting_entity_name).
func mergePlanMetadata(entry streamparse.TocEntry, fileMeta model.RawPlanMetadata) model.RawPlanMetadata {
	meta := fileMeta
	if entry.PlanName != "" {
		meta.PlanName = entry.PlanName
	}
	if entry.PlanIDType != "" {
		meta.PlanIDType = entry.PlanIDType
	}
	if entry.PlanID != "" {
		meta.PlanID = entry.PlanID
	}
	return meta
}
