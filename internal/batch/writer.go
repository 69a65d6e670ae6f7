// Package batch implements per-entity bounded queues, columnar Parquet
// encoding, partitioned output paths, and the end-of-run
// processing_statistics manifest, flushed atomically via a
// temp-then-rename pattern.
package batch

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/parquet-go/parquet-go"

	"github.com/healthrates/mrf-engine/internal/model"
	"github.com/healthrates/mrf-engine/internal/pipeline"
	"github.com/healthrates/mrf-engine/internal/progress"
)

// maxWriteRetries mirrors the fetcher's retry budget (internal/fetch.maxRetries):
// a partition write gets this many retries beyond the first attempt before
// it is given up on as persistent.
const maxWriteRetries = 3

// npiCollisionCacheSize bounds the npi -> organization_uuid collision-
// detection index. Unlike orgs/providers, this index is never cleared by a
// Flush, so a single very long payer run touching millions of distinct NPIs
// would otherwise grow it without bound; eviction just means a very old
// collision can go undetected, which is an acceptable approximation for a
// warning-only check.
const npiCollisionCacheSize = 1_000_000

// Backend persists a finished partition file's bytes to its final
// location, abstracting over local disk and S3 so the Batcher itself never
// depends on either directly.
type Backend interface {
	// WritePartition stores data at the given partition-relative path
	// (e.g. "rates/payer=acme/date=2026-07-30/part-0001.parquet").
	WritePartition(relPath string, data []byte) error
	// WriteManifest stores a processing_statistics document.
	WriteManifest(relPath string, data []byte) error
}

// Entity names the four output tables.
type Entity string

const (
	EntityRates         Entity = "rates"
	EntityOrganizations Entity = "organizations"
	EntityProviders     Entity = "providers"
	EntityAnalytics     Entity = "analytics"
)

// DefaultQueueSize is the per-entity bounded queue row count before a flush
// is forced.
const DefaultQueueSize = 10000

// partition identifies one entity/payer/date partition; each gets its own
// mutex so concurrent pipelines writing different partitions never block
// each other, while writes to the same partition serialize.
type partitionKey struct {
	entity Entity
	payer  string
	date   string
}

// Batcher accumulates rows per entity and flushes partition files once the
// rates, organizations or providers queue reaches QueueSize rows, or on
// Flush.
type Batcher struct {
	Backend   Backend
	QueueSize int
	Payer     string
	Tracker   progress.Tracker // optional; receives duplicate-NPI collision warnings

	mu               sync.Mutex
	partMu           map[partitionKey]*sync.Mutex
	partSeq          map[partitionKey]int
	rates            []model.Rate
	orgs             map[string]model.Organization // deduped by organization_uuid within the batch window
	providers        map[string]model.Provider     // deduped by provider_uuid
	npiLastOrg       *lru.Cache[string, string]     // npi -> last organization_uuid seen, for collision detection
	analytics        []model.Analytics
	rowsWritten      int64
	partitionsFailed int64 // partitions that exhausted maxWriteRetries; read via PartitionsFailed
}

// PartitionsFailed reports how many partitions exhausted their write
// retries during this Batcher's lifetime. Consulted by the orchestrator to
// populate the run manifest without failing the whole payer.
func (b *Batcher) PartitionsFailed() int64 {
	return atomic.LoadInt64(&b.partitionsFailed)
}

// NewBatcher constructs a Batcher writing through backend on behalf of
// payer. queueSize <= 0 uses DefaultQueueSize.
func NewBatcher(backend Backend, payer string, queueSize int) *Batcher {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	npiCache, _ := lru.New[string, string](npiCollisionCacheSize)
	return &Batcher{
		Backend:    backend,
		QueueSize:  queueSize,
		Payer:      payer,
		partMu:     map[partitionKey]*sync.Mutex{},
		partSeq:    map[partitionKey]int{},
		orgs:       map[string]model.Organization{},
		providers:  map[string]model.Provider{},
		npiLastOrg: npiCache,
	}
}

// AddRate enqueues a rate row, along with the organization and providers it
// references (deduplicated against what this batch has already queued),
// flushing automatically once any queue reaches QueueSize.
func (b *Batcher) AddRate(rate model.Rate, org model.Organization, providers []model.Provider) error {
	b.mu.Lock()
	b.rates = append(b.rates, rate)
	if _, ok := b.orgs[org.OrganizationUUID]; !ok {
		b.orgs[org.OrganizationUUID] = org
	}
	var collisions []string
	for _, p := range providers {
		if _, ok := b.providers[p.ProviderUUID]; !ok {
			b.providers[p.ProviderUUID] = p
		}
		// Last-write-wins on a duplicate NPI seen under a different TIN
		// within this run: the cache simply takes the latest organization,
		// but we note the collision so it can be surfaced through the
		// run's progress tracker.
		if prevOrg, seen := b.npiLastOrg.Get(p.NPI); seen && prevOrg != p.OrganizationUUID {
			collisions = append(collisions, fmt.Sprintf("npi %s reassigned from organization %s to %s", p.NPI, prevOrg, p.OrganizationUUID))
		}
		b.npiLastOrg.Add(p.NPI, p.OrganizationUUID)
	}
	full := len(b.rates) >= b.QueueSize || len(b.orgs) >= b.QueueSize || len(b.providers) >= b.QueueSize
	b.mu.Unlock()

	if b.Tracker != nil {
		for _, c := range collisions {
			b.Tracker.LogWarning(c)
		}
	}

	if full {
		return b.Flush()
	}
	return nil
}

// AddAnalytics enqueues a rollup row computed by the orchestrator at end of
// run; analytics rows are not streamed, unlike rates/organizations/providers.
func (b *Batcher) AddAnalytics(a model.Analytics) {
	b.mu.Lock()
	b.analytics = append(b.analytics, a)
	b.mu.Unlock()
}

// EstimatedResidentBytes approximates current queued memory, consulted by
// the orchestrator's memory_threshold_mb backpressure check.
func (b *Batcher) EstimatedResidentBytes() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	const estRateBytes = 512
	const estOrgBytes = 128
	const estProviderBytes = 128
	return int64(len(b.rates))*estRateBytes + int64(len(b.orgs))*estOrgBytes + int64(len(b.providers))*estProviderBytes
}

// Flush writes whatever is queued to new partition files and clears the
// queues. Safe to call with empty queues (a no-op). A persistent write
// failure on one entity does not stop the others from being attempted: per
// the "only ConfigError is fatal" policy, a bad partition is isolated to
// itself rather than aborting the rest of the flush, and is recorded in
// PartitionsFailed rather than returned as a Flush error. Flush only
// returns an error for a failure outside that retry contract (e.g. Parquet
// encoding rejecting a row's shape), which does warrant failing the payer.
func (b *Batcher) Flush() error {
	b.mu.Lock()
	rates := b.rates
	b.rates = nil
	orgs := make([]model.Organization, 0, len(b.orgs))
	for _, o := range b.orgs {
		orgs = append(orgs, o)
	}
	b.orgs = map[string]model.Organization{}
	providers := make([]model.Provider, 0, len(b.providers))
	for _, p := range b.providers {
		providers = append(providers, p)
	}
	b.providers = map[string]model.Provider{}
	analytics := b.analytics
	b.analytics = nil
	b.mu.Unlock()

	date := time.Now().UTC().Format("2006-01-02")

	var errs []error
	record := func(err error) {
		if err == nil {
			return
		}
		var werr *pipeline.WriteError
		if errors.As(err, &werr) {
			return // already counted in partitionsFailed and warned via Tracker
		}
		errs = append(errs, err)
	}

	if len(rates) > 0 {
		err := b.writeEntity(EntityRates, date, rates)
		record(err)
		if err == nil {
			b.mu.Lock()
			b.rowsWritten += int64(len(rates))
			b.mu.Unlock()
		}
	}
	if len(orgs) > 0 {
		record(b.writeEntity(EntityOrganizations, date, orgs))
	}
	if len(providers) > 0 {
		record(b.writeEntity(EntityProviders, date, providers))
	}
	if len(analytics) > 0 {
		record(b.writeEntity(EntityAnalytics, date, analytics))
	}
	return errors.Join(errs...)
}

// writeEntity retries Backend.WritePartition up to maxWriteRetries times
// with exponential backoff and jitter (mirroring internal/fetch's retry
// shape). A still-failing write after the budget is exhausted is wrapped in
// a *pipeline.WriteError and counted in partitionsFailed rather than
// propagated as a reason to abandon the rest of the flush.
func (b *Batcher) writeEntity(entity Entity, date string, rows any) error {
	key := partitionKey{entity: entity, payer: b.Payer, date: date}

	b.mu.Lock()
	mu, ok := b.partMu[key]
	if !ok {
		mu = &sync.Mutex{}
		b.partMu[key] = mu
	}
	b.partSeq[key]++
	seq := b.partSeq[key]
	b.mu.Unlock()

	mu.Lock()
	defer mu.Unlock()

	data, err := encodeParquet(rows)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", entity, err)
	}

	relPath := filepath.Join(string(entity), fmt.Sprintf("payer=%s", b.Payer), fmt.Sprintf("date=%s", date), fmt.Sprintf("part-%04d.parquet", seq))

	var lastErr error
	for attempt := 0; attempt <= maxWriteRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(writeBackoffWithJitter(attempt))
		}
		if err := b.Backend.WritePartition(relPath, data); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	atomic.AddInt64(&b.partitionsFailed, 1)
	werr := &pipeline.WriteError{Partition: relPath, Attempts: maxWriteRetries + 1, Err: lastErr}
	if b.Tracker != nil {
		b.Tracker.LogWarning(werr.Error())
	}
	return werr
}

// writeBackoffWithJitter computes 2^attempt * 100ms plus up to 50% random
// jitter. Partition writes are local/object-store I/O rather than a remote
// HTTP fetch, so the base unit is much shorter than the fetcher's
// second-scale backoff.
func writeBackoffWithJitter(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	jitter := time.Duration(rand.Int63n(int64(base)/2 + 1))
	return base + jitter
}

// encodeParquet dispatches to the concrete GenericWriter for rows'
// underlying type, since parquet-go's generic writer must be instantiated
// with a concrete struct type at compile time.
func encodeParquet(rows any) ([]byte, error) {
	switch v := rows.(type) {
	case []model.Rate:
		return writeRows(v)
	case []model.Organization:
		return writeRows(v)
	case []model.Provider:
		return writeRows(v)
	case []model.Analytics:
		return writeRows(v)
	default:
		return nil, fmt.Errorf("unsupported row type %T", rows)
	}
}

func writeRows[T any](rows []T) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := parquet.NewGenericWriter[T](buf)
	if _, err := w.Write(rows); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// LocalBackend writes partitions beneath a root directory on local disk,
// using a temp-file-then-rename sequence so a reader never observes a
// partially written part file.
type LocalBackend struct {
	Root string
}

func (l LocalBackend) WritePartition(relPath string, data []byte) error {
	return atomicWrite(filepath.Join(l.Root, relPath), data)
}

func (l LocalBackend) WriteManifest(relPath string, data []byte) error {
	return atomicWrite(filepath.Join(l.Root, "processing_statistics", relPath), data)
}

func atomicWrite(finalPath string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(finalPath), 0o755); err != nil {
		return err
	}
	tmp := finalPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, finalPath)
}
