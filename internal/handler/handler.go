// Package handler implements a name -> Handler lookup table populated at
// startup, falling back to a default handler for any payer identifier the
// registry doesn't recognize: a capability set satisfied by a plain value,
// looked up by string key rather than dispatched through a type hierarchy.
package handler

import "github.com/healthrates/mrf-engine/internal/model"

// Handler adapts one payer's structural variants into the canonical
// RawInNetworkItem shape the Normalizer consumes. Every handler implements
// both ParseInNetwork and PreprocessToc; a handler with no TOC
// preprocessing returns the entry unchanged from PreprocessToc.
type Handler interface {
	// Name identifies the handler for logging and the manifest.
	Name() string
	// ParseInNetwork adapts a raw decoded item before normalization. The
	// default handler returns items unchanged.
	ParseInNetwork(item model.RawInNetworkItem) (model.RawInNetworkItem, error)
	// PreprocessToc rewrites a discovered TOC entry's URL or metadata
	// before the Fetcher retrieves it, for payers whose index entries need
	// adjustment (e.g. a relative path that needs a payer-specific base
	// URL prepended). Returns the entry unchanged if nil logic applies.
	PreprocessToc(entry TocEntryLike) TocEntryLike
}

// TocEntryLike is the minimal shape a handler's PreprocessToc needs; kept
// as an interface here, rather than a direct streamparse.TocEntry
// reference, so this package's handlers stay agnostic of the Stream
// Parser's concrete entry struct and only depend on the two fields they
// actually touch.
type TocEntryLike interface {
	GetURL() string
	WithURL(string) TocEntryLike
}

// Registry is a read-only-after-startup name -> Handler map, consulted once
// per payer at pipeline start.
type Registry struct {
	handlers map[string]Handler
	def      Handler
}

// NewRegistry builds a Registry from a static table of handlers plus the
// default handler. Additional handlers compose the same way: call Register
// on the returned Registry before first use.
func NewRegistry() *Registry {
	r := &Registry{handlers: map[string]Handler{}, def: DefaultHandler{}}
	r.Register(NewBCBSILHandler())
	return r
}

// Register adds h to the table, keyed by h.Name(). Intended to be called
// only during startup, before any pipeline begins.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// For returns the handler registered for payerName, or the default handler
// if none is registered — unknown payer identifiers never fail lookup.
func (r *Registry) For(payerName string) Handler {
	if h, ok := r.handlers[payerName]; ok {
		return h
	}
	return r.def
}

// DefaultHandler passes every item through unchanged; it is what every
// payer gets unless a more specific handler is registered for its name.
type DefaultHandler struct{}

func (DefaultHandler) Name() string { return "default" }

func (DefaultHandler) ParseInNetwork(item model.RawInNetworkItem) (model.RawInNetworkItem, error) {
	return item, nil
}

func (DefaultHandler) PreprocessToc(entry TocEntryLike) TocEntryLike { return entry }
