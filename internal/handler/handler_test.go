package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/healthrates/mrf-engine/internal/model"
)

func TestRegistry_ForReturnsRegisteredHandler(t *testing.T) {
	r := NewRegistry()
	h := r.For(bcbsIL)
	assert.Equal(t, bcbsIL, h.Name())
}

func TestRegistry_ForFallsBackToDefaultForUnknownPayer(t *testing.T) {
	r := NewRegistry()
	h := r.For("some-payer-nobody-registered")
	assert.Equal(t, "default", h.Name())
}

func TestRegistry_RegisterOverridesLookup(t *testing.T) {
	r := &Registry{handlers: map[string]Handler{}, def: DefaultHandler{}}
	r.Register(NewBCBSILHandler())
	assert.Equal(t, bcbsIL, r.For(bcbsIL).Name())
	assert.Equal(t, "default", r.For("unregistered").Name())
}

func TestDefaultHandler_ParseInNetworkIsIdentity(t *testing.T) {
	item := model.RawInNetworkItem{BillingCode: "99213", BillingCodeType: "CPT"}
	out, err := DefaultHandler{}.ParseInNetwork(item)
	require.NoError(t, err)
	assert.Equal(t, item, out)
}

func TestBCBSILHandler_PassesLocalBillingCodeTypeThroughVerbatim(t *testing.T) {
	item := model.RawInNetworkItem{BillingCode: "LOC001", BillingCodeType: "LOCAL"}
	out, err := BCBSILHandler{}.ParseInNetwork(item)
	require.NoError(t, err)
	assert.Equal(t, "LOCAL", out.BillingCodeType)
}

type fakeTocEntry struct {
	url string
}

func (e fakeTocEntry) GetURL() string { return e.url }
func (e fakeTocEntry) WithURL(url string) TocEntryLike {
	e.url = url
	return e
}

func TestDefaultHandler_PreprocessTocLeavesEntryUnchanged(t *testing.T) {
	entry := fakeTocEntry{url: "https://payer.example/file.json"}
	out := DefaultHandler{}.PreprocessToc(entry)
	assert.Equal(t, entry.GetURL(), out.GetURL())
}
