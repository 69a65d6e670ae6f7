package handler

import "github.com/healthrates/mrf-engine/internal/model"

// bcbsIL is the payer identifier this handler is registered under.
const bcbsIL = "bcbs-il"

// BCBSILHandler treats BCBS-IL's billing_code_type values — including a
// "LOCAL" vocabulary outside CPT/HCPCS — as opaque pass-through strings
// rather than normalizing them into a different vocabulary: pass through
// verbatim, never remap.
type BCBSILHandler struct{}

func NewBCBSILHandler() BCBSILHandler { return BCBSILHandler{} }

func (BCBSILHandler) Name() string { return bcbsIL }

// ParseInNetwork is the identity transform: BCBS-IL's billing_code_type is
// already a valid value for the Quality Gate (including "LOCAL"), so no
// field rewriting is needed. The handler exists to document the decision
// above and as the registration point should BCBS-IL specific adaptation
// prove necessary later.
func (BCBSILHandler) ParseInNetwork(item model.RawInNetworkItem) (model.RawInNetworkItem, error) {
	return item, nil
}

func (BCBSILHandler) PreprocessToc(entry TocEntryLike) TocEntryLike { return entry }
