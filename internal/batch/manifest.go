package batch

import (
	"encoding/json"
	"fmt"

	"github.com/healthrates/mrf-engine/internal/pipeline"
)

// WriteManifest encodes and atomically stores m at
// processing_statistics/<date>/<payer>.json, via whatever Backend the
// Batcher is configured with.
func WriteManifest(backend Backend, date string, m pipeline.PayerManifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	relPath := fmt.Sprintf("%s/%s.json", date, m.Payer)
	return backend.WriteManifest(relPath, data)
}
