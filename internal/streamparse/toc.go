// Package streamparse implements constant-memory, lazy iteration over TOC
// and in-network files, built on encoding/json.Decoder's Token/More API.
package streamparse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/healthrates/mrf-engine/internal/handler"
	"github.com/healthrates/mrf-engine/internal/pipeline"
)

// TocEntry is one resolved in-network (or allowed-amount) file reference
// discovered while walking a payer's table of contents.
type TocEntry struct {
	PlanName    string
	PlanIDType  string
	PlanID      string
	URL         string
	Description string
}

// GetURL and WithURL satisfy handler.TocEntryLike, letting a Handler rewrite
// a discovered entry's URL (e.g. a payer publishing relative paths that need
// a base URL prepended) before the Fetcher retrieves it.
func (e TocEntry) GetURL() string { return e.URL }

func (e TocEntry) WithURL(url string) handler.TocEntryLike {
	e.URL = url
	return e
}

// TocShape identifies which of the three observed TOC layouts a file uses.
type TocShape int

const (
	ShapeUnknown TocShape = iota
	ShapeStandardToc
	ShapeLegacyBlobs
	ShapeDirectInNetwork
)

// IterateToc streams r, an MRF table-of-contents document, and invokes yield
// once per discovered in-network file URL. It auto-detects three shapes:
// standard_toc (reporting_structure[]), legacy_blobs, and direct_in_network
// (the "file" is itself an in_network rates file, so the single entry is
// the file's own URL).
//
// IterateToc never aborts on an unrecognized key — it skips it — and wraps
// any decode failure as *pipeline.ParseError carrying the decoder's byte
// offset, so the caller can skip just this file and keep the payer alive.
func IterateToc(r io.Reader, sourceURL string, yield func(TocEntry) error) (shape TocShape, err error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return ShapeUnknown, nil
		}
		return ShapeUnknown, &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return ShapeUnknown, &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: fmt.Errorf("expected object root, got %v", tok)}
	}

	reportingEntityName := ""

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return shape, &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
		}
		key, _ := keyTok.(string)

		switch key {
		case "reporting_entity_name":
			var s string
			if err := dec.Decode(&s); err != nil {
				return shape, &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
			}
			reportingEntityName = s

		case "reporting_structure":
			shape = ShapeStandardToc
			if err := streamReportingStructure(dec, sourceURL, yield); err != nil {
				return shape, err
			}

		case "blobs":
			shape = ShapeLegacyBlobs
			if err := streamLegacyBlobs(dec, sourceURL, yield); err != nil {
				return shape, err
			}

		case "in_network":
			// This document is itself an in-network rates file, not a TOC.
			shape = ShapeDirectInNetwork
			if err := skipValue(dec); err != nil {
				return shape, &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
			}
			if err := yield(TocEntry{URL: sourceURL, PlanName: reportingEntityName}); err != nil {
				return shape, err
			}

		default:
			if err := skipValue(dec); err != nil {
				return shape, &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
			}
		}
	}

	return shape, nil
}

func streamReportingStructure(dec *json.Decoder, sourceURL string, yield func(TocEntry) error) error {
	if _, err := dec.Token(); err != nil { // consume '['
		return &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
	}
	for dec.More() {
		var entry struct {
			ReportingPlans []struct {
				PlanName   string `json:"plan_name"`
				PlanIDType string `json:"plan_id_type"`
				PlanID     string `json:"plan_id"`
			} `json:"reporting_plans"`
			InNetworkFiles []struct {
				Description string `json:"description"`
				Location    string `json:"location"`
			} `json:"in_network_files"`
			AllowedAmountFile *struct {
				Location string `json:"location"`
			} `json:"allowed_amount_file"`
		}
		if err := dec.Decode(&entry); err != nil {
			return &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
		}

		planName, planIDType, planID := "", "", ""
		if len(entry.ReportingPlans) > 0 {
			planName = entry.ReportingPlans[0].PlanName
			planIDType = entry.ReportingPlans[0].PlanIDType
			planID = entry.ReportingPlans[0].PlanID
		}

		seen := map[string]struct{}{}
		for _, f := range entry.InNetworkFiles {
			if f.Location == "" {
				continue
			}
			if _, dup := seen[f.Location]; dup {
				continue
			}
			seen[f.Location] = struct{}{}
			if err := yield(TocEntry{PlanName: planName, PlanIDType: planIDType, PlanID: planID, URL: f.Location, Description: f.Description}); err != nil {
				return err
			}
		}
	}
	if _, err := dec.Token(); err != nil { // consume ']'
		return &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
	}
	return nil
}

// streamLegacyBlobs handles the older flat "blobs" array shape some payers
// still publish, each entry directly naming a file URL.
func streamLegacyBlobs(dec *json.Decoder, sourceURL string, yield func(TocEntry) error) error {
	if _, err := dec.Token(); err != nil {
		return &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
	}
	for dec.More() {
		var blob struct {
			URL         string `json:"url"`
			Location    string `json:"location"`
			Description string `json:"description"`
		}
		if err := dec.Decode(&blob); err != nil {
			return &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
		}
		url := blob.URL
		if url == "" {
			url = blob.Location
		}
		if url == "" {
			continue
		}
		if err := yield(TocEntry{URL: url, Description: blob.Description}); err != nil {
			return err
		}
	}
	if _, err := dec.Token(); err != nil {
		return &pipeline.ParseError{SourceFile: sourceURL, Offset: dec.InputOffset(), Err: err}
	}
	return nil
}

// DetectShape inspects a document's leading bytes (whatever head the caller
// passes) for the key names that distinguish TOC shapes from a direct
// in-network file, without a full parse. The orchestrator does not call
// it; IterateToc detects the shape itself while streaming.
func DetectShape(head []byte) TocShape {
	s := string(head)
	switch {
	case strings.Contains(s, `"reporting_structure"`):
		return ShapeStandardToc
	case strings.Contains(s, `"blobs"`):
		return ShapeLegacyBlobs
	case strings.Contains(s, `"in_network"`):
		return ShapeDirectInNetwork
	default:
		return ShapeUnknown
	}
}
