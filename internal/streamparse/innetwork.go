package streamparse

import (
	"encoding/json"
	"fmt"
	"io"

	simdjson "github.com/minio/simdjson-go"

	"github.com/healthrates/mrf-engine/internal/model"
	"github.com/healthrates/mrf-engine/internal/pipeline"
)

// InNetworkShape distinguishes the standard array-of-items layout from a
// handler-declared custom_format the Handler Registry must preprocess.
type InNetworkShape int

const (
	InNetworkStandard InNetworkShape = iota
	InNetworkCustom
)

// ProviderGroupTable maps a provider_group_id to its resolved provider
// groups, built by ExtractProviderReferences and consumed by the Normalizer
// when a negotiated_rate defers to provider_references instead of inline
// provider_groups.
type ProviderGroupTable map[int][]model.RawProviderGroup

// ExtractProviderReferences streams r (expected to be the in-network file
// itself, read a first time) and returns the provider_group_id -> groups
// table together with the file's own root-level plan metadata scalars
// (plan_name, issuer_name, ...), captured in the same pass since both sit
// ahead of in_network in every file observed. This table is scoped to a
// single file and discarded once that file's in_network array has been
// processed.
func ExtractProviderReferences(r io.Reader, sourceFile string) (ProviderGroupTable, model.RawPlanMetadata, error) {
	dec := json.NewDecoder(r)
	table := ProviderGroupTable{}
	var meta model.RawPlanMetadata

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return table, meta, nil
		}
		return nil, meta, &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, meta, &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: fmt.Errorf("expected object root")}
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, meta, &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: err}
		}
		key, _ := keyTok.(string)

		switch key {
		case "reporting_entity_name":
			dec.Decode(&meta.ReportingEntityName)
		case "reporting_entity_type":
			dec.Decode(&meta.ReportingEntityType)
		case "plan_name":
			dec.Decode(&meta.PlanName)
		case "plan_id_type":
			dec.Decode(&meta.PlanIDType)
		case "plan_id":
			dec.Decode(&meta.PlanID)
		case "plan_market_type":
			dec.Decode(&meta.PlanMarketType)
		case "issuer_name":
			dec.Decode(&meta.IssuerName)
		case "plan_sponsor_name":
			dec.Decode(&meta.PlanSponsorName)
		case "last_updated_on":
			dec.Decode(&meta.LastUpdatedOn)
		case "version":
			dec.Decode(&meta.Version)

		case "provider_references":
			err = streamArray(dec, func() error {
				var ref model.RawProviderReference
				if err := dec.Decode(&ref); err != nil {
					return err
				}
				table[ref.ProviderGroupID] = ref.ProviderGroups
				return nil
			})
			if err != nil {
				return nil, meta, &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: err}
			}
			// in_network is the one field guaranteed to follow, and it's the
			// expensive one; nothing past this point is needed for this pass.
			return table, meta, nil

		case "in_network":
			// No provider_references section in this file.
			return table, meta, nil

		default:
			if err := skipValue(dec); err != nil {
				return nil, meta, &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: err}
			}
		}
	}

	return table, meta, nil
}

// IterateInNetwork streams r's in_network array and invokes yield once per
// item. It never buffers the whole array: each item is fully decoded, the
// callback runs, and the item is discarded before the next is read.
//
// whitelist restricts which billing codes are worth decoding at all. When
// simdjson is available on the host (UseSimd) and whitelist is non-empty,
// each element's raw bytes are checked for billing_code membership with
// simdjson before paying for a full encoding/json unmarshal; an item
// confidently outside the whitelist is passed to yield as a bare
// RawInNetworkItem carrying only BillingCode, which is enough for the
// Normalizer's whitelist check to reject it and count it correctly without
// ever decoding negotiated_rates. Any uncertainty in that fast path — simdjson
// unavailable, the element doesn't parse as an object, or the field is
// missing — falls open to the full decode, never to a silent drop.
//
// IterateInNetwork does not resolve provider_references — the Normalizer
// does that, consulting a ProviderGroupTable built by
// ExtractProviderReferences beforehand.
func IterateInNetwork(r io.Reader, sourceFile string, whitelist map[string]struct{}, yield func(model.RawInNetworkItem) error) error {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		if err == io.EOF {
			return nil
		}
		return &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: err}
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: fmt.Errorf("expected object root")}
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: err}
		}
		key, _ := keyTok.(string)

		if key != "in_network" {
			if err := skipValue(dec); err != nil {
				return &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: err}
			}
			continue
		}

		var pj *simdjson.ParsedJson
		prefilter := UseSimd && len(whitelist) > 0

		err = streamArray(dec, func() error {
			var raw json.RawMessage
			if err := dec.Decode(&raw); err != nil {
				return &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: err}
			}

			if prefilter {
				code, reparsed, ok := billingCodeSimd(raw, pj)
				pj = reparsed
				if ok && !whitelistAdmitsSimd(code, whitelist) {
					return yield(model.RawInNetworkItem{BillingCode: code})
				}
			}

			var item model.RawInNetworkItem
			if err := json.Unmarshal(raw, &item); err != nil {
				return &pipeline.ParseError{SourceFile: sourceFile, Offset: dec.InputOffset(), Err: err}
			}
			return yield(item)
		})
		if err != nil {
			if pe, ok := err.(*pipeline.ParseError); ok {
				return pe
			}
			return err // a yield error (e.g. context cancellation) propagates as-is
		}
		return nil
	}

	return nil
}

