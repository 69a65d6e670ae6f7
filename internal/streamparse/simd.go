package streamparse

import (
	simdjson "github.com/minio/simdjson-go"
)

// UseSimd gates on CPU capability: simdjson-go requires AVX2/AVX512, so on
// unsupported hardware the engine falls back to the pure-decoder path in
// innetwork.go without the operator needing to configure anything.
var UseSimd = simdjson.SupportedCPU()

// ParserName reports which decode path is active, for the manifest.
func ParserName() string {
	if UseSimd {
		return "simdjson"
	}
	return "stdlib"
}

// billingCodeSimd extracts the billing_code scalar from one in_network
// array element's raw bytes using simdjson instead of encoding/json,
// reusing pj's backing buffers across calls the way the teacher's
// scanInNetworkFileSimd reuses its *simdjson.ParsedJson. ok is false when
// the element doesn't parse as an object simdjson can walk or carries no
// billing_code field; callers must treat that as "undetermined", not "no
// match", and fall back to a full decode.
func billingCodeSimd(raw []byte, pj *simdjson.ParsedJson) (code string, reparsed *simdjson.ParsedJson, ok bool) {
	parsed, err := simdjson.Parse(raw, pj)
	if err != nil {
		return "", pj, false
	}

	found := false
	var s string
	parsed.ForEach(func(i simdjson.Iter) error {
		elem, err := i.FindElement(nil, "billing_code")
		if err != nil {
			return nil
		}
		v, err := elem.Iter.String()
		if err != nil {
			return nil
		}
		s, found = v, true
		return nil
	})
	if !found {
		return "", parsed, false
	}
	return s, parsed, true
}

// whitelistAdmitsSimd reports whether code (extracted via billingCodeSimd)
// is in whitelist, or whitelist is empty (nothing configured admits
// everything, matching normalize.Whitelist.Admits).
func whitelistAdmitsSimd(code string, whitelist map[string]struct{}) bool {
	if len(whitelist) == 0 {
		return true
	}
	_, ok := whitelist[code]
	return ok
}
