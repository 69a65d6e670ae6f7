package streamparse

import "encoding/json"

// skipValue consumes and discards the next JSON value from dec, however
// deeply nested, so unrecognized top-level keys never need to be
// unmarshaled.
func skipValue(dec *json.Decoder) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return nil // scalar value, already consumed
	}
	switch d {
	case '{', '[':
		for dec.More() {
			if d == '{' {
				if _, err := dec.Token(); err != nil { // key
					return err
				}
			}
			if err := skipValue(dec); err != nil {
				return err
			}
		}
		_, err := dec.Token() // closing delim
		return err
	}
	return nil
}

// streamArray expects dec to be positioned immediately before a JSON array
// and invokes fn once per element, consuming the opening and closing
// brackets itself: a single shared primitive instead of repeating the
// Token/More loop at every call site.
func streamArray(dec *json.Decoder, fn func() error) error {
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return nil
	}
	for dec.More() {
		if err := fn(); err != nil {
			return err
		}
	}
	_, err = dec.Token()
	return err
}
