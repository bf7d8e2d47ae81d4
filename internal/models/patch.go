package models

import (
	"encoding/json"
	"sort"
)

// Patch is a partial AppState keyed by JSON field name. Applying it is a
// shallow merge: each key replaces the whole field.
type Patch map[string]any

// Keys returns the patch keys in sorted order.
func (p Patch) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Apply returns a copy of s with every key of p laid over it. Keys that are
// not AppState fields are kept in Extra. Keys whose value cannot be decoded
// into the matching field are left out of the result and returned in
// rejected; the rest of the patch still applies.
func (s AppState) Apply(p Patch) (next AppState, rejected []string) {
	next = s.Clone()
	for _, k := range p.Keys() {
		raw, err := json.Marshal(p[k])
		if err != nil {
			rejected = append(rejected, k)
			continue
		}

		if !IsKnownField(k) {
			if next.Extra == nil {
				next.Extra = make(map[string]json.RawMessage)
			}
			next.Extra[k] = raw
			continue
		}

		if err := next.setField(k, raw); err != nil {
			rejected = append(rejected, k)
		}
	}
	next.normalize()
	return next, rejected
}
