// Package diff detects structural changes between two values, reporting the
// changed fields of record-shaped values one level deep.
package diff

import "reflect"

// Delta maps each differing field to its (old, new) pair. A nil old value
// marks a field present only in the new record; a nil new value marks one
// present only in the old record.
type Delta map[string][2]any

// Result is the outcome of a comparison.
//
// Changed=false means the values are deeply equal. Changed=true with nil
// Fields means the values differ but neither is a record, so there is nothing
// finer to report. Otherwise Fields describes which keys differ; each entry
// holds the full old and new value at that key, not a nested delta.
type Result struct {
	Changed bool
	Fields  Delta
}

// Compare diffs a against b. It recurses through nested records to decide
// whether a key differs, but the emitted Fields are always one level deep
// from the values given here.
func Compare(a, b any) Result {
	if reflect.DeepEqual(a, b) {
		return Result{}
	}

	am, aok := asRecord(a)
	bm, bok := asRecord(b)
	if !aok || !bok {
		return Result{Changed: true}
	}

	fields := Delta{}
	for key, av := range am {
		bv, ok := bm[key]
		if !ok {
			fields[key] = [2]any{av, nil}
			continue
		}
		if sub := Compare(av, bv); sub.Changed {
			fields[key] = [2]any{av, bv}
		}
	}
	for key, bv := range bm {
		if _, ok := am[key]; !ok {
			fields[key] = [2]any{nil, bv}
		}
	}
	return Result{Changed: true, Fields: fields}
}

// asRecord reports whether v is record-shaped: any map with string keys,
// including named map types.
func asRecord(v any) (map[string]any, bool) {
	if m, ok := v.(map[string]any); ok {
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]any, rv.Len())
	for _, key := range rv.MapKeys() {
		out[key.String()] = rv.MapIndex(key).Interface()
	}
	return out, true
}
