package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompare_Booleans(t *testing.T) {
	assert.False(t, Compare(false, false).Changed)
	assert.False(t, Compare(true, true).Changed)

	assert.Equal(t, Result{Changed: true}, Compare(false, true))
	assert.Equal(t, Result{Changed: true}, Compare(true, false))

	assert.Equal(t, Result{Changed: true}, Compare(true, 1))
	assert.Equal(t, Result{Changed: true}, Compare(false, 1))
}

func TestCompare_Numbers(t *testing.T) {
	assert.False(t, Compare(1, 1).Changed)
	assert.False(t, Compare(1.0, 1.0).Changed)

	assert.Equal(t, Result{Changed: true}, Compare(1, 2))
	assert.Equal(t, Result{Changed: true}, Compare(2.0, 1.0))
}

func TestCompare_Strings(t *testing.T) {
	assert.False(t, Compare("a test", "a test").Changed)
	assert.False(t, Compare("", "").Changed)

	assert.Equal(t, Result{Changed: true}, Compare("", "a test"))
	assert.Equal(t, Result{Changed: true}, Compare("a test 1", "a test"))
}

func TestCompare_Reflexive(t *testing.T) {
	for _, v := range []any{
		nil,
		42.0,
		"hello",
		map[string]any{"a": 1.0, "b": map[string]any{"c": "x"}},
		[]any{"one", 2.0},
	} {
		assert.False(t, Compare(v, v).Changed, "Compare(x, x) must report no change for %v", v)
	}
}

func record() map[string]any {
	return map[string]any{"a": 1.0, "b": true, "c": "string"}
}

func TestCompare_AddedField(t *testing.T) {
	added := record()
	added["e"] = "simple"

	got := Compare(record(), added)
	assert.True(t, got.Changed)
	assert.Equal(t, Delta{"e": {nil, "simple"}}, got.Fields)
}

func TestCompare_RemovedField(t *testing.T) {
	removed := record()
	delete(removed, "a")

	got := Compare(record(), removed)
	assert.True(t, got.Changed)
	assert.Equal(t, Delta{"a": {1.0, nil}}, got.Fields)
}

func TestCompare_ChangedFields(t *testing.T) {
	changed := record()
	changed["b"] = false
	changed["c"] = "new string"

	got := Compare(record(), changed)
	assert.True(t, got.Changed)
	assert.Equal(t, Delta{
		"b": {true, false},
		"c": {"string", "new string"},
	}, got.Fields)
}

func TestCompare_NestedRecordsReportWholeValues(t *testing.T) {
	a := map[string]any{"outer": map[string]any{"x": 1.0, "y": 2.0}, "same": "s"}
	b := map[string]any{"outer": map[string]any{"x": 1.0, "y": 3.0}, "same": "s"}

	got := Compare(a, b)
	assert.True(t, got.Changed)
	// The descriptor carries the full old/new sub-records, not a nested delta.
	assert.Equal(t, Delta{
		"outer": {map[string]any{"x": 1.0, "y": 2.0}, map[string]any{"x": 1.0, "y": 3.0}},
	}, got.Fields)
}

func TestCompare_NamedMapTypes(t *testing.T) {
	type attrs map[string]string
	got := Compare(attrs{"url": "http://a"}, attrs{"url": "http://b"})
	assert.True(t, got.Changed)
	assert.Equal(t, Delta{"url": {"http://a", "http://b"}}, got.Fields)
}

func TestCompare_RecordAgainstPrimitive(t *testing.T) {
	got := Compare(record(), "not a record")
	assert.True(t, got.Changed)
	assert.Nil(t, got.Fields)
}
