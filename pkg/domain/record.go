package domain

import (
	"encoding/json"
	"fmt"
)

// IntakeRecord is the structured data collected from the patient during a
// session. Fields keep their collection order; setting an existing field
// overwrites the value in place (a later correction supersedes an earlier
// answer) without changing its position. Fields are never removed.
//
// IntakeRecord is not safe for concurrent use. The session orchestrator
// serializes turns per session, so only one goroutine mutates a record.
type IntakeRecord struct {
	order  []string
	values map[string]any
}

// NewRecord creates an empty IntakeRecord.
func NewRecord() *IntakeRecord {
	return &IntakeRecord{values: make(map[string]any)}
}

// Set stores a field value, appending the field on first write and
// overwriting in place afterwards.
func (r *IntakeRecord) Set(field string, value any) {
	if r.values == nil {
		r.values = make(map[string]any)
	}
	if _, exists := r.values[field]; !exists {
		r.order = append(r.order, field)
	}
	r.values[field] = value
}

// Get returns the value for a field and whether it has been collected.
func (r *IntakeRecord) Get(field string) (any, bool) {
	v, ok := r.values[field]
	return v, ok
}

// Has reports whether a field has been collected.
func (r *IntakeRecord) Has(field string) bool {
	_, ok := r.values[field]
	return ok
}

// Len returns the number of collected fields.
func (r *IntakeRecord) Len() int {
	return len(r.order)
}

// Fields returns the field names in collection order.
func (r *IntakeRecord) Fields() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Missing returns the subset of wanted fields not yet collected,
// preserving the wanted order.
func (r *IntakeRecord) Missing(wanted []string) []string {
	var missing []string
	for _, f := range wanted {
		if !r.Has(f) {
			missing = append(missing, f)
		}
	}
	return missing
}

// Snapshot returns an independent copy of the record. Escalation and
// completion events carry snapshots so later turns cannot mutate them.
func (r *IntakeRecord) Snapshot() *IntakeRecord {
	cp := &IntakeRecord{
		order:  make([]string, len(r.order)),
		values: make(map[string]any, len(r.values)),
	}
	copy(cp.order, r.order)
	for k, v := range r.values {
		cp.values[k] = v
	}
	return cp
}

// recordEntry is the serialized form of one field. An array of entries keeps
// the collection order stable across marshal/unmarshal, which a plain JSON
// object would not.
type recordEntry struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// MarshalJSON encodes the record as an ordered array of field entries.
func (r *IntakeRecord) MarshalJSON() ([]byte, error) {
	entries := make([]recordEntry, 0, len(r.order))
	for _, f := range r.order {
		entries = append(entries, recordEntry{Field: f, Value: r.values[f]})
	}
	return json.Marshal(entries)
}

// UnmarshalJSON decodes the ordered array form.
func (r *IntakeRecord) UnmarshalJSON(data []byte) error {
	var entries []recordEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("intake record: %w", err)
	}
	r.order = nil
	r.values = make(map[string]any, len(entries))
	for _, e := range entries {
		r.Set(e.Field, e.Value)
	}
	return nil
}
