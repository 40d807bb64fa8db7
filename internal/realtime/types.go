// Package realtime is the client for the Trovia realtime document service:
// persistent queries against document collections that push an initial
// snapshot followed by incremental change events, plus document writes.
//
// Timestamps are unix milliseconds. A write may use ServerTimestamp as a
// field value; the service replaces it with the server clock at write time,
// which is what keeps message ordering monotonic across clients.
package realtime

// ServerTimestamp is the sentinel field value replaced by the server clock
// at write time.
const ServerTimestamp = "__server_ts__"

// Document is a read-only projection of a stored document.
type Document struct {
	ID         string         `json:"id"`
	Collection string         `json:"collection"`
	Data       map[string]any `json:"data"`
	UpdatedAt  int64          `json:"updated_at"`
}

// Int64 reads a numeric field as int64 (JSON numbers arrive as float64).
func (d Document) Int64(field string) int64 {
	switch v := d.Data[field].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// String reads a string field, empty when absent.
func (d Document) String(field string) string {
	s, _ := d.Data[field].(string)
	return s
}

// Bool reads a bool field, false when absent.
func (d Document) Bool(field string) bool {
	b, _ := d.Data[field].(bool)
	return b
}

// ChangeType classifies an incremental change event.
type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Removed  ChangeType = "removed"
)

// Change is one incremental change to a watched query's result set.
// FromCache marks events served from the service's local cache rather than
// confirmed server state.
type Change struct {
	Type      ChangeType `json:"change"`
	Doc       Document   `json:"doc"`
	FromCache bool       `json:"from_cache"`
}

// Filter is an equality/comparison predicate on a document field.
type Filter struct {
	Field string `json:"field"`
	Op    string `json:"op"` // "==", "<", "<=", ">", ">=", "array-contains"
	Value any    `json:"value"`
}

// Query selects documents from one collection.
type Query struct {
	Collection string   `json:"collection"`
	Filters    []Filter `json:"filters,omitempty"`
	OrderBy    string   `json:"order_by,omitempty"`
	Desc       bool     `json:"desc,omitempty"`
}

// Where appends an equality filter.
func (q Query) Where(field, op string, value any) Query {
	q.Filters = append(q.Filters, Filter{Field: field, Op: op, Value: value})
	return q
}

// Handler receives an initial snapshot (changes nil) and subsequent change
// batches (snapshot nil) for a watched query. err is non-nil when the
// subscription itself failed; the last-known-good state remains valid.
type Handler func(snapshot []Document, changes []Change, err error)

// Detacher tears down a subscription. Implementations are idempotent and
// guarantee the handler never fires after Detach returns.
type Detacher interface {
	Detach()
}
