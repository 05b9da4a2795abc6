// Package gateway declares the ports through which the dashboard talks to its
// managed backend: table reads and writes, remote procedures, change feeds,
// object storage and user identity. Adapters live under internal/infrastructure.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"
)

// Table and column names used by the dashboard.
const (
	TableNotifications = "notifications"
	TableMessages      = "messages"
	TableUserRequests  = "user_requests"
	TableChannelViews  = "channel_views"

	ColumnUserID     = "user_id"
	ColumnReceiverID = "receiver_id"
	ColumnReadAt     = "read_at"
	ColumnRead       = "read"
	ColumnCreatedAt  = "created_at"
)

// ProcMonthlyViews is the remote procedure returning a creator's views for a month.
const ProcMonthlyViews = "get_total_monthly_views"

// Record is a single row as returned by the backend.
type Record map[string]any

// Decode copies the record into out using its JSON field tags.
func (r Record) Decode(out any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode record: %w", err)
	}
	return nil
}

// String returns the value of column as a string, or "" when absent.
func (r Record) String(column string) string {
	switch v := r[column].(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Op is a filter operator.
type Op string

// Supported filter operators.
const (
	OpEq     Op = "eq"
	OpIsNull Op = "is_null"
)

// Filter restricts a query or update to matching rows.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

// Eq builds an equality filter.
func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: OpEq, Value: value}
}

// IsNull builds a filter matching rows whose column is null.
func IsNull(column string) Filter {
	return Filter{Column: column, Op: OpIsNull}
}

// Matches reports whether r satisfies the filter.
func (f Filter) Matches(r Record) bool {
	v, ok := r[f.Column]
	switch f.Op {
	case OpEq:
		return ok && fmt.Sprint(v) == fmt.Sprint(f.Value)
	case OpIsNull:
		return !ok || v == nil
	default:
		return false
	}
}

// MatchesAll reports whether r satisfies every filter.
func MatchesAll(r Record, filters []Filter) bool {
	for _, f := range filters {
		if !f.Matches(r) {
			return false
		}
	}
	return true
}

// Order sorts query results by a column.
type Order struct {
	Column     string
	Descending bool
}

// Query describes a read against one table.
type Query struct {
	Table   string
	Columns []string // empty selects every column
	Filters []Filter
	Order   *Order
	Limit   int
}

// Records reads and writes rows in named tables.
type Records interface {
	Select(ctx context.Context, q Query) ([]Record, error)
	Update(ctx context.Context, table string, filters []Filter, values Record) error
	Insert(ctx context.Context, table string, values Record) (Record, error)
}

// Procedures invokes server-side functions.
type Procedures interface {
	// Call runs the named procedure and decodes its result into out.
	Call(ctx context.Context, name string, args map[string]any, out any) error
}

// Object is a blob to be written to storage.
type Object struct {
	Bucket      string
	Path        string
	ContentType string
	Body        io.Reader
}

// Storage stores blobs and issues public URLs for them.
type Storage interface {
	Upload(ctx context.Context, obj Object) error
	PublicURL(bucket, path string) string
}

// Identity updates the profile of the user owning accessToken.
type Identity interface {
	UpdateUserMetadata(ctx context.Context, accessToken string, data map[string]any) error
}

// ChangeKind tags a change event.
type ChangeKind string

// Change kinds delivered by a subscription.
const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// ChangeEvent is one row change delivered on a push channel.
type ChangeEvent struct {
	Kind            ChangeKind `json:"kind"`
	Table           string     `json:"table"`
	Record          Record     `json:"record,omitempty"`
	OldRecord       Record     `json:"old_record,omitempty"`
	CommitTimestamp time.Time  `json:"commit_timestamp"`
}

// Topic scopes a push channel to one table and an equality filter.
type Topic struct {
	Table  string
	Column string
	Value  string
}

// String returns the filter in "table:column=eq.value" form.
func (t Topic) String() string {
	return fmt.Sprintf("%s:%s=eq.%s", t.Table, t.Column, t.Value)
}

// Matches reports whether evt belongs to the topic. Deletes are matched on the old record.
func (t Topic) Matches(evt ChangeEvent) bool {
	if evt.Table != t.Table {
		return false
	}
	f := Eq(t.Column, t.Value)
	if evt.Record != nil && f.Matches(evt.Record) {
		return true
	}
	return evt.OldRecord != nil && f.Matches(evt.OldRecord)
}

// Subscription is an open push channel. Events are delivered in order on a single channel,
// which is closed when the subscription ends.
type Subscription interface {
	Events() <-chan ChangeEvent
	// Err is nil while open or after Close, and wraps errs.ErrSubscriptionDropped when the
	// remote side ended the channel.
	Err() error
	// Close releases the channel. Calling it more than once is a no-op.
	Close() error
}

// Changes opens push channels.
type Changes interface {
	Subscribe(ctx context.Context, topic Topic) (Subscription, error)
}
