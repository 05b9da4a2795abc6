// Package memory is an in-process backend used in mock mode and by tests. It implements
// every gateway port over maps and announces row changes to a change feed.
package memory

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/lllypuk/creatordash/internal/clock"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
	"github.com/lllypuk/creatordash/internal/infrastructure/changefeed"
)

// Operation names accepted by InjectError.
const (
	OpSelect     = "select"
	OpUpdate     = "update"
	OpInsert     = "insert"
	OpDelete     = "delete"
	OpCall       = "call"
	OpUpload     = "upload"
	OpUpdateUser = "update_user"
)

// ProcedureFunc implements a remote procedure against the backend's tables.
type ProcedureFunc func(ctx context.Context, b *Backend, args map[string]any) (any, error)

// Backend holds tables, objects and user metadata in memory.
type Backend struct {
	publisher changefeed.Publisher
	clock     clock.Clock
	logger    *slog.Logger
	publicURL string

	mu         sync.Mutex
	tables     map[string][]gateway.Record
	objects    map[string][]byte
	users      map[string]map[string]any
	procedures map[string]ProcedureFunc
	failures   map[string]error
	calls      map[string]int
}

// Option configures a Backend.
type Option func(*Backend)

// WithPublisher sets where row changes are announced.
func WithPublisher(p changefeed.Publisher) Option {
	return func(b *Backend) {
		b.publisher = p
	}
}

// WithClock sets the clock used for created_at defaults.
func WithClock(c clock.Clock) Option {
	return func(b *Backend) {
		b.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		b.logger = logger
	}
}

// WithPublicURL sets the prefix of URLs returned by PublicURL.
func WithPublicURL(base string) Option {
	return func(b *Backend) {
		b.publicURL = strings.TrimRight(base, "/")
	}
}

// WithProcedure registers a remote procedure.
func WithProcedure(name string, fn ProcedureFunc) Option {
	return func(b *Backend) {
		b.procedures[name] = fn
	}
}

// NewBackend creates an empty backend with the monthly-views procedure registered.
func NewBackend(opts ...Option) *Backend {
	b := &Backend{
		publisher:  changefeed.NopPublisher{},
		clock:      clock.New(),
		logger:     slog.Default(),
		publicURL:  "memory://storage",
		tables:     make(map[string][]gateway.Record),
		objects:    make(map[string][]byte),
		users:      make(map[string]map[string]any),
		procedures: map[string]ProcedureFunc{gateway.ProcMonthlyViews: monthlyViews},
		failures:   make(map[string]error),
		calls:      make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// InjectError makes every subsequent call of op fail with err. A nil err restores normal behavior.
func (b *Backend) InjectError(op string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		delete(b.failures, op)
		return
	}
	b.failures[op] = err
}

// Calls returns how many times op was invoked, failed calls included.
func (b *Backend) Calls(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

// Select implements gateway.Records.
func (b *Backend) Select(_ context.Context, q gateway.Query) ([]gateway.Record, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.enterLocked(OpSelect); err != nil {
		return nil, err
	}

	out := make([]gateway.Record, 0)
	for _, row := range b.tables[q.Table] {
		if gateway.MatchesAll(row, q.Filters) {
			out = append(out, project(row, q.Columns))
		}
	}

	if q.Order != nil {
		col, desc := q.Order.Column, q.Order.Descending
		slices.SortStableFunc(out, func(x, y gateway.Record) int {
			c := compareValues(x[col], y[col])
			if desc {
				return -c
			}
			return c
		})
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Update implements gateway.Records. Each changed row is announced as an update event.
func (b *Backend) Update(ctx context.Context, table string, filters []gateway.Filter, values gateway.Record) error {
	b.mu.Lock()
	if err := b.enterLocked(OpUpdate); err != nil {
		b.mu.Unlock()
		return err
	}

	var events []gateway.ChangeEvent
	now := b.clock.Now().UTC()
	for i, row := range b.tables[table] {
		if !gateway.MatchesAll(row, filters) {
			continue
		}
		old := maps.Clone(row)
		updated := maps.Clone(row)
		maps.Copy(updated, values)
		b.tables[table][i] = updated
		events = append(events, gateway.ChangeEvent{
			Kind:            gateway.ChangeUpdate,
			Table:           table,
			Record:          maps.Clone(updated),
			OldRecord:       old,
			CommitTimestamp: now,
		})
	}
	b.mu.Unlock()

	b.publish(ctx, events...)
	return nil
}

// Insert implements gateway.Records. Missing id and created_at columns are filled in.
func (b *Backend) Insert(ctx context.Context, table string, values gateway.Record) (gateway.Record, error) {
	b.mu.Lock()
	if err := b.enterLocked(OpInsert); err != nil {
		b.mu.Unlock()
		return nil, err
	}

	now := b.clock.Now().UTC()
	row := maps.Clone(values)
	if row == nil {
		row = gateway.Record{}
	}
	if _, ok := row["id"]; !ok {
		row["id"] = uuid.NewUUID().String()
	}
	if _, ok := row[gateway.ColumnCreatedAt]; !ok {
		row[gateway.ColumnCreatedAt] = now
	}
	b.tables[table] = append(b.tables[table], row)
	b.mu.Unlock()

	b.publish(ctx, gateway.ChangeEvent{
		Kind:            gateway.ChangeInsert,
		Table:           table,
		Record:          maps.Clone(row),
		CommitTimestamp: now,
	})
	return maps.Clone(row), nil
}

// Delete removes matching rows and announces each as a delete event.
func (b *Backend) Delete(ctx context.Context, table string, filters []gateway.Filter) error {
	b.mu.Lock()
	if err := b.enterLocked(OpDelete); err != nil {
		b.mu.Unlock()
		return err
	}

	var events []gateway.ChangeEvent
	now := b.clock.Now().UTC()
	kept := b.tables[table][:0]
	for _, row := range b.tables[table] {
		if gateway.MatchesAll(row, filters) {
			events = append(events, gateway.ChangeEvent{
				Kind:            gateway.ChangeDelete,
				Table:           table,
				OldRecord:       row,
				CommitTimestamp: now,
			})
			continue
		}
		kept = append(kept, row)
	}
	b.tables[table] = kept
	b.mu.Unlock()

	b.publish(ctx, events...)
	return nil
}

// Seed stores rows without announcing them.
func (b *Backend) Seed(table string, rows ...gateway.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, row := range rows {
		b.tables[table] = append(b.tables[table], maps.Clone(row))
	}
}

// Rows returns a copy of every row in table.
func (b *Backend) Rows(table string) []gateway.Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]gateway.Record, 0, len(b.tables[table]))
	for _, row := range b.tables[table] {
		out = append(out, maps.Clone(row))
	}
	return out
}

// Call implements gateway.Procedures.
func (b *Backend) Call(ctx context.Context, name string, args map[string]any, out any) error {
	b.mu.Lock()
	err := b.enterLocked(OpCall)
	fn, ok := b.procedures[name]
	b.mu.Unlock()

	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("procedure %s: %w", name, errs.ErrNotFound)
	}

	result, err := fn(ctx, b, args)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode procedure result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode procedure result: %w", err)
	}
	return nil
}

// Upload implements gateway.Storage.
func (b *Backend) Upload(_ context.Context, obj gateway.Object) error {
	var buf bytes.Buffer
	if obj.Body != nil {
		if _, err := io.Copy(&buf, obj.Body); err != nil {
			return fmt.Errorf("failed to read object body: %w", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.enterLocked(OpUpload); err != nil {
		return err
	}
	b.objects[obj.Bucket+"/"+obj.Path] = buf.Bytes()
	return nil
}

// PublicURL implements gateway.Storage.
func (b *Backend) PublicURL(bucket, path string) string {
	return b.publicURL + "/" + bucket + "/" + path
}

// Object returns a stored blob.
func (b *Backend) Object(bucket, path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, ok := b.objects[bucket+"/"+path]
	return data, ok
}

// UpdateUserMetadata implements gateway.Identity. Metadata is keyed by access token.
func (b *Backend) UpdateUserMetadata(_ context.Context, accessToken string, data map[string]any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.enterLocked(OpUpdateUser); err != nil {
		return err
	}
	if accessToken == "" {
		return errs.ErrUnauthorized
	}

	meta := b.users[accessToken]
	if meta == nil {
		meta = make(map[string]any)
		b.users[accessToken] = meta
	}
	maps.Copy(meta, data)
	return nil
}

// UserMetadata returns the metadata stored for accessToken.
func (b *Backend) UserMetadata(accessToken string) map[string]any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return maps.Clone(b.users[accessToken])
}

func (b *Backend) enterLocked(op string) error {
	b.calls[op]++
	if err := b.failures[op]; err != nil {
		return err
	}
	return nil
}

func (b *Backend) publish(ctx context.Context, events ...gateway.ChangeEvent) {
	for _, evt := range events {
		if err := b.publisher.Publish(ctx, evt); err != nil {
			b.logger.WarnContext(ctx, "failed to publish change",
				slog.String("table", evt.Table),
				slog.String("kind", string(evt.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func project(row gateway.Record, columns []string) gateway.Record {
	if len(columns) == 0 || slices.Contains(columns, "*") {
		return maps.Clone(row)
	}
	out := make(gateway.Record, len(columns))
	for _, col := range columns {
		if v, ok := row[col]; ok {
			out[col] = v
		}
	}
	return out
}

// compareValues orders times, numbers and strings; other values compare by their text.
func compareValues(a, b any) int {
	if ta, ok := asTime(a); ok {
		if tb, ok := asTime(b); ok {
			return ta.Compare(tb)
		}
	}
	if fa, ok := asFloat(a); ok {
		if fb, ok := asFloat(b); ok {
			return cmp.Compare(fa, fb)
		}
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func asTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		return parsed, err == nil
	default:
		return time.Time{}, false
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

var (
	_ gateway.Records    = (*Backend)(nil)
	_ gateway.Procedures = (*Backend)(nil)
	_ gateway.Storage    = (*Backend)(nil)
	_ gateway.Identity   = (*Backend)(nil)
)
