// Package postgres reads and writes dashboard rows directly in the project database.
// Change events still come from the hosted realtime service, which follows the same tables.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"

	guuid "github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lllypuk/creatordash/internal/clock"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/gateway"
)

// DefaultSchema is the schema the hosted project keeps its tables in.
const DefaultSchema = "public"

// Store implements gateway.Records and gateway.Procedures over a pgx pool.
type Store struct {
	pool   *pgxpool.Pool
	schema string
	clock  clock.Clock
	logger *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithSchema sets the schema holding the tables and procedures.
func WithSchema(schema string) StoreOption {
	return func(s *Store) {
		if schema != "" {
			s.schema = schema
		}
	}
}

// WithClock sets the clock used for created_at defaults.
func WithClock(c clock.Clock) StoreOption {
	return func(s *Store) {
		s.clock = c
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a store over pool.
func NewStore(pool *pgxpool.Pool, opts ...StoreOption) *Store {
	s := &Store{
		pool:   pool,
		schema: DefaultSchema,
		clock:  clock.New(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Select implements gateway.Records.
func (s *Store) Select(ctx context.Context, q gateway.Query) ([]gateway.Record, error) {
	columns := "*"
	if len(q.Columns) > 0 {
		quoted := make([]string, len(q.Columns))
		for i, c := range q.Columns {
			quoted[i] = pgx.Identifier{c}.Sanitize()
		}
		columns = strings.Join(quoted, ", ")
	}

	var sql strings.Builder
	fmt.Fprintf(&sql, "SELECT %s FROM %s", columns, s.table(q.Table))

	where, args, err := whereClause(q.Filters, nil)
	if err != nil {
		return nil, err
	}
	sql.WriteString(where)

	if q.Order != nil {
		fmt.Fprintf(&sql, " ORDER BY %s", pgx.Identifier{q.Order.Column}.Sanitize())
		if q.Order.Descending {
			sql.WriteString(" DESC")
		}
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sql, " LIMIT %d", q.Limit)
	}

	rows, err := s.pool.Query(ctx, sql.String(), args...)
	if err != nil {
		return nil, HandlePgError(err, q.Table)
	}
	found, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, HandlePgError(err, q.Table)
	}

	out := make([]gateway.Record, 0, len(found))
	for _, m := range found {
		out = append(out, toRecord(m))
	}
	return out, nil
}

// Update implements gateway.Records.
func (s *Store) Update(ctx context.Context, table string, filters []gateway.Filter, values gateway.Record) error {
	if len(values) == 0 {
		return nil
	}

	columns := slices.Sorted(maps.Keys(values))
	sets := make([]string, len(columns))
	args := make([]any, 0, len(columns)+len(filters))
	for i, c := range columns {
		args = append(args, values[c])
		sets[i] = fmt.Sprintf("%s = $%d", pgx.Identifier{c}.Sanitize(), len(args))
	}

	where, args, err := whereClause(filters, args)
	if err != nil {
		return err
	}

	sql := fmt.Sprintf("UPDATE %s SET %s%s", s.table(table), strings.Join(sets, ", "), where)
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return HandlePgError(err, table)
	}

	s.logger.DebugContext(ctx, "rows updated",
		slog.String("table", table),
		slog.Int64("rows", tag.RowsAffected()),
	)
	return nil
}

// Insert implements gateway.Records. The database assigns the id; created_at defaults to now.
func (s *Store) Insert(ctx context.Context, table string, values gateway.Record) (gateway.Record, error) {
	row := maps.Clone(values)
	if row == nil {
		row = gateway.Record{}
	}
	if _, ok := row[gateway.ColumnCreatedAt]; !ok {
		// timestamptz carries microsecond precision.
		row[gateway.ColumnCreatedAt] = s.clock.Now().UTC().Truncate(time.Microsecond)
	}

	columns := slices.Sorted(maps.Keys(row))
	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		quoted[i] = pgx.Identifier{c}.Sanitize()
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = encodeValue(row[c])
	}

	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *",
		s.table(table), strings.Join(quoted, ", "), strings.Join(placeholders, ", "))

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, HandlePgError(err, table)
	}
	inserted, err := pgx.CollectExactlyOneRow(rows, pgx.RowToMap)
	if err != nil {
		return nil, HandlePgError(err, table)
	}
	return toRecord(inserted), nil
}

// Delete removes matching rows.
func (s *Store) Delete(ctx context.Context, table string, filters []gateway.Filter) error {
	where, args, err := whereClause(filters, nil)
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, "DELETE FROM "+s.table(table)+where, args...); err != nil {
		return HandlePgError(err, table)
	}
	return nil
}

// Call implements gateway.Procedures. Arguments are passed by name.
func (s *Store) Call(ctx context.Context, name string, args map[string]any, out any) error {
	params := slices.Sorted(maps.Keys(args))
	named := make([]string, len(params))
	values := make([]any, len(params))
	for i, p := range params {
		named[i] = fmt.Sprintf("%s => $%d", pgx.Identifier{p}.Sanitize(), i+1)
		values[i] = args[p]
	}

	sql := fmt.Sprintf("SELECT %s(%s)", pgx.Identifier{s.schema, name}.Sanitize(), strings.Join(named, ", "))

	var result any
	if err := s.pool.QueryRow(ctx, sql, values...).Scan(&result); err != nil {
		return HandlePgError(err, name)
	}
	if out == nil {
		return nil
	}

	data, err := json.Marshal(normalize(result))
	if err != nil {
		return fmt.Errorf("failed to encode procedure result: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode procedure result: %w", err)
	}
	return nil
}

// Ping checks the pool can reach the database.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return errs.Unavailable(fmt.Errorf("failed to ping postgres: %w", err))
	}
	return nil
}

func (s *Store) table(name string) string {
	return pgx.Identifier{s.schema, name}.Sanitize()
}

// whereClause renders filters as a WHERE clause, numbering placeholders after args.
func whereClause(filters []gateway.Filter, args []any) (string, []any, error) {
	if len(filters) == 0 {
		return "", args, nil
	}

	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		col := pgx.Identifier{f.Column}.Sanitize()
		switch f.Op {
		case gateway.OpEq:
			args = append(args, f.Value)
			conds = append(conds, fmt.Sprintf("%s = $%d", col, len(args)))
		case gateway.OpIsNull:
			conds = append(conds, col+" IS NULL")
		default:
			return "", nil, fmt.Errorf("%w: unsupported filter operator %q", errs.ErrInvalidInput, f.Op)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// encodeValue passes slices and maps as JSON so they land in jsonb columns.
func encodeValue(v any) any {
	switch v.(type) {
	case []any, []string, map[string]any:
		data, err := json.Marshal(v)
		if err != nil {
			return v
		}
		return string(data)
	default:
		return v
	}
}

func toRecord(m map[string]any) gateway.Record {
	rec := make(gateway.Record, len(m))
	for k, v := range m {
		rec[k] = normalize(v)
	}
	return rec
}

// normalize turns driver values into the shapes the REST adapter returns.
func normalize(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return guuid.UUID(t).String()
	case time.Time:
		return t.UTC()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}
