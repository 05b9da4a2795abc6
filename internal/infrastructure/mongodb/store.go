package mongodb

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"regexp"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/creatordash/internal/clock"
	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
	"github.com/lllypuk/creatordash/internal/infrastructure/changefeed"
)

// Column names of the channel_views collection.
const (
	columnDay   = "day"
	columnViews = "views"

	fieldMongoID = "_id"
	fieldRowID   = "id"
)

// Store implements gateway.Records and gateway.Procedures over a MongoDB database.
type Store struct {
	db        *mongo.Database
	publisher changefeed.Publisher
	clock     clock.Clock
	logger    *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithPublisher sets where row changes are announced.
func WithPublisher(p changefeed.Publisher) StoreOption {
	return func(s *Store) {
		s.publisher = p
	}
}

// WithClock sets the clock used for created_at defaults and commit timestamps.
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

// NewStore creates a store over db.
func NewStore(db *mongo.Database, opts ...StoreOption) *Store {
	s := &Store{
		db:        db,
		publisher: changefeed.NopPublisher{},
		clock:     clock.New(),
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// EnsureIndexes creates the indexes the dashboard queries rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	return CreateAllIndexes(ctx, s.db)
}

// Select implements gateway.Records.
func (s *Store) Select(ctx context.Context, q gateway.Query) ([]gateway.Record, error) {
	opts := options.Find().SetProjection(projection(q.Columns))
	if q.Order != nil {
		dir := 1
		if q.Order.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.Order.Column, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	filter, err := filterDoc(q.Filters)
	if err != nil {
		return nil, err
	}
	docs, err := s.find(ctx, q.Table, filter, opts)
	if err != nil {
		return nil, err
	}

	out := make([]gateway.Record, 0, len(docs))
	for _, doc := range docs {
		out = append(out, toRecord(doc))
	}
	return out, nil
}

// Update implements gateway.Records. The update applies to every row matching filters
// when it runs; rows read just before it are announced as update events, so a row that
// starts matching in between is updated without an event.
func (s *Store) Update(ctx context.Context, table string, filters []gateway.Filter, values gateway.Record) error {
	if len(values) == 0 {
		return nil
	}
	filter, err := filterDoc(filters)
	if err != nil {
		return err
	}

	old, err := s.find(ctx, table, filter, nil)
	if err != nil {
		return err
	}

	_, err = s.db.Collection(table).UpdateMany(ctx, filter, bson.M{"$set": bson.M(values)})
	if err != nil {
		return HandleMongoError(err, table)
	}

	now := s.clock.Now().UTC()
	events := make([]gateway.ChangeEvent, 0, len(old))
	for _, doc := range old {
		before := toRecord(doc)
		after := maps.Clone(before)
		maps.Copy(after, values)
		events = append(events, gateway.ChangeEvent{
			Kind:            gateway.ChangeUpdate,
			Table:           table,
			Record:          after,
			OldRecord:       before,
			CommitTimestamp: now,
		})
	}
	s.publish(ctx, events...)
	return nil
}

// Insert implements gateway.Records. Missing id and created_at columns are filled in.
func (s *Store) Insert(ctx context.Context, table string, values gateway.Record) (gateway.Record, error) {
	now := s.clock.Now().UTC()

	row := maps.Clone(values)
	if row == nil {
		row = gateway.Record{}
	}
	if _, ok := row[fieldRowID]; !ok {
		row[fieldRowID] = uuid.NewUUID().String()
	}
	if _, ok := row[gateway.ColumnCreatedAt]; !ok {
		// BSON dates carry millisecond precision.
		row[gateway.ColumnCreatedAt] = now.Truncate(time.Millisecond)
	}

	if _, err := s.db.Collection(table).InsertOne(ctx, bson.M(row)); err != nil {
		return nil, HandleMongoError(err, table)
	}

	s.publish(ctx, gateway.ChangeEvent{
		Kind:            gateway.ChangeInsert,
		Table:           table,
		Record:          maps.Clone(row),
		CommitTimestamp: now,
	})
	return row, nil
}

// Delete removes matching rows and announces each as a delete event.
func (s *Store) Delete(ctx context.Context, table string, filters []gateway.Filter) error {
	filter, err := filterDoc(filters)
	if err != nil {
		return err
	}

	old, err := s.find(ctx, table, filter, nil)
	if err != nil {
		return err
	}
	if len(old) == 0 {
		return nil
	}

	ids := make(bson.A, 0, len(old))
	for _, doc := range old {
		ids = append(ids, doc[fieldMongoID])
	}
	if _, err := s.db.Collection(table).DeleteMany(ctx, bson.M{fieldMongoID: bson.M{"$in": ids}}); err != nil {
		return HandleMongoError(err, table)
	}

	now := s.clock.Now().UTC()
	events := make([]gateway.ChangeEvent, 0, len(old))
	for _, doc := range old {
		events = append(events, gateway.ChangeEvent{
			Kind:            gateway.ChangeDelete,
			Table:           table,
			OldRecord:       toRecord(doc),
			CommitTimestamp: now,
		})
	}
	s.publish(ctx, events...)
	return nil
}

// Call implements gateway.Procedures.
func (s *Store) Call(ctx context.Context, name string, args map[string]any, out any) error {
	var (
		result any
		err    error
	)
	switch name {
	case gateway.ProcMonthlyViews:
		result, err = s.monthlyViews(ctx, args)
	default:
		return fmt.Errorf("procedure %s: %w", name, errs.ErrNotFound)
	}
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

// monthlyViews sums channel_views documents of p_user_id whose day falls in the month of
// p_month (YYYY-MM-DD).
func (s *Store) monthlyViews(ctx context.Context, args map[string]any) (int64, error) {
	userID, _ := args["p_user_id"].(string)
	month, _ := args["p_month"].(string)
	if userID == "" || len(month) < len("2006-01") {
		return 0, fmt.Errorf("%w: p_user_id and p_month are required", errs.ErrInvalidInput)
	}
	prefix := month[:len("2006-01")]

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			gateway.ColumnUserID: userID,
			columnDay:            bson.Regex{Pattern: "^" + regexp.QuoteMeta(prefix)},
		}}},
		{{Key: "$group", Value: bson.M{
			fieldMongoID: nil,
			"total":      bson.M{"$sum": bson.M{"$toLong": "$" + columnViews}},
		}}},
	}

	cursor, err := s.db.Collection(CollectionChannelViews).Aggregate(ctx, pipeline)
	if err != nil {
		return 0, HandleMongoError(err, CollectionChannelViews)
	}

	var rows []struct {
		Total int64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, HandleMongoError(err, CollectionChannelViews)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

func (s *Store) find(ctx context.Context, table string, filter bson.M, opts *options.FindOptionsBuilder) ([]bson.M, error) {
	if opts == nil {
		opts = options.Find()
	}
	cursor, err := s.db.Collection(table).Find(ctx, filter, opts)
	if err != nil {
		return nil, HandleMongoError(err, table)
	}

	var docs []bson.M
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, HandleMongoError(err, table)
	}
	return docs, nil
}

func (s *Store) publish(ctx context.Context, events ...gateway.ChangeEvent) {
	for _, evt := range events {
		if err := s.publisher.Publish(ctx, evt); err != nil {
			s.logger.WarnContext(ctx, "failed to publish change",
				slog.String("table", evt.Table),
				slog.String("kind", string(evt.Kind)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// filterDoc translates filters into a query document. A null filter also matches
// documents that lack the field.
func filterDoc(filters []gateway.Filter) (bson.M, error) {
	doc := bson.M{}
	for _, f := range filters {
		switch f.Op {
		case gateway.OpEq:
			doc[f.Column] = f.Value
		case gateway.OpIsNull:
			doc[f.Column] = nil
		default:
			return nil, fmt.Errorf("%w: unsupported filter operator %q on %s", errs.ErrInvalidInput, f.Op, f.Column)
		}
	}
	return doc, nil
}

func projection(columns []string) bson.D {
	proj := bson.D{{Key: fieldMongoID, Value: 0}}
	if len(columns) == 0 || slices.Contains(columns, "*") {
		return proj
	}
	for _, col := range columns {
		if col == fieldMongoID {
			continue
		}
		proj = append(proj, bson.E{Key: col, Value: 1})
	}
	return proj
}

// toRecord converts a decoded document into a Record, dropping the Mongo _id.
func toRecord(doc bson.M) gateway.Record {
	rec := make(gateway.Record, len(doc))
	for k, v := range doc {
		if k == fieldMongoID {
			continue
		}
		rec[k] = normalize(v)
	}
	return rec
}

func normalize(v any) any {
	switch t := v.(type) {
	case bson.DateTime:
		return t.Time().UTC()
	case bson.ObjectID:
		return t.Hex()
	case bson.M:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(t))
		for _, e := range t {
			out[e.Key] = normalize(e.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	default:
		return v
	}
}

var (
	_ gateway.Records    = (*Store)(nil)
	_ gateway.Procedures = (*Store)(nil)
)
