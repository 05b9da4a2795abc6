package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lllypuk/creatordash/internal/domain/errs"
	"github.com/lllypuk/creatordash/internal/gateway"
)

// Phoenix channel events used by Supabase Realtime.
const (
	eventJoin      = "phx_join"
	eventLeave     = "phx_leave"
	eventReply     = "phx_reply"
	eventError     = "phx_error"
	eventClose     = "phx_close"
	eventHeartbeat = "heartbeat"
	eventChanges   = "postgres_changes"
	eventSystem    = "system"

	phoenixTopic = "phoenix"
	replyOK      = "ok"
)

// Default realtime settings.
const (
	DefaultHeartbeatInterval = 25 * time.Second
	defaultJoinTimeout       = 10 * time.Second
	defaultWriteWait         = 10 * time.Second
	defaultSchema            = "public"
	protocolVersion          = "1.0.0"
)

// phxMessage is a Phoenix channel frame (protocol version 1, JSON object form).
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     *string         `json:"ref"`
	JoinRef *string         `json:"join_ref,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinConfig struct {
	Broadcast       map[string]any `json:"broadcast"`
	Presence        map[string]any `json:"presence"`
	PostgresChanges []changeFilter `json:"postgres_changes"`
}

type joinPayload struct {
	Config      joinConfig `json:"config"`
	AccessToken string     `json:"access_token,omitempty"`
}

// changePayload is the body of a postgres_changes frame.
type changePayload struct {
	Data struct {
		Type            string         `json:"type"`
		Schema          string         `json:"schema"`
		Table           string         `json:"table"`
		Record          gateway.Record `json:"record"`
		OldRecord       gateway.Record `json:"old_record"`
		CommitTimestamp string         `json:"commit_timestamp"`
	} `json:"data"`
}

// Realtime implements gateway.Changes over Supabase Realtime. Each subscription owns one
// socket and one channel.
type Realtime struct {
	socketURL   string
	apiKey      string
	accessToken string
	schema      string
	heartbeat   time.Duration
	joinTimeout time.Duration
	dialer      *websocket.Dialer
	logger      *slog.Logger
}

// RealtimeOption configures Realtime.
type RealtimeOption func(*Realtime)

// WithRealtimeLogger sets the logger.
func WithRealtimeLogger(logger *slog.Logger) RealtimeOption {
	return func(r *Realtime) {
		r.logger = logger
	}
}

// WithHeartbeat overrides DefaultHeartbeatInterval.
func WithHeartbeat(d time.Duration) RealtimeOption {
	return func(r *Realtime) {
		if d > 0 {
			r.heartbeat = d
		}
	}
}

// WithJoinTimeout bounds the wait for the join reply.
func WithJoinTimeout(d time.Duration) RealtimeOption {
	return func(r *Realtime) {
		if d > 0 {
			r.joinTimeout = d
		}
	}
}

// WithSchema sets the database schema to listen on.
func WithSchema(schema string) RealtimeOption {
	return func(r *Realtime) {
		r.schema = schema
	}
}

// WithAccessToken sends a user token with joins so row-level security applies.
func WithAccessToken(token string) RealtimeOption {
	return func(r *Realtime) {
		r.accessToken = token
	}
}

// WithDialer sets the websocket dialer.
func WithDialer(d *websocket.Dialer) RealtimeOption {
	return func(r *Realtime) {
		r.dialer = d
	}
}

// NewRealtime creates a realtime client for the project at baseURL.
func NewRealtime(baseURL, apiKey string, opts ...RealtimeOption) (*Realtime, error) {
	socketURL, err := realtimeURL(baseURL, apiKey)
	if err != nil {
		return nil, err
	}

	r := &Realtime{
		socketURL:   socketURL,
		apiKey:      apiKey,
		schema:      defaultSchema,
		heartbeat:   DefaultHeartbeatInterval,
		joinTimeout: defaultJoinTimeout,
		dialer:      websocket.DefaultDialer,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.accessToken == "" {
		r.accessToken = apiKey
	}
	return r, nil
}

func realtimeURL(baseURL, apiKey string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid supabase url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid supabase url scheme %q", u.Scheme)
	}
	u.Path += "/realtime/v1/websocket"
	u.RawQuery = url.Values{"apikey": {apiKey}, "vsn": {protocolVersion}}.Encode()
	return u.String(), nil
}

// Subscribe dials the realtime socket, joins a postgres_changes channel for topic and
// returns once the server acknowledged the join.
func (r *Realtime) Subscribe(ctx context.Context, topic gateway.Topic) (gateway.Subscription, error) {
	conn, _, err := r.dialer.DialContext(ctx, r.socketURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: realtime dial: %w", errs.ErrBackendUnavailable, err)
	}

	ch := &channel{
		rt:    r,
		conn:  conn,
		topic: topic,
		name:  "realtime:" + topic.String(),
	}

	if err := ch.join(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	ch.stream = gateway.NewStream(0, ch.leave)
	go ch.readLoop()
	go ch.heartbeatLoop()

	r.logger.DebugContext(ctx, "realtime channel joined",
		slog.String("channel", ch.name),
	)
	return ch.stream, nil
}

// channel is one joined Phoenix channel on its own socket.
type channel struct {
	rt     *Realtime
	conn   *websocket.Conn
	topic  gateway.Topic
	name   string
	stream *gateway.Stream

	ref     atomic.Uint64
	joinRef string

	writeMu sync.Mutex
}

func (ch *channel) nextRef() string {
	return strconv.FormatUint(ch.ref.Add(1), 10)
}

func (ch *channel) send(topic, event string, payload any, joinRef string) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s payload: %w", event, err)
	}

	ref := ch.nextRef()
	msg := phxMessage{Topic: topic, Event: event, Payload: body, Ref: &ref}
	if joinRef != "" {
		msg.JoinRef = &joinRef
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	if err := ch.conn.SetWriteDeadline(time.Now().Add(defaultWriteWait)); err != nil {
		return "", err
	}
	if err := ch.conn.WriteJSON(msg); err != nil {
		return "", err
	}
	return ref, nil
}

func (ch *channel) join(ctx context.Context) error {
	payload := joinPayload{
		Config: joinConfig{
			Broadcast: map[string]any{"self": false},
			Presence:  map[string]any{"key": ""},
			PostgresChanges: []changeFilter{{
				Event:  "*",
				Schema: ch.rt.schema,
				Table:  ch.topic.Table,
				Filter: ch.topic.Column + "=eq." + ch.topic.Value,
			}},
		},
		AccessToken: ch.rt.accessToken,
	}

	ref, err := ch.send(ch.name, eventJoin, payload, "")
	if err != nil {
		return fmt.Errorf("%w: realtime join: %w", errs.ErrBackendUnavailable, err)
	}
	ch.joinRef = ref

	deadline := time.Now().Add(ch.rt.joinTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := ch.conn.SetReadDeadline(deadline); err != nil {
		return err
	}

	for {
		var msg phxMessage
		if err := ch.conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("%w: realtime join reply: %w", errs.ErrBackendUnavailable, err)
		}
		if msg.Event != eventReply || msg.Ref == nil || *msg.Ref != ref {
			continue
		}

		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("%w: realtime join reply: %w", errs.ErrBackendUnavailable, err)
		}
		if reply.Status != replyOK {
			return fmt.Errorf("%w: realtime join refused: %s", errs.ErrBackendRejected, string(reply.Response))
		}
		return ch.conn.SetReadDeadline(time.Time{})
	}
}

func (ch *channel) readLoop() {
	for {
		var msg phxMessage
		if err := ch.conn.ReadJSON(&msg); err != nil {
			ch.drop(err)
			return
		}

		switch msg.Event {
		case eventChanges:
			evt, err := decodeChange(msg.Payload)
			if err != nil {
				ch.rt.logger.Warn("failed to decode realtime change",
					slog.String("channel", ch.name),
					slog.String("error", err.Error()),
				)
				continue
			}
			if !ch.stream.Deliver(evt) {
				return
			}
		case eventError, eventClose:
			if msg.Topic == ch.name {
				ch.drop(fmt.Errorf("server sent %s", msg.Event))
				return
			}
		case eventSystem:
			ch.rt.logger.Debug("realtime system message",
				slog.String("channel", ch.name),
				slog.String("payload", string(msg.Payload)),
			)
		}
	}
}

func (ch *channel) heartbeatLoop() {
	ticker := time.NewTicker(ch.rt.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ch.stream.Done():
			return
		case <-ticker.C:
			if _, err := ch.send(phoenixTopic, eventHeartbeat, struct{}{}, ""); err != nil {
				ch.drop(err)
				return
			}
		}
	}
}

// drop ends the stream unless it is already ending.
func (ch *channel) drop(cause error) {
	select {
	case <-ch.stream.Done():
		return
	default:
	}
	ch.rt.logger.Warn("realtime channel dropped",
		slog.String("channel", ch.name),
		slog.String("error", cause.Error()),
	)
	ch.stream.Drop(cause)
}

// leave runs once when the stream ends.
func (ch *channel) leave() error {
	_, leaveErr := ch.send(ch.name, eventLeave, struct{}{}, ch.joinRef)

	ch.writeMu.Lock()
	_ = ch.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultWriteWait))
	ch.writeMu.Unlock()

	closeErr := ch.conn.Close()
	if errors.Is(leaveErr, websocket.ErrCloseSent) {
		leaveErr = nil
	}
	// A socket the server already closed has nothing left to release.
	if leaveErr != nil && ch.stream.Err() != nil {
		leaveErr = nil
	}
	return errors.Join(leaveErr, closeErr)
}

func decodeChange(raw json.RawMessage) (gateway.ChangeEvent, error) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return gateway.ChangeEvent{}, err
	}

	var kind gateway.ChangeKind
	switch strings.ToUpper(p.Data.Type) {
	case "INSERT":
		kind = gateway.ChangeInsert
	case "UPDATE":
		kind = gateway.ChangeUpdate
	case "DELETE":
		kind = gateway.ChangeDelete
	default:
		return gateway.ChangeEvent{}, fmt.Errorf("unknown change type %q", p.Data.Type)
	}

	evt := gateway.ChangeEvent{
		Kind:      kind,
		Table:     p.Data.Table,
		Record:    p.Data.Record,
		OldRecord: p.Data.OldRecord,
	}
	if ts, err := time.Parse(time.RFC3339Nano, p.Data.CommitTimestamp); err == nil {
		evt.CommitTimestamp = ts
	}
	return evt, nil
}

var _ gateway.Changes = (*Realtime)(nil)
