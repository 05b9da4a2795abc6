// Command notify writes a row through the configured backend so open dashboards receive it
// over their change feed. It is a development aid for exercising the push path end to end.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/creatordash/internal/config"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
	"github.com/lllypuk/creatordash/internal/infrastructure/changefeed"
	"github.com/lllypuk/creatordash/internal/infrastructure/mongodb"
	"github.com/lllypuk/creatordash/internal/infrastructure/postgres"
	"github.com/lllypuk/creatordash/internal/infrastructure/supabase"
)

const writeTimeout = 15 * time.Second

// Row kinds, one subcommand each.
const (
	kindNotification = "notification"
	kindMessage      = "message"
	kindViews        = "views"
)

// request is the row described on the command line.
type request struct {
	kind    string
	userID  uuid.UUID
	title   string
	content string
	sender  string
	day     string
	views   int
}

// opener connects to the backend rows are written to.
type opener func(ctx context.Context, logger *slog.Logger) (gateway.Records, func(), error)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	if err := newRootCmd(logger, openConfigured).Execute(); err != nil {
		logger.Error("notify failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, open opener) *cobra.Command {
	var user string

	cmd := &cobra.Command{
		Use:           "notify",
		Short:         "Insert dashboard rows through the configured backend",
		Long:          "Insert notification, message or channel view rows so open dashboards receive them over their change feed.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&user, "user", "u", "", "Target user id")
	_ = cmd.MarkPersistentFlagRequired("user")

	run := func(cmd *cobra.Command, req request) error {
		userID, err := uuid.ParseUUID(user)
		if err != nil {
			return fmt.Errorf("invalid user id %q: %w", user, err)
		}
		req.userID = userID

		ctx, cancel := context.WithTimeout(cmd.Context(), writeTimeout)
		defer cancel()

		records, closeFn, err := open(ctx, logger)
		if err != nil {
			return fmt.Errorf("failed to open backend: %w", err)
		}
		defer closeFn()

		row, err := insert(ctx, records, req)
		if err != nil {
			return fmt.Errorf("insert %s: %w", req.kind, err)
		}

		logger.InfoContext(ctx, "row inserted",
			slog.String("kind", req.kind),
			slog.String("user_id", userID.String()),
			slog.Any("id", row["id"]),
		)
		return nil
	}

	cmd.AddCommand(newNotificationCmd(run))
	cmd.AddCommand(newMessageCmd(run))
	cmd.AddCommand(newViewsCmd(run))
	return cmd
}

type runFunc func(cmd *cobra.Command, req request) error

func newNotificationCmd(run runFunc) *cobra.Command {
	req := request{kind: kindNotification}

	cmd := &cobra.Command{
		Use:   "notification",
		Short: "Insert an unread notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, req)
		},
	}
	cmd.Flags().StringVar(&req.title, "title", "New notification", "Notification title")
	cmd.Flags().StringVar(&req.content, "content", "", "Notification body")
	return cmd
}

func newMessageCmd(run runFunc) *cobra.Command {
	req := request{kind: kindMessage}

	cmd := &cobra.Command{
		Use:   "message",
		Short: "Insert an unread direct message",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, req)
		},
	}
	cmd.Flags().StringVar(&req.content, "content", "", "Message body")
	cmd.Flags().StringVar(&req.sender, "sender", "", "Sender user id")
	return cmd
}

func newViewsCmd(run runFunc) *cobra.Command {
	req := request{kind: kindViews}

	cmd := &cobra.Command{
		Use:   "views",
		Short: "Record channel views for a day",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, req)
		},
	}
	cmd.Flags().StringVar(&req.day, "day", time.Now().UTC().Format(time.DateOnly), "Day YYYY-MM-DD")
	cmd.Flags().IntVar(&req.views, "views", 1, "View count")
	return cmd
}

// openConfigured loads the config and connects to its backend.
func openConfigured(ctx context.Context, logger *slog.Logger) (gateway.Records, func(), error) {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	return openRecords(ctx, cfg, logger)
}

// openRecords connects to the configured backend. Mock mode has no shared state to write to.
func openRecords(ctx context.Context, cfg *config.Config, logger *slog.Logger) (gateway.Records, func(), error) {
	if cfg.App.IsMockMode() {
		return nil, nil, errors.New("mock mode keeps rows in the API process; run against a real backend")
	}

	switch {
	case strings.EqualFold(cfg.Backend.Type, config.BackendPostgres):
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		store := postgres.NewStore(pool,
			postgres.WithSchema(cfg.Supabase.Schema),
			postgres.WithLogger(logger),
		)
		return store, pool.Close, nil
	case !strings.EqualFold(cfg.Backend.Type, config.BackendMongoDB):
		client, err := supabase.NewClient(cfg.Supabase.URL, cfg.Supabase.APIKey(), supabase.WithLogger(logger))
		if err != nil {
			return nil, nil, err
		}
		return client, func() {}, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.MongoDB.URI))
	if err != nil {
		_ = rdb.Close()
		return nil, nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	feed := changefeed.NewRedisFeed(rdb,
		changefeed.WithLogger(logger),
		changefeed.WithChannelPrefix(cfg.Redis.ChannelPrefix),
	)
	store := mongodb.NewStore(client.Database(cfg.MongoDB.Database),
		mongodb.WithPublisher(feed),
		mongodb.WithLogger(logger),
	)

	closeFn := func() {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		_ = rdb.Close()
	}
	return store, closeFn, nil
}

// insert writes the row described by req.
func insert(ctx context.Context, records gateway.Records, req request) (gateway.Record, error) {
	switch req.kind {
	case kindNotification:
		if strings.TrimSpace(req.title) == "" {
			return nil, errors.New("title is required")
		}
		return records.Insert(ctx, gateway.TableNotifications, gateway.Record{
			gateway.ColumnUserID: req.userID.String(),
			"title":              req.title,
			"content":            req.content,
			gateway.ColumnRead:   false,
		})

	case kindMessage:
		row := gateway.Record{
			gateway.ColumnReceiverID: req.userID.String(),
			"content":                req.content,
			gateway.ColumnReadAt:     nil,
		}
		if req.sender != "" {
			row["sender_id"] = req.sender
		}
		return records.Insert(ctx, gateway.TableMessages, row)

	case kindViews:
		if _, err := time.Parse(time.DateOnly, req.day); err != nil {
			return nil, fmt.Errorf("invalid day %q: %w", req.day, err)
		}
		if req.views < 0 {
			return nil, errors.New("views must not be negative")
		}
		return records.Insert(ctx, gateway.TableChannelViews, gateway.Record{
			gateway.ColumnUserID: req.userID.String(),
			"day":                req.day,
			"views":              req.views,
		})

	default:
		return nil, fmt.Errorf("unknown kind %q", req.kind)
	}
}
