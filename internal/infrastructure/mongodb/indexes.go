// Package mongodb is the self-hosted backend: dashboard tables kept as MongoDB collections,
// with row changes announced on a change feed.
package mongodb

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/lllypuk/creatordash/internal/gateway"
)

// Collection names. Each dashboard table maps to the collection of the same name.
const (
	CollectionNotifications = gateway.TableNotifications
	CollectionMessages      = gateway.TableMessages
	CollectionUserRequests  = gateway.TableUserRequests
	CollectionChannelViews  = gateway.TableChannelViews
)

// IndexDefinition describes a MongoDB index to be created.
type IndexDefinition struct {
	Collection string
	Name       string
	Keys       bson.D
	Unique     bool
}

// CreateAllIndexes creates every index the dashboard queries rely on.
// It is idempotent.
func CreateAllIndexes(ctx context.Context, db *mongo.Database) error {
	for _, idx := range GetAllIndexDefinitions() {
		model := mongo.IndexModel{
			Keys:    idx.Keys,
			Options: options.Index().SetName(idx.Name).SetUnique(idx.Unique),
		}
		if _, err := db.Collection(idx.Collection).Indexes().CreateOne(ctx, model); err != nil {
			return fmt.Errorf("failed to create index %s on collection %s: %w", idx.Name, idx.Collection, err)
		}
	}
	return nil
}

// GetAllIndexDefinitions returns the index definitions for all collections.
func GetAllIndexDefinitions() []IndexDefinition {
	var indexes []IndexDefinition

	indexes = append(indexes, GetNotificationIndexes()...)
	indexes = append(indexes, GetMessageIndexes()...)
	indexes = append(indexes, GetUserRequestIndexes()...)
	indexes = append(indexes, GetChannelViewIndexes()...)

	return indexes
}

// GetNotificationIndexes returns index definitions for the notifications collection.
func GetNotificationIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			Collection: CollectionNotifications,
			Name:       "idx_notifications_id_unique",
			Keys:       bson.D{{Key: "id", Value: 1}},
			Unique:     true,
		},
		{
			// initial load: newest first per user
			Collection: CollectionNotifications,
			Name:       "idx_notifications_user_time",
			Keys:       bson.D{{Key: gateway.ColumnUserID, Value: 1}, {Key: gateway.ColumnCreatedAt, Value: -1}},
		},
	}
}

// GetMessageIndexes returns index definitions for the messages collection.
func GetMessageIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			Collection: CollectionMessages,
			Name:       "idx_messages_id_unique",
			Keys:       bson.D{{Key: "id", Value: 1}},
			Unique:     true,
		},
		{
			Collection: CollectionMessages,
			Name:       "idx_messages_receiver_unread",
			Keys:       bson.D{{Key: gateway.ColumnReceiverID, Value: 1}, {Key: gateway.ColumnReadAt, Value: 1}},
		},
	}
}

// GetUserRequestIndexes returns index definitions for the user_requests collection.
func GetUserRequestIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			Collection: CollectionUserRequests,
			Name:       "idx_user_requests_user",
			Keys:       bson.D{{Key: gateway.ColumnUserID, Value: 1}},
		},
	}
}

// GetChannelViewIndexes returns index definitions for the channel_views collection.
func GetChannelViewIndexes() []IndexDefinition {
	return []IndexDefinition{
		{
			Collection: CollectionChannelViews,
			Name:       "idx_channel_views_user_day",
			Keys:       bson.D{{Key: gateway.ColumnUserID, Value: 1}, {Key: columnDay, Value: 1}},
		},
	}
}
