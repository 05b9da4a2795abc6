package notification

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lllypuk/creatordash/internal/domain/notification"
	"github.com/lllypuk/creatordash/internal/domain/uuid"
	"github.com/lllypuk/creatordash/internal/gateway"
)

// rowID accepts both string and numeric primary keys.
type rowID string

func (id *rowID) UnmarshalJSON(data []byte) error {
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = rowID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("unsupported id %s: %w", data, err)
	}
	*id = rowID(n.String())
	return nil
}

// notificationRow is the shape of a notifications table row.
type notificationRow struct {
	ID        rowID     `json:"id"`
	UserID    string    `json:"user_id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Read      bool      `json:"read"`
}

func decodeNotification(rec gateway.Record) (notification.Notification, error) {
	var row notificationRow
	if err := rec.Decode(&row); err != nil {
		return notification.Notification{}, err
	}
	if row.ID == "" {
		return notification.Notification{}, errors.New("notification row has no id")
	}
	return notification.Reconstruct(
		string(row.ID),
		uuid.UUID(row.UserID),
		row.Title,
		row.Content,
		row.CreatedAt,
		row.Read,
	), nil
}
