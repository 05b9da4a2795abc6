// Package notification holds the notification record shown in the dashboard bell menu.
package notification

import (
	"time"

	"github.com/lllypuk/creatordash/internal/domain/uuid"
)

// Notification is one entry of a creator's notification list.
type Notification struct {
	id        string
	userID    uuid.UUID
	title     string
	content   string
	createdAt time.Time
	read      bool
	time      string
}

// Reconstruct rebuilds a notification from backend data without validation.
func Reconstruct(
	id string,
	userID uuid.UUID,
	title, content string,
	createdAt time.Time,
	read bool,
) Notification {
	return Notification{
		id:        id,
		userID:    userID,
		title:     title,
		content:   content,
		createdAt: createdAt,
		read:      read,
	}
}

// WithTime returns a copy carrying the relative-time label computed when the
// notification entered the local list. The label is not refreshed afterwards.
func (n Notification) WithTime(label string) Notification {
	n.time = label
	return n
}

// MarkAsRead flags the notification as read. Marking twice is harmless.
func (n *Notification) MarkAsRead() {
	n.read = true
}

// ID returns the backend identifier.
func (n Notification) ID() string { return n.id }

// UserID returns the owning user.
func (n Notification) UserID() uuid.UUID { return n.userID }

// Title returns the short heading.
func (n Notification) Title() string { return n.title }

// Content returns the body text.
func (n Notification) Content() string { return n.content }

// CreatedAt returns the backend creation time.
func (n Notification) CreatedAt() time.Time { return n.createdAt }

// IsRead reports whether the notification has been read.
func (n Notification) IsRead() bool { return n.read }

// Time returns the relative-time label, e.g. "3h ago".
func (n Notification) Time() string { return n.time }

// AnyUnread reports whether at least one notification in list is unread.
func AnyUnread(list []Notification) bool {
	for _, n := range list {
		if !n.read {
			return true
		}
	}
	return false
}
