// Package notify watches the current user's unread notifications and keeps
// a live badge count, announcing genuinely new arrivals on the bus.
package notify

import (
	"context"
	"fmt"
	"sync"

	"github.com/minhbui/trovia/internal/bus"
	"github.com/minhbui/trovia/internal/realtime"
	"github.com/minhbui/trovia/internal/store"
	"go.uber.org/zap"
)

const notificationsCollection = "notifications"

// Source is the slice of the realtime client the notifier uses.
type Source interface {
	Watch(q realtime.Query, h realtime.Handler) (realtime.Detacher, error)
	Set(ctx context.Context, collection, docID string, data map[string]any, merge bool) error
	Delete(ctx context.Context, collection, docID string) error
}

// Notification is a read-only projection of a notification document.
type Notification struct {
	ID         string
	ReceiverID string
	SenderID   string
	Content    string
	Kind       string
	CreatedAt  int64
}

// Notifier subscribes to the unread notifications of one user. The first
// delivery is the backlog; only arrivals after that are announced as new,
// so reopening the app does not replay old toasts.
type Notifier struct {
	selfID string
	src    Source
	db     *store.DB
	bus    *bus.Bus
	logger *zap.Logger

	mu     sync.Mutex
	unread map[string]Notification
	primed bool // initial snapshot seen
	sub    realtime.Detacher
}

// New creates a notifier for the given user.
func New(selfID string, src Source, db *store.DB, b *bus.Bus, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{
		selfID: selfID,
		src:    src,
		db:     db,
		bus:    b,
		logger: logger,
		unread: make(map[string]Notification),
	}
}

// Start attaches the live subscription.
func (n *Notifier) Start() error {
	q := realtime.Query{Collection: notificationsCollection, OrderBy: "createdAt", Desc: true}.
		Where("receiverId", "==", n.selfID).
		Where("isRead", "==", false)
	sub, err := n.src.Watch(q, n.onChange)
	if err != nil {
		return fmt.Errorf("watch notifications: %w", err)
	}
	n.sub = sub
	return nil
}

// Stop detaches the subscription. Safe to call more than once.
func (n *Notifier) Stop() {
	if n.sub != nil {
		n.sub.Detach()
	}
}

func (n *Notifier) onChange(snapshot []realtime.Document, changes []realtime.Change, err error) {
	if err != nil {
		n.logger.Warn("notification subscription error", zap.Error(err))
		return
	}

	var fresh []Notification

	n.mu.Lock()
	if snapshot != nil {
		n.unread = make(map[string]Notification, len(snapshot))
		for _, d := range snapshot {
			n.unread[d.ID] = fromDoc(d)
		}
		n.primed = true
	}
	for _, ch := range changes {
		switch ch.Type {
		case realtime.Added:
			nt := fromDoc(ch.Doc)
			n.unread[nt.ID] = nt
			if n.primed {
				fresh = append(fresh, nt)
			}
		case realtime.Modified:
			n.unread[ch.Doc.ID] = fromDoc(ch.Doc)
		case realtime.Removed:
			// Leaving the unread query result set means it was read or
			// deleted either way the badge drops.
			delete(n.unread, ch.Doc.ID)
		}
	}
	count := len(n.unread)
	n.mu.Unlock()

	n.persist(snapshot, changes)

	if n.bus != nil {
		n.bus.Publish(bus.Event{Kind: "notify.count", Payload: count})
		for _, nt := range fresh {
			n.bus.Publish(bus.Event{Kind: "notify.new", Payload: nt})
		}
	}
}

func (n *Notifier) persist(snapshot []realtime.Document, changes []realtime.Change) {
	if n.db == nil {
		return
	}
	upsert := func(d realtime.Document, isRead bool) {
		nt := fromDoc(d)
		if err := n.db.UpsertNotification(&store.Notification{
			ID:         nt.ID,
			ReceiverID: nt.ReceiverID,
			SenderID:   nt.SenderID,
			Content:    nt.Content,
			Kind:       nt.Kind,
			IsRead:     isRead,
			CreatedAt:  nt.CreatedAt,
		}); err != nil {
			n.logger.Warn("cache notification", zap.String("id", nt.ID), zap.Error(err))
		}
	}
	for _, d := range snapshot {
		upsert(d, false)
	}
	for _, ch := range changes {
		if ch.Type == realtime.Removed {
			upsert(ch.Doc, true)
			continue
		}
		upsert(ch.Doc, false)
	}
}

// UnreadCount returns the current badge count.
func (n *Notifier) UnreadCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.unread)
}

// Unread returns the current unread notifications, unordered.
func (n *Notifier) Unread() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Notification, 0, len(n.unread))
	for _, nt := range n.unread {
		out = append(out, nt)
	}
	return out
}

// MarkRead flags one notification as read with a merge write; the
// subscription then drops it from the unread result set.
func (n *Notifier) MarkRead(ctx context.Context, id string) error {
	return n.src.Set(ctx, notificationsCollection, id, map[string]any{"isRead": true}, true)
}

// Delete removes a notification document entirely.
func (n *Notifier) Delete(ctx context.Context, id string) error {
	return n.src.Delete(ctx, notificationsCollection, id)
}

func fromDoc(d realtime.Document) Notification {
	return Notification{
		ID:         d.ID,
		ReceiverID: d.String("receiverId"),
		SenderID:   d.String("senderId"),
		Content:    d.String("content"),
		Kind:       d.String("type"),
		CreatedAt:  d.Int64("createdAt"),
	}
}
