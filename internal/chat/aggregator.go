package chat

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/minhbui/trovia/internal/blob"
	"github.com/minhbui/trovia/internal/bus"
	"github.com/minhbui/trovia/internal/metrics"
	"github.com/minhbui/trovia/internal/realtime"
	"github.com/minhbui/trovia/internal/rest"
	"github.com/minhbui/trovia/internal/store"
	"go.uber.org/zap"
)

// Collection names in the realtime document service.
const (
	messagesCollection     = "messages"
	readStatusesCollection = "readStatuses"
)

// Source is the slice of the realtime client the aggregator uses.
type Source interface {
	Watch(q realtime.Query, h realtime.Handler) (realtime.Detacher, error)
	Add(ctx context.Context, collection string, data map[string]any) (string, error)
	Set(ctx context.Context, collection, docID string, data map[string]any, merge bool) error
	Delete(ctx context.Context, collection, docID string) error
}

// Names resolves partner display info; *rest.Client satisfies it.
type Names interface {
	GetDisplayName(ctx context.Context, userID string) (*rest.DisplayName, error)
}

// Uploads stores image payloads and returns public URLs; *blob.Uploader
// satisfies it.
type Uploads interface {
	Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error)
}

// Aggregator watches the message and read-status streams for one user and
// maintains the derived conversation summaries. Both subscriptions feed one
// recompute that always reads the latest snapshot of both inputs.
type Aggregator struct {
	selfID  string
	src     Source
	names   Names
	uploads Uploads
	db      *store.DB
	bus     *bus.Bus
	guard   *Guard
	logger  *zap.Logger

	mu        sync.Mutex
	msgs      map[string]Message    // latest message snapshot, by doc id
	statuses  map[string]ReadStatus // latest read-status snapshot, by doc id
	nameCache map[string]rest.DisplayName
	summaries []Summary
	msgSub    realtime.Detacher
	rsSub     realtime.Detacher
}

// New creates an aggregator for the given user. guardWindow zero means the
// built-in default.
func New(selfID string, src Source, names Names, uploads Uploads, db *store.DB, b *bus.Bus, guardWindow time.Duration, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		selfID:    selfID,
		src:       src,
		names:     names,
		uploads:   uploads,
		db:        db,
		bus:       b,
		guard:     NewGuard(guardWindow),
		logger:    logger,
		msgs:      make(map[string]Message),
		statuses:  make(map[string]ReadStatus),
		nameCache: make(map[string]rest.DisplayName),
	}
}

// Start attaches the two live subscriptions.
func (a *Aggregator) Start() error {
	msgQuery := realtime.Query{Collection: messagesCollection, OrderBy: "createdAt"}.
		Where("participants", "array-contains", a.selfID)
	sub, err := a.src.Watch(msgQuery, a.onMessages)
	if err != nil {
		return fmt.Errorf("watch messages: %w", err)
	}
	a.msgSub = sub

	rsQuery := realtime.Query{Collection: readStatusesCollection}.
		Where("userId", "==", a.selfID)
	sub, err = a.src.Watch(rsQuery, a.onReadStatuses)
	if err != nil {
		a.msgSub.Detach()
		return fmt.Errorf("watch read statuses: %w", err)
	}
	a.rsSub = sub
	return nil
}

// Stop detaches both subscriptions. Safe to call more than once.
func (a *Aggregator) Stop() {
	if a.msgSub != nil {
		a.msgSub.Detach()
	}
	if a.rsSub != nil {
		a.rsSub.Detach()
	}
}

func (a *Aggregator) onMessages(snapshot []realtime.Document, changes []realtime.Change, err error) {
	if err != nil {
		// Last-known-good summaries stay in place.
		a.logger.Warn("message subscription error", zap.Error(err))
		return
	}
	a.mu.Lock()
	if snapshot != nil {
		a.msgs = make(map[string]Message, len(snapshot))
		for _, d := range snapshot {
			a.msgs[d.ID] = messageFromDoc(d)
		}
	}
	for _, ch := range changes {
		switch ch.Type {
		case realtime.Removed:
			delete(a.msgs, ch.Doc.ID)
		default:
			a.msgs[ch.Doc.ID] = messageFromDoc(ch.Doc)
		}
	}
	a.mu.Unlock()

	a.persistMessages(snapshot, changes)
	a.recompute()
}

func (a *Aggregator) onReadStatuses(snapshot []realtime.Document, changes []realtime.Change, err error) {
	if err != nil {
		a.logger.Warn("read-status subscription error", zap.Error(err))
		return
	}
	a.mu.Lock()
	if snapshot != nil {
		a.statuses = make(map[string]ReadStatus, len(snapshot))
		for _, d := range snapshot {
			a.statuses[d.ID] = readStatusFromDoc(d)
		}
	}
	for _, ch := range changes {
		switch ch.Type {
		case realtime.Removed:
			delete(a.statuses, ch.Doc.ID)
		default:
			a.statuses[ch.Doc.ID] = readStatusFromDoc(ch.Doc)
		}
	}
	a.mu.Unlock()

	a.persistReadStatuses(snapshot, changes)
	a.recompute()
}

// recompute derives the summaries from the latest snapshot of both streams,
// folds server counts through the optimistic-read guard, resolves partner
// names and publishes the result.
func (a *Aggregator) recompute() {
	now := time.Now()

	a.mu.Lock()
	messages := make([]Message, 0, len(a.msgs))
	for _, m := range a.msgs {
		messages = append(messages, m)
	}
	statuses := make([]ReadStatus, 0, len(a.statuses))
	for _, rs := range a.statuses {
		statuses = append(statuses, rs)
	}
	a.mu.Unlock()

	summaries := ComputeSummaries(messages, statuses, a.selfID)
	for i := range summaries {
		summaries[i].UnreadCount = a.guard.Reconcile(summaries[i].PartnerID, summaries[i].UnreadCount, now)
	}
	a.fillNames(summaries)

	a.mu.Lock()
	a.summaries = summaries
	a.mu.Unlock()

	if a.db != nil {
		convs := make([]store.Conversation, 0, len(summaries))
		for _, s := range summaries {
			convs = append(convs, store.Conversation{
				OtherID:       s.PartnerID,
				DisplayName:   s.DisplayName,
				Avatar:        s.Avatar,
				LastMsgID:     s.Latest.ID,
				LastSenderID:  s.Latest.SenderID,
				LastContent:   s.Latest.Content,
				LastImage:     s.Latest.ImageURL,
				LastCreatedAt: s.Latest.CreatedAt,
				UnreadCount:   s.UnreadCount,
			})
		}
		if err := a.db.ReplaceConversations(convs); err != nil {
			a.logger.Warn("persist conversations", zap.Error(err))
		}
	}

	metrics.RecomputesTotal.Inc()
	if a.bus != nil {
		a.bus.Publish(bus.Event{Kind: "chat.updated"})
	}
}

// fillNames resolves partner display info through the profile service,
// caching hits. A failed lookup falls back to the raw partner id and is
// retried on the next recompute.
func (a *Aggregator) fillNames(summaries []Summary) {
	for i := range summaries {
		partner := summaries[i].PartnerID

		a.mu.Lock()
		dn, ok := a.nameCache[partner]
		a.mu.Unlock()

		if !ok && a.names != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			got, err := a.names.GetDisplayName(ctx, partner)
			cancel()
			if err != nil {
				a.logger.Debug("display name lookup failed", zap.String("partner", partner), zap.Error(err))
			} else {
				dn = *got
				ok = true
				a.mu.Lock()
				a.nameCache[partner] = dn
				a.mu.Unlock()
			}
		}
		if ok && dn.FullName != "" {
			summaries[i].DisplayName = dn.FullName
			summaries[i].Avatar = dn.Avatar
		} else {
			summaries[i].DisplayName = partner
		}
	}
}

func (a *Aggregator) persistMessages(snapshot []realtime.Document, changes []realtime.Change) {
	if a.db == nil {
		return
	}
	upsert := func(m Message) {
		if err := a.db.UpsertMessage(&store.Message{
			ID:          m.ID,
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			OtherID:     otherParty(m, a.selfID),
			Content:     m.Content,
			ImageURL:    m.ImageURL,
			CreatedAt:   m.CreatedAt,
		}); err != nil {
			a.logger.Warn("cache message", zap.String("id", m.ID), zap.Error(err))
		}
	}
	for _, d := range snapshot {
		upsert(messageFromDoc(d))
	}
	for _, ch := range changes {
		if ch.Type == realtime.Removed {
			if err := a.db.DeleteMessage(ch.Doc.ID); err != nil {
				a.logger.Warn("evict message", zap.String("id", ch.Doc.ID), zap.Error(err))
			}
			continue
		}
		upsert(messageFromDoc(ch.Doc))
	}
}

func (a *Aggregator) persistReadStatuses(snapshot []realtime.Document, changes []realtime.Change) {
	if a.db == nil {
		return
	}
	upsert := func(rs ReadStatus) {
		if err := a.db.UpsertReadStatus(&store.ReadStatus{
			ID:       rs.ID,
			UserID:   rs.UserID,
			OtherID:  rs.OtherID,
			LastRead: rs.LastRead,
		}); err != nil {
			a.logger.Warn("cache read status", zap.String("id", rs.ID), zap.Error(err))
		}
	}
	for _, d := range snapshot {
		upsert(readStatusFromDoc(d))
	}
	for _, ch := range changes {
		if ch.Type != realtime.Removed {
			upsert(readStatusFromDoc(ch.Doc))
		}
	}
}

// Summaries returns the current derived view, newest conversation first.
func (a *Aggregator) Summaries() []Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Summary, len(a.summaries))
	copy(out, a.summaries)
	return out
}

// MarkRead zeroes the partner's unread count optimistically, then upserts
// the read marker with merge semantics under its deterministic key. The
// server stamps lastRead, which keeps markers comparable to message times.
func (a *Aggregator) MarkRead(ctx context.Context, partnerID string) error {
	a.guard.MarkRead(partnerID, time.Now())
	a.recompute()

	err := a.src.Set(ctx, readStatusesCollection, ReadStatusID(a.selfID, partnerID), map[string]any{
		"userId":   a.selfID,
		"otherId":  partnerID,
		"lastRead": realtime.ServerTimestamp,
	}, true)
	if err != nil {
		return fmt.Errorf("mark read %s: %w", partnerID, err)
	}
	return nil
}

// SendText sends a text message and returns the new message id.
func (a *Aggregator) SendText(ctx context.Context, partnerID, content string) (string, error) {
	return a.src.Add(ctx, messagesCollection, map[string]any{
		"senderId":     a.selfID,
		"recipientId":  partnerID,
		"content":      content,
		"messageType":  "text",
		"createdAt":    realtime.ServerTimestamp,
		"participants": []string{a.selfID, partnerID},
	})
}

// SendImage uploads the image to blob storage, then sends a message carrying
// its public URL.
func (a *Aggregator) SendImage(ctx context.Context, partnerID, fileName, contentType string, r io.Reader, size int64) (string, error) {
	if a.uploads == nil {
		return "", fmt.Errorf("image uploads not configured")
	}
	url, err := a.uploads.Upload(ctx, blob.ChatImageKey(a.selfID, fileName), r, size, contentType)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	return a.src.Add(ctx, messagesCollection, map[string]any{
		"senderId":     a.selfID,
		"recipientId":  partnerID,
		"imageUrl":     url,
		"messageType":  "image",
		"createdAt":    realtime.ServerTimestamp,
		"participants": []string{a.selfID, partnerID},
	})
}

// DeleteMessage removes a message document.
func (a *Aggregator) DeleteMessage(ctx context.Context, messageID string) error {
	return a.src.Delete(ctx, messagesCollection, messageID)
}
