// Package chat derives per-partner conversation summaries from the raw
// message and read-status collections and keeps them live as either stream
// changes.
package chat

import (
	"sort"

	"github.com/minhbui/trovia/internal/realtime"
)

// Message is a read-only projection of a chat message document.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	Content     string
	ImageURL    string
	Type        string // "text" or "image"
	CreatedAt   int64
}

// ReadStatus marks how far a user has read in one conversation.
type ReadStatus struct {
	ID       string
	UserID   string
	OtherID  string
	LastRead int64
}

// Summary is the derived per-partner conversation view.
type Summary struct {
	PartnerID   string
	DisplayName string
	Avatar      string
	Latest      Message
	UnreadCount int
}

// ReadStatusID builds the deterministic composite key for a read marker, so
// repeated markRead calls update one record instead of accumulating.
func ReadStatusID(userID, partnerID string) string {
	return userID + "-" + partnerID
}

// otherParty returns the conversation partner of a message from selfID's
// perspective, or "" when the message does not involve selfID.
func otherParty(m Message, selfID string) string {
	switch {
	case m.RecipientID == selfID:
		return m.SenderID
	case m.SenderID == selfID:
		return m.RecipientID
	}
	return ""
}

// newer reports whether a should replace b as the latest message. Equal
// timestamps are broken by the larger message id so the result does not
// depend on iteration order.
func newer(a, b Message) bool {
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}

// ComputeSummaries groups messages by conversation partner and derives, per
// partner, the latest message and the count of messages from the partner to
// selfID newer than the matching read marker. A missing marker means the
// conversation was never read, so every such message counts. The result is
// sorted by latest-message time descending.
func ComputeSummaries(messages []Message, statuses []ReadStatus, selfID string) []Summary {
	lastRead := make(map[string]int64, len(statuses))
	for _, rs := range statuses {
		if rs.UserID == selfID {
			lastRead[rs.OtherID] = rs.LastRead
		}
	}

	byPartner := make(map[string]*Summary)
	for _, m := range messages {
		partner := otherParty(m, selfID)
		if partner == "" || partner == selfID {
			continue
		}
		s := byPartner[partner]
		if s == nil {
			s = &Summary{PartnerID: partner, Latest: m}
			byPartner[partner] = s
		} else if newer(m, s.Latest) {
			s.Latest = m
		}
		if m.SenderID == partner && m.RecipientID == selfID && m.CreatedAt > lastRead[partner] {
			s.UnreadCount++
		}
	}

	out := make([]Summary, 0, len(byPartner))
	for _, s := range byPartner {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Latest.CreatedAt != out[j].Latest.CreatedAt {
			return out[i].Latest.CreatedAt > out[j].Latest.CreatedAt
		}
		return out[i].PartnerID < out[j].PartnerID
	})
	return out
}

// messageFromDoc projects a realtime document into a Message.
func messageFromDoc(d realtime.Document) Message {
	return Message{
		ID:          d.ID,
		SenderID:    d.String("senderId"),
		RecipientID: d.String("recipientId"),
		Content:     d.String("content"),
		ImageURL:    d.String("imageUrl"),
		Type:        d.String("messageType"),
		CreatedAt:   d.Int64("createdAt"),
	}
}

// readStatusFromDoc projects a realtime document into a ReadStatus.
func readStatusFromDoc(d realtime.Document) ReadStatus {
	return ReadStatus{
		ID:       d.ID,
		UserID:   d.String("userId"),
		OtherID:  d.String("otherId"),
		LastRead: d.Int64("lastRead"),
	}
}
