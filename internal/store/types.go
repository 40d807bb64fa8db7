package store

// Conversation is a cached conversation summary with one chat partner.
type Conversation struct {
	OtherID       string
	DisplayName   string
	Avatar        string
	LastMsgID     string
	LastSenderID  string
	LastContent   string
	LastImage     string
	LastCreatedAt int64
	UnreadCount   int
}

// Message is a cached chat message.
type Message struct {
	ID          string
	SenderID    string
	RecipientID string
	OtherID     string // the chat partner, whichever side they are on
	Content     string
	ImageURL    string
	CreatedAt   int64
}

// ReadStatus is a cached read marker for one direction of a conversation.
type ReadStatus struct {
	ID       string
	UserID   string
	OtherID  string
	LastRead int64
}

// Notification is a cached in-app notification.
type Notification struct {
	ID         string
	ReceiverID string
	SenderID   string
	Content    string
	Kind       string
	IsRead     bool
	CreatedAt  int64
}

// SearchResult holds a message with a search snippet.
type SearchResult struct {
	Message Message
	Snippet string
}
