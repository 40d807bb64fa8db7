package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/minhbui/trovia/internal/backend"
	"github.com/minhbui/trovia/internal/bus"
	"github.com/minhbui/trovia/internal/store"
)

// ChatService serves conversation summaries and message history.
type ChatService struct {
	db      *store.DB
	adapter *backend.Adapter
	bus     *bus.Bus
}

// NewChatService creates a new chat service.
func NewChatService(db *store.DB, adapter *backend.Adapter, b *bus.Bus) *ChatService {
	return &ChatService{db: db, adapter: adapter, bus: b}
}

// Routes registers the service's endpoints.
func (s *ChatService) Routes(r chi.Router) {
	r.Get("/conversations", s.handleListConversations)
	r.Post("/conversations/{partnerID}/read", s.handleMarkRead)
	r.Get("/conversations/{partnerID}/messages", s.handleListMessages)
	r.Get("/search", s.handleSearch)
}

type conversationResponse struct {
	PartnerID   string `json:"partner_id"`
	DisplayName string `json:"display_name"`
	Avatar      string `json:"avatar,omitempty"`
	LastMsgID   string `json:"last_msg_id"`
	LastSender  string `json:"last_sender_id"`
	LastContent string `json:"last_content"`
	LastImage   string `json:"last_image,omitempty"`
	LastAt      int64  `json:"last_at"`
	UnreadCount int    `json:"unread_count"`
}

func (s *ChatService) handleListConversations(w http.ResponseWriter, r *http.Request) {
	// The live aggregator is authoritative while logged in; the cache
	// answers when the daemon is between sessions.
	if agg := s.adapter.Aggregator(); agg != nil {
		out := []conversationResponse{}
		for _, sum := range agg.Summaries() {
			out = append(out, conversationResponse{
				PartnerID:   sum.PartnerID,
				DisplayName: sum.DisplayName,
				Avatar:      sum.Avatar,
				LastMsgID:   sum.Latest.ID,
				LastSender:  sum.Latest.SenderID,
				LastContent: sum.Latest.Content,
				LastImage:   sum.Latest.ImageURL,
				LastAt:      sum.Latest.CreatedAt,
				UnreadCount: sum.UnreadCount,
			})
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	convs, err := s.db.ListConversations(limit, 0)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := []conversationResponse{}
	for _, c := range convs {
		out = append(out, conversationResponse{
			PartnerID:   c.OtherID,
			DisplayName: c.DisplayName,
			Avatar:      c.Avatar,
			LastMsgID:   c.LastMsgID,
			LastSender:  c.LastSenderID,
			LastContent: c.LastContent,
			LastImage:   c.LastImage,
			LastAt:      c.LastCreatedAt,
			UnreadCount: c.UnreadCount,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *ChatService) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	agg := s.adapter.Aggregator()
	if agg == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	partnerID := chi.URLParam(r, "partnerID")
	if err := agg.MarkRead(r.Context(), partnerID); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type messageResponse struct {
	ID          string `json:"id"`
	SenderID    string `json:"sender_id"`
	RecipientID string `json:"recipient_id"`
	Content     string `json:"content,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
	CreatedAt   int64  `json:"created_at"`
}

func (s *ChatService) handleListMessages(w http.ResponseWriter, r *http.Request) {
	partnerID := chi.URLParam(r, "partnerID")
	before, _ := strconv.ParseInt(r.URL.Query().Get("before"), 10, 64)
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	msgs, err := s.db.ListMessages(partnerID, before, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := []messageResponse{}
	for _, m := range msgs {
		out = append(out, messageResponse{
			ID:          m.ID,
			SenderID:    m.SenderID,
			RecipientID: m.RecipientID,
			Content:     m.Content,
			ImageURL:    m.ImageURL,
			CreatedAt:   m.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type searchResultResponse struct {
	Message messageResponse `json:"message"`
	Snippet string          `json:"snippet"`
}

func (s *ChatService) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := s.db.SearchMessages(query, r.URL.Query().Get("partner"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := []searchResultResponse{}
	for _, res := range results {
		out = append(out, searchResultResponse{
			Message: messageResponse{
				ID:          res.Message.ID,
				SenderID:    res.Message.SenderID,
				RecipientID: res.Message.RecipientID,
				Content:     res.Message.Content,
				ImageURL:    res.Message.ImageURL,
				CreatedAt:   res.Message.CreatedAt,
			},
			Snippet: res.Snippet,
		})
	}
	writeJSON(w, http.StatusOK, out)
}
