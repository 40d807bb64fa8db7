package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/minhbui/trovia/internal/backend"
	"github.com/minhbui/trovia/internal/store"
)

// NotifyService serves the notification badge and list endpoints.
type NotifyService struct {
	db      *store.DB
	adapter *backend.Adapter
}

// NewNotifyService creates a new notify service.
func NewNotifyService(db *store.DB, adapter *backend.Adapter) *NotifyService {
	return &NotifyService{db: db, adapter: adapter}
}

// Routes registers the service's endpoints.
func (s *NotifyService) Routes(r chi.Router) {
	r.Get("/notifications", s.handleList)
	r.Post("/notifications/{notificationID}/read", s.handleMarkRead)
	r.Delete("/notifications/{notificationID}", s.handleDelete)
}

type notificationResponse struct {
	ID        string `json:"id"`
	SenderID  string `json:"sender_id,omitempty"`
	Content   string `json:"content"`
	Kind      string `json:"kind,omitempty"`
	IsRead    bool   `json:"is_read"`
	CreatedAt int64  `json:"created_at"`
}

func (s *NotifyService) handleList(w http.ResponseWriter, r *http.Request) {
	u := s.adapter.CurrentUser()
	if u == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "1"
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	items, err := s.db.ListNotifications(u.ID, unreadOnly, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	out := []notificationResponse{}
	for _, n := range items {
		out = append(out, notificationResponse{
			ID:        n.ID,
			SenderID:  n.SenderID,
			Content:   n.Content,
			Kind:      n.Kind,
			IsRead:    n.IsRead,
			CreatedAt: n.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *NotifyService) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	notifier := s.adapter.Notifier()
	if notifier == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err := notifier.MarkRead(r.Context(), chi.URLParam(r, "notificationID")); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *NotifyService) handleDelete(w http.ResponseWriter, r *http.Request) {
	notifier := s.adapter.Notifier()
	if notifier == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err := notifier.Delete(r.Context(), chi.URLParam(r, "notificationID")); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
