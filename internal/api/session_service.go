package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/minhbui/trovia/internal/backend"
	"github.com/minhbui/trovia/internal/bus"
	"github.com/minhbui/trovia/internal/status"
	"github.com/minhbui/trovia/internal/store"
)

// SessionService serves session status and authentication endpoints.
type SessionService struct {
	sessionName string
	startedAt   time.Time
	machine     *status.Machine
	adapter     *backend.Adapter
	bus         *bus.Bus
	db          *store.DB
}

// NewSessionService creates a new session service.
func NewSessionService(sessionName string, machine *status.Machine, adapter *backend.Adapter, b *bus.Bus, db *store.DB) *SessionService {
	return &SessionService{
		sessionName: sessionName,
		startedAt:   time.Now(),
		machine:     machine,
		adapter:     adapter,
		bus:         b,
		db:          db,
	}
}

// Routes registers the service's endpoints.
func (s *SessionService) Routes(r chi.Router) {
	r.Get("/status", s.handleStatus)
	r.Post("/login", s.handleLogin)
	r.Post("/logout", s.handleLogout)
	r.Post("/password", s.handleChangePassword)
}

type statusResponse struct {
	Session           string `json:"session"`
	Status            string `json:"status"`
	UptimeMS          int64  `json:"uptime_ms"`
	UserID            string `json:"user_id,omitempty"`
	Username          string `json:"username,omitempty"`
	ConversationCount int    `json:"conversation_count"`
	UnreadCount       int    `json:"unread_notifications"`
}

func (s *SessionService) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Session:  s.sessionName,
		Status:   string(s.machine.Current()),
		UptimeMS: time.Since(s.startedAt).Milliseconds(),
	}
	if u := s.adapter.CurrentUser(); u != nil {
		resp.UserID = u.ID
		resp.Username = u.Username
		if s.db != nil {
			if convs, err := s.db.ListConversations(0, 0); err == nil {
				resp.ConversationCount = len(convs)
			}
			if n, err := s.db.CountUnreadNotifications(u.ID); err == nil {
				resp.UnreadCount = n
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (s *SessionService) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}
	user, err := s.adapter.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":  user.ID,
		"username": user.Username,
		"roles":    user.Roles,
	})
}

func (s *SessionService) handleLogout(w http.ResponseWriter, _ *http.Request) {
	if err := s.adapter.Logout(); err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type changePasswordRequest struct {
	Password    string `json:"password"`
	NewPassword string `json:"new_password"`
}

func (s *SessionService) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	u := s.adapter.CurrentUser()
	if u == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err := s.adapter.Rest().ChangePassword(r.Context(), u.ID, req.Password, req.NewPassword); err != nil {
		writeRestError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
