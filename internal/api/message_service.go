package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/minhbui/trovia/internal/backend"
	"github.com/minhbui/trovia/internal/bus"
)

// maxImageUpload bounds the multipart memory buffer for image messages.
const maxImageUpload = 16 << 20

// MessageService serves message send and delete endpoints.
type MessageService struct {
	adapter *backend.Adapter
	bus     *bus.Bus
}

// NewMessageService creates a new message service.
func NewMessageService(adapter *backend.Adapter, b *bus.Bus) *MessageService {
	return &MessageService{adapter: adapter, bus: b}
}

// Routes registers the service's endpoints.
func (s *MessageService) Routes(r chi.Router) {
	r.Post("/messages", s.handleSendText)
	r.Post("/messages/image", s.handleSendImage)
	r.Delete("/messages/{messageID}", s.handleDelete)
}

type sendTextRequest struct {
	PartnerID string `json:"partner_id"`
	Content   string `json:"content"`
}

func (s *MessageService) handleSendText(w http.ResponseWriter, r *http.Request) {
	agg := s.adapter.Aggregator()
	if agg == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	var req sendTextRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.PartnerID == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "partner_id and content are required")
		return
	}
	id, err := agg.SendText(r.Context(), req.PartnerID, req.Content)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *MessageService) handleSendImage(w http.ResponseWriter, r *http.Request) {
	agg := s.adapter.Aggregator()
	if agg == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err := r.ParseMultipartForm(maxImageUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	partnerID := r.FormValue("partner_id")
	file, header, err := r.FormFile("image")
	if err != nil || partnerID == "" {
		writeError(w, http.StatusBadRequest, "partner_id and image file are required")
		return
	}
	defer func() { _ = file.Close() }()

	id, err := agg.SendImage(r.Context(), partnerID, header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *MessageService) handleDelete(w http.ResponseWriter, r *http.Request) {
	agg := s.adapter.Aggregator()
	if agg == nil {
		writeError(w, http.StatusUnauthorized, "not logged in")
		return
	}
	if err := agg.DeleteMessage(r.Context(), chi.URLParam(r, "messageID")); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}
