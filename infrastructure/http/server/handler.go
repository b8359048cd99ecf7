package server

import (
	"log/slog"
	"net/http"
	"profilebook/auth"
	"profilebook/domain"
	"profilebook/errors"
	"profilebook/protocol"
	"profilebook/services"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type Authenticator interface {
	Authenticate(token string) (domain.SubjectID, auth.Credential, error)
}

// Handler serves the REST API. Every route under /api except auth requires a
// resolved subject in the request context.
type Handler struct {
	log           *slog.Logger
	auth          services.IAuthService
	messaging     services.IMessagingService
	notifications services.INotificationService
}

func NewHandler(log *slog.Logger, authService services.IAuthService,
	messaging services.IMessagingService, notifications services.INotificationService) *Handler {
	return &Handler{log: log, auth: authService, messaging: messaging, notifications: notifications}
}

func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var body protocol.RegisterRequest
	if err := decode(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	account, err := h.auth.Register(body.Email, body.Username, body.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.FromAccount(account))
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body protocol.LoginRequest
	if err := decode(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	account, err := h.auth.Login(body.Email, body.Password)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromAccount(account))
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body protocol.SendMessageRequest
	if err := decode(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	message, err := h.messaging.SendMessage(r.Context(), domain.SendMessageCommand{
		SenderID:   subjectFrom(r.Context()),
		ReceiverID: domain.SubjectID(body.ReceiverID),
		Content:    body.Content,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.FromMessage(message))
}

func (h *Handler) SendByUsername(w http.ResponseWriter, r *http.Request) {
	var body protocol.SendMessageRequest
	if err := decode(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	message, err := h.messaging.SendByUsername(r.Context(), domain.SendByUsernameCommand{
		SenderID: subjectFrom(r.Context()),
		Username: chi.URLParam(r, "username"),
		Content:  body.Content,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.FromMessage(message))
}

func (h *Handler) GetConversation(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	messages, err := h.messaging.GetConversation(r.Context(), domain.GetConversationCommand{
		SubjectID: subjectFrom(r.Context()),
		OtherID:   domain.SubjectID(chi.URLParam(r, "id")),
		Since:     since,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromMessages(messages))
}

func (h *Handler) GetConversationByUsername(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	messages, err := h.messaging.GetConversationByUsername(r.Context(),
		subjectFrom(r.Context()), chi.URLParam(r, "username"), since)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromMessages(messages))
}

func (h *Handler) GetMessage(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	message, err := h.messaging.GetMessage(r.Context(), subjectFrom(r.Context()), domain.MessageID(id))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromMessage(message))
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	messages, err := h.messaging.Search(r.Context(), subjectFrom(r.Context()), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromMessages(messages))
}

func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	since, err := parseSince(r)
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	notifications, err := h.notifications.GetNotifications(r.Context(), domain.GetNotificationsCommand{
		SubjectID: subjectFrom(r.Context()),
		Since:     since,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromNotifications(notifications))
}

func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.notifications.UnreadCount(r.Context(), subjectFrom(r.Context()))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.CountResponse{Count: count})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	notification, err := h.notifications.MarkRead(r.Context(), domain.MarkReadCommand{
		SubjectID:      subjectFrom(r.Context()),
		NotificationID: domain.NotificationID(id),
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.FromNotification(notification))
}

func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	count, err := h.notifications.MarkAllRead(r.Context(), subjectFrom(r.Context()))
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, protocol.CountResponse{Count: count})
}

// Notify is the producer boundary used by moderation tooling.
func (h *Handler) Notify(w http.ResponseWriter, r *http.Request) {
	var body protocol.NotifyRequest
	if err := decode(r, &body); err != nil {
		writeError(w, h.log, err)
		return
	}
	notification, err := h.notifications.Notify(r.Context(), domain.NotifyCommand{
		TargetID: domain.SubjectID(body.UserID),
		Message:  body.Message,
	})
	if err != nil {
		writeError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, protocol.FromNotification(notification))
}

func parseID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, errors.ErrNotFound
	}
	return id, nil
}
