package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"profilebook/domain"
	"profilebook/errors"
	"profilebook/protocol"
	"strings"
	"time"

	"github.com/samber/lo"
)

// Store is the catch-up side of the session: everything it reads here was
// persisted before any live push was attempted.
type Store interface {
	Conversation(ctx context.Context, other domain.SubjectID, since *time.Time) ([]domain.Message, error)
	Notifications(ctx context.Context, since *time.Time) ([]domain.Notification, error)
	UnreadCount(ctx context.Context) (int, error)
}

// HTTPStore talks to the REST API with a bearer token.
type HTTPStore struct {
	baseURL string
	token   func() string
	client  *http.Client
}

func NewHTTPStore(baseURL string, token func() string, timeout time.Duration) *HTTPStore {
	return &HTTPStore{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPStore) Conversation(ctx context.Context, other domain.SubjectID, since *time.Time) ([]domain.Message, error) {
	var messages []protocol.Message
	path := "/api/messages/with/" + url.PathEscape(other.String()) + sinceQuery(since)
	if err := s.do(ctx, http.MethodGet, path, nil, &messages); err != nil {
		return nil, err
	}
	return lo.Map(messages, func(m protocol.Message, _ int) domain.Message { return m.ToDomain() }), nil
}

func (s *HTTPStore) Notifications(ctx context.Context, since *time.Time) ([]domain.Notification, error) {
	var notifications []protocol.Notification
	if err := s.do(ctx, http.MethodGet, "/api/notifications"+sinceQuery(since), nil, &notifications); err != nil {
		return nil, err
	}
	return lo.Map(notifications, func(n protocol.Notification, _ int) domain.Notification { return n.ToDomain() }), nil
}

func (s *HTTPStore) UnreadCount(ctx context.Context) (int, error) {
	var count protocol.CountResponse
	if err := s.do(ctx, http.MethodGet, "/api/notifications/me/unread-count", nil, &count); err != nil {
		return 0, err
	}
	return count.Count, nil
}

// SendMessage is the REST alternative to Session.Send, usable without a live connection.
func (s *HTTPStore) SendMessage(ctx context.Context, to domain.SubjectID, content string) (domain.Message, error) {
	var message protocol.Message
	err := s.do(ctx, http.MethodPost, "/api/messages", protocol.SendMessageRequest{ReceiverID: to.String(), Content: content}, &message)
	return message.ToDomain(), err
}

func (s *HTTPStore) Search(ctx context.Context, query string) ([]domain.Message, error) {
	var messages []protocol.Message
	if err := s.do(ctx, http.MethodGet, "/api/messages/search?q="+url.QueryEscape(query), nil, &messages); err != nil {
		return nil, err
	}
	return lo.Map(messages, func(m protocol.Message, _ int) domain.Message { return m.ToDomain() }), nil
}

func (s *HTTPStore) Login(ctx context.Context, email, password string) (protocol.AccountResponse, error) {
	var account protocol.AccountResponse
	err := s.do(ctx, http.MethodPost, "/api/auth/login", protocol.LoginRequest{Email: email, Password: password}, &account)
	return account, err
}

func (s *HTTPStore) Register(ctx context.Context, email, username, password string) (protocol.AccountResponse, error) {
	var account protocol.AccountResponse
	err := s.do(ctx, http.MethodPost, "/api/auth/register",
		protocol.RegisterRequest{Email: email, Username: username, Password: password}, &account)
	return account, err
}

// Notify uses the admin producer endpoint.
func (s *HTTPStore) Notify(ctx context.Context, target domain.SubjectID, message string) (domain.Notification, error) {
	var notification protocol.Notification
	err := s.do(ctx, http.MethodPost, "/api/notifications",
		protocol.NotifyRequest{UserID: target.String(), Message: message}, &notification)
	return notification.ToDomain(), err
}

func (s *HTTPStore) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := s.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", errors.ErrTransportLost, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= http.StatusBadRequest {
		var rejection protocol.ErrorPayload
		if err := json.NewDecoder(resp.Body).Decode(&rejection); err != nil || rejection.Code == "" {
			return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
		}
		return errors.FromCode(rejection.Code, rejection.Reason)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func sinceQuery(since *time.Time) string {
	if since == nil {
		return ""
	}
	return "?since=" + url.QueryEscape(since.UTC().Format(time.RFC3339Nano))
}
