package client

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"profilebook/domain"
	"profilebook/errors"
	"profilebook/protocol"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const writeWait = 10 * time.Second

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
	Offline
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	case Offline:
		return "offline"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

type result struct {
	frame protocol.Frame
	err   error
}

// Session owns one live connection to the hub and the local views fed by it.
// A lost transport is recovered in the background: reconnect with backoff,
// then catch up every open view from the store before OnReconnected fires.
type Session struct {
	log     *slog.Logger
	cfg     Config
	store   Store
	token   func() string
	dialer  *websocket.Dialer
	backoff Backoff
	group   singleflight.Group

	mu             sync.Mutex
	state          State
	ws             *websocket.Conn
	codec          protocol.Codec
	subject        domain.SubjectID
	pending        map[string]chan result
	conversations  map[domain.SubjectID]*ConversationView
	notifications  *NotificationsView
	recovery       context.CancelFunc
	onState        []func(State)
	onReconnected  []func()
	onMessage      []func(domain.Message)
	onNotification []func(domain.Notification)

	writeMu sync.Mutex
}

func NewSession(log *slog.Logger, cfg Config, store Store, token func() string) *Session {
	return &Session{
		log:   log,
		cfg:   cfg,
		store: store,
		token: token,
		dialer: &websocket.Dialer{
			HandshakeTimeout: cfg.RequestTimeout,
			Subprotocols:     []string{cfg.Codec},
		},
		backoff: Backoff{
			Initial:     cfg.BackoffInitial,
			Max:         cfg.BackoffMax,
			MaxAttempts: cfg.MaxAttempts,
		},
		codec:         protocol.JSONCodec{},
		pending:       make(map[string]chan result),
		conversations: make(map[domain.SubjectID]*ConversationView),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subject is known once the hub welcomed the session.
func (s *Session) Subject() domain.SubjectID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subject
}

func (s *Session) OnStateChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onState = append(s.onState, fn)
}

func (s *Session) OnReconnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onReconnected = append(s.onReconnected, fn)
}

func (s *Session) OnMessage(fn func(domain.Message)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = append(s.onMessage, fn)
}

func (s *Session) OnNotification(fn func(domain.Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onNotification = append(s.onNotification, fn)
}

// Connect opens the live connection. Concurrent calls share one handshake.
// From Offline it restarts the connection without waiting for the poller.
func (s *Session) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.state == Connected {
		s.mu.Unlock()
		return nil
	}
	var listeners []func(State)
	if s.state == Disconnected {
		listeners = s.swapStateLocked(Connecting)
	}
	s.mu.Unlock()
	notify(listeners, Connecting)

	err := s.establish(ctx)
	if err != nil {
		s.mu.Lock()
		var listeners []func(State)
		if s.state == Connecting {
			listeners = s.swapStateLocked(Disconnected)
		}
		s.mu.Unlock()
		notify(listeners, Disconnected)
	}
	return err
}

// Disconnect closes the connection and stops recovery. Calls still waiting
// for an answer fail with ErrCanceled.
func (s *Session) Disconnect() {
	s.mu.Lock()
	ws := s.ws
	s.ws = nil
	pending := s.takePendingLocked()
	cancel := s.recovery
	s.recovery = nil
	listeners := s.swapStateLocked(Disconnected)
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		s.writeMu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		s.writeMu.Unlock()
		_ = ws.Close()
	}
	failAll(pending, errors.ErrCanceled)
	notify(listeners, Disconnected)
	s.log.Info("Session disconnected")
}

// Send writes a direct message and returns the persisted row.
func (s *Session) Send(ctx context.Context, to domain.SubjectID, content string) (domain.Message, error) {
	if self := s.Subject(); self != "" && to == self {
		return domain.Message{}, errors.ErrSelfTarget
	}
	reply, err := s.call(ctx, protocol.Frame{
		Type: protocol.TypeSendMessage,
		Send: &protocol.SendPayload{To: to.String(), Content: content},
	})
	if err != nil {
		return domain.Message{}, err
	}
	if reply.Message == nil {
		return domain.Message{}, fmt.Errorf("ack without message for %s", reply.ID)
	}

	message := reply.Message.ToDomain()
	if view := s.conversation(to); view != nil {
		view.Merge(message)
	}
	return message, nil
}

func (s *Session) Ping(ctx context.Context) error {
	_, err := s.call(ctx, protocol.Frame{Type: protocol.TypePing})
	return err
}

// MarkNotificationRead flags the notification locally first, then asks the
// hub. A rejection restores the local flag and the unread counter.
func (s *Session) MarkNotificationRead(ctx context.Context, id domain.NotificationID) error {
	view := s.notificationsView()
	var changed []domain.NotificationID
	if view != nil {
		changed = view.markRead(id)
	}

	reply, err := s.call(ctx, protocol.Frame{
		Type:     protocol.TypeMarkRead,
		MarkRead: &protocol.MarkReadPayload{NotificationID: uint64(id)},
	})
	if err != nil {
		if view != nil {
			view.rollback(changed)
		}
		return err
	}
	if view != nil && reply.Notification != nil {
		view.Merge(reply.Notification.ToDomain())
	}
	return nil
}

// MarkAllRead is the bulk form of MarkNotificationRead.
func (s *Session) MarkAllRead(ctx context.Context) (int, error) {
	view := s.notificationsView()
	var changed []domain.NotificationID
	if view != nil {
		changed = view.markAllRead()
	}

	reply, err := s.call(ctx, protocol.Frame{Type: protocol.TypeMarkAllRead})
	if err != nil {
		if view != nil {
			view.rollback(changed)
		}
		return 0, err
	}
	return lo.FromPtr(reply.Count), nil
}

// OpenConversation loads the conversation with other and keeps it current.
// The view stays open, and is caught up after reconnects, until closed.
func (s *Session) OpenConversation(ctx context.Context, other domain.SubjectID) (*ConversationView, error) {
	s.mu.Lock()
	view, ok := s.conversations[other]
	if !ok {
		view = newConversationView(other)
		s.conversations[other] = view
	}
	s.mu.Unlock()

	messages, err := s.store.Conversation(ctx, other, view.Watermark())
	if err != nil {
		return nil, err
	}
	view.mergePage(messages)
	return view, nil
}

func (s *Session) CloseConversation(other domain.SubjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conversations, other)
}

// OpenNotifications loads the notification list and the unread counter.
func (s *Session) OpenNotifications(ctx context.Context) (*NotificationsView, error) {
	s.mu.Lock()
	if s.notifications == nil {
		s.notifications = newNotificationsView()
	}
	view := s.notifications
	s.mu.Unlock()

	if err := s.catchUpNotifications(ctx, view); err != nil {
		return nil, err
	}
	return view, nil
}

// CatchUp fetches, for every open view, what was persisted after its watermark.
func (s *Session) CatchUp(ctx context.Context) error {
	s.mu.Lock()
	views := lo.Values(s.conversations)
	notifications := s.notifications
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, view := range views {
		g.Go(func() error {
			messages, err := s.store.Conversation(ctx, view.Other(), view.Watermark())
			if err != nil {
				return fmt.Errorf("catch up with %s: %w", view.Other(), err)
			}
			view.mergePage(messages)
			return nil
		})
	}
	if notifications != nil {
		g.Go(func() error {
			return s.catchUpNotifications(ctx, notifications)
		})
	}
	return g.Wait()
}

func (s *Session) catchUpNotifications(ctx context.Context, view *NotificationsView) error {
	notifications, err := s.store.Notifications(ctx, view.Watermark())
	if err != nil {
		return fmt.Errorf("catch up notifications: %w", err)
	}
	view.mergePage(notifications)

	count, err := s.store.UnreadCount(ctx)
	if err != nil {
		return fmt.Errorf("unread count: %w", err)
	}
	view.setUnread(count)
	return nil
}

// establish runs one handshake at a time, then catches up every open view,
// whatever ended the previous connection. After a recovery it also stops the
// poller and fires OnReconnected.
func (s *Session) establish(ctx context.Context) error {
	_, err, _ := s.group.Do("connect", func() (any, error) {
		s.mu.Lock()
		if s.state == Connected {
			s.mu.Unlock()
			return nil, nil
		}
		recovering := s.state == Reconnecting || s.state == Offline
		s.mu.Unlock()

		if err := s.handshake(ctx); err != nil {
			return nil, err
		}
		if recovering {
			s.stopRecovery()
		}
		catchUpCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.RequestTimeout)
		defer cancel()
		if err := s.CatchUp(catchUpCtx); err != nil {
			s.log.Warn("Catch-up after connect failed", "error", err)
		}
		if recovering {
			s.emitReconnected()
		}
		return nil, nil
	})
	return err
}

func (s *Session) handshake(ctx context.Context) error {
	header := http.Header{}
	if token := s.token(); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	ws, resp, err := s.dialer.DialContext(ctx, s.cfg.HubURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return errors.ErrUnauthenticated
		}
		return fmt.Errorf("%w: %v", errors.ErrTransportLost, err)
	}
	codec := protocol.CodecFor(ws.Subprotocol())

	welcome, err := readWelcome(ws, codec, s.cfg.RequestTimeout)
	if err != nil {
		_ = ws.Close()
		return err
	}

	s.mu.Lock()
	if s.state == Disconnected {
		s.mu.Unlock()
		_ = ws.Close()
		return errors.ErrCanceled
	}
	s.ws = ws
	s.codec = codec
	s.subject = domain.SubjectID(welcome.Subject)
	listeners := s.swapStateLocked(Connected)
	s.mu.Unlock()

	go s.readLoop(ws, codec)
	notify(listeners, Connected)
	s.log.Info("Session connected", "subject", welcome.Subject, "connection", welcome.ConnectionID,
		"subprotocol", codec.Subprotocol())
	return nil
}

func readWelcome(ws *websocket.Conn, codec protocol.Codec, timeout time.Duration) (*protocol.WelcomePayload, error) {
	if err := ws.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	_, data, err := ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrTransportLost, err)
	}
	var frame protocol.Frame
	if err := codec.Unmarshal(data, &frame); err != nil {
		return nil, err
	}
	if frame.Type != protocol.TypeWelcome || frame.Welcome == nil {
		return nil, fmt.Errorf("expected welcome frame, got %q", frame.Type)
	}
	return frame.Welcome, ws.SetReadDeadline(time.Time{})
}

func (s *Session) readLoop(ws *websocket.Conn, codec protocol.Codec) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			s.handleLoss(ws, err)
			return
		}
		var frame protocol.Frame
		if err := codec.Unmarshal(data, &frame); err != nil {
			s.log.Debug("Dropping undecodable frame", "error", err)
			continue
		}
		s.dispatch(frame)
	}
}

func (s *Session) dispatch(frame protocol.Frame) {
	switch frame.Type {
	case protocol.TypeAck, protocol.TypeError, protocol.TypePong:
		s.resolve(frame)
	case protocol.TypeMessageCreated:
		if frame.Message == nil {
			return
		}
		message := frame.Message.ToDomain()
		s.mu.Lock()
		view := s.conversations[message.Counterpart(s.subject)]
		listeners := slices.Clone(s.onMessage)
		s.mu.Unlock()
		if view != nil {
			view.Merge(message)
		}
		for _, fn := range listeners {
			fn(message)
		}
	case protocol.TypeNotificationCreated:
		if frame.Notification == nil {
			return
		}
		notification := frame.Notification.ToDomain()
		s.mu.Lock()
		view := s.notifications
		listeners := slices.Clone(s.onNotification)
		s.mu.Unlock()
		if view != nil {
			view.Merge(notification)
		}
		for _, fn := range listeners {
			fn(notification)
		}
	case protocol.TypeNotificationRead:
		if frame.Read == nil {
			return
		}
		if view := s.notificationsView(); view != nil {
			view.markRead(lo.Map(frame.Read.IDs, func(id uint64, _ int) domain.NotificationID {
				return domain.NotificationID(id)
			})...)
		}
	default:
		s.log.Debug("Ignoring frame", "type", frame.Type)
	}
}

// handleLoss starts recovery unless ws was already replaced or closed on purpose.
func (s *Session) handleLoss(ws *websocket.Conn, cause error) {
	s.mu.Lock()
	if s.ws != ws {
		s.mu.Unlock()
		return
	}
	s.ws = nil
	pending := s.takePendingLocked()
	listeners := s.swapStateLocked(Reconnecting)
	ctx, cancel := context.WithCancel(context.Background())
	s.recovery = cancel
	s.mu.Unlock()

	_ = ws.Close()
	failAll(pending, errors.ErrTransportLost)
	notify(listeners, Reconnecting)
	s.log.Warn("Transport lost, reconnecting", "error", cause)

	go s.reconnect(ctx)
	go s.poll(ctx)
}

func (s *Session) reconnect(ctx context.Context) {
	for attempt := 0; !s.backoff.Exhausted(attempt); attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-time.After(s.backoff.Delay(attempt)):
		}

		err := s.establish(ctx)
		if err == nil {
			return
		}
		s.log.Warn("Reconnect attempt failed", "attempt", attempt+1, "error", err)
		if stderrors.Is(err, errors.ErrUnauthenticated) || ctx.Err() != nil {
			break
		}
	}

	s.mu.Lock()
	if ctx.Err() != nil || s.state != Reconnecting {
		s.mu.Unlock()
		return
	}
	listeners := s.swapStateLocked(Offline)
	s.mu.Unlock()
	notify(listeners, Offline)
	s.log.Warn("Reconnect attempts exhausted, session offline", "error", errors.ErrOffline)
}

// poll keeps open views fresh through the store while the transport is down.
func (s *Session) poll(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pollCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
			if err := s.CatchUp(pollCtx); err != nil {
				s.log.Debug("Poll failed", "error", err)
			}
			cancel()
		}
	}
}

func (s *Session) stopRecovery() {
	s.mu.Lock()
	cancel := s.recovery
	s.recovery = nil
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (s *Session) call(ctx context.Context, frame protocol.Frame) (protocol.Frame, error) {
	frame.ID = uuid.NewString()
	reply := make(chan result, 1)

	s.mu.Lock()
	if s.state != Connected || s.ws == nil {
		s.mu.Unlock()
		return protocol.Frame{}, errors.ErrNotConnected
	}
	ws, codec := s.ws, s.codec
	s.pending[frame.ID] = reply
	s.mu.Unlock()

	if err := s.write(ws, codec, frame); err != nil {
		s.dropPending(frame.ID)
		return protocol.Frame{}, fmt.Errorf("%w: %v", errors.ErrTransportLost, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()

	select {
	case r := <-reply:
		if r.err != nil {
			return protocol.Frame{}, r.err
		}
		if r.frame.Type == protocol.TypeError && r.frame.Error != nil {
			return r.frame, errors.FromCode(r.frame.Error.Code, r.frame.Error.Reason)
		}
		return r.frame, nil
	case <-ctx.Done():
		s.dropPending(frame.ID)
		return protocol.Frame{}, ctx.Err()
	}
}

func (s *Session) write(ws *websocket.Conn, codec protocol.Codec, frame protocol.Frame) error {
	data, err := codec.Marshal(frame)
	if err != nil {
		return err
	}
	messageType := websocket.TextMessage
	if codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return ws.WriteMessage(messageType, data)
}

func (s *Session) resolve(frame protocol.Frame) {
	s.mu.Lock()
	reply, ok := s.pending[frame.ID]
	delete(s.pending, frame.ID)
	s.mu.Unlock()
	if ok {
		reply <- result{frame: frame}
	}
}

func (s *Session) dropPending(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
}

func (s *Session) pendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Session) takePendingLocked() map[string]chan result {
	pending := s.pending
	s.pending = make(map[string]chan result)
	return pending
}

func (s *Session) swapStateLocked(state State) []func(State) {
	if s.state == state {
		return nil
	}
	s.state = state
	return slices.Clone(s.onState)
}

func (s *Session) conversation(other domain.SubjectID) *ConversationView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conversations[other]
}

func (s *Session) notificationsView() *NotificationsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.notifications
}

func (s *Session) emitReconnected() {
	s.mu.Lock()
	listeners := slices.Clone(s.onReconnected)
	s.mu.Unlock()
	for _, fn := range listeners {
		fn()
	}
}

func failAll(pending map[string]chan result, err error) {
	for _, reply := range pending {
		reply <- result{err: err}
	}
}

func notify(listeners []func(State), state State) {
	for _, fn := range listeners {
		fn(state)
	}
}
