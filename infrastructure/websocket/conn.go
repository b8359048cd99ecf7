package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"profilebook/contract"
	"profilebook/domain"
	"profilebook/domain/event"
	"profilebook/errors"
	"profilebook/protocol"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 * 1024
)

// Conn is the live handle of one authenticated websocket. Frames are queued
// on a bounded outbox and written by a single pump, so pushes from one
// goroutine reach the socket in call order.
type Conn struct {
	id           contract.ConnectionID
	subject      domain.SubjectID
	createdAt    time.Time
	lastSeen     atomic.Int64
	ws           *websocket.Conn
	codec        protocol.Codec
	outbox       chan protocol.Frame
	done         chan struct{}
	closeOnce    sync.Once
	pingInterval time.Duration
	log          *slog.Logger
}

func NewConn(ws *websocket.Conn, subject domain.SubjectID, codec protocol.Codec,
	bufferSize int, pingInterval time.Duration, log *slog.Logger) *Conn {
	now := time.Now()
	c := &Conn{
		id:           contract.ConnectionID(uuid.NewString()),
		subject:      subject,
		createdAt:    now,
		ws:           ws,
		codec:        codec,
		outbox:       make(chan protocol.Frame, bufferSize),
		done:         make(chan struct{}),
		pingInterval: pingInterval,
	}
	c.log = log.With("connection", c.id, "subject", subject)
	c.touch()
	return c
}

func (c *Conn) ID() contract.ConnectionID { return c.id }
func (c *Conn) Subject() domain.SubjectID { return c.subject }
func (c *Conn) CreatedAt() time.Time      { return c.createdAt }

func (c *Conn) LastSeen() time.Time {
	return time.Unix(0, c.lastSeen.Load())
}

// Push renders the event as a frame and queues it.
func (c *Conn) Push(ctx context.Context, evt event.DomainEvent) error {
	frame, err := protocol.EventFrame(evt)
	if err != nil {
		return err
	}
	return c.Send(ctx, frame)
}

// Send queues a frame. It fails with ErrConnectionClosed once the handle is
// closed and with ErrSlowConsumer when the outbox stays full until ctx ends.
func (c *Conn) Send(ctx context.Context, frame protocol.Frame) error {
	select {
	case <-c.done:
		return errors.ErrConnectionClosed
	default:
	}

	select {
	case c.outbox <- frame:
		return nil
	case <-c.done:
		return errors.ErrConnectionClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", errors.ErrSlowConsumer, ctx.Err())
	}
}

// Close is idempotent and safe to call from any goroutine.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = c.ws.Close()
	})
	return err
}

// Done is closed once the handle is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// WritePump drains the outbox and pings the peer until the handle closes or a
// write fails. It must run in its own goroutine.
func (c *Conn) WritePump() {
	ticker := time.NewTicker(c.pingInterval)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	messageType := websocket.TextMessage
	if c.codec.Binary() {
		messageType = websocket.BinaryMessage
	}

	for {
		select {
		case <-c.done:
			return
		case frame := <-c.outbox:
			data, err := c.codec.Marshal(frame)
			if err != nil {
				c.log.Error("Unable to encode frame", "type", frame.Type, "error", err)
				continue
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.log.Debug("Set write deadline", "error", err)
				return
			}
			if err := c.ws.WriteMessage(messageType, data); err != nil {
				c.log.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.log.Debug("Ping failed", "error", err)
				return
			}
		}
	}
}

// ReadPump decodes incoming frames and hands them to handle until the peer
// goes away or stops answering pings. It blocks.
func (c *Conn) ReadPump(idleTimeout time.Duration, handle func(protocol.Frame)) error {
	c.ws.SetReadLimit(maxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
		return err
	}
	c.ws.SetPongHandler(func(string) error {
		c.touch()
		return c.ws.SetReadDeadline(time.Now().Add(idleTimeout))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				c.log.Info("Read deadline exceeded", "error", err)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info("Unexpected close", "error", err)
			}
			return err
		}
		c.touch()
		if err := c.ws.SetReadDeadline(time.Now().Add(idleTimeout)); err != nil {
			return err
		}

		var frame protocol.Frame
		if err := c.codec.Unmarshal(data, &frame); err != nil {
			c.log.Debug("Dropping undecodable frame", "error", err)
			_ = c.Send(context.Background(), protocol.ErrorFrame("", errors.CodeInvalid, "malformed frame"))
			continue
		}
		handle(frame)
	}
}

func (c *Conn) touch() {
	c.lastSeen.Store(time.Now().UnixNano())
}
