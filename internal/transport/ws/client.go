package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/vedran77/relay/internal/domain"
	"github.com/vedran77/relay/internal/router"
	"github.com/vedran77/relay/internal/service"
	"github.com/vedran77/relay/internal/session"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const (
	writeWait    = 10 * time.Second
	pingInterval = 30 * time.Second
	ctlBufSize   = 16
)

// Client binds one WebSocket connection to one registry session. The write
// pump drains the session outbox the router fills; the read pump feeds
// inbound typing and receipt events into the services.
type Client struct {
	conn     *websocket.Conn
	sess     *session.Session
	registry *session.Registry
	receipts *service.ReceiptService
	typing   *service.TypingService

	// ctl carries connection-local frames (pongs, error replies) so they
	// don't contend with routed events.
	ctl chan []byte
}

func NewClient(conn *websocket.Conn, sess *session.Session, registry *session.Registry, receipts *service.ReceiptService, typing *service.TypingService) *Client {
	return &Client{
		conn:     conn,
		sess:     sess,
		registry: registry,
		receipts: receipts,
		typing:   typing,
		ctl:      make(chan []byte, ctlBufSize),
	}
}

// ReadPump reads client events until the connection drops, then closes the
// session. A disconnect cancels nothing already accepted by the store; it
// only removes the session and may fire one offline presence event.
func (c *Client) ReadPump() {
	defer func() {
		c.registry.Close(c.sess.ID)
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		var event router.Event
		err := wsjson.Read(context.Background(), c.conn, &event)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				log.Printf("ws: session %s disconnected", c.sess.ID)
			} else {
				log.Printf("ws: read error on session %s: %v", c.sess.ID, err)
			}
			return
		}

		c.handleEvent(&event)
	}
}

// WritePump forwards routed events and control frames to the socket.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close(websocket.StatusNormalClosure, "")
	}()

	for {
		select {
		case payload, ok := <-c.sess.Outbox():
			if !ok {
				return
			}
			if !c.write(payload) {
				return
			}

		case payload := <-c.ctl:
			if !c.write(payload) {
				return
			}

		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), writeWait)
			err := c.conn.Ping(ctx)
			cancel()
			if err != nil {
				log.Printf("ws: ping error on session %s: %v", c.sess.ID, err)
				return
			}
		}
	}
}

func (c *Client) write(payload []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	err := c.conn.Write(ctx, websocket.MessageText, payload)
	cancel()
	if err != nil {
		log.Printf("ws: write error on session %s: %v", c.sess.ID, err)
		return false
	}
	return true
}

// ReceiptAckPayload acknowledges a single delivered message.
type ReceiptAckPayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

func (c *Client) handleEvent(event *router.Event) {
	ctx := context.Background()

	switch event.Type {
	case router.EventTypeTypingStart, router.EventTypeTypingStop:
		if event.ConversationID == nil {
			c.sendError("INVALID_PAYLOAD", "conversation_id required for typing events")
			return
		}
		if event.Type == router.EventTypeTypingStart {
			c.typing.Start(ctx, *event.ConversationID, c.sess.UserID)
		} else {
			c.typing.Stop(ctx, *event.ConversationID, c.sess.UserID)
		}

	case router.EventTypeReceiptDelivered:
		var p ReceiptAckPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			c.sendError("INVALID_PAYLOAD", "invalid receipt.delivered payload")
			return
		}
		if err := c.receipts.AcknowledgeMessageDelivered(ctx, p.MessageID, c.sess.UserID); err != nil && !errors.Is(err, domain.ErrNotFound) {
			log.Printf("ws: receipt.delivered from %s: %v", c.sess.UserID, err)
		}

	case router.EventTypeReceiptRead:
		if event.ConversationID == nil {
			c.sendError("INVALID_PAYLOAD", "conversation_id required for receipt.read")
			return
		}
		if _, err := c.receipts.AcknowledgeRead(ctx, *event.ConversationID, c.sess.UserID); err != nil {
			log.Printf("ws: receipt.read from %s: %v", c.sess.UserID, err)
		}

	case router.EventTypePing:
		c.sendPong()

	default:
		c.sendError("UNKNOWN_EVENT", "unknown event type: "+event.Type)
	}
}

func (c *Client) sendPong() {
	data, _ := json.Marshal(router.Event{Type: router.EventTypePong})
	select {
	case c.ctl <- data:
	default:
	}
}

func (c *Client) sendError(code, message string) {
	evt, err := router.NewEvent(router.EventTypeError, nil, router.ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	select {
	case c.ctl <- data:
	default:
	}
}
