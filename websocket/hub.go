package websocket

import (
	"context"
	"errors"
	"log"

	"github.com/anjiri1684/transport_portal/models"
	"github.com/google/uuid"
)

var ErrHubBusy = errors.New("websocket hub busy, status push dropped")

// Conn is the part of a websocket connection the hub writes to.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

type Client struct {
	UserID uuid.UUID
	Conn   Conn
}

// StatusMessage is pushed to a student when one of their payments settles.
type StatusMessage struct {
	Type            string    `json:"type"`
	PaymentRecordID uuid.UUID `json:"payment_record_id"`
	Status          string    `json:"status"`
	BillingPeriod   string    `json:"billing_period"`
	FailureReason   string    `json:"failure_reason,omitempty"`
}

// Hub owns the connected clients; only Run touches the client map.
type Hub struct {
	clients    map[uuid.UUID]Conn
	register   chan *Client
	unregister chan *Client
	broadcast  chan *models.PaymentRecord
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[uuid.UUID]Conn),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *models.PaymentRecord, 256),
	}
}

func (h *Hub) Register(c *Client)   { h.register <- c }
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// OnTerminal queues a status push for the record's student. It never blocks;
// when the queue is full the push is dropped and ErrHubBusy returned.
func (h *Hub) OnTerminal(ctx context.Context, rec *models.PaymentRecord) error {
	select {
	case h.broadcast <- rec:
		return nil
	default:
		return ErrHubBusy
	}
}

func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for id, conn := range h.clients {
				_ = conn.Close()
				delete(h.clients, id)
			}
			return
		case client := <-h.register:
			log.Printf("Client registered: %s", client.UserID)
			if old, ok := h.clients[client.UserID]; ok && old != client.Conn {
				_ = old.Close()
			}
			h.clients[client.UserID] = client.Conn
		case client := <-h.unregister:
			log.Printf("Client unregistered: %s", client.UserID)
			if conn, ok := h.clients[client.UserID]; ok && conn == client.Conn {
				delete(h.clients, client.UserID)
			}
		case rec := <-h.broadcast:
			conn, ok := h.clients[rec.StudentID]
			if !ok {
				continue
			}
			if err := conn.WriteJSON(statusMessage(rec)); err != nil {
				log.Printf("Error sending payment status to client %s: %v", rec.StudentID, err)
				_ = conn.Close()
				delete(h.clients, rec.StudentID)
			}
		}
	}
}

func statusMessage(rec *models.PaymentRecord) StatusMessage {
	msg := StatusMessage{
		Type:            "payment_status",
		PaymentRecordID: rec.ID,
		Status:          string(rec.Status),
		BillingPeriod:   rec.BillingPeriod,
	}
	if rec.FailureReason != nil {
		msg.FailureReason = string(*rec.FailureReason)
	}
	return msg
}
