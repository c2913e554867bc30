package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/aligovro/newschools-sub000/internal/models"
)

// Client is one browser waiting on a transaction's status.
type Client struct {
	TransactionID string
	Send          chan []byte
	Hub           *Hub // set so Close() can unregister
	mu            sync.Mutex
	closed        bool
}

func NewClient(transactionID string) *Client {
	return &Client{TransactionID: transactionID, Send: make(chan []byte, 16)}
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.Send)
	c.mu.Unlock()
	if c.Hub != nil {
		c.Hub.unregister(c)
	}
}

// trySend drops the message when the client is gone or not keeping up.
func (c *Client) trySend(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.Send <- data:
	default:
	}
}

// StatusMessage is pushed to clients on every status change.
type StatusMessage struct {
	Type          string     `json:"type"`
	TransactionID string     `json:"transaction_id"`
	Status        string     `json:"status"`
	Amount        int64      `json:"amount"`
	Currency      string     `json:"currency"`
	PaidAt        *time.Time `json:"paid_at,omitempty"`
}

func NewStatusMessage(t *models.PaymentTransaction) StatusMessage {
	return StatusMessage{
		Type:          "status",
		TransactionID: t.TransactionID,
		Status:        t.Status,
		Amount:        t.Amount,
		Currency:      t.Currency,
		PaidAt:        t.PaidAt,
	}
}

// Hub maintains the active clients grouped by transaction.
type Hub struct {
	mu sync.RWMutex
	// transactionID -> clients (one donor may keep several tabs open)
	byTransaction map[string]map[*Client]struct{}
}

func NewHub() *Hub {
	return &Hub{byTransaction: make(map[string]map[*Client]struct{})}
}

func (h *Hub) Register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.Hub = h
	if h.byTransaction[c.TransactionID] == nil {
		h.byTransaction[c.TransactionID] = make(map[*Client]struct{})
	}
	h.byTransaction[c.TransactionID][c] = struct{}{}
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m := h.byTransaction[c.TransactionID]; m != nil {
		delete(m, c)
		if len(m) == 0 {
			delete(h.byTransaction, c.TransactionID)
		}
	}
}

func (h *Hub) Broadcast(transactionID string, payload interface{}) {
	data, _ := json.Marshal(payload)
	h.mu.RLock()
	m := h.byTransaction[transactionID]
	clients := make([]*Client, 0, len(m))
	for c := range m {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		c.trySend(data)
	}
}

// NotifyTransactionStatus pushes the new status to everyone watching the transaction.
func (h *Hub) NotifyTransactionStatus(t *models.PaymentTransaction) {
	h.Broadcast(t.TransactionID, NewStatusMessage(t))
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, m := range h.byTransaction {
		n += len(m)
	}
	return n
}
