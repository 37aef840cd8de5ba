// Package feed pushes committed wallet events to a seller's open websocket
// connections.
package feed

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/crafthub-ledger/internal/ledger"
	"github.com/sudo-init-do/crafthub-ledger/internal/middleware"
	"github.com/sudo-init-do/crafthub-ledger/internal/money"
)

const writeWait = 5 * time.Second

type wsEvent struct {
	Type string    `json:"type"`
	Data eventView `json:"data"`
}

type eventView struct {
	WalletID     string    `json:"wallet_id"`
	Amount       string    `json:"amount"`
	Balance      string    `json:"balance"`
	OrderID      string    `json:"order_id,omitempty"`
	WithdrawalID string    `json:"withdrawal_id,omitempty"`
	Note         string    `json:"note,omitempty"`
	At           time.Time `json:"at"`
}

type client struct {
	conn *websocket.Conn
	mu   sync.Mutex // gorilla allows one concurrent writer
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub keeps the live connections of every seller.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{}
	log     *zap.Logger

	upgrader websocket.Upgrader
}

func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*client]struct{}),
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Hub) register(owner string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[owner]
	if !ok {
		set = make(map[*client]struct{})
		h.clients[owner] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(owner string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.clients[owner]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, owner)
		}
	}
}

// Connections returns how many sockets owner has open.
func (h *Hub) Connections(owner string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[owner])
}

// Notify implements ledger.Notifier. Sellers with no open socket are skipped.
func (h *Hub) Notify(_ context.Context, ev ledger.Event) error {
	view := eventView{
		WalletID: ev.WalletID.String(),
		Amount:   money.Format(ev.Amount),
		Balance:  money.Format(ev.Balance),
		OrderID:  ev.OrderID,
		Note:     ev.Note,
		At:       ev.At,
	}
	if ev.WithdrawalID != nil {
		view.WithdrawalID = ev.WithdrawalID.String()
	}
	payload, err := json.Marshal(wsEvent{Type: string(ev.Type), Data: view})
	if err != nil {
		return err
	}

	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[ev.OwnerID]))
	for c := range h.clients[ev.OwnerID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if err := c.write(payload); err != nil {
			h.log.Debug("dropping wallet feed client", zap.String("owner_id", ev.OwnerID), zap.Error(err))
			h.unregister(ev.OwnerID, c)
			_ = c.conn.Close()
		}
	}
	return nil
}

// ServeWS upgrades the authenticated seller's request and streams their
// wallet events until the client goes away.
func (h *Hub) ServeWS(c echo.Context) error {
	userID := middleware.UserID(c)
	if userID == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	cl := &client{conn: ws}
	h.register(userID, cl)
	h.log.Debug("wallet feed connected", zap.String("owner_id", userID))

	// Read loop (discard client messages; the feed is server push only)
	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			h.unregister(userID, cl)
			_ = ws.Close()
			break
		}
	}
	return nil
}
