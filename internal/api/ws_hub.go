package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/atmx/dsc-engine/internal/metrics"
	"github.com/atmx/dsc-engine/internal/model"
)

// Event types pushed to WebSocket clients.
const (
	EventCollateralDeposited = "collateral_deposited"
	EventCollateralRedeemed  = "collateral_redeemed"
	EventDebtMinted          = "debt_minted"
	EventDebtBurned          = "debt_burned"
	EventLiquidated          = "liquidated"
	EventPriceUpdated        = "price_updated"
)

// WSMessage is a JSON message sent to WebSocket clients.
type WSMessage struct {
	Type        string `json:"type"`
	OperationID string `json:"operation_id,omitempty"`
	Account     string `json:"account,omitempty"`
	Liquidator  string `json:"liquidator,omitempty"`
	Asset       string `json:"asset,omitempty"`
	Amount      string `json:"amount,omitempty"`
	Price       string `json:"price,omitempty"`
	Timestamp   string `json:"timestamp"`
}

// WSHub manages WebSocket connections and broadcasts committed operations
// to all connected clients.
type WSHub struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	mu         sync.RWMutex
}

// NewWSHub creates a new WebSocket hub.
func NewWSHub() *WSHub {
	return &WSHub{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
	}
}

// Run starts the hub's main event loop until ctx is done. Must be called in
// a goroutine.
func (h *WSHub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mu.Unlock()
			metrics.WebSocketClients.Set(0)
			return

		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
			slog.Info("ws client connected", "total", total)

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))

		case msg := <-h.broadcast:
			h.mu.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			total := len(h.clients)
			h.mu.Unlock()
			metrics.WebSocketClients.Set(float64(total))
		}
	}
}

// Broadcast sends a message to all connected clients.
func (h *WSHub) Broadcast(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case h.broadcast <- data:
	default:
		// Drop if buffer full to avoid blocking the engine.
	}
}

// Notify implements engine.Notifier. Composite operations fan out into one
// message per effect.
func (h *WSHub) Notify(op model.Operation) {
	for _, msg := range eventsFor(op) {
		h.Broadcast(msg)
	}
}

func eventsFor(op model.Operation) []WSMessage {
	base := WSMessage{
		OperationID: op.ID,
		Account:     op.Account,
		Asset:       op.Asset,
		Timestamp:   op.Timestamp.Format(time.RFC3339),
	}
	collateral := func(typ string) WSMessage {
		m := base
		m.Type = typ
		m.Amount = op.CollateralAmount.String()
		return m
	}
	debt := func(typ string) WSMessage {
		m := base
		m.Type = typ
		m.Asset = ""
		m.Amount = op.DebtAmount.String()
		return m
	}

	switch op.Kind {
	case model.KindDeposit:
		return []WSMessage{collateral(EventCollateralDeposited)}
	case model.KindMint:
		return []WSMessage{debt(EventDebtMinted)}
	case model.KindDepositAndMint:
		return []WSMessage{collateral(EventCollateralDeposited), debt(EventDebtMinted)}
	case model.KindRedeem:
		return []WSMessage{collateral(EventCollateralRedeemed)}
	case model.KindBurn:
		return []WSMessage{debt(EventDebtBurned)}
	case model.KindRedeemForBurn:
		return []WSMessage{debt(EventDebtBurned), collateral(EventCollateralRedeemed)}
	case model.KindLiquidate:
		m := collateral(EventLiquidated)
		m.Liquidator = op.Liquidator
		return []WSMessage{m}
	}
	return nil
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true // Allow all origins during development.
	},
}

// HandleWS handles WebSocket upgrade requests at GET /api/v1/ws.
func (h *WSHub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("ws upgrade failed", "err", err)
		return
	}

	h.register <- conn

	// Read pump: keep connection alive and detect disconnects.
	go func() {
		defer func() { h.unregister <- conn }()
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		conn.SetPongHandler(func(string) error {
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			return nil
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()

	// Ping ticker to keep connection alive through proxies.
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			h.mu.RLock()
			_, ok := h.clients[conn]
			h.mu.RUnlock()
			if !ok {
				return
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}()
}
