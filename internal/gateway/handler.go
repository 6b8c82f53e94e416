package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/seamarket/fishbid/internal/auth"
	"github.com/seamarket/fishbid/internal/broadcast"
	"github.com/seamarket/fishbid/internal/events"
	"github.com/seamarket/fishbid/internal/models"
	"github.com/seamarket/fishbid/internal/sequencer"
)

// Rooms is what the gateway needs from the room broadcaster.
type Rooms interface {
	Join(ctx context.Context, auctionID string, sub broadcast.Subscriber)
	Leave(ctx context.Context, auctionID string, sub broadcast.Subscriber)
	LeaveAll(ctx context.Context, sub broadcast.Subscriber)
	Publish(auctionID string, ev *events.Event)
}

// Bids is what the gateway needs from the per-auction sequencer.
type Bids interface {
	SubmitBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal) (*sequencer.BidOutcome, error)
}

// Auctions is what the gateway needs for join snapshots.
type Auctions interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
}

// Config holds configuration for gateway connections.
type Config struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBufferSize  int
	CheckOrigin     func(r *http.Request) bool
}

// DefaultConfig returns default gateway connection configuration.
func DefaultConfig() Config {
	return Config{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBufferSize:  256,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// Handler authenticates inbound realtime connections and routes their
// join/leave/bid intents to the sequencer and broadcaster.
type Handler struct {
	verifier *auth.Verifier
	auctions Auctions
	bids     Bids
	rooms    Rooms
	upgrader websocket.Upgrader
	config   Config
}

// NewHandler creates a session gateway handler.
func NewHandler(verifier *auth.Verifier, auctions Auctions, bids Bids, rooms Rooms, config Config) *Handler {
	return &Handler{
		verifier: verifier,
		auctions: auctions,
		bids:     bids,
		rooms:    rooms,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config: config,
	}
}

// HandleAuctionSocket upgrades an authenticated HTTP request to a realtime
// session. Connections without a valid credential are rejected outright; no
// anonymous realtime participation.
func (h *Handler) HandleAuctionSocket(w http.ResponseWriter, r *http.Request) {
	identity, err := h.verifier.Verify(bearerToken(r))
	if err != nil {
		log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("rejected unauthenticated realtime connection")
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade WebSocket connection")
		return
	}

	session := newSession(h, identity, conn)
	go session.writePump()
	go session.readPump()

	log.Info().
		Str("connection_id", session.id).
		Str("user_id", identity.UserID.String()).
		Msg("realtime session established")
}

// RegisterRoutes registers the realtime routes with an HTTP mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/auctions", h.HandleAuctionSocket)
}

// bearerToken pulls the credential from the Authorization header or, for
// browser WebSocket clients that cannot set headers, the token query param.
func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return r.URL.Query().Get("token")
}
