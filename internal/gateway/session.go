package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/seamarket/fishbid/internal/auth"
	"github.com/seamarket/fishbid/internal/events"
)

// Session is one authenticated realtime connection. The identity established
// at upgrade time is trusted for the session's lifetime. It implements
// broadcast.Subscriber.
type Session struct {
	id       string
	identity auth.Identity
	conn     *websocket.Conn
	send     chan []byte
	handler  *Handler

	mu     sync.Mutex
	joined map[string]struct{}
	closed bool

	closeOnce sync.Once
}

func newSession(h *Handler, identity auth.Identity, conn *websocket.Conn) *Session {
	return &Session{
		id:       uuid.New().String(),
		identity: identity,
		conn:     conn,
		send:     make(chan []byte, h.config.SendBufferSize),
		handler:  h,
		joined:   make(map[string]struct{}),
	}
}

// ID returns the connection id.
func (s *Session) ID() string { return s.id }

// UserID returns the authenticated user id.
func (s *Session) UserID() string { return s.identity.UserID.String() }

// Deliver queues an event for the connection without blocking. Reports false
// when the send buffer is full.
func (s *Session) Deliver(ev *events.Event) bool {
	data, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Str("connection_id", s.id).Msg("failed to marshal event for delivery")
		return true
	}

	// The send channel is guarded by mu so a concurrent teardown cannot close
	// it mid-delivery.
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.send <- data:
		return true
	default:
		return false
	}
}

// Evicted is invoked by the broadcaster when this session fell too far behind
// to keep receiving events. A client that cannot drain its buffer is better
// served by reconnecting, so the whole session is torn down; its departures
// are announced like any other disconnect.
func (s *Session) Evicted() {
	s.teardown()
}

// trackJoin records room membership for disconnect cleanup. Reports whether
// the room was newly joined.
func (s *Session) trackJoin(auctionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joined[auctionID]; ok {
		return false
	}
	s.joined[auctionID] = struct{}{}
	return true
}

// trackLeave reports whether the session was in the room.
func (s *Session) trackLeave(auctionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.joined[auctionID]; !ok {
		return false
	}
	delete(s.joined, auctionID)
	return true
}

func (s *Session) joinedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.joined))
	for auctionID := range s.joined {
		rooms = append(rooms, auctionID)
	}
	return rooms
}

// writePump sends queued events and keepalive pings to the connection.
func (s *Session) writePump() {
	ticker := time.NewTicker(s.handler.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(s.handler.config.WriteTimeout))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().Err(err).Str("connection_id", s.id).Msg("failed to write message")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.handler.config.WriteTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads client intents until the connection drops, then leaves every
// joined room.
func (s *Session) readPump() {
	defer s.teardown()

	s.conn.SetReadLimit(s.handler.config.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(s.handler.config.ReadTimeout))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(s.handler.config.ReadTimeout))
		return nil
	})

	for {
		_, message, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("connection_id", s.id).Msg("unexpected WebSocket close")
			}
			break
		}
		s.handler.dispatch(context.Background(), s, message)
		s.conn.SetReadDeadline(time.Now().Add(s.handler.config.ReadTimeout))
	}
}

// teardown leaves every joined room, announces the departures, and closes the
// session exactly once.
func (s *Session) teardown() {
	s.closeOnce.Do(func() {
		ctx := context.Background()
		rooms := s.joinedRooms()
		s.handler.rooms.LeaveAll(ctx, s)
		for _, auctionID := range rooms {
			s.handler.publishPresence(auctionID, events.EventTypeRoomLeft, s)
		}
		s.mu.Lock()
		s.closed = true
		close(s.send)
		s.mu.Unlock()
		if s.conn != nil {
			s.conn.Close()
		}
		log.Info().
			Str("connection_id", s.id).
			Str("user_id", s.UserID()).
			Msg("realtime session closed")
	})
}
