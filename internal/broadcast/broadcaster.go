package broadcast

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/seamarket/fishbid/internal/events"
)

// Subscriber is a realtime connection that can receive room events. Deliver
// must not block; implementations buffer and report false when the buffer is
// full so the broadcaster can drop them.
type Subscriber interface {
	ID() string
	UserID() string
	Deliver(ev *events.Event) bool
}

// Evictee is a subscriber that wants to be told when the broadcaster removes
// it for falling behind, so it can reconcile its own membership state.
type Evictee interface {
	Evicted()
}

// Broadcaster tracks which connections observe which auction and fans events
// out to exactly that set. Membership is the only state shared across
// connections; a publish in progress always sees a consistent snapshot of the
// room taken at call time.
type Broadcaster struct {
	mu    sync.RWMutex
	rooms map[string]map[Subscriber]struct{}

	presence Presence
}

// New creates a room broadcaster. presence may be nil to disable the
// membership mirror.
func New(presence Presence) *Broadcaster {
	return &Broadcaster{
		rooms:    make(map[string]map[Subscriber]struct{}),
		presence: presence,
	}
}

// Join adds the subscriber to the auction's room. Idempotent.
func (b *Broadcaster) Join(ctx context.Context, auctionID string, sub Subscriber) {
	b.mu.Lock()
	room, ok := b.rooms[auctionID]
	if !ok {
		room = make(map[Subscriber]struct{})
		b.rooms[auctionID] = room
	}
	_, already := room[sub]
	room[sub] = struct{}{}
	size := len(room)
	b.mu.Unlock()

	if already {
		return
	}
	if b.presence != nil {
		if err := b.presence.Add(ctx, auctionID, sub.UserID()); err != nil {
			log.Warn().Err(err).Str("auction_id", auctionID).Msg("presence add failed")
		}
	}
	log.Debug().
		Str("auction_id", auctionID).
		Str("connection_id", sub.ID()).
		Int("room_size", size).
		Msg("subscriber joined room")
}

// Leave removes the subscriber from the auction's room. Idempotent.
func (b *Broadcaster) Leave(ctx context.Context, auctionID string, sub Subscriber) {
	b.mu.Lock()
	room, ok := b.rooms[auctionID]
	if ok {
		if _, member := room[sub]; !member {
			ok = false
		} else {
			delete(room, sub)
			if len(room) == 0 {
				delete(b.rooms, auctionID)
			}
		}
	}
	b.mu.Unlock()

	if !ok {
		return
	}
	if b.presence != nil {
		if err := b.presence.Remove(ctx, auctionID, sub.UserID()); err != nil {
			log.Warn().Err(err).Str("auction_id", auctionID).Msg("presence remove failed")
		}
	}
	log.Debug().
		Str("auction_id", auctionID).
		Str("connection_id", sub.ID()).
		Msg("subscriber left room")
}

// LeaveAll removes the subscriber from every room it joined. Invoked on
// disconnect.
func (b *Broadcaster) LeaveAll(ctx context.Context, sub Subscriber) {
	b.mu.Lock()
	var left []string
	for auctionID, room := range b.rooms {
		if _, member := room[sub]; member {
			delete(room, sub)
			if len(room) == 0 {
				delete(b.rooms, auctionID)
			}
			left = append(left, auctionID)
		}
	}
	b.mu.Unlock()

	for _, auctionID := range left {
		if b.presence != nil {
			if err := b.presence.Remove(ctx, auctionID, sub.UserID()); err != nil {
				log.Warn().Err(err).Str("auction_id", auctionID).Msg("presence remove failed")
			}
		}
	}
}

// Publish delivers the event to every connection in the room at call time.
// Connections that join afterwards do not receive it; there is no replay.
func (b *Broadcaster) Publish(auctionID string, ev *events.Event) {
	b.mu.RLock()
	room, ok := b.rooms[auctionID]
	if !ok {
		b.mu.RUnlock()
		return
	}
	targets := make([]Subscriber, 0, len(room))
	for sub := range room {
		targets = append(targets, sub)
	}
	b.mu.RUnlock()

	var dropped []Subscriber
	for _, sub := range targets {
		if !sub.Deliver(ev) {
			dropped = append(dropped, sub)
		}
	}

	// A subscriber that cannot keep up forfeits room membership rather than
	// stalling delivery to the rest of the room.
	for _, sub := range dropped {
		log.Warn().
			Str("auction_id", auctionID).
			Str("connection_id", sub.ID()).
			Msg("subscriber send buffer full, removing from rooms")
		b.LeaveAll(context.Background(), sub)
		if e, ok := sub.(Evictee); ok {
			e.Evicted()
		}
	}

	log.Debug().
		Str("auction_id", auctionID).
		Str("event_type", string(ev.Type)).
		Int("subscribers", len(targets)).
		Msg("event broadcast to room")
}

// Broadcast implements events.Sink so stream consumers can feed rooms.
func (b *Broadcaster) Broadcast(auctionID string, ev *events.Event) {
	b.Publish(auctionID, ev)
}

// RoomSize returns the number of subscribers currently in the room.
func (b *Broadcaster) RoomSize(auctionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.rooms[auctionID])
}

// Stats returns per-room subscriber counts.
func (b *Broadcaster) Stats() map[string]int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string]int, len(b.rooms))
	for auctionID, room := range b.rooms {
		out[auctionID] = len(room)
	}
	return out
}
