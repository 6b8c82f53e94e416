package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seamarket/fishbid/internal/models"
)

// EventType represents the type of auction room event.
type EventType string

const (
	EventTypeBidAccepted      EventType = "bid-accepted"
	EventTypeAuctionCompleted EventType = "auction-completed"
	EventTypeRoomJoined       EventType = "room-joined"
	EventTypeRoomLeft         EventType = "room-left"
	EventTypeError            EventType = "error"
)

// Event is the envelope delivered to room observers and carried on the event
// backbone. Data holds the type-specific payload.
type Event struct {
	ID        string          `json:"id"`
	AuctionID string          `json:"auction_id"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// BidAcceptedPayload announces an accepted bid to the room.
type BidAcceptedPayload struct {
	BidID        string               `json:"bid_id"`
	BidderID     string               `json:"bidder_id"`
	Amount       decimal.Decimal      `json:"amount"`
	CurrentPrice decimal.Decimal      `json:"current_price"`
	Status       models.AuctionStatus `json:"status"`
	PlacedAt     time.Time            `json:"placed_at"`
}

// AuctionCompletedPayload announces a terminal completion to the room. The
// winner is omitted when the reserve was never met.
type AuctionCompletedPayload struct {
	WinnerID   *string         `json:"winner_id,omitempty"`
	FinalPrice decimal.Decimal `json:"final_price"`
}

// RoomJoinedPayload is a presence notice; the joining connection additionally
// receives the auction snapshot.
type RoomJoinedPayload struct {
	UserID  string          `json:"user_id"`
	Auction *models.Auction `json:"auction,omitempty"`
}

// RoomLeftPayload is a presence notice.
type RoomLeftPayload struct {
	UserID string `json:"user_id"`
}

// ErrorPayload carries a rejection reason. Error events are only ever
// delivered to the originating connection, never broadcast room-wide.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// New builds an event envelope around a payload.
func New(auctionID uuid.UUID, eventType EventType, at time.Time, payload any) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &Event{
		ID:        uuid.New().String(),
		AuctionID: auctionID.String(),
		Type:      eventType,
		Timestamp: at,
		Data:      data,
	}, nil
}

// ParsePayload decodes an event's data into the payload struct for its type.
func ParsePayload(ev *Event) (any, error) {
	switch ev.Type {
	case EventTypeBidAccepted:
		var p BidAcceptedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeAuctionCompleted:
		var p AuctionCompletedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeRoomJoined:
		var p RoomJoinedPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeRoomLeft:
		var p RoomLeftPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	case EventTypeError:
		var p ErrorPayload
		if err := json.Unmarshal(ev.Data, &p); err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown event type: %s", ev.Type)
	}
}
