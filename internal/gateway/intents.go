package gateway

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/seamarket/fishbid/internal/auction"
	"github.com/seamarket/fishbid/internal/events"
)

// Intent types accepted from clients.
const (
	IntentJoin     = "join"
	IntentLeave    = "leave"
	IntentPlaceBid = "place_bid"
)

// Intent is a client message on the realtime connection.
type Intent struct {
	Type      string          `json:"type"`
	AuctionID string          `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// dispatch routes one client intent. Rejections are delivered to the
// originating session only; rooms only ever see confirmed state changes.
func (h *Handler) dispatch(ctx context.Context, s *Session, message []byte) {
	var intent Intent
	if err := json.Unmarshal(message, &intent); err != nil {
		h.sendError(s, "", "bad_request", "malformed intent")
		return
	}

	auctionID, err := uuid.Parse(intent.AuctionID)
	if err != nil {
		h.sendError(s, intent.AuctionID, "bad_request", "invalid auction id")
		return
	}

	switch intent.Type {
	case IntentJoin:
		h.handleJoin(ctx, s, auctionID)
	case IntentLeave:
		h.handleLeave(ctx, s, auctionID)
	case IntentPlaceBid:
		h.handlePlaceBid(ctx, s, auctionID, intent.Amount)
	default:
		h.sendError(s, intent.AuctionID, "bad_request", "unknown intent type: "+intent.Type)
	}
}

// handleJoin subscribes the session to the auction's room, sends the joining
// connection an auction snapshot, and announces the presence to the room.
func (h *Handler) handleJoin(ctx context.Context, s *Session, auctionID uuid.UUID) {
	auc, err := h.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		h.sendDomainError(s, auctionID.String(), err)
		return
	}

	h.rooms.Join(ctx, auctionID.String(), s)
	if !s.trackJoin(auctionID.String()) {
		return
	}

	snapshot, err := events.New(auctionID, events.EventTypeRoomJoined, auc.UpdatedAt, events.RoomJoinedPayload{
		UserID:  s.UserID(),
		Auction: auc,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build room-joined snapshot")
	} else {
		s.Deliver(snapshot)
	}

	h.publishPresence(auctionID.String(), events.EventTypeRoomJoined, s)
}

// handleLeave unsubscribes the session and announces the departure.
func (h *Handler) handleLeave(ctx context.Context, s *Session, auctionID uuid.UUID) {
	h.rooms.Leave(ctx, auctionID.String(), s)
	if !s.trackLeave(auctionID.String()) {
		return
	}
	h.publishPresence(auctionID.String(), events.EventTypeRoomLeft, s)
}

// handlePlaceBid submits the bid to the auction's sequencer. Joining the room
// is not required to bid, so the outcome is always reported directly on this
// connection; acceptance additionally reaches the room through the event
// backbone.
func (h *Handler) handlePlaceBid(ctx context.Context, s *Session, auctionID uuid.UUID, amount decimal.Decimal) {
	outcome, err := h.bids.SubmitBid(ctx, auctionID, s.identity.UserID, amount)
	if err != nil {
		h.sendDomainError(s, auctionID.String(), err)
		return
	}

	accepted, err := events.New(auctionID, events.EventTypeBidAccepted, outcome.Bid.PlacedAt, events.BidAcceptedPayload{
		BidID:        outcome.Bid.ID.String(),
		BidderID:     outcome.Bid.BidderID.String(),
		Amount:       outcome.Bid.Amount,
		CurrentPrice: outcome.CurrentPrice,
		Status:       outcome.Auction.Status,
		PlacedAt:     outcome.Bid.PlacedAt,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to build bid outcome event")
		return
	}
	s.Deliver(accepted)

	if outcome.Completed {
		payload := events.AuctionCompletedPayload{FinalPrice: outcome.CurrentPrice}
		if outcome.WinnerID != nil {
			winner := outcome.WinnerID.String()
			payload.WinnerID = &winner
		}
		completed, err := events.New(auctionID, events.EventTypeAuctionCompleted, outcome.Bid.PlacedAt, payload)
		if err != nil {
			log.Error().Err(err).Msg("failed to build completion outcome event")
			return
		}
		s.Deliver(completed)
	}
}

// publishPresence announces a join/leave to the room. Presence notices are
// instance-local; they never travel the event backbone.
func (h *Handler) publishPresence(auctionID string, eventType events.EventType, s *Session) {
	var payload any
	switch eventType {
	case events.EventTypeRoomJoined:
		payload = events.RoomJoinedPayload{UserID: s.UserID()}
	case events.EventTypeRoomLeft:
		payload = events.RoomLeftPayload{UserID: s.UserID()}
	default:
		return
	}

	id, err := uuid.Parse(auctionID)
	if err != nil {
		return
	}
	ev, err := events.New(id, eventType, timeNow(), payload)
	if err != nil {
		log.Error().Err(err).Msg("failed to build presence event")
		return
	}
	h.rooms.Publish(auctionID, ev)
}

// sendDomainError maps a domain error onto an error event for the session.
func (h *Handler) sendDomainError(s *Session, auctionID string, err error) {
	code := "internal"
	switch {
	case errors.Is(err, auction.ErrNotFound):
		code = "not_found"
	case errors.Is(err, auction.ErrInvalidState):
		code = "invalid_state"
	case errors.Is(err, auction.ErrUnauthorized):
		code = "unauthorized"
	case errors.Is(err, auction.ErrValidation):
		code = "bid_rejected"
	case errors.Is(err, auction.ErrPersistence):
		code = "retryable"
	}
	h.sendError(s, auctionID, code, err.Error())
}

// sendError delivers a rejection to the originating session only.
func (h *Handler) sendError(s *Session, auctionID, code, message string) {
	id, err := uuid.Parse(auctionID)
	if err != nil {
		id = uuid.Nil
	}
	ev, evErr := events.New(id, events.EventTypeError, timeNow(), events.ErrorPayload{
		Code:    code,
		Message: message,
	})
	if evErr != nil {
		log.Error().Err(evErr).Msg("failed to build error event")
		return
	}
	s.Deliver(ev)
}
