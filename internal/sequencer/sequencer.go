// Package sequencer serializes bid attempts per auction so that
// read-validate-apply-persist executes as one indivisible unit against every
// other attempt on the same auction, while different auctions proceed fully
// concurrently.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/seamarket/fishbid/internal/auction"
	"github.com/seamarket/fishbid/internal/events"
	"github.com/seamarket/fishbid/internal/models"
)

// Store defines what the sequencer needs from the persistent store.
type Store interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	SaveAuction(ctx context.Context, a *models.Auction) error
}

// BidOutcome reports an accepted bid back to the submitting caller.
type BidOutcome struct {
	Auction      *models.Auction
	Bid          models.Bid
	CurrentPrice decimal.Decimal
	Completed    bool
	WinnerID     *uuid.UUID
}

// Registry owns one sequencer per auction with work in flight. Sequencers are
// created lazily on first submission and retired once the auction reaches a
// terminal state and has no pending submissions.
type Registry struct {
	store     Store
	publisher events.Publisher
	clock     clockwork.Clock

	mu   sync.Mutex
	seqs map[uuid.UUID]*auctionSequencer
}

// auctionSequencer is the serialization point for a single auction. Bids are
// applied in strict arrival order at its lock.
type auctionSequencer struct {
	mu       sync.Mutex
	refs     int
	terminal bool
}

// NewRegistry creates a sequencer registry.
func NewRegistry(store Store, publisher events.Publisher, clock clockwork.Clock) *Registry {
	return &Registry{
		store:     store,
		publisher: publisher,
		clock:     clock,
		seqs:      make(map[uuid.UUID]*auctionSequencer),
	}
}

// SubmitBid validates and applies a bid as one atomic step with respect to
// every concurrent submission on the same auction. The updated record is
// persisted before the outcome is reported; on persistence failure no state
// change is retained and the error is retryable.
func (r *Registry) SubmitBid(ctx context.Context, auctionID, bidderID uuid.UUID, amount decimal.Decimal) (*BidOutcome, error) {
	seq := r.acquire(auctionID)
	seq.mu.Lock()
	defer func() {
		seq.mu.Unlock()
		r.release(auctionID, seq)
	}()

	auc, err := r.store.GetAuction(ctx, auctionID)
	if err != nil {
		// A nonexistent auction never reaches a terminal state on its own;
		// retire its sequencer here or bogus ids accumulate entries forever.
		if errors.Is(err, auction.ErrNotFound) {
			seq.terminal = true
		}
		return nil, fmt.Errorf("auction %s: %w", auctionID, err)
	}
	if auc.Status.Terminal() {
		seq.terminal = true
	}

	now := r.clock.Now()

	// Time advances independent of any write: the auction may have expired
	// since the previous submission. Record the lazily observed completion
	// before judging this bid against it.
	if auction.Refresh(auc, now) {
		if err := r.store.SaveAuction(ctx, auc); err != nil {
			return nil, fmt.Errorf("record status transition: %w: %v", auction.ErrPersistence, err)
		}
		if auc.Status == models.AuctionStatusCompleted {
			seq.terminal = true
			r.publishCompleted(ctx, auc)
		}
	}

	if err := auction.ValidateBid(auc, bidderID, amount, now); err != nil {
		return nil, err
	}

	// Apply to a copy so a failed write leaves nothing behind.
	updated := auc.Clone()
	bid, completed := auction.ApplyBid(updated, bidderID, amount, now)

	if err := r.store.SaveAuction(ctx, updated); err != nil {
		log.Error().Err(err).
			Str("auction_id", auctionID.String()).
			Str("bidder_id", bidderID.String()).
			Msg("bid write not confirmed, discarding")
		return nil, fmt.Errorf("confirm bid write: %w: %v", auction.ErrPersistence, err)
	}

	if completed {
		seq.terminal = true
	}

	r.publishBidAccepted(ctx, updated, bid)
	if completed {
		r.publishCompleted(ctx, updated)
	}

	log.Info().
		Str("auction_id", auctionID.String()).
		Str("bidder_id", bidderID.String()).
		Str("amount", amount.String()).
		Bool("completed", completed).
		Msg("bid accepted")

	return &BidOutcome{
		Auction:      updated,
		Bid:          bid,
		CurrentPrice: updated.CurrentPrice,
		Completed:    completed,
		WinnerID:     updated.WinnerID,
	}, nil
}

func (r *Registry) publishBidAccepted(ctx context.Context, auc *models.Auction, bid models.Bid) {
	ev, err := events.New(auc.ID, events.EventTypeBidAccepted, bid.PlacedAt, events.BidAcceptedPayload{
		BidID:        bid.ID.String(),
		BidderID:     bid.BidderID.String(),
		Amount:       bid.Amount,
		CurrentPrice: auc.CurrentPrice,
		Status:       auc.Status,
		PlacedAt:     bid.PlacedAt,
	})
	if err != nil {
		log.Error().Err(err).Str("auction_id", auc.ID.String()).Msg("failed to build bid-accepted event")
		return
	}
	if err := r.publisher.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("auction_id", auc.ID.String()).Msg("failed to publish bid-accepted event")
	}
}

func (r *Registry) publishCompleted(ctx context.Context, auc *models.Auction) {
	payload := events.AuctionCompletedPayload{FinalPrice: auc.CurrentPrice}
	if auc.WinnerID != nil {
		winner := auc.WinnerID.String()
		payload.WinnerID = &winner
	}
	ev, err := events.New(auc.ID, events.EventTypeAuctionCompleted, auc.UpdatedAt, payload)
	if err != nil {
		log.Error().Err(err).Str("auction_id", auc.ID.String()).Msg("failed to build auction-completed event")
		return
	}
	if err := r.publisher.Publish(ctx, ev); err != nil {
		log.Error().Err(err).Str("auction_id", auc.ID.String()).Msg("failed to publish auction-completed event")
	}
}

// acquire returns the auction's sequencer, creating it on first access.
func (r *Registry) acquire(auctionID uuid.UUID) *auctionSequencer {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq, ok := r.seqs[auctionID]
	if !ok {
		seq = &auctionSequencer{}
		r.seqs[auctionID] = seq
	}
	seq.refs++
	return seq
}

// release retires the sequencer once the auction is terminal and no
// submission is in flight.
func (r *Registry) release(auctionID uuid.UUID, seq *auctionSequencer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	seq.refs--
	if seq.refs == 0 && seq.terminal {
		delete(r.seqs, auctionID)
	}
}

// ActiveSequencers returns the number of live per-auction sequencers.
func (r *Registry) ActiveSequencers() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seqs)
}
