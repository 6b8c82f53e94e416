package auction

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seamarket/fishbid/internal/models"
)

// ValidateBid decides whether bidder may place amount on the auction at now.
// It is a pure decision over the snapshot; rejections are checked in priority
// order: status, own-auction, bid floor. A nil auction is the caller's
// not-found case and must be rejected before calling here.
func ValidateBid(a *models.Auction, bidder uuid.UUID, amount decimal.Decimal, now time.Time) error {
	if status := DeriveStatus(a, now); status != models.AuctionStatusActive {
		return fmt.Errorf("auction is %s: %w", status, ErrInvalidState)
	}
	if bidder == a.SellerID {
		return fmt.Errorf("cannot bid on own auction: %w", ErrUnauthorized)
	}
	if floor := a.BidFloor(); amount.LessThan(floor) {
		return fmt.Errorf("bid must be at least %s: %w", floor.String(), ErrValidation)
	}
	return nil
}

// ApplyBid appends an accepted bid to the auction and advances the current
// price. When the amount meets the buy-now price (and the reserve, if one is
// set) the auction completes immediately in favor of the bidder and the end
// time is clamped to now. Returns the recorded bid and whether the auction
// completed.
//
// The caller must have validated the bid against this same snapshot and must
// hold the auction's sequencer while applying.
func ApplyBid(a *models.Auction, bidder uuid.UUID, amount decimal.Decimal, now time.Time) (models.Bid, bool) {
	bid := models.Bid{
		ID:       uuid.New(),
		BidderID: bidder,
		Amount:   amount,
		PlacedAt: now,
	}
	a.Bids = append(a.Bids, bid)
	a.CurrentPrice = amount
	a.UpdatedAt = now

	if a.BuyNowPrice != nil && amount.GreaterThanOrEqual(*a.BuyNowPrice) && a.ReserveMet(amount) {
		a.WinnerID = &bid.BidderID
		a.Status = models.AuctionStatusCompleted
		a.EndTime = now
		return bid, true
	}
	return bid, false
}
