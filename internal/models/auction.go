package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AuctionStatus defines the lifecycle state of an auction.
type AuctionStatus string

const (
	AuctionStatusPending   AuctionStatus = "pending"
	AuctionStatusActive    AuctionStatus = "active"
	AuctionStatusCompleted AuctionStatus = "completed"
	AuctionStatusCancelled AuctionStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s AuctionStatus) Terminal() bool {
	return s == AuctionStatusCompleted || s == AuctionStatusCancelled
}

// Bid is a single accepted bid inside an auction's bid log.
// Insertion order in Auction.Bids is the authoritative bid order.
type Bid struct {
	ID       uuid.UUID       `json:"id"`
	BidderID uuid.UUID       `json:"bidder_id"`
	Amount   decimal.Decimal `json:"amount"`
	PlacedAt time.Time       `json:"placed_at"`
}

// Auction represents one fish item's bidding process.
//
// CurrentPrice equals StartingPrice while Bids is empty, otherwise the amount
// of the last element of Bids. Amounts are strictly increasing across Bids.
type Auction struct {
	ID       uuid.UUID  `json:"id"`
	FishID   uuid.UUID  `json:"fish_id"`
	SellerID uuid.UUID  `json:"seller_id"`
	WinnerID *uuid.UUID `json:"winner_id,omitempty"`

	StartingPrice   decimal.Decimal  `json:"starting_price"`
	CurrentPrice    decimal.Decimal  `json:"current_price"`
	MinBidIncrement decimal.Decimal  `json:"min_bid_increment"`
	BuyNowPrice     *decimal.Decimal `json:"buy_now_price,omitempty"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Status    AuctionStatus `json:"status"`

	Bids []Bid `json:"bids"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BidFloor returns the minimum acceptable next bid.
func (a *Auction) BidFloor() decimal.Decimal {
	return a.CurrentPrice.Add(a.MinBidIncrement)
}

// LastBid returns the most recent bid, or nil if none have been placed.
func (a *Auction) LastBid() *Bid {
	if len(a.Bids) == 0 {
		return nil
	}
	return &a.Bids[len(a.Bids)-1]
}

// ReserveMet reports whether amount satisfies the reserve price, if one is set.
func (a *Auction) ReserveMet(amount decimal.Decimal) bool {
	if a.ReservePrice == nil {
		return true
	}
	return amount.GreaterThanOrEqual(*a.ReservePrice)
}

// Clone returns a deep copy of the auction, including its bid log.
func (a *Auction) Clone() *Auction {
	cp := *a
	if a.WinnerID != nil {
		w := *a.WinnerID
		cp.WinnerID = &w
	}
	if a.BuyNowPrice != nil {
		p := *a.BuyNowPrice
		cp.BuyNowPrice = &p
	}
	if a.ReservePrice != nil {
		p := *a.ReservePrice
		cp.ReservePrice = &p
	}
	cp.Bids = make([]Bid, len(a.Bids))
	copy(cp.Bids, a.Bids)
	return &cp
}
