package auction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreateAuctionRequest represents a request to create a new auction.
type CreateAuctionRequest struct {
	SellerID        uuid.UUID        `json:"seller_id"`
	FishID          uuid.UUID        `json:"fish_id"`
	StartingPrice   decimal.Decimal  `json:"starting_price"`
	MinBidIncrement decimal.Decimal  `json:"min_bid_increment"`
	BuyNowPrice     *decimal.Decimal `json:"buy_now_price,omitempty"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	StartTime       time.Time        `json:"start_time"`
	EndTime         time.Time        `json:"end_time"`
}

// UpdateAuctionRequest represents a request to update a pending auction.
// Nil fields are left unchanged.
type UpdateAuctionRequest struct {
	StartingPrice   *decimal.Decimal `json:"starting_price,omitempty"`
	MinBidIncrement *decimal.Decimal `json:"min_bid_increment,omitempty"`
	BuyNowPrice     *decimal.Decimal `json:"buy_now_price,omitempty"`
	ReservePrice    *decimal.Decimal `json:"reserve_price,omitempty"`
	StartTime       *time.Time       `json:"start_time,omitempty"`
	EndTime         *time.Time       `json:"end_time,omitempty"`
}
