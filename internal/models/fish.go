package models

import (
	"time"

	"github.com/google/uuid"
)

// FishCategory defines the catch category of a fish listing.
type FishCategory string

const (
	FishCategoryFreshwater FishCategory = "freshwater"
	FishCategorySaltwater  FishCategory = "saltwater"
	FishCategoryShellfish  FishCategory = "shellfish"
	FishCategoryOther      FishCategory = "other"
)

// FishCondition defines the state the catch is sold in.
type FishCondition string

const (
	FishConditionFresh     FishCondition = "fresh"
	FishConditionFrozen    FishCondition = "frozen"
	FishConditionProcessed FishCondition = "processed"
)

// Fish is a fish listing that can be put up for auction.
// A fish may be in at most one open auction at a time; IsAuctioned marks the
// exclusive claim and is released when the auction is cancelled.
type Fish struct {
	ID          uuid.UUID     `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	WeightKg    float64       `json:"weight_kg"`
	Category    FishCategory  `json:"category"`
	Condition   FishCondition `json:"condition"`
	Location    string        `json:"location"`
	SellerID    uuid.UUID     `json:"seller_id"`
	IsAuctioned bool          `json:"is_auctioned"`
	CreatedAt   time.Time     `json:"created_at"`
}
