package auction

import (
	"context"

	"github.com/google/uuid"

	"github.com/seamarket/fishbid/internal/models"
)

// Store defines what the auction app needs from the persistent store. The
// store is the system of record; implementations must confirm writes before
// returning nil.
type Store interface {
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	// CreateAuction inserts the auction and claims its fish in one atomic
	// step; it fails with ErrValidation when the fish is already claimed, so
	// two concurrent creates can never both succeed for one fish.
	CreateAuction(ctx context.Context, a *models.Auction) error
	SaveAuction(ctx context.Context, a *models.Auction) error
	GetFish(ctx context.Context, id uuid.UUID) (*models.Fish, error)
	SaveFish(ctx context.Context, f *models.Fish) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}
