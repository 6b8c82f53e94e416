package auction

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/seamarket/fishbid/internal/models"
)

// App handles the auction command surface: create, update, cancel, get.
// Bid submission is owned by the sequencer, never by this layer.
type App struct {
	store Store
	clock clockwork.Clock
}

// NewApp creates a new auction App.
func NewApp(store Store, clock clockwork.Clock) *App {
	return &App{
		store: store,
		clock: clock,
	}
}

// CreateAuction creates a new pending auction after validating the request,
// the seller's ownership of the fish, and the fish's auction exclusivity.
// The store claims the fish in the same write that records the auction.
func (a *App) CreateAuction(ctx context.Context, req CreateAuctionRequest) (*models.Auction, error) {
	now := a.clock.Now()
	if err := validateCreateAuctionRequest(req, now); err != nil {
		return nil, err
	}

	fish, err := a.store.GetFish(ctx, req.FishID)
	if err != nil {
		return nil, fmt.Errorf("fish %s: %w", req.FishID, err)
	}

	requester, err := a.store.GetUser(ctx, req.SellerID)
	if err != nil {
		return nil, fmt.Errorf("seller %s: %w", req.SellerID, err)
	}
	if fish.SellerID != req.SellerID && !requester.IsAdmin() {
		return nil, fmt.Errorf("fish belongs to another seller: %w", ErrUnauthorized)
	}
	if fish.IsAuctioned {
		return nil, fmt.Errorf("fish is already in an auction: %w", ErrValidation)
	}

	auc := &models.Auction{
		ID:              uuid.New(),
		FishID:          req.FishID,
		SellerID:        req.SellerID,
		StartingPrice:   req.StartingPrice,
		CurrentPrice:    req.StartingPrice,
		MinBidIncrement: req.MinBidIncrement,
		BuyNowPrice:     req.BuyNowPrice,
		ReservePrice:    req.ReservePrice,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		Status:          models.AuctionStatusPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := a.store.CreateAuction(ctx, auc); err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}

	log.Info().
		Str("auction_id", auc.ID.String()).
		Str("fish_id", fish.ID.String()).
		Str("seller_id", auc.SellerID.String()).
		Time("start_time", auc.StartTime).
		Time("end_time", auc.EndTime).
		Msg("auction created")

	return auc, nil
}

// GetAuction returns the auction with its time-derived status applied. The
// persisted record is not rewritten on the read path.
func (a *App) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	auc, err := a.store.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("auction %s: %w", id, err)
	}
	Refresh(auc, a.clock.Now())
	return auc, nil
}

// UpdateAuction updates a pending auction. Only the seller or an admin may
// update, and only while the auction has not started.
func (a *App) UpdateAuction(ctx context.Context, id uuid.UUID, requesterID uuid.UUID, req UpdateAuctionRequest) (*models.Auction, error) {
	auc, err := a.store.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("auction %s: %w", id, err)
	}

	now := a.clock.Now()
	if err := a.authorizeSellerAction(ctx, auc, requesterID); err != nil {
		return nil, err
	}
	if status := DeriveStatus(auc, now); status != models.AuctionStatusPending {
		return nil, fmt.Errorf("cannot update auction that is %s: %w", status, ErrInvalidState)
	}

	applyAuctionUpdate(auc, req)
	auc.UpdatedAt = now
	if err := validateAuctionTimes(auc.StartTime, auc.EndTime, now); err != nil {
		return nil, err
	}
	if err := validateAuctionPrices(auc.StartingPrice, auc.MinBidIncrement); err != nil {
		return nil, err
	}

	if err := a.store.SaveAuction(ctx, auc); err != nil {
		return nil, fmt.Errorf("save auction: %w", err)
	}

	log.Info().Str("auction_id", auc.ID.String()).Msg("auction updated")
	return auc, nil
}

// CancelAuction cancels a pending or active auction on behalf of its seller
// or an admin, and releases the fish for a future auction. Completed auctions
// can never be cancelled.
func (a *App) CancelAuction(ctx context.Context, id uuid.UUID, requesterID uuid.UUID) (*models.Auction, error) {
	auc, err := a.store.GetAuction(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("auction %s: %w", id, err)
	}

	if err := a.authorizeSellerAction(ctx, auc, requesterID); err != nil {
		return nil, err
	}

	now := a.clock.Now()
	if status := DeriveStatus(auc, now); status.Terminal() {
		return nil, fmt.Errorf("cannot cancel auction that is %s: %w", status, ErrInvalidState)
	}

	auc.Status = models.AuctionStatusCancelled
	auc.UpdatedAt = now
	if err := a.store.SaveAuction(ctx, auc); err != nil {
		return nil, fmt.Errorf("save auction: %w", err)
	}

	fish, err := a.store.GetFish(ctx, auc.FishID)
	if err == nil {
		fish.IsAuctioned = false
		if err := a.store.SaveFish(ctx, fish); err != nil {
			log.Error().Err(err).Str("fish_id", fish.ID.String()).Msg("failed to release fish after cancel")
		}
	}

	log.Info().
		Str("auction_id", auc.ID.String()).
		Str("requester_id", requesterID.String()).
		Msg("auction cancelled")

	return auc, nil
}

// authorizeSellerAction checks that the requester is the auction's seller or
// an admin.
func (a *App) authorizeSellerAction(ctx context.Context, auc *models.Auction, requesterID uuid.UUID) error {
	if requesterID == auc.SellerID {
		return nil
	}
	requester, err := a.store.GetUser(ctx, requesterID)
	if err != nil {
		return fmt.Errorf("requester %s: %w", requesterID, err)
	}
	if !requester.IsAdmin() {
		return fmt.Errorf("only the seller or an admin may do this: %w", ErrUnauthorized)
	}
	return nil
}

func applyAuctionUpdate(auc *models.Auction, req UpdateAuctionRequest) {
	if req.StartingPrice != nil {
		auc.StartingPrice = *req.StartingPrice
		auc.CurrentPrice = *req.StartingPrice
	}
	if req.MinBidIncrement != nil {
		auc.MinBidIncrement = *req.MinBidIncrement
	}
	if req.BuyNowPrice != nil {
		auc.BuyNowPrice = req.BuyNowPrice
	}
	if req.ReservePrice != nil {
		auc.ReservePrice = req.ReservePrice
	}
	if req.StartTime != nil {
		auc.StartTime = *req.StartTime
	}
	if req.EndTime != nil {
		auc.EndTime = *req.EndTime
	}
}
