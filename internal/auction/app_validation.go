package auction

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func validateCreateAuctionRequest(req CreateAuctionRequest, now time.Time) error {
	if err := validateAuctionPrices(req.StartingPrice, req.MinBidIncrement); err != nil {
		return err
	}
	if req.BuyNowPrice != nil && req.BuyNowPrice.LessThanOrEqual(req.StartingPrice) {
		return fmt.Errorf("buy-now price must exceed the starting price: %w", ErrValidation)
	}
	if req.ReservePrice != nil && !req.ReservePrice.IsPositive() {
		return fmt.Errorf("reserve price must be positive: %w", ErrValidation)
	}
	return validateAuctionTimes(req.StartTime, req.EndTime, now)
}

func validateAuctionPrices(startingPrice, minBidIncrement decimal.Decimal) error {
	if !startingPrice.IsPositive() {
		return fmt.Errorf("starting price must be positive: %w", ErrValidation)
	}
	if !minBidIncrement.IsPositive() {
		return fmt.Errorf("minimum bid increment must be positive: %w", ErrValidation)
	}
	return nil
}

func validateAuctionTimes(start, end, now time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("start and end times are required: %w", ErrValidation)
	}
	if start.Before(now) {
		return fmt.Errorf("start time must not be in the past: %w", ErrValidation)
	}
	if !end.After(start) {
		return fmt.Errorf("end time must be after start time: %w", ErrValidation)
	}
	return nil
}
