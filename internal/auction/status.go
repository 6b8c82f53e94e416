package auction

import (
	"time"

	"github.com/seamarket/fishbid/internal/models"
)

// DeriveStatus returns the status an auction should have at now. Terminal
// statuses are sticky; otherwise the status follows wall-clock time alone.
//
// Every read path that feeds a bid decision must call this rather than trust
// the persisted status field: an auction can expire between two bid attempts
// without any explicit event.
func DeriveStatus(a *models.Auction, now time.Time) models.AuctionStatus {
	if a.Status.Terminal() {
		return a.Status
	}
	if now.Before(a.StartTime) {
		return models.AuctionStatusPending
	}
	if now.Before(a.EndTime) {
		return models.AuctionStatusActive
	}
	return models.AuctionStatusCompleted
}

// Refresh applies the time-derived status to the record and reports whether
// it changed. A change stamps UpdatedAt with the observation time. When the
// refresh completes the auction by expiry, the winner is the last bidder
// provided the final price met the reserve.
func Refresh(a *models.Auction, now time.Time) bool {
	derived := DeriveStatus(a, now)
	if derived == a.Status {
		return false
	}
	a.Status = derived
	a.UpdatedAt = now
	if derived == models.AuctionStatusCompleted {
		if last := a.LastBid(); last != nil && a.ReserveMet(last.Amount) {
			bidder := last.BidderID
			a.WinnerID = &bidder
		}
	}
	return true
}
