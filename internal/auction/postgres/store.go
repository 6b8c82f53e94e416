// Package postgres implements the auction store on PostgreSQL. Each auction
// is one row with its bid log held as a JSONB document, which keeps the
// load-modify-save cycle the sequencer owns a single-row operation.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/seamarket/fishbid/internal/auction"
	"github.com/seamarket/fishbid/internal/models"
)

// Store implements auction.Store on a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a postgres-backed auction store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pgx pool and verifies the connection.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

const auctionColumns = `id, fish_id, seller_id, winner_id,
	starting_price::text, current_price::text, min_bid_increment::text,
	buy_now_price::text, reserve_price::text,
	start_time, end_time, status, bids, created_at, updated_at`

// GetAuction loads an auction by id.
func (s *Store) GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, id)
	return scanAuction(row)
}

// CreateAuction inserts a new auction row and claims its fish in the same
// transaction, so a failed claim leaves no auction behind and two concurrent
// creates can never both take the same fish.
func (s *Store) CreateAuction(ctx context.Context, a *models.Auction) error {
	bids, err := json.Marshal(a.Bids)
	if err != nil {
		return fmt.Errorf("marshal bids: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO auctions (
			id, fish_id, seller_id, winner_id,
			starting_price, current_price, min_bid_increment,
			buy_now_price, reserve_price,
			start_time, end_time, status, bids, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		a.ID, a.FishID, a.SellerID, a.WinnerID,
		a.StartingPrice.String(), a.CurrentPrice.String(), a.MinBidIncrement.String(),
		optDecimal(a.BuyNowPrice), optDecimal(a.ReservePrice),
		a.StartTime, a.EndTime, a.Status, bids, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert auction: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE fish SET is_auctioned = TRUE WHERE id = $1 AND NOT is_auctioned`, a.FishID)
	if err != nil {
		return fmt.Errorf("claim fish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fish %s is already in an auction: %w", a.FishID, auction.ErrValidation)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit auction create: %w", err)
	}
	return nil
}

// SaveAuction overwrites the full auction row. The caller (the auction's
// sequencer, or the command app for pending records) owns serialization, so
// the write is a plain replace; a confirmed update is a durable commit.
func (s *Store) SaveAuction(ctx context.Context, a *models.Auction) error {
	bids, err := json.Marshal(a.Bids)
	if err != nil {
		return fmt.Errorf("marshal bids: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE auctions SET
			winner_id = $2,
			starting_price = $3, current_price = $4, min_bid_increment = $5,
			buy_now_price = $6, reserve_price = $7,
			start_time = $8, end_time = $9, status = $10, bids = $11, updated_at = $12
		WHERE id = $1`,
		a.ID, a.WinnerID,
		a.StartingPrice.String(), a.CurrentPrice.String(), a.MinBidIncrement.String(),
		optDecimal(a.BuyNowPrice), optDecimal(a.ReservePrice),
		a.StartTime, a.EndTime, a.Status, bids, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("auction %s: %w", a.ID, auction.ErrNotFound)
	}
	return nil
}

// GetFish loads a fish listing by id.
func (s *Store) GetFish(ctx context.Context, id uuid.UUID) (*models.Fish, error) {
	var f models.Fish
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, description, weight_kg, category, condition, location,
			seller_id, is_auctioned, created_at
		FROM fish WHERE id = $1`, id).
		Scan(&f.ID, &f.Name, &f.Description, &f.WeightKg, &f.Category, &f.Condition,
			&f.Location, &f.SellerID, &f.IsAuctioned, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("fish %s: %w", id, auction.ErrNotFound)
		}
		return nil, fmt.Errorf("get fish: %w", err)
	}
	return &f, nil
}

// SaveFish updates a fish listing, used to claim and release the auction flag.
func (s *Store) SaveFish(ctx context.Context, f *models.Fish) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE fish SET is_auctioned = $2 WHERE id = $1`,
		f.ID, f.IsAuctioned)
	if err != nil {
		return fmt.Errorf("update fish: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("fish %s: %w", f.ID, auction.ErrNotFound)
	}
	return nil
}

// GetUser loads a user identity by id.
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var u models.User
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, email, role, created_at FROM users WHERE id = $1`, id).
		Scan(&u.ID, &u.Name, &u.Email, &u.Role, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", id, auction.ErrNotFound)
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &u, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAuction(row rowScanner) (*models.Auction, error) {
	var (
		a         models.Auction
		starting  string
		current   string
		increment string
		buyNow    *string
		reserve   *string
		bids      []byte
	)
	err := row.Scan(&a.ID, &a.FishID, &a.SellerID, &a.WinnerID,
		&starting, &current, &increment, &buyNow, &reserve,
		&a.StartTime, &a.EndTime, &a.Status, &bids, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auction.ErrNotFound
		}
		return nil, fmt.Errorf("scan auction: %w", err)
	}

	if a.StartingPrice, err = decimal.NewFromString(starting); err != nil {
		return nil, fmt.Errorf("parse starting price: %w", err)
	}
	if a.CurrentPrice, err = decimal.NewFromString(current); err != nil {
		return nil, fmt.Errorf("parse current price: %w", err)
	}
	if a.MinBidIncrement, err = decimal.NewFromString(increment); err != nil {
		return nil, fmt.Errorf("parse min bid increment: %w", err)
	}
	if a.BuyNowPrice, err = parseOptDecimal(buyNow); err != nil {
		return nil, fmt.Errorf("parse buy-now price: %w", err)
	}
	if a.ReservePrice, err = parseOptDecimal(reserve); err != nil {
		return nil, fmt.Errorf("parse reserve price: %w", err)
	}
	if err := json.Unmarshal(bids, &a.Bids); err != nil {
		return nil, fmt.Errorf("unmarshal bids: %w", err)
	}
	return &a, nil
}

func optDecimal(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := d.String()
	return &s
}

func parseOptDecimal(s *string) (*decimal.Decimal, error) {
	if s == nil {
		return nil, nil
	}
	d, err := decimal.NewFromString(*s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
