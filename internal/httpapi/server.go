// Package httpapi exposes the auction command surface: create, update,
// cancel, and read auctions. Bid submission never goes through here; it
// belongs to the realtime gateway.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/seamarket/fishbid/internal/auction"
	"github.com/seamarket/fishbid/internal/auth"
	"github.com/seamarket/fishbid/internal/models"
)

// AuctionService is what the API needs from the auction app.
type AuctionService interface {
	CreateAuction(ctx context.Context, req auction.CreateAuctionRequest) (*models.Auction, error)
	GetAuction(ctx context.Context, id uuid.UUID) (*models.Auction, error)
	UpdateAuction(ctx context.Context, id, requesterID uuid.UUID, req auction.UpdateAuctionRequest) (*models.Auction, error)
	CancelAuction(ctx context.Context, id, requesterID uuid.UUID) (*models.Auction, error)
}

// Server serves the auction command API.
type Server struct {
	auctions AuctionService
	verifier *auth.Verifier
}

// NewServer creates the command API server.
func NewServer(auctions AuctionService, verifier *auth.Verifier) *Server {
	return &Server{
		auctions: auctions,
		verifier: verifier,
	}
}

// Routes returns the API handler with CORS and access logging applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/auctions", s.requireAuth(s.handleCreateAuction))
	mux.HandleFunc("GET /api/auctions/{id}", s.handleGetAuction)
	mux.HandleFunc("PUT /api/auctions/{id}", s.requireAuth(s.handleUpdateAuction))
	mux.HandleFunc("PUT /api/auctions/{id}/cancel", s.requireAuth(s.handleCancelAuction))

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	})
	return c.Handler(logRequests(mux))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, identity auth.Identity)

// requireAuth verifies the bearer credential and hands the identity to the
// wrapped handler.
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		identity, err := s.verifier.Verify(token)
		if err != nil {
			respondError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next(w, r, identity)
	}
}

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Msg("http request")
		next.ServeHTTP(w, r)
	})
}

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response{Success: true, Data: data}); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(response{Success: false, Message: message}); err != nil {
		log.Error().Err(err).Msg("failed to encode error response")
	}
}

// respondDomainError maps the domain error taxonomy onto HTTP status codes.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auction.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, auction.ErrUnauthorized):
		respondError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auction.ErrInvalidState), errors.Is(err, auction.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, auction.ErrPersistence):
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
