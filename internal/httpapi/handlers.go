package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/seamarket/fishbid/internal/auction"
	"github.com/seamarket/fishbid/internal/auth"
)

func (s *Server) handleCreateAuction(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	var req auction.CreateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// The seller is always the authenticated caller.
	req.SellerID = identity.UserID

	auc, err := s.auctions.CreateAuction(r.Context(), req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, auc)
}

func (s *Server) handleGetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	auc, err := s.auctions.GetAuction(r.Context(), id)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, auc)
}

func (s *Server) handleUpdateAuction(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	var req auction.UpdateAuctionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	auc, err := s.auctions.UpdateAuction(r.Context(), id, identity.UserID, req)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, auc)
}

func (s *Server) handleCancelAuction(w http.ResponseWriter, r *http.Request, identity auth.Identity) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid auction id")
		return
	}

	auc, err := s.auctions.CancelAuction(r.Context(), id, identity.UserID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, auc)
}
