package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/mr-tron/base58"

	"github.com/solanare/reclaimer/service/db"
	"github.com/solanare/reclaimer/service/fees"
	"github.com/solanare/reclaimer/service/nats"
	"github.com/solanare/reclaimer/service/reclaim"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for history records
	defaultPageLimit   = 50
	maxPageLimit       = 500

	// maxMessageLen matches the length the transaction builder allows in
	// the batch memo.
	maxMessageLen = 100
)

// ReclaimStore is the slice of the database store the handlers need.
// *db.Store satisfies it; tests inject a fake.
type ReclaimStore interface {
	CreateReclaim(ctx context.Context, params db.CreateReclaimParams) (*db.Reclaim, error)
	ListReclaims(ctx context.Context, params db.ListReclaimsParams) ([]*db.Reclaim, error)
	DeleteReclaimsByWallet(ctx context.Context, walletAddress string) (int64, error)
	CreateBump(ctx context.Context, params db.CreateBumpParams) (*db.Bump, error)
	ListBumps(ctx context.Context, walletAddress string, limit, offset int32) ([]*db.Bump, error)
}

type createReclaimRequest struct {
	WalletAddress     string `json:"wallet_address"`
	Signature         string `json:"signature"`
	AccountsClosed    int    `json:"accounts_closed"`
	ReclaimedLamports uint64 `json:"reclaimed_lamports"`
	Tier              string `json:"tier"`
	Message           string `json:"message,omitempty"`
}

type reclaimResponse struct {
	ID                int64     `json:"id"`
	WalletAddress     string    `json:"wallet_address"`
	Signature         string    `json:"signature"`
	AccountsClosed    int       `json:"accounts_closed"`
	ReclaimedLamports uint64    `json:"reclaimed_lamports"`
	Tier              string    `json:"tier"`
	Message           string    `json:"message,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

func reclaimToResponse(rec *db.Reclaim) reclaimResponse {
	return reclaimResponse{
		ID:                rec.ID,
		WalletAddress:     rec.WalletAddress,
		Signature:         rec.Signature,
		AccountsClosed:    rec.AccountsClosed,
		ReclaimedLamports: rec.ReclaimedLamports,
		Tier:              rec.Tier,
		Message:           rec.Message,
		CreatedAt:         rec.CreatedAt,
	}
}

// handleCreateReclaim returns a handler that records a completed reclaim.
// POST /api/v1/reclaims
func handleCreateReclaim(store ReclaimStore, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createReclaimRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.WalletAddress); err != nil {
			logger.Debug("invalid wallet address", "address", req.WalletAddress, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Signature == "" {
			writeError(w, "signature is required", http.StatusBadRequest)
			return
		}
		if req.AccountsClosed < 0 {
			writeError(w, "accounts_closed cannot be negative", http.StatusBadRequest)
			return
		}
		tier, err := validateTier(req.Tier)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if len(req.Message) > maxMessageLen {
			writeError(w, fmt.Sprintf("message exceeds %d characters", maxMessageLen), http.StatusBadRequest)
			return
		}

		rec, err := store.CreateReclaim(r.Context(), db.CreateReclaimParams{
			WalletAddress:     req.WalletAddress,
			Signature:         req.Signature,
			AccountsClosed:    req.AccountsClosed,
			ReclaimedLamports: req.ReclaimedLamports,
			Tier:              tier,
			Message:           req.Message,
		})
		if err != nil {
			logger.Error("failed to create reclaim", "wallet", req.WalletAddress, "signature", req.Signature, "error", err)
			writeError(w, "failed to record reclaim", http.StatusInternalServerError)
			return
		}

		// Announcing the record is best effort; the row is the source of
		// truth for history.
		if publisher != nil {
			if err := publisher.PublishReclaim(r.Context(), reclaim.Record{
				Wallet:            rec.WalletAddress,
				Signature:         rec.Signature,
				AccountsClosed:    rec.AccountsClosed,
				ReclaimedLamports: rec.ReclaimedLamports,
				Tier:              rec.Tier,
				Message:           rec.Message,
				Timestamp:         rec.CreatedAt,
			}); err != nil {
				logger.Warn("failed to publish reclaim event", "signature", rec.Signature, "error", err)
			}
		}

		logger.Info("reclaim recorded", "wallet", rec.WalletAddress, "signature", rec.Signature, "lamports", rec.ReclaimedLamports)
		writeJSON(w, reclaimToResponse(rec), http.StatusCreated)
	})
}

// handleListReclaims returns a handler that lists reclaim history.
// GET /api/v1/reclaims?address={address}&limit={limit}&offset={offset}
func handleListReclaims(store ReclaimStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if address != "" {
			if err := validateAddress(address); err != nil {
				writeError(w, err.Error(), http.StatusBadRequest)
				return
			}
		}

		limit, offset, err := parsePagination(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		records, err := store.ListReclaims(r.Context(), db.ListReclaimsParams{
			WalletAddress: address,
			Limit:         limit,
			Offset:        offset,
		})
		if err != nil {
			logger.Error("failed to list reclaims", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]reclaimResponse, len(records))
		for i, rec := range records {
			resp[i] = reclaimToResponse(rec)
		}
		writeJSON(w, map[string]interface{}{
			"reclaims": resp,
			"count":    len(resp),
		}, http.StatusOK)
	})
}

// handleDeleteReclaims returns a handler that deletes a wallet's history.
// DELETE /api/v1/reclaims/{address}
func handleDeleteReclaims(store ReclaimStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.PathValue("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		deleted, err := store.DeleteReclaimsByWallet(r.Context(), address)
		if err != nil {
			logger.Error("failed to delete reclaims", "address", address, "error", err)
			writeError(w, "failed to delete reclaim history", http.StatusInternalServerError)
			return
		}
		if deleted == 0 {
			writeError(w, "no reclaim history for wallet", http.StatusNotFound)
			return
		}

		logger.Info("reclaim history deleted", "address", address, "deleted", deleted)
		w.WriteHeader(http.StatusNoContent)
	})
}

type createBumpRequest struct {
	WalletAddress string `json:"wallet_address"`
	TokenMint     string `json:"token_mint"`
	Signature     string `json:"signature"`
	Lamports      uint64 `json:"lamports"`
}

type bumpResponse struct {
	ID            int64     `json:"id"`
	WalletAddress string    `json:"wallet_address"`
	TokenMint     string    `json:"token_mint"`
	Signature     string    `json:"signature"`
	Lamports      uint64    `json:"lamports"`
	CreatedAt     time.Time `json:"created_at"`
}

// handleCreateBump returns a handler that records a bump swap.
// POST /api/v1/bumps
func handleCreateBump(store ReclaimStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req createBumpRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := validateAddress(req.WalletAddress); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := validateAddress(req.TokenMint); err != nil {
			writeError(w, fmt.Sprintf("token_mint: %v", err), http.StatusBadRequest)
			return
		}
		if req.Signature == "" {
			writeError(w, "signature is required", http.StatusBadRequest)
			return
		}

		bump, err := store.CreateBump(r.Context(), db.CreateBumpParams{
			WalletAddress: req.WalletAddress,
			TokenMint:     req.TokenMint,
			Signature:     req.Signature,
			Lamports:      req.Lamports,
		})
		if err != nil {
			logger.Error("failed to create bump", "wallet", req.WalletAddress, "error", err)
			writeError(w, "failed to record bump", http.StatusInternalServerError)
			return
		}

		writeJSON(w, bumpResponse{
			ID:            bump.ID,
			WalletAddress: bump.WalletAddress,
			TokenMint:     bump.TokenMint,
			Signature:     bump.Signature,
			Lamports:      bump.Lamports,
			CreatedAt:     bump.CreatedAt,
		}, http.StatusCreated)
	})
}

// handleListBumps returns a handler that lists a wallet's bump history.
// GET /api/v1/bumps?address={address}&limit={limit}&offset={offset}
func handleListBumps(store ReclaimStore, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		address := r.URL.Query().Get("address")
		if err := validateAddress(address); err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		limit, offset, err := parsePagination(r)
		if err != nil {
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		bumps, err := store.ListBumps(r.Context(), address, limit, offset)
		if err != nil {
			logger.Error("failed to list bumps", "address", address, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]bumpResponse, len(bumps))
		for i, b := range bumps {
			resp[i] = bumpResponse{
				ID:            b.ID,
				WalletAddress: b.WalletAddress,
				TokenMint:     b.TokenMint,
				Signature:     b.Signature,
				Lamports:      b.Lamports,
				CreatedAt:     b.CreatedAt,
			}
		}
		writeJSON(w, map[string]interface{}{
			"bumps": resp,
			"count": len(resp),
		}, http.StatusOK)
	})
}

// decodeJSON decodes a bounded JSON request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// validateAddress checks that an address is well-formed base58 decoding to
// a 32-byte key.
func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("address is required")
	}
	decoded, err := base58.Decode(address)
	if err != nil {
		return fmt.Errorf("invalid address: not base58")
	}
	if len(decoded) != 32 {
		return fmt.Errorf("invalid address: decoded length %d, want 32", len(decoded))
	}
	return nil
}

// validateTier normalizes the tier field; empty defaults to standard.
func validateTier(tier string) (string, error) {
	switch tier {
	case "":
		return fees.TierStandard.String(), nil
	case fees.TierStandard.String(), fees.TierHolder.String():
		return tier, nil
	default:
		return "", fmt.Errorf("invalid tier %q", tier)
	}
}

// parsePagination reads limit/offset query parameters with defaults.
func parsePagination(r *http.Request) (limit, offset int32, err error) {
	limit = defaultPageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v <= 0 || v > maxPageLimit {
			return 0, 0, fmt.Errorf("invalid limit %q: must be 1-%d", raw, maxPageLimit)
		}
		limit = int32(v)
	}
	if raw := r.URL.Query().Get("offset"); raw != "" {
		v, convErr := strconv.Atoi(raw)
		if convErr != nil || v < 0 {
			return 0, 0, fmt.Errorf("invalid offset %q", raw)
		}
		offset = int32(v)
	}
	return limit, offset, nil
}
