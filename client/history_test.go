package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWallet = "8QAUgSFQxMcuYCn3yDN28HuqBsbXq2Ac1rADo5AWh8S5"

func TestCreateReclaim(t *testing.T) {
	var gotBody CreateReclaimParams
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/reclaims", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(Reclaim{
			ID:                12,
			WalletAddress:     gotBody.WalletAddress,
			Signature:         gotBody.Signature,
			AccountsClosed:    gotBody.AccountsClosed,
			ReclaimedLamports: gotBody.ReclaimedLamports,
			Tier:              "standard",
			CreatedAt:         time.Now().UTC(),
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	rec, err := c.CreateReclaim(context.Background(), CreateReclaimParams{
		WalletAddress:     testWallet,
		Signature:         "sig-1",
		AccountsClosed:    3,
		ReclaimedLamports: 5_811_948,
	})
	require.NoError(t, err)

	assert.Equal(t, int64(12), rec.ID)
	assert.Equal(t, testWallet, gotBody.WalletAddress)
	assert.Equal(t, 3, gotBody.AccountsClosed)
}

func TestCreateReclaimServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error": "signature is required"})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.CreateReclaim(context.Background(), CreateReclaimParams{WalletAddress: testWallet})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "signature is required")
}

func TestListReclaims(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/reclaims", r.URL.Path)
		assert.Equal(t, testWallet, r.URL.Query().Get("address"))
		assert.Equal(t, "10", r.URL.Query().Get("limit"))
		assert.Equal(t, "20", r.URL.Query().Get("offset"))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"reclaims": []Reclaim{
				{ID: 2, WalletAddress: testWallet, Signature: "b"},
				{ID: 1, WalletAddress: testWallet, Signature: "a"},
			},
			"count": 2,
		})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	records, err := c.ListReclaims(context.Background(), ListParams{
		Address: testWallet,
		Limit:   10,
		Offset:  20,
	})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "b", records[0].Signature)
}

func TestListReclaimsNoFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.RawQuery)
		json.NewEncoder(w).Encode(map[string]interface{}{"reclaims": []Reclaim{}, "count": 0})
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	records, err := c.ListReclaims(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDeleteReclaims(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "DELETE", r.Method)
			assert.Equal(t, "/api/v1/reclaims/"+testWallet, r.URL.Path)
			w.WriteHeader(http.StatusNoContent)
		}))
		defer server.Close()

		c := NewClient(server.URL, nil, nil)
		require.NoError(t, c.DeleteReclaims(context.Background(), testWallet))
	})

	t.Run("not found", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "no reclaim history for wallet"})
		}))
		defer server.Close()

		c := NewClient(server.URL, nil, nil)
		err := c.DeleteReclaims(context.Background(), testWallet)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no reclaim history")
	})
}

func TestBumps(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case "POST":
			var params CreateBumpParams
			require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
			w.WriteHeader(http.StatusCreated)
			json.NewEncoder(w).Encode(Bump{ID: 1, WalletAddress: params.WalletAddress, TokenMint: params.TokenMint,
				Signature: params.Signature, Lamports: params.Lamports})
		case "GET":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"bumps": []Bump{{ID: 1, WalletAddress: testWallet, Lamports: 42}},
				"count": 1,
			})
		}
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)

	bump, err := c.CreateBump(context.Background(), CreateBumpParams{
		WalletAddress: testWallet,
		TokenMint:     "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v",
		Signature:     "bump-sig",
		Lamports:      42,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), bump.Lamports)

	bumps, err := c.ListBumps(context.Background(), ListParams{Address: testWallet})
	require.NoError(t, err)
	require.Len(t, bumps, 1)
}

func TestParseErrorResponseNonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream timeout"))
	}))
	defer server.Close()

	c := NewClient(server.URL, nil, nil)
	_, err := c.ListReclaims(context.Background(), ListParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}
