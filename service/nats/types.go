package nats

import (
	"time"

	"github.com/solanare/reclaimer/service/reclaim"
)

// ReclaimEvent is a completed reclaim transaction published to NATS.
// It is published to the subject "reclaims.{wallet_address}" in JetStream.
type ReclaimEvent struct {
	// Transaction identifiers
	Signature     string `json:"signature"`
	WalletAddress string `json:"wallet_address"`

	// Reclaim details
	AccountsClosed    int    `json:"accounts_closed"`
	ReclaimedLamports uint64 `json:"reclaimed_lamports"`
	Tier              string `json:"tier"`
	Message           string `json:"message,omitempty"`

	// Timing information
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// FromRecord converts a reclaim history record to an event for publishing.
func FromRecord(rec reclaim.Record) *ReclaimEvent {
	return &ReclaimEvent{
		Signature:         rec.Signature,
		WalletAddress:     rec.Wallet,
		AccountsClosed:    rec.AccountsClosed,
		ReclaimedLamports: rec.ReclaimedLamports,
		Tier:              rec.Tier,
		Message:           rec.Message,
		Timestamp:         rec.Timestamp,
		PublishedAt:       time.Now().UTC(),
	}
}
