package txbuilder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"

	"github.com/solanare/reclaimer/service/metrics"
	"github.com/solanare/reclaimer/service/scanner"
	solclient "github.com/solanare/reclaimer/service/solana"
)

const (
	// DefaultBatchSize is where the adaptive batcher starts.
	DefaultBatchSize = 5
	// MaxBatchSize caps additive growth.
	MaxBatchSize = 10
)

// NextBatchSize is the adaptive sizing policy: halve on a too-large
// failure (floor 1), grow by one on success (cap MaxBatchSize). It
// converges on the largest batch the wire format tolerates without knowing
// per-account instruction cost up front.
func NextBatchSize(current int, tooLarge bool) int {
	if tooLarge {
		next := current / 2
		if next < 1 {
			return 1
		}
		return next
	}
	next := current + 1
	if next > MaxBatchSize {
		return MaxBatchSize
	}
	return next
}

// Signer signs and broadcasts an assembled transaction. Key custody lives
// behind this boundary; the batcher never sees private keys.
type Signer interface {
	SignAndSend(ctx context.Context, tx *solana.Transaction) (solana.Signature, error)
}

// Confirmer waits for a broadcast transaction to land.
type Confirmer interface {
	AwaitConfirmation(ctx context.Context, sig solana.Signature, interval, timeout time.Duration) error
}

// BlockhashSource supplies a recent blockhash per assembled transaction.
type BlockhashSource interface {
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
}

// CloseOutcome is the result for one attempted account.
type CloseOutcome struct {
	Address   solana.PublicKey
	Signature solana.Signature
	Err       error
}

// Closed reports whether the account's close landed.
func (o CloseOutcome) Closed() bool { return o.Err == nil }

// BatchResult accumulates outcomes across all batches of a run.
type BatchResult struct {
	Outcomes   []CloseOutcome
	Signatures []solana.Signature
}

// ClosedCount returns how many accounts closed successfully.
func (r *BatchResult) ClosedCount() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Closed() {
			n++
		}
	}
	return n
}

// FailedAddresses returns the accounts whose close did not land.
func (r *BatchResult) FailedAddresses() []solana.PublicKey {
	var out []solana.PublicKey
	for _, o := range r.Outcomes {
		if !o.Closed() {
			out = append(out, o.Address)
		}
	}
	return out
}

// BatchCloser drives adaptive batch closes: take the next batchSize
// accounts, assemble one transaction, submit, confirm, then adjust the
// batch size from the outcome. A too-large transaction shrinks the batch
// and retries the same accounts; other failures are recorded against the
// batch's accounts and the run moves on.
type BatchCloser struct {
	builder         *Builder
	blockhash       BlockhashSource
	signer          Signer
	confirmer       Confirmer
	batchSize       int
	confirmInterval time.Duration
	confirmTimeout  time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics
}

// NewBatchCloser creates a batch closer starting at DefaultBatchSize.
// If m is nil, no metrics are recorded.
func NewBatchCloser(builder *Builder, blockhash BlockhashSource, signer Signer, confirmer Confirmer, m *metrics.Metrics, logger *slog.Logger) *BatchCloser {
	return &BatchCloser{
		builder:         builder,
		blockhash:       blockhash,
		signer:          signer,
		confirmer:       confirmer,
		batchSize:       DefaultBatchSize,
		confirmInterval: solclient.DefaultConfirmInterval,
		confirmTimeout:  solclient.DefaultConfirmTimeout,
		logger:          logger,
		metrics:         m,
	}
}

// CloseAll processes every account, in order, through adaptive batches.
// Each account appears in exactly one outcome. Per-batch failures never
// abort the remaining queue.
func (bc *BatchCloser) CloseAll(ctx context.Context, owner solana.PublicKey, accounts []scanner.Account) *BatchResult {
	result := &BatchResult{}
	remaining := accounts
	size := bc.batchSize

	for len(remaining) > 0 {
		if err := ctx.Err(); err != nil {
			for _, account := range remaining {
				result.Outcomes = append(result.Outcomes, CloseOutcome{Address: account.Address, Err: err})
			}
			return result
		}

		if size > len(remaining) {
			size = len(remaining)
		}
		batch := remaining[:size]
		if bc.metrics != nil {
			bc.metrics.RecordBatchSize(owner.String(), size)
		}

		sig, err := bc.submitBatch(ctx, owner, batch)
		if err != nil {
			if solclient.KindOf(err) == solclient.ErrKindTransactionTooLarge && size > 1 {
				// Shrink and retry the same unconsumed accounts.
				if bc.metrics != nil {
					bc.metrics.RecordBatchTooLarge(owner.String())
				}
				bc.logger.WarnContext(ctx, "batch too large, shrinking",
					"owner", owner.String(),
					"batch_size", size,
					"next_size", NextBatchSize(size, true),
				)
				size = NextBatchSize(size, true)
				continue
			}

			// A hard failure (or a single account that cannot fit) fails
			// this batch's accounts only.
			bc.logger.WarnContext(ctx, "batch close failed",
				"owner", owner.String(),
				"batch_size", size,
				"error", err,
			)
			for _, account := range batch {
				result.Outcomes = append(result.Outcomes, CloseOutcome{Address: account.Address, Err: err})
				if bc.metrics != nil {
					bc.metrics.RecordCloseOutcome(owner.String(), "failed")
				}
			}
			remaining = remaining[len(batch):]
			continue
		}

		result.Signatures = append(result.Signatures, sig)
		for _, account := range batch {
			result.Outcomes = append(result.Outcomes, CloseOutcome{Address: account.Address, Signature: sig})
			if bc.metrics != nil {
				bc.metrics.RecordCloseOutcome(owner.String(), "closed")
			}
		}
		bc.logger.InfoContext(ctx, "batch closed",
			"owner", owner.String(),
			"batch_size", size,
			"signature", sig.String(),
		)
		remaining = remaining[len(batch):]
		size = NextBatchSize(size, false)
	}

	return result
}

// submitBatch assembles, size-checks, broadcasts, and confirms one batch.
func (bc *BatchCloser) submitBatch(ctx context.Context, owner solana.PublicKey, batch []scanner.Account) (solana.Signature, error) {
	blockhash, err := bc.blockhash.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := bc.builder.BuildBatchClose(owner, batch, blockhash)
	if err != nil {
		return solana.Signature{}, err
	}

	// Pre-check the wire size locally so an oversized batch never spends a
	// network round trip.
	fits, err := fitsWire(tx)
	if err != nil {
		return solana.Signature{}, err
	}
	if !fits {
		size, _ := wireSize(tx)
		return solana.Signature{}, &solclient.Error{
			Kind: solclient.ErrKindTransactionTooLarge,
			Err:  fmt.Errorf("transaction too large: %d > %d bytes", size, maxTransactionWireBytes),
		}
	}

	sig, err := bc.signer.SignAndSend(ctx, tx)
	if err != nil {
		return solana.Signature{}, err
	}

	if err := bc.confirmer.AwaitConfirmation(ctx, sig, bc.confirmInterval, bc.confirmTimeout); err != nil {
		return solana.Signature{}, err
	}
	return sig, nil
}
