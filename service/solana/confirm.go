package solana

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

const (
	// DefaultConfirmInterval is how often signature status is polled.
	DefaultConfirmInterval = 1 * time.Second
	// DefaultConfirmTimeout bounds how long we wait for confirmation.
	DefaultConfirmTimeout = 30 * time.Second
)

// AwaitConfirmation polls the signature's status until it reaches the
// confirmed (or finalized) commitment, the transaction fails on chain, or
// the timeout elapses. A timeout is reported as ErrKindConfirmationTimeout
// rather than a hard failure: the transaction may still land.
func (c *Client) AwaitConfirmation(ctx context.Context, sig solana.Signature, interval, timeout time.Duration) error {
	if interval <= 0 {
		interval = DefaultConfirmInterval
	}
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		status, err := c.SignatureStatus(ctx, sig)
		if err != nil {
			// Status lookups are transient; the next poll may succeed.
			c.logger.WarnContext(ctx, "signature status lookup failed, will re-poll",
				"signature", sig.String(),
				"error", err,
			)
		} else if status != nil {
			if status.Err != nil {
				return &Error{
					Kind: ErrKindTransactionFailed,
					Err:  fmt.Errorf("transaction %s failed on chain: %v", sig, status.Err),
				}
			}
			switch status.ConfirmationStatus {
			case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
				c.logger.DebugContext(ctx, "transaction confirmed",
					"signature", sig.String(),
					"status", string(status.ConfirmationStatus),
				)
				return nil
			}
		}

		if err := sleep(ctx, interval); err != nil {
			return err
		}
	}

	return &Error{
		Kind: ErrKindConfirmationTimeout,
		Err:  fmt.Errorf("transaction %s not confirmed within %s", sig, timeout),
	}
}
