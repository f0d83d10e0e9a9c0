package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/token"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solanare/reclaimer/service/metrics"
)

// RPCClient is an interface for the Solana RPC operations we need.
// This allows us to mock the RPC layer in tests without hitting real
// Solana nodes. *rpc.Client satisfies it directly.
type RPCClient interface {
	GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)

	GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)

	GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)

	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)

	GetProgramAccountsWithOpts(ctx context.Context, publicKey solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)

	GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)

	SimulateTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)

	GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error)

	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)

	GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)

	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

// Client provides typed ledger operations over the endpoint pool. Every
// network call goes through the pool's failover logic and the process-wide
// rate limiter, so callers never duplicate retry/backoff handling.
type Client struct {
	pool    *Pool
	limiter *Limiter
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewClient creates a new Solana client. If m is nil, no metrics are recorded.
func NewClient(pool *Pool, limiter *Limiter, m *metrics.Metrics, logger *slog.Logger) *Client {
	return &Client{
		pool:    pool,
		limiter: limiter,
		logger:  logger,
		metrics: m,
	}
}

// call funnels one operation through failover and the rate limiter. The
// limiter wraps the individual attempt, not the whole fallback loop, so
// cooldown sleeps never block the queue.
func call[T any](ctx context.Context, c *Client, method string, op func(ctx context.Context, rc RPCClient) (T, error)) (T, error) {
	return WithFallback(ctx, c.pool, method, func(ctx context.Context, rc RPCClient) (T, error) {
		return RateLimit(ctx, c.limiter, func(ctx context.Context) (T, error) {
			return op(ctx, rc)
		})
	})
}

// TokenAccount is one fungible-token account owned by a wallet.
type TokenAccount struct {
	Pubkey    solana.PublicKey
	Mint      solana.PublicKey
	Owner     solana.PublicKey
	RawAmount uint64
	Frozen    bool
}

// TokenAccountsByOwner lists all token-program accounts owned by the wallet.
func (c *Client) TokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]TokenAccount, error) {
	programID := solana.TokenProgramID
	result, err := call(ctx, c, "GetTokenAccountsByOwner", func(ctx context.Context, rc RPCClient) (*rpc.GetTokenAccountsResult, error) {
		return rc.GetTokenAccountsByOwner(ctx, owner,
			&rpc.GetTokenAccountsConfig{ProgramId: &programID},
			&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64},
		)
	})
	if err != nil {
		return nil, err
	}

	accounts := make([]TokenAccount, 0, len(result.Value))
	for _, keyed := range result.Value {
		var decoded token.Account
		if err := bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&decoded); err != nil {
			c.logger.WarnContext(ctx, "failed to decode token account, skipping",
				"account", keyed.Pubkey.String(),
				"error", err,
			)
			continue
		}
		accounts = append(accounts, TokenAccount{
			Pubkey:    keyed.Pubkey,
			Mint:      decoded.Mint,
			Owner:     decoded.Owner,
			RawAmount: decoded.Amount,
			Frozen:    decoded.State == token.Frozen,
		})
	}
	return accounts, nil
}

// MintInfo is the authority picture of an asset's mint record.
type MintInfo struct {
	Mint            solana.PublicKey
	Decimals        uint8
	Supply          uint64
	MintAuthority   bool
	FreezeAuthority bool
}

// MintInfo fetches and decodes the mint record for an asset.
func (c *Client) MintInfo(ctx context.Context, mint solana.PublicKey) (*MintInfo, error) {
	result, err := call(ctx, c, "GetAccountInfo", func(ctx context.Context, rc RPCClient) (*rpc.GetAccountInfoResult, error) {
		return rc.GetAccountInfo(ctx, mint)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mint %s: %w", mint, err)
	}
	if result.Value == nil {
		return nil, fmt.Errorf("mint %s does not exist", mint)
	}

	var decoded token.Mint
	if err := bin.NewBinDecoder(result.Value.Data.GetBinary()).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode mint %s: %w", mint, err)
	}

	return &MintInfo{
		Mint:            mint,
		Decimals:        decoded.Decimals,
		Supply:          decoded.Supply,
		MintAuthority:   decoded.MintAuthority != nil,
		FreezeAuthority: decoded.FreezeAuthority != nil,
	}, nil
}

// ProgramAccounts lists accounts owned by program matching a data size and
// a positional byte filter. Used for open-order and liquidity-pool lookups.
func (c *Client) ProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64, offset uint64, match []byte) ([]solana.PublicKey, error) {
	opts := &rpc.GetProgramAccountsOpts{
		Commitment: rpc.CommitmentConfirmed,
		Filters: []rpc.RPCFilter{
			{DataSize: dataSize},
			{Memcmp: &rpc.RPCFilterMemcmp{Offset: offset, Bytes: match}},
		},
	}
	result, err := call(ctx, c, "GetProgramAccounts", func(ctx context.Context, rc RPCClient) (rpc.GetProgramAccountsResult, error) {
		return rc.GetProgramAccountsWithOpts(ctx, program, opts)
	})
	if err != nil {
		return nil, err
	}

	pubkeys := make([]solana.PublicKey, 0, len(result))
	for _, keyed := range result {
		pubkeys = append(pubkeys, keyed.Pubkey)
	}
	return pubkeys, nil
}

// AccountInfo fetches raw account state. Returns (nil, nil) when the
// account does not exist.
func (c *Client) AccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
	result, err := call(ctx, c, "GetAccountInfo", func(ctx context.Context, rc RPCClient) (*rpc.GetAccountInfoResult, error) {
		return rc.GetAccountInfo(ctx, address)
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if result.Value == nil {
		return nil, nil
	}
	return result.Value, nil
}

// Balance fetches the wallet's SOL balance in lamports.
func (c *Client) Balance(ctx context.Context, address solana.PublicKey) (uint64, error) {
	result, err := call(ctx, c, "GetBalance", func(ctx context.Context, rc RPCClient) (*rpc.GetBalanceResult, error) {
		return rc.GetBalance(ctx, address, rpc.CommitmentConfirmed)
	})
	if err != nil {
		return 0, err
	}
	return result.Value, nil
}

// LatestBlockhash fetches a recent blockhash for transaction assembly.
func (c *Client) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	result, err := call(ctx, c, "GetLatestBlockhash", func(ctx context.Context, rc RPCClient) (*rpc.GetLatestBlockhashResult, error) {
		return rc.GetLatestBlockhash(ctx, rpc.CommitmentConfirmed)
	})
	if err != nil {
		return solana.Hash{}, err
	}
	return result.Value.Blockhash, nil
}

// Simulate runs a pre-flight simulation. A reverting transaction is
// returned as ErrKindSimulationFailed carrying the decoded program logs.
func (c *Client) Simulate(ctx context.Context, tx *solana.Transaction) error {
	result, err := call(ctx, c, "SimulateTransaction", func(ctx context.Context, rc RPCClient) (*rpc.SimulateTransactionResponse, error) {
		return rc.SimulateTransactionWithOpts(ctx, tx, &rpc.SimulateTransactionOpts{
			Commitment: rpc.CommitmentConfirmed,
		})
	})
	if err != nil {
		return err
	}
	if result.Value != nil && result.Value.Err != nil {
		return &Error{
			Kind: ErrKindSimulationFailed,
			Logs: result.Value.Logs,
			Err:  fmt.Errorf("simulation failed: %v", result.Value.Err),
		}
	}
	return nil
}

// defaultSignatureFeeLamports is the flat per-signature fee used when the
// endpoint cannot quote a fee for the message.
const defaultSignatureFeeLamports uint64 = 5_000

// FeeForTransaction quotes the network fee for a fully assembled transaction.
func (c *Client) FeeForTransaction(ctx context.Context, tx *solana.Transaction) (uint64, error) {
	msg := tx.Message.ToBase64()
	result, err := call(ctx, c, "GetFeeForMessage", func(ctx context.Context, rc RPCClient) (*rpc.GetFeeForMessageResult, error) {
		return rc.GetFeeForMessage(ctx, msg, rpc.CommitmentConfirmed)
	})
	if err != nil {
		return 0, err
	}
	if result.Value == nil {
		return defaultSignatureFeeLamports, nil
	}
	return *result.Value, nil
}

// EstimateCloseFee dry-runs a single-account close to estimate its network
// cost: assemble a close-only transaction against a recent blockhash and
// ask the endpoint to price the message.
func (c *Client) EstimateCloseFee(ctx context.Context, owner, account solana.PublicKey) (uint64, error) {
	blockhash, err := c.LatestBlockhash(ctx)
	if err != nil {
		return 0, err
	}

	closeIx := token.NewCloseAccountInstruction(account, owner, owner, nil).Build()
	tx, err := solana.NewTransaction([]solana.Instruction{closeIx}, blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return 0, fmt.Errorf("failed to assemble close estimate: %w", err)
	}

	fee, err := c.FeeForTransaction(ctx, tx)
	if err != nil {
		c.logger.DebugContext(ctx, "fee quote unavailable, using flat signature fee",
			"account", account.String(),
			"error", err,
		)
		return defaultSignatureFeeLamports, nil
	}
	return fee, nil
}

// SendTransaction broadcasts a signed transaction.
func (c *Client) SendTransaction(ctx context.Context, tx *solana.Transaction) (solana.Signature, error) {
	return call(ctx, c, "SendTransaction", func(ctx context.Context, rc RPCClient) (solana.Signature, error) {
		return rc.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
			PreflightCommitment: rpc.CommitmentConfirmed,
		})
	})
}

// SignatureStatus fetches the current status of one signature, or nil if
// the ledger has not seen it yet.
func (c *Client) SignatureStatus(ctx context.Context, sig solana.Signature) (*rpc.SignatureStatusesResult, error) {
	result, err := call(ctx, c, "GetSignatureStatuses", func(ctx context.Context, rc RPCClient) (*rpc.GetSignatureStatusesResult, error) {
		return rc.GetSignatureStatuses(ctx, true, sig)
	})
	if err != nil {
		return nil, err
	}
	if len(result.Value) == 0 {
		return nil, nil
	}
	return result.Value[0], nil
}

// RecentSignatures lists up to limit recent signatures touching an address.
func (c *Client) RecentSignatures(ctx context.Context, address solana.PublicKey, limit int) ([]*rpc.TransactionSignature, error) {
	return call(ctx, c, "GetSignaturesForAddress", func(ctx context.Context, rc RPCClient) ([]*rpc.TransactionSignature, error) {
		return rc.GetSignaturesForAddressWithOpts(ctx, address, &rpc.GetSignaturesForAddressOpts{
			Limit: &limit,
		})
	})
}

// IsHolder reports whether the wallet holds at least minRawAmount of mint.
// Used for the reduced-fee tier.
func (c *Client) IsHolder(ctx context.Context, wallet, mint solana.PublicKey, minRawAmount uint64) (bool, error) {
	result, err := call(ctx, c, "GetTokenAccountsByOwner", func(ctx context.Context, rc RPCClient) (*rpc.GetTokenAccountsResult, error) {
		return rc.GetTokenAccountsByOwner(ctx, wallet,
			&rpc.GetTokenAccountsConfig{Mint: &mint},
			&rpc.GetTokenAccountsOpts{Encoding: solana.EncodingBase64},
		)
	})
	if err != nil {
		return false, err
	}
	if len(result.Value) == 0 {
		return false, nil
	}

	var total uint64
	for _, keyed := range result.Value {
		var decoded token.Account
		if err := bin.NewBinDecoder(keyed.Account.Data.GetBinary()).Decode(&decoded); err != nil {
			continue
		}
		total += decoded.Amount
	}
	return total >= minRawAmount, nil
}
