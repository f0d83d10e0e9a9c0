package solana

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/require"
)

// mockRPC implements RPCClient with overridable function fields. Methods
// without an override fail loudly so tests only exercise what they stub.
type mockRPC struct {
	getAccountInfoFunc             func(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error)
	getBalanceFunc                 func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error)
	getTokenAccountsByOwnerFunc    func(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error)
	getTokenAccountBalanceFunc     func(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error)
	getProgramAccountsFunc         func(ctx context.Context, publicKey solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error)
	getLatestBlockhashFunc         func(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error)
	simulateTransactionFunc        func(ctx context.Context, transaction *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error)
	getFeeForMessageFunc           func(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error)
	getSignatureStatusesFunc       func(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error)
	getSignaturesForAddressFunc    func(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error)
	sendTransactionWithOptsFunc    func(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error)
}

func (m *mockRPC) GetAccountInfo(ctx context.Context, account solana.PublicKey) (*rpc.GetAccountInfoResult, error) {
	if m.getAccountInfoFunc != nil {
		return m.getAccountInfoFunc(ctx, account)
	}
	return nil, fmt.Errorf("GetAccountInfo not stubbed")
}

func (m *mockRPC) GetBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetBalanceResult, error) {
	if m.getBalanceFunc != nil {
		return m.getBalanceFunc(ctx, account, commitment)
	}
	return nil, fmt.Errorf("GetBalance not stubbed")
}

func (m *mockRPC) GetTokenAccountsByOwner(ctx context.Context, owner solana.PublicKey, conf *rpc.GetTokenAccountsConfig, opts *rpc.GetTokenAccountsOpts) (*rpc.GetTokenAccountsResult, error) {
	if m.getTokenAccountsByOwnerFunc != nil {
		return m.getTokenAccountsByOwnerFunc(ctx, owner, conf, opts)
	}
	return nil, fmt.Errorf("GetTokenAccountsByOwner not stubbed")
}

func (m *mockRPC) GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment rpc.CommitmentType) (*rpc.GetTokenAccountBalanceResult, error) {
	if m.getTokenAccountBalanceFunc != nil {
		return m.getTokenAccountBalanceFunc(ctx, account, commitment)
	}
	return nil, fmt.Errorf("GetTokenAccountBalance not stubbed")
}

func (m *mockRPC) GetProgramAccountsWithOpts(ctx context.Context, publicKey solana.PublicKey, opts *rpc.GetProgramAccountsOpts) (rpc.GetProgramAccountsResult, error) {
	if m.getProgramAccountsFunc != nil {
		return m.getProgramAccountsFunc(ctx, publicKey, opts)
	}
	return nil, fmt.Errorf("GetProgramAccountsWithOpts not stubbed")
}

func (m *mockRPC) GetLatestBlockhash(ctx context.Context, commitment rpc.CommitmentType) (*rpc.GetLatestBlockhashResult, error) {
	if m.getLatestBlockhashFunc != nil {
		return m.getLatestBlockhashFunc(ctx, commitment)
	}
	return nil, fmt.Errorf("GetLatestBlockhash not stubbed")
}

func (m *mockRPC) SimulateTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts *rpc.SimulateTransactionOpts) (*rpc.SimulateTransactionResponse, error) {
	if m.simulateTransactionFunc != nil {
		return m.simulateTransactionFunc(ctx, transaction, opts)
	}
	return nil, fmt.Errorf("SimulateTransactionWithOpts not stubbed")
}

func (m *mockRPC) GetFeeForMessage(ctx context.Context, message string, commitment rpc.CommitmentType) (*rpc.GetFeeForMessageResult, error) {
	if m.getFeeForMessageFunc != nil {
		return m.getFeeForMessageFunc(ctx, message, commitment)
	}
	return nil, fmt.Errorf("GetFeeForMessage not stubbed")
}

func (m *mockRPC) GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*rpc.GetSignatureStatusesResult, error) {
	if m.getSignatureStatusesFunc != nil {
		return m.getSignatureStatusesFunc(ctx, searchTransactionHistory, transactionSignatures...)
	}
	return nil, fmt.Errorf("GetSignatureStatuses not stubbed")
}

func (m *mockRPC) GetSignaturesForAddressWithOpts(ctx context.Context, account solana.PublicKey, opts *rpc.GetSignaturesForAddressOpts) ([]*rpc.TransactionSignature, error) {
	if m.getSignaturesForAddressFunc != nil {
		return m.getSignaturesForAddressFunc(ctx, account, opts)
	}
	return nil, fmt.Errorf("GetSignaturesForAddressWithOpts not stubbed")
}

func (m *mockRPC) SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts rpc.TransactionOpts) (solana.Signature, error) {
	if m.sendTransactionWithOptsFunc != nil {
		return m.sendTransactionWithOptsFunc(ctx, transaction, opts)
	}
	return solana.Signature{}, fmt.Errorf("SendTransactionWithOpts not stubbed")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient wires a client over the given mocks with fast retry delays
// and an effectively unthrottled limiter.
func newTestClient(t *testing.T, mocks ...*mockRPC) *Client {
	t.Helper()
	endpoints := make([]Endpoint, 0, len(mocks))
	for i, m := range mocks {
		endpoints = append(endpoints, Endpoint{Name: fmt.Sprintf("mock-%d", i), Client: m})
	}
	pool, err := NewPool(endpoints, nil, testLogger())
	require.NoError(t, err)
	pool.rateLimitCooldown = 0
	pool.rotateDelay = 0

	limiter := NewLimiter(1000)
	t.Cleanup(limiter.Close)

	return NewClient(pool, limiter, nil, testLogger())
}

// encodeTokenAccount hand-builds the 165-byte token account layout: mint,
// owner, amount, delegate option, state, isNative option, delegated amount,
// close authority option.
func encodeTokenAccount(mint, owner solana.PublicKey, amount uint64, frozen bool) []byte {
	buf := make([]byte, 0, 165)
	buf = append(buf, mint[:]...)
	buf = append(buf, owner[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, amount)
	buf = binary.LittleEndian.AppendUint32(buf, 0) // no delegate
	buf = append(buf, make([]byte, 32)...)
	state := byte(1)
	if frozen {
		state = 2
	}
	buf = append(buf, state)
	buf = binary.LittleEndian.AppendUint32(buf, 0) // not native
	buf = append(buf, make([]byte, 8)...)
	buf = binary.LittleEndian.AppendUint64(buf, 0) // delegated amount
	buf = binary.LittleEndian.AppendUint32(buf, 0) // no close authority
	buf = append(buf, make([]byte, 32)...)
	return buf
}
