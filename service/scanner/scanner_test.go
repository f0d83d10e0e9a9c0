package scanner

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solanare/reclaimer/service/fees"
	solclient "github.com/solanare/reclaimer/service/solana"
)

type stubLedger struct {
	accountInfoFunc     func(ctx context.Context, address solana.PublicKey) (*rpc.Account, error)
	tokenAccountsFunc   func(ctx context.Context, owner solana.PublicKey) ([]solclient.TokenAccount, error)
	mintInfoFunc        func(ctx context.Context, mint solana.PublicKey) (*solclient.MintInfo, error)
	programAccountsFunc func(ctx context.Context, program solana.PublicKey, dataSize uint64, offset uint64, match []byte) ([]solana.PublicKey, error)
	closeFeeFunc        func(ctx context.Context, owner, account solana.PublicKey) (uint64, error)
}

func (s *stubLedger) AccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
	if s.accountInfoFunc != nil {
		return s.accountInfoFunc(ctx, address)
	}
	return &rpc.Account{Owner: solana.SystemProgramID, Lamports: 1_000_000_000}, nil
}

func (s *stubLedger) TokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]solclient.TokenAccount, error) {
	if s.tokenAccountsFunc != nil {
		return s.tokenAccountsFunc(ctx, owner)
	}
	return nil, nil
}

func (s *stubLedger) MintInfo(ctx context.Context, mint solana.PublicKey) (*solclient.MintInfo, error) {
	if s.mintInfoFunc != nil {
		return s.mintInfoFunc(ctx, mint)
	}
	return &solclient.MintInfo{Mint: mint}, nil
}

func (s *stubLedger) ProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64, offset uint64, match []byte) ([]solana.PublicKey, error) {
	if s.programAccountsFunc != nil {
		return s.programAccountsFunc(ctx, program, dataSize, offset, match)
	}
	return nil, nil
}

func (s *stubLedger) EstimateCloseFee(ctx context.Context, owner, account solana.PublicKey) (uint64, error) {
	if s.closeFeeFunc != nil {
		return s.closeFeeFunc(ctx, owner, account)
	}
	return 5_000, nil
}

func newTestScanner(ledger LedgerClient) *Scanner {
	classifier := NewClassifier(&stubProbe{}, fees.TierStandard, 0, discardLogger())
	s := NewScanner(ledger, classifier, nil, discardLogger())
	s.batchDelay = time.Millisecond
	return s
}

func TestScanEmptyWallet(t *testing.T) {
	s := newTestScanner(&stubLedger{})

	result, err := s.Scan(context.Background(), solana.PublicKey{1})
	require.NoError(t, err)

	assert.Empty(t, result.TokenAccounts)
	assert.Empty(t, result.OpenOrderAccounts)
	assert.Empty(t, result.UndeployedAccounts)
	assert.Empty(t, result.UnknownAccounts)
	assert.Zero(t, result.PotentialReclaimLamports)
	assert.Equal(t, RiskLow, result.RiskLevel)
	assert.Empty(t, result.Warnings)
}

func TestScanClassifiesTokenAccounts(t *testing.T) {
	wallet := solana.MustPublicKeyFromBase58("DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy")
	mint := solana.MustPublicKeyFromBase58("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")

	ledger := &stubLedger{
		tokenAccountsFunc: func(ctx context.Context, owner solana.PublicKey) ([]solclient.TokenAccount, error) {
			return []solclient.TokenAccount{
				{Pubkey: solana.PublicKey{10}, Mint: mint, Owner: owner, RawAmount: 0},
				{Pubkey: solana.PublicKey{11}, Mint: mint, Owner: owner, RawAmount: 0, Frozen: true},
			}, nil
		},
		mintInfoFunc: func(ctx context.Context, m solana.PublicKey) (*solclient.MintInfo, error) {
			return &solclient.MintInfo{Mint: m, FreezeAuthority: true}, nil
		},
	}
	s := newTestScanner(ledger)

	result, err := s.Scan(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, result.TokenAccounts, 2)

	byAddr := map[solana.PublicKey]Account{}
	for _, a := range result.TokenAccounts {
		byAddr[a.Address] = a
	}

	healthy := byAddr[solana.PublicKey{10}]
	assert.Equal(t, VerdictCloseable, healthy.Closeability.Verdict)
	assert.True(t, healthy.Token.FreezeAuthorityPresent)
	assert.Equal(t, uint64(5_000), healthy.EstimatedCloseFeeLamports)

	frozen := byAddr[solana.PublicKey{11}]
	assert.Equal(t, VerdictNotCloseable, frozen.Closeability.Verdict)
	assert.Equal(t, ReasonFrozen, frozen.Closeability.Reason)

	// Two accounts of locked deposit, and nothing unidentified.
	assert.Equal(t, 2*fees.RentExemptionLamports, result.PotentialReclaimLamports)
	assert.Equal(t, RiskLow, result.RiskLevel)
}

func TestScanFindsOpenOrders(t *testing.T) {
	wallet := solana.MustPublicKeyFromBase58("DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy")

	ledger := &stubLedger{
		programAccountsFunc: func(ctx context.Context, program solana.PublicKey, dataSize uint64, offset uint64, match []byte) ([]solana.PublicKey, error) {
			assert.Equal(t, openOrderDataSize, dataSize)
			assert.Equal(t, openOrderOwnerOffset, offset)
			assert.Equal(t, wallet.Bytes(), match)
			if program.Equals(openBookV3Program) {
				return []solana.PublicKey{{20}}, nil
			}
			return nil, nil
		},
	}
	s := newTestScanner(ledger)

	result, err := s.Scan(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, result.OpenOrderAccounts, 1)
	assert.Equal(t, solana.PublicKey{20}, result.OpenOrderAccounts[0].Address)
	assert.Equal(t, openBookV3Program, result.OpenOrderAccounts[0].OwnerProgram)
	assert.True(t, result.OpenOrderAccounts[0].Closeability.Closeable())
}

func TestScanReportsUnknownBaseAccount(t *testing.T) {
	strange := solana.MustPublicKeyFromBase58("9wFFyRfZBsuAha4YcuxcXLKwMxJR43S7fPfQLusDBzvT")
	ledger := &stubLedger{
		accountInfoFunc: func(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
			return &rpc.Account{Owner: strange, Lamports: 777}, nil
		},
	}
	s := newTestScanner(ledger)

	result, err := s.Scan(context.Background(), solana.PublicKey{1})
	require.NoError(t, err)
	require.Len(t, result.UnknownAccounts, 1)
	assert.Equal(t, uint64(777), result.UnknownAccounts[0].Lamports)
	assert.Equal(t, strange, result.UnknownAccounts[0].OwnerProgram)
	// The only account in the inventory is unidentified.
	assert.Equal(t, RiskHigh, result.RiskLevel)
}

func TestScanPartialFailureKeepsOtherKinds(t *testing.T) {
	wallet := solana.MustPublicKeyFromBase58("DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy")

	ledger := &stubLedger{
		tokenAccountsFunc: func(ctx context.Context, owner solana.PublicKey) ([]solclient.TokenAccount, error) {
			return nil, errors.New("rpc exploded")
		},
		programAccountsFunc: func(ctx context.Context, program solana.PublicKey, dataSize uint64, offset uint64, match []byte) ([]solana.PublicKey, error) {
			if program.Equals(mangoV3Program) {
				return []solana.PublicKey{{30}}, nil
			}
			return nil, nil
		},
	}
	s := newTestScanner(ledger)

	result, err := s.Scan(context.Background(), wallet)
	require.NoError(t, err)
	assert.Empty(t, result.TokenAccounts)
	require.Len(t, result.OpenOrderAccounts, 1)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "token account scan failed")
}

func TestScanRetriesFailedProgramLookupOnce(t *testing.T) {
	wallet := solana.MustPublicKeyFromBase58("DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy")

	var mu sync.Mutex
	attempts := map[solana.PublicKey]int{}
	ledger := &stubLedger{
		programAccountsFunc: func(ctx context.Context, program solana.PublicKey, dataSize uint64, offset uint64, match []byte) ([]solana.PublicKey, error) {
			mu.Lock()
			attempts[program]++
			n := attempts[program]
			mu.Unlock()
			if program.Equals(raydiumV4Program) && n == 1 {
				return nil, errors.New("flaky")
			}
			if program.Equals(raydiumV4Program) {
				return []solana.PublicKey{{40}}, nil
			}
			return nil, nil
		},
	}
	s := newTestScanner(ledger)

	result, err := s.Scan(context.Background(), wallet)
	require.NoError(t, err)
	require.Len(t, result.OpenOrderAccounts, 1)
	assert.Equal(t, 2, attempts[raydiumV4Program])
	assert.Empty(t, result.Warnings)
}

func TestScanFatalOnBaseLookupFailure(t *testing.T) {
	ledger := &stubLedger{
		accountInfoFunc: func(ctx context.Context, address solana.PublicKey) (*rpc.Account, error) {
			return nil, errors.New("401 Unauthorized")
		},
	}
	s := newTestScanner(ledger)

	_, err := s.Scan(context.Background(), solana.PublicKey{1})
	require.Error(t, err)
}

func TestDeriveRiskLevel(t *testing.T) {
	assert.Equal(t, RiskLow, deriveRiskLevel(0, 0))
	assert.Equal(t, RiskLow, deriveRiskLevel(0, 10))
	assert.Equal(t, RiskMedium, deriveRiskLevel(1, 10))
	assert.Equal(t, RiskHigh, deriveRiskLevel(3, 10))
	assert.Equal(t, RiskHigh, deriveRiskLevel(1, 1))
}
