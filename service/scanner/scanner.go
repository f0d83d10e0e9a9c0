package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/solanare/reclaimer/service/metrics"
	solclient "github.com/solanare/reclaimer/service/solana"
)

// LedgerClient is the slice of the Solana client the scanner needs.
// *solana.Client satisfies it; tests inject a fake.
type LedgerClient interface {
	AccountInfo(ctx context.Context, address solana.PublicKey) (*rpc.Account, error)
	TokenAccountsByOwner(ctx context.Context, owner solana.PublicKey) ([]solclient.TokenAccount, error)
	MintInfo(ctx context.Context, mint solana.PublicKey) (*solclient.MintInfo, error)
	ProgramAccounts(ctx context.Context, program solana.PublicKey, dataSize uint64, offset uint64, match []byte) ([]solana.PublicKey, error)
	EstimateCloseFee(ctx context.Context, owner, account solana.PublicKey) (uint64, error)
}

const (
	// programBatchSize is how many market programs are queried concurrently
	// in the open-order sub-scan.
	programBatchSize = 2
	// defaultProgramBatchDelay spaces consecutive program batches.
	defaultProgramBatchDelay = 500 * time.Millisecond
)

// Scanner produces a classified inventory of a wallet's accounts. The four
// kind-specific sub-scans run concurrently; a failure in one is recorded as
// a warning and never aborts the others.
type Scanner struct {
	client     LedgerClient
	classifier *Classifier
	batchDelay time.Duration
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewScanner creates a scanner. If m is nil, no metrics are recorded.
func NewScanner(client LedgerClient, classifier *Classifier, m *metrics.Metrics, logger *slog.Logger) *Scanner {
	return &Scanner{
		client:     client,
		classifier: classifier,
		batchDelay: defaultProgramBatchDelay,
		logger:     logger,
		metrics:    m,
	}
}

// Scan enumerates and classifies the wallet's accounts. The returned result
// is best-effort: sub-scan failures appear in Warnings with their lists
// left empty. Only the foundational base-account lookup is fatal.
func (s *Scanner) Scan(ctx context.Context, wallet solana.PublicKey) (*Result, error) {
	start := time.Now()

	base, err := s.client.AccountInfo(ctx, wallet)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordScanDuration(wallet.String(), "error", time.Since(start).Seconds())
		}
		return nil, fmt.Errorf("failed to look up wallet %s: %w", wallet, err)
	}
	var walletLamports uint64
	if base != nil {
		walletLamports = base.Lamports
	}

	result := &Result{}
	var mu sync.Mutex
	warn := func(format string, args ...any) {
		mu.Lock()
		result.Warnings = append(result.Warnings, fmt.Sprintf(format, args...))
		mu.Unlock()
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		accounts, err := s.scanTokenAccounts(ctx, wallet, walletLamports)
		if err != nil {
			s.logger.WarnContext(ctx, "token account sub-scan failed",
				"wallet", wallet.String(),
				"error", err,
			)
			warn("token account scan failed: %v", err)
			return
		}
		mu.Lock()
		result.TokenAccounts = accounts
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		accounts := s.scanOpenOrders(ctx, wallet, warn)
		mu.Lock()
		result.OpenOrderAccounts = accounts
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		mu.Lock()
		result.UndeployedAccounts = s.scanUndeployed()
		mu.Unlock()
	}()
	wg.Wait()

	// The wallet's own base account is unidentified inventory when its
	// owning program is not one we recognize.
	if base != nil {
		if _, known := knownOwnerPrograms[base.Owner]; !known {
			result.UnknownAccounts = append(result.UnknownAccounts, Account{
				Address:      wallet,
				Kind:         KindUnknown,
				OwnerProgram: base.Owner,
				Lamports:     base.Lamports,
				Closeability: Closeability{Verdict: VerdictCloseable},
			})
		}
	}

	total := result.Total()
	result.PotentialReclaimLamports = potentialReclaim(total)
	result.RiskLevel = deriveRiskLevel(len(result.UnknownAccounts), total)

	if s.metrics != nil {
		s.metrics.RecordAccountsScanned(wallet.String(), KindToken.String(), len(result.TokenAccounts))
		s.metrics.RecordAccountsScanned(wallet.String(), KindOpenOrder.String(), len(result.OpenOrderAccounts))
		s.metrics.RecordAccountsScanned(wallet.String(), KindUndeployed.String(), len(result.UndeployedAccounts))
		s.metrics.RecordAccountsScanned(wallet.String(), KindUnknown.String(), len(result.UnknownAccounts))
		s.metrics.RecordScanRiskLevel(wallet.String(), float64(result.RiskLevel))
		s.metrics.RecordScanDuration(wallet.String(), "success", time.Since(start).Seconds())
	}
	s.logger.InfoContext(ctx, "scan complete",
		"wallet", wallet.String(),
		"token_accounts", len(result.TokenAccounts),
		"open_orders", len(result.OpenOrderAccounts),
		"unknown", len(result.UnknownAccounts),
		"risk_level", result.RiskLevel.String(),
		"potential_reclaim_lamports", result.PotentialReclaimLamports,
		"warnings", len(result.Warnings),
	)

	return result, nil
}

// scanTokenAccounts lists the wallet's token accounts and enriches each
// with mint metadata, a close-fee estimate, and a classification. The
// per-account lookups run concurrently; the rate limiter bounds what
// actually hits the network.
func (s *Scanner) scanTokenAccounts(ctx context.Context, wallet solana.PublicKey, walletLamports uint64) ([]Account, error) {
	raw, err := s.client.TokenAccountsByOwner(ctx, wallet)
	if err != nil {
		return nil, err
	}

	accounts := make([]Account, len(raw))
	var wg sync.WaitGroup
	for i, ta := range raw {
		wg.Add(1)
		go func(i int, ta solclient.TokenAccount) {
			defer wg.Done()
			accounts[i] = s.enrichTokenAccount(ctx, wallet, walletLamports, ta)
		}(i, ta)
	}
	wg.Wait()
	return accounts, nil
}

func (s *Scanner) enrichTokenAccount(ctx context.Context, wallet solana.PublicKey, walletLamports uint64, ta solclient.TokenAccount) Account {
	details := &TokenDetails{
		Mint:      ta.Mint,
		RawAmount: ta.RawAmount,
		Frozen:    ta.Frozen,
	}

	if ata, _, err := solana.FindAssociatedTokenAddress(wallet, ta.Mint); err == nil {
		details.IsAssociatedDerived = ata.Equals(ta.Pubkey)
	}

	// Authority presence is informational only, so a failed mint lookup
	// downgrades to a warning instead of dropping the account.
	if mint, err := s.client.MintInfo(ctx, ta.Mint); err != nil {
		s.logger.WarnContext(ctx, "mint lookup failed",
			"account", ta.Pubkey.String(),
			"mint", ta.Mint.String(),
			"error", err,
		)
	} else {
		details.MintAuthorityPresent = mint.MintAuthority
		details.FreezeAuthorityPresent = mint.FreezeAuthority
	}

	account := Account{
		Address:      ta.Pubkey,
		Kind:         KindToken,
		OwnerProgram: solana.TokenProgramID,
		Token:        details,
	}

	fee, err := s.client.EstimateCloseFee(ctx, wallet, ta.Pubkey)
	if err != nil {
		s.logger.WarnContext(ctx, "close fee estimate failed",
			"account", ta.Pubkey.String(),
			"error", err,
		)
	} else {
		account.EstimatedCloseFeeLamports = fee
	}

	account.Closeability = s.classifier.Classify(ctx, &account, walletLamports)
	return account
}

// scanOpenOrders queries the known market programs for working-state
// accounts referencing the wallet. Programs are processed in small batches
// with a spacing delay; a failed program lookup is retried once, then
// skipped with a warning.
func (s *Scanner) scanOpenOrders(ctx context.Context, wallet solana.PublicKey, warn func(string, ...any)) []Account {
	var mu sync.Mutex
	var accounts []Account

	for i := 0; i < len(marketPrograms); i += programBatchSize {
		batch := marketPrograms[i:min(i+programBatchSize, len(marketPrograms))]

		var wg sync.WaitGroup
		for _, program := range batch {
			wg.Add(1)
			go func(program solana.PublicKey) {
				defer wg.Done()
				pubkeys, err := s.client.ProgramAccounts(ctx, program, openOrderDataSize, openOrderOwnerOffset, wallet.Bytes())
				if err != nil {
					pubkeys, err = s.client.ProgramAccounts(ctx, program, openOrderDataSize, openOrderOwnerOffset, wallet.Bytes())
				}
				if err != nil {
					s.logger.WarnContext(ctx, "open order lookup failed",
						"wallet", wallet.String(),
						"program", program.String(),
						"error", err,
					)
					warn("open order lookup failed for program %s: %v", program, err)
					return
				}
				mu.Lock()
				for _, pk := range pubkeys {
					accounts = append(accounts, Account{
						Address:      pk,
						Kind:         KindOpenOrder,
						OwnerProgram: program,
						Closeability: Closeability{Verdict: VerdictCloseable},
					})
				}
				mu.Unlock()
			}(program)
		}
		wg.Wait()

		if i+programBatchSize < len(marketPrograms) {
			select {
			case <-ctx.Done():
				return accounts
			case <-time.After(s.batchDelay):
			}
		}
	}
	return accounts
}

// scanUndeployed reports the uninitialized-placeholder category. The ledger
// offers no enumeration of uninitialized accounts tied to a wallet, so the
// list is always empty; the category exists so every scanned account has
// exactly one home.
func (s *Scanner) scanUndeployed() []Account {
	return nil
}
