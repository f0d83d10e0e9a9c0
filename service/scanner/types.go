package scanner

import (
	"github.com/gagliardetto/solana-go"

	"github.com/solanare/reclaimer/service/fees"
)

// Kind identifies which lookup strategy discovered an account.
type Kind int

const (
	// KindToken is a fungible-token account owned by the wallet.
	KindToken Kind = iota
	// KindOpenOrder is a per-market working-state account at a known
	// exchange program.
	KindOpenOrder
	// KindUndeployed is an uninitialized placeholder account associated
	// with the wallet.
	KindUndeployed
	// KindUnknown is the wallet's own base account when its owning program
	// is not recognized.
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindToken:
		return "token"
	case KindOpenOrder:
		return "open_order"
	case KindUndeployed:
		return "undeployed"
	default:
		return "unknown"
	}
}

// Verdict is the classifier's decision for one account.
type Verdict int

const (
	// VerdictCloseable means the account is safe to close.
	VerdictCloseable Verdict = iota
	// VerdictNotCloseable means a safety predicate blocks the close.
	VerdictNotCloseable
	// VerdictCloseableWithWarning means the close is possible but destroys
	// something, and needs explicit user confirmation.
	VerdictCloseableWithWarning
)

func (v Verdict) String() string {
	switch v {
	case VerdictCloseable:
		return "closeable"
	case VerdictNotCloseable:
		return "not_closeable"
	default:
		return "closeable_with_warning"
	}
}

// Closeability is a verdict plus its human-readable reason. Reason is empty
// for plain Closeable.
type Closeability struct {
	Verdict Verdict
	Reason  string
}

// Closeable reports whether a close may be attempted at all, including the
// with-warning case.
func (c Closeability) Closeable() bool {
	return c.Verdict == VerdictCloseable || c.Verdict == VerdictCloseableWithWarning
}

// TokenDetails carries the fields that only exist for token-kind accounts.
type TokenDetails struct {
	Mint                   solana.PublicKey
	RawAmount              uint64
	IsAssociatedDerived    bool
	MintAuthorityPresent   bool
	FreezeAuthorityPresent bool
	Frozen                 bool
}

// Account is one scanned account. Token holds token-only fields and is nil
// for every other kind, so a non-token record cannot carry a mint.
type Account struct {
	Address      solana.PublicKey
	Kind         Kind
	OwnerProgram solana.PublicKey
	// Lamports is the account's lamport balance for non-token kinds and
	// zero for token accounts, whose balance lives in Token.RawAmount.
	Lamports uint64
	Token    *TokenDetails

	EstimatedCloseFeeLamports uint64
	Closeability              Closeability
}

// RiskLevel summarizes how much of the inventory the scan could not identify.
type RiskLevel int

const (
	RiskLow RiskLevel = iota
	RiskMedium
	RiskHigh
)

func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	default:
		return "high"
	}
}

// Result is the classified inventory from one scan. Each discovered account
// appears in exactly one of the four lists.
type Result struct {
	TokenAccounts      []Account
	OpenOrderAccounts  []Account
	UndeployedAccounts []Account
	UnknownAccounts    []Account

	// PotentialReclaimLamports is the rent deposit locked across all
	// scanned accounts regardless of closeability. It answers "how much
	// is locked up", not "how much is reclaimable today".
	PotentialReclaimLamports uint64
	RiskLevel                RiskLevel

	// Warnings lists sub-scans that failed and were skipped; the rest of
	// the result is still valid.
	Warnings []string
}

// All returns every account in the result across the four lists.
func (r *Result) All() []Account {
	out := make([]Account, 0, r.Total())
	out = append(out, r.TokenAccounts...)
	out = append(out, r.OpenOrderAccounts...)
	out = append(out, r.UndeployedAccounts...)
	out = append(out, r.UnknownAccounts...)
	return out
}

// Total returns the number of scanned accounts.
func (r *Result) Total() int {
	return len(r.TokenAccounts) + len(r.OpenOrderAccounts) + len(r.UndeployedAccounts) + len(r.UnknownAccounts)
}

// Closeable returns the accounts a close may be attempted on. Accounts with
// a warning verdict are included only when includeWarned is set; burning a
// live balance is irreversible and needs explicit opt-in.
func (r *Result) Closeable(includeWarned bool) []Account {
	var out []Account
	for _, a := range r.All() {
		switch a.Closeability.Verdict {
		case VerdictCloseable:
			out = append(out, a)
		case VerdictCloseableWithWarning:
			if includeWarned {
				out = append(out, a)
			}
		}
	}
	return out
}

// deriveRiskLevel maps the unidentified fraction of the inventory to a level.
func deriveRiskLevel(unknownCount, total int) RiskLevel {
	if unknownCount == 0 {
		return RiskLow
	}
	if float64(unknownCount)/float64(total) < 0.3 {
		return RiskMedium
	}
	return RiskHigh
}

// potentialReclaim prices the locked deposit for a scanned inventory.
func potentialReclaim(total int) uint64 {
	return uint64(total) * fees.RentExemptionLamports
}
