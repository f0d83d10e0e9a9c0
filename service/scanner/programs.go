package scanner

import "github.com/gagliardetto/solana-go"

// Known exchange/market programs whose per-wallet working-state accounts we
// scan for reclaimable rent.
var (
	openBookV3Program = solana.MustPublicKeyFromBase58("srmqPvymJeFKQ4zGQed1GFppgkRHL9kaELCbyksJtPX")
	mangoV3Program    = solana.MustPublicKeyFromBase58("mv3ekLzLbnVPNxjSKvqBpU3ZeZXPQdEC3bp5MDEBG68")
	raydiumV4Program  = solana.MustPublicKeyFromBase58("675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8")
)

// marketPrograms is the rotation the open-order sub-scan queries.
var marketPrograms = []solana.PublicKey{
	openBookV3Program,
	mangoV3Program,
	raydiumV4Program,
}

// Open-order account layout: fixed size with the owner wallet embedded at a
// known byte offset.
const (
	openOrderDataSize    uint64 = 3228
	openOrderOwnerOffset uint64 = 13
)

// knownOwnerPrograms are programs the scanner recognizes as owners of the
// wallet's base account. A base account owned by anything else is reported
// as unknown-kind.
var knownOwnerPrograms = map[solana.PublicKey]struct{}{
	solana.SystemProgramID:    {},
	solana.TokenProgramID:     {},
	solana.Token2022ProgramID: {},
	openBookV3Program:         {},
	mangoV3Program:            {},
	raydiumV4Program:          {},
}
