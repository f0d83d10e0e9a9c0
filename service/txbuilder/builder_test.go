package txbuilder

import (
	"encoding/binary"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solanare/reclaimer/service/fees"
	"github.com/solanare/reclaimer/service/scanner"
)

var testTreasury = solana.MustPublicKeyFromBase58("8QAUgSFQxMcuYCn3yDN28HuqBsbXq2Ac1rADo5AWh8S5")

func testAccount(seed byte, rawAmount uint64) scanner.Account {
	return scanner.Account{
		Address: solana.PublicKey{seed},
		Kind:    scanner.KindToken,
		Token: &scanner.TokenDetails{
			Mint:      solana.PublicKey{seed, 1},
			RawAmount: rawAmount,
		},
	}
}

func TestBuildCloseEmptyBalanceInstructionOrder(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy")
	b := NewBuilder(testTreasury, fees.TierStandard, "")

	tx, err := b.BuildClose(owner, testAccount(1, 0), solana.Hash{1})
	require.NoError(t, err)

	// memo, close, fee transfer, trailing batch memo
	ixs := tx.Message.Instructions
	require.Len(t, ixs, 4)

	prog := func(i int) solana.PublicKey {
		pk, err := tx.Message.Program(ixs[i].ProgramIDIndex)
		require.NoError(t, err)
		return pk
	}
	assert.Equal(t, solana.MemoProgramID, prog(0))
	assert.Equal(t, solana.TokenProgramID, prog(1))
	assert.Equal(t, solana.SystemProgramID, prog(2))
	assert.Equal(t, solana.MemoProgramID, prog(3))
}

func TestBuildCloseBurnsRemainingBalance(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy")
	b := NewBuilder(testTreasury, fees.TierStandard, "")

	tx, err := b.BuildClose(owner, testAccount(1, 250), solana.Hash{1})
	require.NoError(t, err)

	// burn leads the group
	ixs := tx.Message.Instructions
	require.Len(t, ixs, 5)
	pk, err := tx.Message.Program(ixs[0].ProgramIDIndex)
	require.NoError(t, err)
	assert.Equal(t, solana.TokenProgramID, pk)
}

func TestBuildCloseFeeTransferAmount(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy")
	b := NewBuilder(testTreasury, fees.TierHolder, "")

	tx, err := b.BuildClose(owner, testAccount(1, 0), solana.Hash{1})
	require.NoError(t, err)

	transfer := tx.Message.Instructions[2]
	// System transfer data: 4-byte instruction index, then lamports u64 LE.
	require.GreaterOrEqual(t, len(transfer.Data), 12)
	lamports := binary.LittleEndian.Uint64(transfer.Data[4:12])
	assert.Equal(t, fees.PlatformFeeLamports(fees.TierHolder), lamports)
}

func TestBuildBatchCloseMemoContents(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy")
	b := NewBuilder(testTreasury, fees.TierHolder, "thanks for the dust")

	tx, err := b.BuildBatchClose(owner, []scanner.Account{testAccount(1, 0), testAccount(2, 0)}, solana.Hash{1})
	require.NoError(t, err)

	ixs := tx.Message.Instructions
	perAccount := string(ixs[0].Data)
	assert.Contains(t, perAccount, "reclaim:v1")
	assert.Contains(t, perAccount, "tier=holder")
	assert.Contains(t, perAccount, "ts=")

	trailing := string(ixs[len(ixs)-1].Data)
	assert.Contains(t, trailing, "batch count=2")
	assert.Contains(t, trailing, "note=thanks for the dust")
}

func TestBuilderTruncatesLongMessages(t *testing.T) {
	long := strings.Repeat("x", MaxPersonalMessageLen+50)
	b := NewBuilder(testTreasury, fees.TierStandard, long)
	assert.Len(t, b.message, MaxPersonalMessageLen)
}

func TestBuildBatchCloseRejectsEmptyBatch(t *testing.T) {
	b := NewBuilder(testTreasury, fees.TierStandard, "")
	_, err := b.BuildBatchClose(solana.PublicKey{1}, nil, solana.Hash{})
	require.Error(t, err)
}

func TestFitsWire(t *testing.T) {
	owner := solana.MustPublicKeyFromBase58("DRpbCBMxVnDK7maPM5tGv6MvB3v1sRMC86PZ8okm21hy")
	b := NewBuilder(testTreasury, fees.TierStandard, "")

	t.Run("single close fits", func(t *testing.T) {
		tx, err := b.BuildClose(owner, testAccount(1, 0), solana.Hash{1})
		require.NoError(t, err)
		ok, err := fitsWire(tx)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("oversized batch does not fit", func(t *testing.T) {
		accounts := make([]scanner.Account, 0, 30)
		for i := 0; i < 30; i++ {
			accounts = append(accounts, testAccount(byte(i+1), 100))
		}
		tx, err := b.BuildBatchClose(owner, accounts, solana.Hash{1})
		require.NoError(t, err)
		ok, err := fitsWire(tx)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestNextBatchSize(t *testing.T) {
	tests := []struct {
		name     string
		current  int
		tooLarge bool
		want     int
	}{
		{"halves on too large", 8, true, 4},
		{"floors at one", 1, true, 1},
		{"grows on success", 5, false, 6},
		{"caps at max", MaxBatchSize, false, MaxBatchSize},
		{"odd sizes round down", 5, true, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NextBatchSize(tt.current, tt.tooLarge))
		})
	}
}
