package txbuilder

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/gagliardetto/solana-go/programs/token"

	"github.com/solanare/reclaimer/service/fees"
	"github.com/solanare/reclaimer/service/scanner"
)

// maxTransactionWireBytes is the serialized transaction size the network
// accepts.
const maxTransactionWireBytes = 1232

// MaxPersonalMessageLen bounds the optional caller-supplied note attached
// to the batch memo.
const MaxPersonalMessageLen = 100

// Builder assembles close transactions. For each account it emits, in
// order: a burn when a balance remains, an audit memo, the close returning
// the deposit to the owner, and the platform-fee transfer to the treasury.
type Builder struct {
	treasury solana.PublicKey
	tier     fees.Tier
	message  string
	now      func() time.Time
}

// NewBuilder creates a builder for one reclaim run. The tier is looked up
// once per run and applied uniformly. message is an optional note included
// in the trailing batch memo, truncated to MaxPersonalMessageLen.
func NewBuilder(treasury solana.PublicKey, tier fees.Tier, message string) *Builder {
	if len(message) > MaxPersonalMessageLen {
		message = message[:MaxPersonalMessageLen]
	}
	return &Builder{
		treasury: treasury,
		tier:     tier,
		message:  message,
		now:      time.Now,
	}
}

// BuildClose assembles a transaction closing a single account.
func (b *Builder) BuildClose(owner solana.PublicKey, account scanner.Account, blockhash solana.Hash) (*solana.Transaction, error) {
	return b.BuildBatchClose(owner, []scanner.Account{account}, blockhash)
}

// BuildBatchClose assembles one transaction closing all the given accounts,
// with a trailing memo tagging the batch. The owner pays the network fee
// and signs.
func (b *Builder) BuildBatchClose(owner solana.PublicKey, accounts []scanner.Account, blockhash solana.Hash) (*solana.Transaction, error) {
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no accounts to close")
	}

	var instructions []solana.Instruction
	for _, account := range accounts {
		instructions = append(instructions, b.accountInstructions(owner, account)...)
	}
	instructions = append(instructions, memoInstruction(owner, b.batchMemo(len(accounts))))

	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(owner))
	if err != nil {
		return nil, fmt.Errorf("failed to assemble close transaction: %w", err)
	}
	return tx, nil
}

// accountInstructions emits the per-account instruction group.
func (b *Builder) accountInstructions(owner solana.PublicKey, account scanner.Account) []solana.Instruction {
	var out []solana.Instruction

	if account.Token != nil && account.Token.RawAmount > 0 {
		out = append(out, token.NewBurnInstruction(
			account.Token.RawAmount,
			account.Address,
			account.Token.Mint,
			owner,
			nil,
		).Build())
	}

	out = append(out,
		memoInstruction(owner, b.accountMemo()),
		token.NewCloseAccountInstruction(account.Address, owner, owner, nil).Build(),
		system.NewTransferInstruction(fees.PlatformFeeLamports(b.tier), owner, b.treasury).Build(),
	)
	return out
}

// accountMemo tags one close with the operation, tier, and timestamp.
func (b *Builder) accountMemo() string {
	return fmt.Sprintf("reclaim:v1 tier=%s ts=%d", b.tier, b.now().Unix())
}

// batchMemo tags the whole transaction, carrying the optional user note.
func (b *Builder) batchMemo(count int) string {
	memo := fmt.Sprintf("reclaim:v1 batch count=%d tier=%s ts=%d", count, b.tier, b.now().Unix())
	if b.message != "" {
		memo += " note=" + b.message
	}
	return memo
}

// memoInstruction attaches an auditable tag to the transaction. The signer
// is referenced so the memo is attributable.
func memoInstruction(signer solana.PublicKey, msg string) solana.Instruction {
	return solana.NewInstruction(
		solana.MemoProgramID,
		solana.AccountMetaSlice{solana.NewAccountMeta(signer, false, true)},
		[]byte(msg),
	)
}

// wireSize computes the serialized size of an unsigned transaction as it
// will appear on the wire once signed: the message plus the signature
// array the header demands.
func wireSize(tx *solana.Transaction) (int, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return 0, fmt.Errorf("failed to serialize message: %w", err)
	}
	return len(msg) + 1 + 64*int(tx.Message.Header.NumRequiredSignatures), nil
}

// fitsWire reports whether the transaction fits the network's size limit.
func fitsWire(tx *solana.Transaction) (bool, error) {
	size, err := wireSize(tx)
	if err != nil {
		return false, err
	}
	return size <= maxTransactionWireBytes, nil
}
