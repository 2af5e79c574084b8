package distribution

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rovshanmuradov/solana-bundler/internal/relay"
	"github.com/rovshanmuradov/solana-bundler/internal/wallet"
)

func newPayer() *wallet.Wallet {
	return wallet.FromPrivateKey(solana.NewWallet().PrivateKey)
}

func newRecipients(n int) []solana.PublicKey {
	keys := make([]solana.PublicKey, n)
	for i := range keys {
		keys[i] = solana.NewWallet().PublicKey()
	}
	return keys
}

func sequentialAmounts(n int) []uint64 {
	amounts := make([]uint64, n)
	for i := range amounts {
		amounts[i] = uint64(1_000 + i)
	}
	return amounts
}

// decodeTransfers возвращает переводы транзакции в порядке инструкций.
func decodeTransfers(t *testing.T, tx *solana.Transaction) []TransferInstruction {
	t.Helper()
	keys := tx.Message.AccountKeys
	out := make([]TransferInstruction, 0, len(tx.Message.Instructions))
	for _, inst := range tx.Message.Instructions {
		require.True(t, keys[inst.ProgramIDIndex].Equals(solana.SystemProgramID))
		metas := make([]*solana.AccountMeta, len(inst.Accounts))
		for i, idx := range inst.Accounts {
			metas[i] = solana.Meta(keys[idx])
		}
		decoded, err := system.DecodeInstruction(metas, inst.Data)
		require.NoError(t, err)
		transfer, ok := decoded.Impl.(*system.Transfer)
		require.True(t, ok)
		out = append(out, TransferInstruction{
			From:     keys[inst.Accounts[0]],
			To:       keys[inst.Accounts[1]],
			Lamports: *transfer.Lamports,
		})
	}
	return out
}

func isTipAccount(t *testing.T, key solana.PublicKey) bool {
	t.Helper()
	accounts, err := relay.TipAccounts()
	require.NoError(t, err)
	for _, a := range accounts {
		if a.Equals(key) {
			return true
		}
	}
	return false
}

func countTips(t *testing.T, txs []*solana.Transaction) int {
	t.Helper()
	tips := 0
	for _, tx := range txs {
		for _, tr := range decodeTransfers(t, tx) {
			if isTipAccount(t, tr.To) {
				tips++
			}
		}
	}
	return tips
}

func TestPartition(t *testing.T) {
	items := make([]int, 50)
	groups := Partition(items, 21)
	require.Len(t, groups, 3)
	assert.Len(t, groups[0], 21)
	assert.Len(t, groups[1], 21)
	assert.Len(t, groups[2], 8)

	assert.Nil(t, Partition([]int{}, 21))
	assert.Nil(t, Partition(items, 0))
}

func TestChunkBuilder_FiftyRecipients(t *testing.T) {
	payer := newPayer()
	recipients := newRecipients(50)
	amounts := sequentialAmounts(50)
	blockhash := solana.HashFromBytes(make([]byte, 32))

	builder := NewChunkBuilder(payer, DefaultChunkSize, DefaultTipLamports, rand.New(rand.NewSource(1)))
	txs, err := builder.Build(recipients, amounts, blockhash, true)
	require.NoError(t, err)
	require.Len(t, txs, 3)

	wantTransfers := []int{21, 21, 8}
	j := 0
	for i, tx := range txs {
		assert.True(t, tx.Message.IsVersioned())
		assert.Equal(t, blockhash, tx.Message.RecentBlockhash)
		require.NoError(t, tx.VerifySignatures())

		raw, err := tx.MarshalBinary()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(raw), PacketDataSize)

		transfers := decodeTransfers(t, tx)
		if i == len(txs)-1 {
			require.Len(t, transfers, wantTransfers[i]+1)
			tip := transfers[len(transfers)-1]
			assert.True(t, isTipAccount(t, tip.To))
			assert.Equal(t, uint64(DefaultTipLamports), tip.Lamports)
			transfers = transfers[:len(transfers)-1]
		}
		require.Len(t, transfers, wantTransfers[i])

		for _, tr := range transfers {
			assert.Equal(t, payer.PublicKey, tr.From)
			assert.Equal(t, recipients[j], tr.To)
			assert.Equal(t, amounts[j], tr.Lamports)
			j++
		}
	}
	assert.Equal(t, 1, countTips(t, txs))
}

func TestChunkBuilder_ThreeRecipientsWithTip(t *testing.T) {
	builder := NewChunkBuilder(newPayer(), DefaultChunkSize, DefaultTipLamports, rand.New(rand.NewSource(2)))
	txs, err := builder.Build(newRecipients(3), []uint64{90, 110, 100}, solana.Hash{}, true)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	transfers := decodeTransfers(t, txs[0])
	require.Len(t, transfers, 4)
	assert.True(t, isTipAccount(t, transfers[3].To))
}

func TestChunkBuilder_WithoutTip(t *testing.T) {
	builder := NewChunkBuilder(newPayer(), DefaultChunkSize, DefaultTipLamports, rand.New(rand.NewSource(3)))
	txs, err := builder.Build(newRecipients(30), sequentialAmounts(30), solana.Hash{}, false)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	assert.Zero(t, countTips(t, txs))
}

func TestChunkBuilder_TipMovesToOwnTransactionWhenFull(t *testing.T) {
	builder := NewChunkBuilder(newPayer(), DefaultChunkSize, DefaultTipLamports, rand.New(rand.NewSource(4)))
	txs, err := builder.Build(newRecipients(21), sequentialAmounts(21), solana.Hash{}, true)
	require.NoError(t, err)
	require.Len(t, txs, 2)

	assert.Len(t, decodeTransfers(t, txs[0]), 21)
	last := decodeTransfers(t, txs[1])
	require.Len(t, last, 1)
	assert.True(t, isTipAccount(t, last[0].To))

	for _, tx := range txs {
		raw, err := tx.MarshalBinary()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(raw), PacketDataSize)
	}
}

func TestChunkBuilder_MessageCompilationErrors(t *testing.T) {
	tests := []struct {
		name         string
		maxTransfers int
		recipients   int
		withTip      bool
	}{
		{name: "transaction over packet size", maxTransfers: 30, recipients: 30},
		{name: "full bundle leaves no room for tip", maxTransfers: 21, recipients: 105, withTip: true},
		{name: "too many transactions", maxTransfers: 5, recipients: 30},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := NewChunkBuilder(newPayer(), tt.maxTransfers, DefaultTipLamports, rand.New(rand.NewSource(5)))
			_, err := builder.Build(newRecipients(tt.recipients), sequentialAmounts(tt.recipients), solana.Hash{}, tt.withTip)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMessageCompilation))
		})
	}
}

func TestChunkBuilder_LengthMismatch(t *testing.T) {
	builder := NewChunkBuilder(newPayer(), DefaultChunkSize, DefaultTipLamports, rand.New(rand.NewSource(6)))
	_, err := builder.Build(newRecipients(3), []uint64{1, 2}, solana.Hash{}, false)
	assert.Error(t, err)
}
