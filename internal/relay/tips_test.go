package relay

import (
	"math/rand"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTipAccounts_Deterministic(t *testing.T) {
	first, err := TipAccounts()
	require.NoError(t, err)
	require.Len(t, first, 8)

	again, err := DeriveTipAccounts(TipProgramID)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	seen := make(map[solana.PublicKey]struct{}, len(first))
	for _, account := range first {
		assert.False(t, account.IsOnCurve(), "tip account must be a program-derived address")
		seen[account] = struct{}{}
	}
	assert.Len(t, seen, 8)
}

func TestTipAccounts_ReturnsCopy(t *testing.T) {
	accounts, err := TipAccounts()
	require.NoError(t, err)
	accounts[0] = solana.PublicKey{}

	fresh, err := TipAccounts()
	require.NoError(t, err)
	assert.False(t, fresh[0].IsZero())
}

func TestRandomTipAccount_FromFixedSet(t *testing.T) {
	accounts, err := TipAccounts()
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 32; i++ {
		account, err := RandomTipAccount(rng)
		require.NoError(t, err)
		assert.Contains(t, accounts, account)
	}
}

func TestTipInstruction(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	tip := solana.NewWallet().PublicKey()

	ix := TipInstruction(payer, tip, 10_000_000)
	assert.Equal(t, solana.SystemProgramID, ix.ProgramID())

	accounts := ix.Accounts()
	require.Len(t, accounts, 2)
	assert.Equal(t, payer, accounts[0].PublicKey)
	assert.Equal(t, tip, accounts[1].PublicKey)

	data, err := ix.Data()
	require.NoError(t, err)
	decoded, err := system.DecodeInstruction(accounts, data)
	require.NoError(t, err)
	transfer, ok := decoded.Impl.(*system.Transfer)
	require.True(t, ok)
	assert.Equal(t, uint64(10_000_000), *transfer.Lamports)
}
