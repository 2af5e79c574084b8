// internal/relay/tips.go
package relay

import (
	"fmt"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
)

// TipProgramID - программа, от которой выводятся tip-аккаунты релея.
var TipProgramID = solana.MustPublicKeyFromBase58("T1pyyaTNZsKv2WcRAB8oVnk93mLJw2XzjtVYqCsaHqt")

const tipAccountCount = 8

// Rand - источник случайности для выбора tip-аккаунта. *math/rand.Rand подходит.
type Rand interface {
	Int63n(n int64) int64
}

var (
	tipAccountsOnce sync.Once
	tipAccounts     []solana.PublicKey
	tipAccountsErr  error
)

// TipAccounts возвращает восемь tip-аккаунтов TipProgramID.
// Результат вычисляется один раз и не требует сети.
func TipAccounts() ([]solana.PublicKey, error) {
	tipAccountsOnce.Do(func() {
		tipAccounts, tipAccountsErr = DeriveTipAccounts(TipProgramID)
	})
	if tipAccountsErr != nil {
		return nil, tipAccountsErr
	}
	out := make([]solana.PublicKey, len(tipAccounts))
	copy(out, tipAccounts)
	return out, nil
}

// DeriveTipAccounts выводит PDA по сидам "TIP_ACCOUNT_0".."TIP_ACCOUNT_7".
func DeriveTipAccounts(programID solana.PublicKey) ([]solana.PublicKey, error) {
	accounts := make([]solana.PublicKey, 0, tipAccountCount)
	for i := 0; i < tipAccountCount; i++ {
		seed := []byte(fmt.Sprintf("TIP_ACCOUNT_%d", i))
		address, _, err := solana.FindProgramAddress([][]byte{seed}, programID)
		if err != nil {
			return nil, fmt.Errorf("failed to derive tip account %d: %w", i, err)
		}
		accounts = append(accounts, address)
	}
	return accounts, nil
}

// RandomTipAccount выбирает tip-аккаунт равновероятно.
func RandomTipAccount(rng Rand) (solana.PublicKey, error) {
	accounts, err := TipAccounts()
	if err != nil {
		return solana.PublicKey{}, err
	}
	return accounts[rng.Int63n(int64(len(accounts)))], nil
}

// TipInstruction - перевод вознаграждения релею от плательщика.
func TipInstruction(payer, tipAccount solana.PublicKey, lamports uint64) solana.Instruction {
	return system.NewTransferInstruction(lamports, payer, tipAccount).Build()
}
