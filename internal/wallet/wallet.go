// ==================================
// File: internal/wallet/wallet.go
// ==================================
package wallet

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Wallet представляет кошелёк Solana. Не сохраняется движком.
type Wallet struct {
	PrivateKey solana.PrivateKey
	PublicKey  solana.PublicKey
}

// NewWallet создаёт новый кошелёк из base58-encoded приватного ключа.
func NewWallet(privateKeyBase58 string) (*Wallet, error) {
	privateKeyBytes, err := base58.Decode(privateKeyBase58)
	if err != nil {
		return nil, fmt.Errorf("failed to decode private key: %w", err)
	}
	if len(privateKeyBytes) != 64 {
		return nil, fmt.Errorf("invalid private key length: expected 64 bytes, got %d", len(privateKeyBytes))
	}
	privateKey := solana.PrivateKey(privateKeyBytes)
	return FromPrivateKey(privateKey), nil
}

// FromPrivateKey оборачивает уже разобранный ключ.
func FromPrivateKey(privateKey solana.PrivateKey) *Wallet {
	return &Wallet{
		PrivateKey: privateKey,
		PublicKey:  privateKey.PublicKey(),
	}
}

// ParseWallets разбирает список base58-ключей, сохраняя порядок.
// Ошибка содержит индекс первого некорректного ключа.
func ParseWallets(secrets []string) ([]*Wallet, error) {
	wallets := make([]*Wallet, 0, len(secrets))
	for i, secret := range secrets {
		w, err := NewWallet(secret)
		if err != nil {
			return nil, fmt.Errorf("wallet %d: %w", i, err)
		}
		wallets = append(wallets, w)
	}
	return wallets, nil
}

// PublicKeys возвращает публичные ключи кошельков в том же порядке.
func PublicKeys(wallets []*Wallet) []solana.PublicKey {
	keys := make([]solana.PublicKey, len(wallets))
	for i, w := range wallets {
		keys[i] = w.PublicKey
	}
	return keys
}

// SignTransaction подписывает транзакцию с помощью приватного ключа кошелька.
func (w *Wallet) SignTransaction(tx *solana.Transaction) error {
	_, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(w.PublicKey) {
			return &w.PrivateKey
		}
		return nil
	})
	return err
}

// String возвращает строковое представление кошелька (его публичный ключ).
func (w *Wallet) String() string {
	return w.PublicKey.String()
}
