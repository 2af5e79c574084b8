// internal/distribution/chunk.go
package distribution

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/rovshanmuradov/solana-bundler/internal/relay"
	"github.com/rovshanmuradov/solana-bundler/internal/wallet"
)

const (
	// PacketDataSize - предельный размер сериализованной транзакции.
	PacketDataSize = 1232

	DefaultChunkSize      = 21
	DefaultSuperChunkSize = 104
	DefaultTipLamports    = 10_000_000
)

// Partition делит items на последовательные группы размера size, последняя может быть короче.
func Partition[T any](items []T, size int) [][]T {
	if size <= 0 || len(items) == 0 {
		return nil
	}
	groups := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		groups = append(groups, items[start:end])
	}
	return groups
}

// TransferInstruction - перевод лампортов системной программой.
type TransferInstruction struct {
	From     solana.PublicKey
	To       solana.PublicKey
	Lamports uint64
}

// Build собирает инструкцию системной программы.
func (t TransferInstruction) Build() solana.Instruction {
	return system.NewTransferInstruction(t.Lamports, t.From, t.To).Build()
}

// TipPicker выбирает адрес для вознаграждения релея.
type TipPicker func() (solana.PublicKey, error)

// ChunkBuilder собирает транзакции одного бандла.
type ChunkBuilder struct {
	payer        *wallet.Wallet
	MaxTransfers int
	TipLamports  uint64
	pickTip      TipPicker
}

// NewChunkBuilder создаёт сборщик с выбором tip-аккаунта через rng.
func NewChunkBuilder(payer *wallet.Wallet, maxTransfers int, tipLamports uint64, rng Rand) *ChunkBuilder {
	if maxTransfers <= 0 {
		maxTransfers = DefaultChunkSize
	}
	return &ChunkBuilder{
		payer:        payer,
		MaxTransfers: maxTransfers,
		TipLamports:  tipLamports,
		pickTip: func() (solana.PublicKey, error) {
			return relay.RandomTipAccount(rng)
		},
	}
}

// Build возвращает по одной подписанной v0-транзакции на каждые MaxTransfers получателей.
// Получатель recipients[j] получает amounts[j]. При withTip последней инструкцией
// последней транзакции идёт tip; если он не помещается в пакет, добавляется
// отдельная tip-транзакция.
func (b *ChunkBuilder) Build(
	recipients []solana.PublicKey,
	amounts []uint64,
	blockhash solana.Hash,
	withTip bool,
) ([]*solana.Transaction, error) {
	if len(recipients) != len(amounts) {
		return nil, fmt.Errorf("recipients and amounts differ in length: %d != %d", len(recipients), len(amounts))
	}

	groups := Partition(recipients, b.MaxTransfers)
	instructionSets := make([][]solana.Instruction, len(groups))
	offset := 0
	for i, group := range groups {
		set := make([]solana.Instruction, 0, len(group)+1)
		for j, to := range group {
			set = append(set, TransferInstruction{
				From:     b.payer.PublicKey,
				To:       to,
				Lamports: amounts[offset+j],
			}.Build())
		}
		instructionSets[i] = set
		offset += len(group)
	}

	var tip solana.Instruction
	if withTip {
		tipAccount, err := b.pickTip()
		if err != nil {
			return nil, fmt.Errorf("pick tip account: %w", err)
		}
		tip = relay.TipInstruction(b.payer.PublicKey, tipAccount, b.TipLamports)
		if len(instructionSets) == 0 {
			instructionSets = append(instructionSets, nil)
		}
		last := len(instructionSets) - 1
		instructionSets[last] = append(instructionSets[last], tip)
	}

	txs := make([]*solana.Transaction, 0, len(instructionSets))
	for i, set := range instructionSets {
		tx, err := b.compile(set, blockhash)
		if err == nil {
			txs = append(txs, tx)
			continue
		}

		var tooLarge *packetSizeError
		isLast := i == len(instructionSets)-1
		if !withTip || !isLast || !errors.As(err, &tooLarge) || len(set) < 2 {
			return nil, &MessageCompilationError{Chunk: i, Err: err}
		}

		// tip не влез: переносим его в отдельную транзакцию
		transfers, err := b.compile(set[:len(set)-1], blockhash)
		if err != nil {
			return nil, &MessageCompilationError{Chunk: i, Err: err}
		}
		tipTx, err := b.compile([]solana.Instruction{tip}, blockhash)
		if err != nil {
			return nil, &MessageCompilationError{Chunk: i + 1, Err: err}
		}
		txs = append(txs, transfers, tipTx)
	}

	if len(txs) > relay.MaxBundleTransactions {
		return nil, &MessageCompilationError{
			Chunk: len(txs) - 1,
			Err:   fmt.Errorf("bundle needs %d transactions, relay accepts at most %d", len(txs), relay.MaxBundleTransactions),
		}
	}
	return txs, nil
}

type packetSizeError struct {
	size int
}

func (e *packetSizeError) Error() string {
	return fmt.Sprintf("serialized transaction is %d bytes, packet limit is %d", e.size, PacketDataSize)
}

// compile собирает, подписывает и проверяет размер одной транзакции.
func (b *ChunkBuilder) compile(instructions []solana.Instruction, blockhash solana.Hash) (*solana.Transaction, error) {
	tx, err := solana.NewTransaction(instructions, blockhash, solana.TransactionPayer(b.payer.PublicKey))
	if err != nil {
		return nil, err
	}
	tx.Message.SetVersion(solana.MessageVersionV0)

	if err := b.payer.SignTransaction(tx); err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("serialize: %w", err)
	}
	if len(raw) > PacketDataSize {
		return nil, &packetSizeError{size: len(raw)}
	}
	return tx, nil
}
