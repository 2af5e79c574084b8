// internal/bundle/transaction.go
package bundle

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// Kind определяет бинарную форму входной транзакции.
type Kind uint8

const (
	KindLegacy Kind = iota + 1
	KindVersioned
)

func (k Kind) String() string {
	switch k {
	case KindLegacy:
		return "legacy"
	case KindVersioned:
		return "versioned"
	default:
		return "unknown"
	}
}

// versionPrefixMask marks a versioned message: the first message byte has the high bit set.
const versionPrefixMask = 0x80

// SignedTransaction - нормализованная подписанная транзакция одной из двух форм.
// Создаётся один раз на входную строку и не изменяется.
type SignedTransaction struct {
	kind Kind
	tx   *solana.Transaction
}

// Kind возвращает форму, в которой транзакция была получена.
func (s SignedTransaction) Kind() Kind {
	return s.kind
}

// Transaction возвращает декодированную транзакцию.
func (s SignedTransaction) Transaction() *solana.Transaction {
	return s.tx
}

// Signatures возвращает подписи транзакции.
func (s SignedTransaction) Signatures() []solana.Signature {
	if s.tx == nil {
		return nil
	}
	return s.tx.Signatures
}

// Versioned возвращает транзакцию в форме, которую принимает релей.
//
// Legacy-транзакция оборачивается в versioned-контейнер без таблиц адресов:
// подписи копируются байт в байт, а сообщение сохраняет legacy-кодировку,
// потому что подписи покрывают именно эти байты.
func (s SignedTransaction) Versioned() *solana.Transaction {
	if s.tx == nil || s.kind == KindVersioned {
		return s.tx
	}
	signatures := make([]solana.Signature, len(s.tx.Signatures))
	copy(signatures, s.tx.Signatures)
	return &solana.Transaction{
		Signatures: signatures,
		Message:    s.tx.Message,
	}
}

type decodeFunc func(data []byte) (*solana.Transaction, error)

// Normalizer декодирует транзакции из base58 в SignedTransaction.
// Сначала пробуется versioned-форма, затем legacy.
type Normalizer struct {
	decodeVersioned decodeFunc
	decodeLegacy    decodeFunc
}

// NewNormalizer создаёт нормализатор с декодерами по умолчанию.
func NewNormalizer() *Normalizer {
	return &Normalizer{
		decodeVersioned: decodeVersionedTransaction,
		decodeLegacy:    decodeLegacyTransaction,
	}
}

// Decode декодирует одну транзакцию. index используется только в ошибке.
func (n *Normalizer) Decode(index int, encoded string) (SignedTransaction, error) {
	data, err := base58.Decode(encoded)
	if err != nil {
		return SignedTransaction{}, &MalformedTransactionError{Index: index, Err: fmt.Errorf("invalid base58: %w", err)}
	}
	if len(data) == 0 {
		return SignedTransaction{}, &MalformedTransactionError{Index: index, Err: errors.New("empty transaction")}
	}

	tx, versionedErr := n.decodeVersioned(data)
	if versionedErr == nil {
		return SignedTransaction{kind: KindVersioned, tx: tx}, nil
	}

	tx, legacyErr := n.decodeLegacy(data)
	if legacyErr == nil {
		return SignedTransaction{kind: KindLegacy, tx: tx}, nil
	}

	return SignedTransaction{}, &MalformedTransactionError{
		Index: index,
		Err: fmt.Errorf("versioned decode: %v; legacy decode: %w",
			versionedErr, legacyErr),
	}
}

// DecodeAll декодирует транзакции по порядку и останавливается на первой ошибке.
func (n *Normalizer) DecodeAll(encoded []string) ([]SignedTransaction, error) {
	out := make([]SignedTransaction, 0, len(encoded))
	for i, s := range encoded {
		tx, err := n.Decode(i, s)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, nil
}

// VersionedAll приводит набор нормализованных транзакций к форме релея.
func VersionedAll(txs []SignedTransaction) []*solana.Transaction {
	out := make([]*solana.Transaction, 0, len(txs))
	for _, tx := range txs {
		out = append(out, tx.Versioned())
	}
	return out
}

func decodeVersionedTransaction(data []byte) (*solana.Transaction, error) {
	decoder := bin.NewBinDecoder(data)
	signatures, err := readSignatures(decoder)
	if err != nil {
		return nil, err
	}

	prefix, err := decoder.Peek(1)
	if err != nil {
		return nil, fmt.Errorf("unable to read message prefix: %w", err)
	}
	if prefix[0]&versionPrefixMask == 0 {
		return nil, errNotVersioned
	}
	// поддерживается только версия 0
	if prefix[0] != versionPrefixMask {
		return nil, fmt.Errorf("%w: %d", errUnsupportedVer, prefix[0]&^versionPrefixMask)
	}

	var message solana.Message
	if err := message.UnmarshalV0(decoder); err != nil {
		return nil, fmt.Errorf("unable to decode v0 message: %w", err)
	}
	return finishDecode(decoder, signatures, message)
}

func decodeLegacyTransaction(data []byte) (*solana.Transaction, error) {
	decoder := bin.NewBinDecoder(data)
	signatures, err := readSignatures(decoder)
	if err != nil {
		return nil, err
	}

	prefix, err := decoder.Peek(1)
	if err != nil {
		return nil, fmt.Errorf("unable to read message prefix: %w", err)
	}
	if prefix[0]&versionPrefixMask != 0 {
		return nil, errNotLegacy
	}

	var message solana.Message
	if err := message.UnmarshalLegacy(decoder); err != nil {
		return nil, fmt.Errorf("unable to decode legacy message: %w", err)
	}
	return finishDecode(decoder, signatures, message)
}

func readSignatures(decoder *bin.Decoder) ([]solana.Signature, error) {
	count, err := decoder.ReadCompactU16()
	if err != nil {
		return nil, fmt.Errorf("unable to read signature count: %w", err)
	}
	if count == 0 {
		return nil, errors.New("transaction has no signatures")
	}
	if count > decoder.Remaining()/64 {
		return nil, fmt.Errorf("signature count %d exceeds remaining bytes %d", count, decoder.Remaining())
	}

	signatures := make([]solana.Signature, count)
	for i := range signatures {
		if _, err := decoder.Read(signatures[i][:]); err != nil {
			return nil, fmt.Errorf("unable to read signature %d: %w", i, err)
		}
	}
	return signatures, nil
}

func finishDecode(decoder *bin.Decoder, signatures []solana.Signature, message solana.Message) (*solana.Transaction, error) {
	if decoder.HasRemaining() {
		return nil, fmt.Errorf("%w: %d", errTrailingBytes, decoder.Remaining())
	}
	if int(message.Header.NumRequiredSignatures) != len(signatures) {
		return nil, fmt.Errorf("%w: header %d, got %d",
			errSignatureMismatch, message.Header.NumRequiredSignatures, len(signatures))
	}
	return &solana.Transaction{
		Signatures: signatures,
		Message:    message,
	}, nil
}
