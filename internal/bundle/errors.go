// internal/bundle/errors.go
package bundle

import (
	"errors"
	"fmt"
)

// ErrMalformedTransaction совпадает (errors.Is) с любой ошибкой декодирования входной транзакции.
var ErrMalformedTransaction = errors.New("malformed transaction")

var (
	errNotVersioned      = errors.New("message prefix is not versioned")
	errNotLegacy         = errors.New("message prefix is versioned")
	errUnsupportedVer    = errors.New("unsupported message version")
	errTrailingBytes     = errors.New("trailing bytes after transaction")
	errSignatureMismatch = errors.New("signature count does not match message header")
)

// MalformedTransactionError описывает входную транзакцию, которую не удалось
// декодировать ни как versioned, ни как legacy.
type MalformedTransactionError struct {
	Index int
	Err   error
}

func (e *MalformedTransactionError) Error() string {
	return fmt.Sprintf("malformed transaction at index %d: %v", e.Index, e.Err)
}

func (e *MalformedTransactionError) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать с ErrMalformedTransaction.
func (e *MalformedTransactionError) Is(target error) bool {
	return target == ErrMalformedTransaction
}
