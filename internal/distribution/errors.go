// internal/distribution/errors.go
package distribution

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAllocationBounds совпадает с любой ошибкой границ распределения.
	ErrInvalidAllocationBounds = errors.New("invalid allocation bounds")
	// ErrMessageCompilation совпадает с любой ошибкой сборки сообщения транзакции.
	ErrMessageCompilation = errors.New("message compilation failed")
	// ErrRunAborted возвращается, когда прогон остановлен на неудачном чанке.
	ErrRunAborted = errors.New("distribution run aborted")
)

// InvalidAllocationBoundsError - границы, при которых план распределения невыполним.
type InvalidAllocationBoundsError struct {
	Total  uint64
	Count  int
	Min    uint64
	Max    uint64
	Reason string
}

func (e *InvalidAllocationBoundsError) Error() string {
	return fmt.Sprintf("invalid allocation bounds (total=%d count=%d min=%d max=%d): %s",
		e.Total, e.Count, e.Min, e.Max, e.Reason)
}

func (e *InvalidAllocationBoundsError) Is(target error) bool {
	return target == ErrInvalidAllocationBounds
}

// MessageCompilationError - транзакция чанка не собирается в пределах лимитов протокола.
type MessageCompilationError struct {
	Chunk int
	Err   error
}

func (e *MessageCompilationError) Error() string {
	return fmt.Sprintf("failed to compile message for chunk %d: %v", e.Chunk, e.Err)
}

func (e *MessageCompilationError) Unwrap() error {
	return e.Err
}

func (e *MessageCompilationError) Is(target error) bool {
	return target == ErrMessageCompilation
}
