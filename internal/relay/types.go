// internal/relay/types.go
package relay

import (
	"context"

	"github.com/gagliardetto/solana-go"
)

// MaxBundleTransactions - максимальное число транзакций в одном бандле релея.
const MaxBundleTransactions = 5

// Relay принимает бандлы для атомарного исполнения.
type Relay interface {
	// Authenticate выполняется один раз на прогон.
	Authenticate(ctx context.Context, credential string) (Session, error)
}

// Session - аутентифицированная сессия релея. Не потокобезопасна между прогонами.
type Session interface {
	// SubscribeResults открывает один долгоживущий поток результатов на прогон.
	SubscribeResults(ctx context.Context) (ResultStream, error)
	// SendBundle отправляет бандл и возвращает идентификатор, назначенный релеем.
	SendBundle(ctx context.Context, txs []*solana.Transaction) (string, error)
}

// ResultStream сопоставляет отправленные бандлы с асинхронными результатами исполнения.
type ResultStream interface {
	// Await блокируется до финального статуса бандла или внутреннего дедлайна потока.
	Await(ctx context.Context, bundleID string) (BundleResult, error)
	Close() error
}

// BundleStatus - статус бандла, сообщаемый релеем.
type BundleStatus string

const (
	StatusPending BundleStatus = "Pending"
	StatusLanded  BundleStatus = "Landed"
	StatusFailed  BundleStatus = "Failed"
	StatusInvalid BundleStatus = "Invalid"
)

// Terminal reports whether no further status change is expected.
func (s BundleStatus) Terminal() bool {
	return s == StatusLanded || s == StatusFailed
}

// BundleResult - результат исполнения одного бандла.
type BundleResult struct {
	BundleID string
	Status   BundleStatus
	Slot     uint64
	Detail   string
}

// Outcome - результат отправки одного чанка.
type Outcome struct {
	ChunkIndex int
	Success    bool
	BundleID   string
	Detail     string
	Err        error
}
