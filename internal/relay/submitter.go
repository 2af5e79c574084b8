// internal/relay/submitter.go
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-bundler/internal/utils/metrics"
)

// Confirmer подтверждает подписи на леджере после того, как релей сообщил о посадке бандла.
type Confirmer interface {
	WaitForTransactionConfirmation(ctx context.Context, signature solana.Signature, commitment rpc.CommitmentType) error
}

// Submitter отправляет транзакции одного чанка и читает его результат.
// Повторов нет: политика повторов принадлежит вызывающему.
type Submitter struct {
	confirmer Confirmer
	metrics   *metrics.Collector
	logger    *zap.Logger
}

// NewSubmitter создаёт отправитель. confirmer может быть nil.
func NewSubmitter(confirmer Confirmer, logger *zap.Logger) *Submitter {
	return &Submitter{
		confirmer: confirmer,
		logger:    logger.Named("bundle-submitter"),
	}
}

// WithMetrics включает учёт результатов бандлов.
func (s *Submitter) WithMetrics(collector *metrics.Collector) *Submitter {
	s.metrics = collector
	return s
}

// Submit отправляет бандл и блокируется до результата из потока.
func (s *Submitter) Submit(
	ctx context.Context,
	chunkIndex int,
	txs []*solana.Transaction,
	session Session,
	stream ResultStream,
) Outcome {
	start := time.Now()
	outcome := s.submit(ctx, chunkIndex, txs, session, stream)
	if outcome.BundleID != "" {
		s.metrics.RecordBundle(ctx, time.Since(start), outcome.Success)
	}
	return outcome
}

func (s *Submitter) submit(
	ctx context.Context,
	chunkIndex int,
	txs []*solana.Transaction,
	session Session,
	stream ResultStream,
) Outcome {
	outcome := Outcome{ChunkIndex: chunkIndex}

	if len(txs) == 0 {
		return s.fail(outcome, errors.New("empty bundle"))
	}
	if len(txs) > MaxBundleTransactions {
		return s.fail(outcome, fmt.Errorf("bundle has %d transactions, relay accepts at most %d",
			len(txs), MaxBundleTransactions))
	}

	bundleID, err := session.SendBundle(ctx, txs)
	if err != nil {
		return s.fail(outcome, fmt.Errorf("send bundle: %w", err))
	}
	outcome.BundleID = bundleID

	s.logger.Info("Bundle sent",
		zap.Int("chunk", chunkIndex),
		zap.String("bundle_id", bundleID),
		zap.Int("transactions", len(txs)))

	result, err := stream.Await(ctx, bundleID)
	if err != nil {
		return s.fail(outcome, fmt.Errorf("await result: %w", err))
	}
	if result.Status != StatusLanded {
		detail := result.Detail
		if detail == "" {
			detail = string(result.Status)
		}
		outcome.Detail = detail
		return s.fail(outcome, fmt.Errorf("bundle rejected: %s", detail))
	}

	if s.confirmer != nil {
		for _, tx := range txs {
			if len(tx.Signatures) == 0 {
				continue
			}
			if err := s.confirmer.WaitForTransactionConfirmation(ctx, tx.Signatures[0], rpc.CommitmentConfirmed); err != nil {
				return s.fail(outcome, fmt.Errorf("confirm %s: %w", tx.Signatures[0], err))
			}
		}
	}

	outcome.Success = true
	outcome.Detail = fmt.Sprintf("landed in slot %d", result.Slot)
	s.logger.Info("Bundle landed",
		zap.Int("chunk", chunkIndex),
		zap.String("bundle_id", bundleID),
		zap.Uint64("slot", result.Slot))
	return outcome
}

func (s *Submitter) fail(outcome Outcome, err error) Outcome {
	outcome.Success = false
	outcome.Err = &SubmissionError{Chunk: outcome.ChunkIndex, BundleID: outcome.BundleID, Err: err}
	if outcome.Detail == "" {
		outcome.Detail = err.Error()
	}
	s.logger.Error("Bundle submission failed",
		zap.Int("chunk", outcome.ChunkIndex),
		zap.String("bundle_id", outcome.BundleID),
		zap.Error(err))
	return outcome
}
