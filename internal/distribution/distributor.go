// internal/distribution/distributor.go
package distribution

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-bundler/internal/relay"
	"github.com/rovshanmuradov/solana-bundler/internal/utils/metrics"
	"github.com/rovshanmuradov/solana-bundler/internal/wallet"
)

// State - состояние прогона распределения.
type State int

const (
	StateInit State = iota
	StateAllocatingAmounts
	StateBuildingChunk
	StateSubmitting
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateAllocatingAmounts:
		return "AllocatingAmounts"
	case StateBuildingChunk:
		return "BuildingChunk"
	case StateSubmitting:
		return "Submitting"
	case StateCompleted:
		return "Completed"
	case StateAborted:
		return "Aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Ledger - источник свежего blockhash.
type Ledger interface {
	GetRecentBlockhash(ctx context.Context) (solana.Hash, error)
}

// Options задаёт размеры чанков и tip.
type Options struct {
	ChunkSize      int
	SuperChunkSize int
	TipLamports    uint64
	TipEveryBundle bool
}

// DefaultOptions возвращает рабочие значения по умолчанию.
func DefaultOptions() Options {
	return Options{
		ChunkSize:      DefaultChunkSize,
		SuperChunkSize: DefaultSuperChunkSize,
		TipLamports:    DefaultTipLamports,
	}
}

// Validate проверяет, что один суперчанк укладывается в бандл.
func (o Options) Validate() error {
	if o.ChunkSize <= 0 {
		return fmt.Errorf("chunk size must be positive, got %d", o.ChunkSize)
	}
	if o.SuperChunkSize <= 0 {
		return fmt.Errorf("super chunk size must be positive, got %d", o.SuperChunkSize)
	}
	if o.SuperChunkSize > o.ChunkSize*relay.MaxBundleTransactions {
		return fmt.Errorf("super chunk size %d exceeds %d transactions of %d transfers",
			o.SuperChunkSize, relay.MaxBundleTransactions, o.ChunkSize)
	}
	return nil
}

// Request - входные данные одного прогона.
type Request struct {
	Payer      *wallet.Wallet
	Recipients []*wallet.Wallet
	Total      uint64
	Min        uint64
	Max        uint64
}

// Report - итог прогона. PaidRecipients и PaidLamports учитывают только приземлившиеся суперчанки.
type Report struct {
	State          State
	Amounts        AmountPlan
	Outcomes       []relay.Outcome
	BundleIDs      []string
	PaidRecipients int
	PaidLamports   uint64
}

// Distributor проводит прогон по суперчанкам строго последовательно.
type Distributor struct {
	ledger     Ledger
	relay      relay.Relay
	credential string
	submitter  *relay.Submitter
	rng        Rand
	opts       Options
	metrics    *metrics.Collector
	logger     *zap.Logger
}

// NewDistributor создаёт оркестратор. Один Distributor обслуживает один прогон за раз.
func NewDistributor(
	ledger Ledger,
	rl relay.Relay,
	credential string,
	submitter *relay.Submitter,
	rng Rand,
	opts Options,
	logger *zap.Logger,
) (*Distributor, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if rng == nil {
		rng = NewEntropyRand()
	}
	return &Distributor{
		ledger:     ledger,
		relay:      rl,
		credential: credential,
		submitter:  submitter,
		rng:        rng,
		opts:       opts,
		logger:     logger.Named("distributor"),
	}, nil
}

// WithMetrics включает учёт итогов прогонов.
func (d *Distributor) WithMetrics(collector *metrics.Collector) *Distributor {
	d.metrics = collector
	return d
}

// Run выполняет распределение. При первой неудаче прогон переходит в Aborted,
// оставшиеся суперчанки не собираются, а ошибка возвращается вместе с отчётом.
func (d *Distributor) Run(ctx context.Context, req Request) (*Report, error) {
	report := &Report{State: StateInit}

	if req.Payer == nil {
		return d.abort(report, errors.New("payer wallet is required"))
	}

	session, err := d.relay.Authenticate(ctx, d.credential)
	if err != nil {
		return d.abort(report, err)
	}
	stream, err := session.SubscribeResults(ctx)
	if err != nil {
		return d.abort(report, fmt.Errorf("subscribe to bundle results: %w", err))
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			d.logger.Warn("Failed to close result stream", zap.Error(cerr))
		}
	}()

	d.transition(report, StateAllocatingAmounts)
	plan, err := Allocate(d.rng, req.Total, len(req.Recipients), req.Min, req.Max)
	if err != nil {
		return d.abort(report, err)
	}
	report.Amounts = plan
	d.logger.Info("Amounts allocated",
		zap.Int("recipients", len(plan)),
		zap.Uint64("total", plan.Sum()))

	recipients := wallet.PublicKeys(req.Recipients)
	superChunks := Partition(recipients, d.opts.SuperChunkSize)
	amountChunks := Partition([]uint64(plan), d.opts.SuperChunkSize)
	builder := NewChunkBuilder(req.Payer, d.opts.ChunkSize, d.opts.TipLamports, d.rng)

	d.logger.Info("Starting distribution",
		zap.String("payer", req.Payer.String()),
		zap.Int("recipients", len(recipients)),
		zap.Int("super_chunks", len(superChunks)),
		zap.Uint64("total", req.Total))

	for i, group := range superChunks {
		d.transition(report, StateBuildingChunk)

		blockhash, err := d.ledger.GetRecentBlockhash(ctx)
		if err != nil {
			return d.abort(report, fmt.Errorf("fetch blockhash for super chunk %d: %w", i, err))
		}

		isLast := i == len(superChunks)-1
		withTip := isLast || d.opts.TipEveryBundle
		txs, err := builder.Build(group, amountChunks[i], blockhash, withTip)
		if err != nil {
			return d.abort(report, fmt.Errorf("super chunk %d: %w", i, err))
		}

		d.transition(report, StateSubmitting)
		outcome := d.submitter.Submit(ctx, i, txs, session, stream)
		report.Outcomes = append(report.Outcomes, outcome)
		if outcome.BundleID != "" {
			report.BundleIDs = append(report.BundleIDs, outcome.BundleID)
		}
		if !outcome.Success {
			d.logger.Error("Super chunk failed, aborting run",
				zap.Int("super_chunk", i),
				zap.Int("remaining", len(superChunks)-i-1),
				zap.String("detail", outcome.Detail))
			return d.abort(report, outcome.Err)
		}
		report.PaidRecipients += len(group)
		report.PaidLamports += AmountPlan(amountChunks[i]).Sum()
	}

	d.transition(report, StateCompleted)
	d.metrics.RecordDistribution(report.State.String(), report.PaidRecipients, report.PaidLamports)
	d.logger.Info("Distribution completed",
		zap.Int("bundles", len(report.BundleIDs)),
		zap.Strings("bundle_ids", report.BundleIDs))
	return report, nil
}

func (d *Distributor) transition(report *Report, next State) {
	d.logger.Debug("State transition",
		zap.Stringer("from", report.State),
		zap.Stringer("to", next))
	report.State = next
}

func (d *Distributor) abort(report *Report, cause error) (*Report, error) {
	d.transition(report, StateAborted)
	d.metrics.RecordDistribution(report.State.String(), report.PaidRecipients, report.PaidLamports)
	d.logger.Warn("Distribution aborted", zap.Error(cause))
	return report, fmt.Errorf("%w: %w", ErrRunAborted, cause)
}
