// internal/gateway/handlers.go
package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-bundler/internal/bundle"
	"github.com/rovshanmuradov/solana-bundler/internal/distribution"
	"github.com/rovshanmuradov/solana-bundler/internal/logger"
	"github.com/rovshanmuradov/solana-bundler/internal/wallet"
)

const requestIDHeader = "X-Request-ID"

// BundleSendBody - тело /bundlesend.
type BundleSendBody struct {
	Txns        []string `json:"txns"`
	BlockEngine string   `json:"blockengine"`
}

// DistributeBody - тело /distribute. Суммы передаются десятичными строками в лампортах.
type DistributeBody struct {
	Payer     string   `json:"payer"`
	Receivers []string `json:"receivers"`
	// Recievers - написание поля в существующих клиентах.
	Recievers      []string `json:"recievers"`
	TotalAmount    string   `json:"total_amount"`
	MinAmount      string   `json:"min_amount"`
	MaxAmount      string   `json:"max_amount"`
	BlockEngineURL string   `json:"block_engine_url"`
}

// DistributeResponse - ответ /distribute при успехе.
type DistributeResponse struct {
	State          string   `json:"state"`
	BundleIDs      []string `json:"bundle_ids"`
	PaidRecipients int      `json:"paid_recipients"`
	PaidLamports   uint64   `json:"paid_lamports"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return badRequest("invalid request body: %s", err)
	}
	return nil
}

// HandleBundleSend нормализует транзакции и отправляет их одним бандлом.
// Отвечает 200 с идентификатором бандла.
func (s *Server) HandleBundleSend(w http.ResponseWriter, r *http.Request) {
	log, requestID := logger.WithOperation(s.logger, "bundlesend")
	w.Header().Set(requestIDHeader, requestID)

	body := &BundleSendBody{}
	if err := decodeBody(w, r, body); err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	bundleID, err := s.sendBundle(r, body, log)
	if err != nil {
		code := statusFor(err)
		log.Error("Bundle send request failed", zap.Int("status", code), zap.Error(err))
		writeError(w, err, code)
		return
	}
	writeJSON(w, http.StatusOK, bundleID)
}

func (s *Server) sendBundle(r *http.Request, body *BundleSendBody, log *zap.Logger) (string, error) {
	if len(body.Txns) == 0 {
		return "", badRequest("txns is empty")
	}

	signed, err := s.normalizer.DecodeAll(body.Txns)
	if err != nil {
		return "", err
	}

	rl, err := s.deps.Relays(s.blockEngine(body.BlockEngine))
	if err != nil {
		return "", badRequest("block engine: %s", err)
	}

	ctx := r.Context()
	session, err := rl.Authenticate(ctx, s.deps.Credential)
	if err != nil {
		return "", err
	}
	stream, err := session.SubscribeResults(ctx)
	if err != nil {
		return "", fmt.Errorf("subscribe to bundle results: %w", err)
	}
	defer func() {
		if cerr := stream.Close(); cerr != nil {
			log.Warn("Failed to close result stream", zap.Error(cerr))
		}
	}()

	log.Debug("Submitting bundle", zap.Int("transactions", len(signed)))
	outcome := s.deps.Submitter.Submit(ctx, 0, bundle.VersionedAll(signed), session, stream)
	if !outcome.Success {
		return outcome.BundleID, outcome.Err
	}
	return outcome.BundleID, nil
}

// HandleDistribute проводит распределение синхронно и возвращает идентификаторы бандлов.
func (s *Server) HandleDistribute(w http.ResponseWriter, r *http.Request) {
	log, requestID := logger.WithOperation(s.logger, "distribute")
	w.Header().Set(requestIDHeader, requestID)

	body := &DistributeBody{}
	if err := decodeBody(w, r, body); err != nil {
		writeError(w, err, statusFor(err))
		return
	}

	report, err := s.distribute(r, body, log)
	if err != nil {
		code := statusFor(err)
		log.Error("Distribution request failed", zap.Int("status", code), zap.Error(err))
		writeError(w, err, code)
		return
	}

	writeJSON(w, http.StatusOK, DistributeResponse{
		State:          report.State.String(),
		BundleIDs:      report.BundleIDs,
		PaidRecipients: report.PaidRecipients,
		PaidLamports:   report.PaidLamports,
	})
}

func (s *Server) distribute(r *http.Request, body *DistributeBody, log *zap.Logger) (*distribution.Report, error) {
	req, err := parseDistribution(body)
	if err != nil {
		return nil, err
	}

	rl, err := s.deps.Relays(s.blockEngine(body.BlockEngineURL))
	if err != nil {
		return nil, badRequest("block engine: %s", err)
	}

	var rng distribution.Rand
	if s.deps.NewRand != nil {
		rng = s.deps.NewRand()
	}
	distributor, err := distribution.NewDistributor(
		s.deps.Ledger, rl, s.deps.Credential, s.deps.Submitter, rng, s.deps.Options, log)
	if err != nil {
		return nil, err
	}
	return distributor.WithMetrics(s.deps.Metrics).Run(r.Context(), req)
}

func parseDistribution(body *DistributeBody) (distribution.Request, error) {
	if body.Payer == "" {
		return distribution.Request{}, badRequest("payer is required")
	}
	payer, err := wallet.NewWallet(body.Payer)
	if err != nil {
		return distribution.Request{}, badRequest("payer: %s", err)
	}

	secrets := body.Receivers
	if len(secrets) == 0 {
		secrets = body.Recievers
	}
	if len(secrets) == 0 {
		return distribution.Request{}, badRequest("receivers is empty")
	}
	recipients, err := wallet.ParseWallets(secrets)
	if err != nil {
		return distribution.Request{}, badRequest("receivers: %s", err)
	}

	amounts := make([]uint64, 3)
	for i, field := range []struct {
		name  string
		value string
	}{
		{"total_amount", body.TotalAmount},
		{"min_amount", body.MinAmount},
		{"max_amount", body.MaxAmount},
	} {
		v, err := strconv.ParseUint(field.value, 10, 64)
		if err != nil {
			return distribution.Request{}, badRequest("%s must be a decimal lamport amount: %q", field.name, field.value)
		}
		amounts[i] = v
	}

	return distribution.Request{
		Payer:      payer,
		Recipients: recipients,
		Total:      amounts[0],
		Min:        amounts[1],
		Max:        amounts[2],
	}, nil
}
