// internal/gateway/server.go
package gateway

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-bundler/internal/bundle"
	"github.com/rovshanmuradov/solana-bundler/internal/distribution"
	"github.com/rovshanmuradov/solana-bundler/internal/relay"
	"github.com/rovshanmuradov/solana-bundler/internal/utils/metrics"
)

const (
	// maxBodyBytes - предел размера JSON-тела запроса.
	maxBodyBytes = 20 << 20

	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// RelayFactory создаёт релей для адреса block engine из запроса.
type RelayFactory func(blockEngineURL string) (relay.Relay, error)

// Deps - зависимости шлюза.
type Deps struct {
	Ledger             distribution.Ledger
	Relays             RelayFactory
	Credential         string
	Submitter          *relay.Submitter
	Options            distribution.Options
	DefaultBlockEngine string
	// NewRand задаёт источник случайности распределения; nil - энтропия ОС.
	NewRand func() distribution.Rand
	// Health проверяет леджер; nil - всегда здоров.
	Health  func(ctx context.Context) error
	Metrics *metrics.Collector
}

// Server - HTTP-шлюз бандлера.
type Server struct {
	deps       Deps
	normalizer *bundle.Normalizer
	router     *mux.Router
	logger     *zap.Logger
}

// NewServer создаёт шлюз и регистрирует маршруты.
func NewServer(deps Deps, logger *zap.Logger) (*Server, error) {
	if deps.Ledger == nil {
		return nil, errors.New("ledger is required")
	}
	if deps.Relays == nil {
		return nil, errors.New("relay factory is required")
	}
	if deps.Submitter == nil {
		return nil, errors.New("submitter is required")
	}
	if err := deps.Options.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		deps:       deps,
		normalizer: bundle.NewNormalizer(),
		router:     mux.NewRouter(),
		logger:     logger.Named("gateway"),
	}

	s.router.HandleFunc("/bundlesend", s.HandleBundleSend).Methods(http.MethodPost)
	s.router.HandleFunc("/distribute", s.HandleDistribute).Methods(http.MethodPost)
	s.router.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	if deps.Metrics != nil {
		s.router.Handle("/metrics", deps.Metrics.Handler()).Methods(http.MethodGet)
	}
	return s, nil
}

// Handler возвращает корневой обработчик.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve слушает addr до отмены ctx. TLS включается, если заданы сертификат и ключ.
func (s *Server) Serve(ctx context.Context, addr, certFile, keyFile string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Gateway listening", zap.String("addr", addr), zap.Bool("tls", certFile != ""))
		var err error
		if certFile != "" && keyFile != "" {
			err = server.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("Error shutting down gateway", zap.Error(err))
		return err
	}
	s.logger.Info("Gateway shut down gracefully")
	return nil
}

// HandleHealth отвечает 200, если леджер доступен.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			writeError(w, err, http.StatusServiceUnavailable)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) blockEngine(requested string) string {
	if requested != "" {
		return requested
	}
	return s.deps.DefaultBlockEngine
}
