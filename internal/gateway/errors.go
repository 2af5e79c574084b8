// internal/gateway/errors.go
package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/rovshanmuradov/solana-bundler/internal/bundle"
	"github.com/rovshanmuradov/solana-bundler/internal/distribution"
	"github.com/rovshanmuradov/solana-bundler/internal/relay"
)

// ErrBadRequest помечает ошибки, вызванные содержимым запроса.
var ErrBadRequest = errors.New("bad request")

// badRequest оборачивает ошибку клиента так, чтобы она совпадала с ErrBadRequest.
func badRequest(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadRequest, fmt.Sprintf(format, args...))
}

// statusFor сопоставляет ошибку с HTTP-статусом.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, bundle.ErrMalformedTransaction),
		errors.Is(err, distribution.ErrInvalidAllocationBounds):
		return http.StatusBadRequest
	case errors.Is(err, relay.ErrRelayAuth),
		errors.Is(err, relay.ErrRelaySubmission),
		errors.Is(err, relay.ErrConfirmationTimeout):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON пишет ответ в JSON.
func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError отдаёт клиенту только текст ошибки.
func writeError(w http.ResponseWriter, err error, code int) {
	type errorResponse struct {
		Error string `json:"error"`
	}
	writeJSON(w, code, errorResponse{Error: err.Error()})
}
