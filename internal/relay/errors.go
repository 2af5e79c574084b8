// internal/relay/errors.go
package relay

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrRelayAuth совпадает с любой ошибкой аутентификации на релее.
	ErrRelayAuth = errors.New("relay authentication failed")
	// ErrRelaySubmission совпадает с любой ошибкой отправки или подтверждения бандла.
	ErrRelaySubmission = errors.New("relay submission failed")
	// ErrConfirmationTimeout - дедлайн ожидания результата истёк.
	ErrConfirmationTimeout = errors.New("bundle confirmation timeout")
	// ErrStreamClosed - поток результатов закрыт до получения результата.
	ErrStreamClosed = errors.New("result stream closed")
)

// AuthError описывает неудачную аутентификацию на конкретном endpoint.
type AuthError struct {
	Endpoint string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("relay authentication failed at %s: %v", e.Endpoint, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func (e *AuthError) Is(target error) bool {
	return target == ErrRelayAuth
}

// SubmissionError описывает неудачную отправку бандла чанка.
type SubmissionError struct {
	Chunk    int
	BundleID string
	Err      error
}

func (e *SubmissionError) Error() string {
	if e.BundleID != "" {
		return fmt.Sprintf("chunk %d bundle %s: %v", e.Chunk, e.BundleID, e.Err)
	}
	return fmt.Sprintf("chunk %d: %v", e.Chunk, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

func (e *SubmissionError) Is(target error) bool {
	return target == ErrRelaySubmission
}

// CallError - ошибка вызова метода block engine.
type CallError struct {
	Method string
	Err    error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, describe(e.Err))
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// describe сводит ошибки JSON-RPC к коду и сообщению вместо дампа структуры.
func describe(err error) string {
	if err == nil {
		return ""
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		desc := fmt.Sprintf("rpc error %d: %s", rpcErr.Code, rpcErr.Message)
		if strings.Contains(rpcErr.Message, "simulation failed") {
			if data, ok := rpcErr.Data.(map[string]interface{}); ok {
				if logs, ok := data["logs"].([]interface{}); ok && len(logs) > 0 {
					desc += fmt.Sprintf(" (last log: %v)", logs[len(logs)-1])
				}
			}
		}
		return desc
	}

	var httpErr *jsonrpc.HTTPError
	if errors.As(err, &httpErr) {
		return fmt.Sprintf("http status %d", httpErr.Code)
	}

	return err.Error()
}
