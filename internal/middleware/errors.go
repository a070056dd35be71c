package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/demo-credit/wallet-service/internal/auth"
	"github.com/demo-credit/wallet-service/internal/identity"
	"github.com/demo-credit/wallet-service/internal/ledger"
)

type errorBody struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// StatusFor maps a ledger failure kind to its HTTP status.
func StatusFor(kind ledger.Kind) int {
	switch kind {
	case ledger.KindValidation:
		return http.StatusBadRequest
	case ledger.KindNotFound:
		return http.StatusNotFound
	case ledger.KindInsufficientFunds:
		return http.StatusUnprocessableEntity
	case ledger.KindDuplicateReference, ledger.KindConflict:
		return http.StatusConflict
	case ledger.KindForeignKeyViolation:
		return http.StatusUnprocessableEntity
	case ledger.KindLockTimeout, ledger.KindDeadlock, ledger.KindConnection:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ErrorHandler renders every error that reaches Fiber as a JSON envelope.
// Ledger errors keep their kind as the code; storage details of server side
// failures are logged, not returned.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status, body := describe(err)
		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", RequestIDFrom(c)),
				slog.Any("error", err),
			)
		}
		return c.Status(status).JSON(body)
	}
}

func describe(err error) (int, errorBody) {
	var le *ledger.Error
	if errors.As(err, &le) {
		status := StatusFor(le.Kind)
		msg := le.Message
		if status >= http.StatusInternalServerError {
			msg = sentinelMessage(le.Kind)
		}
		return status, errorBody{Status: "error", Code: string(le.Kind), Message: msg}
	}

	var ive *identity.ValidationError
	if errors.As(err, &ive) {
		return http.StatusBadRequest, errorBody{Status: "error", Code: "validation", Message: ive.Error()}
	}

	switch {
	case errors.Is(err, identity.ErrEmailTaken):
		return http.StatusConflict, errorBody{Status: "error", Code: "conflict", Message: err.Error()}
	case errors.Is(err, identity.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, errorBody{Status: "error", Code: "unauthorized", Message: err.Error()}
	}

	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code, errorBody{Status: "error", Code: codeFor(fe.Code), Message: fe.Message}
	}

	return http.StatusInternalServerError, errorBody{Status: "error", Code: "internal", Message: "internal server error"}
}

func sentinelMessage(kind ledger.Kind) string {
	switch kind {
	case ledger.KindLockTimeout:
		return ledger.ErrLockTimeout.Message
	case ledger.KindDeadlock:
		return ledger.ErrDeadlock.Message
	case ledger.KindConnection:
		return ledger.ErrConnection.Message
	default:
		return ledger.ErrGeneric.Message
	}
}

func codeFor(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "validation"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusTooManyRequests:
		return "rate_limited"
	default:
		if status >= http.StatusInternalServerError {
			return "internal"
		}
		return "error"
	}
}
