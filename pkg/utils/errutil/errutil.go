package errutil

import (
	"context"
	"errors"
	"net/http"

	"github.com/LalaIAm/case-agent/pkg/domain/model"
	"github.com/LalaIAm/case-agent/pkg/utils/logging"
	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
)

var sentryEnabled bool

// EnableSentry turns on exception capture for handled errors. sentry.Init must be called beforehand.
func EnableSentry() {
	sentryEnabled = true
}

// StatusCode maps an error kind to an HTTP status
func StatusCode(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrNotConfigured), errors.Is(err, model.ErrTransientService):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Handle logs the error with a message and reports it to Sentry when enabled.
// The error is returned as-is.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error(msg,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error(msg, "error", err.Error())
	}

	capture(err)
	return err
}

// HandleHTTP logs the error and writes an HTTP error response with the status derived from its kind.
// Internal details of 5xx errors are not exposed to the client.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	status := StatusCode(err)
	logger := logging.From(ctx)

	var ge *goerr.Error
	if errors.As(err, &ge) {
		logger.Error("HTTP error",
			"status", status,
			"error", err.Error(),
			"values", ge.Values(),
			"stack", ge.Stacks(),
		)
	} else {
		logger.Error("HTTP error",
			"status", status,
			"error", err.Error(),
		)
	}

	msg := err.Error()
	if status >= http.StatusInternalServerError {
		capture(err)
		msg = http.StatusText(status)
	}
	http.Error(w, msg, status)
}

func capture(err error) {
	if !sentryEnabled {
		return
	}
	hub := sentry.CurrentHub().Clone()
	hub.CaptureException(err)
}
