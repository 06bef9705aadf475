package apiserver

import (
	"errors"
	"net/http"

	"github.com/colony-launcher/colony/internal/envelope"
	"github.com/colony-launcher/colony/internal/journal"
)

var (
	// ErrUnprocessableTarget is returned for targets this server cannot serve.
	ErrUnprocessableTarget = errors.New("unprocessable target")
	// ErrTooLarge is returned when a request envelope exceeds the body limit.
	ErrTooLarge = errors.New("request envelope too large")

	errmap = map[int][]error{
		http.StatusBadRequest: {
			envelope.ErrMalformed,
			envelope.ErrUnsupportedVersion,
		},
		http.StatusConflict: {
			journal.ErrUniqueViolation,
		},
		http.StatusRequestEntityTooLarge: {
			ErrTooLarge,
		},
		http.StatusUnprocessableEntity: {
			ErrUnprocessableTarget,
		},
	}
)

// mapError returns the HTTP status for err, or 500 when it is not recognised.
func mapError(err error) int {
	if err == nil {
		return http.StatusOK
	}

	for code, errs := range errmap {
		for _, e := range errs {
			if errors.Is(err, e) {
				return code
			}
		}
	}

	return http.StatusInternalServerError
}
