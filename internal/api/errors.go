package api

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/teresa-solution/tenancy-allocation-service/internal/model"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// failure is the transport-neutral rendering of an operation error.
type failure struct {
	httpStatus int
	grpcCode   codes.Code
	code       string
	message    string
}

// classify maps an operation error to a status and a message the caller
// can act on. Storage failures are not described beyond a generic message.
func classify(err error) failure {
	switch {
	case errors.Is(err, model.ErrUnitUnavailable):
		return failure{http.StatusConflict, codes.FailedPrecondition, "UNIT_UNAVAILABLE",
			"This unit was just taken or is not available. Please choose another unit."}
	case errors.Is(err, model.ErrConflict):
		return failure{http.StatusConflict, codes.Aborted, "CONFLICT",
			"Someone else changed this record at the same time. Refresh and try again."}
	case errors.Is(err, model.ErrInvalidTransition):
		return failure{http.StatusConflict, codes.FailedPrecondition, "INVALID_TRANSITION",
			"This record has already been processed. Refresh to see its current state."}
	case errors.Is(err, model.ErrCrossProperty):
		return failure{http.StatusUnprocessableEntity, codes.InvalidArgument, "CROSS_PROPERTY",
			"The selected unit belongs to a different property."}
	case errors.Is(err, model.ErrAlreadyEnded):
		return failure{http.StatusConflict, codes.FailedPrecondition, "ALREADY_ENDED",
			"This lease has already ended."}
	case errors.Is(err, model.ErrNotFound):
		msg := "The requested record does not exist."
		if d := detail(err, ""); d != "" {
			msg = strings.ToUpper(d[:1]) + d[1:] + " does not exist."
		}
		return failure{http.StatusNotFound, codes.NotFound, "NOT_FOUND", msg}
	case errors.Is(err, model.ErrInvalidInput):
		return failure{http.StatusBadRequest, codes.InvalidArgument, "BAD_REQUEST", detail(err, "The request is invalid.")}
	case errors.Is(err, model.ErrDuplicate):
		return failure{http.StatusConflict, codes.AlreadyExists, "DUPLICATE", "The record already exists."}
	case errors.Is(err, context.DeadlineExceeded):
		return failure{http.StatusGatewayTimeout, codes.DeadlineExceeded, "TIMEOUT",
			"The operation did not complete in time. Nothing was changed; try again."}
	case errors.Is(err, context.Canceled):
		return failure{499, codes.Canceled, "CANCELLED", "The request was cancelled before it started."}
	}
	return failure{http.StatusInternalServerError, codes.Internal, "INTERNAL_ERROR", "Internal server error"}
}

// detail keeps the wrapped context of an input error, which is safe to
// show, and falls back to a generic message otherwise.
func detail(err error, fallback string) string {
	msg := err.Error()
	if i := strings.LastIndex(msg, ": "); i >= 0 && i+2 < len(msg) {
		return msg[i+2:]
	}
	return fallback
}

// grpcError converts an operation error to a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	f := classify(err)
	return status.Error(f.grpcCode, f.message)
}
