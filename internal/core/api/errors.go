package api

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/solatis/schemamap/internal/document"
	"github.com/solatis/schemamap/internal/types"
)

// Service-level errors. Engine and store sentinels live in internal/types.
var (
	// ErrInvalidRequest wraps malformed request payloads.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrStorageDisabled is returned by stored-set operations when no
	// database is configured.
	ErrStorageDisabled = errors.New("mapping set storage is not configured")

	// ErrStore wraps database failures.
	ErrStore = errors.New("mapping set store failure")
)

// code maps an error onto a gRPC status code.
// Parse failures are a precondition of the document, not a bad request.
func code(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, types.ErrParseFailure):
		return codes.FailedPrecondition
	case errors.Is(err, types.ErrMappingSetNotFound):
		return codes.NotFound
	case errors.Is(err, ErrStorageDisabled), errors.Is(err, ErrStore):
		return codes.Unavailable
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, types.ErrDuplicateRuleID),
		errors.Is(err, types.ErrDocumentTooLarge),
		errors.Is(err, types.ErrRecordTooLarge),
		errors.Is(err, document.ErrNotObject):
		return codes.InvalidArgument
	default:
		return codes.Internal
	}
}

// grpcError converts err into a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(code(err), err.Error())
}

// httpStatus maps an error onto an HTTP status through its gRPC code.
func httpStatus(err error) int {
	switch code(err) {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.FailedPrecondition:
		return http.StatusUnprocessableEntity
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Canceled:
		return 499
	default:
		return http.StatusInternalServerError
	}
}
