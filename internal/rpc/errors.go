// Package rpc is the external interface adapter: a net/http transport over
// TaskService, request/response JSON shapes, and the domain-error mapping
// table from spec §7. It is a boundary layer, not core — it holds no
// lifecycle policy of its own.
package rpc

import (
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"

	domainerrors "github.com/chintakjoshi/LLM-task-orchestrator/internal/domain/task/errors"
)

// mappedError is the (grpc code, HTTP status, message) triple a domain error
// resolves to. message is always err.Error() except for the two Internal
// cases (StorageError and the anonymous fallback), which never leak an
// internal error string to callers.
type mappedError struct {
	code    codes.Code
	status  int
	message string
}

// mapDomainError translates a domain/service error into its RPC shape. It
// checks the tagged error taxonomy first, falling back to Internal for
// anything unrecognized (and therefore not safe to rely on having a known
// category).
func mapDomainError(err error) mappedError {
	if err == nil {
		return mappedError{code: codes.OK, status: http.StatusOK}
	}

	var notFound *domainerrors.NotFoundError
	if errors.As(err, &notFound) {
		return mappedError{codes.NotFound, http.StatusNotFound, err.Error()}
	}

	var parentNotFound *domainerrors.ParentNotFoundError
	if errors.As(err, &parentNotFound) {
		return mappedError{codes.NotFound, http.StatusNotFound, err.Error()}
	}

	var validation *domainerrors.ValidationError
	if errors.As(err, &validation) {
		return mappedError{codes.InvalidArgument, http.StatusBadRequest, err.Error()}
	}

	var precondition *domainerrors.PreconditionError
	if errors.As(err, &precondition) {
		return mappedError{codes.FailedPrecondition, http.StatusConflict, err.Error()}
	}

	var enqueue *domainerrors.EnqueueError
	if errors.As(err, &enqueue) {
		return mappedError{codes.Unavailable, http.StatusServiceUnavailable, err.Error()}
	}

	var storage *domainerrors.StorageError
	if errors.As(err, &storage) {
		return mappedError{codes.Internal, http.StatusInternalServerError, "internal storage error"}
	}

	var deadline *domainerrors.DeadlineExceededError
	if errors.As(err, &deadline) {
		return mappedError{codes.DeadlineExceeded, http.StatusGatewayTimeout, err.Error()}
	}

	return mappedError{codes.Internal, http.StatusInternalServerError, "internal error"}
}

// errorBody is the JSON shape written for every non-2xx response.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeMappedError resolves err through mapDomainError and writes the
// response, echoing the grpc code on both the JSON body and the
// X-RPC-Code header so a caller can branch on either.
func writeMappedError(w http.ResponseWriter, err error) {
	mapped := mapDomainError(err)
	w.Header().Set("X-RPC-Code", mapped.code.String())
	writeJSON(w, mapped.status, errorBody{Code: mapped.code.String(), Message: mapped.message})
}
