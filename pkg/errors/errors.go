package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ValidationError represents a validation failure with field-level details
type ValidationError struct {
	Field   string
	Message string
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation failed: %s", e.Message)
}

// GRPCStatus returns the gRPC status for this error
func (e *ValidationError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// NotFoundError reports that a record does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		Resource: resource,
		ID:       id,
	}
}

// Error implements the error interface
func (e *NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s not found: id=%s", e.Resource, e.ID)
	}
	return fmt.Sprintf("%s not found", e.Resource)
}

// GRPCStatus returns the gRPC status for this error
func (e *NotFoundError) GRPCStatus() *status.Status {
	return status.New(codes.NotFound, e.Error())
}

// AlreadyExistsError represents a uniqueness violation, e.g. a taken username.
type AlreadyExistsError struct {
	Resource string
	Field    string
	Value    string
}

// NewAlreadyExistsError creates a new already exists error
func NewAlreadyExistsError(resource, field, value string) *AlreadyExistsError {
	return &AlreadyExistsError{
		Resource: resource,
		Field:    field,
		Value:    value,
	}
}

// Error implements the error interface
func (e *AlreadyExistsError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s with %s %q already exists", e.Resource, e.Field, e.Value)
	}
	return fmt.Sprintf("%s already exists", e.Resource)
}

// GRPCStatus returns the gRPC status for this error
func (e *AlreadyExistsError) GRPCStatus() *status.Status {
	return status.New(codes.AlreadyExists, e.Error())
}

// SelfReferenceError is returned when a user tries to follow or unfollow themselves.
type SelfReferenceError struct {
	UserID string
}

// NewSelfReferenceError creates a new self reference error
func NewSelfReferenceError(userID string) *SelfReferenceError {
	return &SelfReferenceError{UserID: userID}
}

// Error implements the error interface
func (e *SelfReferenceError) Error() string {
	return fmt.Sprintf("user %s cannot follow or unfollow themselves", e.UserID)
}

// GRPCStatus returns the gRPC status for this error
func (e *SelfReferenceError) GRPCStatus() *status.Status {
	return status.New(codes.InvalidArgument, e.Error())
}

// AlreadyFollowingError is returned by Follow when the edge already exists.
type AlreadyFollowingError struct {
	ActorID  string
	TargetID string
}

// NewAlreadyFollowingError creates a new already following error
func NewAlreadyFollowingError(actorID, targetID string) *AlreadyFollowingError {
	return &AlreadyFollowingError{ActorID: actorID, TargetID: targetID}
}

// Error implements the error interface
func (e *AlreadyFollowingError) Error() string {
	return fmt.Sprintf("user %s is already following user %s", e.ActorID, e.TargetID)
}

// GRPCStatus returns the gRPC status for this error
func (e *AlreadyFollowingError) GRPCStatus() *status.Status {
	return status.New(codes.AlreadyExists, e.Error())
}

// NotFollowingError is returned by Unfollow when there is no edge to remove.
type NotFollowingError struct {
	ActorID  string
	TargetID string
}

// NewNotFollowingError creates a new not following error
func NewNotFollowingError(actorID, targetID string) *NotFollowingError {
	return &NotFollowingError{ActorID: actorID, TargetID: targetID}
}

// Error implements the error interface
func (e *NotFollowingError) Error() string {
	return fmt.Sprintf("user %s is not following user %s", e.ActorID, e.TargetID)
}

// GRPCStatus returns the gRPC status for this error
func (e *NotFollowingError) GRPCStatus() *status.Status {
	return status.New(codes.FailedPrecondition, e.Error())
}

// StoreError wraps a persistence failure (connection loss, aborted transaction, ...).
type StoreError struct {
	Op  string
	Err error
}

// NewStoreError creates a new store error
func NewStoreError(op string, err error) *StoreError {
	return &StoreError{
		Op:  op,
		Err: err,
	}
}

// Error implements the error interface
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store: %s", e.Op)
}

// Unwrap returns the wrapped error
func (e *StoreError) Unwrap() error {
	return e.Err
}

// GRPCStatus returns the gRPC status for this error.
// The wrapped cause is not sent to clients.
func (e *StoreError) GRPCStatus() *status.Status {
	return status.New(codes.Unavailable, "storage temporarily unavailable")
}

// GRPCStatuser interface for errors that can provide gRPC status
type GRPCStatuser interface {
	GRPCStatus() *status.Status
}

// IsStoreError reports whether err is, or wraps, a StoreError.
func IsStoreError(err error) bool {
	var se *StoreError
	return stderrors.As(err, &se)
}

// IsNotFound reports whether err is, or wraps, a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return stderrors.As(err, &nf)
}

// HTTPStatus maps an error from the taxonomy to an HTTP status code.
// Unknown errors map to 500.
func HTTPStatus(err error) int {
	var (
		validation   *ValidationError
		selfRef      *SelfReferenceError
		notFound     *NotFoundError
		exists       *AlreadyExistsError
		following    *AlreadyFollowingError
		notFollowing *NotFollowingError
	)
	switch {
	case err == nil:
		return http.StatusOK
	case stderrors.As(err, &validation), stderrors.As(err, &selfRef):
		return http.StatusBadRequest
	case stderrors.As(err, &notFound):
		return http.StatusNotFound
	case stderrors.As(err, &exists), stderrors.As(err, &following), stderrors.As(err, &notFollowing):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// Code returns a short machine-readable name for err, used in error bodies.
func Code(err error) string {
	var (
		validation   *ValidationError
		selfRef      *SelfReferenceError
		notFound     *NotFoundError
		exists       *AlreadyExistsError
		following    *AlreadyFollowingError
		notFollowing *NotFollowingError
		store        *StoreError
	)
	switch {
	case stderrors.As(err, &validation):
		return "validation_error"
	case stderrors.As(err, &selfRef):
		return "self_reference"
	case stderrors.As(err, &notFound):
		return "not_found"
	case stderrors.As(err, &exists):
		return "already_exists"
	case stderrors.As(err, &following):
		return "already_following"
	case stderrors.As(err, &notFollowing):
		return "not_following"
	case stderrors.As(err, &store):
		return "store_unavailable"
	default:
		return "internal_error"
	}
}
