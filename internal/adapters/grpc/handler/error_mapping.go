package handler

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
)

func toStatusError(err error) error {
	if err == nil {
		return nil
	}
	return status.Error(StatusCode(err), err.Error())
}

// StatusCode はドメインエラーを gRPC ステータスコードへ対応付けます。
func StatusCode(err error) codes.Code {
	switch {
	case err == nil:
		return codes.OK
	case errors.Is(err, hierarchy.ErrValidationFailed),
		errors.Is(err, hierarchy.ErrInvalidID),
		errors.Is(err, hierarchy.ErrInvalidStatus):
		return codes.InvalidArgument
	case errors.Is(err, hierarchy.ErrNodeNotFound),
		errors.Is(err, hierarchy.ErrParentNotFound),
		errors.Is(err, hierarchy.ErrParentTerminated):
		return codes.NotFound
	case errors.Is(err, hierarchy.ErrCycleRejected),
		errors.Is(err, hierarchy.ErrSelfReference):
		return codes.FailedPrecondition
	case errors.Is(err, hierarchy.ErrUnauthorized):
		return codes.PermissionDenied
	case errors.Is(err, hierarchy.ErrConflict):
		return codes.AlreadyExists
	default:
		return codes.Internal
	}
}
