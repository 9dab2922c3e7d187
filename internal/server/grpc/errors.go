package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tgtoolkit/internal/common"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// statusCode maps domain sentinels onto gRPC codes.
func statusCode(err error) codes.Code {
	switch {
	case errors.Is(err, common.ErrValidation), errors.Is(err, common.ErrNoPendingAuth):
		return codes.InvalidArgument
	case errors.Is(err, common.ErrNotFound):
		return codes.NotFound
	case errors.Is(err, common.ErrNoActiveAccount), errors.Is(err, common.ErrTwoFactorRequired):
		return codes.FailedPrecondition
	case errors.Is(err, common.ErrInvalidCredential):
		return codes.Unauthenticated
	case errors.Is(err, common.ErrCrypto):
		return codes.DataLoss
	case errors.Is(err, common.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, common.ErrTransport):
		return codes.Unavailable
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	default:
		return codes.Internal
	}
}

func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	if _, ok := status.FromError(err); ok {
		return err
	}
	code := statusCode(err)
	if code == codes.Internal {
		s.logger.Error(ctx, "request failed", "method", method, "err", err)
		return status.Error(codes.Internal, "internal error")
	}
	s.logger.Warn(ctx, "request rejected", "method", method, "code", code.String(), "err", err)
	return status.Error(code, err.Error())
}
