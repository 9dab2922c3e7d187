// Package grpc exposes the toolkit over a gRPC control API. Every method
// exchanges google.protobuf.Struct messages whose JSON shape is the
// request or response DTO.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tgtoolkit/internal/archive"
	"github.com/dmitrijs2005/tgtoolkit/internal/authflow"
	"github.com/dmitrijs2005/tgtoolkit/internal/clone"
	"github.com/dmitrijs2005/tgtoolkit/internal/keyring"
	"github.com/dmitrijs2005/tgtoolkit/internal/logging"
	"github.com/dmitrijs2005/tgtoolkit/internal/messages"
	"github.com/dmitrijs2005/tgtoolkit/internal/sessions"
	"google.golang.org/grpc"
)

// Services bundles the components the handlers call into.
type Services struct {
	Sessions *sessions.Registry
	Phone    *authflow.PhoneFlow
	QR       *authflow.QRFlow
	Importer *authflow.Importer
	Messages *messages.Service
	Clone    *clone.Engine
	Exporter *archive.Exporter
	Keys     *keyring.Registry
}

type GRPCServer struct {
	address   string
	svc       Services
	logger    logging.Logger
	jwtSecret []byte
	methods   map[string]handlerFunc
}

func NewGRPCServer(a string, l logging.Logger, svc Services, secretKey string) *GRPCServer {
	s := &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		svc:       svc,
		jwtSecret: []byte(secretKey),
	}
	s.methods = s.routes()
	return s
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv.RegisterService(&ToolkitServiceDesc, s)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
