// Package mgmt hosts the management RPC scaffold spec.md §6 names:
// ListDevices, GetDevice, and MoveDevice. The wire bindings for that
// service are, per spec.md §1, a generated external collaborator this
// module never produces; what lives here is the real grpc.Server with
// reflection enabled, and the Go-level contract behind where those
// bindings would dispatch — internal/scene.Scene's own methods — so
// the surface is genuinely connectable the moment a .proto is added,
// grounded in guiperry-HASHER's cmd/driver/hasher-server/main.go
// grpc.NewServer + reflection.Register + graceful-shutdown shape.
package mgmt

import (
	"context"
	"fmt"
	"net"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/casimir-nfc/casimir/internal/scene"
)

// Server wraps a grpc.Server bound to scene's device-registry
// contract.
type Server struct {
	grpcServer *grpc.Server
	scene      *scene.Scene
	log        *zap.Logger
}

// New builds the scaffold. s is the scene whose ListDevices/GetDevice/
// MoveDevice methods back the eventual RPC handlers.
func New(s *scene.Scene, log *zap.Logger) *Server {
	grpcServer := grpc.NewServer()
	reflection.Register(grpcServer)
	return &Server{grpcServer: grpcServer, scene: s, log: log}
}

// Serve listens on addr and blocks until ctx is cancelled or Serve
// fails. On cancellation it calls GracefulStop.
func (s *Server) Serve(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("mgmt: listen on %s: %w", addr, err)
	}

	go func() {
		<-ctx.Done()
		s.log.Info("mgmt: shutting down gRPC server")
		s.grpcServer.GracefulStop()
	}()

	s.log.Info("mgmt: gRPC scaffold listening", zap.String("addr", addr))
	if err := s.grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("mgmt: serve: %w", err)
	}
	return nil
}

// Scene exposes the device-registry contract backing the eventual
// generated service, for tests and for wiring in real bindings later.
func (s *Server) Scene() *scene.Scene { return s.scene }
