// Package server は gRPC サーバーと REST ゲートウェイを起動・停止します。
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/isola513i/hari-hr-system/internal/adapters/grpc/handler"
	"github.com/isola513i/hari-hr-system/internal/adapters/grpc/hierarchyv1"
	"github.com/isola513i/hari-hr-system/internal/adapters/httpapi"
	"github.com/isola513i/hari-hr-system/internal/core/hierarchy"
	"github.com/isola513i/hari-hr-system/internal/platform/logging"
	"github.com/isola513i/hari-hr-system/internal/platform/metrics"
)

const shutdownTimeout = 10 * time.Second

// Options はサーバーの待ち受け先です。HTTPAddr が空なら REST ゲートウェイは起動しません。
type Options struct {
	GRPCAddr string
	HTTPAddr string
}

// Server は gRPC サーバーと REST ゲートウェイのライフサイクルを管理します。
type Server struct {
	opts       Options
	logger     *log.Logger
	grpcServer *grpc.Server
	httpServer *http.Server
}

// New は svc を公開するサーバーを構築します。
func New(opts Options, svc hierarchy.UseCase, logger *log.Logger, m *metrics.Metrics, grpcOpts ...grpc.ServerOption) *Server {
	if logger == nil {
		logger = log.Default()
	}
	grpcOpts = append([]grpc.ServerOption{grpc.ChainUnaryInterceptor(UnaryInterceptor(logger, m))}, grpcOpts...)
	srv := grpc.NewServer(grpcOpts...)
	hierarchyv1.RegisterHierarchyServiceServer(srv, handler.NewHierarchyGrpcHandler(svc))

	s := &Server{opts: opts, logger: logger, grpcServer: srv}
	if opts.HTTPAddr != "" {
		s.httpServer = &http.Server{
			Addr:              opts.HTTPAddr,
			Handler:           httpapi.NewRouter(svc, logger, m),
			ReadHeaderTimeout: 5 * time.Second,
		}
	}
	return s
}

// Run はサーバーを起動し、コンテキストがキャンセルされると両方を停止します。
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.opts.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.opts.GRPCAddr, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("gRPC server listening", "addr", lis.Addr().String())
		if err := s.grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve gRPC: %w", err)
		}
		return nil
	})

	if s.httpServer != nil {
		g.Go(func() error {
			s.logger.Info("HTTP gateway listening", "addr", s.httpServer.Addr)
			if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve HTTP: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		s.shutdown()
		return nil
	})

	return g.Wait()
}

// GracefulStop はサーバーを安全に停止します。
func (s *Server) GracefulStop() {
	s.shutdown()
}

func (s *Server) shutdown() {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Warn("HTTP gateway shutdown", "err", err)
		}
	}
	s.grpcServer.GracefulStop()
}

// UnaryInterceptor はロガーをコンテキストへ載せ、呼び出し結果をログとメトリクスに記録します。
func UnaryInterceptor(logger *log.Logger, m *metrics.Metrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, next grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := next(logging.WithLogger(ctx, logger), req)
		elapsed := time.Since(start)

		code := status.Code(err)
		if code == codes.Unknown {
			code = handler.StatusCode(err)
		}
		m.ObserveRequest("grpc", info.FullMethod, code.String(), elapsed)

		fields := []any{"method", info.FullMethod, "code", code.String(), "duration", elapsed}
		switch {
		case err == nil:
			logger.Debug("grpc request", fields...)
		case code == codes.Internal || code == codes.Unknown:
			logger.Error("grpc request", append(fields, "err", err)...)
		default:
			logger.Info("grpc request", append(fields, "err", err)...)
		}
		return resp, err
	}
}
