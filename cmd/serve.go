package main

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"product-catalog-migrator/internal/api"
	"product-catalog-migrator/internal/exporter"
	"product-catalog-migrator/internal/importer"
	"product-catalog-migrator/internal/translation"
)

// newServeCmd creates the serve subcommand.
func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the import/export HTTP API and the gRPC health service",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()
			return serve(cmd.Context(), a)
		},
	}
}

func serve(ctx context.Context, a *app) error {
	log := logger.With().Str("component", "server").Logger()

	exp := exporter.New(a.store, a.linking, exporter.Config{
		Taxonomies:  []string{cfg.Taxonomy.Category, cfg.Taxonomy.Attribute, cfg.Taxonomy.Language},
		Translated:  []string{cfg.Taxonomy.Category, cfg.Taxonomy.Attribute},
		LanguageTax: cfg.Taxonomy.Language,
		BaseURL:     cfg.BaseURL,
	}, logger)
	httpAPIHandler := api.NewHTTPHandler(api.HandlerConfig{
		Importer:     importer.NewRunner(a.importDeps(nil)),
		Exporter:     exp,
		Products:     a.store,
		Linking:      a.linking,
		Detector:     translation.NewDetector(a.linking, a.store, cfg.Taxonomy.Language),
		MaxBodyBytes: cfg.HttpServer.MaxBodyBytes,
		Log:          log,
	})

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, log, cfg.HttpServer.TimeoutWrite)
	registerHealthCheck(httpRouter, log, a)
	httpAPIHandler.RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	errCh := make(chan error, 2)
	go func() {
		log.Info().Str("port", cfg.HttpServer.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// --- Setup & Start gRPC Server ---
	grpcServer, healthServer := setupGRPCServer(log)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		_ = httpServer.Close()
		return err
	}
	go func() {
		log.Info().Str("port", cfg.GrpcServer.Port).Msg("gRPC server listening")
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			errCh <- err
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case serveErr = <-errCh:
		log.Error().Err(serveErr).Msg("server failed")
	}
	healthServer.Shutdown()
	waitForShutdown(log, httpServer, grpcServer)
	return serveErr
}

func setupBaseMiddleware(router *chi.Mux, log zerolog.Logger, timeout time.Duration) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(requestLogger(log))
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(timeout))
	log.Debug().Msg("base HTTP middleware registered")
}

// requestLogger logs one line per request through zerolog.
func requestLogger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("duration", time.Since(start)).
				Msg("request")
		})
	}
}

func registerHealthCheck(router *chi.Mux, log zerolog.Logger, a *app) {
	healthPath := "/api/v1/healthz"
	router.Get(healthPath, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		dbStatus := "memory"
		if a.pg != nil {
			dbStatus = "healthy"
			if err := a.pg.Ping(ctx); err != nil {
				dbStatus = "unhealthy"
				log.Warn().Err(err).Msg("health check DB ping failed")
			}
		}
		_, linked := a.linking.Linker()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":      "healthy",
			"serviceName": defaultAppName,
			"timestamp":   time.Now().UTC().Format(time.RFC3339),
			"database":    dbStatus,
			"linking":     linked,
		})
	})
	log.Debug().Str("path", healthPath).Msg("HTTP health check registered")
}

func setupGRPCServer(log zerolog.Logger) (*grpc.Server, *health.Server) {
	s := grpc.NewServer()

	healthServer := health.NewServer()
	healthServer.SetServingStatus(defaultAppName, grpc_health_v1.HealthCheckResponse_SERVING)
	grpc_health_v1.RegisterHealthServer(s, healthServer)
	log.Debug().Msg("gRPC health check service registered")

	// Reflection lets grpcurl discover the health service.
	reflection.Register(s)
	return s, healthServer
}

func waitForShutdown(log zerolog.Logger, httpServer *http.Server, grpcServer *grpc.Server) {
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server graceful shutdown failed")
	} else {
		log.Info().Msg("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		log.Info().Msg("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		log.Warn().Err(shutdownCtx.Err()).Msg("gRPC graceful shutdown timed out, forcing stop")
		grpcServer.Stop()
	}
}
