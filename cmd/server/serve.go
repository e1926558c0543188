package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"endorser/internal/chain"
	"endorser/internal/claims/handler"
	"endorser/internal/claims/service"
	"endorser/internal/claims/store/postgres"
	"endorser/internal/platform/httpserver"
	platformmetrics "endorser/internal/platform/metrics"
	"endorser/internal/platform/middleware"
	"endorser/internal/verifier"
	"endorser/pkg/platform/httputil"
	"endorser/pkg/platform/middleware/admin"
	"endorser/pkg/platform/middleware/requesttime"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the claim API and run the chain writer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides server.addr)")
	_ = a.v.BindPFlag("server.addr", cmd.Flags().Lookup("addr"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg, log := a.cfg, a.logger

	d, err := buildDeps(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Error("closing resources", "error", err)
		}
	}()

	keys := verifier.NewStaticKeys([]byte(cfg.Auth.JWTSecret))
	v, err := verifier.New(keys)
	if err != nil {
		return err
	}
	svc, err := service.New(d.store, v,
		service.WithLogger(log),
		service.WithMetrics(d.metrics),
		service.WithAuditPublisher(d.audit),
		service.WithNetwork(d.network),
		service.WithHandlePrefix(cfg.Claims.HandlePrefix),
		service.WithLimits(cfg.Limits()),
	)
	if err != nil {
		return err
	}
	registered, err := svc.BootstrapAdmins(ctx, cfg.Auth.AdminDIDs, time.Now().UTC())
	if err != nil {
		return err
	}
	if registered > 0 {
		log.InfoContext(ctx, "registered admin issuers", "count", registered)
	}

	runner, err := d.chainRunner(cfg, log)
	if err != nil {
		return err
	}

	router := chi.NewRouter()
	router.Use(chimw.RequestID)
	router.Use(requesttime.RequestID(func(r *http.Request) string { return chimw.GetReqID(r.Context()) }))
	router.Use(chimw.RealIP)
	router.Use(middleware.RequestLogger(log, platformmetrics.New()))
	router.Use(chimw.Recoverer)
	router.Use(requesttime.Middleware)

	h := handler.New(svc, runner, log)
	h.Register(router)
	router.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(cfg.Auth.AdminToken, log))
		h.RegisterAdmin(r)
	})
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.Health(r.Context()); err != nil {
			log.WarnContext(r.Context(), "health check failed", "error", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var wake <-chan struct{}
	if cfg.Database.URL != "" {
		wake, err = chain.Listen(ctx, cfg.Database.URL, postgres.InsertChannel, log)
		if err != nil {
			log.WarnContext(ctx, "insert notifications unavailable, chain writer polls only", "error", err)
			wake = nil
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(ctx, "starting endorser", "addr", cfg.Server.Addr)
		return httpserver.Serve(ctx, httpserver.New(cfg.Server.Addr, router), cfg.Server.ShutdownTimeout)
	})
	g.Go(func() error {
		return runner.Run(ctx, cfg.Chain.Interval, wake)
	})
	return g.Wait()
}
