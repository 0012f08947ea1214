package commands

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/art-injener/orbitviz-go/internal/catalog"
	"github.com/art-injener/orbitviz-go/internal/handlers"
	"github.com/art-injener/orbitviz-go/internal/observability"
)

// Период обновления гейджей размера каталога.
const catalogGaugeInterval = time.Minute

// serve: HTTP сервер с JSON API, каталогом Celestrak и метриками.
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the OrbitViz HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			collector, err := observability.NewCollector(nil)
			if err != nil {
				return errors.Wrap(err, "creating metrics collector")
			}

			store := catalog.NewStore(&cfg.Catalog,
				catalog.WithLogger(logger),
			)
			if err := store.Start(ctx); err != nil {
				return errors.Wrap(err, "starting catalog store")
			}
			defer store.Stop()

			go updateCatalogGauges(ctx, store, collector)

			api := handlers.NewAPIHandler(store,
				handlers.WithLogger(logger),
				handlers.WithMetrics(collector),
				handlers.WithPropagatorConfig(cfg.OrbitConfig()),
			)

			mux := http.NewServeMux()
			api.Routes(mux)

			server := &http.Server{
				Addr:         cfg.Server.Addr,
				Handler:      mux,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("starting HTTP server", "addr", cfg.Server.Addr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
			}()

			select {
			case err := <-errCh:
				return errors.Wrap(err, "HTTP server failed")
			case <-ctx.Done():
			}

			logger.Info("shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				return errors.Wrap(err, "shutting down HTTP server")
			}

			logger.Info("server stopped")
			return nil
		},
	}
}

// updateCatalogGauges периодически обновляет гейджи размера каталога.
func updateCatalogGauges(ctx context.Context, store *catalog.Store, collector *observability.Collector) {
	collector.SetCatalogCounts(store.Count(), store.StaleCount())

	ticker := time.NewTicker(catalogGaugeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			collector.SetCatalogCounts(store.Count(), store.StaleCount())
		}
	}
}
