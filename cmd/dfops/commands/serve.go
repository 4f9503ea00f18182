package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/systmms/dfops/internal/metrics"
)

// newServeMux routes storage events, health checks and metrics.
func newServeMux(h http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/", h)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())
	return mux
}

func NewServeCommand(rt *Runtime) *cobra.Command {
	var (
		addr   string
		author string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Receive storage events over HTTP",
		Long: `Serve the storage-event handler. POST / accepts GCS notifications,
Pub/Sub push envelopes and CloudEvents. GET /healthz and GET /metrics are
also exposed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			metrics.Init()

			ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
			defer stop()

			h, cleanup, err := rt.triggerHandler(ctx, author)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := &http.Server{
				Addr:              addr,
				Handler:           newServeMux(h),
				ReadHeaderTimeout: 10 * time.Second,
			}
			return serve(ctx, srv, rt)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&author, "author", "", "Author folder to react to (default: author from config)")
	return cmd
}

func serve(ctx context.Context, srv *http.Server, rt *Runtime) error {
	errc := make(chan error, 1)
	go func() {
		rt.Config.Logger.Info("Listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	rt.Config.Logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
