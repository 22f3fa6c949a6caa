package cli

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/strefethen/sonos-multiroom-go/internal/config"
	"github.com/strefethen/sonos-multiroom-go/internal/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(_ *RootOptions) *cobra.Command {
	var noDiscovery bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the zone controller HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg, server.Options{DisableDiscovery: noDiscovery})
		},
	}
	cmd.Flags().BoolVar(&noDiscovery, "no-discovery", false, "skip SSDP and use STATIC_DEVICE_IPS only")
	return cmd
}

func serve(ctx context.Context, cfg config.Config, options server.Options) error {
	addr := cfg.Host + ":" + cfg.Port

	handler, shutdownHandler, err := server.NewHandler(cfg, options)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if ctx == nil {
		ctx = context.Background()
	}
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-sigCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
		if err := shutdownHandler(shutdownCtx); err != nil {
			log.Printf("shutdown error: %v", err)
		}
	}()

	log.Printf("sonos-multiroom listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
