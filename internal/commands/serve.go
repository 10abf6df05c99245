package commands

import (
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/spf13/cobra"

	"github.com/insightdelivered/statement-import/internal/api"
)

func newServeCommand(a *app) *cobra.Command {
	var addr, staticDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if addr == "" {
				addr = a.cfg.Server.Addr
			}
			ctx := cmd.Context()

			p, err := buildPipeline(ctx, a.cfg)
			if err != nil {
				return err
			}
			defer p.Close()

			srv := fiber.New(fiber.Config{
				AppName:               "statement-import " + Version,
				BodyLimit:             a.cfg.Server.BodyLimitMB << 20,
				DisableStartupMessage: true,
			})
			h := &api.Handler{
				Importer:  p.orchestrator,
				Engine:    p.engine,
				Attempts:  p.store,
				Version:   Version,
				StaticDir: staticDir,
				Logger:    slog.Default(),
			}
			h.RegisterRoutes(srv)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Listen(addr) }()
			slog.Info("listening", "addr", addr, "ai", p.aiEnabled)

			select {
			case err := <-errCh:
				return fmt.Errorf("server stopped: %w", err)
			case <-ctx.Done():
				slog.Info("shutting down")
				if err := srv.Shutdown(); err != nil {
					return err
				}
				<-errCh
				return nil
			}
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")
	cmd.Flags().StringVar(&staticDir, "static", "", "directory of web UI files to serve at /")
	return cmd
}
