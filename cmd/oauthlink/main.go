package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/oauthlink/internal/app"
	"github.com/dropDatabas3/oauthlink/internal/config"
	httpserver "github.com/dropDatabas3/oauthlink/internal/http"
	"github.com/dropDatabas3/oauthlink/internal/linker"
	"github.com/dropDatabas3/oauthlink/internal/oauth"
	"github.com/dropDatabas3/oauthlink/internal/observability/logger"
	"github.com/dropDatabas3/oauthlink/internal/observability/tracing"
)

// version se setea con -ldflags "-X main.version=..."
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	configPath := os.Getenv("OAUTHLINK_CONFIG")

	root := &cobra.Command{
		Use:           "oauthlink",
		Short:         "Login coordinator OAuth2/OIDC con account linking",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env es opcional
			_ = godotenv.Load()
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", configPath, "Archivo YAML de configuración (env OAUTHLINK_CONFIG)")

	load := func() (*config.Config, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return nil, err
		}
		logger.Init(logger.Config{
			Env:         cfg.Log.Env,
			Level:       cfg.Log.Level,
			ServiceName: cfg.App.Name,
			Version:     version,
		})
		return cfg, nil
	}

	root.AddCommand(
		newServeCmd(load),
		newSchemaCmd(load),
		newLinksCmd(load),
		newUnlinkCmd(load),
		&cobra.Command{
			Use:   "version",
			Short: "Imprime la versión",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			},
		},
	)
	return root
}

type loadFunc func() (*config.Config, error)

func newServeCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servidor HTTP y el reaper de intentos vencidos",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			log := logger.L()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
				Enabled:     cfg.Tracing.Enabled,
				Endpoint:    cfg.Tracing.Endpoint,
				ServiceName: cfg.App.Name,
				SampleRatio: cfg.Tracing.SampleRatio,
			})
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := shutdownTracing(sctx); err != nil {
					log.Warn("tracing shutdown", logger.Err(err))
				}
			}()

			a, err := app.New(ctx, cfg, app.Options{Version: version})
			if err != nil {
				return err
			}
			defer func() {
				if err := a.Close(); err != nil {
					log.Warn("close", logger.Err(err))
				}
			}()

			log.Info("starting oauthlink",
				logger.String("addr", cfg.Server.Addr),
				logger.String("version", version),
				logger.String("storage", cfg.Storage.Driver),
				logger.String("pending", cfg.Pending.Driver),
			)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return httpserver.Run(gctx, httpserver.ServerConfig{
					Addr:            cfg.Server.Addr,
					ReadTimeout:     cfg.Server.ReadTimeout,
					WriteTimeout:    cfg.Server.WriteTimeout,
					ShutdownTimeout: cfg.Server.ShutdownTimeout,
				}, a.Handler)
			})
			g.Go(func() error { return a.Reaper.Run(gctx) })
			err = g.Wait()
			log.Info("stopped")
			return err
		},
	}
}

func newSchemaCmd(load loadFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Aplica el schema (idempotente) en el storage configurado",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema ok (%s)\n", cfg.Storage.Driver)
			return nil
		},
	}
}

func newLinksCmd(load loadFunc) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Lista las cuentas externas vinculadas a un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			l := linker.New(st, linker.Options{AllowUnlinkLast: cfg.Linking.AllowUnlinkLast})
			links, err := l.Links(cmd.Context(), userID)
			if err != nil {
				return err
			}
			type row struct {
				Provider    string    `json:"provider"`
				Email       string    `json:"email,omitempty"`
				DisplayName string    `json:"display_name,omitempty"`
				LinkedAt    time.Time `json:"linked_at"`
			}
			out := make([]row, 0, len(links))
			for _, lk := range links {
				out = append(out, row{Provider: lk.Provider, Email: lk.Email, DisplayName: lk.DisplayName, LinkedAt: lk.CreatedAt})
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "ID del usuario")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newUnlinkCmd(load loadFunc) *cobra.Command {
	var userID, provider string
	var force bool
	cmd := &cobra.Command{
		Use:   "unlink",
		Short: "Desvincula un provider de un usuario",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, ok := oauth.ParseProviderID(provider)
			if !ok {
				return fmt.Errorf("provider desconocido: %q", provider)
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			st, err := app.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer st.Close()

			l := linker.New(st, linker.Options{AllowUnlinkLast: cfg.Linking.AllowUnlinkLast || force})
			if err := l.Unlink(cmd.Context(), userID, p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "unlinked %s from %s\n", p, userID)
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "ID del usuario")
	cmd.Flags().StringVar(&provider, "provider", "", "google | github | oidc")
	cmd.Flags().BoolVar(&force, "force", false, "Permite quitar la última credencial")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("provider")
	return cmd
}
