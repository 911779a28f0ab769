// Command weatheralertd runs the climate-risk alerting pipeline, exposing
// serve, check-config, and evaluate-once subcommands.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weatheralertd/weatheralertd/internal/app"
	"github.com/weatheralertd/weatheralertd/internal/config"
)

var (
	gardensPath    string
	profilesPath   string
)

func main() {
	root := &cobra.Command{
		Use:   "weatheralertd",
		Short: "Climate-risk monitoring and notification service",
	}
	root.PersistentFlags().StringVar(&gardensPath, "gardens-config", envOr("GARDENS_CONFIG_PATH", "./config/gardens.config.json"), "path to gardens.config.json")
	root.PersistentFlags().StringVar(&profilesPath, "profiles-config", envOr("SENSITIVITY_PROFILES_PATH", "./config/plant-sensitivity-profiles.json"), "path to plant-sensitivity-profiles.json")

	root.AddCommand(serveCmd(), checkConfigCmd(), evaluateOnceCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func loadConfig() (*config.Config, error) {
	config.LoadDotEnv()
	return config.Load(gardensPath, profilesPath)
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler and operational HTTP surface",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			a, err := app.Build(cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a.InitializeHistory(ctx)

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           a.HTTP.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}
			go func() {
				log.Printf("weatheralertd: HTTP listening on :%s", cfg.Port)
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("weatheralertd: http server error: %v", err)
				}
			}()

			a.Scheduler.Start(ctx)

			<-ctx.Done()
			log.Println("weatheralertd: shutting down")

			a.Scheduler.Stop()

			shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shCtx)
			a.History.Close(shCtx)
			log.Println("weatheralertd: shutdown complete")
			return nil
		},
	}
}

func checkConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate both config files without starting the scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			if _, err := app.Build(cfg); err != nil {
				return fmt.Errorf("config invalid: %w", err)
			}
			fmt.Printf("config valid: %d gardens, %d sensitivity profiles\n", len(cfg.Gardens), len(cfg.Profiles))
			return nil
		},
	}
}

func evaluateOnceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate-once",
		Short: "Run exactly one evaluation round over all configured gardens and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			a, err := app.Build(cfg)
			if err != nil {
				return fmt.Errorf("build app: %w", err)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			userIDs := distinctUserIDs(cfg)
			a.Cache.WarmUp(ctx, userIDs)
			a.InitializeHistory(ctx)
			a.Scheduler.RunOnce(ctx)

			snap := a.Metrics.Snapshot()
			fmt.Printf("evaluated %d gardens: alerts=%v sms_sent=%d sms_failed=%d\n",
				len(cfg.Gardens), snap.Alerts, snap.SMS.Sent, snap.SMS.Failed)
			return nil
		},
	}
}

func distinctUserIDs(cfg *config.Config) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, g := range cfg.Gardens {
		if _, ok := seen[g.UserID]; ok {
			continue
		}
		seen[g.UserID] = struct{}{}
		out = append(out, g.UserID)
	}
	return out
}
