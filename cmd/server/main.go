package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/huangang/timelogbot/internal/config"
	"github.com/huangang/timelogbot/internal/services"
	"github.com/huangang/timelogbot/internal/utils"
	"github.com/huangang/timelogbot/pkg/logger"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

var configPath string

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error().Err(err).Msg("timelogbot failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "timelogbot",
		Short:         "Posts the daily Wrike time log report to Slack",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_PATH"), "path to config.yaml")

	root.AddCommand(newServeCmd(), newRunCmd(), newTokenCmd(), newConfigCmd())
	return root
}

// loadConfig reads and validates configuration, then initializes logging.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, queue worker and ops HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				logger.Fatalf("Failed to load config: %v", err)
			}
			if err := cfg.ValidateServer(); err != nil {
				logger.Fatalf("Invalid config: %v", err)
			}
			return serve(cfg)
		},
	}
}

func serve(cfg *config.Config) error {
	svc, err := bootstrap(cfg)
	if err != nil {
		logger.Fatalf("Failed to start: %v", err)
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	limiters := registerRoutes(r, svc)

	srv := &http.Server{
		Addr:    cfg.Server.Host + ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info().Str("signal", sig.String()).Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	for _, l := range limiters {
		l.Stop()
	}
	svc.shutdown()
	logger.Info().Msg("Server exited")
	return nil
}

func newRunCmd() *cobra.Command {
	var respectHolidays bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the report once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			reportService, err := buildReportService(cfg)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			if respectHolidays {
				today := time.Now()
				if loc, err := cfg.Location(); err == nil {
					today = today.In(loc)
				}
				if !services.NewHolidayService().IsWorkday(today, cfg.Schedule.HolidayCountry) {
					logger.Info().Str("country", cfg.Schedule.HolidayCountry).Msg("Not a workday, nothing to do")
					return nil
				}
			}

			summary, err := reportService.Run(ctx, services.TriggerCLI)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d valid, %d invalid, %d zero, %d delivered, %d failed\n",
				summary.RunID, summary.ValidCount, summary.InvalidCount, summary.ZeroCount, summary.Delivered, summary.Failed)
			return nil
		},
	}
	cmd.Flags().BoolVar(&respectHolidays, "respect-holidays", false, "skip the run on non-working days")
	return cmd
}

func newTokenCmd() *cobra.Command {
	var (
		subject    string
		expireHour int
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Print a bearer token for the ops API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.CheckJWTSecret(); err != nil {
				return err
			}
			if expireHour <= 0 {
				expireHour = cfg.JWT.ExpireHour
			}

			utils.SetJWTSecret(cfg.JWT.Secret)
			token, err := utils.GenerateToken(subject, expireHour)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "operator name embedded in the token")
	cmd.Flags().IntVar(&expireHour, "expire-hours", 0, "token lifetime in hours (default from config)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

func newConfigCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a config file with every key at its default value",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(output); err == nil {
				return fmt.Errorf("%s already exists", output)
			}
			if err := config.DefaultConfig().Save(output); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "config.yaml", "destination path")
	return cmd
}
