package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Brownie44l1/agri-ml/internal/config"
	"github.com/Brownie44l1/agri-ml/internal/disease"
	"github.com/Brownie44l1/agri-ml/internal/handlers"
	"github.com/Brownie44l1/agri-ml/internal/logging"
	"github.com/Brownie44l1/agri-ml/internal/metrics"
	"github.com/Brownie44l1/agri-ml/internal/model"
	"github.com/Brownie44l1/agri-ml/internal/server"
	"github.com/Brownie44l1/agri-ml/internal/soil"
)

func rootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:           "agri-ml",
		Short:         "Pest detection and crop recommendation inference service",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")

	root.AddCommand(
		&cobra.Command{
			Use:   "serve",
			Short: "Load the models and serve the HTTP API",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runServe(cmd.Context(), configPath)
			},
		},
		&cobra.Command{
			Use:   "check",
			Short: "Validate config, metadata and the treatment table without serving",
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, err := config.Load(configPath)
				if err != nil {
					return err
				}
				if err := runCheck(cfg); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "configuration OK")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the service version",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintln(cmd.OutOrStdout(), handlers.Version)
			},
		},
	)
	return root
}

// runCheck reports every problem that would stop or degrade serve.
func runCheck(cfg *config.Config) error {
	errs := []error{cfg.Validate()}

	if _, err := loadTreatments(cfg); err != nil {
		errs = append(errs, err)
	}
	for name, paths := range map[string]config.ModelPaths{"pest": cfg.Models.Pest, "soil": cfg.Models.Soil} {
		if _, err := os.Stat(paths.Path); err != nil {
			errs = append(errs, fmt.Errorf("%s model: %w", name, err))
		}
		if _, err := model.LoadMetadata(paths.Metadata); err != nil {
			errs = append(errs, fmt.Errorf("%s metadata: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func loadTreatments(cfg *config.Config) (*disease.Table, error) {
	if cfg.Treatments.Path == "" {
		return disease.DefaultTable()
	}
	return disease.LoadTableFile(cfg.Treatments.Path)
}

// loadModel returns nil when the model cannot be loaded so the service can
// start degraded.
func loadModel(name string, paths config.ModelPaths, logger *zap.Logger) *model.Server {
	srv, err := model.NewServer(name, paths.Path, paths.Metadata, logger)
	if err != nil {
		logger.Error("Failed to load model, route disabled",
			zap.String("model", name), zap.Error(err))
		return nil
	}
	return srv
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	treatments, err := loadTreatments(cfg)
	if err != nil {
		return fmt.Errorf("failed to load treatments: %w", err)
	}
	logger.Info("Treatment table loaded", zap.Int("entries", treatments.Len()))

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m, err := metrics.New(registry)
	if err != nil {
		return err
	}

	opts := handlers.Options{
		Treatments: treatments,
		Engine:     soil.NewEngine(cfg.Soil.SuitabilityThreshold),
		Metrics:    m,
		Logger:     logger,

		MaxImagePixels: cfg.Server.MaxImagePixels,
	}

	if err := model.InitRuntime(cfg.Models.RuntimeLibrary); err != nil {
		logger.Error("ONNX runtime unavailable, serving without models", zap.Error(err))
	} else {
		defer func() {
			if err := model.DestroyRuntime(); err != nil {
				logger.Warn("Failed to destroy ONNX environment", zap.Error(err))
			}
		}()

		// A nil *model.Server must not become a non-nil interface.
		if pest := loadModel("pest", cfg.Models.Pest, logger); pest != nil {
			defer pest.Close()
			opts.Pest = pest
		}
		if crop := loadModel("soil", cfg.Models.Soil, logger); crop != nil {
			defer crop.Close()
			opts.Soil = crop
		}
	}

	srv := server.New(cfg, handlers.NewHandler(opts), m, logger)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return srv.Run(ctx)
}
