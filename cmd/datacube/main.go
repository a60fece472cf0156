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

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/YoungMasterGandalf/thesis-work/internal/catalog"
	"github.com/YoungMasterGandalf/thesis-work/internal/config"
	"github.com/YoungMasterGandalf/thesis-work/internal/download"
	"github.com/YoungMasterGandalf/thesis-work/internal/fitsframe"
	"github.com/YoungMasterGandalf/thesis-work/internal/jsoc"
	"github.com/YoungMasterGandalf/thesis-work/internal/logging"
	"github.com/YoungMasterGandalf/thesis-work/internal/metrics"
	"github.com/YoungMasterGandalf/thesis-work/internal/pipeline"
	"github.com/YoungMasterGandalf/thesis-work/internal/postel"
	"github.com/YoungMasterGandalf/thesis-work/internal/store"
)

var (
	configPath  string
	logLevel    string
	metricsAddr string

	cfg    *config.Config
	logger *logging.PipelineLogger
)

var rootCmd = &cobra.Command{
	Use:           "datacube",
	Short:         "Build tracked Dopplergram datacubes from the JSOC archive",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if metricsAddr != "" {
			cfg.MetricsAddr = metricsAddr
		}
		logger, err = logging.NewLogger(cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("DATACUBE_CONFIG"), "configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")

	rootCmd.AddCommand(runCmd, fetchCmd, assembleCmd, gapsCmd, checkQueriesCmd, queriesFromDatesCmd, healthCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		if logger != nil {
			logger.Error("Command failed", zap.Error(err))
			_ = logger.Sync()
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// app holds the wired pipeline of one command invocation.
type app struct {
	pipeline *pipeline.Pipeline
	archive  *jsoc.Client
	store    *store.Client
	catalog  *catalog.Client
	metrics  *http.Server
}

// newApp connects the optional backends the configuration enables and
// builds the pipeline on top of them.
func newApp(ctx context.Context) (*app, error) {
	m := metrics.NewPipelineMetrics("datacube")
	a := &app{}

	clientCfg := jsoc.DefaultClientConfig()
	clientCfg.BaseURL = cfg.JSOCURL
	archive, err := jsoc.NewClient(clientCfg, logger.Logger, m)
	if err != nil {
		return nil, err
	}
	a.archive = archive

	deps := pipeline.Deps{
		Archive:     archive,
		Transport:   download.NewHTTPTransport(archive.HTTPClient()),
		Loader:      fitsframe.NewLoader(logger.Logger),
		Reprojector: postel.New(),
		Metrics:     m,
	}

	if cfg.S3.Enabled {
		s, err := store.NewClient(cfg.S3Map(), logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		a.store = s
		deps.Publisher = s
	}

	if cfg.Catalog.Enabled {
		c, err := catalog.NewClient(cfg.CatalogMap(), logger.Logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create catalog client: %w", err)
		}
		if err := c.EnsureSchema(ctx); err != nil {
			c.Close()
			return nil, err
		}
		a.catalog = c
		deps.Catalogue = c
	}

	if cfg.MetricsAddr != "" {
		a.metrics = serveMetrics(cfg.MetricsAddr)
	}

	a.pipeline = pipeline.New(cfg, logger, deps)
	return a, nil
}

func (a *app) Close() {
	if a.catalog != nil {
		a.catalog.Close()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = a.metrics.Shutdown(ctx)
	}
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("Serving metrics", zap.String("addr", addr))
	return srv
}

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check connectivity to the archive and the enabled backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.archive.Ping(ctx); err != nil {
			return fmt.Errorf("archive health check failed: %w", err)
		}
		if a.store != nil {
			if err := a.store.Ping(ctx); err != nil {
				return fmt.Errorf("object storage health check failed: %w", err)
			}
		}
		if a.catalog != nil {
			if err := a.catalog.Ping(ctx); err != nil {
				return fmt.Errorf("catalog health check failed: %w", err)
			}
		}
		logger.Info("Health check successful")
		return nil
	},
}
