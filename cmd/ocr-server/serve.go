package main

import (
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ironsheep/ocr-server/internal/config"
	"github.com/ironsheep/ocr-server/internal/ocr"
	"github.com/ironsheep/ocr-server/internal/server"
)

var (
	serveHost string
	servePort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the OCR server",
	Long: `Start the OCR HTTP server.

The default-language engine is initialized before the server starts
listening. If it fails the server still starts: GET / reports
ocr_initialized=false and /ocr answers 503. The Chinese engine is
created on the first /ocr-chinese request.

When the config file changes on disk the log level is reloaded. Other
settings take effect on restart.

Examples:
  ocr-server serve                    # Start on 127.0.0.1:8000
  ocr-server serve --port 9000        # Start on a custom port
  ocr-server serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		cm, err := config.NewManager(cfgFile)
		if err != nil {
			return err
		}
		cfg := *cm.Get()
		if cmd.Flags().Changed("host") {
			cfg.Server.Host = serveHost
		}
		if cmd.Flags().Changed("port") {
			cfg.Server.Port = servePort
		}

		// Set up logger
		level := new(slog.LevelVar)
		lvl, err := cfg.Log.SlogLevel()
		if err != nil {
			return err
		}
		level.Set(lvl)
		logger := newLogger(os.Stdout, cfg.Log.Format, level)
		slog.SetDefault(logger)

		if path := cm.ConfigFile(); path != "" {
			logger.Info("loaded config", "file", path)
		}
		cm.OnChange(func(c *config.Config) {
			l, err := c.Log.SlogLevel()
			if err != nil {
				return
			}
			level.Set(l)
			logger.Info("config reloaded", "file", cm.ConfigFile(), "log_level", l.String())
		})
		cm.WatchConfig(func(err error) {
			logger.Warn("config reload rejected", "error", err)
		})

		svc := ocr.NewService(ctx, ocr.ServiceConfig{
			Default:           cfg.Engines.Default.Profile(),
			Alternate:         cfg.Engines.Alternate.Profile(),
			Params:            cfg.Inference.Params(),
			InitRetryInterval: cfg.Engines.InitRetryInterval,
			Logger:            logger,
		})

		srv, err := server.New(server.Config{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			Service:         svc,
			Preprocessor:    cfg.Preprocess.Preprocessor(),
			MaxUploadBytes:  cfg.Server.MaxUploadBytes(),
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Logger:          logger,
		})
		if err != nil {
			_ = svc.Close()
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

// newLogger builds the process logger. format is "json" or "text".
func newLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to (overrides server.host)")
	serveCmd.Flags().IntVar(&servePort, "port", 8000, "Port to listen on (overrides server.port)")

	rootCmd.AddCommand(serveCmd)
}
