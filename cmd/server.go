package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/l0n3m4n/exposerver/pkg/config"
	"github.com/l0n3m4n/exposerver/pkg/diskstat"
	"github.com/l0n3m4n/exposerver/pkg/server"
	"github.com/l0n3m4n/exposerver/pkg/telemetry"
)

const shutdownTimeout = 30 * time.Second

// serverCmd represents the serve command
var serverCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Serve a directory or a single file",
	Long: `Serve a directory (or a single file with --file) over HTTP. Directory
requests render a listing, POST /upload stores files under the upload
directory, GET /metadata?file=<path> returns file metadata and GET /logs
returns the request log.`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// Server-specific flags
	serverCmd.Flags().IntP("port", "p", 80, "Port to listen on")
	serverCmd.Flags().StringP("directory", "d", ".", "Directory to serve")
	serverCmd.Flags().StringP("file", "f", "", "Serve a single file")
	serverCmd.Flags().BoolP("single-host", "s", false, "Listen on 127.0.0.1 only")
	serverCmd.Flags().DurationP("timeout", "t", 0, "Shut down automatically after this duration (e.g. 90s, 10m)")
	serverCmd.Flags().String("auth", "", "Enable Basic authentication (username:password)")
	serverCmd.Flags().String("auth-user", "", "Basic authentication username (with --auth-password-hash)")
	serverCmd.Flags().String("auth-password-hash", "", "bcrypt hash of the Basic authentication password")
	serverCmd.Flags().String("assets-dir", "", "UI assets directory (default: ./assets next to the binary)")
	serverCmd.Flags().String("upload-dir", "upload", "Upload directory, relative to the served directory")
	serverCmd.Flags().Int64("max-upload-bytes", 1<<30, "Maximum accepted upload body size")
	serverCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. 127.0.0.1:9090)")
	serverCmd.Flags().Bool("enable-telemetry", false, "Enable OpenTelemetry tracing")
	serverCmd.Flags().String("otel-endpoint", "", "OpenTelemetry endpoint (if empty, uses auto-export)")
	serverCmd.MarkFlagsMutuallyExclusive("directory", "file")

	// Bind flags to viper
	_ = viper.BindPFlag("server.port", serverCmd.Flags().Lookup("port"))
	_ = viper.BindPFlag("server.directory", serverCmd.Flags().Lookup("directory"))
	_ = viper.BindPFlag("server.file", serverCmd.Flags().Lookup("file"))
	_ = viper.BindPFlag("server.single_host", serverCmd.Flags().Lookup("single-host"))
	_ = viper.BindPFlag("server.timeout", serverCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("server.assets_dir", serverCmd.Flags().Lookup("assets-dir"))
	_ = viper.BindPFlag("server.upload_dir", serverCmd.Flags().Lookup("upload-dir"))
	_ = viper.BindPFlag("server.max_upload_bytes", serverCmd.Flags().Lookup("max-upload-bytes"))
	_ = viper.BindPFlag("auth.credentials", serverCmd.Flags().Lookup("auth"))
	_ = viper.BindPFlag("auth.username", serverCmd.Flags().Lookup("auth-user"))
	_ = viper.BindPFlag("auth.password_hash", serverCmd.Flags().Lookup("auth-password-hash"))
	_ = viper.BindPFlag("metrics.addr", serverCmd.Flags().Lookup("metrics-addr"))
	_ = viper.BindPFlag("telemetry.enabled", serverCmd.Flags().Lookup("enable-telemetry"))
	_ = viper.BindPFlag("telemetry.endpoint", serverCmd.Flags().Lookup("otel-endpoint"))
}

func runServer(cmd *cobra.Command, args []string) error {
	logger := GetLogger()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// Initialize telemetry if enabled
	if cfg.Telemetry.Enabled {
		logger.Info("Initializing OpenTelemetry")
		cleanup, err := telemetry.Initialize(cfg.Telemetry, logger)
		if err != nil {
			logger.Warnf("Failed to initialize telemetry: %v", err)
		} else {
			defer cleanup()
		}
	}

	if err := checkPortFree(cfg.Server.Addr()); err != nil {
		return fmt.Errorf("port %d is already in use, choose a different port: %w", cfg.Server.Port, err)
	}

	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Infof("Metadata extraction via %s", srv.Extractor().Name())
	logger.Infof("Uploads are stored in %s", cfg.Server.UploadDir)
	logger.Infof("Requests are logged to %s", cfg.Log.File)
	diskstat.Report(logger, cfg.Server.UploadDir)
	announce(logger, cfg)

	// Start server in a goroutine
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Start()
	}()

	// Optional lifetime
	var lifetime <-chan time.Time
	if cfg.Server.Timeout > 0 {
		logger.Infof("Server will automatically shut down in %s", cfg.Server.Timeout)
		timer := time.NewTimer(cfg.Server.Timeout)
		defer timer.Stop()
		lifetime = timer.C
	}

	// Wait for interrupt signal
	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case sig := <-interrupt:
		logger.Infof("Received signal %v, shutting down...", sig)
	case <-lifetime:
		logger.Infof("Server shutting down after %s", cfg.Server.Timeout)
	}

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("Server shutdown error: %v", err)
		return err
	}

	logger.Info("Server stopped gracefully")
	return nil
}

// checkPortFree probes the listen address before the server takes it
func checkPortFree(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return ln.Close()
}

func announce(logger *logrus.Logger, cfg *config.Config) {
	base := fmt.Sprintf("http://%s", cfg.Server.Addr())
	if cfg.Server.SingleFile != "" {
		logger.Infof("Serving single file: %s", cfg.Server.SingleFile)
		logger.Infof("Access it at: %s/%s", base, cfg.Server.SingleFile)
		return
	}
	logger.Infof("Access it at: %s", base)
	if cfg.Auth.Enabled() {
		logger.Infof("Basic authentication enabled for user %q", cfg.Auth.Username)
	}
}
