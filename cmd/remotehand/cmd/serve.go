package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmcleod/remotehand/actuator"
	"github.com/jmcleod/remotehand/agent"
	"github.com/jmcleod/remotehand/config"
	"github.com/jmcleod/remotehand/inbox"
	"github.com/jmcleod/remotehand/relay"
	"github.com/jmcleod/remotehand/storage"
	bboltstorage "github.com/jmcleod/remotehand/storage/bbolt"
	"github.com/jmcleod/remotehand/storage/memory"
	"github.com/jmcleod/remotehand/transport"
	"github.com/jmcleod/remotehand/webhook"
)

const storeFile = "remotehand.db"

var (
	configPath  string
	listenAddr  string
	inboxAddr   string
	dataDir     string
	ephemeral   bool
	quietBanner bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the agent",
	Long: `Runs the agent: loads the configuration, opens the configuration store,
applies a pending password-reset file, then accepts requests on the socket
listener and, when configured, on the HTTP inbox.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a TOML configuration file")
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Socket listen address (overrides config)")
	serveCmd.Flags().StringVar(&inboxAddr, "inbox-listen", "", "HTTP inbox listen address (overrides config)")
	serveCmd.Flags().StringVar(&dataDir, "data-dir", "", "Directory for persistent data (overrides config)")
	serveCmd.Flags().BoolVar(&ephemeral, "ephemeral", false, "Keep configuration in memory only")
	serveCmd.Flags().BoolVarP(&quietBanner, "quiet", "q", false, "Do not print the banner")
}

func loadServeConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return config.Config{}, err
	}
	flags := cmd.Flags()
	if flags.Changed("listen") {
		cfg.Listen = listenAddr
	}
	if flags.Changed("inbox-listen") {
		cfg.InboxListen = inboxAddr
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = dataDir
	}
	return cfg, cfg.Validate()
}

func openStore(cfg config.Config) (storage.Store, error) {
	if ephemeral {
		return memory.NewStore(), nil
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	store, err := bboltstorage.NewStoreFromFile(filepath.Join(cfg.DataDir, storeFile), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open config store: %w", err)
	}
	return store, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadServeConfig(cmd)
	if err != nil {
		return err
	}
	logger := cfg.Logger()

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	host := actuator.NewHost(cfg.Actions,
		actuator.WithShell(cfg.Host.Shell),
		actuator.WithActionTimeout(cfg.Host.ActionTimeout),
		actuator.WithDevice(actuator.DeviceInfo{Brand: cfg.Device.Brand, Model: cfg.Device.Model}),
		actuator.WithLogger(logger),
	)
	relays := relay.NewRegistry(relay.WithSendTimeout(cfg.RelayTimeout), relay.WithLogger(logger))

	opts := []agent.Option{
		agent.WithLogger(logger),
		agent.WithMasterKey(cfg.MasterKey),
		agent.WithDefaultSecret(cfg.DefaultSecret),
		agent.WithWipeCountdown(cfg.WipeCountdown),
		agent.WithRelayRegistry(relays),
		agent.WithVersion(Version, VersionCode),
	}
	if cfg.Alerts.WebhookURL != "" {
		hook := webhook.New(cfg.Alerts.WebhookURL,
			webhook.WithAuthHeader(cfg.Alerts.WebhookHeader),
			webhook.WithLogger(logger))
		defer hook.Close()
		opts = append(opts, agent.WithAlertFunc(hook.Alert))
	}
	a := agent.New(store, host, opts...)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := a.ApplyPasswordResetFile(ctx); err != nil {
		logger.Warn("password reset file not applied", "error", err)
	}

	srv := transport.NewServer(a,
		transport.WithLogger(logger),
		transport.WithReadTimeout(cfg.ReadTimeout),
		transport.WithIndent(func() bool { return a.State().Flag(agent.FlagIndent) }),
	)
	if err := srv.Listen(cfg.Listen); err != nil {
		return err
	}

	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()
	stopServer := func() error { return drainServer(srv, served) }

	inboxFailed := make(chan error, 1)

	var httpSrv *http.Server
	if cfg.InboxListen != "" {
		ln, err := net.Listen("tcp", cfg.InboxListen)
		if err != nil {
			_ = stopServer()
			return fmt.Errorf("inbox: %w", err)
		}
		httpSrv = &http.Server{
			Handler:           inbox.New(a, inbox.WithLogger(logger)).Router(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			if err := httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				inboxFailed <- fmt.Errorf("inbox failed: %w", err)
			}
		}()
	}

	if !quietBanner {
		printBanner(cmd.OutOrStdout())
	}
	logger.Info("agent started",
		slog.String("listen", srv.Addr().String()),
		slog.String("inbox", cfg.InboxListen),
		slog.Bool("ephemeral", ephemeral),
		slog.String("data_dir", cfg.DataDir),
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-served:
		stop()
		// Serve has returned; hand its result back for stopServer.
		served <- nil
	case runErr = <-inboxFailed:
		stop()
	}

	if httpSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("inbox shutdown failed", "error", err)
		}
	}
	if err := stopServer(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

// drainServer closes srv and waits for its Serve call, whose result arrives on
// served, to return. Serve only returns once every in-flight exchange is
// done, so the store and the alert hook must not be closed before this.
func drainServer(srv io.Closer, served <-chan error) error {
	_ = srv.Close()
	if err := <-served; err != nil && !errors.Is(err, transport.ErrServerClosed) {
		return err
	}
	return nil
}
