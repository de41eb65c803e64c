package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.etcd.io/bbolt"

	"github.com/jmcleod/keriauth/api"
	"github.com/jmcleod/keriauth/background"
	"github.com/jmcleod/keriauth/config"
	"github.com/jmcleod/keriauth/host"
	bboltstorage "github.com/jmcleod/keriauth/storage/bbolt"
	"github.com/jmcleod/keriauth/storage/memory"
	"github.com/jmcleod/keriauth/store"
	"github.com/jmcleod/keriauth/transport/nativemsg"
)

var (
	inspectAddr string
	noBanner    bool
	extensionID string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher as a native messaging host on stdin/stdout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if inspectAddr != "" {
			cfg.InspectAddr = inspectAddr
		}
		if extensionID != "" {
			cfg.ExtensionID = extensionID
			cfg.ExtensionOrigin = ""
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		logger, err := newLogger(cfg)
		if err != nil {
			return err
		}
		if !noBanner {
			printBanner(os.Stderr)
		}

		local, err := openLocal(cfg)
		if err != nil {
			return err
		}
		defer local.Close()

		s := store.New(local, memory.NewRepository(), store.WithLogger(logger.With("component", "store")))
		bridge := nativemsg.NewBridge(os.Stdout, logger.With("component", "nativemsg"))
		dispatcher := background.New(background.Config{
			ExtensionID:     cfg.ExtensionID,
			ExtensionOrigin: cfg.ExtensionOrigin,
			PopupPath:       cfg.ActionPopupPath,
			RequestTimeout:  cfg.RequestTimeout,
			Store:           s,
			Permissions:     host.NewStaticPermissions(cfg.GrantedOrigins...),
			Transport:       bridge,
			Popup:           bridge,
			Logger:          logger,
		})

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := dispatcher.Start(ctx); err != nil {
			return err
		}
		defer dispatcher.Close()

		if cfg.InspectAddr != "" {
			server := newInspectServer(cfg.InspectAddr, dispatcher, logger)
			go func() {
				logger.Info("inspection api listening", "addr", cfg.InspectAddr)
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Error("inspection api failed", "error", err)
				}
			}()
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := server.Shutdown(shutdownCtx); err != nil {
					logger.Error("inspection api shutdown", "error", err)
				}
			}()
		}

		logger.Info("serving native messaging", "extension_id", cfg.ExtensionID, "data_dir", cfg.DataDir)
		err = bridge.Serve(ctx, os.Stdin, dispatcher)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func openLocal(cfg config.Config) (*bboltstorage.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	local, err := bboltstorage.NewRepositoryFromFile(cfg.LocalDBPath(), &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open local storage (is a dispatcher already running?): %w", err)
	}
	return local, nil
}

func newInspectServer(addr string, d api.Dispatcher, logger *slog.Logger) *http.Server {
	r := chi.NewRouter()
	// chi's default request logger writes to stdout.
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  log.New(os.Stderr, "", log.LstdFlags),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Mount("/api/v1", api.New(d, api.WithLogger(logger.With("component", "api"))).Router())

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&inspectAddr, "inspect-addr", "", "Listen address for the inspection API (overrides config)")
	serveCmd.Flags().StringVar(&extensionID, "extension-id", "", "Extension id (overrides config)")
	serveCmd.Flags().BoolVar(&noBanner, "no-banner", false, "Do not print the banner to stderr")
}
