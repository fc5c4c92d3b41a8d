package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"invoiceledger/internal/api"
	"invoiceledger/internal/config"
	"invoiceledger/internal/fhe"
	"invoiceledger/internal/ledger"
	"invoiceledger/internal/logger"
	"invoiceledger/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the invoice ledger daemon",
	Long: `Run the invoice ledger daemon: the authoritative invoice store, the
HTTP API, the event stream, and the confidential-amount co-processor
integration.

The daemon rehydrates its in-memory ledger from the SQLite database at
startup and writes every committed mutation back through before
acknowledging it.

Configuration is read from the environment (and .env):
  LEDGER_LISTEN_ADDR    - HTTP listen address (default :8546)
  LEDGER_DATABASE_PATH  - SQLite database file (default invoices.db)
  LEDGER_CHAIN_ID       - network identity writes must match
  LEDGER_CONTRACT_ID    - ledger identity for co-processor bindings
  COPROCESSOR_MODE      - "local" or "relayer"
  COPROCESSOR_KEY_FILE  - age identity file for local mode
  RELAYER_URL           - relayer endpoint for relayer mode`,
	Example: `  # Run with defaults (local co-processor, invoices.db)
  invoiceledger serve

  # Run against a hosted relayer
  COPROCESSOR_MODE=relayer RELAYER_URL=https://relayer.example.net invoiceledger serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	invoiceStore, err := store.Open(store.Config{Path: cfg.DatabasePath})
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := invoiceStore.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Closing invoice store failed")
		}
	}()

	coproc, err := buildCoprocessor(cfg, log)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	ledg, err := ledger.New(ctx, ledger.Config{
		Contract:    cfg.ContractID,
		Store:       invoiceStore,
		Coprocessor: coproc,
	})
	if err != nil {
		return err
	}

	apiServer := api.NewServer(ledg, cfg.ChainID, coproc, cfg.ContractID)

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", cfg.ListenAddr).
			Uint64("chain_id", cfg.ChainID).
			Str("coprocessor", cfg.CoprocessorMode).
			Msg("Ledger daemon listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("serving: %w", err)
	case sig := <-stop:
		log.Info().Str("signal", sig.String()).Msg("Shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info().Msg("Ledger daemon stopped")
	return nil
}

// buildCoprocessor constructs the configured co-processor. Local mode
// persists its age identity in COPROCESSOR_KEY_FILE so handles stay
// decryptable across restarts; without a key file the identity is
// ephemeral.
func buildCoprocessor(cfg *config.Config, log zerolog.Logger) (fhe.Coprocessor, error) {
	switch cfg.CoprocessorMode {
	case "relayer":
		return fhe.NewRelayerClient(fhe.RelayerConfig{BaseURL: cfg.RelayerURL})
	case "local":
		identityKey := ""
		if cfg.CoprocessorKeyFile != "" {
			raw, err := os.ReadFile(cfg.CoprocessorKeyFile)
			switch {
			case err == nil:
				identityKey = strings.TrimSpace(string(raw))
			case os.IsNotExist(err):
				// Generated below and persisted for next time.
			default:
				return nil, fmt.Errorf("reading co-processor key file: %w", err)
			}
		}

		local, err := fhe.NewLocal(identityKey)
		if err != nil {
			return nil, err
		}

		if cfg.CoprocessorKeyFile != "" && identityKey == "" {
			if err := os.WriteFile(cfg.CoprocessorKeyFile, []byte(local.IdentityKey()+"\n"), 0o600); err != nil {
				return nil, fmt.Errorf("writing co-processor key file: %w", err)
			}
			log.Info().
				Str("file", cfg.CoprocessorKeyFile).
				Msg("Generated new co-processor identity")
		} else if identityKey == "" {
			log.Warn().Msg("Co-processor identity is ephemeral; encrypted amounts will not survive a restart")
		}
		return local, nil
	default:
		return nil, fmt.Errorf("unknown co-processor mode %q", cfg.CoprocessorMode)
	}
}
