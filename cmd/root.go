package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"invoiceledger/internal/client"
	"invoiceledger/internal/logger"
	"invoiceledger/pkg/models"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "invoiceledger",
	Short: "Invoice ledger daemon and CLI",
	Long: `invoiceledger runs and talks to a decentralized-style invoice ledger:
a serialized state machine that records invoices (sender, recipient,
description, amount, due date, status), enforces who may pay or cancel
them, and maintains per-address sent/received indices.

The "serve" subcommand runs the ledger daemon. Every other subcommand
is a client of a running daemon's HTTP API.`,
	Version: version,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("invoiceledger: run with --help to see available commands.")
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("daemon", envOr("LEDGER_DAEMON_URL", "http://localhost:8546"), "Base URL of the ledger daemon")
	rootCmd.PersistentFlags().Uint64("chain-id", 11155111, "Network identity sent with write calls")
	rootCmd.PersistentFlags().String("as", "", "Caller address for write and decrypt calls (0x...)")
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// newClient builds an API client from the persistent flags.
func newClient(cmd *cobra.Command) (*client.Client, error) {
	daemonURL, _ := cmd.Flags().GetString("daemon")
	chainID, _ := cmd.Flags().GetUint64("chain-id")
	return client.New(client.Config{BaseURL: daemonURL, ChainID: chainID})
}

// callerAddress parses the --as flag, required for writes.
func callerAddress(cmd *cobra.Command) (models.Address, error) {
	raw, _ := cmd.Flags().GetString("as")
	if raw == "" {
		return "", fmt.Errorf("--as is required: supply the caller address")
	}
	addr, err := models.ParseAddress(raw)
	if err != nil {
		return "", err
	}
	return addr, nil
}
