package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"invoiceledger/internal/logger"
)

var cancelCmd = &cobra.Command{
	Use:   "cancel [invoice-id]",
	Short: "Cancel a pending invoice",
	Long: `Cancel a pending invoice. Only the recorded sender can cancel, and
only while the invoice is still pending. Cancellation is terminal and
moves no funds.`,
	Args: cobra.ExactArgs(1),
	RunE: runCancel,
}

func init() {
	rootCmd.AddCommand(cancelCmd)
}

func runCancel(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("cancel")

	caller, err := callerAddress(cmd)
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid invoice ID %q", args[0])
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if err := c.CancelInvoice(ctx, caller, id); err != nil {
		return err
	}

	log.Info().Uint64("invoice_id", id).Msg("Invoice cancelled")

	fmt.Printf("Cancelled invoice #%d\n", id)
	return nil
}
