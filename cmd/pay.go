package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"invoiceledger/internal/logger"
)

var payCmd = &cobra.Command{
	Use:   "pay [invoice-id]",
	Short: "Pay a pending invoice",
	Long: `Pay a pending invoice. Only the recorded recipient can pay.

When --value is supplied it is the attached payment transfer and must
equal the invoice's stored amount exactly: the ledger tolerates
neither overpayment nor underpayment, and forwards the value directly
to the sender with no escrow step.`,
	Example: `  # Pay invoice 1, attaching the exact amount
  invoiceledger pay 1 --value 100 --as 0xB0b...

  # Settle a confidential invoice (no on-ledger value check possible)
  invoiceledger pay 2 --as 0xB0b...`,
	Args: cobra.ExactArgs(1),
	RunE: runPay,
}

func init() {
	rootCmd.AddCommand(payCmd)

	payCmd.Flags().String("value", "0", "Attached payment value in wei (0 for none)")
}

func runPay(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("pay")

	caller, err := callerAddress(cmd)
	if err != nil {
		return err
	}
	id, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid invoice ID %q", args[0])
	}

	valueStr, _ := cmd.Flags().GetString("value")
	value, err := decimal.NewFromString(valueStr)
	if err != nil {
		return fmt.Errorf("invalid value %q: %w", valueStr, err)
	}

	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	if err := c.PayInvoice(ctx, caller, id, value); err != nil {
		return err
	}

	log.Info().
		Uint64("invoice_id", id).
		Str("value_wei", value.String()).
		Msg("Invoice paid")

	fmt.Printf("Paid invoice #%d\n", id)
	return nil
}
