package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"invoiceledger/internal/logger"
	"invoiceledger/pkg/models"
)

var createCmd = &cobra.Command{
	Use:   "create [recipient] [description]",
	Short: "Create a new invoice",
	Long: `Create a new invoice addressed to a recipient. The caller (--as)
becomes the sender and is owed payment.

The amount can be recorded as plaintext wei, or kept confidential with
--confidential: the daemon's co-processor encrypts it, the ledger
stores only the ciphertext handle, and only sender and recipient can
later request decryption.`,
	Example: `  # Plaintext invoice for 100 wei, due in 7 days
  invoiceledger create 0xB0b... "Consulting" --amount 100 --as 0xA11c...

  # Confidential invoice: the ledger never sees the amount
  invoiceledger create 0xB0b... "Consulting" --amount 100 --confidential --as 0xA11c...`,
	Args: cobra.ExactArgs(2),
	RunE: runCreate,
}

func init() {
	rootCmd.AddCommand(createCmd)

	createCmd.Flags().String("amount", "0", "Invoice amount in wei")
	createCmd.Flags().Duration("due-in", 7*24*time.Hour, "Time until the due date")
	createCmd.Flags().Int64("due-at", 0, "Absolute due date as a unix timestamp (overrides --due-in)")
	createCmd.Flags().Bool("confidential", false, "Encrypt the amount via the co-processor")
}

func runCreate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("create")

	caller, err := callerAddress(cmd)
	if err != nil {
		return err
	}
	recipient, err := models.ParseAddress(args[0])
	if err != nil {
		return err
	}
	description := args[1]

	amountStr, _ := cmd.Flags().GetString("amount")
	amount, err := decimal.NewFromString(amountStr)
	if err != nil {
		return fmt.Errorf("invalid amount %q: %w", amountStr, err)
	}

	dueAt, _ := cmd.Flags().GetInt64("due-at")
	if dueAt == 0 {
		dueIn, _ := cmd.Flags().GetDuration("due-in")
		dueAt = time.Now().Add(dueIn).Unix()
	}

	confidential, _ := cmd.Flags().GetBool("confidential")

	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	var handle, proof string
	recorded := amount
	if confidential {
		if !amount.IsInteger() || amount.Sign() <= 0 {
			return fmt.Errorf("confidential amounts must be positive integers, got %s", amount)
		}
		plain := amount.BigInt()
		if !plain.IsUint64() {
			return fmt.Errorf("confidential amount %s exceeds the encryptable range", amount)
		}
		handle, proof, err = c.EncryptAmount(ctx, caller, plain.Uint64())
		if err != nil {
			return fmt.Errorf("encrypting amount: %w", err)
		}
		// The ledger stores only the handle on the confidential path.
		recorded = decimal.Zero
	}

	id, err := c.CreateInvoice(ctx, caller, recipient, description, recorded, handle, proof, dueAt)
	if err != nil {
		return err
	}

	log.Info().
		Uint64("invoice_id", id).
		Str("recipient", recipient.String()).
		Bool("confidential", confidential).
		Msg("Invoice created")

	fmt.Printf("Created invoice #%d\n", id)
	return nil
}
