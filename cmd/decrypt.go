package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"invoiceledger/internal/client"
)

var decryptCmd = &cobra.Command{
	Use:   "decrypt [invoice-id]",
	Short: "Decrypt a confidential invoice amount",
	Long: `Request decryption of a confidential invoice's amount from the
co-processor. Only the invoice's sender and recipient are on the
access list; anyone else is refused by the co-processor itself, not
by the ledger.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecrypt,
}

func init() {
	rootCmd.AddCommand(decryptCmd)
}

func runDecrypt(cmd *cobra.Command, args []string) error {
	requester, err := callerAddress(cmd)
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

	amount, err := c.DecryptAmount(ctx, requester, id)
	if err != nil {
		if client.IsCode(err, "decrypt_refused") {
			return fmt.Errorf("decryption refused: %s is not a party to invoice %d", requester, id)
		}
		return err
	}

	fmt.Printf("Invoice #%d amount: %d wei\n", id, amount)
	return nil
}
