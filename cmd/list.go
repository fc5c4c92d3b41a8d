package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"invoiceledger/pkg/models"
)

var listCmd = &cobra.Command{
	Use:   "list [address]",
	Short: "List an address's sent and received invoices",
	Long: `List the invoices an address has created (sent) and the invoices
addressed to it (received), in creation order. With --full each
invoice record is fetched and summarized; otherwise only IDs print.`,
	Args: cobra.ExactArgs(1),
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().Bool("full", false, "Fetch and summarize each invoice")
}

func runList(cmd *cobra.Command, args []string) error {
	addr, err := models.ParseAddress(args[0])
	if err != nil {
		return err
	}
	full, _ := cmd.Flags().GetBool("full")

	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
	defer cancel()

	sent, err := c.GetSentInvoices(ctx, addr)
	if err != nil {
		return err
	}
	received, err := c.GetReceivedInvoices(ctx, addr)
	if err != nil {
		return err
	}

	printSection := func(title string, ids []uint64) error {
		fmt.Printf("%s (%d):\n", title, len(ids))
		for _, id := range ids {
			if !full {
				fmt.Printf("  #%d\n", id)
				continue
			}
			inv, err := c.GetInvoiceDetails(ctx, id)
			if err != nil {
				return err
			}
			amount := inv.AmountWei.String() + " wei"
			if inv.Confidential() {
				amount = "(confidential)"
			}
			fmt.Printf("  #%-5d %-9s %s  %s → %s  %q\n",
				inv.ID, inv.Status, amount, inv.Sender, inv.Recipient, inv.Description)
		}
		return nil
	}

	if err := printSection("Sent", sent); err != nil {
		return err
	}
	return printSection("Received", received)
}
