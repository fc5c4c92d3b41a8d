package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"invoiceledger/internal/ledger"
	"invoiceledger/internal/logger"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream ledger events",
	Long: `Subscribe to the daemon's event stream and print every invoice
notification as it commits. Delivery is best-effort: after a
reconnect, re-query the lists you care about instead of assuming the
stream was gapless.

Runs until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("watch")

	c, err := newClient(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info().Msg("Watching ledger events")

	err = c.Watch(ctx, func(event ledger.Event) {
		switch event.Type {
		case ledger.EventInvoiceCreated:
			fmt.Printf("created   #%-5d %s → %s  %q (due %d)\n",
				event.InvoiceID, event.Sender, event.Recipient, event.Description, event.DueDate)
		case ledger.EventInvoicePaid:
			fmt.Printf("paid      #%-5d by %s at %d\n",
				event.InvoiceID, event.Payer, event.PaidAt)
		case ledger.EventInvoiceCancelled:
			fmt.Printf("cancelled #%-5d by %s at %d\n",
				event.InvoiceID, event.Canceller, event.CancelledAt)
		default:
			fmt.Printf("%s #%d\n", event.Type, event.InvoiceID)
		}
	})
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
