package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var totalCmd = &cobra.Command{
	Use:   "total",
	Short: "Show the total number of invoices ever created",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient(cmd)
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		total, err := c.GetTotalInvoices(ctx)
		if err != nil {
			return err
		}
		fmt.Println(total)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(totalCmd)
}
