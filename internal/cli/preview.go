package cli

import (
	"fmt"

	"github.com/esign-networks/invoice-signer/app/internal/batch"
	"github.com/esign-networks/invoice-signer/app/internal/render"
	"github.com/spf13/cobra"
)

var previewCmd = &cobra.Command{
	Use:   "preview <document-id>",
	Short: "Load a batch without signing",
	Long:  `Accept the signing link and render every invoice, then print the batch contents so it can be reviewed before signing`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		remoteClient, err := newRemoteClient()
		if err != nil {
			return err
		}

		loader := batch.NewLoader(remoteClient, render.NewFitzRenderer(), appLogger, cfg.MaxPDFBytes, cfg.MaxConcurrentRenders)

		b, err := loader.Load(cmd.Context(), args[0])
		if err != nil {
			return userFacingError(err)
		}

		fmt.Printf("batch %s: %d invoices\n", b.DocumentID, len(b.Invoices))
		for i, inv := range b.Invoices {
			status := string(inv.State())
			if inv.State() == batch.SessionStateFailed {
				status = fmt.Sprintf("%s (%s)", status, inv.FailureReason())
			}
			fmt.Printf("  %d. %s: %d pages, %s\n", i+1, inv.InvoiceID, len(inv.Pages), status)
		}

		return nil
	},
}
