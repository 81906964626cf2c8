package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/esign-networks/invoice-signer/app/internal/agent"
	"github.com/esign-networks/invoice-signer/app/internal/audit"
	"github.com/esign-networks/invoice-signer/app/internal/batch"
	"github.com/esign-networks/invoice-signer/app/internal/remote"
	"github.com/esign-networks/invoice-signer/app/internal/render"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	signAlias       string
	signAcceptTerms bool
)

var signCmd = &cobra.Command{
	Use:   "sign <document-id>",
	Short: "Sign every invoice in a batch",
	Long: `Accept the signing link, load and render each invoice, then sign the
invoices one at a time with the certificate on the local signing agent.

A single invoice's failure never aborts the batch: failures are summarized
at the end as "N/M signed" with the failed invoice labels.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSign(cmd.Context(), args[0])
	},
}

func init() {
	signCmd.Flags().StringVar(&signAlias, "alias", "", "certificate alias to sign with (defaults to the only available certificate)")
	signCmd.Flags().BoolVar(&signAcceptTerms, "accept-terms", false, "confirm that you accept the signing terms")
}

func runSign(ctx context.Context, documentID string) error {
	remoteClient, err := newRemoteClient()
	if err != nil {
		return err
	}
	agentClient := newAgentClient()

	cert, err := chooseCertificate(ctx, agentClient, signAlias)
	if err != nil {
		return err
	}

	loader := batch.NewLoader(remoteClient, render.NewFitzRenderer(), appLogger, cfg.MaxPDFBytes, cfg.MaxConcurrentRenders)

	startedAt := time.Now()

	b, err := loader.Load(ctx, documentID)
	if err != nil {
		return userFacingError(err)
	}

	orchestrator := batch.NewOrchestrator(remoteClient, agentClient, appLogger)

	outcome, err := orchestrator.SignBatch(ctx, b, cert, signAcceptTerms)
	if errors.Is(err, batch.ErrTermsNotAccepted) {
		fmt.Println("Signing requires accepting the terms: re-run with --accept-terms")
		return nil
	}
	if err != nil {
		return userFacingError(err)
	}

	fmt.Printf("%d/%d invoices signed\n", outcome.SignedCount, outcome.Total)
	for _, label := range outcome.FailedLabels {
		fmt.Printf("  failed: %s\n", label)
	}

	recordOutcome(ctx, documentID, cert, b, outcome, startedAt)

	return nil
}

// chooseCertificate resolves the signing certificate: the one matching
// alias, or the only certificate present when no alias is given.
func chooseCertificate(ctx context.Context, agentClient *agent.Client, alias string) (agent.Certificate, error) {
	certs, err := agentClient.ListCertificates(ctx)
	if err != nil {
		return agent.Certificate{}, userFacingError(err)
	}

	if len(certs) == 0 {
		return agent.Certificate{}, fmt.Errorf("no certificates available: insert your smart card or token and try again")
	}

	if alias == "" {
		if len(certs) > 1 {
			return agent.Certificate{}, fmt.Errorf("multiple certificates available: pick one with --alias")
		}
		return certs[0], nil
	}

	for _, c := range certs {
		if c.Alias == alias {
			return c, nil
		}
	}

	return agent.Certificate{}, fmt.Errorf("no certificate with alias %q on the agent", alias)
}

// recordOutcome writes the audit record when a database is configured.
// Audit failures are logged and never fail the signing flow.
func recordOutcome(ctx context.Context, documentID string, cert agent.Certificate, b *batch.SigningBatch, outcome *batch.BatchOutcome, startedAt time.Time) {
	if cfg.DatabaseURL == "" {
		return
	}

	store, err := audit.NewStore(ctx, cfg, appLogger)
	if err != nil {
		appLogger.Warn("audit store unavailable", slog.String("error", err.Error()))
		return
	}
	defer store.Close()

	run := audit.RunRecord{
		RunID:             uuid.New(),
		DocumentID:        documentID,
		CertificateSerial: cert.SerialNumber,
		Classification:    string(outcome.Classify()),
		SignedCount:       outcome.SignedCount,
		Total:             outcome.Total,
		FailedLabels:      outcome.FailedLabels,
		StartedAt:         startedAt,
		FinishedAt:        time.Now(),
	}

	invoices := make([]audit.InvoiceRecord, 0, len(b.Invoices))
	for _, inv := range b.Invoices {
		invoices = append(invoices, audit.InvoiceRecord{
			InvoiceID:     inv.InvoiceID,
			State:         string(inv.State()),
			FailureReason: inv.FailureReason(),
		})
	}

	if err := store.RecordRun(ctx, run, invoices); err != nil {
		appLogger.Warn("failed to record signing run", slog.String("error", err.Error()))
	}
}

// userFacingError converts classified client errors into actionable
// guidance; the raw error is preserved for everything else.
func userFacingError(err error) error {
	var remoteErr *remote.RemoteError
	if errors.As(err, &remoteErr) {
		switch remoteErr.Code() {
		case remote.ErrCodeSessionExpired:
			return fmt.Errorf("the signing session has expired: request a fresh signing link (%s)", remoteErr.Error())
		case remote.ErrCodeInvalidLink:
			return fmt.Errorf("the signing link is not valid: %s", remoteErr.Error())
		case remote.ErrCodeServer:
			return fmt.Errorf("the signing server reported a problem, try again later: %s", remoteErr.Error())
		}
	}

	var agentErr *agent.AgentError
	if errors.As(err, &agentErr) && agentErr.Code() == agent.ErrCodeNotRunning {
		return fmt.Errorf("the signing agent is not running: start it and try again")
	}

	return err
}
