package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/esign-networks/invoice-signer/app/internal/config"
	"github.com/esign-networks/invoice-signer/app/internal/logger"
	"github.com/esign-networks/invoice-signer/app/internal/stub"
	"github.com/esign-networks/invoice-signer/app/internal/version"
	"github.com/spf13/cobra"
)

//	@title			signing-stub
//	@description	signing-stub is a development stand-in for the remote signing server and the local signing agent.
//	@description
//	@description	It issues deterministic signing sessions and fake signatures so the invoice-signer
//	@description	client can be exercised end-to-end without a signing server or a hardware token.
//	@description
//	@description	The prepare endpoint intentionally returns a decoy signingSessionId: clients that
//	@description	thread it into complete (instead of the accept-time token) fail loudly, which is the
//	@description	single most common integration mistake against the real server.
//	@license.name	MIT

//	@servers.url			http://localhost:8080
//	@servers.description	Development server

//	@accept		json
//	@produce	json

//	@tag.name			Signing
//	@tag.description	Remote signing server endpoints (accept, prepare, complete, invoice PDF)

//	@tag.name			Agent
//	@tag.description	Local signing agent endpoints (certificate listing, digest signing)

func main() {
	cmd := &cobra.Command{
		Use:   "signing-stub",
		Short: "Development stub for the signing server and local agent",
		Long:  `signing-stub serves deterministic fake signing sessions for developing and testing the invoice-signer client`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run()
		},
	}

	v := version.Get()
	cmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.NewStubConfig()
	if err != nil {
		log.Printf("failed to load configuration: %v", err.Error())
		os.Exit(1)
	}

	appLogger := logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)

	appLogger.Info("Configuration loaded",
		slog.String("ENVIRONMENT", cfg.Environment),
		slog.String("HOST", cfg.Host),
		slog.Int("PORT", cfg.Port),
		slog.String("LOG_LEVEL", cfg.LogLevel),
		slog.Int("STUB_INVOICE_COUNT", cfg.StubInvoiceCount),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := stub.NewServer(cfg, appLogger)

	if err := server.Start(ctx); err != nil {
		appLogger.Error("Server error", slog.String("error", err.Error()))
		return err
	}

	appLogger.Info("server shutdown complete")
	return nil
}
