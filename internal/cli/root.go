package cli

import (
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/esign-networks/invoice-signer/app/internal/agent"
	"github.com/esign-networks/invoice-signer/app/internal/auth"
	"github.com/esign-networks/invoice-signer/app/internal/config"
	"github.com/esign-networks/invoice-signer/app/internal/logger"
	"github.com/esign-networks/invoice-signer/app/internal/remote"
	"github.com/esign-networks/invoice-signer/app/internal/version"
	"github.com/spf13/cobra"
)

var (
	cfg       *config.ClientEnvironment
	appLogger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:               "invoice-signer",
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
	Short:             "Invoice batch signing CLI",
	Long:              `invoice-signer reviews and signs batches of PDF invoices with a hardware-backed certificate accessed through the local signing agent`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.NewClientConfig()
		if err != nil {
			log.Printf("failed to load configuration: %v", err.Error())
			return err
		}

		appLogger = logger.InitLogger(logger.ParseLogLevel(cfg.LogLevel), cfg.Environment)
		return nil
	},
}

func Execute() {
	v := version.Get()
	rootCmd.Version = fmt.Sprintf("%s (built %s, commit %s)", v.Version, v.BuildDate, v.GitCommit)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(certificatesCmd)
}

// newRemoteClient builds the signing server client with the configured
// bearer token. An already-expired JWT fails fast here, before any call.
func newRemoteClient() (*remote.Client, error) {
	token, err := auth.LoadToken(cfg)
	if err != nil {
		return nil, err
	}

	if err := auth.CheckExpiry(token, time.Now()); err != nil {
		return nil, err
	}

	return remote.NewClient(
		cfg.SigningServerURL,
		token,
		appLogger,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.SigningAPITimeout}),
		remote.WithRateLimit(cfg.RateLimitRPS, cfg.RateLimitBurst),
	), nil
}

// newAgentClient builds the local signing agent client.
func newAgentClient() *agent.Client {
	return agent.NewClient(cfg.AgentURL, &http.Client{Timeout: cfg.AgentTimeout}, appLogger)
}
