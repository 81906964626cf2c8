package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/esign-networks/invoice-signer/app/internal/agent"
	"github.com/spf13/cobra"
)

var certificatesCmd = &cobra.Command{
	Use:   "certificates",
	Short: "List certificates on the local signing agent",
	Long:  `List the signing certificates currently available through the local signing agent`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		agentClient := newAgentClient()

		certs, err := agentClient.ListCertificates(cmd.Context())
		if err != nil {
			var agentErr *agent.AgentError
			if errors.As(err, &agentErr) && agentErr.Code() == agent.ErrCodeNotRunning {
				return fmt.Errorf("the signing agent is not running: start it and try again")
			}
			return err
		}

		if len(certs) == 0 {
			fmt.Println("no certificates found: the agent is running but no smart card or token is inserted")
			return nil
		}

		now := time.Now()
		for _, c := range certs {
			validity := "valid"
			if !c.ValidAt(now) {
				validity = "NOT valid now"
			}
			fmt.Printf("%s\n  serial: %s\n  algorithm: %s\n  subject: %s\n  issuer: %s\n  %s\n",
				c.Alias, c.SerialNumber, c.Algorithm, c.Subject, c.Issuer, validity)
		}

		return nil
	},
}
