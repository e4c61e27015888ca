package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"receipt-agent/internal/common/camunda"
)

var deployCmd = &cobra.Command{
	Use:   "deploy [bpmn-file...]",
	Short: "Deploy BPMN process definitions to Zeebe",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			args = []string{"configs/bpmn/receipt-processing.bpmn"}
		}

		client, err := camunda.NewClient(cfg.Camunda.BrokerAddress)
		if err != nil {
			return eris.Wrap(err, "deploy: connect zeebe")
		}
		defer client.Close()

		for _, path := range args {
			key, err := client.DeployProcess(cmd.Context(), path)
			if err != nil {
				return eris.Wrapf(err, "deploy: %s", path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deployed %s (key %d)\n", path, key)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(deployCmd)
}
