package main

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"receipt-agent/internal/common/camunda"
)

var (
	processID          string
	processEmployee    string
	processContentType string
)

var startProcessCmd = &cobra.Command{
	Use:   "start-process <file>",
	Short: "Start a receipt process instance in Zeebe",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if processEmployee == "" {
			return eris.New("--employee is required")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "start-process: read receipt")
		}

		client, err := camunda.NewClient(cfg.Camunda.BrokerAddress)
		if err != nil {
			return eris.Wrap(err, "start-process: connect zeebe")
		}
		defer client.Close()

		vars := receiptVariables(uuid.NewString(), processEmployee, data, processContentType)
		key, err := client.CreateReceiptInstance(cmd.Context(), processID, vars)
		if err != nil {
			return eris.Wrap(err, "start-process: create instance")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "process instance %d started for file %s\n", key, vars["fileId"])
		return nil
	},
}

// receiptVariables builds the variables read by the process-receipt job.
func receiptVariables(fileID, employeeID string, data []byte, contentType string) map[string]interface{} {
	vars := map[string]interface{}{
		"fileId":      fileID,
		"employeeId":  employeeID,
		"receiptFile": base64.StdEncoding.EncodeToString(data),
	}
	if contentType != "" {
		vars["contentType"] = contentType
	}
	return vars
}

func init() {
	startProcessCmd.Flags().StringVar(&processID, "process", "receipt-processing", "BPMN process id")
	startProcessCmd.Flags().StringVar(&processEmployee, "employee", "", "submitting employee id")
	startProcessCmd.Flags().StringVar(&processContentType, "content-type", "", "image content type")
	rootCmd.AddCommand(startProcessCmd)
}
