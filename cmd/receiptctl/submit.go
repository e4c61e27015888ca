package main

import (
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"receipt-agent/internal/app"
	"receipt-agent/internal/extraction"
)

var (
	submitEmployee    string
	submitContentType string
)

var submitCmd = &cobra.Command{
	Use:   "submit <file>",
	Short: "Process one receipt end to end and print the result",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if submitEmployee == "" {
			return eris.New("--employee is required")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return eris.Wrap(err, "submit: read receipt")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := app.Build(ctx, app.Options{Config: cfg, ServiceName: "receiptctl", ZapLogger: zapLog})
		if err != nil {
			return eris.Wrap(err, "submit: init pipeline")
		}
		defer a.Close(ctx)

		res, err := a.Processor.Process(ctx, extraction.Document{
			FileID:      uuid.NewString(),
			EmployeeID:  submitEmployee,
			Data:        data,
			ContentType: submitContentType,
		})
		if res != nil {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if encErr := enc.Encode(res); encErr != nil {
				return eris.Wrap(encErr, "submit: write result")
			}
		}
		if err != nil {
			return eris.Wrap(err, "submit: process receipt")
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().StringVar(&submitEmployee, "employee", "", "submitting employee id")
	submitCmd.Flags().StringVar(&submitContentType, "content-type", "", "image content type (sniffed when empty)")
	rootCmd.AddCommand(submitCmd)
}
