package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"receipt-agent/internal/common/database"
	"receipt-agent/internal/employees"
)

var seedPath string

var seedEmployeesCmd = &cobra.Command{
	Use:   "seed-employees",
	Short: "Create the employee tables and upsert employees from a YAML file",
	RunE: func(cmd *cobra.Command, args []string) error {
		emps, err := employees.LoadSeed(seedPath)
		if err != nil {
			return eris.Wrap(err, "seed: load file")
		}

		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return eris.Wrap(err, "seed: connect postgres")
		}
		defer pg.Close()
		if err := pg.Ping(cmd.Context()); err != nil {
			return eris.Wrap(err, "seed: ping postgres")
		}
		if err := pg.Migrate(cmd.Context()); err != nil {
			return eris.Wrap(err, "seed: migrate")
		}

		n, err := employees.NewDirectory(pg.DB, log).Seed(cmd.Context(), emps)
		if err != nil {
			return eris.Wrapf(err, "seed: upsert (%d of %d written)", n, len(emps))
		}
		fmt.Fprintf(cmd.OutOrStdout(), "seeded %d employees\n", n)
		return nil
	},
}

func init() {
	seedEmployeesCmd.Flags().StringVar(&seedPath, "file", "configs/employees.yaml", "employee seed file")
	rootCmd.AddCommand(seedEmployeesCmd)
}
