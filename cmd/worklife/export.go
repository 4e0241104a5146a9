package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/worklifeapp/worklife/internal/sheetsync"
)

func newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the spreadsheet projection of local state to a file or stdout",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return runExport(cfg, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "-", "output path, - for stdout")
	return cmd
}

func runExport(cfg config, output string) error {
	logger := newLogger()

	store, _, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	payload := sheetsync.BuildExport(store.Snapshot())
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	data = append(data, '\n')

	if output == "" || output == "-" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(output, data, 0o644); err != nil {
		return fmt.Errorf("write export: %w", err)
	}
	return nil
}
