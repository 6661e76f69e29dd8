package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jiaweitao001/ai-issue-cli/internal/ui"
	"github.com/jiaweitao001/ai-issue-cli/internal/validator"
)

func validateCmd() *cobra.Command {
	var flagNoWarnings bool

	cmd := &cobra.Command{
		Use:   "validate [issue-id|file]",
		Short: "Check generated reports against the report template",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := reportsToValidate(args)
			if err != nil {
				return err
			}
			if len(paths) == 0 {
				fmt.Printf("%s No report files found\n", ui.Yellow("⚠️"))
				return nil
			}

			results, err := validator.ValidateFiles(cmd.Context(), paths, validator.DefaultLimit)
			if err != nil {
				return err
			}

			invalid := 0
			for _, r := range results {
				if !r.Valid() {
					invalid++
				}
			}

			if flagJSON {
				if err := outputJSON(results); err != nil {
					return err
				}
			} else {
				printValidation(results, !flagNoWarnings, invalid)
			}

			if invalid > 0 {
				return fmt.Errorf("%d of %d reports failed validation", invalid, len(results))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&flagNoWarnings, "no-warnings", false, "Hide warnings")
	return cmd
}

// reportsToValidate resolves the argument: an existing file is validated
// directly, anything else is an issue id looked up in the report directory.
func reportsToValidate(args []string) ([]string, error) {
	if len(args) == 1 {
		if info, err := os.Stat(args[0]); err == nil && !info.IsDir() {
			return []string{args[0]}, nil
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	id := ""
	if len(args) == 1 {
		ids, err := parseIDs(args)
		if err != nil {
			return nil, err
		}
		id = ids[0]
	}

	paths, err := validator.FindReports(cfg.ReportPath, id)
	if err != nil {
		return nil, fmt.Errorf("list reports in %s: %w", cfg.ReportPath, err)
	}
	if id != "" && len(paths) == 0 {
		return nil, fmt.Errorf("no report files found for issue #%s in %s", id, cfg.ReportPath)
	}
	return paths, nil
}

func printValidation(results []*validator.Result, warnings bool, invalid int) {
	ui.Banner(os.Stdout, "📋 Report Format Validation", ui.BoldCyan)
	fmt.Printf("Found %d report file(s) to validate\n\n", len(results))

	for _, r := range results {
		fmt.Printf("📄 %s\n", ui.Bold(filepath.Base(r.Path)))
		fmt.Printf("   %s\n", ui.Dim("Type: "+string(r.Kind)))
		if r.Valid() {
			fmt.Printf("   %s\n", ui.Green("Status: ✅ VALID"))
		} else {
			fmt.Printf("   %s\n", ui.Red("Status: ❌ INVALID"))
		}
		if len(r.Errors) > 0 {
			fmt.Println(ui.Red("   Errors:"))
			for _, e := range r.Errors {
				fmt.Println(ui.Red("     • " + e))
			}
		}
		if warnings && len(r.Warnings) > 0 {
			fmt.Println(ui.Yellow("   Warnings:"))
			for _, w := range r.Warnings {
				fmt.Println(ui.Yellow("     • " + w))
			}
		}
		fmt.Println()
	}

	fmt.Println(ui.Cyan(ui.Rule()))
	if invalid == 0 {
		fmt.Println(ui.BoldGreen(fmt.Sprintf("✅ All %d report(s) passed validation", len(results))))
	} else {
		fmt.Println(ui.BoldRed(fmt.Sprintf("❌ %d of %d report(s) failed validation", invalid, len(results))))
	}
}
