package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jiaweitao001/ai-issue-cli/internal/agent"
	"github.com/jiaweitao001/ai-issue-cli/internal/config"
	"github.com/jiaweitao001/ai-issue-cli/internal/ui"
)

const mcpBinary = "ai-issue-mcp"

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or change settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the resolved settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return showConfig()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print one resolved setting",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v, err := cfg.Get(args[0])
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one setting to the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			// only the file layer, so env overrides are not persisted
			cfg, err := config.LoadFile(path)
			if err != nil {
				return err
			}
			if err := cfg.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			v, _ := cfg.Get(args[0])
			fmt.Printf("✅ %s = %s\n", ui.Bold(args[0]), v)

			if envVar, _ := config.EnvVar(args[0]); os.Getenv(envVar) != "" {
				fmt.Printf("⚠️  %s\n", ui.Yellow(envVar+" is set and overrides this value"))
			}
			return nil
		},
	})

	var flagForce bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a config file with default settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); err == nil && !flagForce {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			cfg := config.Defaults()
			if flagRepo != "" {
				if err := cfg.Set("repoPath", flagRepo); err != nil {
					return err
				}
			}
			manifest, wrote, err := initManifest(cfg, flagForce)
			if err != nil {
				return err
			}
			if err := cfg.Save(path); err != nil {
				return err
			}
			fmt.Printf("✅ Wrote %s\n", path)
			if wrote {
				fmt.Printf("✅ Wrote %s\n", manifest)
			} else {
				fmt.Printf("%s %s\n", ui.Dim("kept existing"), manifest)
			}
			if cfg.RepoPath == "" {
				fmt.Printf("💡 Next: ai-issue config set repoPath <path>\n")
			}
			return nil
		},
	}
	initCmd.Flags().BoolVar(&flagForce, "force", false, "Overwrite an existing config file")
	cmd.AddCommand(initCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file location",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := configPath()
			if err != nil {
				return err
			}
			fmt.Println(path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "keys",
		Short: "List settable keys and their environment variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, key := range config.Keys() {
				envVar, _ := config.EnvVar(key)
				fmt.Printf("%-18s %s\n", key, ui.Dim(envVar))
			}
			return nil
		},
	})

	return cmd
}

// initManifest points cfg.ManifestDir at ~/.ai-issue/manifests when unset and
// writes a default.json there that starts the issue fetcher MCP server.
func initManifest(cfg *config.Config, force bool) (string, bool, error) {
	if cfg.ManifestDir == "" {
		dir, err := config.HomeDir()
		if err != nil {
			return "", false, err
		}
		cfg.ManifestDir = filepath.Join(dir, "manifests")
	}
	return agent.WriteManifest(cfg.ManifestDir, agent.DefaultManifest, agent.DefaultManifestFor(mcpCommand()), force)
}

// mcpCommand finds ai-issue-mcp on PATH, then next to this binary. The bare
// name is used when neither exists yet.
func mcpCommand() string {
	if bin, err := exec.LookPath(mcpBinary); err == nil {
		return bin
	}
	if self, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(self), mcpBinary)
		if info, err := os.Stat(sibling); err == nil && !info.IsDir() {
			return sibling
		}
	}
	return mcpBinary
}

func showConfig() error {
	path, err := configPath()
	if err != nil {
		return err
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if flagJSON {
		out := make(map[string]string)
		for _, kv := range cfg.Entries() {
			out[kv[0]] = kv[1]
		}
		return outputJSON(out)
	}

	ui.Banner(os.Stdout, "⚙️  Configuration", ui.BoldCyan)
	fmt.Printf("%s %s\n\n", ui.Dim("file:"), path)
	for _, kv := range cfg.Entries() {
		v := kv[1]
		if v == "" {
			v = ui.Dim("(not set)")
		}
		note := ""
		if envVar, _ := config.EnvVar(kv[0]); os.Getenv(envVar) != "" {
			note = ui.Yellow("  (from " + envVar + ")")
		}
		fmt.Printf("  %-18s %s%s\n", kv[0], v, note)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		fmt.Println()
		for _, e := range errs {
			fmt.Printf("  ❌ %s\n", ui.Red(e.Error()))
		}
	}
	return nil
}
