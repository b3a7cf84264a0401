package cli

import (
	"encoding/json"
	"fmt"

	"toolhost/internal/config"
)

// ConfigCmd groups configuration inspection subcommands
type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" default:"1" help:"Show the effective configuration"`
	Path ConfigPathCmd `cmd:"" help:"Show which config file is in use"`
}

// ConfigShowCmd prints the effective configuration
type ConfigShowCmd struct{}

// Run executes the config show command
func (c *ConfigShowCmd) Run(globals *Globals) error {
	cfg := globals.Config
	if cfg == nil {
		cfg = config.Default()
	}

	if globals.Format == "ndjson" {
		out := map[string]interface{}{
			"level":   cfg.Level,
			"quiet":   cfg.Quiet,
			"verbose": cfg.Verbose,
			"server": map[string]interface{}{
				"listen": cfg.Server.Listen,
			},
			"store": map[string]interface{}{
				"url":     cfg.Store.URL,
				"dev":     cfg.Store.Dev,
				"timeout": cfg.Store.Timeout,
			},
			"session": map[string]interface{}{
				"heartbeat": cfg.Session.Heartbeat,
				"debounce":  cfg.Session.Debounce,
			},
			"sandbox": map[string]interface{}{
				"script_budget": cfg.Sandbox.ScriptBudget,
			},
		}
		return json.NewEncoder(globals.Stdout).Encode(out)
	}

	fmt.Fprintln(globals.Stdout, "Current Configuration:")
	fmt.Fprintf(globals.Stdout, "  level: %s\n", cfg.Level)
	fmt.Fprintf(globals.Stdout, "  quiet: %t\n", cfg.Quiet)
	fmt.Fprintf(globals.Stdout, "  verbose: %t\n", cfg.Verbose)
	fmt.Fprintln(globals.Stdout, "  Server:")
	fmt.Fprintf(globals.Stdout, "    listen: %s\n", cfg.Server.Listen)
	fmt.Fprintln(globals.Stdout, "  Store:")
	fmt.Fprintf(globals.Stdout, "    url: %s\n", cfg.Store.URL)
	fmt.Fprintf(globals.Stdout, "    dev: %t\n", cfg.Store.Dev)
	fmt.Fprintf(globals.Stdout, "    timeout: %s\n", cfg.Store.Timeout)
	fmt.Fprintln(globals.Stdout, "  Session:")
	fmt.Fprintf(globals.Stdout, "    heartbeat: %s\n", cfg.Session.Heartbeat)
	fmt.Fprintf(globals.Stdout, "    debounce: %s\n", cfg.Session.Debounce)
	fmt.Fprintln(globals.Stdout, "  Sandbox:")
	fmt.Fprintf(globals.Stdout, "    script_budget: %s\n", cfg.Sandbox.ScriptBudget)
	return nil
}

// ConfigPathCmd prints the config file path in use, if any
type ConfigPathCmd struct{}

// Run executes the config path command
func (c *ConfigPathCmd) Run(globals *Globals) error {
	path := config.ConfigFile()
	if globals.Format == "ndjson" {
		return json.NewEncoder(globals.Stdout).Encode(map[string]string{"path": path})
	}
	if path == "" {
		fmt.Fprintln(globals.Stdout, "No config file found (using defaults)")
		return nil
	}
	fmt.Fprintln(globals.Stdout, path)
	return nil
}
