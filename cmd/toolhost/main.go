package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"

	"toolhost/internal/cli"
	"toolhost/internal/config"
)

const quickStart = `toolhost - sandboxed embedding and usage tracking for hosted tools

Quick start:
  toolhost serve --dev                  Run the server on an in-memory store
  toolhost serve --store-url URL        Run against a REST aggregate store
  toolhost stats --store-url URL        Read today's usage aggregates

For help:
  toolhost --help                       All commands and flags
`

func main() {
	// Show quick start if no args provided
	if len(os.Args) == 1 {
		fmt.Print(quickStart)
		return
	}

	// Load configuration from files/environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		cfg = config.Default()
	}

	var c cli.CLI

	// Apply config defaults before parsing
	// These will be overridden by CLI flags if specified
	vars := kong.Vars{
		"config_format":        "text",
		"config_level":         cfg.Level,
		"config_listen":        cfg.Server.Listen,
		"config_store_url":     cfg.Store.URL,
		"config_store_timeout": cfg.Store.Timeout,
		"config_heartbeat":     cfg.Session.Heartbeat,
		"config_debounce":      cfg.Session.Debounce,
		"config_script_budget": cfg.Sandbox.ScriptBudget,
	}

	ctx := kong.Parse(&c,
		kong.Name("toolhost"),
		kong.Description("Serve database-defined tools in a sandbox and track anonymous usage"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
			Summary: true,
		}),
		vars,
	)

	// Create globals with config fallbacks
	globals := cli.NewGlobalsWithConfig(&c, cfg)
	err = ctx.Run(globals)
	if err != nil {
		os.Exit(1)
	}
}
