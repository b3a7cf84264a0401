// Package cli wires the toolhost commands: the embedding server, the stats
// reader, and config inspection.
package cli

import (
	"io"
	"os"

	"toolhost/internal/config"
)

// CLI is the top-level command structure for kong
type CLI struct {
	// Global flags
	Format  string `help:"Output format: text or ndjson" enum:"text,ndjson" default:"${config_format}"`
	Level   string `help:"Log level: debug, info, warn, error" default:"${config_level}"`
	Quiet   bool   `short:"q" help:"Suppress non-essential output"`
	Verbose bool   `short:"v" help:"Enable verbose debug logging"`

	// Commands
	Serve  ServeCmd  `cmd:"" help:"Run the tool embedding server"`
	Stats  StatsCmd  `cmd:"" help:"Read usage aggregates from the store"`
	Config ConfigCmd `cmd:"" help:"Inspect configuration"`
}

// Globals holds shared state passed to all commands
type Globals struct {
	Format  string
	Level   string
	Quiet   bool
	Verbose bool
	Stdout  io.Writer
	Stderr  io.Writer
	Config  *config.Config

	logger *agentLogger
}

// NewGlobalsWithConfig creates Globals from parsed flags with config fallbacks
func NewGlobalsWithConfig(c *CLI, cfg *config.Config) *Globals {
	g := &Globals{
		Format:  c.Format,
		Level:   c.Level,
		Quiet:   c.Quiet || cfg.Quiet,
		Verbose: c.Verbose || cfg.Verbose,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
		Config:  cfg,
	}
	g.logger = newAgentLogger(g)
	return g
}

// Debug logs a verbose debug message when --verbose is set
func (g *Globals) Debug(format string, args ...interface{}) {
	if g.logger != nil {
		g.logger.Debug(format, args...)
	}
}
