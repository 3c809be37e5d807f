package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"

	"github.com/hpungsan/screenflow/internal/config"
	"github.com/hpungsan/screenflow/internal/mcp"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"analyze": true, "history": true, "prompts": true,
	"credential": true, "serve": true, "info": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode() bool {
	if len(os.Args) < 2 {
		return false // No args → MCP server
	}
	arg := os.Args[1]
	if cliCommands[arg] {
		return true
	}
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v"
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion() bool {
	if len(os.Args) < 2 {
		return false
	}
	arg := os.Args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  screenflow

  Analyze sequences of UI screenshots as one user flow.

  Usage: screenflow <command> [options]
         screenflow --help

  MCP server mode requires piped input.`)
}

// baseDirectory returns SCREENFLOW_HOME or ~/.screenflow.
func baseDirectory() (string, error) {
	if dir := os.Getenv("SCREENFLOW_HOME"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(homeDir, ".screenflow"), nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before storage init
	if isHelpOrVersion() {
		if err := newCLIApp(nil).Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if !isCLIMode() && len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'screenflow --help' for usage.\n")
		os.Exit(1)
	}

	baseDir, err := baseDirectory()
	if err != nil {
		fatal("%v", err)
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		fatal("failed to load config: %v", err)
	}

	d, closeFn, err := openDeps(context.Background(), baseDir, cfg, newLogger(cfg.LogLevel, os.Stderr))
	if err != nil {
		fatal("%v", err)
	}
	defer closeFn()

	// CLI mode: known subcommand
	if isCLIMode() {
		if err := newCLIApp(d).Run(os.Args); err != nil {
			closeFn()
			fatal("%v", err)
		}
		return
	}

	// MCP server mode (default)
	if unknown := mcp.ValidateDisabledTools(cfg.DisabledTools); len(unknown) > 0 {
		d.log.Warn("unknown tools in disabled_tools", "names", unknown)
	}
	if unknown := mcp.ValidateDisabledTypes(cfg.DisabledTypes); len(unknown) > 0 {
		d.log.Warn("unknown types in disabled_types", "names", unknown)
	}
	if err := mcp.Run(d.mcpDeps(), Version); err != nil {
		closeFn()
		fatal("%v", err)
	}
}
