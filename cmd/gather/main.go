package main

import (
	"fmt"
	"os"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
              _   _
   __ _  __ _| |_| |__   ___ _ __
  / _` + "`" + ` |/ _` + "`" + ` | __| '_ \ / _ \ '__|
 | (_| | (_| | |_| | | |  __/ |
  \__, |\__,_|\__|_| |_|\___|_|
  |___/

  Every todo from every tool, in one ranked list

  Usage: gather <command> [options]
         gather --help

  MCP server mode requires piped input.`)
}

func main() {
	args := os.Args
	if len(args) < 2 {
		// No args + interactive terminal → show banner and exit
		if isTerminal() {
			printBanner()
			return
		}
		// Piped stdin with no command → MCP server
		args = append(args, "mcp")
	}

	app := newCLIApp(openEnv)
	if err := app.Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
