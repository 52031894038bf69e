// Package cli provides the command-line interface for agent-runner.
package cli

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
)

// Version is set at build time.
var Version = "dev"

// GlobalFlags are available to all commands.
var GlobalFlags = []cli.Flag{
	&cli.StringFlag{
		Name:    "server",
		Aliases: []string{"s"},
		Usage:   "Appium server URL",
		EnvVars: []string{"AGENT_SERVER_URL"},
	},
	&cli.StringFlag{
		Name:    "device",
		Aliases: []string{"serial"},
		Usage:   "Device serial to run on (default: first connected device)",
		EnvVars: []string{"AGENT_DEVICE"},
	},
	&cli.BoolFlag{
		Name:    "mock",
		Usage:   "Use the built-in mock session instead of a live device",
		EnvVars: []string{"AGENT_MOCK"},
	},
	&cli.BoolFlag{
		Name:    "verbose",
		Usage:   "Enable verbose logging",
		EnvVars: []string{"AGENT_VERBOSE"},
	},
	&cli.BoolFlag{
		Name:  "no-ansi",
		Usage: "Disable ANSI colors",
	},
}

// Execute runs the CLI.
func Execute() {
	// A .env next to the invocation feeds the flag env bindings. Missing
	// file is fine, the system environment still applies.
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "agent-runner",
		Usage:   "Policy-driven UI test agent for Android apps",
		Version: Version,
		Description: `Agent Runner opens automation sessions against an Appium server,
extracts UI snapshots, and lets a decision policy drive the app one
action at a time until the scenario reaches a terminal state.

Examples:
  agent-runner run scenario.yaml
  agent-runner run scenarios/ -e USER=test
  agent-runner --mock run scenario.yaml
  agent-runner snapshot --app-package com.android.deskclock`,
		Flags: GlobalFlags,
		Commands: []*cli.Command{
			runCommand,
			devicesCommand,
			snapshotCommand,
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Helpers to read a flag from the current or parent context. When run
// as a subcommand, global flags live in the parent context.

func globalString(c *cli.Context, name string) string {
	if c.IsSet(name) {
		return c.String(name)
	}
	if lineage := c.Lineage(); len(lineage) > 1 && lineage[1] != nil {
		return lineage[1].String(name)
	}
	return c.String(name)
}

func globalBool(c *cli.Context, name string) bool {
	if c.IsSet(name) {
		return c.Bool(name)
	}
	if lineage := c.Lineage(); len(lineage) > 1 && lineage[1] != nil {
		return lineage[1].Bool(name)
	}
	return c.Bool(name)
}
