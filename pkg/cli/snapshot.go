package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/agent-runner/pkg/config"
	"github.com/devicelab-dev/agent-runner/pkg/core"
	"github.com/devicelab-dev/agent-runner/pkg/device"
	"github.com/devicelab-dev/agent-runner/pkg/driver/appium"
	"github.com/devicelab-dev/agent-runner/pkg/driver/mock"
	"github.com/devicelab-dev/agent-runner/pkg/executor"
)

var snapshotCommand = &cli.Command{
	Name:  "snapshot",
	Usage: "Capture and print the current UI snapshot",
	Description: `Open a session, extract one UI snapshot, and print the element tree.

Examples:
  agent-runner snapshot --app-package com.android.deskclock --app-activity .DeskClock
  agent-runner --mock snapshot
  agent-runner snapshot --raw
  agent-runner snapshot --screenshot screen.png`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to agent.yaml workspace config",
		},
		&cli.StringFlag{
			Name:  "app-package",
			Usage: "App package to open the session against",
		},
		&cli.StringFlag{
			Name:  "app-activity",
			Usage: "Activity launched at session start",
		},
		&cli.BoolFlag{
			Name:  "raw",
			Usage: "Print the raw backend hierarchy instead of the element tree",
		},
		&cli.StringFlag{
			Name:  "screenshot",
			Usage: "Also save a screenshot PNG to the given path",
		},
	},
	Action: runSnapshot,
}

func runSnapshot(c *cli.Context) error {
	session, err := openSnapshotSession(c)
	if err != nil {
		return err
	}
	defer session.Close()

	snap, err := session.Query()
	if err != nil {
		return fmt.Errorf("failed to extract snapshot: %w", err)
	}

	if path := c.String("screenshot"); path != "" {
		data, err := session.Screenshot()
		if err != nil {
			return fmt.Errorf("failed to capture screenshot: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("failed to save screenshot: %w", err)
		}
		fmt.Printf("Screenshot saved to %s\n", path)
	}

	if c.Bool("raw") {
		fmt.Println(snap.Source)
		return nil
	}

	printSnapshot(snap)
	return nil
}

func openSnapshotSession(c *cli.Context) (executor.Session, error) {
	if globalBool(c, "mock") {
		return mock.NewSession(), nil
	}

	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if url := globalString(c, "server"); url != "" {
		cfg.ServerURL = url
	}
	if serial := globalString(c, "device"); serial != "" {
		cfg.Device = serial
	}
	if pkg := c.String("app-package"); pkg != "" {
		cfg.App.Package = pkg
	}
	if act := c.String("app-activity"); act != "" {
		cfg.App.Activity = act
	}

	serial := cfg.Device
	if serial == "" {
		dev, err := device.New("")
		if err != nil {
			return nil, fmt.Errorf("no device found: %w (connect a device or pass --device)", err)
		}
		serial = dev.Serial()
	}

	caps := appium.DefaultCapabilities()
	caps.DeviceName = serial
	caps.AppPackage = cfg.App.Package
	caps.AppActivity = cfg.App.Activity

	client := appium.NewClient(cfg.ServerURL)
	client.SetMinVersion(cfg.Appium.MinVersion)
	if err := client.Open(&caps); err != nil {
		return nil, err
	}
	return client, nil
}

func printSnapshot(snap *core.Snapshot) {
	if snap.Activity != "" {
		fmt.Printf("Activity: %s\n", snap.Activity)
	}
	fmt.Printf("Elements: %d\n\n", snap.Len())

	for _, el := range snap.Elements {
		indent := strings.Repeat("  ", el.Depth)
		var flags []string
		if el.Clickable {
			flags = append(flags, "clickable")
		}
		if el.Selected {
			flags = append(flags, "selected")
		}
		if el.Focused {
			flags = append(flags, "focused")
		}
		if !el.Enabled {
			flags = append(flags, "disabled")
		}

		line := fmt.Sprintf("%s%s %s", indent, shortRole(el.Role), el.Describe())
		if len(flags) > 0 {
			line += fmt.Sprintf(" [%s]", strings.Join(flags, ","))
		}
		fmt.Println(line)
	}
}

// shortRole trims the package prefix off a widget class name.
func shortRole(role string) string {
	if i := strings.LastIndex(role, "."); i >= 0 {
		return role[i+1:]
	}
	return role
}
