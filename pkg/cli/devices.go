package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/agent-runner/pkg/device"
)

var devicesCommand = &cli.Command{
	Name:  "devices",
	Usage: "List connected Android devices",
	Description: `List devices visible to adb, with state and model.

Examples:
  agent-runner devices`,
	Action: runDevices,
}

func runDevices(c *cli.Context) error {
	devices, err := device.List()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	if len(devices) == 0 {
		fmt.Println("No devices found.")
		fmt.Println("Connect a device via USB (enable USB debugging) or start an emulator.")
		return nil
	}

	fmt.Printf("%-24s %-14s %s\n", "SERIAL", "STATE", "MODEL")
	for _, d := range devices {
		fmt.Printf("%-24s %-14s %s\n", d.Serial, d.State, d.Model)
	}
	return nil
}
