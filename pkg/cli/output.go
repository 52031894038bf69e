package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/devicelab-dev/agent-runner/pkg/core"
	"github.com/devicelab-dev/agent-runner/pkg/executor"
)

// ANSI color codes
const (
	colorReset = "\033[0m"
	colorBold  = "\033[1m"
	colorGreen = "\033[32m"
	colorRed   = "\033[31m"
	colorCyan  = "\033[36m"
	colorGray  = "\033[90m"
)

// colorsEnabled determines if ANSI colors should be used
var colorsEnabled = true

func init() {
	// Respect NO_COLOR environment variable
	if os.Getenv("NO_COLOR") != "" {
		colorsEnabled = false
		return
	}
	// Check if stdout is a terminal
	if fileInfo, err := os.Stdout.Stat(); err == nil {
		if (fileInfo.Mode() & os.ModeCharDevice) == 0 {
			colorsEnabled = false
		}
	}
}

// color returns the color code if colors are enabled, empty string otherwise
func color(c string) string {
	if colorsEnabled {
		return c
	}
	return ""
}

func printBanner() {
	fmt.Println()
	fmt.Printf("  %sagent-runner%s %s\n", color(colorBold), color(colorReset), Version)
	fmt.Println(strings.Repeat("─", 40))
}

// printSetupStep prints a setup step with spinner-style prefix
func printSetupStep(msg string) {
	fmt.Printf("  %s⏳%s %s\n", color(colorCyan), color(colorReset), msg)
}

// printSetupSuccess prints a success message for setup
func printSetupSuccess(msg string) {
	fmt.Printf("  %s✓%s %s\n", color(colorGreen), color(colorReset), msg)
}

// Live progress callbacks

func onScenarioStart(idx, total int, name, file string) {
	fmt.Printf("\n  %s[%d/%d]%s %s%s%s (%s)\n",
		color(colorCyan), idx+1, total, color(colorReset),
		color(colorBold), name, color(colorReset), file)
	fmt.Println(strings.Repeat("─", 60))
}

func onDecision(seq int, action, state, errMsg string) {
	if errMsg == "" {
		fmt.Printf("    %s✓%s %-32s %s%s%s\n",
			color(colorGreen), color(colorReset), action, color(colorGray), state, color(colorReset))
	} else {
		fmt.Printf("    %s✗%s %s\n", color(colorRed), color(colorReset), action)
		fmt.Printf("      %s╰─%s %s\n", color(colorGray), color(colorReset), errMsg)
	}
}

func onScenarioEnd(name string, status core.RunStatus, durationMs int64, errMsg string) {
	switch status {
	case core.StatusPassed:
		fmt.Printf("  %s✓ %s%s %s%s%s\n",
			color(colorGreen), color(colorReset), name, color(colorGray), formatDuration(durationMs), color(colorReset))
	case core.StatusSkipped:
		fmt.Printf("  %s- %s%s (%s)\n",
			color(colorCyan), color(colorReset), name, errMsg)
	default:
		fmt.Printf("  %s✗ %s%s %s%s%s\n",
			color(colorRed), color(colorReset), name, color(colorGray), formatDuration(durationMs), color(colorReset))
		if errMsg != "" {
			fmt.Printf("    %s╰─%s %s\n", color(colorGray), color(colorReset), errMsg)
		}
	}
}

func printSummary(result *executor.RunResult) {
	totalActions := 0
	totalWaits := 0
	for _, sr := range result.Scenarios {
		totalActions += sr.Actions
		totalWaits += sr.Waits
	}

	fmt.Println()
	if result.Passed > 0 {
		fmt.Printf("  %s%d scenario(s) passing%s (%s)\n",
			color(colorGreen), result.Passed, color(colorReset), formatDuration(result.Duration))
	}
	if result.Failed > 0 {
		fmt.Printf("  %s%d scenario(s) failing%s\n", color(colorRed), result.Failed, color(colorReset))
	}
	if result.Errored > 0 {
		fmt.Printf("  %s%d scenario(s) errored%s\n", color(colorRed), result.Errored, color(colorReset))
	}
	if result.Skipped > 0 {
		fmt.Printf("  %s%d scenario(s) skipped%s\n", color(colorCyan), result.Skipped, color(colorReset))
	}
	fmt.Println()

	tableWidth := 90
	fmt.Println(strings.Repeat("═", tableWidth))
	fmt.Printf("  %-38s %8s %8s %6s %10s  %s\n", "Scenario", "Status", "Actions", "Waits", "Duration", "Final")
	fmt.Println(strings.Repeat("─", tableWidth))

	for _, sr := range result.Scenarios {
		var status string
		var statusColor string
		switch sr.Status {
		case core.StatusPassed:
			status = "✓ PASS"
			statusColor = color(colorGreen)
		case core.StatusSkipped:
			status = "- SKIP"
			statusColor = color(colorCyan)
		case core.StatusErrored:
			status = "! ERROR"
			statusColor = color(colorRed)
		default:
			status = "✗ FAIL"
			statusColor = color(colorRed)
		}

		name := sr.Name
		if len(name) > 38 {
			name = name[:35] + "..."
		}

		fmt.Printf("  %-38s %s%8s%s %8d %6d %10s  %s\n",
			name, statusColor, status, color(colorReset),
			sr.Actions, sr.Waits, formatDuration(sr.Duration), sr.FinalState)
	}

	fmt.Println(strings.Repeat("─", tableWidth))
	statusStr := fmt.Sprintf("%d/%d", result.Passed, result.Total)
	statusColor := color(colorGreen)
	if result.Failed > 0 || result.Errored > 0 {
		statusColor = color(colorRed)
	}
	fmt.Printf("  %s%-38s%s %s%8s%s %8d %6d %10s\n",
		color(colorBold), "TOTAL", color(colorReset),
		statusColor, statusStr, color(colorReset),
		totalActions, totalWaits, formatDuration(result.Duration))
	fmt.Println(strings.Repeat("═", tableWidth))
}

// formatDuration formats milliseconds to a human-readable string.
// Shows milliseconds for values < 1s, seconds otherwise.
func formatDuration(ms int64) string {
	if ms < 1000 {
		return fmt.Sprintf("%dms", ms)
	}
	if ms < 60000 {
		return fmt.Sprintf("%.1fs", float64(ms)/1000)
	}
	mins := ms / 60000
	secs := (ms % 60000) / 1000
	return fmt.Sprintf("%dm %ds", mins, secs)
}

func parseEnvVars(envs []string) map[string]string {
	result := make(map[string]string)
	for _, e := range envs {
		parts := strings.SplitN(e, "=", 2)
		if len(parts) == 2 {
			result[parts[0]] = parts[1]
		}
	}
	return result
}
