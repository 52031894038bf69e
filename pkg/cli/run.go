package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/agent-runner/pkg/config"
	"github.com/devicelab-dev/agent-runner/pkg/core"
	"github.com/devicelab-dev/agent-runner/pkg/device"
	"github.com/devicelab-dev/agent-runner/pkg/driver/appium"
	"github.com/devicelab-dev/agent-runner/pkg/driver/mock"
	"github.com/devicelab-dev/agent-runner/pkg/executor"
	"github.com/devicelab-dev/agent-runner/pkg/logger"
	"github.com/devicelab-dev/agent-runner/pkg/report"
	"github.com/devicelab-dev/agent-runner/pkg/scenario"
)

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run scenario files on a device",
	ArgsUsage: "<scenario-file-or-folder>...",
	Description: `Run one or more scenario files against a device.

Each scenario opens a fresh session, then the decision policy drives
the app one action at a time until it reaches a terminal state.
Reports are written to <output>/<run-id>/.

Examples:
  agent-runner run scenario.yaml
  agent-runner run scenarios/
  agent-runner run login.yaml checkout.yaml

  # With scenario variables
  agent-runner run scenarios/ -e USER=test -e PASS=secret
  agent-runner run scenarios/ --env-file staging.env

  # Against a specific server and device
  agent-runner -s http://10.0.0.5:4723 --device emulator-5554 run scenario.yaml

  # Dry run against the built-in mock session
  agent-runner --mock run scenario.yaml`,
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "config",
			Usage: "Path to agent.yaml workspace config",
		},
		&cli.StringSliceFlag{
			Name:    "env",
			Aliases: []string{"e"},
			Usage:   "Scenario variables (KEY=VALUE)",
		},
		&cli.StringFlag{
			Name:  "env-file",
			Usage: "Load scenario variables from a dotenv file",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output directory for reports (default: ./results)",
		},
		&cli.BoolFlag{
			Name:  "stop-on-fail",
			Usage: "Skip remaining scenarios after the first failure",
		},
		&cli.StringFlag{
			Name:  "artifacts",
			Usage: "When to capture screenshots and hierarchies (failure, always, never)",
			Value: "failure",
		},
		&cli.IntFlag{
			Name:  "max-actions",
			Usage: "Action ceiling per scenario",
		},
		&cli.IntFlag{
			Name:  "wait-limit",
			Usage: "Consecutive waits allowed before a missing target fails the scenario",
		},
		&cli.StringFlag{
			Name:  "app-package",
			Usage: "App package to open sessions against",
		},
		&cli.StringFlag{
			Name:  "app-activity",
			Usage: "Activity launched at session start",
		},
	},
	Action: runScenarios,
}

// RunOptions holds the resolved flags for one run invocation.
type RunOptions struct {
	// Paths
	ScenarioPaths []string
	ConfigPath    string

	// Environment
	Env     map[string]string
	EnvFile string

	// Output
	OutputDir  string
	StopOnFail bool
	Artifacts  string

	// Session
	ServerURL   string
	Device      string
	AppPackage  string
	AppActivity string
	Mock        bool

	// Policy overrides
	MaxActions int
	WaitLimit  int

	Verbose bool
}

func runScenarios(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one scenario file or folder is required")
	}

	if globalBool(c, "no-ansi") {
		colorsEnabled = false
	}
	printBanner()

	opts := &RunOptions{
		ScenarioPaths: c.Args().Slice(),
		ConfigPath:    c.String("config"),
		Env:           parseEnvVars(c.StringSlice("env")),
		EnvFile:       c.String("env-file"),
		OutputDir:     c.String("output"),
		StopOnFail:    c.Bool("stop-on-fail"),
		Artifacts:     c.String("artifacts"),
		ServerURL:     globalString(c, "server"),
		Device:        globalString(c, "device"),
		AppPackage:    c.String("app-package"),
		AppActivity:   c.String("app-activity"),
		Mock:          globalBool(c, "mock"),
		MaxActions:    c.Int("max-actions"),
		WaitLimit:     c.Int("wait-limit"),
		Verbose:       globalBool(c, "verbose"),
	}

	return executeRun(opts)
}

func executeRun(opts *RunOptions) error {
	cfg, err := loadRunConfig(opts)
	if err != nil {
		return err
	}

	outputDir := cfg.Output.Dir
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	logPath := filepath.Join(outputDir, "agent-runner.log")
	if err := logger.Init(logPath); err != nil {
		fmt.Printf("Warning: Failed to initialize logger: %v\n", err)
	}
	defer logger.Close()
	if opts.Verbose {
		logger.SetLevel("debug")
	}

	logger.Info("=== Run started ===")
	logger.Info("Output directory: %s", outputDir)
	logger.Info("Server: %s", cfg.ServerURL)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scenarios, err := validateScenarios(opts.ScenarioPaths)
	if err != nil {
		logger.Error("Scenario validation failed: %v", err)
		return err
	}
	logger.Info("Validated %d scenario(s)", len(scenarios))

	// App identity falls back to the first scenario header that names one.
	if cfg.App.Package == "" {
		for _, sc := range scenarios {
			if sc.Header.AppPackage != "" {
				cfg.App.Package = sc.Header.AppPackage
				cfg.App.Activity = sc.Header.AppActivity
				break
			}
		}
	}

	env, err := buildRunEnv(cfg, opts)
	if err != nil {
		return err
	}

	factory, devInfo, driverName, err := buildSessionFactory(cfg, opts)
	if err != nil {
		logger.Error("Session setup failed: %v", err)
		return err
	}

	printSetupSuccess(fmt.Sprintf("Report directory: %s", outputDir))
	fmt.Printf("\n%sExecution%s\n", color(colorBold), color(colorReset))
	fmt.Println(strings.Repeat("─", 40))

	runner := executor.New(factory, executor.RunnerConfig{
		OutputDir:        outputDir,
		StopOnFail:       opts.StopOnFail,
		WaitLimit:        cfg.Policy.WaitLimit,
		RetryDelay:       time.Duration(cfg.Policy.RetryDelayMs) * time.Millisecond,
		MaxActions:       cfg.Policy.MaxActions,
		OpenRetryTimeout: time.Duration(cfg.Appium.OpenRetryTimeoutMs) * time.Millisecond,
		Artifacts:        resolveArtifacts(opts.Artifacts),
		Env:              env,
		Device:           devInfo,
		App:              report.App{Package: cfg.App.Package, Activity: cfg.App.Activity},
		RunnerVersion:    Version,
		DriverName:       driverName,
		OnScenarioStart:  onScenarioStart,
		OnDecision:       onDecision,
		OnScenarioEnd:    onScenarioEnd,
	})

	result, err := runner.Run(ctx, scenarios)
	if err != nil {
		logger.Error("Run failed: %v", err)
		return err
	}
	logger.Info("Run completed: %d passed, %d failed, %d errored, %d skipped",
		result.Passed, result.Failed, result.Errored, result.Skipped)

	printSummary(result)

	fmt.Println("  Report:")
	fmt.Printf("    JSON:   %s\n", filepath.Join(result.ReportDir, "report.json"))
	fmt.Println()

	if result.Status != core.StatusPassed {
		return cli.Exit("", 1)
	}
	return nil
}

// loadRunConfig loads the workspace config and applies CLI overrides.
func loadRunConfig(opts *RunOptions) (*config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		loaded, err := config.Load(opts.ConfigPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if opts.ServerURL != "" {
		cfg.ServerURL = opts.ServerURL
	}
	if opts.Device != "" {
		cfg.Device = opts.Device
	}
	if opts.AppPackage != "" {
		cfg.App.Package = opts.AppPackage
	}
	if opts.AppActivity != "" {
		cfg.App.Activity = opts.AppActivity
	}
	if opts.OutputDir != "" {
		cfg.Output.Dir = opts.OutputDir
	}
	if opts.MaxActions > 0 {
		cfg.Policy.MaxActions = opts.MaxActions
	}
	if opts.WaitLimit > 0 {
		cfg.Policy.WaitLimit = opts.WaitLimit
	}

	return cfg, nil
}

// buildRunEnv merges scenario variables from the config file, the dotenv
// file, and -e flags. Later sources win.
func buildRunEnv(cfg *config.Config, opts *RunOptions) (map[string]string, error) {
	env := make(map[string]string)
	for k, v := range cfg.Env {
		env[k] = v
	}
	if opts.EnvFile != "" {
		fileEnv, err := godotenv.Read(opts.EnvFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for k, v := range opts.Env {
		env[k] = v
	}
	return env, nil
}

// validateScenarios parses and validates every path. Nothing runs until
// all files are clean.
func validateScenarios(paths []string) ([]*scenario.Scenario, error) {
	v := scenario.NewValidator()
	var scenarios []*scenario.Scenario
	var allErrors []error

	for _, path := range paths {
		result := v.Validate(path)
		scenarios = append(scenarios, result.Scenarios...)
		allErrors = append(allErrors, result.Errors...)
	}

	if len(allErrors) > 0 {
		fmt.Fprintf(os.Stderr, "Validation errors:\n")
		for _, err := range allErrors {
			fmt.Fprintf(os.Stderr, "  - %v\n", err)
		}
		return nil, fmt.Errorf("validation failed with %d error(s)", len(allErrors))
	}

	if len(scenarios) == 0 {
		return nil, fmt.Errorf("no scenario files found")
	}

	fmt.Printf("\n%sSetup%s\n", color(colorBold), color(colorReset))
	fmt.Println(strings.Repeat("─", 40))
	printSetupSuccess(fmt.Sprintf("Found %d scenario(s)", len(scenarios)))

	return scenarios, nil
}

// resolveArtifacts maps the --artifacts flag to a capture config.
func resolveArtifacts(mode string) core.ArtifactConfig {
	switch mode {
	case "always":
		return core.ArtifactConfig{
			CaptureOnFailure: true,
			CaptureOnSuccess: true,
			Screenshot:       true,
			Hierarchy:        true,
		}
	case "never":
		return core.ArtifactConfig{}
	default:
		return core.DefaultArtifactConfig()
	}
}

// buildSessionFactory returns the session factory plus the device and
// driver info recorded in reports.
func buildSessionFactory(cfg *config.Config, opts *RunOptions) (executor.SessionFactory, report.Device, string, error) {
	if opts.Mock {
		printSetupSuccess("Using built-in mock session")
		factory := func() (executor.Session, error) {
			return mock.NewSession(), nil
		}
		return factory, report.Device{Serial: "mock", Platform: "android"}, "mock", nil
	}

	serial := cfg.Device
	devInfo := report.Device{Serial: serial, Platform: "android"}
	if serial == "" {
		printSetupStep("Detecting device...")
		dev, err := device.New("")
		if err != nil {
			return nil, report.Device{}, "", fmt.Errorf("no device found: %w (connect a device or pass --device)", err)
		}
		serial = dev.Serial()
		devInfo.Serial = serial
		if info, err := dev.Info(); err == nil {
			devInfo.Model = info.Model
			devInfo.OSVersion = info.OSVersion
		}
	}
	printSetupSuccess(fmt.Sprintf("Device: %s", serial))

	if cfg.App.Package == "" {
		return nil, report.Device{}, "", fmt.Errorf("no app package: set app.package in config, pass --app-package, or add appPackage to the scenario header")
	}

	caps := appium.DefaultCapabilities()
	caps.DeviceName = serial
	caps.AppPackage = cfg.App.Package
	caps.AppActivity = cfg.App.Activity
	caps.WaitForIdleTimeoutMs = cfg.Appium.WaitForIdleTimeoutMs

	serverURL := cfg.ServerURL
	minVersion := cfg.Appium.MinVersion
	factory := func() (executor.Session, error) {
		client := appium.NewClient(serverURL)
		client.SetMinVersion(minVersion)
		if err := client.Open(&caps); err != nil {
			return nil, err
		}
		return client, nil
	}
	return factory, devInfo, "appium", nil
}
