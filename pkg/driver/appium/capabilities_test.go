package appium

import (
	"errors"
	"strings"
	"testing"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

func validCapabilities() CapabilitySet {
	caps := DefaultCapabilities()
	caps.DeviceName = "emulator-5554"
	caps.AppPackage = "com.android.deskclock"
	caps.AppActivity = ".DeskClock"
	return caps
}

func TestDefaultCapabilities(t *testing.T) {
	caps := DefaultCapabilities()

	if caps.PlatformName != "Android" {
		t.Errorf("Expected platformName 'Android', got '%s'", caps.PlatformName)
	}
	if caps.AutomationName != "UiAutomator2" {
		t.Errorf("Expected automationName 'UiAutomator2', got '%s'", caps.AutomationName)
	}
}

func TestValidate_Valid(t *testing.T) {
	caps := validCapabilities()
	if err := caps.Validate(); err != nil {
		t.Fatalf("Validate failed on valid set: %v", err)
	}
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	caps := CapabilitySet{}
	err := caps.Validate()

	if err == nil {
		t.Fatal("Expected validation error for empty capability set")
	}
	if !errors.Is(err, core.ErrInvalidCapabilities) {
		t.Errorf("Expected ErrInvalidCapabilities, got %v", err)
	}

	// Every missing field must be named, not just the first.
	msg := err.Error()
	for _, field := range []string{"platformName", "automationName", "deviceName", "appPackage", "appActivity"} {
		if !strings.Contains(msg, field) {
			t.Errorf("Violation for %s missing from error: %s", field, msg)
		}
	}

	var execErr *core.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatal("Expected *core.ExecutionError")
	}
	violations, ok := execErr.Details["violations"].([]string)
	if !ok {
		t.Fatal("Expected violations detail")
	}
	if len(violations) != 5 {
		t.Errorf("Expected 5 violations, got %d: %v", len(violations), violations)
	}
}

func TestValidate_ResetConflict(t *testing.T) {
	yes := true
	no := false

	caps := validCapabilities()
	caps.NoReset = &yes
	caps.FullReset = &yes
	err := caps.Validate()
	if err == nil {
		t.Fatal("Expected error when noReset and fullReset are both true")
	}
	if !strings.Contains(err.Error(), "noReset and fullReset") {
		t.Errorf("Unexpected error message: %v", err)
	}

	caps.FullReset = &no
	if err := caps.Validate(); err != nil {
		t.Errorf("Validate failed with noReset=true fullReset=false: %v", err)
	}
}

func TestW3CPayload(t *testing.T) {
	yes := true
	caps := validCapabilities()
	caps.NoReset = &yes
	caps.Language = "en"
	caps.WaitForIdleTimeoutMs = 5000
	caps.Extra = map[string]interface{}{
		"newCommandTimeout": 120,
		"appium:uiautomator2ServerLaunchTimeout": 60000,
	}

	payload := caps.w3c()
	capabilities, ok := payload["capabilities"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing capabilities object")
	}
	alwaysMatch, ok := capabilities["alwaysMatch"].(map[string]interface{})
	if !ok {
		t.Fatal("Missing alwaysMatch object")
	}

	if alwaysMatch["platformName"] != "Android" {
		t.Errorf("platformName should stay unprefixed, got %v", alwaysMatch["platformName"])
	}
	if alwaysMatch["appium:automationName"] != "UiAutomator2" {
		t.Errorf("automationName should be prefixed, got %v", alwaysMatch["appium:automationName"])
	}
	if alwaysMatch["appium:appPackage"] != "com.android.deskclock" {
		t.Errorf("Unexpected appPackage: %v", alwaysMatch["appium:appPackage"])
	}
	if alwaysMatch["appium:noReset"] != true {
		t.Errorf("Expected appium:noReset=true, got %v", alwaysMatch["appium:noReset"])
	}
	if alwaysMatch["appium:language"] != "en" {
		t.Errorf("Expected appium:language=en, got %v", alwaysMatch["appium:language"])
	}

	settings, ok := alwaysMatch["appium:settings"].(map[string]interface{})
	if !ok {
		t.Fatal("Expected appium:settings object")
	}
	if settings["waitForIdleTimeout"] != 5000 {
		t.Errorf("Expected waitForIdleTimeout=5000, got %v", settings["waitForIdleTimeout"])
	}

	// Extra keys get the prefix unless they already carry one.
	if alwaysMatch["appium:newCommandTimeout"] != 120 {
		t.Errorf("Expected appium:newCommandTimeout=120, got %v", alwaysMatch["appium:newCommandTimeout"])
	}
	if alwaysMatch["appium:uiautomator2ServerLaunchTimeout"] != 60000 {
		t.Errorf("Prefixed extra key was changed: %v", alwaysMatch)
	}
}

func TestW3CPayload_OmitsUnsetOptionals(t *testing.T) {
	caps := validCapabilities()
	payload := caps.w3c()
	alwaysMatch := payload["capabilities"].(map[string]interface{})["alwaysMatch"].(map[string]interface{})

	for _, key := range []string{"appium:noReset", "appium:fullReset", "appium:language", "appium:locale", "appium:settings"} {
		if _, present := alwaysMatch[key]; present {
			t.Errorf("Key %s should be omitted when unset", key)
		}
	}
}
