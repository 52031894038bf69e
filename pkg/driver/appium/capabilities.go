package appium

import (
	"fmt"
	"strings"

	"github.com/devicelab-dev/agent-runner/pkg/core"
)

// CapabilitySet declares the device, app, and automation engine a session
// should be opened against. It is validated before any network traffic.
type CapabilitySet struct {
	PlatformName   string `yaml:"platformName"`
	AutomationName string `yaml:"automationName"`
	DeviceName     string `yaml:"deviceName"`
	AppPackage     string `yaml:"appPackage"`
	AppActivity    string `yaml:"appActivity"`

	NoReset   *bool  `yaml:"noReset,omitempty"`
	FullReset *bool  `yaml:"fullReset,omitempty"`
	Language  string `yaml:"language,omitempty"`
	Locale    string `yaml:"locale,omitempty"`

	// WaitForIdleTimeoutMs is embedded as an appium:settings entry so the
	// server applies it during session creation, saving one HTTP call.
	WaitForIdleTimeoutMs int `yaml:"waitForIdleTimeoutMs,omitempty"`

	// Extra holds additional backend capabilities. Keys are sent with the
	// "appium:" prefix unless they already carry one.
	Extra map[string]interface{} `yaml:"extra,omitempty"`
}

// DefaultCapabilities returns a capability set preset for Android with
// the UiAutomator2 engine. Device and app fields still need to be filled.
func DefaultCapabilities() CapabilitySet {
	return CapabilitySet{
		PlatformName:   "Android",
		AutomationName: "UiAutomator2",
	}
}

// Validate checks the capability set declaratively and reports every
// violation, not just the first.
func (cs *CapabilitySet) Validate() error {
	var violations []string

	if cs.PlatformName == "" {
		violations = append(violations, "platformName is required")
	}
	if cs.AutomationName == "" {
		violations = append(violations, "automationName is required")
	}
	if cs.DeviceName == "" {
		violations = append(violations, "deviceName is required")
	}
	if cs.AppPackage == "" {
		violations = append(violations, "appPackage is required")
	}
	if cs.AppActivity == "" {
		violations = append(violations, "appActivity is required")
	}
	if cs.NoReset != nil && cs.FullReset != nil && *cs.NoReset && *cs.FullReset {
		violations = append(violations, "noReset and fullReset cannot both be true")
	}

	if len(violations) > 0 {
		return core.ErrInvalidCapabilities.
			WithMessage("invalid capability set: %s", strings.Join(violations, "; ")).
			WithDetails(map[string]interface{}{"violations": violations})
	}
	return nil
}

// w3c builds the W3C session request payload. Standard capabilities stay
// unprefixed; vendor capabilities get the "appium:" prefix.
func (cs *CapabilitySet) w3c() map[string]interface{} {
	caps := map[string]interface{}{
		"platformName":          cs.PlatformName,
		"appium:automationName": cs.AutomationName,
		"appium:deviceName":     cs.DeviceName,
		"appium:appPackage":     cs.AppPackage,
		"appium:appActivity":    cs.AppActivity,
	}

	if cs.NoReset != nil {
		caps["appium:noReset"] = *cs.NoReset
	}
	if cs.FullReset != nil {
		caps["appium:fullReset"] = *cs.FullReset
	}
	if cs.Language != "" {
		caps["appium:language"] = cs.Language
	}
	if cs.Locale != "" {
		caps["appium:locale"] = cs.Locale
	}
	if cs.WaitForIdleTimeoutMs > 0 {
		caps["appium:settings"] = map[string]interface{}{
			"waitForIdleTimeout": cs.WaitForIdleTimeoutMs,
		}
	}

	for k, v := range cs.Extra {
		if !strings.Contains(k, ":") && k != "platformName" {
			k = "appium:" + k
		}
		caps[k] = v
	}

	return map[string]interface{}{
		"capabilities": map[string]interface{}{
			"alwaysMatch": caps,
		},
	}
}

// Describe returns a one-line summary for logs.
func (cs *CapabilitySet) Describe() string {
	return fmt.Sprintf("%s/%s device=%s app=%s", cs.PlatformName, cs.AutomationName, cs.DeviceName, cs.AppPackage)
}
