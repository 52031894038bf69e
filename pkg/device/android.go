// Package device discovers Android devices through adb. Without adb on
// PATH discovery fails and callers fall back to an explicit --device.
package device

import (
	"bytes"
	"fmt"
	"os/exec"
	"strings"
)

// Device is one Android device reachable over adb.
type Device struct {
	serial  string
	adbPath string
}

// Info contains basic device information.
type Info struct {
	Serial     string
	State      string
	Model      string
	SDK        string
	OSVersion  string
	Brand      string
	IsEmulator bool
}

// List returns all devices known to adb, including unauthorized and
// offline ones.
func List() ([]Info, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}

	cmd := exec.Command(adbPath, "devices", "-l")
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("adb devices: %w", err)
	}
	return parseDeviceList(string(out)), nil
}

// parseDeviceList parses `adb devices -l` output.
func parseDeviceList(out string) []Info {
	var devices []Info
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "List of") || strings.HasPrefix(line, "*") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		info := Info{Serial: fields[0], State: fields[1]}
		for _, field := range fields[2:] {
			if model, ok := strings.CutPrefix(field, "model:"); ok {
				info.Model = model
			}
		}
		info.IsEmulator = strings.HasPrefix(info.Serial, "emulator-")
		devices = append(devices, info)
	}
	return devices
}

// New creates a Device for the given serial. An empty serial picks the
// first device adb reports as ready.
func New(serial string) (*Device, error) {
	adbPath, err := findADB()
	if err != nil {
		return nil, err
	}

	if serial == "" {
		devices, err := List()
		if err != nil {
			return nil, err
		}
		for _, d := range devices {
			if d.State == "device" {
				serial = d.Serial
				break
			}
		}
		if serial == "" {
			return nil, fmt.Errorf("no connected devices found")
		}
	}

	d := &Device{serial: serial, adbPath: adbPath}
	if !d.isConnected() {
		return nil, fmt.Errorf("device %s is not ready", serial)
	}
	return d, nil
}

// Serial returns the device serial number.
func (d *Device) Serial() string {
	return d.serial
}

// Shell executes a shell command on the device.
func (d *Device) Shell(cmd string) (string, error) {
	return d.adb("shell", cmd)
}

// Info reads device properties. Missing properties leave their fields
// empty rather than failing the whole lookup.
func (d *Device) Info() (Info, error) {
	info := Info{Serial: d.serial, State: "device"}

	if model, err := d.Shell("getprop ro.product.model"); err == nil {
		info.Model = strings.TrimSpace(model)
	}
	if sdk, err := d.Shell("getprop ro.build.version.sdk"); err == nil {
		info.SDK = strings.TrimSpace(sdk)
	}
	if release, err := d.Shell("getprop ro.build.version.release"); err == nil {
		info.OSVersion = strings.TrimSpace(release)
	}
	if brand, err := d.Shell("getprop ro.product.brand"); err == nil {
		info.Brand = strings.TrimSpace(brand)
	}

	qemu, _ := d.Shell("getprop ro.kernel.qemu")
	info.IsEmulator = strings.TrimSpace(qemu) == "1" || strings.HasPrefix(d.serial, "emulator-")

	return info, nil
}

// adb executes an adb command against this device.
func (d *Device) adb(args ...string) (string, error) {
	cmdArgs := make([]string, 0, len(args)+2)
	if d.serial != "" {
		cmdArgs = append(cmdArgs, "-s", d.serial)
	}
	cmdArgs = append(cmdArgs, args...)

	cmd := exec.Command(d.adbPath, cmdArgs...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		errMsg := stderr.String()
		if errMsg == "" {
			errMsg = stdout.String()
		}
		return "", fmt.Errorf("adb %s: %w: %s", strings.Join(args, " "), err, errMsg)
	}

	return stdout.String(), nil
}

// isConnected checks if the device is ready.
func (d *Device) isConnected() bool {
	out, err := d.adb("get-state")
	if err != nil {
		return false
	}
	return strings.TrimSpace(out) == "device"
}

// findADB locates the adb binary.
func findADB() (string, error) {
	if path, err := exec.LookPath("adb"); err == nil {
		return path, nil
	}
	return "", fmt.Errorf("adb not found in PATH; ensure Android SDK platform-tools are installed")
}
