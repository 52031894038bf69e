// Package appium manages automation sessions against an Appium server
// using the W3C WebDriver protocol.
package appium

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver"

	"github.com/devicelab-dev/agent-runner/pkg/core"
	"github.com/devicelab-dev/agent-runner/pkg/logger"
)

// Client owns the lifecycle of one automation session: Open, Query,
// Apply, Close. After Close every Query/Apply fails fast with a
// session error; Close itself is idempotent.
type Client struct {
	serverURL  string
	httpClient *http.Client
	minVersion string

	mu        sync.Mutex
	sessionID string
	closed    bool

	platform string
	appID    string
	screenW  int
	screenH  int
}

// NewClient creates a client for the given Appium server URL.
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// SetMinVersion sets the semver constraint checked against the server
// version during Open. Empty disables the check.
func (c *Client) SetMinVersion(constraint string) {
	c.minVersion = constraint
}

// ServerStatus is the parsed /status response.
type ServerStatus struct {
	Ready   bool
	Version string
}

// Status fetches the server status without touching any session.
func (c *Client) Status() (*ServerStatus, error) {
	value, err := c.request(http.MethodGet, c.serverURL+"/status", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Ready bool `json:"ready"`
		Build struct {
			Version string `json:"version"`
		} `json:"build"`
	}
	if err := json.Unmarshal(value, &payload); err != nil {
		return nil, core.ErrServerUnreachable.WithMessage("malformed status response").WithCause(err)
	}

	return &ServerStatus{Ready: payload.Ready, Version: payload.Build.Version}, nil
}

// Open validates the capability set, preflights the server, and creates
// the session. No session traffic happens until validation passes.
func (c *Client) Open(caps *CapabilitySet) error {
	if err := caps.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return core.ErrSessionClosed.WithMessage("client was already closed")
	}
	if c.sessionID != "" {
		c.mu.Unlock()
		return fmt.Errorf("session already open: %s", c.sessionID)
	}
	c.mu.Unlock()

	status, err := c.Status()
	if err != nil {
		return err
	}
	if err := c.checkVersion(status.Version); err != nil {
		return err
	}

	logger.Info("Opening session: %s", caps.Describe())
	value, err := c.request(http.MethodPost, c.serverURL+"/session", caps.w3c())
	if err != nil {
		switch core.CategoryOf(err) {
		case core.CategoryConnection, core.CategorySession:
			return err
		default:
			return core.NewExecutionError(core.CategoryConnection, "SESSION_NOT_CREATED", "session not created").WithCause(err)
		}
	}

	var created struct {
		SessionID    string `json:"sessionId"`
		Capabilities struct {
			PlatformName string `json:"platformName"`
		} `json:"capabilities"`
	}
	if err := json.Unmarshal(value, &created); err != nil || created.SessionID == "" {
		return core.NewExecutionError(core.CategoryConnection, "SESSION_NOT_CREATED", "no session id in create response")
	}

	c.mu.Lock()
	c.sessionID = created.SessionID
	c.mu.Unlock()

	c.platform = strings.ToLower(created.Capabilities.PlatformName)
	if c.platform == "" {
		c.platform = strings.ToLower(caps.PlatformName)
	}
	c.appID = caps.AppPackage

	c.fetchScreenSize()
	logger.Info("Session opened: %s (%s, %dx%d)", created.SessionID, c.platform, c.screenW, c.screenH)
	return nil
}

// checkVersion verifies the reported server version against the minimum
// constraint. Servers that do not report a version pass the check.
func (c *Client) checkVersion(version string) error {
	if c.minVersion == "" || version == "" {
		if version == "" {
			logger.Warn("Server did not report a version, skipping version check")
		}
		return nil
	}

	constraint, err := semver.NewConstraint(c.minVersion)
	if err != nil {
		return core.ErrInvalidCapabilities.WithMessage("invalid version constraint %q", c.minVersion).WithCause(err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		logger.Warn("Server version %q is not semver, skipping version check", version)
		return nil
	}

	if !constraint.Check(v) {
		return core.ErrVersionUnsupported.
			WithMessage("server version %s does not satisfy %q", version, c.minVersion).
			WithDetails(map[string]interface{}{"found": version, "required": c.minVersion})
	}
	return nil
}

// SessionID returns the backend session identifier, empty before Open.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// Platform returns the detected platform ("android").
func (c *Client) Platform() string {
	return c.platform
}

// ScreenSize returns the device screen dimensions in pixels. Zero when
// the window rect could not be fetched at open.
func (c *Client) ScreenSize() (int, int) {
	return c.screenW, c.screenH
}

// Query fetches the page source and parses it into an immutable snapshot
// of the foreground UI.
func (c *Client) Query() (*core.Snapshot, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	source, err := c.Source()
	if err != nil {
		return nil, err
	}

	elements, err := ParseHierarchy(source)
	if err != nil {
		return nil, err
	}

	snap := &core.Snapshot{
		Elements:   elements,
		Source:     source,
		CapturedAt: time.Now(),
	}
	// Best effort; snapshots stay useful without it.
	if activity, err := c.currentActivity(); err == nil {
		snap.Activity = activity
	}
	return snap, nil
}

// Apply executes an action against the session. Wait actions sleep
// locally without backend traffic.
func (c *Client) Apply(action core.Action) error {
	if err := c.checkOpen(); err != nil {
		return err
	}

	logger.Debug("Applying action: %s", action.Describe())

	switch action.Kind {
	case core.ActionTap:
		return c.applyTap(action)
	case core.ActionSwipe:
		return c.applySwipe(action)
	case core.ActionInput:
		return c.applyInput(action)
	case core.ActionWait:
		time.Sleep(action.Wait)
		return nil
	case core.ActionAssert:
		if action.Assert == nil {
			return core.ErrActionFailed.WithMessage("assert action without assertion")
		}
		snap, err := c.Query()
		if err != nil {
			return err
		}
		return action.Assert.Check(snap)
	case core.ActionTerminate:
		return c.terminateApp()
	default:
		return core.ErrActionFailed.WithMessage("unsupported action kind: %s", action.Kind)
	}
}

// Close deletes the backend session. It is idempotent: the first call
// sends one DELETE, every later call returns nil without traffic. The
// handle counts as closed even when the DELETE fails.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sessionID := c.sessionID
	c.mu.Unlock()

	if sessionID == "" {
		return nil
	}

	logger.Info("Closing session: %s", sessionID)
	_, err := c.request(http.MethodDelete, c.serverURL+"/session/"+sessionID, nil)
	if err != nil {
		logger.Warn("Session delete failed: %v", err)
		return err
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Client) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *Client) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return core.ErrSessionClosed
	}
	if c.sessionID == "" {
		return core.ErrNoSession
	}
	return nil
}

// Actions

func (c *Client) applyTap(action core.Action) error {
	var x, y int
	switch {
	case action.Target != nil:
		x, y = action.Target.Bounds.Center()
	case action.Point != nil:
		x, y = action.Point.X, action.Point.Y
	default:
		return core.ErrActionFailed.WithMessage("tap action without target or point")
	}
	return c.tap(x, y)
}

func (c *Client) applySwipe(action core.Action) error {
	duration := action.DurationMs

	if action.From != nil && action.To != nil {
		if duration <= 0 {
			duration = 300
		}
		return c.swipe(action.From.X, action.From.Y, action.To.X, action.To.Y, duration)
	}

	if duration <= 0 {
		duration = 500
	}
	w, h := c.screenW, c.screenH
	if w == 0 || h == 0 {
		return core.ErrActionFailed.WithMessage("directional swipe needs screen geometry")
	}

	centerX, centerY := w/2, h/2
	var startX, startY, endX, endY int
	switch strings.ToLower(action.Direction) {
	case "up", "":
		startX, startY = centerX, h*2/3
		endX, endY = centerX, h/3
	case "down":
		startX, startY = centerX, h/3
		endX, endY = centerX, h*2/3
	case "left":
		startX, startY = w*2/3, centerY
		endX, endY = w/3, centerY
	case "right":
		startX, startY = w/3, centerY
		endX, endY = w*2/3, centerY
	default:
		return core.ErrActionFailed.WithMessage("invalid swipe direction: %s", action.Direction)
	}
	return c.swipe(startX, startY, endX, endY, duration)
}

func (c *Client) applyInput(action core.Action) error {
	var elementID string
	var err error

	if action.Target != nil && action.Target.Identifier != "" {
		elementID, err = c.findElement("id", action.Target.Identifier)
	} else {
		elementID, err = c.activeElement()
	}
	if err != nil {
		return err
	}

	return c.sendKeys(elementID, action.Text)
}

// tap performs a W3C pointer action sequence at the given coordinates.
func (c *Client) tap(x, y int) error {
	return c.performPointerActions([]interface{}{
		map[string]interface{}{"type": "pointerMove", "duration": 0, "x": x, "y": y},
		map[string]interface{}{"type": "pointerDown", "button": 0},
		map[string]interface{}{"type": "pause", "duration": 100},
		map[string]interface{}{"type": "pointerUp", "button": 0},
	})
}

// swipe performs a W3C pointer drag from start to end over durationMs.
func (c *Client) swipe(startX, startY, endX, endY, durationMs int) error {
	return c.performPointerActions([]interface{}{
		map[string]interface{}{"type": "pointerMove", "duration": 0, "x": startX, "y": startY},
		map[string]interface{}{"type": "pointerDown", "button": 0},
		map[string]interface{}{"type": "pointerMove", "duration": durationMs, "x": endX, "y": endY},
		map[string]interface{}{"type": "pointerUp", "button": 0},
	})
}

func (c *Client) performPointerActions(actions []interface{}) error {
	body := map[string]interface{}{
		"actions": []interface{}{
			map[string]interface{}{
				"type": "pointer",
				"id":   "finger1",
				"parameters": map[string]interface{}{
					"pointerType": "touch",
				},
				"actions": actions,
			},
		},
	}
	_, err := c.sessionRequest(http.MethodPost, "/actions", body)
	return err
}

// Source fetches the raw page source XML.
func (c *Client) Source() (string, error) {
	if err := c.checkOpen(); err != nil {
		return "", err
	}

	value, err := c.sessionRequest(http.MethodGet, "/source", nil)
	if err != nil {
		return "", err
	}

	var source string
	if err := json.Unmarshal(value, &source); err != nil {
		return "", core.ErrActionFailed.WithMessage("malformed source response").WithCause(err)
	}
	return source, nil
}

// Screenshot captures the screen as PNG bytes.
func (c *Client) Screenshot() ([]byte, error) {
	if err := c.checkOpen(); err != nil {
		return nil, err
	}

	value, err := c.sessionRequest(http.MethodGet, "/screenshot", nil)
	if err != nil {
		return nil, err
	}

	var encoded string
	if err := json.Unmarshal(value, &encoded); err != nil {
		return nil, core.ErrActionFailed.WithMessage("malformed screenshot response").WithCause(err)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, core.ErrActionFailed.WithMessage("screenshot is not valid base64").WithCause(err)
	}
	return data, nil
}

// SetSettings pushes backend settings for the session.
func (c *Client) SetSettings(settings map[string]interface{}) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	_, err := c.sessionRequest(http.MethodPost, "/appium/settings", map[string]interface{}{
		"settings": settings,
	})
	return err
}

func (c *Client) terminateApp() error {
	if c.appID == "" {
		return nil
	}
	_, err := c.sessionRequest(http.MethodPost, "/appium/device/terminate_app", map[string]interface{}{
		"appId": c.appID,
	})
	return err
}

func (c *Client) currentActivity() (string, error) {
	value, err := c.sessionRequest(http.MethodGet, "/appium/device/current_activity", nil)
	if err != nil {
		return "", err
	}
	var activity string
	if err := json.Unmarshal(value, &activity); err != nil {
		return "", err
	}
	return activity, nil
}

func (c *Client) fetchScreenSize() {
	value, err := c.sessionRequest(http.MethodGet, "/window/rect", nil)
	if err != nil {
		logger.Warn("Could not fetch window rect: %v", err)
		return
	}
	var rect struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	}
	if err := json.Unmarshal(value, &rect); err == nil {
		c.screenW = rect.Width
		c.screenH = rect.Height
	}
}

func (c *Client) findElement(using, value string) (string, error) {
	result, err := c.sessionRequest(http.MethodPost, "/element", map[string]interface{}{
		"using": using,
		"value": value,
	})
	if err != nil {
		return "", core.ErrElementNotFound.WithMessage("element not found: %s=%s", using, value).WithCause(err)
	}
	return parseElementID(result)
}

func (c *Client) activeElement() (string, error) {
	result, err := c.sessionRequest(http.MethodGet, "/element/active", nil)
	if err != nil {
		return "", core.ErrElementNotFound.WithMessage("no focused element").WithCause(err)
	}
	return parseElementID(result)
}

func (c *Client) sendKeys(elementID, text string) error {
	_, err := c.sessionRequest(http.MethodPost, "/element/"+elementID+"/value", map[string]interface{}{
		"text": text,
	})
	return err
}

// w3cElementKey is the W3C WebDriver element identifier key.
const w3cElementKey = "element-6066-11e4-a52e-4f735466cecf"

func parseElementID(value json.RawMessage) (string, error) {
	var ref map[string]string
	if err := json.Unmarshal(value, &ref); err != nil {
		return "", core.ErrActionFailed.WithMessage("malformed element response").WithCause(err)
	}
	if id := ref[w3cElementKey]; id != "" {
		return id, nil
	}
	if id := ref["ELEMENT"]; id != "" {
		return id, nil
	}
	return "", core.ErrActionFailed.WithMessage("no element id in response")
}

// HTTP plumbing

// sessionRequest issues a request scoped to the open session.
func (c *Client) sessionRequest(method, path string, body interface{}) (json.RawMessage, error) {
	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	return c.request(method, c.serverURL+"/session/"+sessionID+path, body)
}

// request issues an HTTP request and unwraps the W3C value envelope.
// W3C error documents are mapped onto the runner's error taxonomy.
func (c *Client) request(method, url string, body interface{}) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.ErrServerUnreachable.WithMessage("request %s %s failed", method, url).WithCause(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.ErrServerUnreachable.WithMessage("reading response failed").WithCause(err)
	}

	var envelope struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, core.ErrActionFailed.
			WithMessage("malformed response from %s (status %d)", url, resp.StatusCode).
			WithCause(err)
	}

	if wireErr := parseWireError(envelope.Value); wireErr != nil {
		if wireErr.Err == "invalid session id" {
			return nil, core.ErrSessionClosed.WithMessage("backend reports invalid session: %s", wireErr.Message)
		}
		return nil, core.ErrActionFailed.
			WithMessage("%s: %s", wireErr.Err, wireErr.Message).
			WithDetails(map[string]interface{}{"error": wireErr.Err})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.ErrActionFailed.WithMessage("unexpected status %d from %s", resp.StatusCode, url)
	}

	return envelope.Value, nil
}

// wireError is the W3C error document inside a value envelope.
type wireError struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}

func parseWireError(value json.RawMessage) *wireError {
	if len(value) == 0 || value[0] != '{' {
		return nil
	}
	var we wireError
	if err := json.Unmarshal(value, &we); err != nil {
		return nil
	}
	if we.Err == "" {
		return nil
	}
	return &we
}
