package agent

import (
	"fmt"
	"time"

	"github.com/devicelab-dev/agent-runner/pkg/core"
	"github.com/devicelab-dev/agent-runner/pkg/jsengine"
)

// ScriptPolicy delegates decisions to a JavaScript function. The script
// must define
//
//	function decide(snapshot, state) {
//	    return {action: {...}, state: {...}};
//	}
//
// where snapshot carries the element list (each element exposing its
// index, attributes, bounds and center) and state mirrors the policy
// State. Actions reference elements by index; taps and inputs may use
// raw coordinates instead.
type ScriptPolicy struct {
	name   string
	engine *jsengine.Engine
}

// NewScriptPolicy loads the script source and verifies the decide
// function exists. The caller owns the returned policy and should Close
// it when the run ends.
func NewScriptPolicy(name, source string) (*ScriptPolicy, error) {
	eng := jsengine.New()
	if err := eng.RunScript(source); err != nil {
		eng.Close()
		return nil, core.ErrPolicyScript.WithMessage("loading %s: %v", name, err).WithCause(err)
	}
	if !eng.Has("decide") {
		eng.Close()
		return nil, core.ErrPolicyScript.WithMessage("%s does not define decide(snapshot, state)", name)
	}
	return &ScriptPolicy{name: name, engine: eng}, nil
}

// Name identifies the policy in logs and reports.
func (p *ScriptPolicy) Name() string { return p.name }

// SetPlatform exposes the platform to the script as agent.platform.
func (p *ScriptPolicy) SetPlatform(platform string) {
	p.engine.SetPlatform(platform)
}

// SetVariables exposes scenario environment values to the script.
func (p *ScriptPolicy) SetVariables(vars map[string]string) {
	for k, v := range vars {
		p.engine.SetVariable(k, v)
	}
}

// Close releases the script engine.
func (p *ScriptPolicy) Close() {
	p.engine.Close()
}

// Outputs returns the values the script stored on the output object.
func (p *ScriptPolicy) Outputs() map[string]interface{} {
	return p.engine.GetOutput()
}

// Decide calls the script's decide function and converts its result.
// Contract violations surface as script errors rather than panics so a
// broken script fails the run cleanly.
func (p *ScriptPolicy) Decide(snap *core.Snapshot, state State) (core.Action, State, error) {
	if state.Terminal() {
		return core.Terminate(), state, nil
	}

	result, err := p.engine.Call("decide", snapshotView(snap), stateView(state))
	if err != nil {
		return core.Action{}, state, core.ErrPolicyScript.WithMessage("%s: decide threw: %v", p.name, err).WithCause(err)
	}

	doc, ok := result.(map[string]interface{})
	if !ok {
		return core.Action{}, state, core.ErrPolicyScript.WithMessage("%s: decide must return {action, state}, got %T", p.name, result)
	}

	action, err := parseAction(doc["action"], snap)
	if err != nil {
		return core.Action{}, state, core.ErrPolicyScript.WithMessage("%s: %v", p.name, err)
	}
	next, err := parseState(doc["state"], state)
	if err != nil {
		return core.Action{}, state, core.ErrPolicyScript.WithMessage("%s: %v", p.name, err)
	}
	return action, next, nil
}

// snapshotView converts a snapshot into the plain maps goja hands to
// the script.
func snapshotView(snap *core.Snapshot) map[string]interface{} {
	elements := []interface{}{}
	activity := ""
	if snap != nil {
		activity = snap.Activity
		for i, e := range snap.Elements {
			cx, cy := e.Bounds.Center()
			elements = append(elements, map[string]interface{}{
				"index":      i,
				"role":       e.Role,
				"label":      e.Label,
				"identifier": e.Identifier,
				"desc":       e.Desc,
				"bounds": map[string]interface{}{
					"x":      e.Bounds.X,
					"y":      e.Bounds.Y,
					"width":  e.Bounds.Width,
					"height": e.Bounds.Height,
				},
				"center":    map[string]interface{}{"x": cx, "y": cy},
				"clickable": e.Clickable,
				"enabled":   e.Enabled,
				"displayed": e.Displayed,
				"selected":  e.Selected,
			})
		}
	}
	return map[string]interface{}{
		"activity": activity,
		"elements": elements,
	}
}

func stateView(state State) map[string]interface{} {
	custom := state.Custom
	if custom == nil {
		custom = map[string]interface{}{}
	}
	return map[string]interface{}{
		"phase":  string(state.Phase),
		"step":   state.Step,
		"waits":  state.Waits,
		"reason": state.Reason,
		"custom": custom,
	}
}

func parseAction(raw interface{}, snap *core.Snapshot) (core.Action, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return core.Action{}, fmt.Errorf("action must be an object, got %T", raw)
	}
	kind, _ := m["kind"].(string)

	switch kind {
	case "tap":
		if el, ok, err := elementArg(m, snap); err != nil {
			return core.Action{}, err
		} else if ok {
			return core.Tap(el.ClickableAncestor()), nil
		}
		x, xok := intField(m, "x")
		y, yok := intField(m, "y")
		if xok && yok {
			return core.TapAt(x, y), nil
		}
		return core.Action{}, fmt.Errorf("tap action needs an element index or x/y coordinates")

	case "swipe":
		duration, _ := intField(m, "durationMs")
		if from, fok := pointField(m, "from"); fok {
			to, tok := pointField(m, "to")
			if !tok {
				return core.Action{}, fmt.Errorf("swipe action has from but no to")
			}
			return core.Swipe(from, to, duration), nil
		}
		direction, _ := m["direction"].(string)
		if direction == "" {
			return core.Action{}, fmt.Errorf("swipe action needs a direction or from/to points")
		}
		return core.SwipeDirection(direction, duration), nil

	case "input":
		text, _ := m["text"].(string)
		if el, ok, err := elementArg(m, snap); err != nil {
			return core.Action{}, err
		} else if ok {
			return core.Input(el, text), nil
		}
		return core.Input(nil, text), nil

	case "wait":
		ms, ok := intField(m, "ms")
		if !ok || ms <= 0 {
			return core.Action{}, fmt.Errorf("wait action needs a positive ms")
		}
		return core.WaitFor(time.Duration(ms) * time.Millisecond), nil

	case "terminate":
		return core.Terminate(), nil

	default:
		return core.Action{}, fmt.Errorf("unknown action kind %q", kind)
	}
}

func parseState(raw interface{}, prev State) (State, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return prev, fmt.Errorf("state must be an object, got %T", raw)
	}

	next := prev
	if v, ok := m["phase"].(string); ok {
		switch Phase(v) {
		case PhaseStart, PhaseStep, PhaseDone, PhaseFailed:
			next.Phase = Phase(v)
		default:
			return prev, fmt.Errorf("unknown phase %q", v)
		}
	}
	if v, ok := intField(m, "step"); ok {
		next.Step = v
	}
	if v, ok := intField(m, "waits"); ok {
		next.Waits = v
	}
	if v, ok := m["reason"].(string); ok {
		next.Reason = v
	}
	if v, ok := m["custom"].(map[string]interface{}); ok {
		next.Custom = v
	}
	return next, nil
}

// elementArg resolves an "element" index against the snapshot. ok is
// false when the action carries no element reference.
func elementArg(m map[string]interface{}, snap *core.Snapshot) (*core.Element, bool, error) {
	idx, ok := intField(m, "element")
	if !ok {
		return nil, false, nil
	}
	if snap == nil || idx < 0 || idx >= len(snap.Elements) {
		return nil, false, fmt.Errorf("element index %d out of range (%d elements)", idx, snap.Len())
	}
	return snap.Elements[idx], true, nil
}

// intField reads a numeric field. goja exports integral numbers as
// int64 and everything else as float64.
func intField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func pointField(m map[string]interface{}, key string) (core.Point, bool) {
	pm, ok := m[key].(map[string]interface{})
	if !ok {
		return core.Point{}, false
	}
	x, xok := intField(pm, "x")
	y, yok := intField(pm, "y")
	if !xok || !yok {
		return core.Point{}, false
	}
	return core.Point{X: x, Y: y}, true
}
