// Package jsengine provides JavaScript evaluation for script policies
// and ${...} variable expansion in scenarios.
package jsengine

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/devicelab-dev/agent-runner/pkg/logger"
)

// Engine wraps a goja runtime with the globals scripts can rely on:
// console, timers, json, http, output, and the agent object.
type Engine struct {
	runtime   *goja.Runtime
	variables map[string]interface{}
	output    map[string]interface{}
	platform  string
	timers    *timerRegistry
	mu        sync.Mutex
}

// timerRegistry manages setTimeout/setInterval timers.
type timerRegistry struct {
	timers    map[int]*time.Timer
	tickers   map[int]*time.Ticker
	nextID    int
	mu        sync.Mutex
	stopChan  chan struct{}
	closeOnce sync.Once
}

func newTimerRegistry() *timerRegistry {
	return &timerRegistry{
		timers:   make(map[int]*time.Timer),
		tickers:  make(map[int]*time.Ticker),
		nextID:   1,
		stopChan: make(chan struct{}),
	}
}

// New creates a new engine instance.
func New() *Engine {
	e := &Engine{
		runtime:   goja.New(),
		variables: make(map[string]interface{}),
		output:    make(map[string]interface{}),
		timers:    newTimerRegistry(),
	}

	e.setupBuiltins()
	return e
}

func (e *Engine) setupBuiltins() {
	e.setupConsole()
	e.setupTimers()

	e.runtime.Set("json", e.jsonFunc())
	e.runtime.Set("http", e.httpModule())

	// Values scripts want to hand back to the runner.
	e.runtime.Set("output", e.output)

	e.runtime.Set("agent", e.agentObject())
}

// setupConsole routes console.log and friends into the runner log file
// so script output lands next to everything else.
func (e *Engine) setupConsole() {
	makeConsoleFunc := func(log func(string, ...interface{})) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = fmt.Sprintf("%v", arg.Export())
			}
			log("script: %s", strings.Join(parts, " "))
			return goja.Undefined()
		}
	}

	console := e.runtime.NewObject()
	console.Set("log", makeConsoleFunc(logger.Info))
	console.Set("warn", makeConsoleFunc(logger.Warn))
	console.Set("error", makeConsoleFunc(logger.Error))
	e.runtime.Set("console", console)
}

// setupTimers adds setTimeout, setInterval, clearTimeout, clearInterval.
func (e *Engine) setupTimers() {
	e.runtime.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(e.runtime.NewTypeError("setTimeout requires 2 arguments"))
		}

		callback, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			panic(e.runtime.NewTypeError("first argument must be a function"))
		}

		delay := call.Arguments[1].ToInteger()

		e.timers.mu.Lock()
		id := e.timers.nextID
		e.timers.nextID++

		timer := time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
			e.mu.Lock()
			defer e.mu.Unlock()

			if _, err := callback(goja.Undefined()); err != nil {
				logger.Warn("setTimeout callback error: %v", err)
			}

			e.timers.mu.Lock()
			delete(e.timers.timers, id)
			e.timers.mu.Unlock()
		})

		e.timers.timers[id] = timer
		e.timers.mu.Unlock()

		return e.runtime.ToValue(id)
	})

	e.runtime.Set("clearTimeout", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}

		id := int(call.Arguments[0].ToInteger())

		e.timers.mu.Lock()
		if timer, ok := e.timers.timers[id]; ok {
			timer.Stop()
			delete(e.timers.timers, id)
		}
		e.timers.mu.Unlock()

		return goja.Undefined()
	})

	e.runtime.Set("setInterval", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 2 {
			panic(e.runtime.NewTypeError("setInterval requires 2 arguments"))
		}

		callback, ok := goja.AssertFunction(call.Arguments[0])
		if !ok {
			panic(e.runtime.NewTypeError("first argument must be a function"))
		}

		interval := call.Arguments[1].ToInteger()

		e.timers.mu.Lock()
		id := e.timers.nextID
		e.timers.nextID++

		ticker := time.NewTicker(time.Duration(interval) * time.Millisecond)
		e.timers.tickers[id] = ticker
		e.timers.mu.Unlock()

		go func() {
			defer ticker.Stop()
			for {
				select {
				case <-e.timers.stopChan:
					return
				case <-ticker.C:
					e.mu.Lock()
					if _, err := callback(goja.Undefined()); err != nil {
						logger.Warn("setInterval callback error: %v", err)
					}
					e.mu.Unlock()
				}
			}
		}()

		return e.runtime.ToValue(id)
	})

	e.runtime.Set("clearInterval", func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			return goja.Undefined()
		}

		id := int(call.Arguments[0].ToInteger())

		e.timers.mu.Lock()
		if ticker, ok := e.timers.tickers[id]; ok {
			ticker.Stop()
			delete(e.timers.tickers, id)
		}
		e.timers.mu.Unlock()

		return goja.Undefined()
	})
}

// jsonFunc returns the json() helper that parses a JSON string into an
// object.
func (e *Engine) jsonFunc() func(call goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if len(call.Arguments) < 1 {
			panic(e.runtime.NewTypeError("json requires 1 argument"))
		}

		str := call.Arguments[0].String()

		result, err := e.runtime.RunString(fmt.Sprintf("JSON.parse(%q)", str))
		if err != nil {
			panic(e.runtime.NewTypeError(fmt.Sprintf("invalid JSON: %v", err)))
		}

		return result
	}
}

// agentObject returns the agent global object.
func (e *Engine) agentObject() *goja.Object {
	obj := e.runtime.NewObject()

	// agent.platform - current platform ("android")
	obj.DefineAccessorProperty("platform", e.runtime.ToValue(func() string {
		return e.platform
	}), nil, goja.FLAG_FALSE, goja.FLAG_TRUE)

	return obj
}

// SetVariable sets a variable accessible in JS as a global.
func (e *Engine) SetVariable(name string, value interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.variables[name] = value
	e.runtime.Set(name, value)
}

// SetVariables sets multiple variables.
func (e *Engine) SetVariables(vars map[string]interface{}) {
	for k, v := range vars {
		e.SetVariable(k, v)
	}
}

// SetPlatform sets the platform reported through agent.platform.
func (e *Engine) SetPlatform(platform string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.platform = platform
}

// GetOutput returns a copy of the output object (values set by scripts).
func (e *Engine) GetOutput() map[string]interface{} {
	e.mu.Lock()
	defer e.mu.Unlock()

	outputVal := e.runtime.Get("output")
	var source map[string]interface{}

	if outputVal != nil && !goja.IsUndefined(outputVal) {
		if m, ok := outputVal.Export().(map[string]interface{}); ok {
			source = m
		}
	}

	if source == nil {
		source = e.output
	}

	result := make(map[string]interface{}, len(source))
	for k, v := range source {
		result[k] = v
	}
	return result
}

// Eval evaluates a JavaScript expression and returns the result.
func (e *Engine) Eval(script string) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	result, err := e.runtime.RunString(script)
	if err != nil {
		return nil, fmt.Errorf("JS eval error: %w", err)
	}

	return result.Export(), nil
}

// EvalString evaluates a JavaScript expression and returns a string result.
func (e *Engine) EvalString(script string) (string, error) {
	result, err := e.Eval(script)
	if err != nil {
		return "", err
	}

	if result == nil {
		return "", nil
	}

	return fmt.Sprintf("%v", result), nil
}

// RunScript runs a JavaScript source, typically to define functions.
func (e *Engine) RunScript(script string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, err := e.runtime.RunString(script)
	if err != nil {
		return fmt.Errorf("JS runtime error: %w", err)
	}

	return nil
}

// Call invokes a globally defined function by name and returns its
// exported result.
func (e *Engine) Call(name string, args ...interface{}) (interface{}, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	fn, ok := goja.AssertFunction(e.runtime.Get(name))
	if !ok {
		return nil, fmt.Errorf("%s is not a function", name)
	}

	gojaArgs := make([]goja.Value, len(args))
	for i, a := range args {
		gojaArgs[i] = e.runtime.ToValue(a)
	}

	result, err := fn(goja.Undefined(), gojaArgs...)
	if err != nil {
		return nil, fmt.Errorf("JS call error: %w", err)
	}
	return result.Export(), nil
}

// Has reports whether a global function with the name is defined.
func (e *Engine) Has(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, ok := goja.AssertFunction(e.runtime.Get(name))
	return ok
}

// DefineUndefinedIfMissing defines a variable as undefined if it's not
// already defined, so scripts referencing it don't hit a ReferenceError.
func (e *Engine) DefineUndefinedIfMissing(name string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	val := e.runtime.Get(name)
	if val == nil || goja.IsUndefined(val) {
		if _, exists := e.variables[name]; !exists {
			e.runtime.Set(name, goja.Undefined())
		}
	}
}

// ExpandVariables expands ${...} expressions in a string using JS
// evaluation. Expressions that fail to evaluate are left in place.
func (e *Engine) ExpandVariables(text string) (string, error) {
	result := text
	start := 0

	for {
		idx := strings.Index(result[start:], "${")
		if idx == -1 {
			break
		}
		idx += start

		// Find the matching closing brace.
		depth := 1
		end := idx + 2
		for end < len(result) && depth > 0 {
			if result[end] == '{' {
				depth++
			} else if result[end] == '}' {
				depth--
			}
			end++
		}

		if depth != 0 {
			start = idx + 2
			continue
		}

		expr := result[idx+2 : end-1]

		value, err := e.EvalString(expr)
		if err != nil {
			start = end
			continue
		}

		result = result[:idx] + value + result[end:]
		start = idx + len(value)
	}

	return result, nil
}

// Close stops all timers. Safe to call multiple times.
func (e *Engine) Close() {
	e.timers.closeOnce.Do(func() {
		e.timers.mu.Lock()
		defer e.timers.mu.Unlock()

		for _, timer := range e.timers.timers {
			timer.Stop()
		}
		e.timers.timers = make(map[int]*time.Timer)

		for _, ticker := range e.timers.tickers {
			ticker.Stop()
		}
		e.timers.tickers = make(map[int]*time.Ticker)

		close(e.timers.stopChan)
	})
}
