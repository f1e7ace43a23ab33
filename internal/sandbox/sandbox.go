// Package sandbox implements isolated execution of already-guarded,
// already-transformed source in a fresh goja.Runtime with a minimal,
// preset-determined binding table.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"

	enclave "github.com/jonwraymond/enclavejs"
	"github.com/jonwraymond/enclavejs/internal/bridge"
	"github.com/jonwraymond/enclavejs/internal/guard"
)

// ConsoleSink receives console.* output as it's produced (§4.3's "emits a
// log/stdout event").
type ConsoleSink interface {
	Console(level enclave.LogLevel, message string)
}

// Stats mirrors the live execution accounting §4.3 requires.
type Stats struct {
	StartTime      time.Time
	EndTime        time.Time
	DurationMs     int64
	IterationCount int64
	ToolCallCount  int64
	ConsoleBytes   int64
}

// RunResult is the sandbox's run() contract result.
type RunResult struct {
	Success bool
	Value   any
	Err     *enclave.SessionError
	Stats   Stats
}

// Config configures a single Run.
type Config struct {
	Preset  guard.Preset
	Limits  enclave.Limits
	Bridge  *bridge.Bridge
	Console ConsoleSink
}

// Sandbox runs previously-guarded, previously-transformed source.
type Sandbox struct{}

// New constructs a Sandbox. It holds no state of its own: every field that
// varies per run lives in Config or the returned RunResult.
func New() *Sandbox { return &Sandbox{} }

// Run executes transformedSource — the output of internal/transform —
// under cfg, enforcing every isolation property §4.3 requires: no ambient
// host globals, eval/Function disabled even if the guard were bypassed, a
// wall-clock timeout, and live stats collection.
func (s *Sandbox) Run(ctx context.Context, transformedSource string, cfg Config) (RunResult, error) {
	limits := cfg.Limits.WithDefaults()
	stats := Stats{StartTime: time.Now()}

	var iterationCount int64
	var consoleCalls int64
	var consoleBytes int64
	var aborted int32

	loop := eventloop.NewEventLoop()
	resultCh := make(chan RunResult, 1)
	vmCh := make(chan *goja.Runtime, 1)
	done := make(chan struct{})

	go func() {
		select {
		case vm := <-vmCh:
			select {
			case <-ctx.Done():
				atomic.StoreInt32(&aborted, 1)
				if cfg.Bridge != nil {
					cfg.Bridge.Abort()
				}
				vm.Interrupt("execution timed out")
			case <-done:
			}
		case <-done:
		}
	}()

	loop.Run(func(vm *goja.Runtime) {
		vmCh <- vm
		lockDownGlobals(vm, cfg.Preset)
		installHelpers(vm, helperState{
			ctx:            ctx,
			ngm:            &limits,
			iterationCount: &iterationCount,
			consoleCalls:   &consoleCalls,
			consoleBytes:   &consoleBytes,
			aborted:        &aborted,
			bridge:         cfg.Bridge,
			console:        cfg.Console,
			preset:         cfg.Preset,
		})

		prog, err := goja.Compile("<sandbox>", transformedSource, false)
		if err != nil {
			resultCh <- RunResult{Err: enclave.NewSessionError(enclave.ErrCodeExecutionError, err.Error(), err)}
			return
		}
		if _, err := vm.RunProgram(prog); err != nil {
			resultCh <- RunResult{Err: wrapJSError(err)}
			return
		}

		mainFn, ok := goja.AssertFunction(vm.Get("__ag_main"))
		if !ok {
			resultCh <- RunResult{Err: enclave.NewSessionError(enclave.ErrCodeExecutionError, "__ag_main is not a function", nil)}
			return
		}
		promiseVal, err := mainFn(goja.Undefined())
		if err != nil {
			resultCh <- RunResult{Err: wrapJSError(err)}
			return
		}

		promObj := promiseVal.ToObject(vm)
		thenFn, ok := goja.AssertFunction(promObj.Get("then"))
		if !ok {
			// __ag_main resolved synchronously without ever awaiting.
			resultCh <- RunResult{Success: true, Value: promiseVal.Export()}
			return
		}
		onFulfilled := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			var v any
			if len(call.Arguments) > 0 {
				v = call.Arguments[0].Export()
			}
			resultCh <- RunResult{Success: true, Value: v}
			return goja.Undefined()
		})
		onRejected := vm.ToValue(func(call goja.FunctionCall) goja.Value {
			msg := "execution failed"
			if len(call.Arguments) > 0 {
				msg = call.Arguments[0].String()
			}
			resultCh <- RunResult{Err: classifyError(msg)}
			return goja.Undefined()
		})
		if _, err := thenFn(promObj, onFulfilled, onRejected); err != nil {
			resultCh <- RunResult{Err: wrapJSError(err)}
		}
	})
	close(done)

	res := <-resultCh
	stats.EndTime = time.Now()
	stats.DurationMs = stats.EndTime.Sub(stats.StartTime).Milliseconds()
	stats.IterationCount = atomic.LoadInt64(&iterationCount)
	stats.ConsoleBytes = atomic.LoadInt64(&consoleBytes)
	if cfg.Bridge != nil {
		stats.ToolCallCount = int64(cfg.Bridge.PendingCount())
	}
	res.Stats = stats
	return res, nil
}

type helperState struct {
	ctx            context.Context
	ngm            *enclave.Limits
	iterationCount *int64
	consoleCalls   *int64
	consoleBytes   *int64
	aborted        *int32
	bridge         *bridge.Bridge
	console        ConsoleSink
	preset         guard.Preset
}

// lockDownGlobals deletes identifiers a fresh goja.Runtime provides by
// default that the active preset does not allow, and unconditionally
// disables string-to-code compilation — defense-in-depth per §4.3, even
// though the Guard already rejects source that references these.
func lockDownGlobals(vm *goja.Runtime, preset guard.Preset) {
	global := vm.GlobalObject()
	for _, name := range []string{"eval", "Function", "Proxy", "Reflect", "WebAssembly"} {
		global.Delete(name)
	}

	managed := []string{"parseInt", "parseFloat", "isNaN", "isFinite",
		"encodeURI", "decodeURI", "encodeURIComponent", "decodeURIComponent", "console"}
	allowed := allowedSet(preset)
	for _, name := range managed {
		if !allowed[name] {
			global.Delete(name)
		}
	}
}

func allowedSet(preset guard.Preset) map[string]bool {
	set := map[string]bool{}
	switch preset {
	case guard.PresetStrict:
	case guard.PresetSecure, guard.PresetStandard:
		for _, n := range []string{"parseInt", "parseFloat", "isNaN", "isFinite",
			"encodeURI", "decodeURI", "encodeURIComponent", "decodeURIComponent"} {
			set[n] = true
		}
	case guard.PresetPermissive:
		for _, n := range []string{"parseInt", "parseFloat", "isNaN", "isFinite",
			"encodeURI", "decodeURI", "encodeURIComponent", "decodeURIComponent", "console"} {
			set[n] = true
		}
	}
	return set
}

func installHelpers(vm *goja.Runtime, st helperState) {
	limits := *st.ngm

	checkpoint := func(call goja.FunctionCall) goja.Value {
		if atomic.LoadInt32(st.aborted) != 0 {
			panic(vm.NewGoError(fmt.Errorf("execution aborted")))
		}
		n := atomic.AddInt64(st.iterationCount, 1)
		if limits.MaxIterations > 0 && n > limits.MaxIterations {
			panic(vm.NewTypeError("Maximum iteration limit exceeded"))
		}
		return goja.Undefined()
	}
	vm.Set("__safe_for", checkpoint)
	vm.Set("__safe_while", checkpoint)
	vm.Set("__safe_doWhile", checkpoint)
	vm.Set("__safe_forOf", checkpoint)
	vm.Set("__maxIterations", limits.MaxIterations)

	vm.Set("__safe_callTool", func(call goja.FunctionCall) goja.Value {
		if st.bridge == nil {
			panic(vm.NewGoError(fmt.Errorf("no tool bridge configured for this session")))
		}
		name := call.Argument(0).String()
		var args map[string]interface{}
		if argVal := call.Argument(1); !goja.IsUndefined(argVal) && !goja.IsNull(argVal) {
			exported := argVal.Export()
			m, ok := exported.(map[string]interface{})
			if !ok {
				panic(vm.NewTypeError("callTool arguments must be a non-array object"))
			}
			args = m
		}
		val, err := st.bridge.Call(st.ctx, name, args)
		if err != nil {
			panic(vm.ToValue(err.Error()))
		}
		return vm.ToValue(val)
	})

	if allowedSet(st.preset)["console"] {
		consoleObj := vm.NewObject()
		makeLevel := func(level enclave.LogLevel) func(goja.FunctionCall) goja.Value {
			return func(call goja.FunctionCall) goja.Value {
				n := atomic.AddInt64(st.consoleCalls, 1)
				if limits.MaxConsoleCalls > 0 && n > int64(limits.MaxConsoleCalls) {
					panic(vm.NewTypeError("console call limit exceeded"))
				}
				parts := make([]string, len(call.Arguments))
				for i, a := range call.Arguments {
					parts[i] = fmt.Sprintf("%v", a.Export())
				}
				msg := strings.Join(parts, " ")
				total := atomic.AddInt64(st.consoleBytes, int64(len(msg)))
				if limits.MaxConsoleOutputBytes > 0 && total > limits.MaxConsoleOutputBytes {
					panic(vm.NewTypeError("console output byte limit exceeded"))
				}
				if st.console != nil {
					st.console.Console(level, msg)
				}
				return goja.Undefined()
			}
		}
		consoleObj.Set("log", makeLevel(enclave.LogLevelInfo))
		consoleObj.Set("info", makeLevel(enclave.LogLevelInfo))
		consoleObj.Set("warn", makeLevel(enclave.LogLevelWarn))
		consoleObj.Set("error", makeLevel(enclave.LogLevelError))
		consoleObj.Set("debug", makeLevel(enclave.LogLevelDebug))
		vm.Set("console", consoleObj)
	}
}

// classifyError recovers a structured SessionError from a thrown JS error
// message. Errors raised via panic(vm.ToValue(sessionErr.Error())) already
// carry their code as a "CODE: message" prefix (SessionError.Error's own
// format); host-thrown limit errors are recognized by their literal text
// since they're raised as plain TypeErrors, not SessionErrors.
func classifyError(msg string) *enclave.SessionError {
	if idx := strings.Index(msg, ": "); idx > 0 {
		if code := enclave.ErrorCode(msg[:idx]); knownCode(code) {
			return enclave.NewSessionError(code, msg[idx+2:], nil)
		}
	}
	switch {
	case strings.Contains(msg, "Maximum iteration limit exceeded"):
		return enclave.NewSessionError(enclave.ErrCodeIterationLimit, msg, nil)
	case strings.Contains(msg, "console call limit exceeded"),
		strings.Contains(msg, "console output byte limit exceeded"):
		return enclave.NewSessionError(enclave.ErrCodeConsoleLimit, msg, nil)
	case strings.Contains(msg, "execution aborted"):
		return enclave.NewSessionError(enclave.ErrCodeCancelled, msg, nil)
	default:
		return enclave.NewSessionError(enclave.ErrCodeExecutionError, msg, nil)
	}
}

func knownCode(code enclave.ErrorCode) bool {
	switch code {
	case enclave.ErrCodeToolCallLimit, enclave.ErrCodeExecutionError, enclave.ErrCodeCancelled,
		enclave.ErrCodeIterationLimit, enclave.ErrCodeConsoleLimit, enclave.ErrCodeTimeout:
		return true
	default:
		return false
	}
}

func wrapJSError(err error) *enclave.SessionError {
	if interrupted, ok := err.(*goja.InterruptedError); ok {
		return enclave.NewSessionError(enclave.ErrCodeTimeout, "execution timed out", interrupted)
	}
	if exc, ok := err.(*goja.Exception); ok {
		return enclave.NewSessionError(enclave.ErrCodeExecutionError, exc.Value().String(), exc)
	}
	return enclave.NewSessionError(enclave.ErrCodeExecutionError, err.Error(), err)
}
