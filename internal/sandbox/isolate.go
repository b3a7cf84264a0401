// Package sandbox runs untrusted tool scripts inside a goja isolate. The
// trust boundary is one-directional: the host injects the payload once at
// construction, and the only channel back is a single readiness signal.
// References that would resolve to the embedding page are neutralized before
// any tool code runs.
package sandbox

import (
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/console"
	"github.com/dop251/goja_nodejs/require"
	"go.uber.org/zap"
)

// ErrBudgetExceeded reports a script interrupted at its execution deadline.
var ErrBudgetExceeded = errors.New("tool script exceeded execution budget")

const defaultBudget = 2 * time.Second

// bootstrap freezes the neutral stubs so tool code cannot repopulate them
// with something reachable.
const bootstrap = `
Object.freeze(parent);
Object.freeze(top);
Object.freeze(opener);
Object.freeze(location);
`

// Isolate is a single-use execution context for one tool's script. It is
// never reused across tool ids; navigation tears it down and a fresh one is
// built.
type Isolate struct {
	vm     *goja.Runtime
	log    *zap.Logger
	toolID string
	budget time.Duration

	readyOnce sync.Once
	ready     chan struct{}
}

// consolePrinter routes tool console output into the host log. Local logging
// is the only side effect tool code gets.
type consolePrinter struct {
	log *zap.Logger
}

func (p consolePrinter) Log(s string)   { p.log.Info("tool console", zap.String("msg", s)) }
func (p consolePrinter) Warn(s string)  { p.log.Warn("tool console", zap.String("msg", s)) }
func (p consolePrinter) Error(s string) { p.log.Error("tool console", zap.String("msg", s)) }

// New builds an isolate for toolID with neutralized globals. A zero budget
// uses the default.
func New(toolID string, log *zap.Logger, budget time.Duration) (*Isolate, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if budget <= 0 {
		budget = defaultBudget
	}
	i := &Isolate{
		vm:     goja.New(),
		log:    log.With(zap.String("tool_id", toolID)),
		toolID: toolID,
		budget: budget,
		ready:  make(chan struct{}),
	}
	registry := require.NewRegistry()
	registry.RegisterNativeModule(console.ModuleName, console.RequireWithPrinter(consolePrinter{i.log}))
	registry.Enable(i.vm)
	console.Enable(i.vm)

	if err := i.neutralize(); err != nil {
		return nil, err
	}
	if _, err := i.vm.RunString(bootstrap); err != nil {
		return nil, err
	}
	return i, nil
}

// define installs a non-writable, non-configurable global.
func (i *Isolate) define(name string, v goja.Value) error {
	return i.vm.GlobalObject().DefineDataProperty(name, v, goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE)
}

// neutralize rewires every upward reference and disruptive primitive before
// the payload is injected.
func (i *Isolate) neutralize() error {
	global := i.vm.GlobalObject()

	// Upward frame references resolve to an inert stub, never the host.
	stub := i.vm.NewObject()
	for _, name := range []string{"parent", "top", "opener"} {
		if err := i.define(name, stub); err != nil {
			return err
		}
	}

	// The isolate is its own window.
	for _, name := range []string{"window", "self"} {
		if err := i.define(name, global); err != nil {
			return err
		}
	}

	// Disruptive dialogs become local log lines.
	noisy := func(kind string) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			msg := ""
			if len(call.Arguments) > 0 {
				msg = call.Arguments[0].String()
			}
			i.log.Debug("tool dialog suppressed", zap.String("kind", kind), zap.String("msg", msg))
			return goja.Undefined()
		}
	}
	if err := i.define("alert", i.vm.ToValue(noisy("alert"))); err != nil {
		return err
	}
	if err := i.define("confirm", i.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		noisy("confirm")(call)
		return i.vm.ToValue(false)
	})); err != nil {
		return err
	}
	if err := i.define("prompt", i.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		noisy("prompt")(call)
		return goja.Null()
	})); err != nil {
		return err
	}

	// Navigation-away calls are no-ops; the unload guard keeps the embedding
	// page where it is.
	loc := i.vm.NewObject()
	if err := loc.DefineDataProperty("href", i.vm.ToValue("about:blank"), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}
	for _, name := range []string{"assign", "replace", "reload"} {
		if err := loc.DefineDataProperty(name, i.vm.ToValue(noisy("location."+name)), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
			return err
		}
	}
	if err := i.define("location", loc); err != nil {
		return err
	}
	if err := i.define("onbeforeunload", i.vm.ToValue(func(goja.FunctionCall) goja.Value {
		return i.vm.ToValue("navigation blocked")
	})); err != nil {
		return err
	}

	// host.ready is the single upward channel. Extra calls are absorbed by
	// the once.
	host := i.vm.NewObject()
	if err := host.DefineDataProperty("ready", i.vm.ToValue(func(goja.FunctionCall) goja.Value {
		i.readyOnce.Do(func() { close(i.ready) })
		return goja.Undefined()
	}), goja.FLAG_FALSE, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}
	return i.define("host", host)
}

// Run executes the tool script under the execution budget. The returned error
// is for the host's log only; render flow must not surface it to the user.
func (i *Isolate) Run(script string) error {
	timer := time.AfterFunc(i.budget, func() {
		i.vm.Interrupt(ErrBudgetExceeded)
	})
	defer timer.Stop()
	defer i.vm.ClearInterrupt()

	_, err := i.vm.RunString(script)
	if err == nil {
		// Script completion is the implicit load signal when the tool never
		// calls host.ready explicitly.
		i.readyOnce.Do(func() { close(i.ready) })
		return nil
	}
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) {
		i.log.Warn("tool script interrupted", zap.Duration("budget", i.budget))
		return ErrBudgetExceeded
	}
	i.log.Warn("tool script failed", zap.Error(err))
	return err
}

// Ready reports whether the readiness signal was emitted.
func (i *Isolate) Ready() bool {
	select {
	case <-i.ready:
		return true
	default:
		return false
	}
}

// ReadyChan closes exactly once, on the first readiness signal.
func (i *Isolate) ReadyChan() <-chan struct{} {
	return i.ready
}
