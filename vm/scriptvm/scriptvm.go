package scriptvm

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/handle"
	"github.com/wippyai/vm-bridge/lifecycle"
	"github.com/wippyai/vm-bridge/payload"
	"github.com/wippyai/vm-bridge/vm"
)

// Config describes one guest program.
type Config struct {
	// Source is the guest JavaScript, evaluated once at attach.
	Source string

	// Name labels the source in stack traces. Defaults to "main.js".
	Name string

	Logger *zap.Logger
}

// Factory adapts a Config into a session VM factory.
func Factory(cfg Config) vm.Factory {
	return func(ctx context.Context) (vm.Instance, error) {
		return New(cfg)
	}
}

// VM executes guest JavaScript on a dedicated loop goroutine that owns
// the goja runtime. goja runtimes are not goroutine-safe, so every touch
// of the runtime, including callbacks fired by bus deliveries and
// permission resolutions, is posted onto the loop.
type VM struct {
	log    *zap.Logger
	rt     *goja.Runtime
	source string
	name   string

	bridge    vm.Bridge
	bridgeObj *goja.Object

	jobs  chan func()
	quit  chan struct{}
	done  chan struct{}
	fault chan error

	closeOnce sync.Once
	faultOnce sync.Once
}

var _ vm.Instance = (*VM)(nil)

// New creates the VM and starts its loop. Nothing runs until Attach.
func New(cfg Config) (*VM, error) {
	if cfg.Source == "" {
		return nil, fmt.Errorf("scriptvm: empty source")
	}
	name := cfg.Name
	if name == "" {
		name = "main.js"
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	v := &VM{
		log:    log.Named("scriptvm"),
		rt:     goja.New(),
		source: cfg.Source,
		name:   name,
		jobs:   make(chan func(), 64),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		fault:  make(chan error, 1),
	}
	go v.loop()
	return v, nil
}

func (v *VM) loop() {
	defer close(v.done)
	for {
		select {
		case job := <-v.jobs:
			job()
		case <-v.quit:
			return
		}
	}
}

// post schedules a job on the loop. Jobs posted after Close are dropped.
func (v *VM) post(job func()) {
	select {
	case v.jobs <- job:
	case <-v.quit:
	}
}

// tryPost schedules a job without ever blocking: a saturated loop drops
// the job with a diagnostic. Lifecycle notifications use this so a guest
// wedged in script code cannot stall the caller, in particular session
// teardown, which notifies the Destroyed state before closing the VM.
func (v *VM) tryPost(event string, job func()) {
	select {
	case v.jobs <- job:
	case <-v.quit:
	default:
		v.log.Warn("guest loop saturated, dropping notification", zap.String("event", event))
	}
}

// run posts a job and waits for it to finish.
func (v *VM) run(job func()) {
	ran := make(chan struct{})
	v.post(func() {
		defer close(ran)
		job()
	})
	select {
	case <-ran:
	case <-v.done:
	}
}

// fail records the single fatal error. The session answers it with full
// teardown.
func (v *VM) fail(err error) {
	v.faultOnce.Do(func() {
		v.log.Error("guest fault", zap.Error(err))
		v.fault <- err
	})
}

// Attach installs the bridge object and evaluates the guest source on
// the loop. An evaluation error is returned and the VM is unusable.
func (v *VM) Attach(b vm.Bridge) error {
	v.bridge = b

	var evalErr error
	v.run(func() {
		v.bridgeObj = v.newBridgeObject()
		if err := v.rt.GlobalObject().Set("bridge", v.bridgeObj); err != nil {
			evalErr = err
			return
		}
		v.installConsole()
		if _, err := v.rt.RunScript(v.name, v.source); err != nil {
			evalErr = err
		}
	})
	if evalErr != nil {
		return fmt.Errorf("scriptvm: evaluating %s: %w", v.name, evalErr)
	}
	return nil
}

// OnLifecycle forwards a state change to the guest's bridge.onLifecycle
// handler, if it assigned one. A throwing handler is fatal. The
// notification never blocks: if the loop is saturated the state change is
// dropped with a diagnostic.
func (v *VM) OnLifecycle(s lifecycle.State) {
	v.tryPost(s.String(), func() {
		fn, ok := goja.AssertFunction(v.bridgeObj.Get("onLifecycle"))
		if !ok {
			return
		}
		if _, err := fn(goja.Undefined(), v.rt.ToValue(s.String())); err != nil {
			v.fail(fmt.Errorf("scriptvm: onLifecycle(%s): %w", s, err))
		}
	})
}

// Close interrupts any running script and stops the loop.
func (v *VM) Close(ctx context.Context) error {
	v.closeOnce.Do(func() {
		v.rt.Interrupt("session destroyed")
		close(v.quit)
		// Clean shutdown: a closed fault channel with no value.
		v.faultOnce.Do(func() { close(v.fault) })
	})
	select {
	case <-v.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fault yields the guest's fatal error, if any.
func (v *VM) Fault() <-chan error { return v.fault }

// throw raises a JS exception from a host-side error. Must only be
// called from the loop.
func (v *VM) throw(err error) {
	panic(v.rt.NewGoError(err))
}

// newBridgeObject builds the guest-visible bridge surface. Every method
// body runs on the loop because only guest code calls it.
func (v *VM) newBridgeObject() *goja.Object {
	obj := v.rt.NewObject()

	obj.Set("sessionId", v.bridge.SessionID())

	obj.Set("send", func(call goja.FunctionCall) goja.Value {
		channel := call.Argument(0).String()
		val := payload.From(call.Argument(1).Export())
		if err := v.bridge.Send(channel, val); err != nil {
			v.throw(err)
		}
		return goja.Undefined()
	})

	obj.Set("requestPermission", func(call goja.FunctionCall) goja.Value {
		name := call.Argument(0).String()
		callback, hasCallback := goja.AssertFunction(call.Argument(1))

		tk, err := v.bridge.RequestPermission(name)
		if err != nil {
			v.throw(err)
		}
		if !hasCallback {
			return v.rt.ToValue(tk.ID())
		}

		go func() {
			<-tk.Done()
			outcome := tk.Outcome()
			v.post(func() {
				if _, err := callback(goja.Undefined(),
					v.rt.ToValue(outcome.Allowed()),
					v.rt.ToValue(outcome.String()),
				); err != nil {
					v.fail(fmt.Errorf("scriptvm: permission callback for %q: %w", name, err))
				}
			})
		}()
		return v.rt.ToValue(tk.ID())
	})

	obj.Set("allocHandle", func(call goja.FunctionCall) goja.Value {
		kind, err := parseKind(call.Argument(0).String())
		if err != nil {
			v.throw(err)
		}
		id, err := v.bridge.AllocHandle(kind, call.Argument(1).Export())
		if err != nil {
			v.throw(err)
		}
		return v.rt.ToValue(uint64(id))
	})

	obj.Set("deref", func(call goja.FunctionCall) goja.Value {
		id := handle.ID(call.Argument(0).ToInteger())
		ref, present, err := v.bridge.Deref(id)
		if err != nil {
			v.throw(err)
		}
		if !present {
			return goja.Undefined()
		}
		return v.rt.ToValue(ref)
	})

	obj.Set("release", func(call goja.FunctionCall) goja.Value {
		id := handle.ID(call.Argument(0).ToInteger())
		if err := v.bridge.Release(id); err != nil {
			v.throw(err)
		}
		return goja.Undefined()
	})

	obj.Set("render", func(call goja.FunctionCall) goja.Value {
		tree := payload.From(call.Argument(0).Export())
		if err := v.bridge.Render(tree); err != nil {
			v.throw(err)
		}
		return goja.Undefined()
	})

	obj.Set("subscribe", func(call goja.FunctionCall) goja.Value {
		channel := call.Argument(0).String()
		fn, ok := goja.AssertFunction(call.Argument(1))
		if !ok {
			v.throw(fmt.Errorf("scriptvm: subscribe(%q): second argument is not a function", channel))
		}
		// Deliveries arrive on the bus goroutine; re-post onto the loop
		// before touching the runtime.
		err := v.bridge.Subscribe(channel, func(p payload.Value) {
			v.post(func() {
				if _, err := fn(goja.Undefined(), v.rt.ToValue(p.Export())); err != nil {
					v.fail(fmt.Errorf("scriptvm: subscriber on %q: %w", channel, err))
				}
			})
		})
		if err != nil {
			v.throw(err)
		}
		return goja.Undefined()
	})

	return obj
}

func parseKind(name string) (handle.Kind, error) {
	switch name {
	case "local":
		return handle.Local, nil
	case "global":
		return handle.Global, nil
	case "weak":
		return handle.Weak, nil
	}
	return 0, fmt.Errorf("scriptvm: unknown handle kind %q", name)
}

// installConsole routes guest console output into the host logger.
func (v *VM) installConsole() {
	console := v.rt.NewObject()
	logAt := func(level func(string, ...zap.Field)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, arg := range call.Arguments {
				parts[i] = arg.String()
			}
			level("guest console", zap.Strings("args", parts))
			return goja.Undefined()
		}
	}
	console.Set("log", logAt(v.log.Info))
	console.Set("info", logAt(v.log.Info))
	console.Set("warn", logAt(v.log.Warn))
	console.Set("error", logAt(v.log.Error))
	console.Set("debug", logAt(v.log.Debug))
	v.rt.GlobalObject().Set("console", console)
}
