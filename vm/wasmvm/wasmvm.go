package wasmvm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/vm-bridge/handle"
	"github.com/wippyai/vm-bridge/lifecycle"
	"github.com/wippyai/vm-bridge/payload"
	"github.com/wippyai/vm-bridge/vm"
)

// Guest ABI. Payloads cross the boundary as JSON wire bytes addressed by
// (ptr, len) pairs in guest linear memory. Host-to-guest payloads are
// placed in memory the guest hands out through bridge_alloc.
const (
	hostModule = "bridge"

	guestAlloc        = "bridge_alloc"
	guestOnMessage    = "on_message"
	guestOnPermission = "on_permission"
	guestOnLifecycle  = "on_lifecycle"
	guestOnAttach     = "on_attach"
)

// Host call status codes.
const (
	statusOK    = 0
	statusError = 1
)

// Config describes one guest module.
type Config struct {
	// Module is the compiled wasm binary.
	Module []byte

	// Name labels the instance. Defaults to anonymous.
	Name string

	// MemoryLimitPages caps guest memory in 64KiB pages. 0 keeps the
	// wazero default.
	MemoryLimitPages uint32

	Logger *zap.Logger
}

// Factory adapts a Config into a session VM factory.
func Factory(cfg Config) vm.Factory {
	return func(ctx context.Context) (vm.Instance, error) {
		return New(ctx, cfg)
	}
}

// VM hosts one wasm guest behind the session bridge. A wazero instance
// is not safe for concurrent use, so all guest entry points run on one
// loop goroutine; host functions re-enter on that same goroutine while
// a guest call is on the stack.
type VM struct {
	log    *zap.Logger
	rtCfg  wazero.RuntimeConfig
	name   string
	module []byte

	bridge vm.Bridge

	rt       wazero.Runtime
	instance api.Module
	mem      api.Memory
	alloc    api.Function
	exports  map[string]api.Function

	jobs  chan func()
	quit  chan struct{}
	done  chan struct{}
	fault chan error

	closeOnce sync.Once
	faultOnce sync.Once
}

var _ vm.Instance = (*VM)(nil)

// New creates the VM and starts its loop. The guest is compiled and
// instantiated at Attach.
func New(ctx context.Context, cfg Config) (*VM, error) {
	if len(cfg.Module) == 0 {
		return nil, fmt.Errorf("wasmvm: empty module")
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}

	rtCfg := wazero.NewRuntimeConfig()
	if cfg.MemoryLimitPages > 0 {
		rtCfg = rtCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}

	v := &VM{
		log:    log.Named("wasmvm"),
		rtCfg:  rtCfg,
		name:   cfg.Name,
		module: cfg.Module,
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

func (v *VM) post(job func()) {
	select {
	case v.jobs <- job:
	case <-v.quit:
	}
}

// tryPost never blocks: a saturated loop drops the job with a
// diagnostic. Lifecycle notifications use this so a wedged guest cannot
// stall session teardown, which notifies Destroyed before closing the VM.
func (v *VM) tryPost(event string, job func()) {
	select {
	case v.jobs <- job:
	case <-v.quit:
	default:
		v.log.Warn("guest loop saturated, dropping notification", zap.String("event", event))
	}
}

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

func (v *VM) fail(err error) {
	v.faultOnce.Do(func() {
		v.log.Error("guest fault", zap.Error(err))
		v.fault <- err
	})
}

// Attach compiles and instantiates the guest with the bridge host module
// linked in, then calls the guest's on_attach export if it has one.
func (v *VM) Attach(b vm.Bridge) error {
	v.bridge = b

	var attachErr error
	v.run(func() {
		ctx := context.Background()
		v.rt = wazero.NewRuntimeWithConfig(ctx, v.rtCfg)

		if err := v.instantiateHostModule(ctx); err != nil {
			attachErr = fmt.Errorf("wasmvm: host module: %w", err)
			return
		}

		modCfg := wazero.NewModuleConfig().WithName(v.name)
		instance, err := v.rt.InstantiateWithConfig(ctx, v.module, modCfg)
		if err != nil {
			attachErr = fmt.Errorf("wasmvm: instantiate: %w", err)
			return
		}
		v.instance = instance
		v.mem = instance.Memory()
		v.alloc = instance.ExportedFunction(guestAlloc)
		v.exports = map[string]api.Function{
			guestOnMessage:    instance.ExportedFunction(guestOnMessage),
			guestOnPermission: instance.ExportedFunction(guestOnPermission),
			guestOnLifecycle:  instance.ExportedFunction(guestOnLifecycle),
		}

		if start := instance.ExportedFunction(guestOnAttach); start != nil {
			if _, err := start.Call(ctx); err != nil {
				attachErr = fmt.Errorf("wasmvm: on_attach: %w", err)
			}
		}
	})
	return attachErr
}

// OnLifecycle forwards the state ordinal to the guest's on_lifecycle
// export. Guests without the export ignore lifecycle. The notification
// never blocks: a saturated loop drops it with a diagnostic.
func (v *VM) OnLifecycle(s lifecycle.State) {
	v.tryPost(s.String(), func() {
		fn := v.exports[guestOnLifecycle]
		if fn == nil {
			return
		}
		if _, err := fn.Call(context.Background(), uint64(s)); err != nil {
			v.fail(fmt.Errorf("wasmvm: on_lifecycle(%s): %w", s, err))
		}
	})
}

// Close releases the wazero runtime and stops the loop. Closing the
// runtime aborts any in-flight guest call, so a wedged guest cannot
// hold teardown hostage.
func (v *VM) Close(ctx context.Context) error {
	var closeErr error
	v.closeOnce.Do(func() {
		if v.rt != nil {
			closeErr = v.rt.Close(ctx)
		}
		close(v.quit)
		v.faultOnce.Do(func() { close(v.fault) })
	})
	select {
	case <-v.done:
		return closeErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Fault yields the guest's fatal error, if any.
func (v *VM) Fault() <-chan error { return v.fault }

// readBytes copies (ptr, len) out of guest memory.
func (v *VM) readBytes(ptr, size uint32) ([]byte, error) {
	data, ok := v.mem.Read(ptr, size)
	if !ok {
		return nil, fmt.Errorf("wasmvm: read [%d:%d] out of range", ptr, ptr+size)
	}
	out := make([]byte, size)
	copy(out, data)
	return out, nil
}

// readValue decodes a JSON wire payload out of guest memory.
func (v *VM) readValue(ptr, size uint32) (payload.Value, error) {
	data, err := v.readBytes(ptr, size)
	if err != nil {
		return payload.Null(), err
	}
	var val payload.Value
	if err := val.UnmarshalJSON(data); err != nil {
		return payload.Null(), err
	}
	return val, nil
}

// writeBytes places data into guest memory through bridge_alloc and
// returns the (ptr, len) pair packed as ptr<<32|len.
func (v *VM) writeBytes(ctx context.Context, data []byte) (uint64, error) {
	if v.alloc == nil {
		return 0, fmt.Errorf("wasmvm: guest does not export %s", guestAlloc)
	}
	res, err := v.alloc.Call(ctx, uint64(len(data)))
	if err != nil {
		return 0, fmt.Errorf("wasmvm: %s: %w", guestAlloc, err)
	}
	ptr := uint32(res[0])
	if !v.mem.Write(ptr, data) {
		return 0, fmt.Errorf("wasmvm: write [%d:%d] out of range", ptr, ptr+uint32(len(data)))
	}
	return uint64(ptr)<<32 | uint64(uint32(len(data))), nil
}

// writeValue places a payload's JSON wire form into guest memory.
func (v *VM) writeValue(ctx context.Context, val payload.Value) (uint64, error) {
	data, err := val.MarshalJSON()
	if err != nil {
		return 0, err
	}
	return v.writeBytes(ctx, data)
}

// hostErr logs a failed host call and returns the error status.
func (v *VM) hostErr(op string, err error) uint64 {
	v.log.Warn("host call failed", zap.String("op", op), zap.Error(err))
	return statusError
}

var (
	i32 = api.ValueTypeI32
	i64 = api.ValueTypeI64
)

// instantiateHostModule builds the bridge host module the guest imports.
func (v *VM) instantiateHostModule(ctx context.Context) error {
	builder := v.rt.NewHostModuleBuilder(hostModule)

	// send(chan_ptr, chan_len, payload_ptr, payload_len) -> status
	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			channel, err := v.readBytes(uint32(stack[0]), uint32(stack[1]))
			if err != nil {
				stack[0] = v.hostErr("send", err)
				return
			}
			val, err := v.readValue(uint32(stack[2]), uint32(stack[3]))
			if err != nil {
				stack[0] = v.hostErr("send", err)
				return
			}
			if err := v.bridge.Send(string(channel), val); err != nil {
				stack[0] = v.hostErr("send", err)
				return
			}
			stack[0] = statusOK
		}), []api.ValueType{i32, i32, i32, i32}, []api.ValueType{i32}).
		Export("send")

	// request_permission(name_ptr, name_len) -> request_id (0 on error)
	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			name, err := v.readBytes(uint32(stack[0]), uint32(stack[1]))
			if err != nil {
				v.hostErr("request_permission", err)
				stack[0] = 0
				return
			}
			tk, err := v.bridge.RequestPermission(string(name))
			if err != nil {
				v.hostErr("request_permission", err)
				stack[0] = 0
				return
			}
			go func() {
				<-tk.Done()
				granted := uint64(0)
				if tk.Outcome().Allowed() {
					granted = 1
				}
				v.post(func() {
					fn := v.exports[guestOnPermission]
					if fn == nil {
						return
					}
					if _, err := fn.Call(context.Background(), tk.ID(), granted); err != nil {
						v.fail(fmt.Errorf("wasmvm: %s(%d): %w", guestOnPermission, tk.ID(), err))
					}
				})
			}()
			stack[0] = tk.ID()
		}), []api.ValueType{i32, i32}, []api.ValueType{i64}).
		Export("request_permission")

	// alloc_handle(kind, payload_ptr, payload_len) -> handle id (0 on error)
	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			kind, err := parseKind(uint32(stack[0]))
			if err != nil {
				v.hostErr("alloc_handle", err)
				stack[0] = 0
				return
			}
			val, err := v.readValue(uint32(stack[1]), uint32(stack[2]))
			if err != nil {
				v.hostErr("alloc_handle", err)
				stack[0] = 0
				return
			}
			id, err := v.bridge.AllocHandle(kind, val)
			if err != nil {
				v.hostErr("alloc_handle", err)
				stack[0] = 0
				return
			}
			stack[0] = uint64(id)
		}), []api.ValueType{i32, i32, i32}, []api.ValueType{i64}).
		Export("alloc_handle")

	// deref_handle(id) -> ptr<<32|len of the referent's wire form, 0 when
	// absent or on error. The referent lands in bridge_alloc'd memory.
	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(ctx context.Context, _ api.Module, stack []uint64) {
			ref, present, err := v.bridge.Deref(handle.ID(stack[0]))
			if err != nil {
				v.hostErr("deref_handle", err)
				stack[0] = 0
				return
			}
			if !present {
				stack[0] = 0
				return
			}
			packed, err := v.writeValue(ctx, payload.From(ref))
			if err != nil {
				v.hostErr("deref_handle", err)
				stack[0] = 0
				return
			}
			stack[0] = packed
		}), []api.ValueType{i64}, []api.ValueType{i64}).
		Export("deref_handle")

	// release_handle(id) -> status
	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			if err := v.bridge.Release(handle.ID(stack[0])); err != nil {
				stack[0] = v.hostErr("release_handle", err)
				return
			}
			stack[0] = statusOK
		}), []api.ValueType{i64}, []api.ValueType{i32}).
		Export("release_handle")

	// render(tree_ptr, tree_len) -> status
	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			tree, err := v.readValue(uint32(stack[0]), uint32(stack[1]))
			if err != nil {
				stack[0] = v.hostErr("render", err)
				return
			}
			if err := v.bridge.Render(tree); err != nil {
				stack[0] = v.hostErr("render", err)
				return
			}
			stack[0] = statusOK
		}), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("render")

	// subscribe(chan_ptr, chan_len) -> status. Deliveries call the
	// guest's on_message export on the loop goroutine.
	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			channel, err := v.readBytes(uint32(stack[0]), uint32(stack[1]))
			if err != nil {
				stack[0] = v.hostErr("subscribe", err)
				return
			}
			name := string(channel)
			err = v.bridge.Subscribe(name, func(p payload.Value) {
				v.post(func() { v.deliver(name, p) })
			})
			if err != nil {
				stack[0] = v.hostErr("subscribe", err)
				return
			}
			stack[0] = statusOK
		}), []api.ValueType{i32, i32}, []api.ValueType{i32}).
		Export("subscribe")

	// log(level, msg_ptr, msg_len)
	builder = builder.NewFunctionBuilder().
		WithGoModuleFunction(api.GoModuleFunc(func(_ context.Context, _ api.Module, stack []uint64) {
			msg, err := v.readBytes(uint32(stack[1]), uint32(stack[2]))
			if err != nil {
				v.hostErr("log", err)
				return
			}
			switch uint32(stack[0]) {
			case 0:
				v.log.Debug("guest log", zap.ByteString("msg", msg))
			case 2:
				v.log.Warn("guest log", zap.ByteString("msg", msg))
			case 3:
				v.log.Error("guest log", zap.ByteString("msg", msg))
			default:
				v.log.Info("guest log", zap.ByteString("msg", msg))
			}
		}), []api.ValueType{i32, i32, i32}, nil).
		Export("log")

	_, err := builder.Instantiate(ctx)
	return err
}

// deliver hands one channel message to the guest. Runs on the loop.
func (v *VM) deliver(channel string, p payload.Value) {
	fn := v.exports[guestOnMessage]
	if fn == nil {
		v.log.Warn("dropping delivery, guest exports no handler",
			zap.String("channel", channel), zap.String("export", guestOnMessage))
		return
	}
	ctx := context.Background()
	chanPacked, err := v.writeBytes(ctx, []byte(channel))
	if err != nil {
		v.fail(fmt.Errorf("wasmvm: delivering on %q: %w", channel, err))
		return
	}
	valPacked, err := v.writeValue(ctx, p)
	if err != nil {
		v.fail(fmt.Errorf("wasmvm: delivering on %q: %w", channel, err))
		return
	}
	_, err = fn.Call(ctx,
		chanPacked>>32, chanPacked&0xFFFFFFFF,
		valPacked>>32, valPacked&0xFFFFFFFF,
	)
	if err != nil {
		v.fail(fmt.Errorf("wasmvm: %s on %q: %w", guestOnMessage, channel, err))
	}
}

// Handle kind ordinals in the guest ABI.
func parseKind(code uint32) (handle.Kind, error) {
	switch code {
	case 0:
		return handle.Local, nil
	case 1:
		return handle.Global, nil
	case 2:
		return handle.Weak, nil
	}
	return 0, fmt.Errorf("wasmvm: unknown handle kind %d", code)
}
