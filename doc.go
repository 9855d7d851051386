// Package vmbridge is a cross-runtime bridge between embedded guest VMs
// and their host application.
//
// A session pairs one guest VM with the host's capabilities and carries
// all traffic between them: channel messages, permission round trips,
// foreign-object handles, lifecycle signals, and declarative widget
// trees. Guests stay isolated: they never touch host memory or the UI
// directly, only the bridge surface their adapter exposes.
//
// # Architecture Overview
//
// The module is organized into packages with distinct responsibilities:
//
//	vm-bridge/           Root package (this overview)
//	├── session/         Session manager and the bridge implementation
//	├── bus/             Channel message bus with per-channel FIFO delivery
//	├── permission/      Async permission request correlator
//	├── handle/          Reference handle table (local/global/weak)
//	├── lifecycle/       Session lifecycle state machine
//	├── render/          Widget tree renderer and event dispatcher
//	├── payload/         Tagged-union interchange values and wire codec
//	├── errors/          Structured error types for diagnostics
//	└── vm/              Guest adapter interfaces
//	    ├── scriptvm/    JavaScript guests (goja)
//	    └── wasmvm/      WebAssembly guests (wazero)
//
// # Quick Start
//
// Embed a JavaScript guest:
//
//	manager := session.NewManager(nil, logger)
//	defer manager.Close(ctx)
//
//	sess, err := manager.Create(ctx, session.Config{
//	    VM:   scriptvm.Factory(scriptvm.Config{Source: source}),
//	    Host: host, // your session.Capabilities implementation
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sess.Transition(lifecycle.Started)
//	sess.Transition(lifecycle.Resumed)
//
// The guest sees a single bridge object and talks back through it:
//
//	bridge.subscribe("host-input", function (msg) {
//	    bridge.send("echo", msg);
//	});
//
// # Thread Safety
//
// Manager, Session, Bus, Correlator, and the handle Table are safe for
// concurrent use. Guest runtimes are not: each adapter confines its
// runtime to one loop goroutine and re-posts host-originated work onto
// it.
//
// # Teardown
//
// Destroying a session is idempotent and total: pending permission
// requests resolve as timed out, queued channel messages addressed to
// the session are discarded, remaining handles are force-released with
// a leak diagnostic per global handle, and the guest VM is closed.
// A fatal guest fault triggers the same teardown.
package vmbridge
