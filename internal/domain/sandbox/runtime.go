package sandbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dop251/goja"
)

// runtime is a single-use goja VM stripped down to its capabilities.
type runtime struct {
	vm *goja.Runtime

	// Intrinsics captured before any user code runs.
	stringify goja.Callable
	then      goja.Callable
}

// newRuntime creates a VM exposing only caps
func newRuntime(config Config, caps Capabilities) (*runtime, error) {
	vm := goja.New()
	if config.MaxCallStackSize > 0 {
		vm.SetMaxCallStackSize(config.MaxCallStackSize)
	}

	r := &runtime{vm: vm}
	if err := r.captureIntrinsics(); err != nil {
		return nil, err
	}
	if err := r.restrictGlobals(caps); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *runtime) captureIntrinsics() error {
	jsonObj := r.vm.Get("JSON").ToObject(r.vm)
	stringify, ok := goja.AssertFunction(jsonObj.Get("stringify"))
	if !ok {
		return errors.New("JSON.stringify is not callable")
	}

	proto := r.vm.Get("Promise").ToObject(r.vm).Get("prototype").ToObject(r.vm)
	then, ok := goja.AssertFunction(proto.Get("then"))
	if !ok {
		return errors.New("Promise.prototype.then is not callable")
	}

	r.stringify = stringify
	r.then = then
	return nil
}

// restrictGlobals deletes every global property not in caps
func (r *runtime) restrictGlobals(caps Capabilities) error {
	global := r.vm.GlobalObject()
	for _, name := range global.GetOwnPropertyNames() {
		if caps.Allows(name) {
			continue
		}
		if err := global.Delete(name); err != nil {
			return fmt.Errorf("removing global %s: %w", name, err)
		}
	}
	return nil
}

// interruptOn interrupts the VM with cause once ctx is done. The returned
// function releases the registration and clears any pending interrupt.
func (r *runtime) interruptOn(ctx context.Context, cause error) func() {
	stop := context.AfterFunc(ctx, func() {
		r.vm.Interrupt(cause)
	})
	return func() {
		stop()
		r.vm.ClearInterrupt()
	}
}

// settle resolves a returned promise. Values that are not promises are
// returned unchanged.
func (r *runtime) settle(ctx context.Context, v goja.Value) (goja.Value, bool, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return v, false, nil
	}
	p, ok := obj.Export().(*goja.Promise)
	if !ok {
		return v, false, nil
	}

	switch p.State() {
	case goja.PromiseStateFulfilled:
		return p.Result(), true, nil
	case goja.PromiseStateRejected:
		return nil, true, &thrownError{message: thrownMessage(r.vm, p.Result())}
	}

	type settlement struct {
		value    goja.Value
		rejected bool
	}
	settled := make(chan settlement, 1)
	onFulfilled := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		settled <- settlement{value: call.Argument(0)}
		return goja.Undefined()
	})
	onRejected := r.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		settled <- settlement{value: call.Argument(0), rejected: true}
		return goja.Undefined()
	})
	if _, err := r.then(obj, onFulfilled, onRejected); err != nil {
		return nil, true, err
	}

	select {
	case s := <-settled:
		if s.rejected {
			return nil, true, &thrownError{message: thrownMessage(r.vm, s.value)}
		}
		return s.value, true, nil
	case <-ctx.Done():
		return nil, true, ctx.Err()
	}
}

// serialize converts v to JSON with the intrinsic stringify.
func (r *runtime) serialize(v goja.Value) (json.RawMessage, error) {
	if v == nil {
		return json.RawMessage("null"), nil
	}
	out, err := r.stringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if out == nil || goja.IsUndefined(out) || goja.IsNull(out) {
		return json.RawMessage("null"), nil
	}
	return json.RawMessage(out.String()), nil
}

// thrownError carries the message of a value thrown by user code.
type thrownError struct {
	message string
}

func (e *thrownError) Error() string {
	return e.message
}

// thrownMessage extracts the message of a thrown value without a stack.
// Reading it may run user getters, so failures fall back to a fixed text.
func thrownMessage(vm *goja.Runtime, v goja.Value) (msg string) {
	msg = "uncaught exception"
	defer func() {
		if recover() != nil {
			msg = "uncaught exception"
		}
	}()

	if v == nil {
		return msg
	}
	if goja.IsUndefined(v) || goja.IsNull(v) {
		return "uncaught exception: " + v.String()
	}
	ex := vm.Try(func() {
		if obj, ok := v.(*goja.Object); ok {
			if m := obj.Get("message"); m != nil && !goja.IsUndefined(m) {
				if s := m.String(); s != "" {
					msg = s
					return
				}
			}
		}
		msg = v.String()
	})
	if ex != nil {
		return "uncaught exception"
	}
	return msg
}
