package sandbox

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/dop251/goja"
)

var errUnsettled = &RuntimeError{Name: "Error", Message: "tool finished without settling its result"}

// job runs on the vm goroutine to settle a bridge promise
type job func() error

// execution is the state of one call: a fresh goja runtime and everything
// caller code can reach. Only the goroutine running it touches the runtime.
type execution struct {
	ctx      context.Context
	vm       *goja.Runtime
	intr     *intrinsics
	input    *ExecuteInput
	gateway  ResourceGateway
	observer Observer
	config   Config

	resources map[string]ResourceMapping

	jobs     chan job
	done     chan struct{}
	inflight int
	calls    int

	logs      [][]interface{}
	truncated bool
	logBudget int64 // values left for console output; negative means unlimited
}

func newExecution(ctx context.Context, input *ExecuteInput, cfg Config, gw ResourceGateway, obs Observer) *execution {
	vm := goja.New()
	if cfg.MaxCallStack > 0 {
		vm.SetMaxCallStackSize(cfg.MaxCallStack)
	}

	resources := make(map[string]ResourceMapping, len(input.Context.Resources))
	for _, r := range input.Context.Resources {
		resources[r.Name] = r
	}

	e := &execution{
		ctx:       ctx,
		vm:        vm,
		input:     input,
		gateway:   gw,
		observer:  obs,
		config:    cfg,
		resources: resources,
		jobs:      make(chan job),
		done:      make(chan struct{}),
		logs:      [][]interface{}{},
		logBudget: -1,
	}
	if cfg.MaxResultValues > 0 {
		e.logBudget = int64(cfg.MaxResultValues)
	}
	return e
}

// run compiles and executes the tool, waits for its promise and returns the
// sanitized value
func (e *execution) run() (interface{}, error) {
	defer close(e.done)

	prg, err := compileTool(e.input.Code)
	if err != nil {
		return nil, err
	}

	var value interface{}
	err = runGuarded(e.vm, func() error {
		if err := e.setup(); err != nil {
			return err
		}

		fnVal, err := e.vm.RunProgram(prg)
		if err != nil {
			return err
		}
		fn, ok := goja.AssertFunction(fnVal)
		if !ok {
			return &CompileError{Message: "code did not compile to a function"}
		}

		ret, err := fn(goja.Undefined())
		if err != nil {
			return err
		}
		promise, ok := ret.Export().(*goja.Promise)
		if !ok {
			return &RuntimeError{Name: "Error", Message: "tool did not return a promise"}
		}

		if err := e.await(promise); err != nil {
			return err
		}

		if promise.State() == goja.PromiseStateRejected {
			return e.thrown(promise.Result())
		}
		value, err = newSanitizer(e.ctx, e.vm, e.intr, int64(e.config.MaxResultValues)).sanitize(promise.Result())
		return err
	})
	if err != nil {
		return nil, e.classify(err)
	}
	return value, nil
}

// setup binds params, the optional alias, context and console
func (e *execution) setup() error {
	intr, err := captureIntrinsics(e.vm)
	if err != nil {
		return err
	}
	e.intr = intr

	params, err := e.copyIn(e.input.Params)
	if err != nil {
		return err
	}
	if err := e.vm.Set("params", params); err != nil {
		return err
	}
	if e.input.ParamAlias != AliasNone {
		if err := e.vm.Set(string(e.input.ParamAlias), params); err != nil {
			return err
		}
	}

	ctxObj, err := e.contextObject()
	if err != nil {
		return err
	}
	if err := e.vm.Set("context", ctxObj); err != nil {
		return err
	}

	console := e.vm.NewObject()
	for _, level := range []string{"log", "info", "warn", "error", "debug"} {
		if err := console.Set(level, e.consoleFunc()); err != nil {
			return err
		}
	}
	return e.vm.Set("console", console)
}

// copyIn deep-copies a host value into the sandbox through JSON so caller
// code never holds a reference to host memory. nil becomes {}.
func (e *execution) copyIn(v interface{}) (goja.Value, error) {
	if v == nil {
		return e.vm.NewObject(), nil
	}
	raw, err := sonic.Marshal(v)
	if err != nil {
		return nil, &ValidationError{Field: "params", Message: err.Error()}
	}
	return e.intr.jsonParse(goja.Undefined(), e.vm.ToValue(string(raw)))
}

// contextObject builds { resources: { name: accessor } } from the prelude
func (e *execution) contextObject() (*goja.Object, error) {
	factoryVal, err := e.vm.RunProgram(prelude)
	if err != nil {
		return nil, err
	}
	factory, ok := goja.AssertFunction(factoryVal)
	if !ok {
		return nil, errIntrinsic("prelude")
	}
	builders, err := factory(goja.Undefined(),
		e.vm.ToValue(e.bridge),
		e.intr.parseFn,
		e.intr.stringifyFn,
	)
	if err != nil {
		return nil, err
	}
	builderObj := builders.ToObject(e.vm)

	resources := e.vm.NewObject()
	for _, r := range e.input.Context.Resources {
		accessor, _ := AccessorFor(r.Type)
		build, ok := goja.AssertFunction(builderObj.Get(accessor.Factory()))
		if !ok {
			return nil, errIntrinsic("prelude." + accessor.Factory())
		}
		obj, err := build(goja.Undefined(), e.vm.ToValue(r.Name))
		if err != nil {
			return nil, err
		}
		if err := resources.Set(r.Name, obj); err != nil {
			return nil, err
		}
	}

	ctxObj := e.vm.NewObject()
	if err := ctxObj.Set("resources", resources); err != nil {
		return nil, err
	}
	return ctxObj, nil
}

// bridge is called by prelude accessors with (name, operation, payloadJSON).
// It returns a promise settled by a job posted back to the vm goroutine.
func (e *execution) bridge(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	operation := call.Argument(1).String()
	payload := call.Argument(2).String()

	promise, resolve, reject := e.vm.NewPromise()

	mapping, ok := e.resources[name]
	if !ok {
		_ = reject(e.newError(fmt.Sprintf("resource %q is not bound", name)))
		return e.vm.ToValue(promise)
	}
	accessor, _ := AccessorFor(mapping.Type)
	if !accessor.Allows(operation) {
		_ = reject(e.newError(fmt.Sprintf("operation %q is not supported by %s resources", operation, mapping.Type)))
		return e.vm.ToValue(promise)
	}
	if e.gateway == nil {
		_ = reject(e.newError("resource gateway is not configured"))
		return e.vm.ToValue(promise)
	}
	if e.config.MaxBridgeCalls > 0 && e.calls >= e.config.MaxBridgeCalls {
		_ = reject(e.newError(fmt.Sprintf("resource call limit of %d reached", e.config.MaxBridgeCalls)))
		return e.vm.ToValue(promise)
	}

	e.calls++
	e.inflight++

	req := QueryRequest{
		OrganizationID: e.input.OrganizationID,
		EnvironmentID:  e.input.EnvironmentID,
		ResourceID:     mapping.ResourceID,
		ResourceName:   mapping.Name,
		ResourceType:   mapping.Type,
		Operation:      operation,
		Payload:        []byte(payload),
	}

	go func() {
		data, err := e.gateway.Query(e.ctx, req)
		if err != nil {
			e.observer.BridgeCalled(req.ResourceType, "error")
			e.post(func() error { return reject(e.newError(err.Error())) })
			return
		}
		e.observer.BridgeCalled(req.ResourceType, "success")
		e.post(func() error { return resolve(string(data)) })
	}()

	return e.vm.ToValue(promise)
}

// post hands a job to the vm goroutine unless the call already finished
func (e *execution) post(j job) {
	select {
	case e.jobs <- j:
	case <-e.done:
	}
}

// await drives pending bridge jobs until p settles
func (e *execution) await(p *goja.Promise) error {
	for p.State() == goja.PromiseStatePending {
		if e.inflight == 0 {
			return errUnsettled
		}
		select {
		case j := <-e.jobs:
			e.inflight--
			if err := j(); err != nil {
				return err
			}
		case <-e.ctx.Done():
			return context.Cause(e.ctx)
		}
	}
	return nil
}

func (e *execution) consoleFunc() func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		if e.config.MaxLogEntries > 0 && len(e.logs) >= e.config.MaxLogEntries {
			e.truncated = true
			return goja.Undefined()
		}

		// One budget covers every entry of the call
		s := newSanitizer(e.ctx, e.vm, e.intr, int64(e.config.MaxResultValues))
		s.remaining = e.logBudget
		entry := make([]interface{}, len(call.Arguments))
		for i, arg := range call.Arguments {
			v, err := s.sanitize(arg)
			if err != nil {
				if e.ctx.Err() != nil {
					return goja.Undefined()
				}
				v = placeholder(arg)
			}
			entry[i] = v
		}
		e.logBudget = s.remaining
		e.logs = append(e.logs, entry)
		return goja.Undefined()
	}
}

// placeholder stands in for a log argument that cannot be serialized. It
// never stringifies container contents.
func placeholder(v goja.Value) string {
	if obj, ok := v.(*goja.Object); ok {
		return "[object " + obj.ClassName() + "]"
	}
	return v.String()
}

// newError builds an Error with the original constructor so caller code can
// rely on instanceof Error
func (e *execution) newError(msg string) *goja.Object {
	obj, err := e.vm.New(e.intr.errorCtor, e.vm.ToValue(msg))
	if err != nil {
		return e.vm.NewGoError(errors.New(msg))
	}
	return obj
}

// thrown converts a rejection or exception value into a RuntimeError
func (e *execution) thrown(v goja.Value) error {
	if obj, ok := v.(*goja.Object); ok {
		name := obj.Get("name")
		msg := obj.Get("message")
		if e.vm.InstanceOf(obj, e.intr.errorCtor) || isString(msg) {
			re := &RuntimeError{Name: "Error"}
			if isString(name) {
				re.Name = name.String()
			}
			if msg != nil && !goja.IsUndefined(msg) {
				re.Message = msg.String()
			}
			return re
		}
	}
	if v == nil {
		return &RuntimeError{Name: "Error", Message: "undefined"}
	}
	return &RuntimeError{Name: "Error", Message: v.String()}
}

// classify maps whatever stopped the call onto the package error kinds
func (e *execution) classify(err error) error {
	var (
		timeoutErr  *TimeoutError
		memoryErr   *MemoryLimitError
		shutdownErr *ShutdownError
		compileErr  *CompileError
		runtimeErr  *RuntimeError
		validErr    *ValidationError
		overflow    *goja.StackOverflowError
		exception   *goja.Exception
	)

	switch {
	case errors.As(err, &timeoutErr):
		return timeoutErr
	case errors.As(err, &memoryErr):
		return memoryErr
	case errors.As(err, &shutdownErr):
		return shutdownErr
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("execution canceled: %w", err)
	case errors.As(err, &compileErr):
		return compileErr
	case errors.As(err, &runtimeErr):
		return runtimeErr
	case errors.As(err, &validErr):
		return validErr
	case errors.As(err, &overflow):
		return &RuntimeError{Name: "RangeError", Message: "Maximum call stack size exceeded"}
	case errors.As(err, &exception):
		var out error
		if gerr := runGuarded(e.vm, func() error {
			out = e.thrown(exception.Value())
			return nil
		}); gerr != nil {
			return &RuntimeError{Name: "Error", Message: exception.Error()}
		}
		return out
	default:
		return &RuntimeError{Name: "Error", Message: err.Error()}
	}
}

func isString(v goja.Value) bool {
	return v != nil && goja.IsString(v)
}
