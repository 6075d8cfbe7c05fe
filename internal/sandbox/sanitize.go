package sandbox

import (
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"time"

	"github.com/dop251/goja"
)

const isoMillis = "2006-01-02T15:04:05.000Z"

// maxSafeInteger is 2^53, the largest magnitude a float64 holds exactly
const maxSafeInteger = 1 << 53

// ctxCheckInterval is how many values are converted between deadline checks
const ctxCheckInterval = 1024

// intrinsics are builtins captured before caller code runs so later
// monkey-patching of globals cannot change host-side behavior
type intrinsics struct {
	errorCtor  *goja.Object
	uint8Array *goja.Object
	mapCtor    *goja.Object
	setCtor    *goja.Object
	boxes      []boxed
	arrayFrom  goja.Callable
	jsonParse  goja.Callable

	// raw function values handed to the prelude
	parseFn     goja.Value
	stringifyFn goja.Value
}

// boxed is a primitive wrapper constructor and its prototype valueOf
type boxed struct {
	ctor    *goja.Object
	valueOf goja.Callable
}

func captureIntrinsics(vm *goja.Runtime) (*intrinsics, error) {
	in := &intrinsics{
		errorCtor:  vm.Get("Error").ToObject(vm),
		uint8Array: vm.Get("Uint8Array").ToObject(vm),
		mapCtor:    vm.Get("Map").ToObject(vm),
		setCtor:    vm.Get("Set").ToObject(vm),
	}

	for _, name := range []string{"Number", "String", "Boolean"} {
		ctor := vm.Get(name).ToObject(vm)
		valueOf, ok := goja.AssertFunction(ctor.Get("prototype").ToObject(vm).Get("valueOf"))
		if !ok {
			return nil, errIntrinsic(name + ".prototype.valueOf")
		}
		in.boxes = append(in.boxes, boxed{ctor: ctor, valueOf: valueOf})
	}

	var ok bool
	if in.arrayFrom, ok = goja.AssertFunction(vm.Get("Array").ToObject(vm).Get("from")); !ok {
		return nil, errIntrinsic("Array.from")
	}
	json := vm.Get("JSON").ToObject(vm)
	in.parseFn = json.Get("parse")
	in.stringifyFn = json.Get("stringify")
	if in.jsonParse, ok = goja.AssertFunction(in.parseFn); !ok {
		return nil, errIntrinsic("JSON.parse")
	}
	if _, ok = goja.AssertFunction(in.stringifyFn); !ok {
		return nil, errIntrinsic("JSON.stringify")
	}
	return in, nil
}

func errIntrinsic(name string) error {
	return &RuntimeError{Name: "InternalError", Message: name + " is not callable"}
}

// sanitizer converts goja values into plain Go values that encode as JSON:
// map[string]interface{}, []interface{}, string, int64, float64, bool or nil.
// Must be called on the goroutine that owns vm.
type sanitizer struct {
	ctx  context.Context
	vm   *goja.Runtime
	intr *intrinsics
	path map[*goja.Object]struct{}

	// values left to convert; negative means unlimited
	remaining int64
	limit     int64
	visited   int64
}

func newSanitizer(ctx context.Context, vm *goja.Runtime, intr *intrinsics, limit int64) *sanitizer {
	remaining := limit
	if limit <= 0 {
		remaining = -1
	}
	return &sanitizer{
		ctx:       ctx,
		vm:        vm,
		intr:      intr,
		path:      make(map[*goja.Object]struct{}),
		remaining: remaining,
		limit:     limit,
	}
}

// sanitize converts a top-level value. Values JSON drops at the top level become nil.
func (s *sanitizer) sanitize(v goja.Value) (interface{}, error) {
	out, _, err := s.convert("", v)
	return out, err
}

// spend charges n values against the budget and checks for cancellation
func (s *sanitizer) spend(n int64) error {
	if s.remaining >= 0 {
		if n > s.remaining {
			return s.exceeded()
		}
		s.remaining -= n
	}
	s.visited += n
	if s.visited >= ctxCheckInterval {
		s.visited = 0
		if s.ctx.Err() != nil {
			return context.Cause(s.ctx)
		}
	}
	return nil
}

func (s *sanitizer) exceeded() error {
	return &RuntimeError{Name: "RangeError", Message: fmt.Sprintf("result exceeds %d values", s.limit)}
}

// convert returns the converted value and whether it should be kept as an
// object property. Arrays keep dropped values as nil.
func (s *sanitizer) convert(key string, v goja.Value) (interface{}, bool, error) {
	if err := s.spend(1); err != nil {
		return nil, false, err
	}
	if v == nil || goja.IsUndefined(v) {
		return nil, false, nil
	}
	if goja.IsNull(v) {
		return nil, true, nil
	}
	if _, ok := v.(*goja.Symbol); ok {
		return nil, false, nil
	}

	obj, ok := v.(*goja.Object)
	if !ok {
		out, err := scalar(v.Export())
		return out, true, err
	}

	if obj.ClassName() == "Date" {
		t, ok := obj.Export().(time.Time)
		if !ok {
			return nil, true, nil
		}
		return isoString(t), true, nil
	}

	if s.vm.InstanceOf(obj, s.intr.mapCtor) || s.vm.InstanceOf(obj, s.intr.setCtor) {
		entries, err := s.intr.arrayFrom(goja.Undefined(), obj)
		if err != nil {
			return nil, false, err
		}
		out, err := s.withPath(obj, func() (interface{}, error) {
			return s.array(entries.ToObject(s.vm))
		})
		return out, true, err
	}

	for _, box := range s.intr.boxes {
		if !s.vm.InstanceOf(obj, box.ctor) {
			continue
		}
		// Objects that only inherit from the wrapper prototype fall through
		if prim, err := box.valueOf(obj); err == nil {
			out, err := scalar(prim.Export())
			return out, true, err
		}
		break
	}

	if s.vm.InstanceOf(obj, s.intr.uint8Array) {
		b, _ := obj.Export().([]byte)
		return base64.StdEncoding.EncodeToString(b), true, nil
	}

	if toJSON, ok := goja.AssertFunction(obj.Get("toJSON")); ok {
		replaced, err := toJSON(obj, s.vm.ToValue(key))
		if err != nil {
			return nil, false, err
		}
		if replaced != obj {
			return s.convert(key, replaced)
		}
	}

	if _, ok := goja.AssertFunction(obj); ok {
		return nil, false, nil
	}

	out, err := s.withPath(obj, func() (interface{}, error) {
		if obj.ClassName() == "Array" {
			return s.array(obj)
		}
		return s.object(obj)
	})
	return out, true, err
}

func (s *sanitizer) withPath(obj *goja.Object, fn func() (interface{}, error)) (interface{}, error) {
	if _, cyclic := s.path[obj]; cyclic {
		return nil, &RuntimeError{Name: "TypeError", Message: "Converting circular structure to JSON"}
	}
	s.path[obj] = struct{}{}
	defer delete(s.path, obj)
	return fn()
}

func (s *sanitizer) array(obj *goja.Object) (interface{}, error) {
	n := obj.Get("length").ToInteger()
	if s.remaining >= 0 && n > s.remaining {
		return nil, s.exceeded()
	}
	out := make([]interface{}, 0, min(n, ctxCheckInterval))
	for i := int64(0); i < n; i++ {
		idx := strconv.FormatInt(i, 10)
		v, _, err := s.convert(idx, obj.Get(idx))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *sanitizer) object(obj *goja.Object) (interface{}, error) {
	keys := obj.Keys()
	out := make(map[string]interface{}, min(len(keys), ctxCheckInterval))
	for _, k := range keys {
		v, keep, err := s.convert(k, obj.Get(k))
		if err != nil {
			return nil, err
		}
		if keep {
			out[k] = v
		}
	}
	return out, nil
}

// isoString formats t like Date.prototype.toISOString, including the
// six-digit signed form for years outside 0000-9999
func isoString(t time.Time) string {
	t = t.UTC()
	year := t.Year()
	if year >= 0 && year <= 9999 {
		return t.Format(isoMillis)
	}
	sign := '+'
	if year < 0 {
		sign = '-'
		year = -year
	}
	return fmt.Sprintf("%c%06d%s", sign, year, t.Format("-01-02T15:04:05.000Z"))
}

// scalar normalizes an exported primitive. Non-finite numbers become nil and
// integral numbers within the exact float range become int64.
func scalar(v interface{}) (interface{}, error) {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, nil
		}
		if x == math.Trunc(x) && math.Abs(x) <= maxSafeInteger {
			return int64(x), nil
		}
		return x, nil
	case *big.Int:
		return nil, &RuntimeError{Name: "TypeError", Message: "Do not know how to serialize a BigInt"}
	default:
		return x, nil
	}
}

// runGuarded runs fn on the vm goroutine converting JavaScript exceptions and
// uncatchable interrupts into errors
func runGuarded(vm *goja.Runtime, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if e, ok := r.(error); ok {
				err = e
				return
			}
			panic(r)
		}
	}()

	if ex := vm.Try(func() { err = fn() }); ex != nil {
		return ex
	}
	return err
}
