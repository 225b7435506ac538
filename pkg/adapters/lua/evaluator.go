package lua

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/aretw0/fsmlink/pkg/domain"
	lua "github.com/yuin/gopher-lua"
)

// Evaluator runs scripts on gopher-lua. Every evaluation gets a fresh,
// sandboxed interpreter so scripts cannot leak state into each other; the
// only state is what the scope carries.
type Evaluator struct {
	timeout time.Duration
}

// Option configures the Evaluator.
type Option func(*Evaluator)

// WithTimeout bounds the wall time of a single evaluation.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		e.timeout = d
	}
}

// New creates a Lua evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs script against scope. Expressions ("value == 1") and chunks
// ("output('x', 1)") are both accepted; the first returned value is the result.
func (e *Evaluator) Evaluate(ctx context.Context, script string, scope *domain.Scope) (any, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	defer L.Close()

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	L.SetContext(ctx)

	if err := openLibs(L); err != nil {
		return nil, err
	}
	pushed := bind(L, scope)

	fn, err := L.LoadString("return " + script)
	if err != nil {
		fn, err = L.LoadString(script)
		if err != nil {
			return nil, fmt.Errorf("compile: %w", err)
		}
	}

	L.Push(fn)
	if err := L.PCall(0, lua.MultRet, nil); err != nil {
		return nil, err
	}

	var result any
	if L.GetTop() > 0 {
		result = fromLua(L.Get(1))
	}

	// Pick up internals assigned as plain globals ("count = count + 1").
	for name, before := range pushed {
		if v := L.GetGlobal(name); v != lua.LNil && v != before {
			scope.Internals[name] = v.String()
		}
	}

	return result, nil
}

func openLibs(L *lua.LState) error {
	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return fmt.Errorf("open %s: %w", lib.name, err)
		}
	}
	// Scripts have no business loading code from disk.
	L.SetGlobal("dofile", lua.LNil)
	L.SetGlobal("loadfile", lua.LNil)
	return nil
}

// bind exposes the scope to the script and returns the values pushed for internals.
func bind(L *lua.LState, scope *domain.Scope) map[string]lua.LValue {
	for name, v := range scope.Inputs {
		L.SetGlobal(name, toLua(v))
	}
	pushed := make(map[string]lua.LValue, len(scope.Internals))
	for name, v := range scope.Internals {
		lv := toLua(v)
		pushed[name] = lv
		L.SetGlobal(name, lv)
	}
	L.SetGlobal("value", toLua(scope.Value))

	L.SetGlobal("output", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		v := L.Get(2)
		scope.Output(name, v.String())
		if _, ok := scope.Internals[name]; ok {
			L.SetGlobal(name, v)
		}
		return 0
	}))
	L.SetGlobal("elapsed", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LNumber(scope.Elapsed().Milliseconds()))
		return 1
	}))
	L.SetGlobal("defined", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LBool(scope.Defined(L.CheckString(1))))
		return 1
	}))
	return pushed
}

// toLua pushes binding strings with their natural Lua type so guards like
// "value == 1" compare numbers, not strings.
func toLua(s string) lua.LValue {
	switch s {
	case "true":
		return lua.LTrue
	case "false":
		return lua.LFalse
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return lua.LNumber(f)
	}
	return lua.LString(s)
}

func fromLua(v lua.LValue) any {
	switch lv := v.(type) {
	case lua.LBool:
		return bool(lv)
	case lua.LNumber:
		return float64(lv)
	case lua.LString:
		return string(lv)
	case *lua.LNilType:
		return nil
	default:
		return v.String()
	}
}
