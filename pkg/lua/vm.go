package lua

import (
	"fmt"

	"github.com/Shopify/go-lua"
)

// VM is a sandboxed lua state. It is not safe for concurrent use; the
// server drives it from the frame goroutine only.
type VM struct {
	state *lua.State
}

func NewVM() *VM {
	state := lua.NewState()
	openSafeLibraries(state)
	return &VM{state: state}
}

func openSafeLibraries(state *lua.State) {
	lua.OpenLibraries(state)

	for _, name := range []string{"io", "os", "debug", "dofile", "loadfile", "require"} {
		state.PushNil()
		state.SetGlobal(name)
	}
}

func (vm *VM) LoadFile(path string) error {
	if err := lua.DoFile(vm.state, path); err != nil {
		return fmt.Errorf("failed to load lua file %s: %w", path, err)
	}
	return nil
}

func (vm *VM) LoadString(code string) error {
	if err := lua.DoString(vm.state, code); err != nil {
		return fmt.Errorf("failed to load lua string: %w", err)
	}
	return nil
}

func (vm *VM) GetGlobalString(name string) (string, error) {
	vm.state.Global(name)
	defer vm.state.Pop(1)
	if !vm.state.IsString(-1) {
		return "", fmt.Errorf("global %s is not a string", name)
	}
	value, _ := vm.state.ToString(-1)
	return value, nil
}

func (vm *VM) HasFunction(name string) bool {
	vm.state.Global(name)
	isFunc := vm.state.IsFunction(-1)
	vm.state.Pop(1)
	return isFunc
}

// Push pushes a go value onto the stack. Maps with string keys and int
// slices become tables.
func (vm *VM) Push(arg any) error {
	s := vm.state
	switch v := arg.(type) {
	case nil:
		s.PushNil()
	case string:
		s.PushString(v)
	case int:
		s.PushInteger(v)
	case float64:
		s.PushNumber(v)
	case bool:
		s.PushBoolean(v)
	case []int:
		s.CreateTable(len(v), 0)
		for i, n := range v {
			s.PushInteger(n)
			s.RawSetInt(-2, i+1)
		}
	case []map[string]any:
		s.CreateTable(len(v), 0)
		for i, m := range v {
			if err := vm.Push(m); err != nil {
				s.Pop(1)
				return err
			}
			s.RawSetInt(-2, i+1)
		}
	case map[string]any:
		s.CreateTable(0, len(v))
		for key, value := range v {
			if err := vm.Push(value); err != nil {
				s.Pop(1)
				return err
			}
			s.SetField(-2, key)
		}
	default:
		return fmt.Errorf("unsupported argument type: %T", arg)
	}
	return nil
}

// CallFunctionWithReturn calls a global function and converts its results.
// Strings, numbers and booleans are returned as go values, anything else as
// nil.
func (vm *VM) CallFunctionWithReturn(name string, numReturns int, args ...any) ([]any, error) {
	top := vm.state.Top()
	vm.state.Global(name)
	if !vm.state.IsFunction(-1) {
		vm.state.SetTop(top)
		return nil, fmt.Errorf("global %s is not a function", name)
	}

	for _, arg := range args {
		if err := vm.Push(arg); err != nil {
			vm.state.SetTop(top)
			return nil, err
		}
	}

	if err := vm.state.ProtectedCall(len(args), numReturns, 0); err != nil {
		vm.state.SetTop(top)
		return nil, fmt.Errorf("[Lua Error] function %s: %w", name, err)
	}

	results := make([]any, numReturns)
	for i := 0; i < numReturns; i++ {
		idx := top + 1 + i
		switch {
		case vm.state.IsNil(idx):
			results[i] = nil
		case vm.state.IsNumber(idx):
			value, _ := vm.state.ToNumber(idx)
			results[i] = value
		case vm.state.IsString(idx):
			value, _ := vm.state.ToString(idx)
			results[i] = value
		case vm.state.IsBoolean(idx):
			results[i] = vm.state.ToBoolean(idx)
		}
	}
	vm.state.SetTop(top)

	return results, nil
}
