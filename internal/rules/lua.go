package rules

import (
	"fmt"

	"github.com/Shopify/go-lua"
	"github.com/nvandessel/baynet/internal/network"
)

// luaVM evaluates script rules. One VM serves every script rule of a single
// Apply call, so globals a script defines are visible to later scripts in
// the same pass and discarded afterwards.
//
// Scripts see these host functions:
//
//	prob(id)              current probability
//	value(id)             root value (category index for categorical nodes)
//	base(id)              baseline probability
//	set(id, p)            assign a probability (clamped)
//	influence(id)         sum of parent probability * arc weight
//	combine(base, infl)   the engine's combination formula
//	layer(id, infl)       add an interaction term to id's probability
//	clamp(x)              limit x to [0, 1]
type luaVM struct {
	state *lua.State
	idx   *network.Index
	eng   Engine

	// readOnly is set while a condition is evaluated; set and layer refuse
	// to write then.
	readOnly bool
}

func newLuaVM(idx *network.Index, eng Engine) *luaVM {
	vm := &luaVM{state: lua.NewState(), idx: idx, eng: eng}
	lua.OpenLibraries(vm.state)
	vm.register()
	return vm
}

func (vm *luaVM) close() {
	vm.state = nil
}

func (vm *luaVM) register() {
	l := vm.state
	l.Register("prob", func(l *lua.State) int {
		l.PushNumber(vm.node(l).Probability)
		return 1
	})
	l.Register("value", func(l *lua.State) int {
		l.PushNumber(vm.node(l).Value)
		return 1
	})
	l.Register("base", func(l *lua.State) int {
		l.PushNumber(vm.node(l).Base)
		return 1
	})
	l.Register("set", func(l *lua.State) int {
		if vm.readOnly {
			lua.Errorf(l, "set: not allowed in a condition")
		}
		node := vm.node(l)
		if !node.IsLocked() {
			node.Probability = Clamp(lua.CheckNumber(l, 2))
		}
		return 0
	})
	l.Register("influence", func(l *lua.State) int {
		if vm.eng == nil {
			lua.Errorf(l, "influence: no engine bound")
		}
		l.PushNumber(vm.eng.Influence(vm.idx, vm.node(l).ID))
		return 1
	})
	l.Register("combine", func(l *lua.State) int {
		if vm.eng == nil {
			lua.Errorf(l, "combine: no engine bound")
		}
		l.PushNumber(vm.eng.Combine(lua.CheckNumber(l, 1), lua.CheckNumber(l, 2)))
		return 1
	})
	l.Register("layer", func(l *lua.State) int {
		if vm.readOnly {
			lua.Errorf(l, "layer: not allowed in a condition")
		}
		node := vm.node(l)
		if !node.IsLocked() {
			node.Probability = Clamp(Layer(node.Probability, node.Base, lua.CheckNumber(l, 2)))
		}
		return 0
	})
	l.Register("clamp", func(l *lua.State) int {
		l.PushNumber(Clamp(lua.CheckNumber(l, 1)))
		return 1
	})
}

// node resolves the id passed as the first argument or raises a Lua error.
func (vm *luaVM) node(l *lua.State) *network.Node {
	id := lua.CheckString(l, 1)
	n := vm.idx.Node(id)
	if n == nil {
		lua.Errorf(l, "unknown node %s", id)
	}
	return n
}

// run evaluates the script's predicate and, when it holds, its action.
func (vm *luaVM) run(s *Script) (bool, error) {
	if s.When != "" {
		ok, err := vm.eval(s.When)
		if err != nil {
			return false, fmt.Errorf("script condition: %w", err)
		}
		if !ok {
			return false, nil
		}
	}
	if err := lua.DoString(vm.state, s.Do); err != nil {
		return true, fmt.Errorf("script action: %w", err)
	}
	return true, nil
}

// eval evaluates a condition expression with writes disabled.
func (vm *luaVM) eval(expr string) (bool, error) {
	l := vm.state
	vm.readOnly = true
	defer func() { vm.readOnly = false }()
	if err := lua.LoadString(l, "return ("+expr+")"); err != nil {
		return false, err
	}
	if err := l.ProtectedCall(0, 1, 0); err != nil {
		return false, err
	}
	ok := l.ToBoolean(-1)
	l.Pop(1)
	return ok, nil
}
