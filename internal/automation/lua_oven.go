//go:build !no_automation

package automation

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// registerOvenModule registers the `oven` global table in a Lua state.
func registerOvenModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return ovenOn(L, vm)
	}))

	mod.RawSetString("status", L.NewFunction(func(L *lua.LState) int {
		return ovenStatus(L, e)
	}))

	mod.RawSetString("state", L.NewFunction(func(L *lua.LState) int {
		return ovenState(L, e)
	}))

	mod.RawSetString("remaining", L.NewFunction(func(L *lua.LState) int {
		return ovenRemaining(L, e)
	}))

	mod.RawSetString("refresh", L.NewFunction(func(L *lua.LState) int {
		return ovenRefresh(L, e)
	}))

	mod.RawSetString("list", L.NewFunction(func(L *lua.LState) int {
		return ovenList(L, e)
	}))

	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return ovenAfter(L, vm, e)
	}))

	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		msg := L.CheckString(1)
		e.logger.Info("script log", "msg", msg)
		return 0
	}))

	L.SetGlobal("oven", mod)
}

const maxHandlersPerScript = 100

// oven.on(type, filter, callback)
// filter is a table with optional "account" and "oven_id" keys.
func ovenOn(L *lua.LState, vm *scriptVM) int {
	eventType := L.CheckString(1)
	filterTable := L.CheckTable(2)
	fn := L.CheckFunction(3)

	h := luaEventHandler{
		eventType: eventType,
		fn:        fn,
	}
	if v := filterTable.RawGetString("account"); v != lua.LNil {
		h.account = v.String()
	}
	if v := filterTable.RawGetString("oven_id"); v != lua.LNil {
		h.oven = v.String()
	}

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()

	return 0
}

// oven.status(oven_id) — returns the last snapshot table, or nil.
func ovenStatus(L *lua.LState, e *Engine) int {
	id := L.CheckString(1)

	entry, ok := e.reg.ByOven(id)
	if !ok {
		L.Push(lua.LNil)
		return 1
	}

	snap, success := entry.Coordinator.Last()
	tbl := L.NewTable()
	tbl.RawSetString("account", lua.LString(entry.Account))
	tbl.RawSetString("state", lua.LString(snap.State))
	tbl.RawSetString("remaining_seconds", lua.LNumber(snap.RemainingSeconds))
	tbl.RawSetString("last_update_success", lua.LBool(success))
	tbl.RawSetString("data", goToLua(L, snap.Data))
	L.Push(tbl)
	return 1
}

// oven.state(oven_id) — returns the cook state string, or "unknown".
func ovenState(L *lua.LState, e *Engine) int {
	id := L.CheckString(1)

	if entry, ok := e.reg.ByOven(id); ok {
		snap, _ := entry.Coordinator.Last()
		if snap.State != "" {
			L.Push(lua.LString(snap.State))
			return 1
		}
	}
	L.Push(lua.LString("unknown"))
	return 1
}

// oven.remaining(oven_id) — returns remaining cook seconds, or 0.
func ovenRemaining(L *lua.LState, e *Engine) int {
	id := L.CheckString(1)

	if entry, ok := e.reg.ByOven(id); ok {
		snap, _ := entry.Coordinator.Last()
		L.Push(lua.LNumber(snap.RemainingSeconds))
		return 1
	}
	L.Push(lua.LNumber(0))
	return 1
}

// oven.refresh(oven_id) — requests an immediate poll through the poller so
// update cycles stay serialized.
func ovenRefresh(L *lua.LState, e *Engine) int {
	id := L.CheckString(1)

	if entry, ok := e.reg.ByOven(id); ok && entry.Poller != nil {
		entry.Poller.Kick()
	} else {
		e.logger.Warn("oven.refresh: oven not polled", "oven", id)
	}
	return 0
}

// oven.list() — returns a table of {account, oven_id, state} per account.
func ovenList(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for i, entry := range e.reg.List() {
		snap, _ := entry.Coordinator.Last()
		row := L.NewTable()
		row.RawSetString("account", lua.LString(entry.Account))
		row.RawSetString("oven_id", lua.LString(entry.Coordinator.OvenID()))
		row.RawSetString("state", lua.LString(snap.State))
		tbl.RawSetInt(i+1, row)
	}
	L.Push(tbl)
	return 1
}

// oven.after(seconds, callback) — delayed execution on the VM's command loop.
func ovenAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full")
		}
	}()

	return 0
}
