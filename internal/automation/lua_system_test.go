//go:build !no_automation

package automation

import (
	"testing"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// bareEngine builds an engine with just enough wiring for the Lua modules.
func bareEngine(t *testing.T) *Engine {
	t.Helper()
	e, _, _ := newTestEngine(t)
	return e
}

func TestSystemDatetimeReturnsNumber(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	registerSystemModule(L, bareEngine(t))

	numberComponents := []string{"hour", "minute", "second", "weekday", "day", "month", "year", "timestamp"}
	for _, comp := range numberComponents {
		L.SetGlobal("_comp", lua.LString(comp))
		if err := L.DoString(`_result = system.datetime(_comp)`); err != nil {
			t.Fatalf("system.datetime(%q) error: %v", comp, err)
		}
		if result := L.GetGlobal("_result"); result.Type() != lua.LTNumber {
			t.Errorf("system.datetime(%q) type = %v, want LTNumber", comp, result.Type())
		}
	}
}

func TestSystemDatetimeReturnsString(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	registerSystemModule(L, bareEngine(t))

	for _, comp := range []string{"time_str", "date_str"} {
		L.SetGlobal("_comp", lua.LString(comp))
		if err := L.DoString(`_result = system.datetime(_comp)`); err != nil {
			t.Fatalf("system.datetime(%q) error: %v", comp, err)
		}
		if result := L.GetGlobal("_result"); result.Type() != lua.LTString {
			t.Errorf("system.datetime(%q) type = %v, want LTString", comp, result.Type())
		}
	}
}

func TestSystemDatetimeHourRange(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	registerSystemModule(L, bareEngine(t))

	if err := L.DoString(`_hour = system.datetime("hour")`); err != nil {
		t.Fatal(err)
	}
	hour := int(L.GetGlobal("_hour").(lua.LNumber))
	if hour < 0 || hour > 23 {
		t.Errorf("hour = %d, want 0-23", hour)
	}
}

func TestSystemTimeBetweenNormalRange(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	registerSystemModule(L, bareEngine(t))

	hour := time.Now().Hour()
	from := hour
	to := hour + 1
	if to > 23 {
		to = 0
	}

	L.SetGlobal("_from", lua.LNumber(from))
	L.SetGlobal("_to", lua.LNumber(to))
	if err := L.DoString(`_result = system.time_between(_from, _to)`); err != nil {
		t.Fatal(err)
	}
	if L.GetGlobal("_result") != lua.LTrue {
		t.Errorf("time_between(%d, %d) at hour %d = false, want true", from, to, hour)
	}
}

func TestSystemTimeBetweenMidnightWrap(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	registerSystemModule(L, bareEngine(t))

	hour := time.Now().Hour()
	// A from > to range wraps midnight and must include the current hour.
	from := hour - 4
	if from < 0 {
		from += 24
	}
	to := hour - 8
	if to < 0 {
		to += 24
	}

	L.SetGlobal("_from", lua.LNumber(from))
	L.SetGlobal("_to", lua.LNumber(to))
	if err := L.DoString(`_result = system.time_between(_from, _to)`); err != nil {
		t.Fatal(err)
	}
	if L.GetGlobal("_result") != lua.LTrue {
		t.Errorf("time_between(%d, %d) at hour %d = false, want true (midnight wrap)", from, to, hour)
	}
}

func TestTelegramSendNoConfig(t *testing.T) {
	L := lua.NewState()
	defer L.Close()
	registerTelegramModule(L, bareEngine(t))

	// Unconfigured telegram must not error, just log and return.
	if err := L.DoString(`telegram.send("test")`); err != nil {
		t.Fatal(err)
	}
}
