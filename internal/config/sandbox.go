package config

import (
	lua "github.com/yuin/gopher-lua"
)

// sandboxLuaVM removes every global that can reach the host: process
// control, file access, code loading and the debug library. App
// definitions stay declarative; string, table and math remain.
func sandboxLuaVM(L *lua.LState) {
	for _, name := range []string{
		"os",
		"io",
		"require",
		"dofile",
		"loadfile",
		"load",
		"loadstring",
		"debug",
		"collectgarbage",
	} {
		L.SetGlobal(name, lua.LNil)
	}
}

// newSandboxedVM creates a Lua state for app definition parsing.
func newSandboxedVM() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	sandboxLuaVM(L)
	return L
}
