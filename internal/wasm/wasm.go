// Package wasm validates compiled modules and describes their interface.
package wasm

import (
	"context"
	"fmt"
	"sort"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Function is an exported or imported function.
type Function struct {
	Module  string // import module, empty for exports
	Name    string
	Params  []string
	Results []string
}

func (f Function) String() string {
	return fmt.Sprintf("%s%v -> %v", f.Name, f.Params, f.Results)
}

// Memory is an exported memory.
type Memory struct {
	Name   string
	Min    uint32 // pages
	Max    uint32
	HasMax bool
}

// Info describes the interface of a module.
type Info struct {
	Exports  []Function
	Imports  []Function
	Memories []Memory
}

func compile(ctx context.Context, bin []byte) (wazero.Runtime, wazero.CompiledModule, error) {
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	compiled, err := rt.CompileModule(ctx, bin)
	if err != nil {
		rt.Close(ctx)
		return nil, nil, fmt.Errorf("compile failed: %w", err)
	}
	return rt, compiled, nil
}

// Validate reports whether bin is a well-formed module.
func Validate(ctx context.Context, bin []byte) error {
	rt, _, err := compile(ctx, bin)
	if err != nil {
		return err
	}
	return rt.Close(ctx)
}

// Inspect returns the exports, imports and memories of bin, sorted by name.
func Inspect(ctx context.Context, bin []byte) (*Info, error) {
	rt, compiled, err := compile(ctx, bin)
	if err != nil {
		return nil, err
	}
	defer rt.Close(ctx)

	info := new(Info)
	for name, def := range compiled.ExportedFunctions() {
		info.Exports = append(info.Exports, function("", name, def))
	}
	for _, def := range compiled.ImportedFunctions() {
		module, name, _ := def.Import()
		info.Imports = append(info.Imports, function(module, name, def))
	}
	for name, def := range compiled.ExportedMemories() {
		mem := Memory{Name: name, Min: def.Min()}
		if limit, ok := def.Max(); ok {
			mem.Max, mem.HasMax = limit, true
		}
		info.Memories = append(info.Memories, mem)
	}

	sort.Slice(info.Exports, func(i, j int) bool { return info.Exports[i].Name < info.Exports[j].Name })
	sort.Slice(info.Imports, func(i, j int) bool {
		a, b := info.Imports[i], info.Imports[j]
		if a.Module != b.Module {
			return a.Module < b.Module
		}
		return a.Name < b.Name
	})
	sort.Slice(info.Memories, func(i, j int) bool { return info.Memories[i].Name < info.Memories[j].Name })
	return info, nil
}

func function(module, name string, def api.FunctionDefinition) Function {
	return Function{
		Module:  module,
		Name:    name,
		Params:  typeNames(def.ParamTypes()),
		Results: typeNames(def.ResultTypes()),
	}
}

func typeNames(types []api.ValueType) []string {
	names := make([]string, len(types))
	for i, t := range types {
		names[i] = api.ValueTypeName(t)
	}
	return names
}
