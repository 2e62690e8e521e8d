package asm

// ValType is a core WebAssembly value type.
type ValType byte

const (
	I32  ValType = 0x7f
	I64  ValType = 0x7e
	F32  ValType = 0x7d
	F64  ValType = 0x7c
	V128 ValType = 0x7b
)

// Section ids
const (
	sectionType     byte = 0x01
	sectionImport   byte = 0x02
	sectionFunction byte = 0x03
	sectionMemory   byte = 0x05
	sectionGlobal   byte = 0x06
	sectionExport   byte = 0x07
	sectionCode     byte = 0x0a
)

// Export kinds
const (
	exportFunc   byte = 0x00
	exportMemory byte = 0x02
	exportGlobal byte = 0x03
)

type funcType struct {
	params  []ValType
	results []ValType
}

func (t funcType) equal(o funcType) bool {
	if len(t.params) != len(o.params) || len(t.results) != len(o.results) {
		return false
	}
	for i := range t.params {
		if t.params[i] != o.params[i] {
			return false
		}
	}
	for i := range t.results {
		if t.results[i] != o.results[i] {
			return false
		}
	}
	return true
}

type importFunc struct {
	module  string
	name    string
	typeIdx uint32
}

type global struct {
	valType ValType
	mutable bool
	init    int32
}

type export struct {
	name  string
	kind  byte
	index uint32
}

// Global is a reference to a module global.
type Global uint32

// Module assembles a core WebAssembly module.
//
// Imports must be declared before the first defined function so that
// function indices stay stable while bodies are being emitted.
type Module struct {
	types   []funcType
	imports []importFunc
	funcs   []*Func
	globals []global
	exports []export
	memMin  uint32
	memMax  uint32
	hasMem  bool
	memName string
}

// NewModule creates an empty module.
func NewModule() *Module {
	return &Module{}
}

func (m *Module) typeIndex(params, results []ValType) uint32 {
	ft := funcType{params: params, results: results}
	for i, t := range m.types {
		if t.equal(ft) {
			return uint32(i)
		}
	}
	m.types = append(m.types, ft)
	return uint32(len(m.types) - 1)
}

// ImportFunc declares an imported function and returns its index.
func (m *Module) ImportFunc(module, name string, params, results []ValType) uint32 {
	if len(m.funcs) > 0 {
		panic("asm: imports must be declared before functions")
	}
	m.imports = append(m.imports, importFunc{
		module:  module,
		name:    name,
		typeIdx: m.typeIndex(params, results),
	})
	return uint32(len(m.imports) - 1)
}

// Memory declares the single linear memory in pages (64KiB each).
// A zero max leaves the memory unbounded; the host runtime caps growth.
func (m *Module) Memory(minPages, maxPages uint32, exportName string) {
	m.hasMem = true
	m.memMin = minPages
	m.memMax = maxPages
	m.memName = exportName
}

// Global declares an i32 global.
func (m *Module) Global(mutable bool, init int32) Global {
	m.globals = append(m.globals, global{valType: I32, mutable: mutable, init: init})
	return Global(len(m.globals) - 1)
}

// ExportGlobal exports a global under name.
func (m *Module) ExportGlobal(name string, g Global) {
	m.exports = append(m.exports, export{name: name, kind: exportGlobal, index: uint32(g)})
}

// Func starts a new function. Parameters occupy the first local indices.
func (m *Module) Func(params, results []ValType) *Func {
	f := &Func{
		module:  m,
		params:  params,
		results: results,
		typeIdx: m.typeIndex(params, results),
		index:   uint32(len(m.imports) + len(m.funcs)),
	}
	m.funcs = append(m.funcs, f)
	return f
}

// Export exports f under name. A function may be exported under several names.
func (m *Module) Export(name string, f *Func) {
	m.exports = append(m.exports, export{name: name, kind: exportFunc, index: f.index})
}

// Encode returns the module binary.
func (m *Module) Encode() []byte {
	out := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

	if len(m.types) > 0 {
		var s []byte
		s = AppendULEB128(s, uint32(len(m.types)))
		for _, t := range m.types {
			s = append(s, 0x60)
			s = AppendULEB128(s, uint32(len(t.params)))
			for _, p := range t.params {
				s = append(s, byte(p))
			}
			s = AppendULEB128(s, uint32(len(t.results)))
			for _, r := range t.results {
				s = append(s, byte(r))
			}
		}
		out = appendSection(out, sectionType, s)
	}

	if len(m.imports) > 0 {
		var s []byte
		s = AppendULEB128(s, uint32(len(m.imports)))
		for _, imp := range m.imports {
			s = appendName(s, imp.module)
			s = appendName(s, imp.name)
			s = append(s, exportFunc)
			s = AppendULEB128(s, imp.typeIdx)
		}
		out = appendSection(out, sectionImport, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = AppendULEB128(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			s = AppendULEB128(s, f.typeIdx)
		}
		out = appendSection(out, sectionFunction, s)
	}

	if m.hasMem {
		var s []byte
		s = append(s, 0x01)
		if m.memMax > 0 {
			s = append(s, 0x01)
			s = AppendULEB128(s, m.memMin)
			s = AppendULEB128(s, m.memMax)
		} else {
			s = append(s, 0x00)
			s = AppendULEB128(s, m.memMin)
		}
		out = appendSection(out, sectionMemory, s)
	}

	if len(m.globals) > 0 {
		var s []byte
		s = AppendULEB128(s, uint32(len(m.globals)))
		for _, g := range m.globals {
			s = append(s, byte(g.valType))
			if g.mutable {
				s = append(s, 0x01)
			} else {
				s = append(s, 0x00)
			}
			s = append(s, opI32Const)
			s = AppendSLEB128(s, g.init)
			s = append(s, opEnd)
		}
		out = appendSection(out, sectionGlobal, s)
	}

	exports := m.exports
	if m.hasMem && m.memName != "" {
		exports = append([]export{{name: m.memName, kind: exportMemory}}, exports...)
	}
	if len(exports) > 0 {
		var s []byte
		s = AppendULEB128(s, uint32(len(exports)))
		for _, e := range exports {
			s = appendName(s, e.name)
			s = append(s, e.kind)
			s = AppendULEB128(s, e.index)
		}
		out = appendSection(out, sectionExport, s)
	}

	if len(m.funcs) > 0 {
		var s []byte
		s = AppendULEB128(s, uint32(len(m.funcs)))
		for _, f := range m.funcs {
			body := f.body()
			s = AppendULEB128(s, uint32(len(body)))
			s = append(s, body...)
		}
		out = appendSection(out, sectionCode, s)
	}

	return out
}
