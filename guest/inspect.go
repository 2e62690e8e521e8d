package guest

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"unicode/utf8"
)

// Extern kinds as encoded in import and export entries.
const (
	ExternFunc   byte = 0x00
	ExternTable  byte = 0x01
	ExternMemory byte = 0x02
	ExternGlobal byte = 0x03
)

const (
	wasmMagic   = 0x6d736100
	wasmVersion = 1

	secImport = 0x02
	secMemory = 0x05
	secExport = 0x07
)

// Parsing errors returned by Inspect.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// Manifest summarizes the host-facing surface of an engine binary.
type Manifest struct {
	Imports  []string        // "module.name", functions only
	Exports  map[string]byte // name to extern kind
	MinPages uint32
	MaxPages uint32
	HasMax   bool
}

// Inspect reads the import, memory and export sections of bin. Other
// sections are skipped without decoding.
func Inspect(bin []byte) (*Manifest, error) {
	r := &reader{buf: bin}

	magic, err := r.u32le()
	if err != nil {
		return nil, r.wrap("header", err)
	}
	if magic != wasmMagic {
		return nil, ErrInvalidMagic
	}
	version, err := r.u32le()
	if err != nil {
		return nil, r.wrap("header", err)
	}
	if version != wasmVersion {
		return nil, ErrInvalidVersion
	}

	m := &Manifest{Exports: make(map[string]byte)}
	for !r.done() {
		id, err := r.byte()
		if err != nil {
			return nil, r.wrap("section header", err)
		}
		size, err := r.u32()
		if err != nil {
			return nil, r.wrap("section size", err)
		}
		body, err := r.bytes(int(size))
		if err != nil {
			return nil, r.wrap("section data", err)
		}

		sr := &reader{buf: body}
		switch id {
		case secImport:
			err = parseImports(sr, m)
		case secMemory:
			err = parseMemory(sr, m)
		case secExport:
			err = parseExports(sr, m)
		}
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", id, err)
		}
	}
	return m, nil
}

func parseImports(r *reader, m *Manifest) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		module, err := r.name()
		if err != nil {
			return err
		}
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte()
		if err != nil {
			return err
		}
		if kind != ExternFunc {
			return fmt.Errorf("import %s.%s: unsupported kind 0x%02x", module, name, kind)
		}
		if _, err := r.u32(); err != nil {
			return err
		}
		m.Imports = append(m.Imports, module+"."+name)
	}
	return nil
}

func parseMemory(r *reader, m *Manifest) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	if count != 1 {
		return fmt.Errorf("expected one memory, got %d", count)
	}
	flags, err := r.byte()
	if err != nil {
		return err
	}
	if flags > 1 {
		return fmt.Errorf("unsupported memory flags 0x%02x", flags)
	}
	if m.MinPages, err = r.u32(); err != nil {
		return err
	}
	if flags == 1 {
		m.HasMax = true
		if m.MaxPages, err = r.u32(); err != nil {
			return err
		}
	}
	return nil
}

func parseExports(r *reader, m *Manifest) error {
	count, err := r.u32()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		name, err := r.name()
		if err != nil {
			return err
		}
		kind, err := r.byte()
		if err != nil {
			return err
		}
		if kind > ExternGlobal {
			return fmt.Errorf("invalid export kind: 0x%02x", kind)
		}
		if _, err := r.u32(); err != nil {
			return err
		}
		m.Exports[name] = kind
	}
	return nil
}

// Verify checks that bin exposes everything the host binds and imports
// nothing beyond the math host functions.
func Verify(bin []byte) (*Manifest, error) {
	m, err := Inspect(bin)
	if err != nil {
		return nil, err
	}
	if m.Exports[ExportMemory] != ExternMemory {
		if _, ok := m.Exports[ExportMemory]; !ok {
			return m, fmt.Errorf("missing export %q", ExportMemory)
		}
		return m, fmt.Errorf("export %q is not a memory", ExportMemory)
	}
	allowed := []string{ImportModule + "." + ImportCos, ImportModule + "." + ImportSin}
	for _, imp := range m.Imports {
		if !slices.Contains(allowed, imp) {
			return m, fmt.Errorf("unexpected import %q", imp)
		}
	}
	var missing []string
	for _, name := range RequiredFuncs {
		if kind, ok := m.Exports[name]; !ok || kind != ExternFunc {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return m, fmt.Errorf("missing function exports: %v", missing)
	}
	return m, nil
}

// ExportNames returns the export names in sorted order.
func (m *Manifest) ExportNames() []string {
	names := make([]string, 0, len(m.Exports))
	for name := range m.Exports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// reader is a cursor over a byte slice with position-aware errors.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) done() bool { return r.pos >= len(r.buf) }

func (r *reader) wrap(ctx string, err error) error {
	return fmt.Errorf("%s at offset %d: %w", ctx, r.pos, err)
}

func (r *reader) byte() (byte, error) {
	if r.done() {
		return 0, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.buf) {
		return nil, io.ErrUnexpectedEOF
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) u32le() (uint32, error) {
	b, err := r.bytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

var errOverflow = errors.New("leb128: overflow")

func (r *reader) u32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		result |= uint32(b&0x7f) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, errOverflow
		}
	}
}

func (r *reader) name() (string, error) {
	n, err := r.u32()
	if err != nil {
		return "", err
	}
	b, err := r.bytes(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("invalid UTF-8 in name")
	}
	return string(b), nil
}
