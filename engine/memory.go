package engine

import (
	"encoding/binary"
	"math"

	kissfft "github.com/wippyai/kissfft"
	"github.com/wippyai/kissfft/errors"
)

// Memory is a view of guest linear memory. Every access takes the engine
// lock and copies, so returned slices never alias guest memory.
type Memory struct {
	e *Engine
}

var (
	_ kissfft.Memory      = (*Memory)(nil)
	_ kissfft.MemorySizer = (*Memory)(nil)
	_ kissfft.Allocator   = (*Engine)(nil)
)

func closedError(op string) error {
	return errors.New(errors.PhaseCompute, errors.KindEngineUnavailable).
		Op(op).Detail("engine closed").Build()
}

func boundsError(op string, offset kissfft.Ptr, n int) error {
	return errors.New(errors.PhaseCompute, errors.KindTrap).
		Op(op).Detail("out of bounds: offset=%d, length=%d", offset, n).Build()
}

func (m *Memory) Read(offset kissfft.Ptr, length uint32) ([]byte, error) {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	if m.e.closed {
		return nil, closedError("Read")
	}
	data, ok := m.e.mem.Read(uint32(offset), length)
	if !ok {
		return nil, boundsError("Read", offset, int(length))
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *Memory) Write(offset kissfft.Ptr, data []byte) error {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	if m.e.closed {
		return closedError("Write")
	}
	if !m.e.mem.Write(uint32(offset), data) {
		return boundsError("Write", offset, len(data))
	}
	return nil
}

func (m *Memory) ReadU32(offset kissfft.Ptr) (uint32, error) {
	data, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

func (m *Memory) WriteU32(offset kissfft.Ptr, value uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], value)
	return m.Write(offset, buf[:])
}

// ReadF32s fills dst with len(dst) little-endian float32 values at offset.
func (m *Memory) ReadF32s(offset kissfft.Ptr, dst []float32) error {
	if len(dst) == 0 {
		return nil
	}
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	if m.e.closed {
		return closedError("ReadF32s")
	}
	data, ok := m.e.mem.Read(uint32(offset), uint32(4*len(dst)))
	if !ok {
		return boundsError("ReadF32s", offset, 4*len(dst))
	}
	for i := range dst {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return nil
}

// WriteF32s stores src as little-endian float32 values at offset.
func (m *Memory) WriteF32s(offset kissfft.Ptr, src []float32) error {
	if len(src) == 0 {
		return nil
	}
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	if m.e.closed {
		return closedError("WriteF32s")
	}
	data, ok := m.e.mem.Read(uint32(offset), uint32(4*len(src)))
	if !ok {
		return boundsError("WriteF32s", offset, 4*len(src))
	}
	for i, f := range src {
		binary.LittleEndian.PutUint32(data[4*i:], math.Float32bits(f))
	}
	return nil
}

// Size returns the current size of linear memory in bytes.
func (m *Memory) Size() uint32 {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	if m.e.closed {
		return 0
	}
	return m.e.mem.Size()
}
