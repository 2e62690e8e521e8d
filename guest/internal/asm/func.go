package asm

import (
	"encoding/binary"
	"math"
)

// Func is a function body under construction. Emitters append raw
// instructions; structured control (Block/Loop/If) must be balanced by End.
type Func struct {
	module  *Module
	params  []ValType
	results []ValType
	locals  []ValType
	code    []byte
	typeIdx uint32
	index   uint32
	depth   int
}

// Index returns the function's index in the module function space.
func (f *Func) Index() uint32 {
	return f.index
}

// Param returns the local index of parameter i.
func (f *Func) Param(i int) uint32 {
	return uint32(i)
}

// Local declares a new local of type t and returns its index.
func (f *Func) Local(t ValType) uint32 {
	f.locals = append(f.locals, t)
	return uint32(len(f.params) + len(f.locals) - 1)
}

func (f *Func) body() []byte {
	if f.depth != 0 {
		panic("asm: unbalanced control structure")
	}
	var b []byte

	// Run-length group consecutive locals of the same type.
	type group struct {
		n uint32
		t ValType
	}
	var groups []group
	for _, t := range f.locals {
		if n := len(groups); n > 0 && groups[n-1].t == t {
			groups[n-1].n++
			continue
		}
		groups = append(groups, group{n: 1, t: t})
	}
	b = AppendULEB128(b, uint32(len(groups)))
	for _, g := range groups {
		b = AppendULEB128(b, g.n)
		b = append(b, byte(g.t))
	}

	b = append(b, f.code...)
	return append(b, opEnd)
}

func (f *Func) op(op byte) {
	f.code = append(f.code, op)
}

func (f *Func) opIdx(op byte, idx uint32) {
	f.code = append(f.code, op)
	f.code = AppendULEB128(f.code, idx)
}

func (f *Func) memarg(op byte, align, offset uint32) {
	f.code = append(f.code, op)
	f.code = AppendULEB128(f.code, align)
	f.code = AppendULEB128(f.code, offset)
}

func (f *Func) simd(sub uint32) {
	f.code = append(f.code, prefixSIMD)
	f.code = AppendULEB128(f.code, sub)
}

// Control

func (f *Func) Unreachable() { f.op(opUnreachable) }

// Block opens a block with no result. Br(0) inside it jumps past End.
func (f *Func) Block() {
	f.code = append(f.code, opBlock, opBlockTypeEmpty)
	f.depth++
}

// Loop opens a loop with no result. Br(0) inside it jumps to the loop head.
func (f *Func) Loop() {
	f.code = append(f.code, opLoop, opBlockTypeEmpty)
	f.depth++
}

// If pops an i32 condition and opens a branch with no result.
func (f *Func) If() {
	f.code = append(f.code, opIf, opBlockTypeEmpty)
	f.depth++
}

// IfResult opens a branch producing a value of type t.
func (f *Func) IfResult(t ValType) {
	f.code = append(f.code, opIf, byte(t))
	f.depth++
}

func (f *Func) Else() { f.op(opElse) }

func (f *Func) End() {
	f.op(opEnd)
	f.depth--
}

func (f *Func) Br(depth uint32) { f.opIdx(opBr, depth) }
func (f *Func) BrIf(depth uint32) { f.opIdx(opBrIf, depth) }
func (f *Func) Return() { f.op(opReturn) }
func (f *Func) Call(callee *Func) { f.opIdx(opCall, callee.index) }
func (f *Func) CallIndex(idx uint32) {
	f.opIdx(opCall, idx)
}
func (f *Func) Drop() { f.op(opDrop) }
func (f *Func) Select() { f.op(opSelect) }

// Variables

func (f *Func) LocalGet(i uint32) { f.opIdx(opLocalGet, i) }
func (f *Func) LocalSet(i uint32) { f.opIdx(opLocalSet, i) }
func (f *Func) LocalTee(i uint32) { f.opIdx(opLocalTee, i) }
func (f *Func) GlobalGet(g Global) { f.opIdx(opGlobalGet, uint32(g)) }
func (f *Func) GlobalSet(g Global) { f.opIdx(opGlobalSet, uint32(g)) }

// Memory. Alignment hints are natural for the access width.

func (f *Func) I32Load(offset uint32) { f.memarg(opI32Load, 2, offset) }
func (f *Func) I32Store(offset uint32) { f.memarg(opI32Store, 2, offset) }
func (f *Func) F32Load(offset uint32) { f.memarg(opF32Load, 2, offset) }
func (f *Func) F32Store(offset uint32) { f.memarg(opF32Store, 2, offset) }
func (f *Func) F64Load(offset uint32) { f.memarg(opF64Load, 3, offset) }
func (f *Func) F64Store(offset uint32) { f.memarg(opF64Store, 3, offset) }

func (f *Func) MemorySize() { f.code = append(f.code, opMemorySize, 0x00) }
func (f *Func) MemoryGrow() { f.code = append(f.code, opMemoryGrow, 0x00) }

// Constants

func (f *Func) I32Const(v int32) {
	f.code = append(f.code, opI32Const)
	f.code = AppendSLEB128(f.code, v)
}

func (f *Func) F64Const(v float64) {
	f.code = append(f.code, opF64Const)
	f.code = binary.LittleEndian.AppendUint64(f.code, math.Float64bits(v))
}

// i32 arithmetic and comparison

func (f *Func) I32Eqz() { f.op(opI32Eqz) }
func (f *Func) I32Eq() { f.op(opI32Eq) }
func (f *Func) I32Ne() { f.op(opI32Ne) }
func (f *Func) I32LtS() { f.op(opI32LtS) }
func (f *Func) I32LtU() { f.op(opI32LtU) }
func (f *Func) I32GtS() { f.op(opI32GtS) }
func (f *Func) I32GtU() { f.op(opI32GtU) }
func (f *Func) I32LeU() { f.op(opI32LeU) }
func (f *Func) I32GeU() { f.op(opI32GeU) }
func (f *Func) I32Add() { f.op(opI32Add) }
func (f *Func) I32Sub() { f.op(opI32Sub) }
func (f *Func) I32Mul() { f.op(opI32Mul) }
func (f *Func) I32DivU() { f.op(opI32DivU) }
func (f *Func) I32RemU() { f.op(opI32RemU) }
func (f *Func) I32And() { f.op(opI32And) }
func (f *Func) I32Or() { f.op(opI32Or) }
func (f *Func) I32Shl() { f.op(opI32Shl) }
func (f *Func) I32ShrU() { f.op(opI32ShrU) }

// f64 arithmetic and conversions

func (f *Func) F64Neg() { f.op(opF64Neg) }
func (f *Func) F64Add() { f.op(opF64Add) }
func (f *Func) F64Sub() { f.op(opF64Sub) }
func (f *Func) F64Mul() { f.op(opF64Mul) }
func (f *Func) F64Div() { f.op(opF64Div) }
func (f *Func) F64ConvertI32U() { f.op(opF64ConvertI32U) }
func (f *Func) F64PromoteF32() { f.op(opF64PromoteF32) }
func (f *Func) F32DemoteF64() { f.op(opF32DemoteF64) }

// SIMD (v128). Only valid when the runtime enables the SIMD feature.

func (f *Func) V128Load(offset uint32) {
	f.simd(simdV128Load)
	f.code = AppendULEB128(f.code, 3)
	f.code = AppendULEB128(f.code, offset)
}

func (f *Func) V128Store(offset uint32) {
	f.simd(simdV128Store)
	f.code = AppendULEB128(f.code, 3)
	f.code = AppendULEB128(f.code, offset)
}

// V128ConstF64x2 pushes the vector [lo, hi].
func (f *Func) V128ConstF64x2(lo, hi float64) {
	f.simd(simdV128Const)
	f.code = binary.LittleEndian.AppendUint64(f.code, math.Float64bits(lo))
	f.code = binary.LittleEndian.AppendUint64(f.code, math.Float64bits(hi))
}

// I8x16Shuffle pops two vectors and selects bytes by lane index (0-31).
func (f *Func) I8x16Shuffle(lanes [16]byte) {
	f.simd(simdI8x16Shuffle)
	f.code = append(f.code, lanes[:]...)
}

func (f *Func) F64x2Splat() { f.simd(simdF64x2Splat) }
func (f *Func) F64x2Add() { f.simd(simdF64x2Add) }
func (f *Func) F64x2Sub() { f.simd(simdF64x2Sub) }
func (f *Func) F64x2Mul() { f.simd(simdF64x2Mul) }

func (f *Func) F64x2ExtractLane(lane byte) {
	f.simd(simdF64x2ExtractLane)
	f.code = append(f.code, lane)
}
