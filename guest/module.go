package guest

import (
	"math"
	"sync"

	"github.com/wippyai/kissfft/guest/internal/asm"
)

var (
	moduleOnce  [2]sync.Once
	moduleBytes [2][]byte
)

// Module returns the engine binary for v. The result is shared and must
// not be modified.
func Module(v Variant) []byte {
	i := 0
	if v == SIMD {
		i = 1
	}
	moduleOnce[i].Do(func() {
		moduleBytes[i] = build(v)
	})
	return moduleBytes[i]
}

var (
	i32  = asm.I32
	f64  = asm.F64
	none []asm.ValType
)

func vals(t ...asm.ValType) []asm.ValType { return t }

// builder holds the functions of one engine binary while it is assembled.
type builder struct {
	m       *asm.Module
	variant Variant

	cos, sin uint32

	heapTop  asm.Global
	freeHead asm.Global
	live     asm.Global

	malloc    *asm.Func
	free      *asm.Func
	cleanup   *asm.Func
	copyWords *asm.Func
	nextFast  *asm.Func
	planNew   *asm.Func
	axisPass  *asm.Func
	rowR2C    *asm.Func
	rowC2R    *asm.Func
	planExec  *asm.Func
}

func build(v Variant) []byte {
	b := &builder{m: asm.NewModule(), variant: v}
	m := b.m

	b.cos = m.ImportFunc(ImportModule, ImportCos, vals(f64), vals(f64))
	b.sin = m.ImportFunc(ImportModule, ImportSin, vals(f64), vals(f64))
	m.Memory(1, 0, ExportMemory)

	b.heapTop = m.Global(true, HeapBase)
	b.freeHead = m.Global(true, 0)
	b.live = m.Global(true, 0)
	m.ExportGlobal(ExportHeapTop, b.heapTop)
	m.ExportGlobal(ExportLiveBlocks, b.live)

	b.emitMalloc()
	b.emitFree()
	b.emitCleanup()
	b.emitCopyWords()
	b.emitNextFastSize()
	b.emitPlanNew()
	b.emitAxisPass()
	b.emitRowR2C()
	b.emitRowC2R()
	b.emitPlanExec()
	b.emitExports()

	return m.Encode()
}

// forRange emits a counted loop: i = start; while i <u limit { body; i++ }.
// Inside body the loop block sits at depth 1 and the loop itself at 0.
func forRange(f *asm.Func, i uint32, start, limit, body func()) {
	start()
	f.LocalSet(i)
	f.Block()
	f.Loop()
	f.LocalGet(i)
	limit()
	f.I32GeU()
	f.BrIf(1)
	body()
	f.LocalGet(i)
	f.I32Const(1)
	f.I32Add()
	f.LocalSet(i)
	f.Br(0)
	f.End()
	f.End()
}

func zero(f *asm.Func) func() { return func() { f.I32Const(0) } }

func local(f *asm.Func, i uint32) func() { return func() { f.LocalGet(i) } }

// returnI32If emits: if cond { return value }. cond must already be on the stack.
func returnI32If(f *asm.Func, value int32) {
	f.If()
	f.I32Const(value)
	f.Return()
	f.End()
}

// addr pushes base + idx<<shift.
func addr(f *asm.Func, base, idx uint32, shift int32) {
	f.LocalGet(base)
	f.LocalGet(idx)
	f.I32Const(shift)
	f.I32Shl()
	f.I32Add()
}

func incr(f *asm.Func, l uint32, by int32) {
	f.LocalGet(l)
	f.I32Const(by)
	f.I32Add()
	f.LocalSet(l)
}

// wrapIndex emits: idx += step; if idx >= n { idx -= n }.
func wrapIndex(f *asm.Func, idx, step, n uint32) {
	f.LocalGet(idx)
	f.LocalGet(step)
	f.I32Add()
	f.LocalSet(idx)
	f.LocalGet(idx)
	f.LocalGet(n)
	f.I32GeU()
	f.If()
	f.LocalGet(idx)
	f.LocalGet(n)
	f.I32Sub()
	f.LocalSet(idx)
	f.End()
}

// malloc(size) -> ptr. First fit over the free list, then bump allocation
// with memory.grow. Returns 0 when the request cannot be satisfied.
func (b *builder) emitMalloc() {
	f := b.m.Func(vals(i32), vals(i32))
	b.malloc = f
	size := f.Param(0)
	capacity := f.Local(i32)
	prev := f.Local(i32)
	cur := f.Local(i32)
	next := f.Local(i32)
	top := f.Local(i32)
	need := f.Local(i32)

	f.LocalGet(size)
	f.I32Eqz()
	f.If()
	f.I32Const(1)
	f.LocalSet(size)
	f.End()

	f.LocalGet(size)
	f.I32Const(0x7ffffff0)
	f.I32GtU()
	returnI32If(f, 0)

	f.LocalGet(size)
	f.I32Const(7)
	f.I32Add()
	f.I32Const(-8)
	f.I32And()
	f.LocalSet(capacity)

	// free list
	f.I32Const(0)
	f.LocalSet(prev)
	f.GlobalGet(b.freeHead)
	f.LocalSet(cur)
	f.Block()
	f.Loop()
	f.LocalGet(cur)
	f.I32Eqz()
	f.BrIf(1)

	f.LocalGet(cur)
	f.I32Const(BlockHeader)
	f.I32Sub()
	f.I32Load(0)
	f.LocalGet(capacity)
	f.I32GeU()
	f.If()
	f.LocalGet(cur)
	f.I32Const(4)
	f.I32Sub()
	f.I32Load(0)
	f.LocalSet(next)
	f.LocalGet(prev)
	f.I32Eqz()
	f.If()
	f.LocalGet(next)
	f.GlobalSet(b.freeHead)
	f.Else()
	f.LocalGet(prev)
	f.I32Const(4)
	f.I32Sub()
	f.LocalGet(next)
	f.I32Store(0)
	f.End()
	f.GlobalGet(b.live)
	f.I32Const(1)
	f.I32Add()
	f.GlobalSet(b.live)
	f.LocalGet(cur)
	f.Return()
	f.End()

	f.LocalGet(cur)
	f.LocalSet(prev)
	f.LocalGet(cur)
	f.I32Const(4)
	f.I32Sub()
	f.I32Load(0)
	f.LocalSet(cur)
	f.Br(0)
	f.End()
	f.End()

	// bump
	f.GlobalGet(b.heapTop)
	f.I32Const(BlockHeader)
	f.I32Add()
	f.LocalGet(capacity)
	f.I32Add()
	f.LocalSet(top)
	f.LocalGet(top)
	f.GlobalGet(b.heapTop)
	f.I32LtU()
	returnI32If(f, 0)

	f.LocalGet(top)
	f.I32Const(16)
	f.I32ShrU()
	f.LocalGet(top)
	f.I32Const(0xffff)
	f.I32And()
	f.I32Const(0)
	f.I32Ne()
	f.I32Add()
	f.LocalSet(need)

	f.LocalGet(need)
	f.MemorySize()
	f.I32GtU()
	f.If()
	f.LocalGet(need)
	f.MemorySize()
	f.I32Sub()
	f.MemoryGrow()
	f.I32Const(-1)
	f.I32Eq()
	returnI32If(f, 0)
	f.End()

	f.GlobalGet(b.heapTop)
	f.LocalGet(capacity)
	f.I32Store(0)
	f.GlobalGet(b.heapTop)
	f.I32Const(0)
	f.I32Store(4)
	f.GlobalGet(b.heapTop)
	f.I32Const(BlockHeader)
	f.I32Add()
	f.LocalSet(cur)
	f.LocalGet(top)
	f.GlobalSet(b.heapTop)
	f.GlobalGet(b.live)
	f.I32Const(1)
	f.I32Add()
	f.GlobalSet(b.live)
	f.LocalGet(cur)
}

// free(ptr). Pushes the block onto the free list; free(0) is a no-op.
func (b *builder) emitFree() {
	f := b.m.Func(vals(i32), none)
	b.free = f
	ptr := f.Param(0)

	f.LocalGet(ptr)
	f.I32Eqz()
	f.If()
	f.Return()
	f.End()

	f.LocalGet(ptr)
	f.I32Const(4)
	f.I32Sub()
	f.GlobalGet(b.freeHead)
	f.I32Store(0)
	f.LocalGet(ptr)
	f.GlobalSet(b.freeHead)
	f.GlobalGet(b.live)
	f.I32Const(1)
	f.I32Sub()
	f.GlobalSet(b.live)
}

// cleanup() resets the heap once no block is live.
func (b *builder) emitCleanup() {
	f := b.m.Func(none, none)
	b.cleanup = f

	f.GlobalGet(b.live)
	f.I32Eqz()
	f.If()
	f.I32Const(HeapBase)
	f.GlobalSet(b.heapTop)
	f.I32Const(0)
	f.GlobalSet(b.freeHead)
	f.End()
}

// copy_words(dst, src, n) copies n 32-bit words forward.
func (b *builder) emitCopyWords() {
	f := b.m.Func(vals(i32, i32, i32), none)
	b.copyWords = f
	dst, src, n := f.Param(0), f.Param(1), f.Param(2)
	i := f.Local(i32)

	forRange(f, i, zero(f), local(f, n), func() {
		addr(f, dst, i, 2)
		addr(f, src, i, 2)
		f.I32Load(0)
		f.I32Store(0)
	})
}

// next_fast_size(n) returns the smallest m >= n whose only prime factors
// are 2, 3 and 5.
func (b *builder) emitNextFastSize() {
	f := b.m.Func(vals(i32), vals(i32))
	b.nextFast = f
	n := f.Param(0)
	m := f.Local(i32)

	f.LocalGet(n)
	f.I32Const(1)
	f.I32LtS()
	f.If()
	f.I32Const(1)
	f.LocalSet(n)
	f.End()

	f.Block()
	f.Loop()
	f.LocalGet(n)
	f.LocalSet(m)
	for _, p := range []int32{2, 3, 5} {
		f.Block()
		f.Loop()
		f.LocalGet(m)
		f.I32Const(p)
		f.I32RemU()
		f.BrIf(1)
		f.LocalGet(m)
		f.I32Const(p)
		f.I32DivU()
		f.LocalSet(m)
		f.Br(0)
		f.End()
		f.End()
	}
	f.LocalGet(m)
	f.I32Const(1)
	f.I32LeU()
	f.BrIf(1)
	incr(f, n, 1)
	f.Br(0)
	f.End()
	f.End()

	f.LocalGet(n)
}

// Plan layout (one allocation):
//
//	+0  kind (0 complex, 1 real)
//	+4  inverse flag
//	+8  ndims
//	+12 total element count
//	+16 scratch pointer (maxN complex f64)
//	+20 work pointer (real plans: rows*h complex f32)
//	+24 rows (total / last dim)
//	+28 h (last/2+1 for real plans, last otherwise)
//	+32 axes[ndims] of {n, stride, outer, twiddles}
//	... twiddles, scratch, work
const (
	planKind    = 0
	planInverse = 4
	planNDims   = 8
	planTotal   = 12
	planScratch = 16
	planWork    = 20
	planRows    = 24
	planH       = 28
	planAxes    = 32
	axisSize    = 16

	axisN       = 0
	axisStride  = 4
	axisOuter   = 8
	axisTwiddle = 12
)

// plan_new(kind, dims, ndims, inverse) -> plan, or 0 on invalid input or
// heap exhaustion.
func (b *builder) emitPlanNew() {
	f := b.m.Func(vals(i32, i32, i32, i32), vals(i32))
	b.planNew = f
	kind, dims, ndims, inv := f.Param(0), f.Param(1), f.Param(2), f.Param(3)
	a := f.Local(i32)
	n := f.Local(i32)
	total := f.Local(i32)
	maxN := f.Local(i32)
	sumN := f.Local(i32)
	last := f.Local(i32)
	h := f.Local(i32)
	rows := f.Local(i32)
	size := f.Local(i32)
	plan := f.Local(i32)
	tw := f.Local(i32)
	inner := f.Local(i32)
	eff := f.Local(i32)
	axis := f.Local(i32)
	m := f.Local(i32)
	step := f.Local(f64)
	ang := f.Local(f64)

	f.LocalGet(ndims)
	f.I32Const(1)
	f.I32LtS()
	returnI32If(f, 0)
	f.LocalGet(ndims)
	f.I32Const(MaxDims)
	f.I32GtS()
	returnI32If(f, 0)

	f.I32Const(1)
	f.LocalSet(total)
	f.I32Const(0)
	f.LocalSet(maxN)
	f.I32Const(0)
	f.LocalSet(sumN)
	forRange(f, a, zero(f), local(f, ndims), func() {
		addr(f, dims, a, 2)
		f.I32Load(0)
		f.LocalSet(n)
		f.LocalGet(n)
		f.I32Const(1)
		f.I32LtS()
		returnI32If(f, 0)
		// n > MaxElements/total would overflow the element cap
		f.LocalGet(n)
		f.I32Const(MaxElements)
		f.LocalGet(total)
		f.I32DivU()
		f.I32GtU()
		returnI32If(f, 0)
		f.LocalGet(total)
		f.LocalGet(n)
		f.I32Mul()
		f.LocalSet(total)
		f.LocalGet(sumN)
		f.LocalGet(n)
		f.I32Add()
		f.LocalSet(sumN)
		f.LocalGet(n)
		f.LocalGet(maxN)
		f.I32GtU()
		f.If()
		f.LocalGet(n)
		f.LocalSet(maxN)
		f.End()
	})

	f.LocalGet(dims)
	f.LocalGet(ndims)
	f.I32Const(1)
	f.I32Sub()
	f.I32Const(2)
	f.I32Shl()
	f.I32Add()
	f.I32Load(0)
	f.LocalSet(last)

	f.LocalGet(kind)
	f.If()
	f.LocalGet(last)
	f.I32Const(1)
	f.I32And()
	returnI32If(f, 0)
	f.LocalGet(last)
	f.I32Const(1)
	f.I32ShrU()
	f.I32Const(1)
	f.I32Add()
	f.LocalSet(h)
	f.Else()
	f.LocalGet(last)
	f.LocalSet(h)
	f.End()

	f.LocalGet(total)
	f.LocalGet(last)
	f.I32DivU()
	f.LocalSet(rows)
	f.LocalGet(rows)
	f.LocalGet(h)
	f.I32Mul()
	f.LocalSet(eff)

	// size = header + axes + twiddles + scratch (+ work)
	f.I32Const(planAxes)
	f.LocalGet(ndims)
	f.I32Const(4)
	f.I32Shl()
	f.I32Add()
	f.LocalGet(sumN)
	f.I32Const(4)
	f.I32Shl()
	f.I32Add()
	f.LocalGet(maxN)
	f.I32Const(4)
	f.I32Shl()
	f.I32Add()
	f.LocalSet(size)
	f.LocalGet(kind)
	f.If()
	f.LocalGet(size)
	f.LocalGet(eff)
	f.I32Const(3)
	f.I32Shl()
	f.I32Add()
	f.LocalSet(size)
	f.End()

	f.LocalGet(size)
	f.Call(b.malloc)
	f.LocalTee(plan)
	f.I32Eqz()
	returnI32If(f, 0)

	store := func(off uint32, l uint32) {
		f.LocalGet(plan)
		f.LocalGet(l)
		f.I32Store(off)
	}
	store(planKind, kind)
	store(planInverse, inv)
	store(planNDims, ndims)
	store(planTotal, total)
	store(planRows, rows)
	store(planH, h)

	// twiddles start right after the axis table
	f.LocalGet(plan)
	f.I32Const(planAxes)
	f.I32Add()
	f.LocalGet(ndims)
	f.I32Const(4)
	f.I32Shl()
	f.I32Add()
	f.LocalSet(tw)

	f.LocalGet(plan)
	f.LocalGet(tw)
	f.LocalGet(sumN)
	f.I32Const(4)
	f.I32Shl()
	f.I32Add()
	f.I32Store(planScratch)

	f.LocalGet(plan)
	f.LocalGet(plan)
	f.I32Load(planScratch)
	f.LocalGet(maxN)
	f.I32Const(4)
	f.I32Shl()
	f.I32Add()
	f.I32Store(planWork)

	// axes, innermost first
	f.I32Const(1)
	f.LocalSet(inner)
	f.LocalGet(ndims)
	f.LocalSet(a)
	f.Block()
	f.Loop()
	f.LocalGet(a)
	f.I32Eqz()
	f.BrIf(1)
	f.LocalGet(a)
	f.I32Const(1)
	f.I32Sub()
	f.LocalSet(a)

	addr(f, dims, a, 2)
	f.I32Load(0)
	f.LocalSet(n)
	f.LocalGet(plan)
	f.I32Const(planAxes)
	f.I32Add()
	f.LocalGet(a)
	f.I32Const(4)
	f.I32Shl()
	f.I32Add()
	f.LocalSet(axis)

	f.LocalGet(axis)
	f.LocalGet(n)
	f.I32Store(axisN)
	f.LocalGet(axis)
	f.LocalGet(tw)
	f.I32Store(axisTwiddle)

	// the last axis of a real plan is handled row by row
	f.LocalGet(kind)
	f.LocalGet(a)
	f.LocalGet(ndims)
	f.I32Const(1)
	f.I32Sub()
	f.I32Eq()
	f.I32And()
	f.If()
	f.LocalGet(axis)
	f.I32Const(1)
	f.I32Store(axisStride)
	f.LocalGet(axis)
	f.LocalGet(rows)
	f.I32Store(axisOuter)
	f.LocalGet(h)
	f.LocalSet(inner)
	f.Else()
	f.LocalGet(axis)
	f.LocalGet(inner)
	f.I32Store(axisStride)
	f.LocalGet(axis)
	f.LocalGet(eff)
	f.LocalGet(n)
	f.LocalGet(inner)
	f.I32Mul()
	f.I32DivU()
	f.I32Store(axisOuter)
	f.LocalGet(inner)
	f.LocalGet(n)
	f.I32Mul()
	f.LocalSet(inner)
	f.End()

	// twiddle[m] = exp(sign * 2*pi*i*m/n)
	f.LocalGet(inv)
	f.IfResult(asm.F64)
	f.F64Const(2 * math.Pi)
	f.Else()
	f.F64Const(-2 * math.Pi)
	f.End()
	f.LocalGet(n)
	f.F64ConvertI32U()
	f.F64Div()
	f.LocalSet(step)

	forRange(f, m, zero(f), local(f, n), func() {
		f.LocalGet(m)
		f.F64ConvertI32U()
		f.LocalGet(step)
		f.F64Mul()
		f.LocalSet(ang)
		f.LocalGet(tw)
		f.LocalGet(ang)
		f.CallIndex(b.cos)
		f.F64Store(0)
		f.LocalGet(tw)
		f.LocalGet(ang)
		f.CallIndex(b.sin)
		f.F64Store(8)
		incr(f, tw, 16)
	})

	f.Br(0)
	f.End()
	f.End()

	f.LocalGet(plan)
}
