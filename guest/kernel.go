package guest

import "github.com/wippyai/kissfft/guest/internal/asm"

// swapHalves exchanges the two f64 lanes of a v128.
var swapHalves = [16]byte{8, 9, 10, 11, 12, 13, 14, 15, 0, 1, 2, 3, 4, 5, 6, 7}

// axis_pass(data, axis, scratch) transforms every line of interleaved f32
// complex values along one axis in place. Each line is gathered into f64
// scratch, transformed against the axis twiddles and written back.
func (b *builder) emitAxisPass() {
	f := b.m.Func(vals(i32, i32, i32), none)
	b.axisPass = f
	data, axis, scratch := f.Param(0), f.Param(1), f.Param(2)
	n := f.Local(i32)
	stride := f.Local(i32)
	outer := f.Local(i32)
	tw := f.Local(i32)
	step := f.Local(i32)
	o := f.Local(i32)
	i := f.Local(i32)
	base := f.Local(i32)
	p := f.Local(i32)
	j := f.Local(i32)
	k := f.Local(i32)
	idx := f.Local(i32)
	sa := f.Local(i32)
	ta := f.Local(i32)
	wr := f.Local(f64)
	wi := f.Local(f64)
	xr := f.Local(f64)
	xi := f.Local(f64)
	accRe := f.Local(f64)
	accIm := f.Local(f64)
	var acc, xv uint32
	if b.variant == SIMD {
		acc = f.Local(asm.V128)
		xv = f.Local(asm.V128)
	}

	load := func(dst uint32, off uint32) {
		f.LocalGet(axis)
		f.I32Load(off)
		f.LocalSet(dst)
	}
	load(n, axisN)
	load(stride, axisStride)
	load(outer, axisOuter)
	load(tw, axisTwiddle)

	f.LocalGet(n)
	f.I32Const(1)
	f.I32LeU()
	f.If()
	f.Return()
	f.End()

	f.LocalGet(stride)
	f.I32Const(3)
	f.I32Shl()
	f.LocalSet(step)

	forRange(f, o, zero(f), local(f, outer), func() {
		forRange(f, i, zero(f), local(f, stride), func() {
			// base = data + (o*n*stride + i) * 8
			f.LocalGet(data)
			f.LocalGet(o)
			f.LocalGet(n)
			f.I32Mul()
			f.LocalGet(stride)
			f.I32Mul()
			f.LocalGet(i)
			f.I32Add()
			f.I32Const(3)
			f.I32Shl()
			f.I32Add()
			f.LocalSet(base)

			// gather
			f.LocalGet(base)
			f.LocalSet(p)
			forRange(f, j, zero(f), local(f, n), func() {
				addr(f, scratch, j, 4)
				f.LocalGet(p)
				f.F32Load(0)
				f.F64PromoteF32()
				f.F64Store(0)
				addr(f, scratch, j, 4)
				f.LocalGet(p)
				f.F32Load(4)
				f.F64PromoteF32()
				f.F64Store(8)
				incrBy(f, p, step)
			})

			// X[k] = sum_j x[j] * w[j*k mod n]
			f.LocalGet(base)
			f.LocalSet(p)
			forRange(f, k, zero(f), local(f, n), func() {
				if b.variant == SIMD {
					f.V128ConstF64x2(0, 0)
					f.LocalSet(acc)
				} else {
					f.F64Const(0)
					f.LocalSet(accRe)
					f.F64Const(0)
					f.LocalSet(accIm)
				}
				f.I32Const(0)
				f.LocalSet(idx)
				forRange(f, j, zero(f), local(f, n), func() {
					addr(f, scratch, j, 4)
					f.LocalSet(sa)
					addr(f, tw, idx, 4)
					f.LocalSet(ta)
					f.LocalGet(ta)
					f.F64Load(0)
					f.LocalSet(wr)
					f.LocalGet(ta)
					f.F64Load(8)
					f.LocalSet(wi)
					if b.variant == SIMD {
						// acc += x*wr + swap(x)*[-wi, wi]
						f.LocalGet(sa)
						f.V128Load(0)
						f.LocalSet(xv)
						f.LocalGet(acc)
						f.LocalGet(xv)
						f.LocalGet(wr)
						f.F64x2Splat()
						f.F64x2Mul()
						f.F64x2Add()
						f.LocalGet(xv)
						f.LocalGet(xv)
						f.I8x16Shuffle(swapHalves)
						f.LocalGet(wi)
						f.F64x2Splat()
						f.V128ConstF64x2(-1, 1)
						f.F64x2Mul()
						f.F64x2Mul()
						f.F64x2Add()
						f.LocalSet(acc)
					} else {
						f.LocalGet(sa)
						f.F64Load(0)
						f.LocalSet(xr)
						f.LocalGet(sa)
						f.F64Load(8)
						f.LocalSet(xi)
						complexMAC(f, accRe, accIm, xr, xi, wr, wi)
					}
					wrapIndex(f, idx, k, n)
				})
				if b.variant == SIMD {
					f.LocalGet(p)
					f.LocalGet(acc)
					f.F64x2ExtractLane(0)
					f.F32DemoteF64()
					f.F32Store(0)
					f.LocalGet(p)
					f.LocalGet(acc)
					f.F64x2ExtractLane(1)
					f.F32DemoteF64()
					f.F32Store(4)
				} else {
					storeComplex(f, p, accRe, accIm)
				}
				incrBy(f, p, step)
			})
		})
	})
}

// complexMAC emits: acc += x * w over split real/imaginary locals.
func complexMAC(f *asm.Func, accRe, accIm, xr, xi, wr, wi uint32) {
	f.LocalGet(accRe)
	f.LocalGet(xr)
	f.LocalGet(wr)
	f.F64Mul()
	f.LocalGet(xi)
	f.LocalGet(wi)
	f.F64Mul()
	f.F64Sub()
	f.F64Add()
	f.LocalSet(accRe)
	f.LocalGet(accIm)
	f.LocalGet(xr)
	f.LocalGet(wi)
	f.F64Mul()
	f.LocalGet(xi)
	f.LocalGet(wr)
	f.F64Mul()
	f.F64Add()
	f.F64Add()
	f.LocalSet(accIm)
}

// storeComplex writes (re, im) as two f32 at p.
func storeComplex(f *asm.Func, p, re, im uint32) {
	f.LocalGet(p)
	f.LocalGet(re)
	f.F32DemoteF64()
	f.F32Store(0)
	f.LocalGet(p)
	f.LocalGet(im)
	f.F32DemoteF64()
	f.F32Store(4)
}

func incrBy(f *asm.Func, l, by uint32) {
	f.LocalGet(l)
	f.LocalGet(by)
	f.I32Add()
	f.LocalSet(l)
}

// loadComplex reads the f32 pair at p into f64 locals.
func loadComplex(f *asm.Func, p, re, im uint32) {
	f.LocalGet(p)
	f.F32Load(0)
	f.F64PromoteF32()
	f.LocalSet(re)
	f.LocalGet(p)
	f.F32Load(4)
	f.F64PromoteF32()
	f.LocalSet(im)
}

// row_r2c(in, out, axis) transforms one row of n reals into n/2+1 complex
// bins.
func (b *builder) emitRowR2C() {
	f := b.m.Func(vals(i32, i32, i32), none)
	b.rowR2C = f
	in, out, axis := f.Param(0), f.Param(1), f.Param(2)
	n := f.Local(i32)
	tw := f.Local(i32)
	h := f.Local(i32)
	k := f.Local(i32)
	j := f.Local(i32)
	idx := f.Local(i32)
	ta := f.Local(i32)
	p := f.Local(i32)
	x := f.Local(f64)
	accRe := f.Local(f64)
	accIm := f.Local(f64)

	f.LocalGet(axis)
	f.I32Load(axisN)
	f.LocalSet(n)
	f.LocalGet(axis)
	f.I32Load(axisTwiddle)
	f.LocalSet(tw)
	f.LocalGet(n)
	f.I32Const(1)
	f.I32ShrU()
	f.I32Const(1)
	f.I32Add()
	f.LocalSet(h)

	forRange(f, k, zero(f), local(f, h), func() {
		f.F64Const(0)
		f.LocalSet(accRe)
		f.F64Const(0)
		f.LocalSet(accIm)
		f.I32Const(0)
		f.LocalSet(idx)
		forRange(f, j, zero(f), local(f, n), func() {
			addr(f, in, j, 2)
			f.F32Load(0)
			f.F64PromoteF32()
			f.LocalSet(x)
			addr(f, tw, idx, 4)
			f.LocalSet(ta)
			f.LocalGet(accRe)
			f.LocalGet(x)
			f.LocalGet(ta)
			f.F64Load(0)
			f.F64Mul()
			f.F64Add()
			f.LocalSet(accRe)
			f.LocalGet(accIm)
			f.LocalGet(x)
			f.LocalGet(ta)
			f.F64Load(8)
			f.F64Mul()
			f.F64Add()
			f.LocalSet(accIm)
			wrapIndex(f, idx, k, n)
		})
		addr(f, out, k, 3)
		f.LocalSet(p)
		storeComplex(f, p, accRe, accIm)
	})
}

// row_c2r(in, out, axis) transforms n/2+1 Hermitian bins into n reals.
// Bins above n/2 are the conjugates of their mirrors.
func (b *builder) emitRowC2R() {
	f := b.m.Func(vals(i32, i32, i32), none)
	b.rowC2R = f
	in, out, axis := f.Param(0), f.Param(1), f.Param(2)
	n := f.Local(i32)
	tw := f.Local(i32)
	h := f.Local(i32)
	j := f.Local(i32)
	k := f.Local(i32)
	idx := f.Local(i32)
	ta := f.Local(i32)
	p := f.Local(i32)
	xr := f.Local(f64)
	xi := f.Local(f64)
	acc := f.Local(f64)

	f.LocalGet(axis)
	f.I32Load(axisN)
	f.LocalSet(n)
	f.LocalGet(axis)
	f.I32Load(axisTwiddle)
	f.LocalSet(tw)
	f.LocalGet(n)
	f.I32Const(1)
	f.I32ShrU()
	f.I32Const(1)
	f.I32Add()
	f.LocalSet(h)

	// acc += xr*wr + sign*xi*wi, sign -1 for stored bins and +1 for mirrors
	term := func(conj bool) {
		addr(f, tw, idx, 4)
		f.LocalSet(ta)
		loadComplex(f, p, xr, xi)
		f.LocalGet(acc)
		f.LocalGet(xr)
		f.LocalGet(ta)
		f.F64Load(0)
		f.F64Mul()
		f.LocalGet(xi)
		f.LocalGet(ta)
		f.F64Load(8)
		f.F64Mul()
		if conj {
			f.F64Add()
		} else {
			f.F64Sub()
		}
		f.F64Add()
		f.LocalSet(acc)
		wrapIndex(f, idx, j, n)
	}

	forRange(f, j, zero(f), local(f, n), func() {
		f.F64Const(0)
		f.LocalSet(acc)
		f.I32Const(0)
		f.LocalSet(idx)
		forRange(f, k, zero(f), local(f, h), func() {
			addr(f, in, k, 3)
			f.LocalSet(p)
			term(false)
		})
		// k continues from h
		f.Block()
		f.Loop()
		f.LocalGet(k)
		f.LocalGet(n)
		f.I32GeU()
		f.BrIf(1)
		f.LocalGet(in)
		f.LocalGet(n)
		f.LocalGet(k)
		f.I32Sub()
		f.I32Const(3)
		f.I32Shl()
		f.I32Add()
		f.LocalSet(p)
		term(true)
		incr(f, k, 1)
		f.Br(0)
		f.End()
		f.End()

		addr(f, out, j, 2)
		f.LocalGet(acc)
		f.F32DemoteF64()
		f.F32Store(0)
	})
}

// plan_exec(plan, in, out) runs a plan. Complex plans copy in to out and
// transform out in place. Real forward plans transform rows into out and
// then the remaining axes; real inverse plans stage the packed input in
// the plan's work area, transform the leading axes there and finish row by
// row into out.
func (b *builder) emitPlanExec() {
	f := b.m.Func(vals(i32, i32, i32), none)
	b.planExec = f
	plan, in, out := f.Param(0), f.Param(1), f.Param(2)
	ndims := f.Local(i32)
	total := f.Local(i32)
	rows := f.Local(i32)
	h := f.Local(i32)
	scratch := f.Local(i32)
	work := f.Local(i32)
	lastAxis := f.Local(i32)
	last := f.Local(i32)
	a := f.Local(i32)
	r := f.Local(i32)
	lead := f.Local(i32)

	load := func(dst, off uint32) {
		f.LocalGet(plan)
		f.I32Load(off)
		f.LocalSet(dst)
	}
	load(ndims, planNDims)
	load(total, planTotal)
	load(rows, planRows)
	load(h, planH)
	load(scratch, planScratch)
	load(work, planWork)

	axisPasses := func(data uint32, count func()) {
		forRange(f, a, zero(f), count, func() {
			f.LocalGet(data)
			f.LocalGet(plan)
			f.I32Const(planAxes)
			f.I32Add()
			f.LocalGet(a)
			f.I32Const(4)
			f.I32Shl()
			f.I32Add()
			f.LocalGet(scratch)
			f.Call(b.axisPass)
		})
	}

	f.LocalGet(plan)
	f.I32Load(planKind)
	f.I32Eqz()
	f.If()
	f.LocalGet(out)
	f.LocalGet(in)
	f.LocalGet(total)
	f.I32Const(1)
	f.I32Shl()
	f.Call(b.copyWords)
	axisPasses(out, local(f, ndims))
	f.Return()
	f.End()

	f.LocalGet(ndims)
	f.I32Const(1)
	f.I32Sub()
	f.LocalSet(lead)
	f.LocalGet(plan)
	f.I32Const(planAxes)
	f.I32Add()
	f.LocalGet(lead)
	f.I32Const(4)
	f.I32Shl()
	f.I32Add()
	f.LocalSet(lastAxis)
	f.LocalGet(lastAxis)
	f.I32Load(axisN)
	f.LocalSet(last)

	// rowPtr pushes base + r*width*elemBytes
	rowPtr := func(base, width uint32, shift int32) {
		f.LocalGet(base)
		f.LocalGet(r)
		f.LocalGet(width)
		f.I32Mul()
		f.I32Const(shift)
		f.I32Shl()
		f.I32Add()
	}

	f.LocalGet(plan)
	f.I32Load(planInverse)
	f.I32Eqz()
	f.If()
	forRange(f, r, zero(f), local(f, rows), func() {
		rowPtr(in, last, 2)
		rowPtr(out, h, 3)
		f.LocalGet(lastAxis)
		f.Call(b.rowR2C)
	})
	axisPasses(out, local(f, lead))
	f.Else()
	f.LocalGet(work)
	f.LocalGet(in)
	f.LocalGet(rows)
	f.LocalGet(h)
	f.I32Mul()
	f.I32Const(1)
	f.I32Shl()
	f.Call(b.copyWords)
	axisPasses(work, local(f, lead))
	forRange(f, r, zero(f), local(f, rows), func() {
		rowPtr(work, h, 3)
		rowPtr(out, last, 2)
		f.LocalGet(lastAxis)
		f.Call(b.rowC2R)
	})
	f.End()
}

func (b *builder) emitExports() {
	m := b.m

	alloc1D := func(kind int32) *asm.Func {
		// (nfft, inverse, mem, lenmem) -> plan; mem and lenmem are ignored
		f := m.Func(vals(i32, i32, i32, i32), vals(i32))
		f.I32Const(dimsSlot)
		f.LocalGet(f.Param(0))
		f.I32Store(0)
		f.I32Const(kind)
		f.I32Const(dimsSlot)
		f.I32Const(1)
		f.LocalGet(f.Param(1))
		f.Call(b.planNew)
		return f
	}
	allocND := func(kind int32) *asm.Func {
		// (dims, ndims, inverse, mem, lenmem) -> plan
		f := m.Func(vals(i32, i32, i32, i32, i32), vals(i32))
		f.I32Const(kind)
		f.LocalGet(f.Param(0))
		f.LocalGet(f.Param(1))
		f.LocalGet(f.Param(2))
		f.Call(b.planNew)
		return f
	}

	m.Export(ExportMalloc, b.malloc)
	m.Export(ExportFree, b.free)
	m.Export(ExportFFTAlloc, alloc1D(0))
	m.Export(ExportFFTRAlloc, alloc1D(1))
	m.Export(ExportFFTNDAlloc, allocND(0))
	m.Export(ExportNDRAlloc, allocND(1))
	for _, name := range []string{
		ExportFFT, ExportFFTR, ExportFFTRI,
		ExportFFTND, ExportFFTNDR, ExportFFTNDRI,
	} {
		m.Export(name, b.planExec)
	}
	m.Export(ExportCleanup, b.cleanup)
	m.Export(ExportNextFastSize, b.nextFast)
}
