package guest

import (
	"context"
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/kissfft/errors"
)

func newInstance(t *testing.T, v Variant, limitPages uint32) api.Module {
	t.Helper()
	ctx := context.Background()
	cfg := wazero.NewRuntimeConfigInterpreter()
	if limitPages > 0 {
		cfg = cfg.WithMemoryLimitPages(limitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, cfg)
	t.Cleanup(func() { r.Close(ctx) })

	_, err := r.NewHostModuleBuilder(ImportModule).
		NewFunctionBuilder().WithFunc(func(_ context.Context, x float64) float64 { return math.Cos(x) }).Export(ImportCos).
		NewFunctionBuilder().WithFunc(func(_ context.Context, x float64) float64 { return math.Sin(x) }).Export(ImportSin).
		Instantiate(ctx)
	if err != nil {
		t.Fatalf("host module: %v", err)
	}
	mod, err := r.Instantiate(ctx, Module(v))
	if err != nil {
		t.Fatalf("instantiate %s: %v", v, err)
	}
	return mod
}

func call(t *testing.T, mod api.Module, name string, args ...uint64) uint32 {
	t.Helper()
	res, err := mod.ExportedFunction(name).Call(context.Background(), args...)
	if err != nil {
		t.Fatalf("%s: %v", name, err)
	}
	if len(res) == 0 {
		return 0
	}
	return api.DecodeU32(res[0])
}

func TestVariant(t *testing.T) {
	tests := []struct {
		v        Variant
		name     string
		filename string
	}{
		{Baseline, "baseline", "kissfft.wasm"},
		{SIMD, "simd", "kissfft-simd.wasm"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.v.String(); got != tt.name {
				t.Errorf("String() = %q", got)
			}
			if got := tt.v.Filename(); got != tt.filename {
				t.Errorf("Filename() = %q", got)
			}
			parsed, err := ParseVariant(tt.name)
			if err != nil || parsed != tt.v {
				t.Errorf("ParseVariant(%q) = %v, %v", tt.name, parsed, err)
			}
		})
	}
	if _, err := ParseVariant("avx"); !errors.IsKind(err, errors.KindInvalidArgument) {
		t.Errorf("ParseVariant(avx) error = %v, want invalid_argument", err)
	}
}

func TestModule_Exports(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter())
	defer r.Close(ctx)

	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			cm, err := r.CompileModule(ctx, Module(v))
			if err != nil {
				t.Fatalf("compile: %v", err)
			}
			funcs := cm.ExportedFunctions()
			for _, name := range RequiredFuncs {
				if _, ok := funcs[name]; !ok {
					t.Errorf("missing export %s", name)
				}
			}
			if _, ok := cm.ExportedMemories()[ExportMemory]; !ok {
				t.Error("memory not exported")
			}
		})
	}
}

func TestModule_FeatureGating(t *testing.T) {
	ctx := context.Background()
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter().
		WithCoreFeatures(api.CoreFeaturesV2&^api.CoreFeatureSIMD))
	defer r.Close(ctx)

	if _, err := r.CompileModule(ctx, Module(Baseline)); err != nil {
		t.Errorf("baseline should compile without SIMD: %v", err)
	}
	if _, err := r.CompileModule(ctx, Module(SIMD)); err == nil {
		t.Error("simd variant compiled without SIMD support")
	}
	if _, err := r.CompileModule(ctx, Canary()); err == nil {
		t.Error("canary compiled without SIMD support")
	}
}

func TestNextFastSize(t *testing.T) {
	mod := newInstance(t, Baseline, 0)
	tests := []struct{ in, want uint32 }{
		{0, 1},
		{1, 1},
		{2, 2},
		{7, 8},
		{11, 12},
		{13, 15},
		{101, 108},
		{1000, 1000},
		{1025, 1080},
	}
	for _, tt := range tests {
		if got := call(t, mod, ExportNextFastSize, api.EncodeU32(tt.in)); got != tt.want {
			t.Errorf("next_fast_size(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestMalloc(t *testing.T) {
	mod := newInstance(t, Baseline, 0)
	live := func() uint32 { return api.DecodeU32(mod.ExportedGlobal(ExportLiveBlocks).Get()) }
	top := func() uint32 { return api.DecodeU32(mod.ExportedGlobal(ExportHeapTop).Get()) }

	a := call(t, mod, ExportMalloc, 0)
	b := call(t, mod, ExportMalloc, 100)
	if a == 0 || b == 0 {
		t.Fatalf("malloc returned null: %d %d", a, b)
	}
	if a%8 != 0 || b%8 != 0 {
		t.Errorf("unaligned pointers %d %d", a, b)
	}
	if a < HeapBase || b <= a {
		t.Errorf("unexpected layout a=%d b=%d", a, b)
	}
	if live() != 2 {
		t.Errorf("live = %d, want 2", live())
	}

	call(t, mod, ExportFree, api.EncodeU32(b))
	c := call(t, mod, ExportMalloc, 64)
	if c != b {
		t.Errorf("freed block not reused: got %d, want %d", c, b)
	}

	call(t, mod, ExportFree, 0)
	if live() != 2 {
		t.Errorf("free(0) changed live count")
	}

	// cleanup is a no-op while blocks are live
	before := top()
	call(t, mod, ExportCleanup)
	if top() != before {
		t.Error("cleanup reset heap with live blocks")
	}

	call(t, mod, ExportFree, api.EncodeU32(a))
	call(t, mod, ExportFree, api.EncodeU32(c))
	call(t, mod, ExportCleanup)
	if live() != 0 || top() != HeapBase {
		t.Errorf("after cleanup live=%d top=%d", live(), top())
	}
}

func TestMalloc_Exhaustion(t *testing.T) {
	mod := newInstance(t, Baseline, 4)
	if p := call(t, mod, ExportMalloc, 1<<20); p != 0 {
		t.Errorf("malloc beyond limit = %d, want 0", p)
	}
	if p := call(t, mod, ExportMalloc, 0xfffffff0); p != 0 {
		t.Errorf("huge malloc = %d, want 0", p)
	}
	if p := call(t, mod, ExportMalloc, 1024); p == 0 {
		t.Error("small malloc failed after exhaustion")
	}
}

func TestPlan_Invalid(t *testing.T) {
	mod := newInstance(t, Baseline, 0)
	dims := func(d ...uint32) (uint64, uint64) {
		p := call(t, mod, ExportMalloc, api.EncodeU32(uint32(4*len(d))))
		for i, v := range d {
			mod.Memory().WriteUint32Le(p+uint32(4*i), v)
		}
		return api.EncodeU32(p), api.EncodeU32(uint32(len(d)))
	}

	if p := call(t, mod, ExportFFTRAlloc, 7, 0, 0, 0); p != 0 {
		t.Error("odd real plan accepted")
	}
	if p := call(t, mod, ExportFFTAlloc, 0, 0, 0, 0); p != 0 {
		t.Error("zero-length plan accepted")
	}
	d, n := dims(4, 0)
	if p := call(t, mod, ExportFFTNDAlloc, d, n, 0, 0, 0); p != 0 {
		t.Error("zero dimension accepted")
	}
	d, n = dims(4, 5)
	if p := call(t, mod, ExportNDRAlloc, d, n, 0, 0, 0); p != 0 {
		t.Error("odd last dimension accepted for real ND")
	}
	d, n = dims(1<<12, 1<<13)
	if p := call(t, mod, ExportFFTNDAlloc, d, n, 0, 0, 0); p != 0 {
		t.Error("oversized plan accepted")
	}
	if p := call(t, mod, ExportFFTNDAlloc, d, 0, 0, 0, 0); p != 0 {
		t.Error("zero ndims accepted")
	}
}

// dft applies an unnormalized DFT along every axis of a row-major array.
func dft(x []complex128, dims []int, inverse bool) []complex128 {
	out := append([]complex128(nil), x...)
	sign := -1.0
	if inverse {
		sign = 1
	}
	inner := 1
	for a := len(dims) - 1; a >= 0; a-- {
		n := dims[a]
		outer := len(x) / (n * inner)
		line := make([]complex128, n)
		for o := 0; o < outer; o++ {
			for i := 0; i < inner; i++ {
				base := o*n*inner + i
				for j := 0; j < n; j++ {
					line[j] = out[base+j*inner]
				}
				for k := 0; k < n; k++ {
					var acc complex128
					for j := 0; j < n; j++ {
						acc += line[j] * cmplx.Exp(complex(0, sign*2*math.Pi*float64(j*k)/float64(n)))
					}
					out[base+k*inner] = acc
				}
			}
		}
		inner *= n
	}
	return out
}

type instance struct {
	t   *testing.T
	mod api.Module
}

func (in instance) alloc(floats int) uint32 {
	p := call(in.t, in.mod, ExportMalloc, api.EncodeU32(uint32(floats*4)))
	if p == 0 {
		in.t.Fatal("malloc failed")
	}
	return p
}

func (in instance) write(p uint32, v []float32) {
	for i, f := range v {
		in.mod.Memory().WriteFloat32Le(p+uint32(4*i), f)
	}
}

func (in instance) read(p uint32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i], _ = in.mod.Memory().ReadFloat32Le(p + uint32(4*i))
	}
	return out
}

func (in instance) plan(alloc string, dims []int, inverse bool) uint32 {
	inv := uint64(0)
	if inverse {
		inv = 1
	}
	var p uint32
	if alloc == ExportFFTAlloc || alloc == ExportFFTRAlloc {
		p = call(in.t, in.mod, alloc, api.EncodeU32(uint32(dims[0])), inv, 0, 0)
	} else {
		d := call(in.t, in.mod, ExportMalloc, api.EncodeU32(uint32(4*len(dims))))
		for i, v := range dims {
			in.mod.Memory().WriteUint32Le(d+uint32(4*i), uint32(v))
		}
		p = call(in.t, in.mod, alloc, api.EncodeU32(d), api.EncodeU32(uint32(len(dims))), inv, 0, 0)
		call(in.t, in.mod, ExportFree, api.EncodeU32(d))
	}
	if p == 0 {
		in.t.Fatalf("%s%v returned null plan", alloc, dims)
	}
	return p
}

func assertClose(t *testing.T, got []float32, want []complex128) {
	t.Helper()
	if len(got) != 2*len(want) {
		t.Fatalf("length %d, want %d", len(got), 2*len(want))
	}
	for i, w := range want {
		re, im := float64(got[2*i]), float64(got[2*i+1])
		if math.Abs(re-real(w)) > 1e-3 || math.Abs(im-imag(w)) > 1e-3 {
			t.Fatalf("bin %d = (%g,%g), want %v", i, re, im, w)
		}
	}
}

func TestTransforms(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for _, v := range Variants() {
		t.Run(v.String(), func(t *testing.T) {
			in := instance{t: t, mod: newInstance(t, v, 0)}

			for _, dims := range [][]int{{8}, {5}, {2, 3, 4}} {
				total := 1
				for _, d := range dims {
					total *= d
				}
				x := make([]complex128, total)
				flat := make([]float32, 2*total)
				for i := range x {
					re, im := float32(rng.Float64()*2-1), float32(rng.Float64()*2-1)
					x[i] = complex(float64(re), float64(im))
					flat[2*i], flat[2*i+1] = re, im
				}
				alloc, exec := ExportFFTNDAlloc, ExportFFTND
				if len(dims) == 1 {
					alloc, exec = ExportFFTAlloc, ExportFFT
				}
				src, dst := in.alloc(2*total), in.alloc(2*total)
				in.write(src, flat)

				fwd := in.plan(alloc, dims, false)
				call(t, in.mod, exec, api.EncodeU32(fwd), api.EncodeU32(src), api.EncodeU32(dst))
				assertClose(t, in.read(dst, 2*total), dft(x, dims, false))

				inv := in.plan(alloc, dims, true)
				call(t, in.mod, exec, api.EncodeU32(inv), api.EncodeU32(dst), api.EncodeU32(src))
				scaled := make([]complex128, total)
				for i := range x {
					scaled[i] = x[i] * complex(float64(total), 0)
				}
				assertClose(t, in.read(src, 2*total), scaled)
			}

			for _, dims := range [][]int{{8}, {2}, {4, 6}, {3, 2, 4}} {
				total := 1
				for _, d := range dims {
					total *= d
				}
				last := dims[len(dims)-1]
				h := last/2 + 1
				rows := total / last

				x := make([]complex128, total)
				flat := make([]float32, total)
				for i := range x {
					f := float32(rng.Float64()*2 - 1)
					x[i] = complex(float64(f), 0)
					flat[i] = f
				}
				full := dft(x, dims, false)
				packed := make([]complex128, 0, rows*h)
				for r := 0; r < rows; r++ {
					packed = append(packed, full[r*last:r*last+h]...)
				}

				alloc, fwdExec, invExec := ExportNDRAlloc, ExportFFTNDR, ExportFFTNDRI
				if len(dims) == 1 {
					alloc, fwdExec, invExec = ExportFFTRAlloc, ExportFFTR, ExportFFTRI
				}
				src, spec := in.alloc(total), in.alloc(2*rows*h)
				in.write(src, flat)

				fwd := in.plan(alloc, dims, false)
				call(t, in.mod, fwdExec, api.EncodeU32(fwd), api.EncodeU32(src), api.EncodeU32(spec))
				assertClose(t, in.read(spec, 2*rows*h), packed)

				inv := in.plan(alloc, dims, true)
				dst := in.alloc(total)
				call(t, in.mod, invExec, api.EncodeU32(inv), api.EncodeU32(spec), api.EncodeU32(dst))
				got := in.read(dst, total)
				for i := range flat {
					if math.Abs(float64(got[i])/float64(total)-float64(flat[i])) > 1e-4 {
						t.Fatalf("%v: sample %d = %g, want %g", dims, i, got[i]/float32(total), flat[i])
					}
				}
			}
		})
	}
}
