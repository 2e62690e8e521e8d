package plancache

import (
	"fmt"
	"reflect"
	"testing"

	kissfft "github.com/wippyai/kissfft"
	"github.com/wippyai/kissfft/errors"
)

type fakePlanner struct {
	next       kissfft.Ptr
	live       map[kissfft.Ptr]bool
	failInv    bool
	failFwd    bool
	trap       bool
	allocCalls int
	doubleFree int
}

func newPlanner() *fakePlanner {
	return &fakePlanner{next: 4096, live: make(map[kissfft.Ptr]bool)}
}

func (p *fakePlanner) AllocPlan(kind kissfft.Kind, dims []int, inverse bool) (kissfft.Ptr, error) {
	p.allocCalls++
	if p.trap {
		return kissfft.NullPtr, fmt.Errorf("out of bounds memory access")
	}
	if (inverse && p.failInv) || (!inverse && p.failFwd) {
		return kissfft.NullPtr, nil
	}
	p.next += 64
	p.live[p.next] = true
	return p.next, nil
}

func (p *fakePlanner) Free(ptr kissfft.Ptr) error {
	if !p.live[ptr] {
		p.doubleFree++
		return fmt.Errorf("free of unknown plan %s", ptr)
	}
	delete(p.live, ptr)
	return nil
}

func TestKey(t *testing.T) {
	tests := []struct {
		kind kissfft.Kind
		dims []int
		want string
	}{
		{kissfft.KindComplex, []int{16}, "c:16"},
		{kissfft.KindReal, []int{1024}, "r:1024"},
		{kissfft.KindNDComplex, []int{4, 4}, "nd:4x4"},
		{kissfft.KindNDReal, []int{2, 3, 8}, "ndr:2x3x8"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			k := NewKey(tt.kind, tt.dims)
			if k.String() != tt.want {
				t.Errorf("String() = %q", k.String())
			}
			if !reflect.DeepEqual(k.Dims(), tt.dims) {
				t.Errorf("Dims() = %v", k.Dims())
			}
			if k != NewKey(tt.kind, append([]int(nil), tt.dims...)) {
				t.Error("equal inputs produced different keys")
			}
		})
	}

	if NewKey(kissfft.KindComplex, []int{16}) == NewKey(kissfft.KindReal, []int{16}) {
		t.Error("kind must be part of key identity")
	}
	k := NewKey(kissfft.KindNDComplex, []int{4, 4})
	d := k.Dims()
	d[0] = 99
	if k.Dims()[0] != 4 {
		t.Error("Dims() must return a copy")
	}
	if k.Size() != 16 {
		t.Errorf("Size() = %d", k.Size())
	}

	big := make([]int, MaxDims)
	for i := range big {
		big[i] = 10 + i
	}
	bk := NewKey(kissfft.KindNDComplex, big)
	if got := bk.Dims(); !reflect.DeepEqual(got, big) {
		t.Errorf("Dims() = %v, want %v", got, big)
	}
	big[0] = 1
	if bk.Dims()[0] != 10 {
		t.Error("key must not alias the caller's slice")
	}
	if NewKey(kissfft.KindNDComplex, []int{4, 4}) == NewKey(kissfft.KindNDComplex, []int{4, 4, 1}) {
		t.Error("rank must be part of key identity")
	}

	defer func() {
		if recover() == nil {
			t.Error("NewKey accepted more than MaxDims dimensions")
		}
	}()
	NewKey(kissfft.KindNDComplex, make([]int, MaxDims+1))
}

func TestAcquire_Cached(t *testing.T) {
	p := newPlanner()
	c := New()
	key := NewKey(kissfft.KindComplex, []int{16})

	a, err := c.Acquire(key, p, true)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Acquire(key, p, true)
	if err != nil {
		t.Fatal(err)
	}
	if a.Hit() || !b.Hit() {
		t.Error("first acquire should miss and second should hit")
	}
	if st := c.Stats(); st.Size != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Errorf("Stats = %+v", st)
	}
	if c.Refs(key) != 2 {
		t.Errorf("Refs = %d, want 2", c.Refs(key))
	}
	if a.Forward() != b.Forward() || a.Inverse() != b.Inverse() {
		t.Error("cached refs should share plans")
	}
	if p.allocCalls != 2 {
		t.Errorf("AllocPlan called %d times, want 2", p.allocCalls)
	}

	a.Release()
	a.Release() // second release is a no-op
	if c.Refs(key) != 1 {
		t.Errorf("Refs after one release = %d, want 1", c.Refs(key))
	}
	if !b.Valid() {
		t.Error("remaining ref should stay valid")
	}

	b.Release()
	if st := c.Stats(); st.Size != 0 {
		t.Errorf("Size after last release = %d", st.Size)
	}
	if len(p.live) != 0 || p.doubleFree != 0 {
		t.Errorf("live plans %d, double frees %d", len(p.live), p.doubleFree)
	}
}

func TestAcquire_Uncached(t *testing.T) {
	p := newPlanner()
	c := New()
	key := NewKey(kissfft.KindReal, []int{32})

	a, _ := c.Acquire(key, p, false)
	b, _ := c.Acquire(key, p, false)
	if c.Stats().Size != 0 {
		t.Error("uncached acquire must not grow the cache")
	}
	if a.Forward() == b.Forward() {
		t.Error("uncached refs must have private plans")
	}
	if a.Cached() {
		t.Error("Cached() = true for uncached ref")
	}
	a.Release()
	if len(p.live) != 2 {
		t.Errorf("live plans = %d, want 2", len(p.live))
	}
	b.Release()
	if len(p.live) != 0 {
		t.Errorf("live plans = %d, want 0", len(p.live))
	}
}

func TestAcquire_InverseFailure(t *testing.T) {
	p := newPlanner()
	p.failInv = true
	c := New()
	key := NewKey(kissfft.KindComplex, []int{8})

	ref, err := c.Acquire(key, p, true)
	if ref != nil {
		t.Error("expected nil ref")
	}
	if !errors.IsKind(err, errors.KindPlanAllocation) {
		t.Fatalf("expected plan_allocation, got %v", err)
	}
	if len(p.live) != 0 {
		t.Error("forward plan leaked after inverse failure")
	}
	if c.Stats().Size != 0 {
		t.Error("failed acquire stored an entry")
	}
}

func TestAcquire_Errors(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*fakePlanner)
	}{
		{"forward null", func(p *fakePlanner) { p.failFwd = true }},
		{"trap", func(p *fakePlanner) { p.trap = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newPlanner()
			tt.setup(p)
			_, err := New().Acquire(NewKey(kissfft.KindComplex, []int{8}), p, true)
			if !errors.IsKind(err, errors.KindPlanAllocation) {
				t.Errorf("expected plan_allocation, got %v", err)
			}
		})
	}
}

func TestClearAll(t *testing.T) {
	p := newPlanner()
	c := New()

	if err := c.ClearAll(p); err != nil {
		t.Fatalf("ClearAll on empty cache: %v", err)
	}

	k1 := NewKey(kissfft.KindComplex, []int{16})
	k2 := NewKey(kissfft.KindNDComplex, []int{4, 4})
	a, _ := c.Acquire(k1, p, true)
	b, _ := c.Acquire(k2, p, true)
	if got := c.Stats().Keys; !reflect.DeepEqual(got, []string{"c:16", "nd:4x4"}) {
		t.Errorf("Keys = %v", got)
	}

	if err := c.ClearAll(p); err != nil {
		t.Fatal(err)
	}
	if c.Stats().Size != 0 || len(p.live) != 0 {
		t.Errorf("after ClearAll: size %d, live %d", c.Stats().Size, len(p.live))
	}
	if a.Valid() || a.Forward().Valid() {
		t.Error("ref should be invalid after ClearAll")
	}
	if err := a.Do(func(fwd, inv kissfft.Ptr) error { return nil }); err != ErrReleased {
		t.Errorf("Do after ClearAll = %v", err)
	}

	// Releasing cleared refs must not free again.
	a.Release()
	b.Release()
	if p.doubleFree != 0 {
		t.Errorf("double frees = %d", p.doubleFree)
	}

	// A new acquire for the same key builds a fresh pair.
	c2, err := c.Acquire(k1, p, true)
	if err != nil || !c2.Valid() {
		t.Fatalf("reacquire: %v", err)
	}
	c2.Release()
}

func TestRef_Do(t *testing.T) {
	p := newPlanner()
	c := New()
	ref, _ := c.Acquire(NewKey(kissfft.KindComplex, []int{4}), p, true)

	var gotFwd, gotInv kissfft.Ptr
	err := ref.Do(func(fwd, inv kissfft.Ptr) error {
		gotFwd, gotInv = fwd, inv
		return nil
	})
	if err != nil || gotFwd != ref.Forward() || gotInv != ref.Inverse() {
		t.Errorf("Do passed %s/%s, err %v", gotFwd, gotInv, err)
	}
	ref.Release()
	if err := ref.Do(func(_, _ kissfft.Ptr) error { return nil }); err != ErrReleased {
		t.Errorf("Do after release = %v", err)
	}
}
