package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/api"

	"github.com/wippyai/kissfft/errors"
	"github.com/wippyai/kissfft/guest"
	"github.com/wippyai/kissfft/loader"
)

func TestParsePreference(t *testing.T) {
	tests := []struct {
		in      string
		want    Preference
		wantErr bool
	}{
		{"", Auto, false},
		{"auto", Auto, false},
		{"SIMD", ForceSIMD, false},
		{" baseline ", ForceBaseline, false},
		{"avx512", Auto, true},
	}
	for _, tt := range tests {
		got, err := ParsePreference(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParsePreference(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestAcquirer_Candidates(t *testing.T) {
	noSIMD := api.CoreFeaturesV2 &^ api.CoreFeatureSIMD
	tests := []struct {
		name     string
		cfg      Config
		expected []guest.Variant
	}{
		{"auto with simd", Config{}, []guest.Variant{guest.SIMD, guest.Baseline}},
		{"auto without simd", Config{Features: noSIMD}, []guest.Variant{guest.Baseline}},
		{"force simd skips probe", Config{Preference: ForceSIMD, Features: noSIMD}, []guest.Variant{guest.SIMD, guest.Baseline}},
		{"force baseline", Config{Preference: ForceBaseline}, []guest.Variant{guest.Baseline}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAcquirer(tt.cfg).Candidates(context.Background())
			if fmt.Sprint(got) != fmt.Sprint(tt.expected) {
				t.Errorf("Candidates() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestAcquirer_Get(t *testing.T) {
	noSIMD := api.CoreFeaturesV2 &^ api.CoreFeatureSIMD
	tests := []struct {
		name    string
		cfg     Config
		variant guest.Variant
	}{
		{"auto picks simd", Config{}, guest.SIMD},
		{"auto falls back without probe support", Config{Features: noSIMD}, guest.Baseline},
		{"forced simd falls back when compile fails", Config{Preference: ForceSIMD, Features: noSIMD}, guest.Baseline},
		{"forced baseline", Config{Preference: ForceBaseline}, guest.Baseline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			a := NewAcquirer(tt.cfg)
			defer a.Close(ctx)

			e, err := a.Get(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if e.Variant() != tt.variant {
				t.Errorf("variant = %s, want %s", e.Variant(), tt.variant)
			}
		})
	}
}

func TestAcquirer_Idempotent(t *testing.T) {
	ctx := context.Background()
	var calls int
	var mu sync.Mutex
	a := NewAcquirer(Config{
		Preference: ForceBaseline,
		Resolver: loader.Func(func(ctx context.Context, v guest.Variant) ([]byte, error) {
			mu.Lock()
			calls++
			mu.Unlock()
			return guest.Module(v), nil
		}),
	})
	defer a.Close(ctx)

	var wg sync.WaitGroup
	engines := make([]*Engine, 8)
	for i := range engines {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := a.Get(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			engines[i] = e
		}(i)
	}
	wg.Wait()

	for _, e := range engines[1:] {
		if e != engines[0] {
			t.Fatal("Get returned different engines")
		}
	}
	if calls != 1 {
		t.Errorf("resolver called %d times, want 1", calls)
	}
	if a.Loaded() != engines[0] {
		t.Error("Loaded() does not match Get()")
	}
}

func TestAcquirer_FailureNotMemoized(t *testing.T) {
	ctx := context.Background()
	fail := true
	a := NewAcquirer(Config{
		Preference: ForceBaseline,
		Resolver: loader.Func(func(ctx context.Context, v guest.Variant) ([]byte, error) {
			if fail {
				return nil, fmt.Errorf("flaky storage")
			}
			return guest.Module(v), nil
		}),
	})
	defer a.Close(ctx)

	_, err := a.Get(ctx)
	if !errors.IsKind(err, errors.KindEngineUnavailable) {
		t.Fatalf("expected engine_unavailable, got %v", err)
	}
	fail = false
	if _, err := a.Get(ctx); err != nil {
		t.Fatalf("retry failed: %v", err)
	}
}

func TestAcquirer_AssetNotFound(t *testing.T) {
	ctx := context.Background()
	a := NewAcquirer(Config{Resolver: loader.Dir{Path: t.TempDir()}})
	_, err := a.Get(ctx)
	if !errors.IsKind(err, errors.KindAssetNotFound) {
		t.Fatalf("expected asset_not_found, got %v", err)
	}
}

func TestAcquirer_AllCandidatesFail(t *testing.T) {
	a := NewAcquirer(Config{
		Preference: ForceSIMD,
		Resolver: loader.Func(func(ctx context.Context, v guest.Variant) ([]byte, error) {
			return []byte("garbage"), nil
		}),
	})
	_, err := a.Get(context.Background())
	if !errors.IsKind(err, errors.KindEngineUnavailable) {
		t.Fatalf("expected engine_unavailable, got %v", err)
	}
	for _, v := range []string{"simd", "baseline"} {
		if !strings.Contains(err.Error(), v) {
			t.Errorf("error does not mention %s: %v", v, err)
		}
	}
}

func TestAcquirer_Timeout(t *testing.T) {
	a := NewAcquirer(Config{
		Preference:     ForceBaseline,
		AcquireTimeout: 10 * time.Millisecond,
		Resolver: loader.Func(func(ctx context.Context, v guest.Variant) ([]byte, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}),
	})
	_, err := a.Get(context.Background())
	if !errors.IsKind(err, errors.KindEngineUnavailable) {
		t.Fatalf("expected engine_unavailable, got %v", err)
	}
}

func TestAcquirer_CloseAndReacquire(t *testing.T) {
	ctx := context.Background()
	a := NewAcquirer(Config{Preference: ForceBaseline})
	first, err := a.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Close(ctx); err != nil {
		t.Fatal(err)
	}
	second, err := a.Get(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close(ctx)
	if first == second {
		t.Error("expected a fresh engine after Close")
	}
}
