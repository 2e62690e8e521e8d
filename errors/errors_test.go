package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseValidate,
				Kind:   KindInvalidArgument,
				Op:     "nd forward",
				Detail: "wrong length: expected 32, got 30",
			},
			contains: []string{"[validate]", "invalid_argument", "nd forward", "expected 32, got 30"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseCompute,
				Kind:  KindUseAfterDispose,
			},
			contains: []string{"[compute]", "use_after_dispose"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseAcquire,
				Kind:   KindEngineUnavailable,
				Detail: "no variant could be instantiated",
				Cause:  errors.New("compile failed"),
			},
			contains: []string{"[acquire]", "engine_unavailable", "no variant", "caused by", "compile failed"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseAllocate,
		Kind:  KindTrap,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not find cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhasePlan,
		Kind:  KindPlanAllocation,
		Op:    "c:16",
	}

	if !err.Is(&Error{Phase: PhasePlan, Kind: KindPlanAllocation}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseAllocate, Kind: KindPlanAllocation}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhasePlan, Kind: KindAllocation}) {
		t.Error("Is should not match different kind")
	}
	if !err.Is(&Error{Kind: KindPlanAllocation}) {
		t.Error("Is should match kind-only target")
	}

	wrapped := fmt.Errorf("create session: %w", err)
	if !errors.Is(wrapped, &Error{Kind: KindPlanAllocation}) {
		t.Error("errors.Is should see through wrapping")
	}
}

func TestIsKind(t *testing.T) {
	inner := AssetNotFound("/tmp/kissfft.wasm", "run kissfft emit", nil)
	outer := EngineUnavailable("all variants failed", inner)

	if !IsKind(outer, KindEngineUnavailable) {
		t.Error("IsKind should match outer kind")
	}
	if !IsKind(outer, KindAssetNotFound) {
		t.Error("IsKind should match kind in cause chain")
	}
	if IsKind(outer, KindAllocation) {
		t.Error("IsKind matched unrelated kind")
	}
	if IsKind(nil, KindAllocation) {
		t.Error("IsKind(nil) should be false")
	}
	if IsKind(errors.New("plain"), KindAllocation) {
		t.Error("IsKind on plain error should be false")
	}

	joined := errors.Join(errors.New("first"), UseAfterDispose("forward", "disposed"))
	if !IsKind(joined, KindUseAfterDispose) {
		t.Error("IsKind should see through errors.Join")
	}
}

func TestKindOf(t *testing.T) {
	if got := KindOf(WrongLength("forward", 4, 3)); got != KindInvalidArgument {
		t.Errorf("KindOf = %q", got)
	}
	if got := KindOf(errors.New("plain")); got != "" {
		t.Errorf("KindOf(plain) = %q, want empty", got)
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseCompute, KindUseAfterDispose).
		Op("inverse").
		Value(42).
		Cause(cause).
		Detail("session %s disposed", "01J").
		Build()

	if err.Phase != PhaseCompute {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseCompute)
	}
	if err.Kind != KindUseAfterDispose {
		t.Errorf("Kind = %v, want %v", err.Kind, KindUseAfterDispose)
	}
	if err.Op != "inverse" {
		t.Errorf("Op = %q", err.Op)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v", err.Value)
	}
	if err.Detail != "session 01J disposed" {
		t.Errorf("Detail = %q", err.Detail)
	}
	if !errors.Is(err, cause) {
		t.Error("builder cause not wrapped")
	}

	plain := New(PhaseProbe, KindTrap).Detail("no args").Build()
	if plain.Detail != "no args" {
		t.Errorf("Detail = %q", plain.Detail)
	}
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name  string
		err   *Error
		phase Phase
		kind  Kind
		want  string
	}{
		{"invalid argument", InvalidArgument("complex", "size %d must be positive", 0), PhaseValidate, KindInvalidArgument, "size 0 must be positive"},
		{"wrong length", WrongLength("forward", 32, 31), PhaseValidate, KindInvalidArgument, "expected 32, got 31"},
		{"allocation", AllocationFailed("session", []string{"out"}, []string{"in"}, nil), PhaseAllocate, KindAllocation, "failed: out; rolled back: in"},
		{"allocation nothing rolled back", AllocationFailed("session", []string{"in"}, nil, nil), PhaseAllocate, KindAllocation, "failed: in"},
		{"plan", PlanAllocationFailed("c:16", "inverse", nil), PhasePlan, KindPlanAllocation, "no inverse plan"},
		{"unavailable", EngineUnavailable("both variants failed", nil), PhaseAcquire, KindEngineUnavailable, "both variants failed"},
		{"asset", AssetNotFound("dist/kissfft.wasm", "run kissfft emit dist", nil), PhaseAcquire, KindAssetNotFound, "kissfft emit dist"},
		{"dispose", UseAfterDispose("forward", "session disposed"), PhaseCompute, KindUseAfterDispose, "session disposed"},
		{"trap", Trap(PhaseCompute, "kiss_fft", errors.New("unreachable")), PhaseCompute, KindTrap, "unreachable"},
		{"wrap", Wrap(PhaseCleanup, KindTrap, errors.New("boom"), "cleanup"), PhaseCleanup, KindTrap, "boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Phase != tt.phase {
				t.Errorf("Phase = %v, want %v", tt.err.Phase, tt.phase)
			}
			if tt.err.Kind != tt.kind {
				t.Errorf("Kind = %v, want %v", tt.err.Kind, tt.kind)
			}
			if !strings.Contains(tt.err.Error(), tt.want) {
				t.Errorf("message %q does not contain %q", tt.err.Error(), tt.want)
			}
		})
	}
}
