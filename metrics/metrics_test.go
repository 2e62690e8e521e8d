package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func findFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	for _, name := range []string{
		"kissfft_allocations_total",
		"kissfft_plan_cache_lookups_total",
		"kissfft_plan_cache_entries",
		"kissfft_sessions_active",
		"kissfft_guest_live_blocks",
		"kissfft_guest_memory_bytes",
	} {
		if findFamily(t, reg, name) == nil {
			t.Errorf("metric %s not registered", name)
		}
	}

	// Pre-initialized label combinations are present with value 0.
	f := findFamily(t, reg, "kissfft_sessions_active")
	if got := len(f.GetMetric()); got != len(Kinds) {
		t.Errorf("sessions_active series = %d, want %d", got, len(Kinds))
	}
}

func TestMetrics_Record(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.EngineVariant("baseline")
	m.EngineVariant("simd")
	m.Allocation(true)
	m.Allocation(true)
	m.Allocation(false)
	m.PlanLookup(false, 1)
	m.PlanLookup(true, 1)
	m.SessionOpened("c")
	m.SessionOpened("c")
	m.SessionClosed("c")
	m.Transform("c", DirectionForward, time.Millisecond, nil)
	m.Transform("c", DirectionInverse, time.Millisecond, errors.New("trap"))
	m.Guest(3, 65536)

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"engine simd", m.engineInfo.WithLabelValues("simd"), 1},
		{"alloc ok", m.allocationsTotal.WithLabelValues(resultOK), 2},
		{"alloc failed", m.allocationsTotal.WithLabelValues(resultFailed), 1},
		{"lookup hit", m.planLookupsTotal.WithLabelValues(lookupHit), 1},
		{"lookup miss", m.planLookupsTotal.WithLabelValues(lookupMiss), 1},
		{"cache entries", m.planCacheEntries, 1},
		{"sessions", m.sessionsActive.WithLabelValues("c"), 1},
		{"transform ok", m.transformsTotal.WithLabelValues("c", DirectionForward, resultOK), 1},
		{"transform failed", m.transformsTotal.WithLabelValues("c", DirectionInverse, resultFailed), 1},
		{"live blocks", m.guestLiveBlocks, 3},
		{"memory", m.guestMemoryBytes, 65536},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}

	// Reset drops the previous variant.
	if n := testutil.CollectAndCount(m.engineInfo); n != 1 {
		t.Errorf("engine_info series = %d, want 1", n)
	}
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	m.EngineVariant("simd")
	m.Allocation(true)
	m.PlanLookup(true, 1)
	m.PlanCacheSize(0)
	m.SessionOpened("c")
	m.SessionClosed("c")
	m.Transform("c", DirectionForward, 0, nil)
	m.Guest(0, 0)
}
