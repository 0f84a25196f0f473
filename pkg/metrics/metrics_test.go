package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/vnykmshr/taskprocessor/internal/testutil"
)

func TestNilRegistryIsNoop(t *testing.T) {
	var r *Registry
	r.ObserveSubmit("s", "HIGH")
	r.ObserveDemotion("s", "NORMAL", "LOW")
	r.ObserveDequeue("s", "LOW")
	r.SetTierDepth("s", "LOW", 3)
	r.ObserveExecution("p", "scale", "SUCCESS", time.Millisecond)
	r.SetPoolSize("p", 4)
	r.AddActiveWorkers("p", 1)
	r.ObservePanic("p")
	r.ObserveStore("SUCCESS", 1, 2)
	r.ObserveMirrorError("redis")
	r.ObserveRecurring("job", nil)
}

func TestDisabledConfigReturnsNil(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Enabled = false
	if New(cfg) != nil {
		t.Fatal("disabled config should produce a nil registry")
	}
}

func TestRegistryCounters(t *testing.T) {
	m := NewRegistry(prometheus.NewRegistry())

	m.ObserveDemotion("s", "NORMAL", "LOW")
	m.ObserveStore("FAILURE", 2, 10)
	m.ObserveRecurring("gen", nil)
	m.ObserveRecurring("gen", errors.New("factory failed"))
	m.AddActiveWorkers("p", 2)
	m.AddActiveWorkers("p", -1)

	testutil.AssertEqual(t, promtestutil.ToFloat64(m.TasksDemoted.WithLabelValues("s", "NORMAL", "LOW")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.ResultsEvicted.WithLabelValues()), 2.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.ResultStoreLen.WithLabelValues()), 10.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.RecurringFired.WithLabelValues("gen")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.RecurringFailed.WithLabelValues("gen")), 1.0)
	testutil.AssertEqual(t, promtestutil.ToFloat64(m.WorkerPoolActive.WithLabelValues("p")), 1.0)
}

func TestCustomNamespaceAndLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(Config{
		Enabled:   true,
		Registry:  reg,
		Namespace: "custom",
		Labels:    prometheus.Labels{"instance": "a"},
	})
	m.ObserveSubmit("s", "LOW")

	families, err := reg.Gather()
	testutil.AssertNoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "custom_scheduler_tasks_submitted_total" {
			found = true
		}
	}
	if !found {
		t.Error("expected metric under the custom namespace")
	}
}
