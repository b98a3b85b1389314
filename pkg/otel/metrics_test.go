package otel_test

import (
	"context"
	"sync"
	"testing"

	"github.com/easyops/contextengine-go/pkg/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInMemoryMetrics_Counter(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	ctx := context.Background()

	metrics.Counter(otel.MetricRetrievalRequests).Add(ctx, 5)
	metrics.Counter(otel.MetricRetrievalRequests).Add(ctx, 3, otel.NewAttr("entity", "1"))

	if got := metrics.GetCounterValue(otel.MetricRetrievalRequests); got != 8 {
		t.Fatalf("expected counter value 8, got %d", got)
	}
	if got := metrics.GetCounterValue("non_existent"); got != 0 {
		t.Fatalf("expected 0 for missing counter, got %d", got)
	}
}

func TestInMemoryMetrics_Series(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	ctx := context.Background()

	c := metrics.Counter(otel.MetricLLMRequests)
	c.Add(ctx, 1, otel.NewAttr("status", "error"), otel.NewAttr("provider", "openai"))
	c.Add(ctx, 2, otel.NewAttr("provider", "openai"), otel.NewAttr("status", "success"))
	c.Add(ctx, 1, otel.NewAttr("provider", "openai"), otel.NewAttr("status", "error"))

	if got := metrics.GetCounterValue(otel.MetricLLMRequests); got != 4 {
		t.Fatalf("expected total 4, got %d", got)
	}
	if got := metrics.GetSeriesValue(otel.MetricLLMRequests, otel.NewAttr("provider", "openai"), otel.NewAttr("status", "error")); got != 2 {
		t.Fatalf("expected 2 errors regardless of label order, got %d", got)
	}
	if got := metrics.GetSeriesValue(otel.MetricLLMRequests, otel.NewAttr("status", "error")); got != 0 {
		t.Fatalf("partial label set should not match, got %d", got)
	}
}

func TestInMemoryMetrics_HistogramAndGauge(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	ctx := context.Background()

	metrics.Histogram(otel.MetricAssemblyDuration).Record(ctx, 1.5)
	metrics.Histogram(otel.MetricAssemblyDuration).Record(ctx, 2.5)
	if got := metrics.GetHistogramValues(otel.MetricAssemblyDuration); len(got) != 2 || got[1] != 2.5 {
		t.Fatalf("unexpected histogram values %v", got)
	}

	metrics.Gauge(otel.MetricKnowledgeChunks).Set(ctx, 42)
	metrics.Gauge(otel.MetricKnowledgeChunks).Set(ctx, 7)
	if got := metrics.GetGaugeValue(otel.MetricKnowledgeChunks); got != 7 {
		t.Fatalf("expected gauge 7, got %f", got)
	}
}

func TestInMemoryMetrics_Concurrent(t *testing.T) {
	metrics := otel.NewInMemoryMetrics()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.Counter("concurrent").Add(ctx, 2)
		}()
	}
	wg.Wait()

	if got := metrics.GetCounterValue("concurrent"); got != 100 {
		t.Fatalf("expected 100, got %d", got)
	}
}

func TestPredefinedMetrics_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for _, m := range otel.PredefinedMetrics {
		if seen[m.Name] {
			t.Fatalf("duplicate metric %s", m.Name)
		}
		seen[m.Name] = true
	}
	if _, ok := otel.LookupMetric(otel.MetricHistoryCompressions); !ok {
		t.Fatal("expected history metric to be predefined")
	}
}

func TestOTelMetrics_Export(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	metrics := otel.NewOTelMetrics(mp.Meter("test"))
	ctx := context.Background()

	metrics.Counter(otel.MetricKnowledgeSearches).Add(ctx, 3, otel.NewAttr("state", "built"))
	metrics.Histogram(otel.MetricRetrievalDuration).Record(ctx, 12.5)
	metrics.Gauge(otel.MetricKnowledgeChunks).Set(ctx, 9)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	found := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			found[m.Name] = m
		}
	}

	sum, ok := found[otel.MetricKnowledgeSearches].Data.(metricdata.Sum[int64])
	if !ok || len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 3 {
		t.Fatalf("unexpected counter data %+v", found[otel.MetricKnowledgeSearches])
	}
	if found[otel.MetricKnowledgeSearches].Unit != "1" {
		t.Fatalf("expected unit from predefined list, got %q", found[otel.MetricKnowledgeSearches].Unit)
	}
	if _, ok := found[otel.MetricRetrievalDuration].Data.(metricdata.Histogram[float64]); !ok {
		t.Fatalf("expected histogram data, got %T", found[otel.MetricRetrievalDuration].Data)
	}
	gauge, ok := found[otel.MetricKnowledgeChunks].Data.(metricdata.Gauge[float64])
	if !ok || gauge.DataPoints[0].Value != 9 {
		t.Fatalf("unexpected gauge data %+v", found[otel.MetricKnowledgeChunks])
	}
}
