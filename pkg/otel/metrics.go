package otel

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Metrics 按名称取得指标仪器
//
// 名称使用 metric_names.go 中的常量；同名多次调用返回同一个仪器。
type Metrics interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
	Gauge(name string) Gauge
}

// Counter 单调递增的计数
type Counter interface {
	Add(ctx context.Context, value int64, attrs ...Attr)
}

// Histogram 耗时、条数一类的分布
type Histogram interface {
	Record(ctx context.Context, value float64, attrs ...Attr)
}

// Gauge 最新值，例如索引中的分块数
type Gauge interface {
	Set(ctx context.Context, value float64, attrs ...Attr)
}

// Attr 指标标签
type Attr struct {
	Key   string
	Value interface{}
}

// NewAttr 创建指标标签
func NewAttr(key string, value interface{}) Attr {
	return Attr{Key: key, Value: value}
}

// seriesKey 名称加排序后的标签，例如 llm.requests{provider=openai,status=error}
func seriesKey(name string, attrs []Attr) string {
	if len(attrs) == 0 {
		return name
	}
	pairs := make([]string, 0, len(attrs))
	for _, a := range attrs {
		pairs = append(pairs, fmt.Sprintf("%s=%v", a.Key, a.Value))
	}
	sort.Strings(pairs)
	return name + "{" + strings.Join(pairs, ",") + "}"
}

// InMemoryMetrics 内存指标，供测试断言使用
//
// 计数器既按名称累计总数，也按标签组合累计，GetSeriesValue 可以查询带标签的序列。
type InMemoryMetrics struct {
	mu         sync.Mutex
	counters   map[string]int64
	histograms map[string][]float64
	gauges     map[string]float64
}

// NewInMemoryMetrics 创建内存指标
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{
		counters:   make(map[string]int64),
		histograms: make(map[string][]float64),
		gauges:     make(map[string]float64),
	}
}

func (m *InMemoryMetrics) Counter(name string) Counter     { return memInstrument{m: m, name: name} }
func (m *InMemoryMetrics) Histogram(name string) Histogram { return memInstrument{m: m, name: name} }
func (m *InMemoryMetrics) Gauge(name string) Gauge         { return memInstrument{m: m, name: name} }

// GetCounterValue 计数器总数，不区分标签
func (m *InMemoryMetrics) GetCounterValue(name string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[name]
}

// GetSeriesValue 带指定标签组合的计数
func (m *InMemoryMetrics) GetSeriesValue(name string, attrs ...Attr) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[seriesKey(name, attrs)]
}

// GetHistogramValues 直方图记录过的全部值，按记录顺序
func (m *InMemoryMetrics) GetHistogramValues(name string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.histograms[name]) == 0 {
		return nil
	}
	return append([]float64(nil), m.histograms[name]...)
}

// GetGaugeValue 仪表的最新值
func (m *InMemoryMetrics) GetGaugeValue(name string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gauges[name]
}

// memInstrument 同时实现三种仪器，写入所属的 InMemoryMetrics
type memInstrument struct {
	m    *InMemoryMetrics
	name string
}

func (i memInstrument) Add(_ context.Context, value int64, attrs ...Attr) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	i.m.counters[i.name] += value
	if len(attrs) > 0 {
		i.m.counters[seriesKey(i.name, attrs)] += value
	}
}

func (i memInstrument) Record(_ context.Context, value float64, _ ...Attr) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	i.m.histograms[i.name] = append(i.m.histograms[i.name], value)
}

func (i memInstrument) Set(_ context.Context, value float64, _ ...Attr) {
	i.m.mu.Lock()
	defer i.m.mu.Unlock()
	i.m.gauges[i.name] = value
}

// NoopMetrics 丢弃全部指标，未启用指标导出时使用
type NoopMetrics struct{}

// NewNoopMetrics 创建空指标
func NewNoopMetrics() *NoopMetrics {
	return &NoopMetrics{}
}

func (*NoopMetrics) Counter(string) Counter     { return noopInstrument{} }
func (*NoopMetrics) Histogram(string) Histogram { return noopInstrument{} }
func (*NoopMetrics) Gauge(string) Gauge         { return noopInstrument{} }

type noopInstrument struct{}

func (noopInstrument) Add(context.Context, int64, ...Attr)      {}
func (noopInstrument) Record(context.Context, float64, ...Attr) {}
func (noopInstrument) Set(context.Context, float64, ...Attr)    {}

var (
	_ Metrics = (*InMemoryMetrics)(nil)
	_ Metrics = (*NoopMetrics)(nil)
)
