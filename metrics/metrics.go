package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/forever-free1/kvs/storage"
	"github.com/forever-free1/kvs/storage/bitcask"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kvs"

// 操作结果标签
const (
	ResultOK       = "ok"
	ResultNotFound = "not_found"
	ResultError    = "error"
)

// Collector 收集存储引擎的 Prometheus 指标
// 使用独立的 Registry，避免与进程内其他组件的全局注册冲突
type Collector struct {
	registry *prometheus.Registry

	ops             *prometheus.CounterVec
	opDuration      *prometheus.HistogramVec
	compactions     *prometheus.CounterVec
	segmentsRemoved prometheus.Counter
	keys            prometheus.Gauge
	segments        prometheus.Gauge
}

// New 创建并注册所有指标
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Engine operations by kind and result.",
		}, []string{"op", "result"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Engine operation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 4, 8),
		}, []string{"op"}),
		compactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compactions_total",
			Help:      "Compaction passes by result.",
		}, []string{"result"}),
		segmentsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compaction_segments_removed_total",
			Help:      "Segment files deleted by compaction, tombstones included.",
		}),
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_keys",
			Help:      "Keys currently present in the index.",
		}),
		segments: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "segments",
			Help:      "Segment files in the store directory.",
		}),
	}

	c.registry.MustRegister(
		c.ops,
		c.opDuration,
		c.compactions,
		c.segmentsRemoved,
		c.keys,
		c.segments,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry 返回指标注册表
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler 返回 /metrics 的 HTTP 处理器
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ObserveCompaction 实现 bitcask.Observer
func (c *Collector) ObserveCompaction(result bitcask.CompactionResult, err error) {
	if err != nil {
		c.compactions.WithLabelValues(ResultError).Inc()
	} else {
		c.compactions.WithLabelValues(ResultOK).Inc()
	}
	// 中止的压缩在失败前可能已经删除了部分段
	c.segmentsRemoved.Add(float64(result.Removed + result.Tombstones))
}

// Instrument 包装 Engine，记录每次操作的结果和耗时
func (c *Collector) Instrument(engine storage.Engine) *InstrumentedEngine {
	ie := &InstrumentedEngine{engine: engine, collector: c}
	ie.refresh()
	return ie
}

// InstrumentedEngine 为 Engine 的每次调用记录指标
// 不是并发安全的，与底层引擎一样需要由 storage.LockedEngine 包装
type InstrumentedEngine struct {
	engine    storage.Engine
	collector *Collector
}

// Get 读取并记录结果
func (ie *InstrumentedEngine) Get(key string) (string, bool, error) {
	start := time.Now()
	value, ok, err := ie.engine.Get(key)

	result := ResultOK
	switch {
	case err != nil:
		result = ResultError
	case !ok:
		result = ResultNotFound
	}
	ie.record("get", result, start)
	return value, ok, err
}

// Set 写入并记录结果
func (ie *InstrumentedEngine) Set(key string, value string) error {
	start := time.Now()
	err := ie.engine.Set(key, value)
	ie.record("set", resultOf(err), start)
	ie.refresh()
	return err
}

// Remove 删除并记录结果
func (ie *InstrumentedEngine) Remove(key string) error {
	start := time.Now()
	err := ie.engine.Remove(key)
	ie.record("remove", resultOf(err), start)
	ie.refresh()
	return err
}

// Close 关闭底层引擎
func (ie *InstrumentedEngine) Close() error {
	return ie.engine.Close()
}

// Stats 透传底层引擎状态
func (ie *InstrumentedEngine) Stats() storage.Stats {
	if sp, ok := ie.engine.(storage.StatsProvider); ok {
		return sp.Stats()
	}
	return storage.Stats{}
}

func (ie *InstrumentedEngine) record(op, result string, start time.Time) {
	ie.collector.ops.WithLabelValues(op, result).Inc()
	ie.collector.opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// refresh 用引擎状态更新 gauge
func (ie *InstrumentedEngine) refresh() {
	sp, ok := ie.engine.(storage.StatsProvider)
	if !ok {
		return
	}
	stats := sp.Stats()
	ie.collector.keys.Set(float64(stats.Keys))
	ie.collector.segments.Set(float64(stats.Segments))
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, storage.ErrKeyNotFound):
		return ResultNotFound
	default:
		return ResultError
	}
}

// 确保实现了相关接口
var _ storage.Engine = (*InstrumentedEngine)(nil)
var _ storage.StatsProvider = (*InstrumentedEngine)(nil)
var _ bitcask.Observer = (*Collector)(nil)
