package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/hatlonely/tablex/log"
	"github.com/hatlonely/tablex/log/logger"
	"github.com/hatlonely/tablex/ref"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type ObservableStoreOptions struct {
	// Store 被包装的底层存储配置
	Store *ref.TypeOptions `cfg:"store" validate:"required"`

	// Logger 日志记录器配置
	Logger *ref.TypeOptions `cfg:"logger"`

	// EnableMetrics 是否启用指标收集
	EnableMetrics bool `cfg:"enableMetrics" def:"true"`

	// EnableLogging 是否启用日志记录
	EnableLogging bool `cfg:"enableLogging" def:"true"`

	// EnableTracing 是否启用分布式追踪
	EnableTracing bool `cfg:"enableTracing" def:"false"`

	// Name 组件名称标识，作为指标名前缀、日志 component 字段和 span 属性
	Name string `cfg:"name" def:"table_cache"`
}

// ObservableMetrics 封装 prometheus 指标
type ObservableMetrics struct {
	operationCounter  *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	hitCounter        *prometheus.CounterVec
}

func NewObservableMetrics(name string) *ObservableMetrics {
	metrics := &ObservableMetrics{
		operationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_operations_total",
				Help: "Total number of cache operations",
			},
			[]string{"operation", "status"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    name + "_operation_duration_seconds",
				Help:    "Duration of cache operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
			},
			[]string{"operation"},
		),
		hitCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: name + "_lookups_total",
				Help: "Cache lookups partitioned by hit/miss",
			},
			[]string{"result"},
		),
	}

	prometheus.MustRegister(
		metrics.operationCounter,
		metrics.operationDuration,
		metrics.hitCounter,
	)

	return metrics
}

// ObservableStore 装饰器，为任何 Store 添加观测能力。
// 表数据的缓存命中率直接决定数据源的抓取压力，这里是唯一的观测点。
type ObservableStore[K comparable, V any] struct {
	store Store[K, V]

	logger        logger.Logger
	metrics       *ObservableMetrics
	tracer        trace.Tracer
	name          string
	enableMetrics bool
	enableLogging bool
	enableTracing bool
}

func NewObservableStoreWithOptions[K comparable, V any](options *ObservableStoreOptions) (*ObservableStore[K, V], error) {
	if options == nil {
		return nil, errors.New("options is nil")
	}
	if options.Name == "" {
		options.Name = "table_cache"
	}

	store, err := NewStoreWithOptions[K, V](options.Store)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to create underlying store")
	}

	obs := &ObservableStore[K, V]{
		store:         store,
		name:          options.Name,
		enableMetrics: options.EnableMetrics,
		enableLogging: options.EnableLogging,
		enableTracing: options.EnableTracing,
	}

	if options.EnableLogging && options.Logger != nil {
		l, err := log.NewLoggerWithOptions(options.Logger)
		if err != nil {
			return nil, errors.WithMessage(err, "failed to create logger")
		}
		obs.logger = l.WithGroup("observableStore")
	}

	if options.EnableMetrics {
		obs.metrics = NewObservableMetrics(options.Name)
	}

	if options.EnableTracing {
		obs.tracer = otel.Tracer(fmt.Sprintf("cache.%s", options.Name))
	}

	return obs, nil
}

// observeOperation 统一的操作观测逻辑
func (obs *ObservableStore[K, V]) observeOperation(ctx context.Context, operation string, fn func(context.Context) error) error {
	start := time.Now()

	var span trace.Span
	if obs.enableTracing && obs.tracer != nil {
		ctx, span = obs.tracer.Start(ctx, fmt.Sprintf("cache.%s", operation),
			trace.WithAttributes(
				attribute.String("component", obs.name),
				attribute.String("operation", operation),
			),
		)
		defer span.End()
	}

	err := fn(ctx)
	duration := time.Since(start)

	if obs.enableTracing && span != nil {
		span.SetAttributes(attribute.Int64("duration_ms", duration.Milliseconds()))
		if err != nil && !errors.Is(err, ErrKeyNotFound) {
			span.SetStatus(codes.Error, err.Error())
			span.RecordError(err)
		} else {
			span.SetStatus(codes.Ok, "")
		}
	}

	if obs.enableMetrics && obs.metrics != nil {
		status := "success"
		if err != nil && !errors.Is(err, ErrKeyNotFound) {
			status = "error"
		}
		obs.metrics.operationCounter.WithLabelValues(operation, status).Inc()
		obs.metrics.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}

	if obs.enableLogging && obs.logger != nil && err != nil && !errors.Is(err, ErrKeyNotFound) {
		obs.logger.ErrorContext(ctx, "cache operation failed",
			"component", obs.name,
			"operation", operation,
			"duration_ms", duration.Milliseconds(),
			"error", err.Error(),
		)
	}

	return err
}

func (obs *ObservableStore[K, V]) Set(ctx context.Context, key K, value V, opts ...SetOption) error {
	return obs.observeOperation(ctx, "set", func(ctx context.Context) error {
		return obs.store.Set(ctx, key, value, opts...)
	})
}

func (obs *ObservableStore[K, V]) Get(ctx context.Context, key K) (V, error) {
	var result V
	err := obs.observeOperation(ctx, "get", func(ctx context.Context) error {
		var getErr error
		result, getErr = obs.store.Get(ctx, key)
		return getErr
	})

	if obs.enableMetrics && obs.metrics != nil {
		if err == nil {
			obs.metrics.hitCounter.WithLabelValues("hit").Inc()
		} else if errors.Is(err, ErrKeyNotFound) {
			obs.metrics.hitCounter.WithLabelValues("miss").Inc()
		}
	}

	return result, err
}

func (obs *ObservableStore[K, V]) Del(ctx context.Context, key K) error {
	return obs.observeOperation(ctx, "del", func(ctx context.Context) error {
		return obs.store.Del(ctx, key)
	})
}

func (obs *ObservableStore[K, V]) BatchSet(ctx context.Context, keys []K, vals []V, opts ...SetOption) ([]error, error) {
	var errs []error
	err := obs.observeOperation(ctx, "batchSet", func(ctx context.Context) error {
		var batchErr error
		errs, batchErr = obs.store.BatchSet(ctx, keys, vals, opts...)
		return batchErr
	})
	return errs, err
}

func (obs *ObservableStore[K, V]) BatchGet(ctx context.Context, keys []K) ([]V, []error, error) {
	var values []V
	var errs []error
	err := obs.observeOperation(ctx, "batchGet", func(ctx context.Context) error {
		var batchErr error
		values, errs, batchErr = obs.store.BatchGet(ctx, keys)
		return batchErr
	})

	if obs.enableMetrics && obs.metrics != nil && err == nil {
		for _, keyErr := range errs {
			if keyErr == nil {
				obs.metrics.hitCounter.WithLabelValues("hit").Inc()
			} else if errors.Is(keyErr, ErrKeyNotFound) {
				obs.metrics.hitCounter.WithLabelValues("miss").Inc()
			}
		}
	}

	return values, errs, err
}

func (obs *ObservableStore[K, V]) BatchDel(ctx context.Context, keys []K) ([]error, error) {
	var errs []error
	err := obs.observeOperation(ctx, "batchDel", func(ctx context.Context) error {
		var batchErr error
		errs, batchErr = obs.store.BatchDel(ctx, keys)
		return batchErr
	})
	return errs, err
}

func (obs *ObservableStore[K, V]) Close() error {
	return obs.observeOperation(context.Background(), "close", func(ctx context.Context) error {
		return obs.store.Close()
	})
}
