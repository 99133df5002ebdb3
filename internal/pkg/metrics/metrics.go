package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按路由统计请求数。
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supertodo_http_requests_total",
		Help: "HTTP requests by method, route template and status code.",
	}, []string{"method", "route", "status"})

	// HTTPRequestDuration 按路由统计请求耗时。
	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "supertodo_http_request_duration_seconds",
		Help:    "HTTP request latency by method and route template.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// AuthEventsTotal 统计注册、登录、令牌校验结果。
	AuthEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supertodo_auth_events_total",
		Help: "Authentication events by event and result.",
	}, []string{"event", "result"})

	// TaskOperationsTotal 统计任务操作结果。
	TaskOperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supertodo_task_operations_total",
		Help: "Task store operations by operation and result.",
	}, []string{"op", "result"})

	// RateLimitRejectedTotal 统计被限流拒绝的请求。
	RateLimitRejectedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "supertodo_ratelimit_rejected_total",
		Help: "Requests rejected by the rate limiter by scope.",
	}, []string{"scope"})
)

var initOnce sync.Once

// InitMetrics 将所有指标注册到默认 Registry，可重复调用。
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AuthEventsTotal,
			TaskOperationsTotal,
			RateLimitRejectedTotal,
		)
	})
}

// ObserveAuth 记录一次认证事件。
func ObserveAuth(event string, err error) {
	AuthEventsTotal.WithLabelValues(event, result(err)).Inc()
}

// ObserveTask 记录一次任务操作。
func ObserveTask(op string, err error) {
	TaskOperationsTotal.WithLabelValues(op, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
