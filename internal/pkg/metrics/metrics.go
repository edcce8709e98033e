package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// HTTPRequestsTotal 按方法/路由/状态码统计请求数。
	HTTPRequestsTotal *prometheus.CounterVec

	// HTTPRequestDuration 请求耗时分布（秒）。
	HTTPRequestDuration *prometheus.HistogramVec

	// RateLimitRejectedTotal 被限流拒绝的请求数。
	RateLimitRejectedTotal prometheus.Counter

	// MailQueueDepth 邮件队列当前积压任务数。
	MailQueueDepth prometheus.Gauge

	// MailSendFailedTotal 发送失败的邮件数。
	MailSendFailedTotal prometheus.Counter

	// UsersCreatedTotal 创建成功的账户数（含注册与管理员创建）。
	UsersCreatedTotal prometheus.Counter

	// TodosCreatedTotal 创建成功的任务数。
	TodosCreatedTotal prometheus.Counter
)

var initOnce sync.Once

// InitMetrics 初始化并注册所有 Prometheus 指标。
//
// 可以安全地重复调用（测试中会多次触发），只有第一次生效。
func InitMetrics() {
	initOnce.Do(func() {
		HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "taskboard_http_requests_total",
			Help: "Total HTTP requests by method, route and status code.",
		}, []string{"method", "route", "status"})

		HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "taskboard_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"})

		RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_ratelimit_rejected_total",
			Help: "Requests rejected by the per-IP rate limiter.",
		})

		MailQueueDepth = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "taskboard_mail_queue_depth",
			Help: "Pending jobs in the mail dispatch queue.",
		})

		MailSendFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_mail_send_failed_total",
			Help: "Email deliveries that returned an error.",
		})

		UsersCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_users_created_total",
			Help: "Accounts created via signup or the admin console.",
		})

		TodosCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "taskboard_todos_created_total",
			Help: "Todos created.",
		})

		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			RateLimitRejectedTotal,
			MailQueueDepth,
			MailSendFailedTotal,
			UsersCreatedTotal,
			TodosCreatedTotal,
		)
	})
}
