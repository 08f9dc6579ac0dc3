package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gorm.io/gorm"
)

var (
	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "blogicum_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// PostsWritten counts post mutations by action (create, update, delete).
	PostsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogicum_posts_written_total",
		Help: "Total number of post writes by action",
	}, []string{"action"})

	// CommentsWritten counts comment mutations by action (create, update, delete).
	CommentsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogicum_comments_written_total",
		Help: "Total number of comment writes by action",
	}, []string{"action"})

	// AuthEvents counts authentication outcomes (login_ok, login_failed, register, logout).
	AuthEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogicum_auth_events_total",
		Help: "Total number of authentication events by outcome",
	}, []string{"event"})

	// OwnershipRedirects counts mutation attempts by non-owners.
	OwnershipRedirects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "blogicum_ownership_redirects_total",
		Help: "Total number of mutations rejected because the viewer is not the author",
	}, []string{"entity"})
)

const startKey = "observability:start"

// RegisterGormMetrics hooks query latency recording into every gorm operation of db.
func RegisterGormMetrics(db *gorm.DB) error {
	before := func(tx *gorm.DB) {
		tx.InstanceSet(startKey, time.Now())
	}
	after := func(operation string) func(*gorm.DB) {
		return func(tx *gorm.DB) {
			v, ok := tx.InstanceGet(startKey)
			if !ok {
				return
			}
			start, ok := v.(time.Time)
			if !ok {
				return
			}
			table := tx.Statement.Table
			if table == "" {
				table = "raw"
			}
			DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
		}
	}

	cb := db.Callback()
	return errors.Join(
		cb.Create().Before("gorm:create").Register("observability:before_create", before),
		cb.Create().After("gorm:create").Register("observability:after_create", after("create")),
		cb.Query().Before("gorm:query").Register("observability:before_query", before),
		cb.Query().After("gorm:query").Register("observability:after_query", after("query")),
		cb.Update().Before("gorm:update").Register("observability:before_update", before),
		cb.Update().After("gorm:update").Register("observability:after_update", after("update")),
		cb.Delete().Before("gorm:delete").Register("observability:before_delete", before),
		cb.Delete().After("gorm:delete").Register("observability:after_delete", after("delete")),
		cb.Row().Before("gorm:row").Register("observability:before_row", before),
		cb.Row().After("gorm:row").Register("observability:after_row", after("row")),
		cb.Raw().Before("gorm:raw").Register("observability:before_raw", before),
		cb.Raw().After("gorm:raw").Register("observability:after_raw", after("raw")),
	)
}
