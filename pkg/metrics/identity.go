package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// IdentityMetrics records reconciliation and session-state activity.
type IdentityMetrics struct {
	events      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	roles       *prometheus.CounterVec
	cartWrites  *prometheus.CounterVec
	migrations  prometheus.Counter
	upsertRaces prometheus.Counter
}

// NewIdentityMetrics registers the identity metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewIdentityMetrics(reg prometheus.Registerer) *IdentityMetrics {
	if reg == nil {
		return &IdentityMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "identity_events_total",
		Help: "Identity events handled, by event type and outcome.",
	}, []string{"event_type", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "identity_event_duration_seconds",
		Help:    "Time spent handling identity events.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	roles := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "role_resolutions_total",
		Help: "Role resolutions, by the source that won.",
	}, []string{"source"})
	cartWrites := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "cart_writes_total",
		Help: "Cart replacements, by result.",
	}, []string{"result"})
	migrations := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "legacy_user_migrations_total",
		Help: "Legacy user records migrated in place.",
	})
	upsertRaces := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "user_upsert_races_total",
		Help: "Duplicate-key races recovered by retrying as an update.",
	})
	reg.MustRegister(events, duration, roles, cartWrites, migrations, upsertRaces)
	return &IdentityMetrics{
		events:      events,
		duration:    duration,
		roles:       roles,
		cartWrites:  cartWrites,
		migrations:  migrations,
		upsertRaces: upsertRaces,
	}
}

// ObserveEvent records the outcome and duration of a handled event.
func (m *IdentityMetrics) ObserveEvent(eventType, outcome string, duration time.Duration) {
	if m == nil || m.events == nil {
		return
	}
	m.events.WithLabelValues(normalizeLabel(eventType), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(eventType)).Observe(duration.Seconds())
}

// IncRoleResolution counts which source decided a resolved role.
func (m *IdentityMetrics) IncRoleResolution(source string) {
	if m == nil || m.roles == nil {
		return
	}
	m.roles.WithLabelValues(normalizeLabel(source)).Inc()
}

// IncCartWrite counts a cart replacement attempt.
func (m *IdentityMetrics) IncCartWrite(result string) {
	if m == nil || m.cartWrites == nil {
		return
	}
	m.cartWrites.WithLabelValues(normalizeLabel(result)).Inc()
}

// IncLegacyMigration counts a legacy record migrated in place.
func (m *IdentityMetrics) IncLegacyMigration() {
	if m == nil || m.migrations == nil {
		return
	}
	m.migrations.Inc()
}

// IncUpsertRace counts a recovered duplicate-key race.
func (m *IdentityMetrics) IncUpsertRace() {
	if m == nil || m.upsertRaces == nil {
		return
	}
	m.upsertRaces.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
