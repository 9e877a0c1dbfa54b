package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "farmolink"

// Marketplace counts the business outcomes operators alert on: orders placed,
// duplicate submissions absorbed, lifecycle transitions and lost races.
type Marketplace struct {
	ordersCreated    *prometheus.CounterVec
	orderDuplicates  *prometheus.CounterVec
	orderTransitions *prometheus.CounterVec
	quotes           *prometheus.CounterVec
	conflicts        *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	outboxPublished  *prometheus.CounterVec
	notifications    *prometheus.CounterVec
}

// NewMarketplace registers the marketplace counters. A nil registerer yields
// a no-op recorder.
func NewMarketplace(reg prometheus.Registerer) *Marketplace {
	if reg == nil {
		return &Marketplace{}
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}
	m := &Marketplace{
		ordersCreated:    counter("orders_created_total", "Orders persisted, by order type and origin.", "type", "source"),
		orderDuplicates:  counter("order_duplicates_total", "Order submissions answered with an existing order.", "reason"),
		orderTransitions: counter("order_transitions_total", "Order status transitions applied.", "from", "to"),
		quotes:           counter("quotes_total", "Quote lifecycle outcomes.", "outcome"),
		conflicts:        counter("state_conflicts_total", "Conditional updates that lost a race.", "operation"),
		settlements:      counter("settlement_updates_total", "Bulk commission status changes.", "type"),
		outboxPublished:  counter("outbox_publish_total", "Outbox rows handled by the publisher.", "result"),
		notifications:    counter("notifications_delivered_total", "Inbox rows written by the notification consumer.", "type"),
	}
	reg.MustRegister(
		m.ordersCreated,
		m.orderDuplicates,
		m.orderTransitions,
		m.quotes,
		m.conflicts,
		m.settlements,
		m.outboxPublished,
		m.notifications,
	)
	return m
}

func (m *Marketplace) OrderCreated(orderType, source string) {
	if m == nil || m.ordersCreated == nil {
		return
	}
	m.ordersCreated.WithLabelValues(normalizeLabel(orderType), normalizeLabel(source)).Inc()
}

func (m *Marketplace) OrderDuplicate(reason string) {
	if m == nil || m.orderDuplicates == nil {
		return
	}
	m.orderDuplicates.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *Marketplace) OrderTransition(from, to string) {
	if m == nil || m.orderTransitions == nil {
		return
	}
	m.orderTransitions.WithLabelValues(normalizeLabel(from), normalizeLabel(to)).Inc()
}

func (m *Marketplace) Quote(outcome string) {
	if m == nil || m.quotes == nil {
		return
	}
	m.quotes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *Marketplace) Conflict(operation string) {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *Marketplace) Settlement(eventType string) {
	if m == nil || m.settlements == nil {
		return
	}
	m.settlements.WithLabelValues(normalizeLabel(eventType)).Inc()
}

func (m *Marketplace) OutboxPublish(result string) {
	if m == nil || m.outboxPublished == nil {
		return
	}
	m.outboxPublished.WithLabelValues(normalizeLabel(result)).Inc()
}

func (m *Marketplace) NotificationDelivered(notificationType string) {
	if m == nil || m.notifications == nil {
		return
	}
	m.notifications.WithLabelValues(normalizeLabel(notificationType)).Inc()
}
