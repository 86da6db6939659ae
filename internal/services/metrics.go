package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	deliveriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientcomm_deliveries_total",
		Help: "Outbound message delivery attempts by outcome.",
	}, []string{"outcome"})

	inboundMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientcomm_inbound_messages_total",
		Help: "Inbound messages by result.",
	}, []string{"result"})

	statusCallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientcomm_status_callbacks_total",
		Help: "Delivery status callbacks by status.",
	}, []string{"status"})

	jobsProcessedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clientcomm_jobs_processed_total",
		Help: "Background jobs processed by kind and result.",
	}, []string{"kind", "result"})

	courtRemindersScheduled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clientcomm_court_reminders_scheduled_total",
		Help: "Court reminder messages scheduled by imports.",
	})
)
