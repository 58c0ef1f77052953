// Copyright (C) 2019-2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package devnet

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stacks-network/stacks-devnet/utils/wrappers"
)

const (
	metricsNamespace = "devnet"

	outcomeMatched        = "matched"
	outcomeTimeout        = "timeout"
	outcomeCancelled      = "cancelled"
	outcomeConnectionLost = "connection_lost"

	sourceObserver  = "observer"
	sourceMiner     = "miner"
	sourceHeartbeat = "heartbeat"
)

// Metrics of a network. One instance is shared by the bus and the
// supervisor.
type Metrics struct {
	eventsPublished     *prometheus.CounterVec // kind
	observationsDropped *prometheus.CounterVec // source
	staleStacksBlocks   prometheus.Counter
	pendingWaiters      prometheus.Gauge
	waiterOutcomes      *prometheus.CounterVec // outcome
	burnHeight          prometheus.Gauge
	stacksHeight        prometheus.Gauge
	degraded            prometheus.Gauge
	processStarts       *prometheus.CounterVec // process
	processExits        *prometheus.CounterVec // process, outcome
}

// NewMetrics registers the metrics of a network with [reg].
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_published",
			Help:      "Number of chain events published by the bus",
		}, []string{"kind"}),
		observationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "observations_dropped",
			Help:      "Number of stale or duplicate block observations",
		}, []string{"source"}),
		staleStacksBlocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stale_stacks_blocks",
			Help:      "Number of stacks blocks dropped because a block at the same or a greater height was already published",
		}),
		pendingWaiters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "pending_waiters",
			Help:      "Number of registered waiters not yet resolved",
		}),
		waiterOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "waiter_outcomes",
			Help:      "Number of waiters resolved, by outcome",
		}, []string{"outcome"}),
		burnHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "burn_height",
			Help:      "Height of the last bitcoin block published",
		}),
		stacksHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "stacks_height",
			Help:      "Height of the last stacks block published",
		}),
		degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "degraded",
			Help:      "1 once the connection to the network is lost",
		}),
		processStarts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "process_starts",
			Help:      "Number of node processes launched",
		}, []string{"process"}),
		processExits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "process_exits",
			Help:      "Number of node processes reaped, by whether the exit was requested",
		}, []string{"process", "outcome"}),
	}

	for _, kind := range EventKinds {
		m.eventsPublished.WithLabelValues(string(kind))
	}
	for _, outcome := range []string{outcomeMatched, outcomeTimeout, outcomeCancelled, outcomeConnectionLost} {
		m.waiterOutcomes.WithLabelValues(outcome)
	}

	errs := wrappers.Errs{}
	errs.Add(
		reg.Register(m.eventsPublished),
		reg.Register(m.observationsDropped),
		reg.Register(m.staleStacksBlocks),
		reg.Register(m.pendingWaiters),
		reg.Register(m.waiterOutcomes),
		reg.Register(m.burnHeight),
		reg.Register(m.stacksHeight),
		reg.Register(m.degraded),
		reg.Register(m.processStarts),
		reg.Register(m.processExits),
	)
	return m, errs.Err
}
