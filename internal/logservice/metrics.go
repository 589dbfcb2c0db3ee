// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logservice

import (
	"github.com/prometheus/client_golang/prometheus"
)

// metrics aggregates the service's instrumentation. Each service owns
// its registry so repeated start/stop cycles never collide.
type metrics struct {
	registry *prometheus.Registry

	recordsTotal  prometheus.Counter
	sessionsTotal prometheus.Counter
	resultsTotal  prometheus.Counter
	connections   prometheus.Gauge
	requestErrors prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		recordsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drover_log_records_total",
			Help: "Log records accepted over the TCP endpoint.",
		}),
		sessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drover_log_sessions_total",
			Help: "Sessions opened over the TCP endpoint.",
		}),
		resultsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drover_log_node_results_total",
			Help: "Node results recorded over the TCP endpoint.",
		}),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "drover_log_service_connections",
			Help: "Currently open client connections.",
		}),
		requestErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "drover_log_service_request_errors_total",
			Help: "Requests that failed to decode or apply.",
		}),
	}
	m.registry.MustRegister(m.recordsTotal, m.sessionsTotal, m.resultsTotal, m.connections, m.requestErrors)
	return m
}

// observeStore registers the store-backed metrics once the store exists.
func (m *metrics) observeStore(store storeStats) {
	m.registry.MustRegister(
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "drover_log_queue_depth",
			Help: "Records waiting for the batch writer.",
		}, func() float64 { return float64(store.QueueDepth()) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "drover_log_batches_total",
			Help: "Write transactions committed by the batch writer.",
		}, func() float64 { return float64(store.BatchesCommitted()) }),
	)
}

type storeStats interface {
	QueueDepth() int
	BatchesCommitted() int64
}
