/*
 * Copyright 2024 Axibase Corporation
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package atsd

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// clientMetrics enumerates the metrics collected by a Client.
type clientMetrics struct {
	Requests        *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RowsFetched     prometheus.Counter
	Cancellations   *prometheus.CounterVec
}

func newClientMetrics(reg prometheus.Registerer) *clientMetrics {
	m := &clientMetrics{
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atsd_client_requests_total",
				Help: "Count of requests sent to the store by endpoint and HTTP status.",
			},
			[]string{"endpoint", "code"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atsd_client_request_duration_seconds",
				Help:    "Time until response headers are received from the store.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"endpoint"},
		),
		RowsFetched: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "atsd_client_rows_fetched_total",
				Help: "Count of result rows returned to callers.",
			},
		),
		Cancellations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atsd_client_cancellations_total",
				Help: "Count of query cancellations by result.",
			},
			[]string{"result"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Requests, m.RequestDuration, m.RowsFetched, m.Cancellations)
	}
	return m
}

// observe records a completed round trip. A zero code means no response.
func (m *clientMetrics) observe(endpoint string, code int, start time.Time) {
	m.Requests.WithLabelValues(endpoint, strconv.Itoa(code)).Inc()
	m.RequestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
