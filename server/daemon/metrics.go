/*
 * Copyright (c) SAS Institute Inc.
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

package daemon

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	registry   *prometheus.Registry
	requests   prometheus.Counter
	signatures prometheus.Counter
	errors     prometheus.Counter
}

func newMetrics() *metrics {
	m := &metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pesign_requests_total",
			Help: "Requests served",
		}),
		signatures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pesign_signatures_total",
			Help: "Signatures produced",
		}),
		errors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pesign_errors_total",
			Help: "Requests that failed",
		}),
	}
	m.registry.MustRegister(m.requests, m.signatures, m.errors)
	return m
}
