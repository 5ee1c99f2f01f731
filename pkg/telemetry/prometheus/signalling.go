// Copyright 2023 LiveKit, Inc.
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

package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type CommandStatus string

const (
	CommandStatusSuccess CommandStatus = "success"
	CommandStatusError   CommandStatus = "error"
	CommandStatusTimeout CommandStatus = "timeout"
	CommandStatusClosed  CommandStatus = "closed"
)

var (
	promCommandTime = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: meetingNamespace,
		Subsystem: "signalling",
		Name:      "command_time_ms",
		Buckets:   []float64{10, 50, 100, 300, 500, 1000, 1500, 2000, 5000, 10000},
	}, []string{"command"})
	promCommandTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: meetingNamespace,
		Subsystem: "signalling",
		Name:      "command_total",
	}, []string{"command", "status"})
	promEventTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: meetingNamespace,
		Subsystem: "signalling",
		Name:      "event_total",
	}, []string{"event"})
	promSignallingConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: meetingNamespace,
		Subsystem: "signalling",
		Name:      "connections",
	})
)

func RecordSignallingCommand(command string, status CommandStatus, duration time.Duration) {
	promCommandTotal.WithLabelValues(command, string(status)).Inc()
	if status == CommandStatusSuccess {
		promCommandTime.WithLabelValues(command).Observe(float64(duration.Milliseconds()))
	}
}

func IncrementSignallingEvent(event string) {
	promEventTotal.WithLabelValues(event).Inc()
}

func AddSignallingConnection(delta int) {
	promSignallingConnections.Add(float64(delta))
}
