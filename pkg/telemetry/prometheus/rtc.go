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
	"github.com/prometheus/client_golang/prometheus"
)

type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

var (
	promProducerCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: meetingNamespace,
		Subsystem: "rtc",
		Name:      "producers",
	}, []string{"kind"})
	promConsumerCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: meetingNamespace,
		Subsystem: "rtc",
		Name:      "consumers",
	}, []string{"kind"})
	promTransportCount = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: meetingNamespace,
		Subsystem: "rtc",
		Name:      "transports",
	}, []string{"direction"})
	promPeerCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: meetingNamespace,
		Subsystem: "session",
		Name:      "peers",
	})
)

func AddProducer(kind string) {
	promProducerCount.WithLabelValues(kind).Inc()
}

func SubProducer(kind string) {
	promProducerCount.WithLabelValues(kind).Dec()
}

func AddConsumer(kind string) {
	promConsumerCount.WithLabelValues(kind).Inc()
}

func SubConsumer(kind string) {
	promConsumerCount.WithLabelValues(kind).Dec()
}

func AddTransport(direction Direction) {
	promTransportCount.WithLabelValues(string(direction)).Inc()
}

func SubTransport(direction Direction) {
	promTransportCount.WithLabelValues(string(direction)).Dec()
}

func SetPeerCount(count int) {
	promPeerCount.Set(float64(count))
}
