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
	"slices"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

// value gathers c and returns the gauge or counter value of the series with the given label
// values, and the number of series.
func value(t *testing.T, c prometheus.Collector, labelValues ...string) (float64, int) {
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
	families, err := reg.Gather()
	require.NoError(t, err)

	var v float64
	series := 0
	for _, f := range families {
		for _, m := range f.GetMetric() {
			series++
			var values []string
			for _, l := range m.GetLabel() {
				values = append(values, l.GetValue())
			}
			if !slices.Equal(values, labelValues) {
				continue
			}
			v = m.GetGauge().GetValue() + m.GetCounter().GetValue()
		}
	}
	return v, series
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	require.NotPanics(t, Init)
}

func TestRTCGauges(t *testing.T) {
	AddProducer("audio")
	AddProducer("audio")
	SubProducer("audio")
	v, _ := value(t, promProducerCount, "audio")
	require.Equal(t, float64(1), v)

	AddTransport(Incoming)
	v, _ = value(t, promTransportCount, string(Incoming))
	require.Equal(t, float64(1), v)
	SubTransport(Incoming)
	v, _ = value(t, promTransportCount, string(Incoming))
	require.Equal(t, float64(0), v)

	SetPeerCount(3)
	v, _ = value(t, promPeerCount)
	require.Equal(t, float64(3), v)
}

func TestSignallingCounters(t *testing.T) {
	RecordSignallingCommand("join", CommandStatusSuccess, 20*time.Millisecond)
	RecordSignallingCommand("join", CommandStatusTimeout, time.Second)
	v, _ := value(t, promCommandTotal, "join", string(CommandStatusSuccess))
	require.Equal(t, float64(1), v)
	v, _ = value(t, promCommandTotal, "join", string(CommandStatusTimeout))
	require.Equal(t, float64(1), v)

	// only successful commands are timed
	_, series := value(t, promCommandTime)
	require.Equal(t, 1, series)

	IncrementSignallingEvent("peer-enter")
	v, _ = value(t, promEventTotal, "peer-enter")
	require.Equal(t, float64(1), v)
}
