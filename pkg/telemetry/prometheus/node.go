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
	"go.uber.org/atomic"
)

const (
	meetingNamespace string = "meeting"
)

var (
	initialized atomic.Bool
)

// Init registers all client collectors with the default registry. Collectors record
// values whether or not they are registered, so Init is only needed when metrics are exported.
func Init() {
	if initialized.Swap(true) {
		return
	}

	prometheus.MustRegister(promCommandTime)
	prometheus.MustRegister(promCommandTotal)
	prometheus.MustRegister(promEventTotal)
	prometheus.MustRegister(promSignallingConnections)

	prometheus.MustRegister(promProducerCount)
	prometheus.MustRegister(promConsumerCount)
	prometheus.MustRegister(promTransportCount)
	prometheus.MustRegister(promPeerCount)
}
