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

package utils

import (
	"sync"

	"github.com/livekit/protocol/logger"
)

type OpsQueueParams struct {
	Name        string
	Size        int
	FlushOnStop bool
	Logger      logger.Logger
}

// OpsQueue runs enqueued operations one at a time, in order, on a single goroutine.
type OpsQueue struct {
	params OpsQueueParams

	lock      sync.RWMutex
	ops       chan func()
	isStarted bool
	isStopped bool
	done      chan struct{}
}

func NewOpsQueue(params OpsQueueParams) *OpsQueue {
	if params.Logger == nil {
		params.Logger = logger.GetLogger()
	}
	if params.Size <= 0 {
		params.Size = 64
	}
	return &OpsQueue{
		params: params,
		ops:    make(chan func(), params.Size),
		done:   make(chan struct{}),
	}
}

func (oq *OpsQueue) Start() {
	oq.lock.Lock()
	if oq.isStarted || oq.isStopped {
		oq.lock.Unlock()
		return
	}
	oq.isStarted = true
	oq.lock.Unlock()

	go oq.process()
}

// Stop prevents further operations from being queued. The returned channel is closed once
// the processing goroutine exits.
func (oq *OpsQueue) Stop() <-chan struct{} {
	oq.lock.Lock()
	if oq.isStopped {
		oq.lock.Unlock()
		return oq.done
	}

	oq.isStopped = true
	close(oq.ops)
	started := oq.isStarted
	oq.lock.Unlock()

	if !started {
		close(oq.done)
	}
	return oq.done
}

// Enqueue returns false when the operation was dropped, either because the queue is stopped or full.
func (oq *OpsQueue) Enqueue(op func()) bool {
	oq.lock.RLock()
	defer oq.lock.RUnlock()

	if oq.isStopped {
		return false
	}

	select {
	case oq.ops <- op:
		return true
	default:
		oq.params.Logger.Errorw("ops queue full", nil, "name", oq.params.Name, "size", oq.params.Size)
		return false
	}
}

func (oq *OpsQueue) isStoppedLocked() bool {
	oq.lock.RLock()
	defer oq.lock.RUnlock()

	return oq.isStopped
}

func (oq *OpsQueue) process() {
	defer close(oq.done)

	for op := range oq.ops {
		if !oq.params.FlushOnStop && oq.isStoppedLocked() {
			return
		}
		op()
	}
}
