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

package ortc

import (
	"fmt"
	"strings"

	"github.com/pion/logging"

	"github.com/livekit/protocol/logger"
)

// implements logging.LoggerFactory
type loggerFactory struct {
	logger logger.Logger
	level  logging.LogLevel
}

func newLoggerFactory(l logger.Logger, level string) *loggerFactory {
	return &loggerFactory{
		logger: l.WithName("pion"),
		level:  parseLogLevel(level),
	}
}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &logAdapter{
		logger: f.logger.WithValues("scope", scope),
		level:  f.level,
	}
}

func parseLogLevel(level string) logging.LogLevel {
	switch strings.ToLower(level) {
	case "trace":
		return logging.LogLevelTrace
	case "debug":
		return logging.LogLevelDebug
	case "info":
		return logging.LogLevelInfo
	case "warn", "warning":
		return logging.LogLevelWarn
	case "disabled", "off":
		return logging.LogLevelDisabled
	default:
		return logging.LogLevelError
	}
}

// implements logging.LeveledLogger
type logAdapter struct {
	logger logger.Logger
	level  logging.LogLevel
}

func (l *logAdapter) Trace(msg string) {
	// ignore trace
}

func (l *logAdapter) Tracef(format string, args ...interface{}) {
	// ignore trace
}

func (l *logAdapter) Debug(msg string) {
	if l.level < logging.LogLevelDebug {
		return
	}
	l.logger.Debugw(msg)
}

func (l *logAdapter) Debugf(format string, args ...interface{}) {
	if l.level < logging.LogLevelDebug {
		return
	}
	l.logger.Debugw(fmt.Sprintf(format, args...))
}

// pion is chatty at info, treat it as debug
func (l *logAdapter) Info(msg string) {
	if l.level < logging.LogLevelInfo {
		return
	}
	l.logger.Debugw(msg)
}

func (l *logAdapter) Infof(format string, args ...interface{}) {
	if l.level < logging.LogLevelInfo {
		return
	}
	l.logger.Debugw(fmt.Sprintf(format, args...))
}

func (l *logAdapter) Warn(msg string) {
	if l.level < logging.LogLevelWarn {
		return
	}
	l.logger.Warnw(msg, nil)
}

func (l *logAdapter) Warnf(format string, args ...interface{}) {
	if l.level < logging.LogLevelWarn {
		return
	}
	l.logger.Warnw(fmt.Sprintf(format, args...), nil)
}

func (l *logAdapter) Error(msg string) {
	if l.level < logging.LogLevelError {
		return
	}
	l.logger.Errorw(msg, nil)
}

func (l *logAdapter) Errorf(format string, args ...interface{}) {
	if l.level < logging.LogLevelError {
		return
	}
	l.logger.Errorw(fmt.Sprintf(format, args...), nil)
}
