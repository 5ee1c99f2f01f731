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

package config

import (
	"flag"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config/configtest"
)

func TestConfig_DefaultsKept(t *testing.T) {
	const content = `signalling:
  command_timeout: 3s`
	conf, err := NewConfig(content, true, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, conf.Signalling.CommandTimeout)
	require.Equal(t, "/ws", conf.Signalling.Path)
	require.Equal(t, CodecJSON, conf.Signalling.Codec)
	require.Equal(t, 1, conf.RTC.SubscribeConcurrency)
	require.True(t, conf.RTC.AutoSubscribe)
	require.Equal(t, "error", conf.Logging.ComponentLevels["pion"])
}

func TestConfig_UnknownKeys(t *testing.T) {
	const content = `unknown: 10
signalling:
  command_timeout: 3s`
	_, err := NewConfig(content, true, nil, nil)
	require.Error(t, err)

	_, err = NewConfig(content, false, nil, nil)
	require.NoError(t, err)
}

func TestConfig_Validate(t *testing.T) {
	_, err := NewConfig("signalling:\n  codec: protobuf", true, nil, nil)
	require.ErrorContains(t, err, ErrUnknownCodec.Error())

	conf, err := NewConfig("rtc:\n  subscribe_concurrency: -3", true, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, conf.RTC.SubscribeConcurrency)
}

func TestConfig_ExpandsCapturePaths(t *testing.T) {
	t.Setenv("MEDIA_DIR", "/tmp/media")
	conf, err := NewConfig("capture:\n  audio_file: $MEDIA_DIR/a.ogg", true, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "/tmp/media/a.ogg", conf.Capture.AudioFile)
}

func TestConfig_DevelopmentLogLevel(t *testing.T) {
	conf, err := NewConfig("development: true", true, nil, nil)
	require.NoError(t, err)
	require.Equal(t, "debug", conf.Logging.Level)
}

func TestGeneratedFlags(t *testing.T) {
	generatedFlags, err := GenerateCLIFlags(nil, false)
	require.NoError(t, err)

	app := cli.NewApp()
	app.Flags = append(app.Flags, generatedFlags...)

	set := flag.NewFlagSet("generated", 0)
	set.String("signalling.url", "", "")              // string
	set.Duration("signalling.command_timeout", 0, "") // duration
	set.Uint("prometheus_port", 0, "")                // uint32
	set.Bool("rtc.auto_subscribe", true, "")          // bool
	set.Int("rtc.subscribe_concurrency", 0, "")       // int
	require.NoError(t, set.Parse([]string{
		"-signalling.url=wss://meet.example.com",
		"-signalling.command_timeout=2s",
		"-prometheus_port=9999",
		"-rtc.auto_subscribe=false",
		"-rtc.subscribe_concurrency=4",
	}))

	c := cli.NewContext(app, set, nil)
	conf, err := NewConfig("", true, c, nil)
	require.NoError(t, err)

	require.Equal(t, "wss://meet.example.com", conf.Signalling.URL)
	require.Equal(t, 2*time.Second, conf.Signalling.CommandTimeout)
	require.Equal(t, uint32(9999), conf.PrometheusPort)
	require.False(t, conf.RTC.AutoSubscribe)
	require.Equal(t, 4, conf.RTC.SubscribeConcurrency)
	// untouched flags keep their defaults
	require.Equal(t, 10*time.Second, conf.Signalling.ConnectTimeout)
}

func TestYAMLTag(t *testing.T) {
	require.NoError(t, configtest.CheckYAMLTags(Config{}))
}
