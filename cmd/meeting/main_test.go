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

package main

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
)

func TestGetConfigString(t *testing.T) {
	file := filepath.Join(t.TempDir(), "meeting.yaml")
	require.NoError(t, os.WriteFile(file, []byte("fileContent"), 0o644))

	tests := []struct {
		name       string
		configFile string
		configBody string
		expected   string
	}{
		{"nothing", "", "", ""},
		{"body only", "", "configBody", "configBody"},
		{"body wins over file", file, "configBody", "configBody"},
		{"file only", file, "", "fileContent"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			body, err := getConfigString(test.configFile, test.configBody)
			require.NoError(t, err)
			require.Equal(t, test.expected, body)
		})
	}

	body, err := getConfigString("notExistingFile", "")
	require.Error(t, err)
	require.Empty(t, body)
}

func TestGetConfig(t *testing.T) {
	set := flag.NewFlagSet("test", flag.ContinueOnError)
	for _, f := range baseFlags {
		require.NoError(t, f.Apply(set))
	}
	require.NoError(t, set.Parse([]string{
		"--config-body", "signalling:\n  command_timeout: 3s\n",
		"--url", "ws://sfu.example.com:4443",
		"--no-auto-subscribe",
	}))
	c := cli.NewContext(&cli.App{Name: "test", Flags: baseFlags}, set, nil)

	conf, err := getConfig(c)
	require.NoError(t, err)
	require.Equal(t, 3*time.Second, conf.Signalling.CommandTimeout)
	require.Equal(t, "ws://sfu.example.com:4443", conf.Signalling.URL)
	require.False(t, conf.RTC.AutoSubscribe)
	require.Equal(t, config.CodecJSON, conf.Signalling.Codec)
}
