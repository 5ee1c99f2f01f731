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
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc"
)

var baseFlags = []cli.Flag{
	&cli.StringFlag{
		Name:  "config",
		Usage: "path to meeting config file",
	},
	&cli.StringFlag{
		Name:    "config-body",
		Usage:   "meeting config in YAML, typically passed in as an environment var in a container",
		EnvVars: []string{"MEETING_CONFIG"},
	},
	&cli.StringFlag{
		Name:    "url",
		Usage:   "signalling server url, ws://host:port",
		EnvVars: []string{"MEETING_URL"},
	},
	&cli.StringFlag{
		Name:  "audio",
		Usage: "ogg/opus file published as the microphone, silence when empty",
	},
	&cli.StringFlag{
		Name:  "video",
		Usage: "ivf or h264 file published as the camera, black frames when empty",
	},
	&cli.StringFlag{
		Name:  "screen",
		Usage: "ivf or h264 file published as a screen share",
	},
	&cli.BoolFlag{
		Name:  "no-auto-subscribe",
		Usage: "do not subscribe to remote peers as they start publishing",
	},
	&cli.BoolFlag{
		Name:  "dev",
		Usage: "sets log-level to debug and console formatter",
	},
	&cli.BoolFlag{
		Name:   "disable-strict-config",
		Usage:  "disables strict config parsing",
		Hidden: true,
	},
}

var joinFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "room",
		Usage:    "id of the room to join",
		Required: true,
	},
	&cli.StringFlag{
		Name:     "token",
		Usage:    "join token issued for the room",
		EnvVars:  []string{"MEETING_TOKEN"},
		Required: true,
	},
	&cli.StringFlag{
		Name:     "user",
		Usage:    "id of the joining user",
		Required: true,
	},
	&cli.BoolFlag{
		Name:  "publish-audio",
		Usage: "publish the microphone",
		Value: true,
	},
	&cli.BoolFlag{
		Name:  "publish-video",
		Usage: "publish the camera, ignored when a screen is shared",
		Value: true,
	},
	&cli.BoolFlag{
		Name:  "share-screen",
		Usage: "publish the screen file instead of the camera",
	},
	&cli.DurationFlag{
		Name:  "stats-interval",
		Usage: "interval between stats tables, 0 disables them",
		Value: 10 * time.Second,
	},
}

func main() {
	defer func() {
		if rtc.LogPanic(logger.GetLogger(), recover()) {
			os.Exit(1)
		}
	}()

	generatedFlags, err := config.GenerateCLIFlags(baseFlags, true)
	if err != nil {
		fmt.Println(err)
	}

	app := &cli.App{
		Name:  "meeting",
		Usage: "Multi-party meeting client for mediasoup style SFUs",
		Flags: append(baseFlags, generatedFlags...),
		Commands: []*cli.Command{
			{
				Name:   "join",
				Usage:  "join a room, publish the capture files and receive the other peers",
				Flags:  joinFlags,
				Action: joinRoom,
			},
			{
				Name:   "devices",
				Usage:  "list the capture devices backed by the configured files",
				Action: listDevices,
			},
			{
				Name:   "print-config",
				Usage:  "print the effective configuration",
				Action: printConfig,
			},
			{
				Name:   "help-verbose",
				Usage:  "prints app help, including all generated configuration flags",
				Action: helpVerbose,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func getConfig(c *cli.Context) (*config.Config, error) {
	confString, err := getConfigString(c.String("config"), c.String("config-body"))
	if err != nil {
		return nil, err
	}

	strictMode := true
	if c.Bool("disable-strict-config") {
		strictMode = false
	}

	conf, err := config.NewConfig(confString, strictMode, c, baseFlags)
	if err != nil {
		return nil, err
	}
	config.InitLoggerFromConfig(&conf.Logging)

	if conf.Development {
		logger.Infow("starting in development mode", "url", conf.Signalling.URL)
	}
	return conf, nil
}

func getConfigString(configFile string, inConfigBody string) (string, error) {
	if inConfigBody != "" || configFile == "" {
		return inConfigBody, nil
	}

	outConfigBody, err := os.ReadFile(configFile)
	if err != nil {
		return "", err
	}

	return string(outConfigBody), nil
}
