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
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"
)

type Codec string

const (
	generatedCLIFlagUsage = "generated"

	CodecJSON    Codec = "json"
	CodecMsgpack Codec = "msgpack"
)

var (
	ErrSignallingURLNotSet = errors.New("signalling url must be provided")
	ErrUnknownCodec        = errors.New("unknown signalling codec")
)

type Config struct {
	Signalling     SignallingConfig `yaml:"signalling,omitempty"`
	RTC            RTCConfig        `yaml:"rtc,omitempty"`
	Capture        CaptureConfig    `yaml:"capture,omitempty"`
	PrometheusPort uint32           `yaml:"prometheus_port,omitempty"`
	Logging        LoggingConfig    `yaml:"logging,omitempty"`
	Development    bool             `yaml:"development,omitempty"`
}

type SignallingConfig struct {
	URL   string `yaml:"url,omitempty"`
	Path  string `yaml:"path,omitempty"`
	Codec Codec  `yaml:"codec,omitempty"`

	ConnectTimeout time.Duration `yaml:"connect_timeout,omitempty"`
	// applied to every command that has no shorter deadline, no retries
	CommandTimeout time.Duration `yaml:"command_timeout,omitempty"`
	PingInterval   time.Duration `yaml:"ping_interval,omitempty"`
	PongWait       time.Duration `yaml:"pong_wait,omitempty"`
	WriteTimeout   time.Duration `yaml:"write_timeout,omitempty"`
	ReadLimit      int64         `yaml:"read_limit,omitempty"`
	// server events waiting to be handled
	EventQueueSize int `yaml:"event_queue_size,omitempty"`
}

type ICEServerConfig struct {
	URLs       []string `yaml:"urls,omitempty"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type RTCConfig struct {
	ICEServers []ICEServerConfig `yaml:"ice_servers,omitempty"`
	// number of producers consumed concurrently by a single subscribe, 1 is strictly sequential
	SubscribeConcurrency int  `yaml:"subscribe_concurrency,omitempty"`
	AutoSubscribe        bool `yaml:"auto_subscribe,omitempty"`
	// lifecycle events buffered per subscriber before they are dropped
	EventBufferSize int `yaml:"event_buffer_size,omitempty"`
}

type CaptureConfig struct {
	AudioFile  string `yaml:"audio_file,omitempty"`
	VideoFile  string `yaml:"video_file,omitempty"`
	ScreenFile string `yaml:"screen_file,omitempty"`
	Loop       bool   `yaml:"loop,omitempty"`
}

type LoggingConfig struct {
	logger.Config `yaml:",inline"`
	PionLevel     string `yaml:"pion_level,omitempty"`
}

var DefaultConfig = Config{
	Signalling: SignallingConfig{
		URL:            "ws://localhost:3000",
		Path:           "/ws",
		Codec:          CodecJSON,
		ConnectTimeout: 10 * time.Second,
		CommandTimeout: 10 * time.Second,
		PingInterval:   20 * time.Second,
		PongWait:       60 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadLimit:      1 << 20,
		EventQueueSize: 256,
	},
	RTC: RTCConfig{
		ICEServers: []ICEServerConfig{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
		SubscribeConcurrency: 1,
		AutoSubscribe:        true,
		EventBufferSize:      64,
	},
	Logging: LoggingConfig{
		PionLevel: "error",
	},
}

func NewConfig(confString string, strictMode bool, c *cli.Context, baseFlags []cli.Flag) (*Config, error) {
	// start with defaults
	marshalled, err := yaml.Marshal(&DefaultConfig)
	if err != nil {
		return nil, err
	}

	var conf Config
	err = yaml.Unmarshal(marshalled, &conf)
	if err != nil {
		return nil, err
	}

	if confString != "" {
		decoder := yaml.NewDecoder(strings.NewReader(confString))
		decoder.KnownFields(strictMode)
		if err := decoder.Decode(&conf); err != nil {
			return nil, fmt.Errorf("could not parse config: %v", err)
		}
	}

	if c != nil {
		if err := conf.updateFromCLI(c, baseFlags); err != nil {
			return nil, err
		}
	}

	if err := conf.Validate(); err != nil {
		return nil, fmt.Errorf("could not validate config: %v", err)
	}

	// expand env vars in filenames
	for _, file := range []*string{&conf.Capture.AudioFile, &conf.Capture.VideoFile, &conf.Capture.ScreenFile} {
		if *file == "" {
			continue
		}
		expanded, err := homedir.Expand(os.ExpandEnv(*file))
		if err != nil {
			return nil, err
		}
		*file = expanded
	}

	if conf.Logging.Level == "" && conf.Development {
		conf.Logging.Level = "debug"
	}
	if conf.Logging.PionLevel != "" {
		if conf.Logging.ComponentLevels == nil {
			conf.Logging.ComponentLevels = map[string]string{}
		}
		conf.Logging.ComponentLevels["pion"] = conf.Logging.PionLevel
	}

	return &conf, nil
}

func (conf *Config) Validate() error {
	if conf.Signalling.URL == "" {
		return ErrSignallingURLNotSet
	}
	switch conf.Signalling.Codec {
	case CodecJSON, CodecMsgpack:
	default:
		return errors.Wrapf(ErrUnknownCodec, "codec %q", conf.Signalling.Codec)
	}
	if conf.RTC.SubscribeConcurrency < 1 {
		conf.RTC.SubscribeConcurrency = 1
	}
	if conf.RTC.EventBufferSize < 1 {
		conf.RTC.EventBufferSize = 1
	}
	return nil
}

type configNode struct {
	TypeNode  reflect.Value
	TagPrefix string
}

func (conf *Config) ToCLIFlagNames(existingFlags []cli.Flag) map[string]reflect.Value {
	existingFlagNames := map[string]bool{}
	for _, flag := range existingFlags {
		for _, flagName := range flag.Names() {
			existingFlagNames[flagName] = true
		}
	}

	flagNames := map[string]reflect.Value{}
	var currNode configNode
	nodes := []configNode{{reflect.ValueOf(conf).Elem(), ""}}
	for len(nodes) > 0 {
		currNode, nodes = nodes[0], nodes[1:]
		for i := 0; i < currNode.TypeNode.NumField(); i++ {
			// inspect yaml tag from struct field to get path
			field := currNode.TypeNode.Type().Field(i)
			yamlTagArray := strings.SplitN(field.Tag.Get("yaml"), ",", 2)
			yamlTag := yamlTagArray[0]
			isInline := false
			if len(yamlTagArray) > 1 && yamlTagArray[1] == "inline" {
				isInline = true
			}
			if (yamlTag == "" && (!isInline || currNode.TagPrefix == "")) || yamlTag == "-" {
				continue
			}
			yamlPath := yamlTag
			if currNode.TagPrefix != "" {
				if isInline {
					yamlPath = currNode.TagPrefix
				} else {
					yamlPath = fmt.Sprintf("%s.%s", currNode.TagPrefix, yamlTag)
				}
			}
			if existingFlagNames[yamlPath] {
				continue
			}

			// map flag name to value
			value := currNode.TypeNode.Field(i)
			if value.Kind() == reflect.Struct {
				nodes = append(nodes, configNode{value, yamlPath})
			} else {
				flagNames[yamlPath] = value
			}
		}
	}

	return flagNames
}

var durationType = reflect.TypeOf(time.Duration(0))

func GenerateCLIFlags(existingFlags []cli.Flag, hidden bool) ([]cli.Flag, error) {
	blankConfig := &Config{}
	flags := make([]cli.Flag, 0)
	for name, value := range blankConfig.ToCLIFlagNames(existingFlags) {
		kind := value.Kind()
		if kind == reflect.Ptr {
			kind = value.Type().Elem().Kind()
		}

		var flag cli.Flag
		envVar := fmt.Sprintf("MEETING_%s", strings.ToUpper(strings.Replace(name, ".", "_", -1)))

		if value.Type() == durationType {
			flags = append(flags, &cli.DurationFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			})
			continue
		}

		switch kind {
		case reflect.Bool:
			flag = &cli.BoolFlag{
				Name:   name,
				Usage:  generatedCLIFlagUsage,
				Hidden: hidden,
			}
		case reflect.String:
			flag = &cli.StringFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Int, reflect.Int32:
			flag = &cli.IntFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Int64:
			flag = &cli.Int64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Uint8, reflect.Uint16, reflect.Uint32:
			flag = &cli.UintFlag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Uint64:
			flag = &cli.Uint64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Float32, reflect.Float64:
			flag = &cli.Float64Flag{
				Name:    name,
				EnvVars: []string{envVar},
				Usage:   generatedCLIFlagUsage,
				Hidden:  hidden,
			}
		case reflect.Slice, reflect.Map:
			// lists and maps are only configurable through yaml
			continue
		default:
			return flags, fmt.Errorf("cli flag generation unsupported for config type: %s is a %s", name, kind.String())
		}

		flags = append(flags, flag)
	}

	return flags, nil
}

func (conf *Config) updateFromCLI(c *cli.Context, baseFlags []cli.Flag) error {
	generatedFlagNames := conf.ToCLIFlagNames(baseFlags)
	for _, flag := range c.App.Flags {
		flagName := flag.Names()[0]

		// the `c.App.Name != "test"` check is needed because `c.IsSet(...)` is always false in unit tests
		if !c.IsSet(flagName) && c.App.Name != "test" {
			continue
		}

		configValue, ok := generatedFlagNames[flagName]
		if !ok {
			continue
		}

		if configValue.Type() == durationType {
			configValue.SetInt(int64(c.Duration(flagName)))
			continue
		}

		kind := configValue.Kind()
		if kind == reflect.Ptr {
			// instantiate value to be set
			configValue.Set(reflect.New(configValue.Type().Elem()))

			kind = configValue.Type().Elem().Kind()
			configValue = configValue.Elem()
		}

		switch kind {
		case reflect.Bool:
			configValue.SetBool(c.Bool(flagName))
		case reflect.String:
			configValue.SetString(c.String(flagName))
		case reflect.Int, reflect.Int32, reflect.Int64:
			configValue.SetInt(c.Int64(flagName))
		case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			configValue.SetUint(c.Uint64(flagName))
		case reflect.Float32, reflect.Float64:
			configValue.SetFloat(c.Float64(flagName))
		default:
			return fmt.Errorf("unsupported generated cli flag type for config: %s is a %s", flagName, kind.String())
		}
	}

	if c.IsSet("dev") {
		conf.Development = c.Bool("dev")
	}
	if c.IsSet("url") {
		conf.Signalling.URL = c.String("url")
	}
	if c.IsSet("audio") {
		conf.Capture.AudioFile = c.String("audio")
	}
	if c.IsSet("video") {
		conf.Capture.VideoFile = c.String("video")
	}
	if c.IsSet("screen") {
		conf.Capture.ScreenFile = c.String("screen")
	}
	if c.IsSet("no-auto-subscribe") {
		conf.RTC.AutoSubscribe = !c.Bool("no-auto-subscribe")
	}

	return nil
}

func InitLoggerFromConfig(config *LoggingConfig) {
	logger.InitFromConfig(&config.Config, "meeting")
}
