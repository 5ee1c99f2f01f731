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
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/livekit/protocol/logger"

	"github.com/WebRTC-CN/multi-meeting-app/pkg/config"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/mediacapture"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/meeting"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/ortc"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/rtc/types"
	"github.com/WebRTC-CN/multi-meeting-app/pkg/telemetry/prometheus"
)

func joinRoom(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Infow("exit requested, leaving room", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	if conf.PrometheusPort > 0 {
		prometheus.Init()
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", conf.PrometheusPort),
			Handler: promhttp.Handler(),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Errorw("prometheus server failed", err, "port", conf.PrometheusPort)
			}
		}()
		defer srv.Close()
	}

	l := logger.GetLogger()
	client := meeting.NewClient(meeting.ClientParams{
		UserID: c.String("user"),
		Config: conf,
		Device: ortc.NewDevice(ortc.DeviceParams{
			ICEServers:   conf.RTC.ICEServers,
			PionLogLevel: conf.Logging.PionLevel,
			Logger:       l,
		}),
		Logger: l,
	})
	defer client.Close()

	s := &session{
		client:        client,
		autoSubscribe: conf.RTC.AutoSubscribe,
		out:           os.Stdout,
	}
	events := client.SubscribeEvents()

	joinCtx, joinCancel := context.WithTimeout(ctx, conf.Signalling.ConnectTimeout+conf.Signalling.CommandTimeout)
	peers, err := client.Join(joinCtx, c.String("room"), c.String("token"))
	joinCancel()
	if err != nil {
		return err
	}
	printRoster(s.out, peers)

	if opts, ok := captureOptions(c); ok {
		devices := mediacapture.NewFileDevices(conf.Capture, l)
		stream, err := client.CreateLocalStream(ctx, devices, opts)
		if err != nil {
			return err
		}
		if err = client.Publish(ctx, stream); err != nil {
			stream.Close()
			return err
		}
	}

	return s.run(ctx, events, c.Duration("stats-interval"))
}

func captureOptions(c *cli.Context) (mediacapture.Options, bool) {
	var opts mediacapture.Options
	if c.Bool("publish-audio") {
		opts.Audio = &mediacapture.Constraints{}
	}
	if c.Bool("share-screen") {
		opts.Screen = &mediacapture.Constraints{}
	} else if c.Bool("publish-video") {
		opts.Video = &mediacapture.Constraints{}
	}
	return opts, opts.Validate() == nil
}

// session drives a joined client from its events until the context ends or the client closes.
type session struct {
	client        *meeting.Client
	autoSubscribe bool
	out           io.Writer
}

func (s *session) run(ctx context.Context, events <-chan meeting.Event, statsInterval time.Duration) error {
	var statsC <-chan time.Time
	if statsInterval > 0 {
		ticker := time.NewTicker(statsInterval)
		defer ticker.Stop()
		statsC = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-statsC:
			s.printStats(ctx)
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if err := s.handleEvent(ctx, ev); err != nil {
				return err
			}
		}
	}
}

func (s *session) handleEvent(ctx context.Context, ev meeting.Event) error {
	switch e := ev.(type) {
	case meeting.PeerEnterEvent:
		fmt.Fprintf(s.out, "%s entered\n", displayName(e.Peer))
	case meeting.PeerLeaveEvent:
		fmt.Fprintf(s.out, "%s left\n", e.PeerID)
	case meeting.NewStreamEvent:
		if s.autoSubscribe {
			go s.subscribe(ctx, e.Stream)
		}
	case meeting.SubscribedEvent:
		fmt.Fprintf(s.out, "receiving %s: %v\n", e.Stream.PeerID(), rtc.KindsOf(e.Stream.GetTracks()))
	case meeting.StreamRemovedEvent:
		fmt.Fprintf(s.out, "%s stopped publishing\n", e.Stream.PeerID())
	case meeting.DisconnectedEvent:
		return fmt.Errorf("disconnected from room: %w", e.Err)
	}
	return nil
}

func (s *session) subscribe(ctx context.Context, stream *rtc.RemoteStream) {
	if err := s.client.Subscribe(ctx, stream); err != nil && !errors.Is(err, rtc.ErrAlreadySubscribed) {
		logger.Warnw("could not subscribe", err, "peerID", stream.PeerID())
	}
}

func (s *session) printStats(ctx context.Context) {
	var rows [][]string
	if local := s.client.LocalStream(); local != nil {
		for _, track := range local.GetTracks() {
			stats, err := s.client.GetSendStats(ctx, track)
			if err != nil || stats == nil {
				continue
			}
			rows = append(rows, statsRow("send", s.client.UserID(), *stats))
		}
	}
	for _, stream := range s.client.RemoteStreams() {
		stats, err := s.client.GetReceiveStats(ctx, stream, "")
		if err != nil {
			continue
		}
		for _, st := range stats {
			rows = append(rows, statsRow("recv", stream.PeerID(), st))
		}
	}
	if len(rows) == 0 {
		return
	}

	table := tablewriter.NewWriter(s.out)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Direction", "Peer", "Kind", "Codec", "Packets", "Bytes", "Paused"})
	table.AppendBulk(rows)
	table.Render()
}

func statsRow(direction string, peerID string, stats types.Stats) []string {
	return []string{
		direction,
		peerID,
		string(stats.Kind),
		stats.MimeType,
		humanize.Comma(int64(stats.Packets)),
		humanize.Bytes(stats.Bytes),
		fmt.Sprint(stats.Paused),
	}
}

func printRoster(out io.Writer, peers []meeting.Peer) {
	if len(peers) == 0 {
		fmt.Fprintln(out, "room is empty")
		return
	}

	table := tablewriter.NewWriter(out)
	table.SetRowLine(true)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"ID", "Name"})
	table.SetColumnAlignment([]int{
		tablewriter.ALIGN_CENTER,
		tablewriter.ALIGN_CENTER,
	})
	for _, p := range peers {
		table.Append([]string{p.ID, p.Name})
	}
	table.Render()
}

func displayName(p meeting.Peer) string {
	if p.Name != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.ID)
	}
	return p.ID
}

func listDevices(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	devices, err := mediacapture.Devices(c.Context, mediacapture.NewFileDevices(conf.Capture, nil), "")
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Kind", "Label", "Source"})
	for _, d := range devices {
		table.Append([]string{string(d.Kind), d.Label, d.DeviceID})
	}
	table.Render()
	return nil
}

func printConfig(c *cli.Context) error {
	conf, err := getConfig(c)
	if err != nil {
		return err
	}

	out, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func helpVerbose(c *cli.Context) error {
	generatedFlags, err := config.GenerateCLIFlags(baseFlags, false)
	if err != nil {
		return err
	}

	c.App.Flags = append(baseFlags, generatedFlags...)
	return cli.ShowAppHelp(c)
}
