// Package mqtt bridges the controller to an MQTT broker: set-topics feed the
// command queue, and the controller state is mirrored to a retained topic.
package mqtt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/lumeworks/lume/internal/core"
	"github.com/lumeworks/lume/internal/led"
)

const (
	connectTimeout = 10 * time.Second
	mirrorInterval = 30 * time.Second
)

// Config names the broker and the topic prefix.
type Config struct {
	Broker   string
	ClientID string
	Username string
	Password string
	Prefix   string
}

// Bridge owns the broker connection. All controller mutations it performs go
// through the command queue; state reads are monitoring-grade.
type Bridge struct {
	log    zerolog.Logger
	cfg    Config
	ctrl   *core.Controller
	client paho.Client
	done   chan struct{}
}

// statePayload mirrors the controller onto {prefix}/state.
type statePayload struct {
	Power      bool                 `json:"power"`
	Brightness uint8                `json:"brightness"`
	FPS        int                  `json:"fps"`
	Segments   []core.SegmentStatus `json:"segments"`
}

// setPayload is the JSON command accepted on {prefix}/set.
type setPayload struct {
	Power      *bool              `json:"power,omitempty"`
	Brightness *uint8             `json:"brightness,omitempty"`
	Segment    uint8              `json:"segment"`
	Effect     string             `json:"effect,omitempty"`
	Params     map[string]float64 `json:"params,omitempty"`
	Color      []int              `json:"color,omitempty"`
}

func NewBridge(log zerolog.Logger, cfg Config, ctrl *core.Controller) *Bridge {
	if cfg.Prefix == "" {
		cfg.Prefix = "lume"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "lume"
	}
	return &Bridge{
		log:  log.With().Str("comp", "mqtt").Logger(),
		cfg:  cfg,
		ctrl: ctrl,
		done: make(chan struct{}),
	}
}

func (b *Bridge) topic(parts ...string) string {
	return b.cfg.Prefix + "/" + strings.Join(parts, "/")
}

// Start connects, subscribes the set-topics and launches the state mirror.
func (b *Bridge) Start() error {
	opts := paho.NewClientOptions().
		AddBroker(b.cfg.Broker).
		SetClientID(b.cfg.ClientID).
		SetUsername(b.cfg.Username).
		SetPassword(b.cfg.Password).
		SetAutoReconnect(true).
		SetConnectTimeout(connectTimeout).
		SetWill(b.topic("status"), "offline", 0, true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			b.log.Warn().Err(err).Msg("connection lost")
		})

	b.client = paho.NewClient(opts)
	tok := b.client.Connect()
	if !tok.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: connect to %s timed out", b.cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("mqtt: connect: %w", err)
	}
	go b.mirrorLoop()
	return nil
}

// Stop publishes offline status and disconnects.
func (b *Bridge) Stop() {
	close(b.done)
	if b.client != nil && b.client.IsConnected() {
		b.client.Publish(b.topic("status"), 0, true, "offline")
		b.client.Disconnect(250)
	}
}

func (b *Bridge) onConnect(c paho.Client) {
	b.log.Info().Str("broker", b.cfg.Broker).Msg("connected")
	c.Publish(b.topic("status"), 0, true, "online")

	subs := map[string]paho.MessageHandler{
		b.topic("set"):               b.handleSet,
		b.topic("power", "set"):      b.handlePower,
		b.topic("brightness", "set"): b.handleBrightness,
		b.topic("effect", "set"):     b.handleEffect,
		b.topic("color", "set"):      b.handleColor,
	}
	for t, h := range subs {
		if tok := c.Subscribe(t, 0, h); tok.Wait() && tok.Error() != nil {
			b.log.Error().Err(tok.Error()).Str("topic", t).Msg("subscribe failed")
		}
	}
	b.publishState()
}

func (b *Bridge) handleSet(_ paho.Client, msg paho.Message) {
	var p setPayload
	if err := json.Unmarshal(msg.Payload(), &p); err != nil {
		b.log.Debug().Err(err).Msg("bad set payload")
		return
	}
	if p.Power != nil {
		b.ctrl.Enqueue(core.SetPower(*p.Power))
	}
	if p.Brightness != nil {
		b.ctrl.Enqueue(core.SetGlobalBrightness(*p.Brightness))
	}
	if p.Effect != "" {
		b.ctrl.Enqueue(core.SetEffect(p.Segment, p.Effect))
	}
	for id, val := range p.Params {
		b.ctrl.Enqueue(core.SetParam(p.Segment, id, val))
	}
	if len(p.Color) == 3 {
		b.ctrl.Enqueue(core.SetColor(p.Segment, colorFromInts(p.Color)))
	}
	b.publishState()
}

// handlePower accepts "on"/"off"/"1"/"0"/"true"/"false".
func (b *Bridge) handlePower(_ paho.Client, msg paho.Message) {
	s := strings.ToLower(strings.TrimSpace(string(msg.Payload())))
	switch s {
	case "on", "1", "true":
		b.ctrl.Enqueue(core.SetPower(true))
	case "off", "0", "false":
		b.ctrl.Enqueue(core.SetPower(false))
	default:
		b.log.Debug().Str("payload", s).Msg("bad power payload")
		return
	}
	b.publishState()
}

func (b *Bridge) handleBrightness(_ paho.Client, msg paho.Message) {
	v, err := strconv.Atoi(strings.TrimSpace(string(msg.Payload())))
	if err != nil || v < 0 || v > 255 {
		b.log.Debug().Str("payload", string(msg.Payload())).Msg("bad brightness payload")
		return
	}
	b.ctrl.Enqueue(core.SetGlobalBrightness(uint8(v)))
	b.publishState()
}

// handleEffect takes a bare effect id and applies it to segment 0.
func (b *Bridge) handleEffect(_ paho.Client, msg paho.Message) {
	id := strings.TrimSpace(string(msg.Payload()))
	if id == "" {
		return
	}
	b.ctrl.Enqueue(core.SetEffect(0, id))
	b.publishState()
}

// handleColor takes "r,g,b" and applies it to segment 0's primary color.
func (b *Bridge) handleColor(_ paho.Client, msg paho.Message) {
	parts := strings.Split(strings.TrimSpace(string(msg.Payload())), ",")
	if len(parts) != 3 {
		b.log.Debug().Str("payload", string(msg.Payload())).Msg("bad color payload")
		return
	}
	vals := make([]int, 3)
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || v < 0 || v > 255 {
			b.log.Debug().Str("payload", string(msg.Payload())).Msg("bad color payload")
			return
		}
		vals[i] = v
	}
	b.ctrl.Enqueue(core.SetColor(0, colorFromInts(vals)))
	b.publishState()
}

// mirrorLoop republishes the retained state topic periodically so late
// subscribers and home-automation dashboards stay current.
func (b *Bridge) mirrorLoop() {
	t := time.NewTicker(mirrorInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			b.publishState()
		case <-b.done:
			return
		}
	}
}

func (b *Bridge) publishState() {
	if b.client == nil || !b.client.IsConnected() {
		return
	}
	data, err := json.Marshal(statePayload{
		Power:      b.ctrl.Power(),
		Brightness: b.ctrl.Brightness(),
		FPS:        b.ctrl.ActualFPS(),
		Segments:   b.ctrl.SegmentStatuses(),
	})
	if err != nil {
		return
	}
	b.client.Publish(b.topic("state"), 0, true, data)
}

func colorFromInts(v []int) led.Color {
	clamp := func(x int) uint8 {
		if x < 0 {
			return 0
		}
		if x > 255 {
			return 255
		}
		return uint8(x)
	}
	return led.Color{R: clamp(v[0]), G: clamp(v[1]), B: clamp(v[2])}
}
