// Package prompt turns free-text lighting requests into effect commands by
// asking a hosted language model to pick from the effect library. One job
// runs at a time; submissions are rate limited and never block the caller.
package prompt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/lumeworks/lume/internal/core"
	"github.com/lumeworks/lume/internal/effect"
	"github.com/lumeworks/lume/internal/led"
)

// State is the lifecycle of the single prompt job slot.
type State string

const (
	StateIdle    State = "idle"
	StateQueued  State = "queued"
	StateRunning State = "running"
	StateDone    State = "done"
	StateError   State = "error"
)

const (
	submitInterval = 3 * time.Second
	requestTimeout = 30 * time.Second
	maxPromptLen   = 500
)

var (
	ErrBusy      = errors.New("prompt: a job is already in flight")
	ErrRateLimit = errors.New("prompt: submitted too soon after the last request")
	ErrTooLong   = errors.New("prompt: text too long")
	ErrDisabled  = errors.New("prompt: no api key configured")
)

// Config carries the API endpoint settings.
type Config struct {
	APIKey   string
	Model    string
	Endpoint string
}

// Status is a copyable view of the job slot for API consumers.
type Status struct {
	State   State  `json:"state"`
	Prompt  string `json:"prompt,omitempty"`
	Message string `json:"message,omitempty"`
}

// Client owns the job slot. Controller mutations go through the command
// queue like every other producer.
type Client struct {
	log  zerolog.Logger
	cfg  Config
	ctrl *core.Controller
	http *http.Client

	mu         sync.Mutex
	state      State
	prompt     string
	message    string
	lastSubmit time.Time
	cancel     context.CancelFunc
}

func NewClient(log zerolog.Logger, cfg Config, ctrl *core.Controller) *Client {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-haiku-latest"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = "https://api.anthropic.com/v1/messages"
	}
	return &Client{
		log:   log.With().Str("comp", "prompt").Logger(),
		cfg:   cfg,
		ctrl:  ctrl,
		http:  &http.Client{Timeout: requestTimeout},
		state: StateIdle,
	}
}

// Submit queues text for processing and returns immediately. Only one job
// may be in flight and submissions are spaced at least three seconds apart.
func (c *Client) Submit(segment uint8, text string) error {
	if c.cfg.APIKey == "" {
		return ErrDisabled
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return errors.New("prompt: empty text")
	}
	if len(text) > maxPromptLen {
		return ErrTooLong
	}

	c.mu.Lock()
	if c.state == StateQueued || c.state == StateRunning {
		c.mu.Unlock()
		return ErrBusy
	}
	if now := time.Now(); now.Sub(c.lastSubmit) < submitInterval {
		c.mu.Unlock()
		return ErrRateLimit
	}
	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	c.state = StateQueued
	c.prompt = text
	c.message = ""
	c.lastSubmit = time.Now()
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx, segment, text)
	return nil
}

// Cancel aborts an in-flight job, if any.
func (c *Client) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
}

// Status reports the job slot.
func (c *Client) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state, Prompt: c.prompt, Message: c.message}
}

func (c *Client) run(ctx context.Context, segment uint8, text string) {
	c.setState(StateRunning, "")

	spec, err := c.request(ctx, text)
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.mu.Unlock()
	if err != nil {
		c.log.Warn().Err(err).Msg("prompt request failed")
		c.setState(StateError, err.Error())
		return
	}

	if err := c.apply(segment, spec); err != nil {
		c.setState(StateError, err.Error())
		return
	}
	c.setState(StateDone, fmt.Sprintf("applied effect %q", spec.Effect))
}

func (c *Client) setState(s State, msg string) {
	c.mu.Lock()
	c.state = s
	c.message = msg
	c.mu.Unlock()
}

// effectSpec is the JSON shape the model is asked to answer with.
type effectSpec struct {
	Effect     string             `json:"effect"`
	Params     map[string]float64 `json:"params,omitempty"`
	Color      []int              `json:"color,omitempty"`
	Palette    string             `json:"palette,omitempty"`
	Brightness *int               `json:"brightness,omitempty"`
}

type apiRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	System    string       `json:"system"`
	Messages  []apiMessage `json:"messages"`
}

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) request(ctx context.Context, text string) (*effectSpec, error) {
	var ids []string
	for _, info := range c.ctrl.Registry().List() {
		ids = append(ids, info.ID)
	}
	system := fmt.Sprintf(
		"You control an addressable LED strip. Pick one effect for the user's request "+
			"from this list: %s. Palettes: %s. Respond with only a JSON object: "+
			`{"effect":"id","params":{},"color":[r,g,b],"palette":"name","brightness":0-255}. `+
			"Omit fields you do not need.",
		strings.Join(ids, ", "), strings.Join(effect.PaletteNames(), ", "))

	body, err := json.Marshal(apiRequest{
		Model:     c.cfg.Model,
		MaxTokens: 256,
		System:    system,
		Messages:  []apiMessage{{Role: "user", Content: text}},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		if out.Error != nil {
			return nil, fmt.Errorf("api error: %s", out.Error.Message)
		}
		return nil, fmt.Errorf("api status %d", resp.StatusCode)
	}
	if len(out.Content) == 0 {
		return nil, errors.New("empty response")
	}
	return parseSpec(out.Content[0].Text)
}

// parseSpec pulls the first JSON object out of the model's reply; models
// sometimes wrap the object in prose or a code fence.
func parseSpec(text string) (*effectSpec, error) {
	start := strings.IndexByte(text, '{')
	end := strings.LastIndexByte(text, '}')
	if start < 0 || end <= start {
		return nil, errors.New("no JSON object in response")
	}
	var spec effectSpec
	if err := json.Unmarshal([]byte(text[start:end+1]), &spec); err != nil {
		return nil, fmt.Errorf("parse effect spec: %w", err)
	}
	if spec.Effect == "" {
		return nil, errors.New("response named no effect")
	}
	return &spec, nil
}

// apply translates the spec into queued commands.
func (c *Client) apply(segment uint8, spec *effectSpec) error {
	if _, ok := c.ctrl.Registry().Find(spec.Effect); !ok {
		return fmt.Errorf("model chose unknown effect %q", spec.Effect)
	}
	c.ctrl.Enqueue(core.SetEffect(segment, spec.Effect))
	for id, val := range spec.Params {
		c.ctrl.Enqueue(core.SetParam(segment, id, val))
	}
	if len(spec.Color) == 3 {
		c.ctrl.Enqueue(core.SetColor(segment, led.Color{
			R: clampU8(spec.Color[0]), G: clampU8(spec.Color[1]), B: clampU8(spec.Color[2]),
		}))
	}
	if spec.Palette != "" {
		c.ctrl.Enqueue(core.SetPalette(segment, uint8(effect.ParsePalette(spec.Palette))))
	}
	if spec.Brightness != nil {
		c.ctrl.Enqueue(core.SetGlobalBrightness(clampU8(*spec.Brightness)))
	}
	c.log.Info().Str("effect", spec.Effect).Msg("prompt applied")
	return nil
}

func clampU8(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
