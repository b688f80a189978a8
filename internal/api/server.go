// Package api serves the HTTP control surface: REST endpoints feeding the
// command queue, a websocket frame stream for live preview, and a health
// probe.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/lumeworks/lume/internal/config"
	"github.com/lumeworks/lume/internal/core"
	"github.com/lumeworks/lume/internal/effect"
	"github.com/lumeworks/lume/internal/led"
	"github.com/lumeworks/lume/internal/prompt"
)

const wsWriteDeadline = 200 * time.Millisecond

// Server is the HTTP control plane. All controller mutations go through the
// command queue; nothing here touches render state directly.
type Server struct {
	log     zerolog.Logger
	ctrl    *core.Controller
	prompt  *prompt.Client // nil when not configured
	cfgPath string
	token   string
	start   time.Time

	httpSrv *http.Server

	mu      sync.Mutex
	cfg     config.Config
	clients map[*websocket.Conn]bool
}

// New builds a server bound to addr. promptClient may be nil.
func New(log zerolog.Logger, ctrl *core.Controller, promptClient *prompt.Client, cfg config.Config, cfgPath string) *Server {
	s := &Server{
		log:     log.With().Str("comp", "api").Logger(),
		ctrl:    ctrl,
		prompt:  promptClient,
		cfg:     cfg,
		cfgPath: cfgPath,
		token:   cfg.HTTP.AuthToken,
		start:   time.Now(),
		clients: map[*websocket.Conn]bool{},
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/effects", s.handleEffects)
	mux.HandleFunc("GET /api/palettes", s.handlePalettes)
	mux.HandleFunc("GET /api/segments", s.handleSegmentList)
	mux.HandleFunc("POST /api/segments", s.handleSegmentCreate)
	mux.HandleFunc("POST /api/segments/{id}", s.handleSegmentUpdate)
	mux.HandleFunc("DELETE /api/segments/{id}", s.handleSegmentDelete)
	mux.HandleFunc("POST /api/power", s.handlePower)
	mux.HandleFunc("POST /api/brightness", s.handleBrightness)
	mux.HandleFunc("POST /api/nightlight", s.handleNightlight)
	mux.HandleFunc("GET /api/nightlight", s.handleNightlightStatus)
	mux.HandleFunc("GET /api/config", s.handleConfigGet)
	mux.HandleFunc("PUT /api/config", s.handleConfigPut)
	mux.HandleFunc("POST /api/config", s.handleConfigPut)
	mux.HandleFunc("POST /api/prompt", s.handlePromptSubmit)
	mux.HandleFunc("GET /api/prompt", s.handlePromptStatus)
	mux.HandleFunc("DELETE /api/prompt", s.handlePromptCancel)
	mux.HandleFunc("GET /ws", s.handleFramesWS)

	s.httpSrv = &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      s.withCORS(s.withAuth(mux)),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until Shutdown. Blocks; run it on its own goroutine.
func (s *Server) Start() error {
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("listening")
	err := s.httpSrv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		c.Close()
	}
	s.clients = map[*websocket.Conn]bool{}
	s.mu.Unlock()
	return s.httpSrv.Shutdown(ctx)
}

// withAuth enforces a bearer token on /api/ routes when one is configured.
// The health probe and the frame stream stay open.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token != "" && len(r.URL.Path) >= 5 && r.URL.Path[:5] == "/api/" {
			if r.Header.Get("Authorization") != "Bearer "+s.token {
				writeError(w, http.StatusUnauthorized, "invalid or missing token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad request body: "+err.Error())
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"uptime_s": time.Since(s.start).Seconds(),
		"frame_id": s.ctrl.FrameCount(),
		"fps":      s.ctrl.ActualFPS(),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"power":      s.ctrl.Power(),
		"brightness": s.ctrl.Brightness(),
		"led_count":  s.ctrl.LEDCount(),
		"target_fps": s.ctrl.TargetFPS(),
		"actual_fps": s.ctrl.ActualFPS(),
		"frame_id":   s.ctrl.FrameCount(),
		"segments":   s.ctrl.SegmentStatuses(),
		"protocols":  s.ctrl.ProtocolStatuses(),
	}
	if s.prompt != nil {
		resp["prompt"] = s.prompt.Status()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEffects(w http.ResponseWriter, _ *http.Request) {
	type paramJSON struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Type    string   `json:"type"`
		Default any      `json:"default,omitempty"`
		Min     any      `json:"min,omitempty"`
		Max     any      `json:"max,omitempty"`
		Options []string `json:"options,omitempty"`
	}
	type effectJSON struct {
		ID       string      `json:"id"`
		Name     string      `json:"name"`
		Category string      `json:"category"`
		Params   []paramJSON `json:"params"`
	}
	infos := s.ctrl.Registry().List()
	out := make([]effectJSON, 0, len(infos))
	for _, info := range infos {
		e := effectJSON{ID: info.ID, Name: info.DisplayName, Category: info.Category}
		for _, p := range info.Schema {
			pj := paramJSON{ID: p.ID, Name: p.Name, Type: p.Type.String(), Options: p.EnumOptions}
			switch p.Type {
			case effect.TypeInt, effect.TypeEnum:
				pj.Default, pj.Min, pj.Max = p.DefaultInt, p.MinInt, p.MaxInt
			case effect.TypeFloat:
				pj.Default, pj.Min, pj.Max = p.DefaultFloat, p.MinFloat, p.MaxFloat
			case effect.TypeColor:
				pj.Default = [3]uint8{p.DefaultColor.R, p.DefaultColor.G, p.DefaultColor.B}
			case effect.TypeBool:
				pj.Default = p.DefaultInt != 0
			}
			e.Params = append(e.Params, pj)
		}
		out = append(out, e)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handlePalettes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, effect.PaletteNames())
}

func (s *Server) handleSegmentList(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.SegmentStatuses())
}

func (s *Server) handleSegmentCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Start    uint16 `json:"start"`
		Length   uint16 `json:"length"`
		Reversed bool   `json:"reversed"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Length == 0 {
		writeError(w, http.StatusBadRequest, "length must be positive")
		return
	}
	if int(req.Start)+int(req.Length) > s.ctrl.LEDCount() {
		writeError(w, http.StatusBadRequest, "segment exceeds strip bounds")
		return
	}
	s.ctrl.Enqueue(core.CreateSegment(req.Start, req.Length, req.Reversed))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

// segmentUpdate is the PATCH-style body for one segment. Absent fields are
// left alone.
type segmentUpdate struct {
	Effect     string             `json:"effect,omitempty"`
	Params     map[string]float64 `json:"params,omitempty"`
	Color      []int              `json:"color,omitempty"`
	ColorID    string             `json:"color_id,omitempty"`
	Palette    string             `json:"palette,omitempty"`
	Brightness *uint8             `json:"brightness,omitempty"`
}

func (s *Server) handleSegmentUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	var req segmentUpdate
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Effect != "" {
		if _, ok := s.ctrl.Registry().Find(req.Effect); !ok {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown effect %q", req.Effect))
			return
		}
		s.ctrl.Enqueue(core.SetEffect(id, req.Effect))
	}
	for pid, val := range req.Params {
		s.ctrl.Enqueue(core.SetParam(id, pid, val))
	}
	if len(req.Color) == 3 {
		c := led.Color{R: clampU8(req.Color[0]), G: clampU8(req.Color[1]), B: clampU8(req.Color[2])}
		if req.ColorID != "" {
			s.ctrl.Enqueue(core.SetNamedColor(id, req.ColorID, c))
		} else {
			s.ctrl.Enqueue(core.SetColor(id, c))
		}
	}
	if req.Palette != "" {
		s.ctrl.Enqueue(core.SetPalette(id, uint8(effect.ParsePalette(req.Palette))))
	}
	if req.Brightness != nil {
		s.ctrl.Enqueue(core.SetBrightness(id, *req.Brightness))
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleSegmentDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := segmentID(w, r)
	if !ok {
		return
	}
	s.ctrl.Enqueue(core.RemoveSegment(id))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func segmentID(w http.ResponseWriter, r *http.Request) (uint8, bool) {
	v, err := strconv.Atoi(r.PathValue("id"))
	if err != nil || v < 0 || v >= core.GlobalTarget {
		writeError(w, http.StatusBadRequest, "bad segment id")
		return 0, false
	}
	return uint8(v), true
}

func (s *Server) handlePower(w http.ResponseWriter, r *http.Request) {
	var req struct {
		On *bool `json:"on"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	on := !s.ctrl.Power() // no field means toggle
	if req.On != nil {
		on = *req.On
	}
	s.ctrl.Enqueue(core.SetPower(on))
	writeJSON(w, http.StatusAccepted, map[string]bool{"on": on})
}

func (s *Server) handleBrightness(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Level int `json:"level"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Level < 0 || req.Level > 255 {
		writeError(w, http.StatusBadRequest, "level must be 0-255")
		return
	}
	s.ctrl.Enqueue(core.SetGlobalBrightness(uint8(req.Level)))
	writeJSON(w, http.StatusAccepted, map[string]int{"level": req.Level})
}

func (s *Server) handleNightlight(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DurationS int   `json:"duration_s"`
		Target    uint8 `json:"target"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DurationS <= 0 {
		writeError(w, http.StatusBadRequest, "duration_s must be positive")
		return
	}
	s.ctrl.Enqueue(core.Nightlight(time.Duration(req.DurationS)*time.Second, req.Target))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleNightlightStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.ctrl.NightlightStatus())
}

func (s *Server) handleConfigGet(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	cfg.HTTP.AuthToken = "" // never echo secrets
	cfg.MQTT.Password = ""
	cfg.Prompt.APIKey = ""
	writeJSON(w, http.StatusOK, cfg)
}

// handleConfigPut persists a new configuration. Most fields take effect on
// the next restart; this endpoint only validates and writes the file.
func (s *Server) handleConfigPut(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cfg := s.cfg
	s.mu.Unlock()
	if !decodeBody(w, r, &cfg) {
		return
	}
	if cfg.LEDCount < 1 || cfg.LEDCount > led.MaxCount {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("led_count must be 1-%d", led.MaxCount))
		return
	}
	if cfg.FPS < 1 || cfg.FPS > 240 {
		writeError(w, http.StatusBadRequest, "fps must be 1-240")
		return
	}
	if s.cfgPath == "" {
		writeError(w, http.StatusConflict, "no config file path configured")
		return
	}
	if err := config.Save(s.cfgPath, cfg); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved, restart to apply"})
}

func (s *Server) handlePromptSubmit(w http.ResponseWriter, r *http.Request) {
	if s.prompt == nil {
		writeError(w, http.StatusNotImplemented, "prompt support not configured")
		return
	}
	var req struct {
		Text    string `json:"text"`
		Segment uint8  `json:"segment"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	switch err := s.prompt.Submit(req.Segment, req.Text); {
	case err == nil:
		writeJSON(w, http.StatusAccepted, s.prompt.Status())
	case errors.Is(err, prompt.ErrBusy), errors.Is(err, prompt.ErrRateLimit):
		writeError(w, http.StatusTooManyRequests, err.Error())
	default:
		writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *Server) handlePromptStatus(w http.ResponseWriter, _ *http.Request) {
	if s.prompt == nil {
		writeError(w, http.StatusNotImplemented, "prompt support not configured")
		return
	}
	writeJSON(w, http.StatusOK, s.prompt.Status())
}

func (s *Server) handlePromptCancel(w http.ResponseWriter, _ *http.Request) {
	if s.prompt == nil {
		writeError(w, http.StatusNotImplemented, "prompt support not configured")
		return
	}
	s.prompt.Cancel()
	writeJSON(w, http.StatusOK, s.prompt.Status())
}

// handleFramesWS streams presented frames to the client as JSON text
// messages. The client side is read-drained only to notice disconnects.
func (s *Server) handleFramesWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.mu.Lock()
	s.clients[conn] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.clients, conn)
			s.mu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// BroadcastFrame pushes one presented frame to every websocket client. Wired
// as the controller's frame hook; returns fast when nobody is listening.
func (s *Server) BroadcastFrame(pix []led.Color) {
	s.mu.Lock()
	n := len(s.clients)
	s.mu.Unlock()
	if n == 0 {
		return
	}

	rgb := make([]byte, len(pix)*3)
	for i, c := range pix {
		rgb[i*3], rgb[i*3+1], rgb[i*3+2] = c.R, c.G, c.B
	}
	type frame struct {
		T       int64  `json:"t"`
		FrameID uint64 `json:"frame_id"`
		RGB     []byte `json:"rgb"`
	}
	b, _ := json.Marshal(frame{T: time.Now().UnixNano(), FrameID: s.ctrl.FrameCount(), RGB: rgb})

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.SetWriteDeadline(time.Now().Add(wsWriteDeadline))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			s.log.Debug().Err(err).Msg("frame write failed")
		}
	}
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
