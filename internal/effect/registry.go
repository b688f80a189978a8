package effect

import (
	"errors"
	"fmt"
)

const (
	// ScratchSize is the fixed per-segment scratch budget. Effects declaring
	// more are rejected at registration and at assignment time.
	ScratchSize = 512

	// MaxEffects bounds the registry.
	MaxEffects = 32
)

// RenderFunc draws one frame of an effect into the view.
//
// Contract: write only within [0, view.Len()); use frame (never wall-clock)
// for timing; treat first as the only signal to (re)initialize scratch; keep
// all persistent state inside scratch so two segments running the same effect
// never share anything.
type RenderFunc func(view View, params *Values, frame uint64, first bool, scratch []byte)

// Info is the immutable registration record for one effect.
type Info struct {
	ID           string
	DisplayName  string
	Category     string
	Schema       Schema
	ScratchBytes int
	Render       RenderFunc
}

// Registry is an append-only catalog of effects, populated once at startup.
type Registry struct {
	infos []Info
	byID  map[string]int
}

func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]int)}
}

var errRegistryFull = errors.New("effect registry full")

// Register adds an effect. Fails on duplicates, a nil render function, a
// scratch requirement over budget, or a full registry.
func (r *Registry) Register(info Info) error {
	if info.ID == "" || info.Render == nil {
		return fmt.Errorf("effect %q: incomplete registration", info.ID)
	}
	if info.ScratchBytes > ScratchSize {
		return fmt.Errorf("effect %q: scratch %d exceeds budget %d", info.ID, info.ScratchBytes, ScratchSize)
	}
	if len(info.Schema) > MaxParams {
		return fmt.Errorf("effect %q: %d params exceeds max %d", info.ID, len(info.Schema), MaxParams)
	}
	if _, dup := r.byID[info.ID]; dup {
		return fmt.Errorf("effect %q: already registered", info.ID)
	}
	if len(r.infos) >= MaxEffects {
		return errRegistryFull
	}
	if info.DisplayName == "" {
		info.DisplayName = info.ID
	}
	r.byID[info.ID] = len(r.infos)
	r.infos = append(r.infos, info)
	return nil
}

// Find returns the effect for id.
func (r *Registry) Find(id string) (*Info, bool) {
	i, ok := r.byID[id]
	if !ok {
		return nil, false
	}
	return &r.infos[i], true
}

// List returns all registered effects in registration order.
func (r *Registry) List() []*Info {
	out := make([]*Info, len(r.infos))
	for i := range r.infos {
		out[i] = &r.infos[i]
	}
	return out
}

func (r *Registry) Len() int { return len(r.infos) }
