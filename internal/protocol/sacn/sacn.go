// Package sacn implements an E1.31 (streaming ACN) receiver that feeds whole
// DMX-sourced frames to the controller through the protocol handoff buffer.
// Multi-universe payloads are reassembled into one strip frame and competing
// senders are arbitrated by E1.31 priority.
package sacn

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/ipv4"

	"github.com/lumeworks/lume/internal/led"
	"github.com/lumeworks/lume/internal/protocol"
)

const (
	// Port is the IANA-assigned E1.31 UDP port.
	Port = 5568

	headerSize   = 126
	maxPacket    = 638 // 126-byte header + 512 channels
	maxUniverses = 8
	maxSources   = 4

	// drainBudget bounds packets parsed per render-loop update.
	drainBudget = 10

	channelsPerUniverse = 512
	ledsPerUniverse     = 170

	// sourceTimeout expires a sender not heard from, releasing any universe
	// it was winning. Checked by a once-a-second sweep.
	sourceTimeout       = 2500 * time.Millisecond
	sourceSweepInterval = time.Second

	// DefaultDataTimeout is how long the receiver holds control after the
	// last accepted packet before handing the strip back.
	DefaultDataTimeout = 5 * time.Second
)

// E1.31 wire layout offsets within the combined root/frame/DMP header.
const (
	offACNID       = 4
	offRootVector  = 18
	offCID         = 22
	offFrameVector = 40
	offSourceName  = 44
	offPriority    = 108
	offSequence    = 111
	offOptions     = 112
	offUniverse    = 113
	offDMPVector   = 117
	offPropCount   = 123
	offStartCode   = 125
	offDMX         = 126
)

const (
	rootVectorData  = 0x00000004
	frameVectorData = 0x00000002
	dmpVectorSet    = 0x02

	optPreview   = 0x80
	optTerminate = 0x40
)

var acnPacketID = [12]byte{0x41, 0x53, 0x43, 0x2d, 0x45, 0x31, 0x2e, 0x31, 0x37, 0x00, 0x00, 0x00}

// Config describes one receiver instance.
type Config struct {
	// StartUniverse is the first universe of the contiguous block to listen
	// on. Universes are 1-63999 in E1.31.
	StartUniverse uint16
	// UniverseCount is the block size, at most 8.
	UniverseCount int
	// Unicast skips multicast group joins and accepts directed packets only.
	Unicast bool
	// StartChannel (1-512) offsets the first universe's pixel data, so the
	// strip can share a universe with other fixtures.
	StartChannel int
	// AcceptPreview admits packets flagged as preview data.
	AcceptPreview bool
	// DataTimeout overrides DefaultDataTimeout when positive.
	DataTimeout time.Duration
}

func (c *Config) normalize() {
	if c.StartUniverse == 0 {
		c.StartUniverse = 1
	}
	if c.UniverseCount < 1 {
		c.UniverseCount = 1
	}
	if c.UniverseCount > maxUniverses {
		c.UniverseCount = maxUniverses
	}
	if c.StartChannel < 1 {
		c.StartChannel = 1
	}
	if c.StartChannel > channelsPerUniverse {
		c.StartChannel = channelsPerUniverse
	}
	if c.DataTimeout <= 0 {
		c.DataTimeout = DefaultDataTimeout
	}
}

// LEDCapacity returns how many pixels the configured universe block carries:
// the first universe from StartChannel to 512, then 170 per extra universe.
func (c Config) LEDCapacity() int {
	first := (channelsPerUniverse - (c.StartChannel - 1)) / 3
	n := first + (c.UniverseCount-1)*ledsPerUniverse
	if n > led.MaxCount {
		n = led.MaxCount
	}
	return n
}

// source is one tracked sender, keyed by CID.
type source struct {
	cid      [16]byte
	name     string
	priority uint8
	seq      [maxUniverses]uint8
	seqSeen  [maxUniverses]bool
	lastSeen time.Time
}

type universeSlot struct {
	data [channelsPerUniverse]byte
	n    int
	have bool

	// Arbitration is per universe: each slot tracks its own winning sender.
	activeSource   int // index into sources, -1 when unclaimed
	activePriority uint8
}

// Receiver listens for E1.31 packets on its own goroutine and parses them on
// the render loop via Update. Everything past the raw-packet channel is
// single-threaded, so source and universe state need no locking.
type Receiver struct {
	log zerolog.Logger
	cfg Config

	fb      protocol.FrameBuffer
	enabled atomic.Bool
	active  atomic.Bool
	packets atomic.Uint64

	conn  net.PacketConn
	raw   chan []byte
	done  chan struct{}
	wg    sync.WaitGroup
	begun bool

	sources   [maxSources]source
	nsources  int
	universes [maxUniverses]universeSlot
	lastSweep time.Time

	work     [led.MaxCount]led.Color
	ledCount int
}

// New builds a receiver. Begin must be called before it will ingest anything.
func New(log zerolog.Logger, cfg Config) *Receiver {
	cfg.normalize()
	r := &Receiver{
		log:      log.With().Str("comp", "sacn").Logger(),
		cfg:      cfg,
		raw:      make(chan []byte, 32),
		done:     make(chan struct{}),
		ledCount: cfg.LEDCapacity(),
	}
	for i := range r.universes {
		r.universes[i].activeSource = -1
	}
	r.enabled.Store(true)
	return r
}

func (r *Receiver) Name() string { return "sacn" }

// Begin opens the UDP socket, joins the multicast groups for the configured
// universe block (unless unicast), and starts the reader goroutine.
func (r *Receiver) Begin() error {
	if r.begun {
		return nil
	}
	conn, err := net.ListenPacket("udp4", fmt.Sprintf(":%d", Port))
	if err != nil {
		return fmt.Errorf("sacn: listen: %w", err)
	}
	if !r.cfg.Unicast {
		pc := ipv4.NewPacketConn(conn)
		for i := 0; i < r.cfg.UniverseCount; i++ {
			u := r.cfg.StartUniverse + uint16(i)
			grp := &net.UDPAddr{IP: universeGroup(u)}
			if err := pc.JoinGroup(nil, grp); err != nil {
				conn.Close()
				return fmt.Errorf("sacn: join universe %d group: %w", u, err)
			}
		}
	}
	r.conn = conn
	r.begun = true
	r.wg.Add(1)
	go r.readLoop()
	r.log.Info().
		Uint16("start_universe", r.cfg.StartUniverse).
		Int("universes", r.cfg.UniverseCount).
		Bool("unicast", r.cfg.Unicast).
		Int("leds", r.ledCount).
		Msg("listening")
	return nil
}

// Stop closes the socket and waits for the reader to exit.
func (r *Receiver) Stop() {
	if !r.begun {
		return
	}
	close(r.done)
	r.conn.Close()
	r.wg.Wait()
	r.begun = false
	r.active.Store(false)
}

func (r *Receiver) SetEnabled(e bool) { r.enabled.Store(e) }
func (r *Receiver) Enabled() bool     { return r.enabled.Load() }

// universeGroup derives the E1.31 multicast address 239.255.hi.lo.
func universeGroup(u uint16) net.IP {
	return net.IPv4(239, 255, byte(u>>8), byte(u))
}

// readLoop pushes raw datagrams into the bounded channel; a full channel
// drops the datagram rather than blocking the socket.
func (r *Receiver) readLoop() {
	defer r.wg.Done()
	buf := make([]byte, maxPacket+1)
	for {
		n, _, err := r.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-r.done:
				return
			default:
			}
			r.log.Debug().Err(err).Msg("read failed")
			continue
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		select {
		case r.raw <- pkt:
		default:
			// ingestion backlog; the render loop will catch up
		}
	}
}

// Update drains pending datagrams (bounded per call), parses and arbitrates
// them, and publishes a reassembled frame when any universe changed. Render
// loop only.
func (r *Receiver) Update() bool {
	now := time.Now()
	changed := false
drain:
	for i := 0; i < drainBudget; i++ {
		select {
		case pkt := <-r.raw:
			if r.parsePacket(pkt, now) {
				changed = true
			}
		default:
			break drain
		}
	}
	if now.Sub(r.lastSweep) >= sourceSweepInterval {
		r.lastSweep = now
		r.sweepSources(now)
	}
	if changed {
		r.assemble()
	}
	r.active.Store(!r.fb.TimedOut(r.cfg.DataTimeout))
	return changed
}

// parsePacket validates one datagram against the E1.31 framing rules and, if
// it wins arbitration, stores its DMX payload into the universe slot.
func (r *Receiver) parsePacket(pkt []byte, now time.Time) bool {
	if len(pkt) <= headerSize || len(pkt) > maxPacket {
		return false
	}
	for i, b := range acnPacketID {
		if pkt[offACNID+i] != b {
			return false
		}
	}
	if be32(pkt[offRootVector:]) != rootVectorData {
		return false
	}
	if be32(pkt[offFrameVector:]) != frameVectorData {
		return false
	}

	var cid [16]byte
	copy(cid[:], pkt[offCID:offCID+16])
	priority := pkt[offPriority]
	seq := pkt[offSequence]
	opts := pkt[offOptions]
	universe := uint16(pkt[offUniverse])<<8 | uint16(pkt[offUniverse+1])

	if opts&optPreview != 0 && !r.cfg.AcceptPreview {
		return false
	}

	uidx := int(universe) - int(r.cfg.StartUniverse)
	if uidx < 0 || uidx >= r.cfg.UniverseCount {
		return false
	}

	if opts&optTerminate != 0 {
		r.terminateSource(cid)
		return false
	}

	src := r.resolveSource(cid, pkt, priority, now)
	if src == nil {
		return false
	}
	idx := r.indexOf(src)
	slot := &r.universes[uidx]

	// Sequence check, only against the universe's currently-active source.
	// Out-of-order packets less than 20 behind are rejected; anything older
	// counts as a stream restart. The observed sequence is recorded either
	// way.
	if slot.activeSource == idx && src.seqSeen[uidx] {
		diff := int8(seq - src.seq[uidx])
		if diff < 0 && diff > -20 {
			src.seq[uidx] = seq
			return false
		}
	}
	src.seq[uidx] = seq
	src.seqSeen[uidx] = true

	if !r.arbitrate(slot, idx, src) {
		return false
	}

	if pkt[offDMPVector] != dmpVectorSet {
		return false
	}
	if pkt[offStartCode] != 0 {
		return false // not a null-start-code DMX frame
	}
	propCount := int(pkt[offPropCount])<<8 | int(pkt[offPropCount+1])
	if propCount < 2 {
		return false
	}
	channels := propCount - 1 // first property is the start code
	if channels > len(pkt)-offDMX {
		channels = len(pkt) - offDMX
	}
	if channels > channelsPerUniverse {
		channels = channelsPerUniverse
	}

	copy(slot.data[:channels], pkt[offDMX:offDMX+channels])
	slot.n = channels
	slot.have = true
	r.packets.Add(1)
	return true
}

// resolveSource finds or registers the sender, evicting the stalest entry
// when the pool is full.
func (r *Receiver) resolveSource(cid [16]byte, pkt []byte, priority uint8, now time.Time) *source {
	for i := 0; i < r.nsources; i++ {
		if r.sources[i].cid == cid {
			s := &r.sources[i]
			s.priority = priority
			s.lastSeen = now
			return s
		}
	}
	idx := r.nsources
	if idx >= maxSources {
		idx = 0
		for i := 1; i < maxSources; i++ {
			if r.sources[i].lastSeen.Before(r.sources[idx].lastSeen) {
				idx = i
			}
		}
		r.releaseUniverses(idx)
		r.log.Debug().Str("name", r.sources[idx].name).Msg("evicting stalest source")
	} else {
		r.nsources++
	}
	r.sources[idx] = source{
		cid:      cid,
		name:     cstring(pkt[offSourceName : offSourceName+64]),
		priority: priority,
		lastSeen: now,
	}
	return &r.sources[idx]
}

// arbitrate decides whether src's data drives the given universe. An
// equal-priority sender takes over quietly; a strictly higher one logs the
// change. Lower priority is rejected.
func (r *Receiver) arbitrate(slot *universeSlot, idx int, src *source) bool {
	if slot.activeSource < 0 || slot.activeSource == idx {
		slot.activeSource = idx
		slot.activePriority = src.priority
		return true
	}
	if src.priority < slot.activePriority {
		return false
	}
	if src.priority > slot.activePriority {
		r.log.Info().
			Str("from", r.sources[slot.activeSource].name).Str("to", src.name).
			Uint8("priority", src.priority).
			Msg("higher-priority source took over")
	}
	slot.activeSource = idx
	slot.activePriority = src.priority
	return true
}

func (r *Receiver) indexOf(src *source) int {
	for i := 0; i < r.nsources; i++ {
		if &r.sources[i] == src {
			return i
		}
	}
	return -1
}

func (r *Receiver) terminateSource(cid [16]byte) {
	for i := 0; i < r.nsources; i++ {
		if r.sources[i].cid == cid {
			r.removeSource(i)
			return
		}
	}
}

// sweepSources drops senders that have gone silent past the source timeout.
func (r *Receiver) sweepSources(now time.Time) {
	for i := 0; i < r.nsources; {
		if now.Sub(r.sources[i].lastSeen) > sourceTimeout {
			r.log.Debug().Str("name", r.sources[i].name).Msg("source timed out")
			r.removeSource(i)
			continue
		}
		i++
	}
}

// removeSource compacts the pool and releases or reindexes each universe's
// active-source reference.
func (r *Receiver) removeSource(i int) {
	for u := range r.universes {
		if r.universes[u].activeSource == i {
			r.universes[u].activeSource = -1
			r.universes[u].activePriority = 0
		} else if r.universes[u].activeSource > i {
			r.universes[u].activeSource--
		}
	}
	copy(r.sources[i:], r.sources[i+1:r.nsources])
	r.nsources--
	r.sources[r.nsources] = source{}
}

// releaseUniverses clears any universe the given source index was winning.
// Used when a pool slot is reused in place rather than compacted away.
func (r *Receiver) releaseUniverses(idx int) {
	for u := range r.universes {
		if r.universes[u].activeSource == idx {
			r.universes[u].activeSource = -1
			r.universes[u].activePriority = 0
		}
	}
}

// assemble stitches the universe slots into one frame and publishes it.
// Universes that have not received data yet keep their region dark.
func (r *Receiver) assemble() {
	firstLEDs := (channelsPerUniverse - (r.cfg.StartChannel - 1)) / 3
	pix := 0
	for u := 0; u < r.cfg.UniverseCount && pix < r.ledCount; u++ {
		slot := &r.universes[u]
		count := ledsPerUniverse
		off := 0
		if u == 0 {
			count = firstLEDs
			off = r.cfg.StartChannel - 1
		}
		for i := 0; i < count && pix < r.ledCount; i++ {
			if slot.have && off+i*3+2 < slot.n {
				r.work[pix] = led.Color{
					R: slot.data[off+i*3],
					G: slot.data[off+i*3+1],
					B: slot.data[off+i*3+2],
				}
			} else {
				r.work[pix] = led.Color{}
			}
			pix++
		}
	}
	r.fb.Write(r.work[:pix])
}

// --- protocol.Protocol accessors ---

func (r *Receiver) Active() bool                     { return r.active.Load() }
func (r *Receiver) TimedOut(d time.Duration) bool    { return r.fb.TimedOut(d) }
func (r *Receiver) FrameReady() bool                 { return r.fb.Ready() }
func (r *Receiver) Frame() []led.Color               { return r.fb.Pixels() }
func (r *Receiver) FrameLen() int                    { return r.fb.Len() }
func (r *Receiver) ClearFrameReady()                 { r.fb.Clear() }
func (r *Receiver) PacketCount() uint64              { return r.packets.Load() }

// LastPacketAge returns time since the last published frame, -1 if none yet.
func (r *Receiver) LastPacketAge() time.Duration {
	t := r.fb.LastWrite()
	if t.IsZero() {
		return -1
	}
	return time.Since(t)
}

// SourceName reports the advertised name of the sender winning the lowest
// claimed universe, "" when no universe is claimed.
func (r *Receiver) SourceName() string {
	if s := r.activeSource(); s != nil {
		return s.name
	}
	return ""
}

func (r *Receiver) SourcePriority() uint8 {
	if s := r.activeSource(); s != nil {
		return s.priority
	}
	return 0
}

func (r *Receiver) activeSource() *source {
	for u := 0; u < r.cfg.UniverseCount; u++ {
		if i := r.universes[u].activeSource; i >= 0 && i < r.nsources {
			return &r.sources[i]
		}
	}
	return nil
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// cstring trims a fixed-width NUL-padded field.
func cstring(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
