package sacn

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeworks/lume/internal/led"
)

// packetOpts drives the test packet builder.
type packetOpts struct {
	cid      byte // first CID byte; rest zero
	name     string
	priority uint8
	sequence uint8
	options  uint8
	universe uint16
	dmx      []byte
}

func buildPacket(o packetOpts) []byte {
	pkt := make([]byte, offDMX+len(o.dmx))
	copy(pkt[offACNID:], acnPacketID[:])
	pkt[offRootVector+3] = byte(rootVectorData)
	pkt[offCID] = o.cid
	pkt[offFrameVector+3] = byte(frameVectorData)
	copy(pkt[offSourceName:offSourceName+64], o.name)
	pkt[offPriority] = o.priority
	pkt[offSequence] = o.sequence
	pkt[offOptions] = o.options
	pkt[offUniverse] = byte(o.universe >> 8)
	pkt[offUniverse+1] = byte(o.universe)
	pkt[offDMPVector] = dmpVectorSet
	props := len(o.dmx) + 1 // start code plus channels
	pkt[offPropCount] = byte(props >> 8)
	pkt[offPropCount+1] = byte(props)
	pkt[offStartCode] = 0
	copy(pkt[offDMX:], o.dmx)
	return pkt
}

func testReceiver(cfg Config) *Receiver {
	return New(zerolog.Nop(), cfg)
}

func feed(r *Receiver, pkt []byte) bool {
	return r.parsePacket(pkt, time.Now())
}

func TestRejectsNonACNPackets(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1})

	pkt := buildPacket(packetOpts{priority: 100, universe: 1, dmx: []byte{1, 2, 3}})
	pkt[offACNID] = 'X'
	assert.False(t, feed(r, pkt), "corrupted identifier must be rejected")

	short := make([]byte, headerSize)
	assert.False(t, feed(r, short), "undersized packet must be rejected")

	bad := buildPacket(packetOpts{priority: 100, universe: 1, dmx: []byte{1, 2, 3}})
	bad[offRootVector+3] = 0x09
	assert.False(t, feed(r, bad), "wrong root vector must be rejected")

	good := buildPacket(packetOpts{priority: 100, universe: 1, dmx: []byte{1, 2, 3}})
	assert.True(t, feed(r, good))

	oversized := append(buildPacket(packetOpts{priority: 100, universe: 1, dmx: make([]byte, 512)}), 0xff)
	assert.False(t, feed(r, oversized), "datagram larger than the working buffer must be rejected")
}

func TestRejectsWrongUniverse(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 5, UniverseCount: 2})
	assert.False(t, feed(r, buildPacket(packetOpts{priority: 100, universe: 4, dmx: []byte{1}})))
	assert.False(t, feed(r, buildPacket(packetOpts{priority: 100, universe: 7, dmx: []byte{1}})))
	assert.True(t, feed(r, buildPacket(packetOpts{priority: 100, universe: 5, dmx: []byte{1}})))
	assert.True(t, feed(r, buildPacket(packetOpts{priority: 100, universe: 6, dmx: []byte{1}})))
}

func TestRejectsPreviewByDefault(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1})
	preview := buildPacket(packetOpts{priority: 100, universe: 1, options: optPreview, dmx: []byte{1}})
	assert.False(t, feed(r, preview))

	accepting := testReceiver(Config{StartUniverse: 1, UniverseCount: 1, AcceptPreview: true})
	assert.True(t, feed(accepting, preview))
}

func TestSequenceGapRejection(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1})
	mk := func(seq uint8) []byte {
		return buildPacket(packetOpts{priority: 100, universe: 1, sequence: seq, dmx: []byte{1}})
	}

	require.True(t, feed(r, mk(10)))
	// each check is relative to the last observed sequence, accepted or not
	assert.False(t, feed(r, mk(9)), "1 behind is a reorder, rejected")
	assert.True(t, feed(r, mk(245)), "exactly 20 behind 9 counts as a stream restart")
	assert.False(t, feed(r, mk(230)), "15 behind 245 is a reorder, rejected")
	assert.True(t, feed(r, mk(231)), "forward relative to last observed")
	assert.True(t, feed(r, mk(30)), "far forward jump is accepted")
}

func TestSequenceRecordedEvenWhenRejected(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1})
	mk := func(seq uint8) []byte {
		return buildPacket(packetOpts{priority: 100, universe: 1, sequence: seq, dmx: []byte{1}})
	}
	require.True(t, feed(r, mk(10)))
	assert.False(t, feed(r, mk(5)), "5 behind rejected")
	// the rejected packet's sequence becomes the new reference
	assert.True(t, feed(r, mk(6)), "forward relative to the rejected packet")
}

func TestPriorityArbitration(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1})
	mk := func(cid byte, prio, seq uint8) []byte {
		return buildPacket(packetOpts{cid: cid, name: "src", priority: prio, universe: 1, sequence: seq, dmx: []byte{1}})
	}

	require.True(t, feed(r, mk(1, 100, 0)), "first source wins by default")
	assert.False(t, feed(r, mk(2, 80, 0)), "lower priority must be rejected")
	assert.True(t, feed(r, mk(3, 100, 0)), "equal priority takes over")
	assert.True(t, feed(r, mk(4, 150, 0)), "higher priority takes over")
	assert.Equal(t, uint8(150), r.SourcePriority())
	assert.False(t, feed(r, mk(1, 100, 1)), "old winner is now outranked")
}

func TestArbitrationIsPerUniverse(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 2})
	mk := func(cid byte, prio uint8, universe uint16) []byte {
		return buildPacket(packetOpts{cid: cid, name: "src", priority: prio, universe: universe, dmx: []byte{1}})
	}

	require.True(t, feed(r, mk(1, 100, 1)), "source A claims universe 1")
	assert.True(t, feed(r, mk(2, 80, 2)), "unclaimed universe accepts any priority")
	assert.False(t, feed(r, mk(2, 80, 1)), "universe 1 still belongs to the higher-priority source")
	assert.True(t, feed(r, mk(1, 100, 1)), "source A keeps universe 1")

	assert.Equal(t, 0, r.universes[0].activeSource)
	assert.Equal(t, 1, r.universes[1].activeSource)
	assert.Equal(t, uint8(100), r.universes[0].activePriority)
	assert.Equal(t, uint8(80), r.universes[1].activePriority)
}

func TestSweepReleasesOnlyExpiredSourceUniverses(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 2})
	now := time.Now()
	r.parsePacket(buildPacket(packetOpts{cid: 1, priority: 100, universe: 1, dmx: []byte{1}}), now)
	r.parsePacket(buildPacket(packetOpts{cid: 2, priority: 100, universe: 2, dmx: []byte{1}}), now.Add(2*time.Second))
	require.Equal(t, 2, r.nsources)

	// 3 s after source 1 was last seen it is past the 2.5 s source timeout;
	// source 2 is only 1 s quiet and keeps its universe.
	r.sweepSources(now.Add(3 * time.Second))
	assert.Equal(t, 1, r.nsources)
	assert.Equal(t, byte(2), r.sources[0].cid[0])
	assert.Equal(t, -1, r.universes[0].activeSource, "expired source's universe released")
	assert.Equal(t, 0, r.universes[1].activeSource, "surviving source reindexed after compaction")
}

func TestSourcePoolEvictsStalest(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1})
	now := time.Now()
	for i := byte(1); i <= maxSources; i++ {
		pkt := buildPacket(packetOpts{cid: i, priority: 100, universe: 1, dmx: []byte{1}})
		r.parsePacket(pkt, now.Add(time.Duration(i)*time.Millisecond))
	}
	require.Equal(t, maxSources, r.nsources)

	pkt := buildPacket(packetOpts{cid: 9, priority: 100, universe: 1, dmx: []byte{1}})
	r.parsePacket(pkt, now.Add(time.Second))
	assert.Equal(t, maxSources, r.nsources, "pool stays bounded")

	var cids []byte
	for i := 0; i < r.nsources; i++ {
		cids = append(cids, r.sources[i].cid[0])
	}
	assert.NotContains(t, cids, byte(1), "stalest source evicted")
	assert.Contains(t, cids, byte(9))
}

func TestReassemblySingleUniverse(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1, StartChannel: 1})
	dmx := make([]byte, 270) // 90 LEDs
	for i := 0; i < 90; i++ {
		dmx[i*3] = byte(i)
		dmx[i*3+1] = 20
		dmx[i*3+2] = 30
	}
	require.True(t, feed(r, buildPacket(packetOpts{priority: 100, universe: 1, dmx: dmx})))
	r.assemble()

	require.True(t, r.fb.Ready())
	pix := r.fb.Pixels()
	require.Equal(t, 170, len(pix), "frame spans the universe capacity")
	assert.Equal(t, led.Color{R: 0, G: 20, B: 30}, pix[0])
	assert.Equal(t, led.Color{R: 89, G: 20, B: 30}, pix[89])
	assert.Equal(t, led.Color{}, pix[90], "channels past the payload stay dark")
}

func TestReassemblyStartChannelOffset(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1, StartChannel: 4})
	dmx := make([]byte, 9) // channels 1-9: first pixel starts at channel 4
	dmx[3], dmx[4], dmx[5] = 7, 8, 9
	require.True(t, feed(r, buildPacket(packetOpts{priority: 100, universe: 1, dmx: dmx})))
	r.assemble()

	pix := r.fb.Pixels()
	assert.Equal(t, led.Color{R: 7, G: 8, B: 9}, pix[0])
}

func TestReassemblyMultiUniverse(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 2, StartChannel: 1})

	// universe 1 full: 170 LEDs; universe 2 carries the next pixels
	u1 := make([]byte, 512)
	for i := range u1 {
		u1[i] = 1
	}
	u2 := []byte{40, 50, 60}
	require.True(t, feed(r, buildPacket(packetOpts{priority: 100, universe: 1, dmx: u1})))
	require.True(t, feed(r, buildPacket(packetOpts{priority: 100, universe: 2, dmx: u2})))
	r.assemble()

	pix := r.fb.Pixels()
	require.GreaterOrEqual(t, len(pix), 171)
	assert.Equal(t, led.Color{R: 1, G: 1, B: 1}, pix[169], "last pixel of first universe")
	assert.Equal(t, led.Color{R: 40, G: 50, B: 60}, pix[170], "first pixel of second universe")
}

func TestLEDCapacity(t *testing.T) {
	assert.Equal(t, 170, Config{StartUniverse: 1, UniverseCount: 1, StartChannel: 1}.LEDCapacity())
	assert.Equal(t, 340, Config{StartUniverse: 1, UniverseCount: 2, StartChannel: 1}.LEDCapacity())
	// channel offset shrinks the first universe
	assert.Equal(t, 169, Config{StartUniverse: 1, UniverseCount: 1, StartChannel: 4}.LEDCapacity())
}

func TestSourceSweepDropsSilentSenders(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1})
	now := time.Now()
	r.parsePacket(buildPacket(packetOpts{cid: 1, priority: 100, universe: 1, dmx: []byte{1}}), now)
	require.Equal(t, 1, r.nsources)

	r.sweepSources(now.Add(2 * time.Second))
	assert.Equal(t, 1, r.nsources, "still within the 2.5 s source timeout")

	r.sweepSources(now.Add(3 * time.Second))
	assert.Equal(t, 0, r.nsources)
	assert.Equal(t, -1, r.universes[0].activeSource, "universe released with its source")
}

func TestTerminateReleasesSource(t *testing.T) {
	r := testReceiver(Config{StartUniverse: 1, UniverseCount: 1})
	require.True(t, feed(r, buildPacket(packetOpts{cid: 1, priority: 100, universe: 1, dmx: []byte{1}})))
	require.Equal(t, 1, r.nsources)

	term := buildPacket(packetOpts{cid: 1, priority: 100, universe: 1, options: optTerminate, dmx: []byte{1}})
	assert.False(t, feed(r, term))
	assert.Equal(t, 0, r.nsources)
}
