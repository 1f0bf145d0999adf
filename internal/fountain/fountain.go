// Package fountain implements the packet-oriented fountain decoder:
// temporal routing across interleaved files, systematic storage, and
// XOR peeling of coded packets.
package fountain

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ArqonAi/qrx/internal/events"
	"github.com/ArqonAi/qrx/internal/integrity"
	"github.com/ArqonAi/qrx/internal/packet"
)

var hex8Field = regexp.MustCompile(`^[0-9a-fA-F]{8}$`)

// fileDecoder is the per-file decoder state: received systematic
// chunks, pending coded packets awaiting peeling, and the received-set
// used to test completion.
type fileDecoder struct {
	metadata packet.Metadata
	chunks   map[int][]byte
	pending  []pendingCoded
}

type pendingCoded struct {
	indices []int
	payload []byte
}

func newFileDecoder(md packet.Metadata) *fileDecoder {
	return &fileDecoder{metadata: md, chunks: map[int][]byte{}}
}

func (d *fileDecoder) complete() bool {
	return len(d.chunks) >= d.metadata.ChunksCount
}

// ingestSystematic stores chunk.Data for chunk.ChunkIndex if it's in
// range and not already held, then peels, since the new chunk may
// leave a pending coded packet with a single missing source.
func (d *fileDecoder) ingestSystematic(rec packet.SystematicRecord) {
	if rec.ChunkIndex < 0 || rec.ChunkIndex >= d.metadata.ChunksCount {
		return
	}
	if _, ok := d.chunks[rec.ChunkIndex]; ok {
		return
	}
	d.chunks[rec.ChunkIndex] = rec.Data
	d.peel()
}

// ingestCoded appends a coded packet to the pending set and peels.
// Packets referencing an out-of-range chunk index are dropped: a
// corrupted index would otherwise let peel() "recover" a chunk outside
// [0, ChunksCount) and inflate len(d.chunks) past complete() while a
// real in-range chunk is still missing.
func (d *fileDecoder) ingestCoded(indices []int, payload []byte) {
	for _, idx := range indices {
		if idx < 0 || idx >= d.metadata.ChunksCount {
			return
		}
	}
	d.pending = append(d.pending, pendingCoded{indices: indices, payload: payload})
	d.peel()
}

// peel runs the iterative peeling loop to a fixed point: any coded
// packet missing exactly one source chunk yields that chunk by XOR,
// which may in turn unblock other pending packets.
func (d *fileDecoder) peel() {
	for {
		progressed := false
		remaining := d.pending[:0:0]
		for _, p := range d.pending {
			missing := p.missingIndices(d.chunks)
			switch len(missing) {
			case 0:
				progressed = true // fully known, drop
			case 1:
				recovered := xorFold(p.payload, p.indices, missing[0], d.chunks)
				d.chunks[missing[0]] = recovered
				progressed = true
			default:
				remaining = append(remaining, p)
			}
		}
		d.pending = remaining
		if !progressed {
			return
		}
	}
}

func (p pendingCoded) missingIndices(chunks map[int][]byte) []int {
	var missing []int
	for _, idx := range p.indices {
		if _, ok := chunks[idx]; !ok {
			missing = append(missing, idx)
		}
	}
	return missing
}

// xorFold recovers the single missing chunk in a coded packet: XOR the
// payload against every other known source chunk, byte-wise, limited
// to min(len) bytes since the last chunk may be shorter than the rest.
func xorFold(payload []byte, indices []int, missing int, chunks map[int][]byte) []byte {
	result := append([]byte(nil), payload...)
	for _, idx := range indices {
		if idx == missing {
			continue
		}
		known := chunks[idx]
		n := len(result)
		if len(known) < n {
			n = len(known)
		}
		for i := 0; i < n; i++ {
			result[i] ^= known[i]
		}
	}
	return result
}

// assemble concatenates chunks in ascending index order and truncates
// to file_size.
func (d *fileDecoder) assemble() []byte {
	var out []byte
	for i := 0; i < d.metadata.ChunksCount; i++ {
		out = append(out, d.chunks[i]...)
	}
	if int64(len(out)) > d.metadata.FileSize {
		out = out[:d.metadata.FileSize]
	}
	return out
}

// Observation is one frame-ordered QR payload handed to the decoder.
// FrameNumber is informational (used only for diagnostics/events); the
// caller is responsible for presenting observations in frame order —
// that ordering is the sole source of the temporal-routing correctness
// property.
type Observation struct {
	FrameNumber int64
	TimestampMs int64
	ChunkID     int
	Payload     string
}

// Multiplexer is the "active_file" state machine: it decodes the
// merged, frame-sorted packet stream and emits completed files.
type Multiplexer struct {
	bus          *events.Bus
	decoders     map[packet.Key]*fileDecoder
	activeKey    packet.Key
	activeSet    bool
	OnFileReady  func(md packet.Metadata, data []byte)
	ErrorLog     []string
}

func NewMultiplexer(bus *events.Bus) *Multiplexer {
	if bus == nil {
		bus = events.NewBus()
	}
	return &Multiplexer{bus: bus, decoders: map[packet.Key]*fileDecoder{}}
}

// Process ingests one QR payload. It never returns an error for
// malformed input: a bad packet is logged and skipped, never allowed
// to poison the decoder.
func (m *Multiplexer) Process(obs Observation) {
	switch {
	case len(obs.Payload) >= 2 && obs.Payload[0] == 'M' && obs.Payload[1] == ':':
		m.processMetadata(obs)
	case len(obs.Payload) >= 2 && obs.Payload[0] == 'D' && obs.Payload[1] == ':':
		m.processData(obs)
	default:
		m.logError(fmt.Sprintf("frame %d: unrecognized packet prefix", obs.FrameNumber))
	}
}

func (m *Multiplexer) processMetadata(obs Observation) {
	md, err := packet.ParseMetadata(obs.Payload)
	if err != nil {
		m.logError(fmt.Sprintf("frame %d: %v", obs.FrameNumber, err))
		return
	}
	key := md.Key()
	dec, ok := m.decoders[key]
	if !ok {
		dec = newFileDecoder(md)
		m.decoders[key] = dec
	}
	m.activeKey = key
	m.activeSet = true
}

func (m *Multiplexer) processData(obs Observation) {
	if !m.activeSet {
		m.logError(fmt.Sprintf("frame %d: data packet with no active file", obs.FrameNumber))
		return
	}
	if isLegacyFileIDDialect(obs.Payload) {
		m.bus.Warning(events.WarningEvent{
			Source:  fmt.Sprintf("chunk %d", obs.ChunkID),
			Message: "legacy file-id dialect detected, routing by active file regardless",
		})
	}

	d, err := packet.ParseData(obs.Payload)
	if err != nil {
		m.logError(fmt.Sprintf("frame %d: %v", obs.FrameNumber, err))
		return
	}

	dec := m.decoders[m.activeKey]
	if dec == nil {
		m.logError(fmt.Sprintf("frame %d: active decoder missing for %v", obs.FrameNumber, m.activeKey))
		return
	}

	wasComplete := dec.complete()
	switch d.Kind {
	case packet.BodySystematic:
		for _, rec := range d.Systematic {
			dec.ingestSystematic(rec)
		}
	case packet.BodyCoded:
		dec.ingestCoded(d.CodedIndices, d.CodedPayload)
	default:
		m.logError(fmt.Sprintf("frame %d: malformed data packet body", obs.FrameNumber))
		return
	}

	if !wasComplete && dec.complete() {
		m.finalize(m.activeKey, dec)
	}
}

func (m *Multiplexer) finalize(key packet.Key, dec *fileDecoder) {
	data := dec.assemble()
	delete(m.decoders, key)

	if dec.metadata.FileChecksum != "" {
		actual := integrity.TransmitterChecksum(data)
		if actual != dec.metadata.FileChecksum {
			m.bus.ChecksumValidation(events.ChecksumValidationEvent{
				FileName: dec.metadata.FileName,
				Expected: dec.metadata.FileChecksum,
				Actual:   actual,
				Passed:   false,
			})
			return
		}
	}

	if integrity.RequiresStructuralCheck(dec.metadata.FileType) && !integrity.IsJPEGStructurallyValid(data) {
		m.bus.ChecksumValidation(events.ChecksumValidationEvent{
			FileName: dec.metadata.FileName,
			Expected: "valid JPEG structure",
			Actual:   "structural check failed",
			Passed:   false,
		})
		return
	}

	if m.OnFileReady != nil {
		m.OnFileReady(dec.metadata, data)
	}

	secondary := integrity.ComputeSecondaryHashes(data)
	m.bus.FileReconstructed(events.FileReconstructedEvent{
		FileName:         dec.metadata.FileName,
		Size:             int64(len(data)),
		TransmitterCheck: dec.metadata.FileChecksum,
		MD5:              secondary.MD5,
		SHA1:             secondary.SHA1,
		SHA256:           secondary.SHA256,
		CRC32:            secondary.CRC32,
	})
}

func (m *Multiplexer) logError(msg string) {
	m.ErrorLog = append(m.ErrorLog, msg)
	m.bus.Error(events.ErrorEvent{Message: msg})
}

// isLegacyFileIDDialect detects a variant dialect where an 8-hex-char
// file id is inserted after packet_id in D records, shifting every
// subsequent field by one: field 2 (normally the numeric "seed") reads
// as an 8-hex-char token instead. Detection is purely a diagnostic;
// routing still follows the active-file rule regardless.
func isLegacyFileIDDialect(raw string) bool {
	fields := strings.SplitN(raw, ":", 4)
	if len(fields) < 3 {
		return false
	}
	return hex8Field.MatchString(fields[2])
}
