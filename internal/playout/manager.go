// SPDX-License-Identifier: MIT

package playout

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ProcessRole identifies one of the three child processes a Manager owns.
type ProcessRole int

const (
	ProcDecoder ProcessRole = iota
	ProcEncoder
	ProcIngest
)

func (r ProcessRole) String() string {
	switch r {
	case ProcDecoder:
		return "decoder"
	case ProcEncoder:
		return "encoder"
	case ProcIngest:
		return "ingest"
	default:
		return "unknown"
	}
}

// Manager holds the shared mutable state for one channel: the frozen config
// snapshot, the current node, the decoder/encoder/ingest handles, liveness
// flags, and stop signals. Every field is guarded by a short-held lock or is
// a plain atomic; no lock is ever held across an I/O await.
type Manager struct {
	channelID string

	configMu sync.RWMutex
	config   Snapshot

	mediaMu      sync.RWMutex
	currentMedia *Node

	listInit      atomic.Bool
	isAlive       atomic.Bool
	ingestIsAlive atomic.Bool

	encoderMu sync.Mutex
	encoder   *ChildProcess

	decoderMu sync.Mutex
	decoder   *ChildProcess

	ingestMu     sync.Mutex
	ingestProc   *ChildProcess
	ingestStdout io.Reader

	listLenMu      sync.RWMutex
	currentListLen int
}

// NewManager creates a channel manager with is_alive set and no children attached.
func NewManager(channelID string, cfg Snapshot) *Manager {
	m := &Manager{channelID: channelID, config: cfg}
	m.isAlive.Store(true)
	return m
}

func (m *Manager) ChannelID() string { return m.channelID }

// Config returns the frozen configuration snapshot.
func (m *Manager) Config() Snapshot {
	m.configMu.RLock()
	defer m.configMu.RUnlock()
	return m.config
}

// SetCurrentMedia publishes the node currently playing, or nil between nodes.
func (m *Manager) SetCurrentMedia(n *Node) {
	m.mediaMu.Lock()
	m.currentMedia = n
	m.mediaMu.Unlock()
}

func (m *Manager) CurrentMedia() *Node {
	m.mediaMu.RLock()
	defer m.mediaMu.RUnlock()
	return m.currentMedia
}

func (m *Manager) IsAlive() bool   { return m.isAlive.Load() }
func (m *Manager) SetAlive(v bool) { m.isAlive.Store(v) }

func (m *Manager) IngestIsAlive() bool   { return m.ingestIsAlive.Load() }
func (m *Manager) SetIngestAlive(v bool) { m.ingestIsAlive.Store(v) }

func (m *Manager) ListInit() bool   { return m.listInit.Load() }
func (m *Manager) SetListInit(v bool) { m.listInit.Store(v) }

func (m *Manager) SetCurrentListLen(n int) {
	m.listLenMu.Lock()
	m.currentListLen = n
	m.listLenMu.Unlock()
}

func (m *Manager) CurrentListLen() int {
	m.listLenMu.RLock()
	defer m.listLenMu.RUnlock()
	return m.currentListLen
}

func (m *Manager) SetEncoder(p *ChildProcess) {
	m.encoderMu.Lock()
	m.encoder = p
	m.encoderMu.Unlock()
}

func (m *Manager) Encoder() *ChildProcess {
	m.encoderMu.Lock()
	defer m.encoderMu.Unlock()
	return m.encoder
}

func (m *Manager) SetDecoder(p *ChildProcess) {
	m.decoderMu.Lock()
	m.decoder = p
	m.decoderMu.Unlock()
}

// ClearDecoder drops the decoder handle once it has been reaped, so at most
// one decoder child is ever considered live at a time.
func (m *Manager) ClearDecoder() {
	m.decoderMu.Lock()
	m.decoder = nil
	m.decoderMu.Unlock()
}

func (m *Manager) Decoder() *ChildProcess {
	m.decoderMu.Lock()
	defer m.decoderMu.Unlock()
	return m.decoder
}

func (m *Manager) SetIngestProcess(p *ChildProcess) {
	m.ingestMu.Lock()
	m.ingestProc = p
	m.ingestMu.Unlock()
}

// SetIngestStdout publishes the ingest child's readable stream. Callers
// must publish the stream before marking ingest as alive.
func (m *Manager) SetIngestStdout(r io.Reader) {
	m.ingestMu.Lock()
	m.ingestStdout = r
	m.ingestMu.Unlock()
}

func (m *Manager) ClearIngestStdout() {
	m.ingestMu.Lock()
	m.ingestStdout = nil
	m.ingestMu.Unlock()
}

// ReadIngest performs one bounded read from the ingest stream. The ingest
// lock is held only long enough to obtain the reader reference, never across
// the read itself -- holding it across a blocking read would deadlock the
// ingest supervisor the next time it needs the same lock to publish or
// clear the stream.
func (m *Manager) ReadIngest(buf []byte) (int, error) {
	m.ingestMu.Lock()
	r := m.ingestStdout
	m.ingestMu.Unlock()

	if r == nil {
		return 0, io.EOF
	}
	return r.Read(buf)
}

// Stop signals the named child to stop. Idempotent; returns once the
// signal has been delivered, not once the child has exited.
func (m *Manager) Stop(role ProcessRole) error {
	switch role {
	case ProcDecoder:
		if p := m.Decoder(); p != nil {
			p.SignalStop()
		}
	case ProcEncoder:
		if p := m.Encoder(); p != nil {
			p.SignalStop()
		}
	case ProcIngest:
		m.ingestMu.Lock()
		p := m.ingestProc
		m.ingestMu.Unlock()
		if p != nil {
			p.SignalStop()
		}
	default:
		return fmt.Errorf("unknown process role %v", role)
	}
	return nil
}

// Wait awaits the named child's exit.
func (m *Manager) Wait(role ProcessRole) error {
	var p *ChildProcess
	switch role {
	case ProcDecoder:
		p = m.Decoder()
	case ProcEncoder:
		p = m.Encoder()
	case ProcIngest:
		m.ingestMu.Lock()
		p = m.ingestProc
		m.ingestMu.Unlock()
	default:
		return fmt.Errorf("unknown process role %v", role)
	}
	if p == nil {
		return fmt.Errorf("no %s process", role)
	}
	return p.Wait()
}

// StopAll signals every owned child in order ingest -> decoder -> encoder,
// then awaits the encoder -- the only child guaranteed to exist until stop.
// When force is set, the encoder is killed after a short grace instead of
// waited on indefinitely.
func (m *Manager) StopAll(force bool) error {
	_ = m.Stop(ProcIngest)
	_ = m.Stop(ProcDecoder)
	_ = m.Stop(ProcEncoder)

	if e := m.Encoder(); e != nil {
		var err error
		if force {
			err = e.WaitTimeout(500 * time.Millisecond)
		} else {
			err = e.Wait()
		}
		if err != nil {
			return fmt.Errorf("encoder shutdown: %w", err)
		}
	}
	return nil
}
