package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Deps are the collaborators a Machine is wired to. Substrate, Capture and
// Codec are required; Notifier and Recorder are optional.
type Deps struct {
	Substrate Substrate
	Capture   CaptureDevice
	Codec     Codec
	Notifier  Notifier
	Recorder  Recorder
	Logger    *slog.Logger
}

// Machine is the signaling state machine for one two-party session attempt.
//
// All state transitions are serialized: user-facing calls and substrate
// events each take the machine mutex, and substrate events are additionally
// funneled through a single-consumer inbox so no event observes a
// half-updated session. Blocking substrate calls (offer/answer generation)
// run outside the mutex; their results are discarded if a Reset moved the
// attempt generation while they were in flight.
type Machine struct {
	substrate Substrate
	capture   CaptureDevice
	codec     Codec
	notifier  Notifier
	recorder  Recorder
	logger    *slog.Logger

	inbox chan Event
	done  chan struct{}

	mu            sync.Mutex
	closed        bool
	gen           uint64
	role          Role
	state         State
	local         MediaStream
	transport     Transport
	localDesc     *Description
	localBlob     string
	remoteApplied bool
	gatheringDone bool
	remoteTracks  []RemoteTrack
	lastErr       string
}

func New(deps Deps) (*Machine, error) {
	if deps.Substrate == nil {
		return nil, errors.New("session: substrate is required")
	}
	if deps.Capture == nil {
		return nil, errors.New("session: capture device is required")
	}
	if deps.Codec == nil {
		return nil, errors.New("session: codec is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := &Machine{
		substrate: deps.Substrate,
		capture:   deps.Capture,
		codec:     deps.Codec,
		notifier:  deps.Notifier,
		recorder:  deps.Recorder,
		logger:    logger,
		inbox:     make(chan Event, 32),
		done:      make(chan struct{}),
	}
	go m.run()
	return m, nil
}

// SelectRole fixes the role for this attempt and acquires the local media
// stream. Valid only when no role is active; recovering from a selected role
// requires Reset.
func (m *Machine) SelectRole(ctx context.Context, role Role) error {
	if role != RoleOfferer && role != RoleAnswerer {
		return fmt.Errorf("session: invalid role %v", role)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.role != RoleUnset {
		m.mu.Unlock()
		return ErrRoleAlreadySelected
	}
	gen := m.gen
	m.mu.Unlock()

	stream, err := m.capture.Acquire(ctx)
	if err != nil {
		werr := fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
		m.failNotify(werr)
		return werr
	}

	m.mu.Lock()
	if m.closed || m.gen != gen || m.role != RoleUnset {
		m.mu.Unlock()
		stream.Release()
		return ErrAttemptReset
	}
	m.role = role
	m.local = stream
	m.lastErr = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("role selected", "role", role.String())
	m.publish(snap)
	return nil
}

// GenerateOffer creates the transport session, attaches the local tracks and
// publishes the local offer blob. Offerer only; exactly once per attempt.
func (m *Machine) GenerateOffer() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.role == RoleUnset {
		m.mu.Unlock()
		return ErrNoRole
	}
	if m.role != RoleOfferer {
		m.mu.Unlock()
		return ErrWrongRole
	}
	if m.transport != nil || m.localDesc != nil {
		m.mu.Unlock()
		return ErrSessionExists
	}
	local := m.local
	gen := m.gen
	m.mu.Unlock()

	tr, err := m.createTransport(gen, local)
	if err != nil {
		return err
	}

	desc, err := tr.CreateLocalOffer()
	if err != nil {
		m.abortTransport(gen, tr)
		return m.reject("create offer", err)
	}
	if !m.attemptCurrent(gen, tr) {
		_ = tr.Close()
		return ErrAttemptReset
	}
	if err := tr.SetLocalDescription(desc); err != nil {
		m.abortTransport(gen, tr)
		return m.reject("commit local offer", err)
	}

	return m.commitLocal(gen, tr, desc, StateDescriptionPending, false, MetricOffersGenerated)
}

// ApplyRemoteAnswer parses a pasted answer blob and applies it to the live
// session. A malformed blob leaves all session state untouched so the paste
// can be retried.
func (m *Machine) ApplyRemoteAnswer(blob string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.role == RoleUnset {
		m.mu.Unlock()
		return ErrNoRole
	}
	if m.role != RoleOfferer {
		m.mu.Unlock()
		return ErrWrongRole
	}
	if m.transport == nil || m.localDesc == nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: no local offer published yet", ErrNegotiationRejected)
	}
	if m.remoteApplied {
		m.mu.Unlock()
		return fmt.Errorf("%w: remote description already applied", ErrNegotiationRejected)
	}
	tr := m.transport
	m.mu.Unlock()

	d, err := m.decodeBlob(blob, DescriptionAnswer)
	if err != nil {
		return err
	}

	if err := tr.SetRemoteDescription(d); err != nil {
		return m.reject("apply remote answer", err)
	}

	m.mu.Lock()
	if m.closed || m.transport != tr {
		m.mu.Unlock()
		return ErrAttemptReset
	}
	m.remoteApplied = true
	m.state = StateNegotiating
	m.lastErr = ""
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("remote answer applied")
	m.publish(snap)
	return nil
}

// ApplyRemoteOffer parses a pasted offer blob, creates the transport session
// around it and publishes the local answer blob. Answerer only. A malformed
// blob aborts before any session is created.
func (m *Machine) ApplyRemoteOffer(blob string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.role == RoleUnset {
		m.mu.Unlock()
		return ErrNoRole
	}
	if m.role != RoleAnswerer {
		m.mu.Unlock()
		return ErrWrongRole
	}
	if m.transport != nil || m.localDesc != nil {
		m.mu.Unlock()
		return ErrSessionExists
	}
	local := m.local
	gen := m.gen
	m.mu.Unlock()

	// Parse before creating anything so bad input never costs a session.
	d, err := m.decodeBlob(blob, DescriptionOffer)
	if err != nil {
		return err
	}

	tr, err := m.createTransport(gen, local)
	if err != nil {
		return err
	}

	if err := tr.SetRemoteDescription(d); err != nil {
		m.abortTransport(gen, tr)
		return m.reject("apply remote offer", err)
	}

	answer, err := tr.CreateLocalAnswer()
	if err != nil {
		m.abortTransport(gen, tr)
		return m.reject("create answer", err)
	}
	if !m.attemptCurrent(gen, tr) {
		_ = tr.Close()
		return ErrAttemptReset
	}
	if err := tr.SetLocalDescription(answer); err != nil {
		m.abortTransport(gen, tr)
		return m.reject("commit local answer", err)
	}

	return m.commitLocal(gen, tr, answer, StateAwaitingRemoteDescription, true, MetricAnswersGenerated)
}

// Reset tears the attempt down from any state: the transport session is
// closed, every local track is stopped, descriptions and buffers are
// discarded and the role is cleared. Safe to call repeatedly.
func (m *Machine) Reset() {
	m.mu.Lock()
	tr := m.transport
	stream := m.local
	hadAttempt := m.role != RoleUnset || tr != nil
	m.gen++
	m.transport = nil
	m.local = nil
	m.role = RoleUnset
	m.state = StateIdle
	m.localDesc = nil
	m.localBlob = ""
	m.remoteApplied = false
	m.gatheringDone = false
	m.remoteTracks = nil
	m.lastErr = ""
	if hadAttempt {
		m.inc(MetricResets)
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if tr != nil {
		if err := tr.Close(); err != nil {
			m.logger.Warn("close transport session", "err", err)
		}
	}
	if stream != nil {
		stream.Release()
	}
	if hadAttempt {
		m.logger.Info("session reset")
	}
	m.publish(snap)
}

// Close runs the Reset release sequence exactly once and stops the event
// loop. Hosts must call it when discarding the machine so capture and
// transport handles never leak.
func (m *Machine) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	m.Reset()
	close(m.done)
	return nil
}

// Post delivers a substrate event into the machine's inbox. Implements
// EventSink; never blocks a closed machine.
func (m *Machine) Post(ev Event) {
	select {
	case m.inbox <- ev:
	case <-m.done:
	}
}

// Done is closed once the machine has been closed.
func (m *Machine) Done() <-chan struct{} { return m.done }

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Machine) Role() Role {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role
}

// LocalBlob returns the current published local description blob, if any.
func (m *Machine) LocalBlob() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.localBlob, m.localBlob != ""
}

// RemoteTracks returns the tracks of the remote media stream received so far.
func (m *Machine) RemoteTracks() []RemoteTrack {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RemoteTrack, len(m.remoteTracks))
	copy(out, m.remoteTracks)
	return out
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) run() {
	for {
		select {
		case ev := <-m.inbox:
			m.handleEvent(ev)
		case <-m.done:
			return
		}
	}
}

func (m *Machine) handleEvent(ev Event) {
	m.mu.Lock()
	// Events from a transport torn down by Reset must not touch the newer
	// attempt.
	if m.closed || ev.From == nil || ev.From != m.transport {
		m.mu.Unlock()
		return
	}

	switch ev.Kind {
	case EventCandidateDiscovered:
		if !m.refreshLocalBlobLocked(ev.From) {
			m.mu.Unlock()
			return
		}
		m.inc(MetricCandidateRepublishes)

	case EventGatheringComplete:
		m.gatheringDone = true
		// Candidates that raced the description commit never triggered a
		// republish; the blob must hold the complete set before the display
		// layer reports it as settled.
		m.refreshLocalBlobLocked(ev.From)

	case EventRemoteTrack:
		if ev.Track == nil {
			m.mu.Unlock()
			return
		}
		m.remoteTracks = append(m.remoteTracks, ev.Track)
		m.inc(MetricRemoteTracks)

	case EventConnectivity:
		switch ev.Connectivity {
		case ConnectivityConnected:
			m.state = StateConnected
			m.lastErr = ""
			m.inc(MetricConnects)
		case ConnectivityFailed, ConnectivityDisconnected:
			if m.state == StateLost {
				break
			}
			m.state = StateLost
			m.remoteTracks = nil
			m.lastErr = "connection lost"
			m.inc(MetricConnectivityLost)
		default:
			// Connecting and closed carry no transition; closed arrives
			// during our own teardown.
		}

	default:
		m.mu.Unlock()
		return
	}

	snap := m.snapshotLocked()
	m.mu.Unlock()

	if ev.Kind == EventConnectivity {
		m.logger.Info("connectivity changed",
			"connectivity", ev.Connectivity.String(),
			"state", snap.State.String(),
		)
	}
	m.publish(snap)
}

// createTransport builds the transport session and attaches the local tracks,
// installing it as the attempt's single session.
func (m *Machine) createTransport(gen uint64, local MediaStream) (Transport, error) {
	if local == nil {
		return nil, fmt.Errorf("%w: no local media stream", ErrDeviceUnavailable)
	}

	tr, err := m.substrate.CreateSession(m)
	if err != nil {
		return nil, m.reject("create transport session", err)
	}

	m.mu.Lock()
	if m.closed || m.gen != gen || m.transport != nil {
		m.mu.Unlock()
		_ = tr.Close()
		return nil, ErrAttemptReset
	}
	m.transport = tr
	m.mu.Unlock()

	for _, t := range local.Tracks() {
		if err := tr.AttachTrack(t); err != nil {
			m.abortTransport(gen, tr)
			return nil, m.reject("attach local track", err)
		}
	}
	return tr, nil
}

// commitLocal records the generated description and publishes its blob,
// unless a reset moved the attempt on while the generation call was
// outstanding.
func (m *Machine) commitLocal(gen uint64, tr Transport, d Description, next State, remoteApplied bool, metric string) error {
	// Candidate events that arrived while the description was being committed
	// were dropped by the event loop; the transport's current snapshot folds
	// those paths back in.
	if snap, ok := tr.LocalDescription(); ok && snap.Kind == d.Kind {
		d = snap
	}
	blob, err := m.codec.Encode(d)
	if err != nil {
		m.abortTransport(gen, tr)
		return m.reject("encode local description", err)
	}

	m.mu.Lock()
	if m.closed || m.gen != gen || m.transport != tr {
		m.mu.Unlock()
		_ = tr.Close()
		return ErrAttemptReset
	}
	m.localDesc = &d
	m.localBlob = blob
	m.state = next
	if remoteApplied {
		m.remoteApplied = true
	}
	m.lastErr = ""
	m.inc(metric)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.logger.Info("local description published", "kind", string(d.Kind))
	m.publish(snap)
	return nil
}

// refreshLocalBlobLocked re-encodes the published blob from the transport's
// current local description. Replace, never append: the blob is always the
// most complete snapshot of discovered paths. Reports whether the blob was
// replaced.
func (m *Machine) refreshLocalBlobLocked(tr Transport) bool {
	if m.localDesc == nil {
		return false
	}
	d, ok := tr.LocalDescription()
	if !ok {
		return false
	}
	blob, err := m.codec.Encode(d)
	if err != nil {
		m.logger.Warn("encode republished description", "err", err)
		return false
	}
	m.localDesc = &d
	m.localBlob = blob
	return true
}

// attemptCurrent reports whether the attempt that started a blocking call is
// still the live one; a false result means the call's outcome must be
// discarded.
func (m *Machine) attemptCurrent(gen uint64, tr Transport) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.closed && m.gen == gen && m.transport == tr
}

func (m *Machine) abortTransport(gen uint64, tr Transport) {
	m.mu.Lock()
	if m.gen == gen && m.transport == tr {
		m.transport = nil
	}
	m.mu.Unlock()
	_ = tr.Close()
}

func (m *Machine) decodeBlob(blob string, want DescriptionKind) (Description, error) {
	d, err := m.codec.Decode(blob)
	if err != nil {
		werr := fmt.Errorf("%w: %v", ErrMalformedDescription, err)
		m.recordMalformed(werr)
		return Description{}, werr
	}
	if d.Kind != want {
		werr := fmt.Errorf("%w: expected %s, got %q", ErrMalformedDescription, want, d.Kind)
		m.recordMalformed(werr)
		return Description{}, werr
	}
	return d, nil
}

func (m *Machine) recordMalformed(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	m.inc(MetricMalformedBlobs)
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.publish(snap)
}

func (m *Machine) reject(op string, err error) error {
	werr := fmt.Errorf("%w: %s: %v", ErrNegotiationRejected, op, err)
	m.failNotify(werr)
	return werr
}

func (m *Machine) failNotify(err error) {
	m.mu.Lock()
	m.lastErr = err.Error()
	snap := m.snapshotLocked()
	m.mu.Unlock()
	m.logger.Warn("session error", "err", err)
	m.publish(snap)
}

func (m *Machine) snapshotLocked() Snapshot {
	ids := make([]string, 0, len(m.remoteTracks))
	for _, t := range m.remoteTracks {
		ids = append(ids, t.ID())
	}
	return Snapshot{
		State:             m.state,
		Role:              m.role,
		LocalBlob:         m.localBlob,
		GatheringComplete: m.gatheringDone,
		RemoteTrackIDs:    ids,
		LastError:         m.lastErr,
	}
}

func (m *Machine) inc(name string) {
	if m.recorder != nil {
		m.recorder.Inc(name)
	}
}

func (m *Machine) publish(snap Snapshot) {
	if m.notifier != nil {
		m.notifier.Publish(snap)
	}
}
