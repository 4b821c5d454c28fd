package webrtcpeer

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/VitHongHG/LANstream/internal/config"
	"github.com/VitHongHG/LANstream/internal/session"
)

// Substrate creates pion-backed transport sessions. Implements
// session.Substrate.
type Substrate struct {
	api        *webrtc.API
	iceServers []webrtc.ICEServer
	logger     *slog.Logger
}

func NewSubstrate(cfg config.Config, logger *slog.Logger) (*Substrate, error) {
	api, err := NewAPI(cfg)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Substrate{
		api:        api,
		iceServers: cfg.ICEServers,
		logger:     logger,
	}, nil
}

// NewSubstrateWithAPI wires an externally constructed pion API, e.g. one
// bound to a virtual network in tests.
func NewSubstrateWithAPI(api *webrtc.API, iceServers []webrtc.ICEServer, logger *slog.Logger) *Substrate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Substrate{api: api, iceServers: iceServers, logger: logger}
}

func (s *Substrate) CreateSession(sink session.EventSink) (session.Transport, error) {
	pc, err := s.api.NewPeerConnection(webrtc.Configuration{ICEServers: s.iceServers})
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}

	ts := &transportSession{pc: pc, logger: s.logger}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			// pion signals end of gathering with a nil candidate.
			sink.Post(session.Event{Kind: session.EventGatheringComplete, From: ts})
			return
		}
		sink.Post(session.Event{Kind: session.EventCandidateDiscovered, From: ts})
	})

	pc.OnTrack(func(t *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		sink.Post(session.Event{Kind: session.EventRemoteTrack, From: ts, Track: t})
	})

	pc.OnConnectionStateChange(func(st webrtc.PeerConnectionState) {
		sink.Post(session.Event{
			Kind:         session.EventConnectivity,
			From:         ts,
			Connectivity: mapConnectivity(st),
		})
	})

	return ts, nil
}

// transportSession owns one PeerConnection on behalf of the signaling core.
type transportSession struct {
	pc     *webrtc.PeerConnection
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
}

func (t *transportSession) AttachTrack(tr session.Track) error {
	local, ok := tr.(webrtc.TrackLocal)
	if !ok {
		return fmt.Errorf("track %q is not a local webrtc track", tr.ID())
	}
	if _, err := t.pc.AddTrack(local); err != nil {
		return fmt.Errorf("add track %q: %w", tr.ID(), err)
	}
	return nil
}

func (t *transportSession) CreateLocalOffer() (session.Description, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return session.Description{}, err
	}
	return descFromPion(offer), nil
}

func (t *transportSession) CreateLocalAnswer() (session.Description, error) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return session.Description{}, err
	}
	return descFromPion(answer), nil
}

func (t *transportSession) SetLocalDescription(d session.Description) error {
	pd, err := descToPion(d)
	if err != nil {
		return err
	}
	return t.pc.SetLocalDescription(pd)
}

func (t *transportSession) SetRemoteDescription(d session.Description) error {
	pd, err := descToPion(d)
	if err != nil {
		return err
	}
	return t.pc.SetRemoteDescription(pd)
}

// LocalDescription returns the committed local description with every
// candidate gathered so far folded in, so the published blob is always the
// most complete snapshot.
func (t *transportSession) LocalDescription() (session.Description, bool) {
	ld := t.pc.LocalDescription()
	if ld == nil {
		return session.Description{}, false
	}
	return descFromPion(*ld), true
}

func (t *transportSession) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return t.pc.Close()
}

func descFromPion(d webrtc.SessionDescription) session.Description {
	var kind session.DescriptionKind
	switch d.Type {
	case webrtc.SDPTypeOffer:
		kind = session.DescriptionOffer
	case webrtc.SDPTypeAnswer:
		kind = session.DescriptionAnswer
	}
	return session.Description{Kind: kind, Payload: d.SDP}
}

func descToPion(d session.Description) (webrtc.SessionDescription, error) {
	var t webrtc.SDPType
	switch d.Kind {
	case session.DescriptionOffer:
		t = webrtc.SDPTypeOffer
	case session.DescriptionAnswer:
		t = webrtc.SDPTypeAnswer
	default:
		return webrtc.SessionDescription{}, errors.New("unsupported description kind")
	}
	return webrtc.SessionDescription{Type: t, SDP: d.Payload}, nil
}

func mapConnectivity(st webrtc.PeerConnectionState) session.Connectivity {
	switch st {
	case webrtc.PeerConnectionStateConnected:
		return session.ConnectivityConnected
	case webrtc.PeerConnectionStateDisconnected:
		return session.ConnectivityDisconnected
	case webrtc.PeerConnectionStateFailed:
		return session.ConnectivityFailed
	case webrtc.PeerConnectionStateClosed:
		return session.ConnectivityClosed
	default:
		return session.ConnectivityConnecting
	}
}
