package webrtcpeer

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/VitHongHG/LANstream/internal/session"
)

func TestDescriptionConversion(t *testing.T) {
	for _, tc := range []struct {
		kind session.DescriptionKind
		typ  webrtc.SDPType
	}{
		{session.DescriptionOffer, webrtc.SDPTypeOffer},
		{session.DescriptionAnswer, webrtc.SDPTypeAnswer},
	} {
		pd, err := descToPion(session.Description{Kind: tc.kind, Payload: "sdp"})
		if err != nil {
			t.Fatalf("to pion %s: %v", tc.kind, err)
		}
		if pd.Type != tc.typ || pd.SDP != "sdp" {
			t.Fatalf("to pion %s = %+v", tc.kind, pd)
		}

		back := descFromPion(pd)
		if back.Kind != tc.kind || back.Payload != "sdp" {
			t.Fatalf("from pion %s = %+v", tc.kind, back)
		}
	}

	if _, err := descToPion(session.Description{Kind: "pranswer", Payload: "sdp"}); err == nil {
		t.Fatalf("pranswer conversion succeeded, want error")
	}
}

func TestMapConnectivity(t *testing.T) {
	cases := map[webrtc.PeerConnectionState]session.Connectivity{
		webrtc.PeerConnectionStateNew:          session.ConnectivityConnecting,
		webrtc.PeerConnectionStateConnecting:   session.ConnectivityConnecting,
		webrtc.PeerConnectionStateConnected:    session.ConnectivityConnected,
		webrtc.PeerConnectionStateDisconnected: session.ConnectivityDisconnected,
		webrtc.PeerConnectionStateFailed:       session.ConnectivityFailed,
		webrtc.PeerConnectionStateClosed:       session.ConnectivityClosed,
	}
	for in, want := range cases {
		if got := mapConnectivity(in); got != want {
			t.Fatalf("mapConnectivity(%v) = %v, want %v", in, got, want)
		}
	}
}
