// Package webrtcpeer implements the transport substrate over pion/webrtc:
// session creation, track attachment, offer/answer generation and the async
// candidate/track/connectivity notifications the signaling core consumes.
package webrtcpeer

import (
	"fmt"
	"net"

	"github.com/pion/logging"
	"github.com/pion/webrtc/v4"

	"github.com/VitHongHG/LANstream/internal/config"
)

// NewAPI builds the pion API with the network settings from cfg applied.
//
// This does not start any networking; ICE sockets are only created once a
// session is created.
func NewAPI(cfg config.Config) (*webrtc.API, error) {
	se := webrtc.SettingEngine{
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	}
	if err := ApplyNetworkSettings(&se, cfg); err != nil {
		return nil, err
	}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se)), nil
}

func ApplyNetworkSettings(se *webrtc.SettingEngine, cfg config.Config) error {
	if cfg.UDPPortRange != nil {
		if err := se.SetEphemeralUDPPortRange(cfg.UDPPortRange.Min, cfg.UDPPortRange.Max); err != nil {
			return fmt.Errorf("set ephemeral udp port range: %w", err)
		}
	}

	// SettingEngine doesn't expose a single-address bind toggle; restrict
	// candidate gathering and socket binding via IPFilter instead.
	if cfg.UDPListenIP != nil && !cfg.UDPListenIP.IsUnspecified() {
		listenIP := cfg.UDPListenIP
		se.SetIPFilter(func(ip net.IP) bool {
			return ip.Equal(listenIP)
		})
	}

	return nil
}
