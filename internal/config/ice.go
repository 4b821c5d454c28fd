package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICE server configuration. LANSTREAM_ICE_SERVERS_JSON carries a full JSON
// array of {urls, username, credential} entries and wins when set; for the
// common cases, LANSTREAM_STUN_URLS and LANSTREAM_TURN_URLS take
// comma-separated URL lists directly. All of it is optional: on a LAN, host
// candidates alone connect the two machines.
const (
	envICEServersJSON = "LANSTREAM_ICE_SERVERS_JSON"
	envStunURLs       = "LANSTREAM_STUN_URLS"
	envTurnURLs       = "LANSTREAM_TURN_URLS"
	envTurnUsername   = "LANSTREAM_TURN_USERNAME"
	envTurnCredential = "LANSTREAM_TURN_CREDENTIAL"
)

func parseICEServers(jsonSpec, stunURLs, turnURLs, turnUser, turnCred string) ([]webrtc.ICEServer, error) {
	if strings.TrimSpace(jsonSpec) != "" {
		return parseICEServersJSON(jsonSpec)
	}

	var servers []webrtc.ICEServer
	if urls := splitURLList(stunURLs); len(urls) > 0 {
		s := webrtc.ICEServer{URLs: urls}
		if err := checkICEServer(s); err != nil {
			return nil, fmt.Errorf("%s: %w", envStunURLs, err)
		}
		servers = append(servers, s)
	}
	if urls := splitURLList(turnURLs); len(urls) > 0 {
		s := webrtc.ICEServer{URLs: urls, Username: strings.TrimSpace(turnUser)}
		if cred := strings.TrimSpace(turnCred); cred != "" {
			s.Credential = cred
		}
		if err := checkICEServer(s); err != nil {
			return nil, fmt.Errorf("%s: %w", envTurnURLs, err)
		}
		servers = append(servers, s)
	}
	return servers, nil
}

// iceServerSpec is one entry of the JSON env var. urls may be a single string
// or an array of strings, matching the RTCIceServer shape browsers accept.
type iceServerSpec struct {
	URLs       any    `json:"urls"`
	Username   string `json:"username"`
	Credential string `json:"credential"`
}

func (s iceServerSpec) urlList() ([]string, error) {
	switch v := s.URLs.(type) {
	case string:
		return splitURLList(v), nil
	case []any:
		urls := make([]string, 0, len(v))
		for _, entry := range v {
			u, ok := entry.(string)
			if !ok {
				return nil, errors.New("urls entries must be strings")
			}
			if u = strings.TrimSpace(u); u != "" {
				urls = append(urls, u)
			}
		}
		return urls, nil
	case nil:
		return nil, errors.New("missing urls")
	default:
		return nil, errors.New("urls must be a string or an array of strings")
	}
}

func parseICEServersJSON(raw string) ([]webrtc.ICEServer, error) {
	var specs []iceServerSpec
	if err := json.Unmarshal([]byte(raw), &specs); err != nil {
		return nil, fmt.Errorf("%s: %w", envICEServersJSON, err)
	}

	out := make([]webrtc.ICEServer, 0, len(specs))
	for i, spec := range specs {
		urls, err := spec.urlList()
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", envICEServersJSON, i, err)
		}
		s := webrtc.ICEServer{URLs: urls, Username: strings.TrimSpace(spec.Username)}
		if cred := strings.TrimSpace(spec.Credential); cred != "" {
			s.Credential = cred
		}
		if err := checkICEServer(s); err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", envICEServersJSON, i, err)
		}
		out = append(out, s)
	}
	return out, nil
}

// checkICEServer validates URL schemes and credential pairing. stun and turn
// (plus their TLS variants) are the only schemes pion gathers candidates from.
func checkICEServer(s webrtc.ICEServer) error {
	if len(s.URLs) == 0 {
		return errors.New("missing urls")
	}

	needsCreds := false
	for _, u := range s.URLs {
		scheme, _, ok := strings.Cut(u, ":")
		if !ok {
			return fmt.Errorf("malformed ice url %q", u)
		}
		switch scheme {
		case "stun", "stuns":
		case "turn", "turns":
			needsCreds = true
		default:
			return fmt.Errorf("unsupported ice url scheme in %q", u)
		}
	}

	if needsCreds {
		cred, _ := s.Credential.(string)
		if s.Username == "" || cred == "" {
			return errors.New("turn urls require username and credential")
		}
	}
	return nil
}

func splitURLList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
