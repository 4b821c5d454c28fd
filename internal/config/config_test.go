package config

import (
	"log/slog"
	"testing"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ConsoleAddr != DefaultConsoleAddr {
		t.Fatalf("console addr = %q, want %q", cfg.ConsoleAddr, DefaultConsoleAddr)
	}
	if cfg.LogFormat != LogFormatText {
		t.Fatalf("log format = %q, want text", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("log level = %v, want info", cfg.LogLevel)
	}
	if !cfg.Clipboard {
		t.Fatalf("clipboard should default to enabled")
	}
	if cfg.Role != "" {
		t.Fatalf("role = %q, want empty (interactive)", cfg.Role)
	}
	if len(cfg.ICEServers) != 0 {
		t.Fatalf("ice servers = %v, want none by default (host candidates only)", cfg.ICEServers)
	}
	if cfg.UDPPortRange != nil {
		t.Fatalf("udp port range = %+v, want nil", cfg.UDPPortRange)
	}
}

func TestLoad_EnvAndFlagOverrides(t *testing.T) {
	env := map[string]string{
		"LANSTREAM_LOG_FORMAT":     "json",
		"LANSTREAM_LOG_LEVEL":      "debug",
		"LANSTREAM_CONSOLE_ADDR":   "127.0.0.1:9999",
		"LANSTREAM_VIDEO_FILE":     "env.ivf",
		"LANSTREAM_CLIPBOARD":      "false",
		"LANSTREAM_UDP_PORT_RANGE": "50000-50100",
		"LANSTREAM_UDP_LISTEN_IP":  "192.168.1.10",
	}

	cfg, err := load(lookupFrom(env), []string{
		"-role", "offerer",
		"-video", "flag.ivf",
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.LogFormat != LogFormatJSON {
		t.Fatalf("log format = %q, want json", cfg.LogFormat)
	}
	if cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("log level = %v, want debug", cfg.LogLevel)
	}
	if cfg.ConsoleAddr != "127.0.0.1:9999" {
		t.Fatalf("console addr = %q", cfg.ConsoleAddr)
	}
	if cfg.Role != "offerer" {
		t.Fatalf("role = %q, want offerer", cfg.Role)
	}
	// Flags win over env.
	if cfg.VideoFile != "flag.ivf" {
		t.Fatalf("video file = %q, want flag.ivf", cfg.VideoFile)
	}
	if cfg.Clipboard {
		t.Fatalf("clipboard should be disabled by env")
	}
	if cfg.UDPPortRange == nil || cfg.UDPPortRange.Min != 50000 || cfg.UDPPortRange.Max != 50100 {
		t.Fatalf("udp port range = %+v", cfg.UDPPortRange)
	}
	if cfg.UDPListenIP == nil || cfg.UDPListenIP.String() != "192.168.1.10" {
		t.Fatalf("udp listen ip = %v", cfg.UDPListenIP)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]struct {
		env  map[string]string
		args []string
	}{
		"bad role":        {args: []string{"-role", "spectator"}},
		"bad log format":  {args: []string{"-log-format", "xml"}},
		"bad log level":   {args: []string{"-log-level", "loud"}},
		"bad clipboard":   {env: map[string]string{"LANSTREAM_CLIPBOARD": "sometimes"}},
		"bad listen ip":   {env: map[string]string{"LANSTREAM_UDP_LISTEN_IP": "not-an-ip"}},
		"range no dash":   {env: map[string]string{"LANSTREAM_UDP_PORT_RANGE": "50000"}},
		"range inverted":  {env: map[string]string{"LANSTREAM_UDP_PORT_RANGE": "50100-50000"}},
		"range zero min":  {env: map[string]string{"LANSTREAM_UDP_PORT_RANGE": "0-100"}},
		"range not a num": {env: map[string]string{"LANSTREAM_UDP_PORT_RANGE": "a-b"}},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := load(lookupFrom(tc.env), tc.args); err == nil {
				t.Fatalf("load succeeded, want error")
			}
		})
	}
}

func TestParseUDPPortRange(t *testing.T) {
	pr, err := parseUDPPortRange(" 50000-50100 ")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if pr.Min != 50000 || pr.Max != 50100 {
		t.Fatalf("range = %+v", pr)
	}

	pr, err = parseUDPPortRange("")
	if err != nil || pr != nil {
		t.Fatalf("empty range = %+v, %v; want nil, nil", pr, err)
	}
}
