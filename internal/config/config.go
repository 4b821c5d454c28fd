// Package config loads the runtime configuration from environment variables
// with command-line flag overrides.
package config

import (
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"

	"github.com/pion/webrtc/v4"
)

const (
	envVarLogFormat   = "LANSTREAM_LOG_FORMAT"
	envVarLogLevel    = "LANSTREAM_LOG_LEVEL"
	envVarConsoleAddr = "LANSTREAM_CONSOLE_ADDR"
	envVarVideoFile   = "LANSTREAM_VIDEO_FILE"
	envVarAudioFile   = "LANSTREAM_AUDIO_FILE"
	envVarClipboard   = "LANSTREAM_CLIPBOARD"

	// ICE behavior knobs.
	envVarUDPPortRange = "LANSTREAM_UDP_PORT_RANGE"
	envVarUDPListenIP  = "LANSTREAM_UDP_LISTEN_IP"

	DefaultConsoleAddr = "127.0.0.1:8547"
	DefaultLogFormat   = LogFormatText
	DefaultLogLevel    = "info"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// UDPPortRange restricts the UDP ports used for ICE. When nil, pion uses
// ephemeral ports.
type UDPPortRange struct {
	Min uint16
	Max uint16
}

type Config struct {
	LogFormat LogFormat
	LogLevel  slog.Level

	// Role preselects offerer or answerer; empty means the user picks
	// interactively.
	Role string

	// ConsoleAddr is the loopback listen address of the local display
	// console. Empty disables the console.
	ConsoleAddr string

	// VideoFile/AudioFile are the capture device inputs (IVF / Ogg). Both
	// empty means capture must be provided by the host.
	VideoFile string
	AudioFile string

	// Clipboard copies each published description blob to the system
	// clipboard.
	Clipboard bool

	ICEServers []webrtc.ICEServer

	UDPPortRange *UDPPortRange
	// UDPListenIP restricts candidate gathering and socket binding to one
	// local address. Nil binds everywhere.
	UDPListenIP net.IP
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	logFormat := envOrDefault(lookup, envVarLogFormat, string(DefaultLogFormat))
	logLevelStr := envOrDefault(lookup, envVarLogLevel, DefaultLogLevel)
	consoleAddr := envOrDefault(lookup, envVarConsoleAddr, DefaultConsoleAddr)
	videoFile := envOrDefault(lookup, envVarVideoFile, "")
	audioFile := envOrDefault(lookup, envVarAudioFile, "")

	clipboard := true
	if raw, ok := lookup(envVarClipboard); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarClipboard, raw, err)
		}
		clipboard = v
	}

	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")

	portRangeStr := envOrDefault(lookup, envVarUDPPortRange, "")
	listenIPStr := envOrDefault(lookup, envVarUDPListenIP, "")

	role := ""

	fs := flag.NewFlagSet("lanstream", flag.ContinueOnError)
	fs.StringVar(&role, "role", role, "session role: offerer or answerer (default: choose interactively)")
	fs.StringVar(&consoleAddr, "console", consoleAddr, "loopback address for the local console; empty disables it")
	fs.StringVar(&videoFile, "video", videoFile, "IVF file to stream as the video track")
	fs.StringVar(&audioFile, "audio", audioFile, "Ogg/Opus file to stream as the audio track")
	fs.BoolVar(&clipboard, "clipboard", clipboard, "copy published description blobs to the system clipboard")
	fs.StringVar(&logFormat, "log-format", logFormat, "log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelStr, "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	switch role {
	case "", "offerer", "answerer":
	default:
		return Config{}, fmt.Errorf("invalid -role %q (expected offerer or answerer)", role)
	}

	logLevel, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}
	switch LogFormat(logFormat) {
	case LogFormatText, LogFormatJSON:
	default:
		return Config{}, fmt.Errorf("invalid log format %q (expected text or json)", logFormat)
	}

	iceServers, err := parseICEServers(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential)
	if err != nil {
		return Config{}, err
	}

	portRange, err := parseUDPPortRange(portRangeStr)
	if err != nil {
		return Config{}, err
	}

	var listenIP net.IP
	if strings.TrimSpace(listenIPStr) != "" {
		listenIP = net.ParseIP(strings.TrimSpace(listenIPStr))
		if listenIP == nil {
			return Config{}, fmt.Errorf("invalid %s %q", envVarUDPListenIP, listenIPStr)
		}
	}

	return Config{
		LogFormat:    LogFormat(logFormat),
		LogLevel:     logLevel,
		Role:         role,
		ConsoleAddr:  consoleAddr,
		VideoFile:    videoFile,
		AudioFile:    audioFile,
		Clipboard:    clipboard,
		ICEServers:   iceServers,
		UDPPortRange: portRange,
		UDPListenIP:  listenIP,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

// parseUDPPortRange parses "min-max", e.g. "50000-50100".
func parseUDPPortRange(raw string) (*UDPPortRange, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	minStr, maxStr, ok := strings.Cut(raw, "-")
	if !ok {
		return nil, fmt.Errorf("invalid %s %q (expected min-max)", envVarUDPPortRange, raw)
	}
	minPort, err := strconv.ParseUint(strings.TrimSpace(minStr), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", envVarUDPPortRange, raw, err)
	}
	maxPort, err := strconv.ParseUint(strings.TrimSpace(maxStr), 10, 16)
	if err != nil {
		return nil, fmt.Errorf("invalid %s %q: %w", envVarUDPPortRange, raw, err)
	}
	if minPort == 0 || minPort > maxPort {
		return nil, fmt.Errorf("invalid %s %q: min must be non-zero and <= max", envVarUDPPortRange, raw)
	}
	return &UDPPortRange{Min: uint16(minPort), Max: uint16(maxPort)}, nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}
