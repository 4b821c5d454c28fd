package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"log/slog"

	"github.com/VitHongHG/LANstream/internal/capture"
	"github.com/VitHongHG/LANstream/internal/config"
	"github.com/VitHongHG/LANstream/internal/console"
	"github.com/VitHongHG/LANstream/internal/metrics"
	"github.com/VitHongHG/LANstream/internal/session"
	"github.com/VitHongHG/LANstream/internal/signaling"
	"github.com/VitHongHG/LANstream/internal/webrtcpeer"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	// Construct the WebRTC API early so misconfigurations are caught on
	// startup; ICE sockets only appear once a session attempt begins.
	substrate, err := webrtcpeer.NewSubstrate(cfg, logger)
	if err != nil {
		logger.Error("failed to configure webrtc", "err", err)
		os.Exit(2)
	}

	device := &capture.FileDevice{
		VideoPath: cfg.VideoFile,
		AudioPath: cfg.AudioFile,
		Logger:    logger,
	}

	counters := metrics.New()
	notifiers := &fanoutNotifier{}

	machine, err := session.New(session.Deps{
		Substrate: substrate,
		Capture:   device,
		Codec:     signaling.Codec{},
		Notifier:  notifiers,
		Recorder:  counters,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to build session machine", "err", err)
		os.Exit(2)
	}
	// The release sequence must run even when we exit through an error path.
	defer machine.Close()

	notifiers.Add(newPrinter(os.Stdout, cfg.Clipboard, logger))

	if cfg.ConsoleAddr != "" {
		srv := console.New(machine, counters, logger)
		notifiers.Add(srv)

		ln, err := net.Listen("tcp", cfg.ConsoleAddr)
		if err != nil {
			logger.Error("failed to listen for console", "addr", cfg.ConsoleAddr, "err", err)
			os.Exit(1)
		}
		logger.Info("console listening", "addr", ln.Addr().String())
		go func() {
			if err := srv.Serve(ln); err != nil {
				logger.Error("console server", "err", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	logger.Info("starting lanstream",
		"role", cfg.Role,
		"console_addr", cfg.ConsoleAddr,
		"video_file", cfg.VideoFile,
		"audio_file", cfg.AudioFile,
		"ice_servers", len(cfg.ICEServers),
		"clipboard", cfg.Clipboard,
	)

	if cfg.Role != "" {
		role := session.RoleOfferer
		if cfg.Role == "answerer" {
			role = session.RoleAnswerer
		}
		if err := machine.SelectRole(context.Background(), role); err != nil {
			logger.Error("select role", "err", err)
			os.Exit(1)
		}
		if role == session.RoleOfferer {
			if err := machine.GenerateOffer(); err != nil {
				logger.Error("generate offer", "err", err)
				os.Exit(1)
			}
		}
	}

	lines := make(chan string)
	go readLines(os.Stdin, lines)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	printHelp()

	for {
		select {
		case sig := <-sigCh:
			logger.Info("shutting down", "signal", sig.String())
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleLine(machine, line); quit {
				return
			}
		}
	}
}

func readLines(f *os.File, out chan<- string) {
	defer close(out)
	sc := bufio.NewScanner(f)
	// Blobs with many gathered candidates can outgrow the default token size.
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		out <- strings.TrimSpace(sc.Text())
	}
}

// handleLine interprets one console line; unknown non-empty input is treated
// as a pasted blob.
func handleLine(m *session.Machine, line string) (quit bool) {
	switch {
	case line == "":
		return false
	case line == "help":
		printHelp()
	case line == "offerer", line == "answerer":
		role := session.RoleOfferer
		if line == "answerer" {
			role = session.RoleAnswerer
		}
		if err := m.SelectRole(context.Background(), role); err != nil {
			fmt.Println("error:", err)
			return false
		}
		if role == session.RoleOfferer {
			if err := m.GenerateOffer(); err != nil {
				fmt.Println("error:", err)
			}
		} else {
			fmt.Println("paste the offer blob from the other side:")
		}
	case line == "reset":
		m.Reset()
		fmt.Println("reset; pick a role: offerer | answerer")
	case line == "status":
		printStatus(m.Snapshot())
	case line == "quit", line == "exit":
		return true
	default:
		applyBlob(m, line)
	}
	return false
}

func applyBlob(m *session.Machine, blob string) {
	var err error
	switch m.Role() {
	case session.RoleOfferer:
		err = m.ApplyRemoteAnswer(blob)
	case session.RoleAnswerer:
		err = m.ApplyRemoteOffer(blob)
	default:
		err = session.ErrNoRole
	}
	if err != nil {
		if errors.Is(err, session.ErrMalformedDescription) {
			fmt.Println("that doesn't look like a description blob; paste it again")
			return
		}
		fmt.Println("error:", err)
	}
}

func printStatus(snap session.Snapshot) {
	fmt.Printf("state=%s role=%s gathering_complete=%t remote_tracks=%d\n",
		snap.State, snap.Role, snap.GatheringComplete, len(snap.RemoteTrackIDs))
	if snap.LastError != "" {
		fmt.Println("last error:", snap.LastError)
	}
}

func printHelp() {
	fmt.Println(`commands:
  offerer | answerer   pick the session role (offerer also publishes the offer)
  <pasted blob>        apply the description blob copied from the other side
  reset                tear the attempt down and start over
  status               print the current session state
  quit                 exit`)
}
