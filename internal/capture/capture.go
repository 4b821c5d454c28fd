// Package capture provides the local media source consumed by the signaling
// core: a device that yields a live stream of local tracks and releases them
// exactly once.
//
// The stock implementation plays prerecorded IVF video and Ogg/Opus audio,
// which keeps the binary free of platform camera bindings while still pushing
// real, paced media through the transport.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/VitHongHG/LANstream/internal/session"
)

var ErrNoInputs = errors.New("capture: no media inputs configured")

// Stream is a live local media stream. Implements session.MediaStream.
type Stream struct {
	tracks []session.Track

	once sync.Once
	stop context.CancelFunc
	wg   *sync.WaitGroup
}

func (s *Stream) Tracks() []session.Track {
	out := make([]session.Track, len(s.tracks))
	copy(out, s.tracks)
	return out
}

// Release stops every track's sample pump. Safe to call more than once; only
// the first call does the work.
func (s *Stream) Release() {
	s.once.Do(func() {
		s.stop()
		s.wg.Wait()
	})
}

// FileDevice acquires a stream backed by media files. Implements
// session.CaptureDevice.
type FileDevice struct {
	// VideoPath is an IVF file (VP8/VP9/AV1). Empty skips the video track.
	VideoPath string
	// AudioPath is an Ogg file carrying Opus. Empty skips the audio track.
	AudioPath string

	Logger *slog.Logger
}

func (d *FileDevice) Acquire(ctx context.Context) (session.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.VideoPath == "" && d.AudioPath == "" {
		return nil, ErrNoInputs
	}
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	stream := &Stream{stop: cancel, wg: &wg}

	if d.VideoPath != "" {
		track, run, err := newVideoPump(d.VideoPath, logger)
		if err != nil {
			cancel()
			return nil, fmt.Errorf("open video input: %w", err)
		}
		stream.tracks = append(stream.tracks, track)
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(pumpCtx)
		}()
	}

	if d.AudioPath != "" {
		track, run, err := newAudioPump(d.AudioPath, logger)
		if err != nil {
			cancel()
			wg.Wait()
			return nil, fmt.Errorf("open audio input: %w", err)
		}
		stream.tracks = append(stream.tracks, track)
		wg.Add(1)
		go func() {
			defer wg.Done()
			run(pumpCtx)
		}()
	}

	// Respect a caller that gave up while we were opening inputs.
	select {
	case <-ctx.Done():
		stream.Release()
		return nil, ctx.Err()
	default:
	}

	return stream, nil
}

func openInput(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return f, nil
}
