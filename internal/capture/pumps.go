package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const oggPageDuration = 20 * time.Millisecond

// newVideoPump opens an IVF file and returns the sample track plus the pump
// that feeds it at the file's native frame rate, looping at EOF.
func newVideoPump(path string, logger *slog.Logger) (*webrtc.TrackLocalStaticSample, func(context.Context), error) {
	f, err := openInput(path)
	if err != nil {
		return nil, nil, err
	}

	ivf, header, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("read ivf header: %w", err)
	}

	var mimeType string
	switch header.FourCC {
	case "VP80":
		mimeType = webrtc.MimeTypeVP8
	case "VP90":
		mimeType = webrtc.MimeTypeVP9
	case "AV01":
		mimeType = webrtc.MimeTypeAV1
	default:
		_ = f.Close()
		return nil, nil, fmt.Errorf("unsupported ivf codec %q", header.FourCC)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mimeType}, "video", "lanstream",
	)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	if header.TimebaseDenominator == 0 {
		_ = f.Close()
		return nil, nil, fmt.Errorf("invalid ivf timebase %d/%d", header.TimebaseNumerator, header.TimebaseDenominator)
	}
	frameDuration := time.Duration(uint64(header.TimebaseNumerator) * uint64(time.Second) / uint64(header.TimebaseDenominator))
	if frameDuration <= 0 {
		_ = f.Close()
		return nil, nil, fmt.Errorf("invalid ivf timebase %d/%d", header.TimebaseNumerator, header.TimebaseDenominator)
	}

	run := func(ctx context.Context) {
		defer f.Close()

		ticker := time.NewTicker(frameDuration)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			frame, _, err := ivf.ParseNextFrame()
			if errors.Is(err, io.EOF) {
				if ivf, err = rewindIVF(f); err != nil {
					logger.Warn("rewind video input", "err", err)
					return
				}
				continue
			}
			if err != nil {
				logger.Warn("read video frame", "err", err)
				return
			}

			if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
				logger.Warn("write video sample", "err", err)
				return
			}
		}
	}

	return track, run, nil
}

// newAudioPump opens an Ogg/Opus file and returns the sample track plus the
// pump that feeds it page by page, looping at EOF.
func newAudioPump(path string, logger *slog.Logger) (*webrtc.TrackLocalStaticSample, func(context.Context), error) {
	f, err := openInput(path)
	if err != nil {
		return nil, nil, err
	}

	ogg, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("read ogg header: %w", err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", "lanstream",
	)
	if err != nil {
		_ = f.Close()
		return nil, nil, err
	}

	run := func(ctx context.Context) {
		defer f.Close()

		// Opus pages are paced by granule position at a fixed 48kHz clock.
		var lastGranule uint64

		ticker := time.NewTicker(oggPageDuration)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			pageData, pageHeader, err := ogg.ParseNextPage()
			if errors.Is(err, io.EOF) {
				if ogg, err = rewindOgg(f); err != nil {
					logger.Warn("rewind audio input", "err", err)
					return
				}
				lastGranule = 0
				continue
			}
			if err != nil {
				logger.Warn("read audio page", "err", err)
				return
			}

			sampleCount := float64(pageHeader.GranulePosition - lastGranule)
			lastGranule = pageHeader.GranulePosition
			sampleDuration := time.Duration((sampleCount/48000)*1000) * time.Millisecond

			if err := track.WriteSample(media.Sample{Data: pageData, Duration: sampleDuration}); err != nil {
				logger.Warn("write audio sample", "err", err)
				return
			}
		}
	}

	return track, run, nil
}

func rewindIVF(f *os.File) (*ivfreader.IVFReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, _, err := ivfreader.NewWith(f)
	return r, err
}

func rewindOgg(f *os.File) (*oggreader.OggReader, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(f)
	return r, err
}
