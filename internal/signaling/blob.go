// Package signaling defines the opaque blob carried by hand between the two
// instances: a versioned JSON session description wrapped in base64 so it
// survives copy/paste as a single selectable line.
//
// The package intentionally avoids depending on any WebRTC library type; it
// models the exchange format, not the transport implementation.
package signaling

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/VitHongHG/LANstream/internal/session"
)

const (
	// version1 is the current blob schema version.
	version1 = 1
)

var (
	ErrUnsupportedVersion = errors.New("signaling: unsupported version")
	ErrInvalidType        = errors.New("signaling: invalid session description type")
	ErrMissingSDP         = errors.New("signaling: missing session description sdp")
	ErrNotBase64          = errors.New("signaling: blob is not valid base64")
)

// wireDescription is the JSON payload inside the base64 envelope.
type wireDescription struct {
	Version int    `json:"version"`
	Type    string `json:"type"`
	SDP     string `json:"sdp"`
}

func (w wireDescription) validate() error {
	if w.Version != version1 {
		return fmt.Errorf("%w: %d", ErrUnsupportedVersion, w.Version)
	}
	if w.Type != string(session.DescriptionOffer) && w.Type != string(session.DescriptionAnswer) {
		return fmt.Errorf("%w: %q", ErrInvalidType, w.Type)
	}
	if w.SDP == "" {
		return ErrMissingSDP
	}
	return nil
}

// Codec implements session.Codec.
type Codec struct{}

func (Codec) Encode(d session.Description) (string, error) {
	w := wireDescription{
		Version: version1,
		Type:    string(d.Kind),
		SDP:     d.Payload,
	}
	if err := w.validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(w)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func (Codec) Decode(blob string) (session.Description, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(blob))
	if err != nil {
		return session.Description{}, fmt.Errorf("%w: %v", ErrNotBase64, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var w wireDescription
	if err := dec.Decode(&w); err != nil {
		return session.Description{}, fmt.Errorf("signaling: decode blob: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return session.Description{}, fmt.Errorf("signaling: unexpected trailing data")
	}
	if err := w.validate(); err != nil {
		return session.Description{}, err
	}

	return session.Description{
		Kind:    session.DescriptionKind(w.Type),
		Payload: w.SDP,
	}, nil
}
