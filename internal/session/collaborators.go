package session

import "context"

// DescriptionKind is the type tag carried by an exchanged description blob.
type DescriptionKind string

const (
	DescriptionOffer  DescriptionKind = "offer"
	DescriptionAnswer DescriptionKind = "answer"
)

// Description is a session description as the core sees it: a type tag plus
// an opaque negotiation payload. Serialization to and from the copy/paste
// blob is owned by the Codec.
type Description struct {
	Kind    DescriptionKind
	Payload string
}

// Track is a local media track accepted by the transport substrate. The core
// never inspects tracks beyond their identity.
type Track interface {
	ID() string
}

// RemoteTrack is a track produced asynchronously by the substrate once
// negotiation completes. Exposed to the display layer, never mutated.
type RemoteTrack interface {
	ID() string
	StreamID() string
}

// MediaStream is a live capture stream borrowed by the machine for the
// duration of an attempt. Release stops every track exactly once.
type MediaStream interface {
	Tracks() []Track
	Release()
}

// CaptureDevice acquires a live local media stream. Acquisition may prompt
// the user and therefore block; it honors ctx cancellation.
type CaptureDevice interface {
	Acquire(ctx context.Context) (MediaStream, error)
}

// Transport is one live transport session, exclusively owned by the machine.
type Transport interface {
	AttachTrack(t Track) error
	// CreateLocalOffer and CreateLocalAnswer may block while the substrate
	// gathers its initial capabilities.
	CreateLocalOffer() (Description, error)
	CreateLocalAnswer() (Description, error)
	SetLocalDescription(d Description) error
	SetRemoteDescription(d Description) error
	// LocalDescription returns the current local description snapshot,
	// including every network path discovered so far. The snapshot replaces
	// any previously published blob; it is never appended to.
	LocalDescription() (Description, bool)
	Close() error
}

// Substrate creates transport sessions. Asynchronous substrate notifications
// are delivered as Events to the sink passed at creation time.
type Substrate interface {
	CreateSession(sink EventSink) (Transport, error)
}

// EventKind discriminates substrate notifications.
type EventKind int

const (
	// EventCandidateDiscovered: a new local network path was found; the
	// published blob must be refreshed from the transport's current snapshot.
	EventCandidateDiscovered EventKind = iota
	// EventGatheringComplete: no further candidates are expected. Display
	// hint only; the blob is correct whenever it is copied.
	EventGatheringComplete
	// EventRemoteTrack: the substrate began receiving a remote track.
	EventRemoteTrack
	// EventConnectivity: the substrate's connection health changed.
	EventConnectivity
)

// Event is a typed substrate notification. From identifies the originating
// transport so notifications from a torn-down session are discarded instead
// of mutating a newer attempt.
type Event struct {
	Kind         EventKind
	From         Transport
	Track        RemoteTrack
	Connectivity Connectivity
}

// EventSink accepts substrate events for serialized, single-consumer
// processing.
type EventSink interface {
	Post(ev Event)
}

// Codec serializes descriptions to and from the opaque blob form the user
// copies between instances.
type Codec interface {
	Encode(d Description) (string, error)
	Decode(blob string) (Description, error)
}

// Snapshot is the machine state pushed to the display layer after every
// transition.
type Snapshot struct {
	State             State
	Role              Role
	LocalBlob         string
	GatheringComplete bool
	RemoteTrackIDs    []string
	LastError         string
}

// Notifier receives display snapshots. Implementations must not call back
// into the machine from Publish.
type Notifier interface {
	Publish(s Snapshot)
}

// Recorder counts signaling events; satisfied by the metrics registry.
type Recorder interface {
	Inc(name string)
}

// Counter names recorded by the machine.
const (
	MetricOffersGenerated      = "offers_generated"
	MetricAnswersGenerated     = "answers_generated"
	MetricCandidateRepublishes = "candidate_republishes"
	MetricRemoteTracks         = "remote_tracks"
	MetricConnects             = "connects"
	MetricConnectivityLost     = "connectivity_lost"
	MetricResets               = "resets"
	MetricMalformedBlobs       = "malformed_blobs"
)
