// Package session contains the two-party signaling core: the role selector
// and the state machine that drives one transport session through manual
// offer/answer exchange until it connects, is lost, or is reset.
//
// The package deliberately avoids depending on any WebRTC library type; the
// transport substrate, capture device, blob codec and display surface are all
// consumed as interfaces so the protocol core stays independently testable.
package session
