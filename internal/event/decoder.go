// Package event defines the typed telemetry events and the decoders that
// build them from raw transport frames.
//
// Two wire formats are supported:
//   - legacy: whitespace-delimited lines, first token is the tag
//   - chrysalis: topic path plus JSON (or binary) payload, topic is the tag
//
// Decoders never panic on bad input; malformed frames return an error and
// the bus client drops them.
package event

import (
	"errors"
	"fmt"

	"github.com/iotaledger/explorer-sub006/internal/transport"
)

// Errors
var (
	ErrUnknownTag      = errors.New("unknown tag")
	ErrMalformed       = errors.New("malformed frame")
	ErrEmptyFrame      = errors.New("empty frame")
	ErrUnknownProtocol = errors.New("unknown protocol")
)

// Protocols
const (
	ProtocolLegacy    = "legacy"
	ProtocolChrysalis = "chrysalis"
)

// Decoder turns raw frames into typed events.
type Decoder interface {
	// Tag derives the dispatch tag without decoding the body.
	Tag(frame transport.Frame) (string, error)

	// Decode builds the typed event for a frame whose tag is already known.
	Decode(tag string, frame transport.Frame) (Event, error)
}

// NewDecoder returns the decoder for a protocol.
func NewDecoder(protocol string) (Decoder, error) {
	switch protocol {
	case ProtocolLegacy:
		return LineDecoder{}, nil
	case ProtocolChrysalis:
		return TopicDecoder{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProtocol, protocol)
	}
}

// DefaultTopics returns the topics a bus client subscribes to for a
// protocol when none are configured.
func DefaultTopics(protocol string) []string {
	switch protocol {
	case ProtocolLegacy:
		return []string{TagTransaction, TagConfirmed, TagLatestIndex}
	case ProtocolChrysalis:
		return []string{TopicMilestoneLatest, TopicMessages, TopicMessagesReferenced}
	default:
		return nil
	}
}

// Family maps a tag to a bounded label. Address and per-id topics
// collapse onto a single name.
func Family(tag string) string {
	switch {
	case IsAddress(tag):
		return "address"
	case isMessageMetadataTopic(tag):
		return "messages/metadata"
	case isOutputTopic(tag):
		return "outputs"
	}
	return tag
}
