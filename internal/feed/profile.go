package feed

import (
	"fmt"

	"github.com/iotaledger/explorer-sub006/internal/bus"
	"github.com/iotaledger/explorer-sub006/internal/event"
)

// Source is the part of the bus client an aggregator consumes.
type Source interface {
	Subscribe(tag string, handler bus.Handler) string
	Unsubscribe(id string)
}

// Kind classifies an observed event.
type Kind int

const (
	KindArrival Kind = iota + 1
	KindConfirmation
	KindMilestone
)

// Observation is the part of an event an aggregator cares about.
type Observation struct {
	Kind      Kind
	ID        string
	Milestone uint32
	Timestamp int64 // Zero when the event carries none
	Value     int64
	HasValue  bool
}

// Profile tells an aggregator which tags to subscribe and how to read
// them.
type Profile struct {
	Tags    []string
	Extract func(event.Event) (Observation, bool)
}

// ProfileFor returns the profile of a protocol.
func ProfileFor(protocol string) (Profile, error) {
	switch protocol {
	case event.ProtocolLegacy:
		return Profile{
			Tags:    []string{event.TagTransaction, event.TagConfirmed},
			Extract: extractLegacy,
		}, nil
	case event.ProtocolChrysalis:
		return Profile{
			Tags:    []string{event.TopicMessages, event.TopicMessagesReferenced, event.TopicMilestoneLatest},
			Extract: extractChrysalis,
		}, nil
	default:
		return Profile{}, fmt.Errorf("%w: %q", event.ErrUnknownProtocol, protocol)
	}
}

func extractLegacy(ev event.Event) (Observation, bool) {
	switch e := ev.(type) {
	case *event.Transaction:
		return Observation{
			Kind:      KindArrival,
			ID:        e.Hash,
			Timestamp: e.Timestamp,
			Value:     e.Value,
			HasValue:  e.Value != 0,
		}, true
	case *event.ConfirmedTransaction:
		return Observation{
			Kind:      KindConfirmation,
			ID:        e.Hash,
			Milestone: e.MilestoneIndex,
		}, true
	}
	return Observation{}, false
}

func extractChrysalis(ev event.Event) (Observation, bool) {
	switch e := ev.(type) {
	case *event.Message:
		return Observation{Kind: KindArrival, ID: e.ID}, true
	case *event.MessageMetadata:
		index := e.ReferencedByMilestoneIndex
		if index == 0 {
			index = e.MilestoneIndex
		}
		if index == 0 {
			return Observation{}, false
		}
		return Observation{Kind: KindConfirmation, ID: e.MessageID, Milestone: index}, true
	case *event.MilestoneInfo:
		return Observation{
			Kind:      KindMilestone,
			ID:        e.MilestoneID,
			Milestone: e.Index,
			Timestamp: e.Timestamp,
		}, true
	}
	return Observation{}, false
}
