package event

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/iotaledger/explorer-sub006/internal/transport"
)

// TopicDecoder decodes chrysalis topic frames.
type TopicDecoder struct{}

// Tag returns the frame topic.
func (TopicDecoder) Tag(frame transport.Frame) (string, error) {
	if frame.Topic == "" {
		return "", ErrEmptyFrame
	}
	return frame.Topic, nil
}

// Decode picks the variant from the topic shape and parses the payload.
func (TopicDecoder) Decode(tag string, frame transport.Frame) (Event, error) {
	switch {
	case tag == TopicMilestoneLatest || tag == TopicMilestoneConfirmed:
		var m MilestoneInfo
		if err := unmarshal(tag, frame.Payload, &m); err != nil {
			return nil, err
		}
		m.Topic = tag
		return &m, nil

	case tag == TopicMessages:
		if len(frame.Payload) == 0 {
			return nil, ErrEmptyFrame
		}
		data := make([]byte, len(frame.Payload))
		copy(data, frame.Payload)
		return &Message{ID: MessageID(data), Data: data}, nil

	case tag == TopicMessagesReferenced || isMessageMetadataTopic(tag):
		var m MessageMetadata
		if err := unmarshal(tag, frame.Payload, &m); err != nil {
			return nil, err
		}
		m.Topic = tag
		return &m, nil

	case isOutputTopic(tag):
		var o Output
		if err := unmarshal(tag, frame.Payload, &o); err != nil {
			return nil, err
		}
		o.Topic = tag
		return &o, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
}

// MessageID returns the hex blake2b-256 digest of a raw message.
func MessageID(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// MessageMetadataTopic returns the per-message metadata topic.
func MessageMetadataTopic(messageID string) string {
	return "messages/" + messageID + "/metadata"
}

// OutputTopic returns the topic for a single output.
func OutputTopic(outputID string) string {
	return "outputs/" + outputID
}

// AddressOutputsTopic returns the topic for outputs of an address.
func AddressOutputsTopic(address string) string {
	return "addresses/" + address + "/outputs"
}

// messages/{id}/metadata
func isMessageMetadataTopic(topic string) bool {
	parts := strings.Split(topic, "/")
	return len(parts) == 3 && parts[0] == "messages" && parts[1] != "" && parts[2] == "metadata"
}

// outputs/{id} or addresses/{id}/outputs
func isOutputTopic(topic string) bool {
	parts := strings.Split(topic, "/")
	switch len(parts) {
	case 2:
		return parts[0] == "outputs" && parts[1] != ""
	case 3:
		return parts[0] == "addresses" && parts[1] != "" && parts[2] == "outputs"
	}
	return false
}

func unmarshal(tag string, payload []byte, v any) error {
	if len(payload) == 0 {
		return ErrEmptyFrame
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, tag, err)
	}
	return nil
}
