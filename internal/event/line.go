package event

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/iotaledger/explorer-sub006/internal/transport"
)

// Token counts per layout, tag included.
const (
	confirmedFields   = 7
	transactionFields = 13
	trytesFields      = 3
	lmiFields         = 3
	addressFields     = 3
)

// LineDecoder decodes legacy whitespace-delimited frames.
type LineDecoder struct{}

// Tag returns the first token of the line.
func (LineDecoder) Tag(frame transport.Frame) (string, error) {
	payload := bytes.TrimSpace(frame.Payload)
	if len(payload) == 0 {
		return "", ErrEmptyFrame
	}
	if i := bytes.IndexAny(payload, " \t"); i >= 0 {
		return string(payload[:i]), nil
	}
	return string(payload), nil
}

// Decode applies the fixed positional layout of tag.
func (LineDecoder) Decode(tag string, frame transport.Frame) (Event, error) {
	fields := strings.Fields(string(frame.Payload))
	if len(fields) == 0 {
		return nil, ErrEmptyFrame
	}
	if fields[0] != tag {
		return nil, fmt.Errorf("%w: tag %q does not match frame", ErrMalformed, tag)
	}

	switch tag {
	case TagConfirmed:
		return decodeConfirmed(fields)
	case TagTransaction:
		return decodeTransaction(fields)
	case TagTxTrytes, TagTrytes:
		if len(fields) < trytesFields {
			return nil, fieldCountError(tag, len(fields), trytesFields)
		}
		return &TransactionTrytes{RawTag: tag, Trytes: fields[1], Hash: fields[2]}, nil
	case TagLatestIndex:
		return decodeLatestIndex(fields)
	}

	if IsAddress(tag) {
		return decodeAddress(fields)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
}

func decodeConfirmed(fields []string) (Event, error) {
	if len(fields) < confirmedFields {
		return nil, fieldCountError(TagConfirmed, len(fields), confirmedFields)
	}
	index, err := parseIndex(fields[1])
	if err != nil {
		return nil, err
	}
	return &ConfirmedTransaction{
		MilestoneIndex: index,
		Hash:           fields[2],
		Address:        fields[3],
		Trunk:          fields[4],
		Branch:         fields[5],
		Bundle:         fields[6],
	}, nil
}

func decodeTransaction(fields []string) (Event, error) {
	if len(fields) < transactionFields {
		return nil, fieldCountError(TagTransaction, len(fields), transactionFields)
	}

	value, err := strconv.ParseInt(fields[3], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: value %q", ErrMalformed, fields[3])
	}
	timestamp, err := strconv.ParseInt(fields[5], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: timestamp %q", ErrMalformed, fields[5])
	}
	current, err := strconv.Atoi(fields[6])
	if err != nil {
		return nil, fmt.Errorf("%w: current index %q", ErrMalformed, fields[6])
	}
	last, err := strconv.Atoi(fields[7])
	if err != nil {
		return nil, fmt.Errorf("%w: last index %q", ErrMalformed, fields[7])
	}
	attachment, err := strconv.ParseInt(fields[11], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: attachment timestamp %q", ErrMalformed, fields[11])
	}

	return &Transaction{
		Hash:                fields[1],
		Address:             fields[2],
		Value:               value,
		ObsoleteTag:         fields[4],
		Timestamp:           timestamp,
		CurrentIndex:        current,
		LastIndex:           last,
		Bundle:              fields[8],
		Trunk:               fields[9],
		Branch:              fields[10],
		AttachmentTimestamp: attachment,
		TxTag:               fields[12],
	}, nil
}

func decodeLatestIndex(fields []string) (Event, error) {
	if len(fields) < lmiFields {
		return nil, fieldCountError(TagLatestIndex, len(fields), lmiFields)
	}
	prev, err := parseIndex(fields[1])
	if err != nil {
		return nil, err
	}
	latest, err := parseIndex(fields[2])
	if err != nil {
		return nil, err
	}
	return &LatestMilestoneIndex{Previous: prev, Latest: latest}, nil
}

func decodeAddress(fields []string) (Event, error) {
	if len(fields) < addressFields {
		return nil, fieldCountError("address", len(fields), addressFields)
	}
	index, err := parseIndex(fields[2])
	if err != nil {
		return nil, err
	}
	return &AddressActivity{
		Address:        fields[0],
		Hash:           fields[1],
		MilestoneIndex: index,
	}, nil
}

func parseIndex(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: index %q", ErrMalformed, s)
	}
	return uint32(v), nil
}

func fieldCountError(tag string, got, want int) error {
	return fmt.Errorf("%w: %s has %d fields, want %d", ErrMalformed, tag, got, want)
}
