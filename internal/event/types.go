package event

import "regexp"

// Event is a typed telemetry event. The concrete type is one of the
// variants below; Tag reports the protocol tag it was decoded from.
type Event interface {
	Tag() string
}

// Line-based (legacy) tags.
const (
	TagConfirmed   = "sn"
	TagTransaction = "tx"
	TagTxTrytes    = "tx_trytes"
	TagTrytes      = "trytes"
	TagLatestIndex = "lmi"
)

// Topic-based (chrysalis) tags.
const (
	TopicMilestoneLatest    = "milestones/latest"
	TopicMilestoneConfirmed = "milestones/confirmed"
	TopicMessages           = "messages"
	TopicMessagesReferenced = "messages/referenced"
)

// AddressLength is the length of a tryte-encoded address.
const AddressLength = 81

var addressPattern = regexp.MustCompile(`^[A-Z9]{81}$`)

// IsAddress reports whether s is a well-formed 81-tryte address.
func IsAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// -----------------------------------------------------------------------------
// Line-based variants
// -----------------------------------------------------------------------------

// ConfirmedTransaction is an "sn" frame: a transaction confirmed by a
// milestone.
type ConfirmedTransaction struct {
	MilestoneIndex uint32
	Hash           string
	Address        string
	Trunk          string
	Branch         string
	Bundle         string
}

func (*ConfirmedTransaction) Tag() string { return TagConfirmed }

// Transaction is a "tx" frame: a newly seen transaction.
type Transaction struct {
	Hash                string
	Address             string
	Value               int64
	ObsoleteTag         string
	Timestamp           int64 // Seconds since epoch
	CurrentIndex        int
	LastIndex           int
	Bundle              string
	Trunk               string
	Branch              string
	AttachmentTimestamp int64 // Milliseconds since epoch
	TxTag               string
}

func (*Transaction) Tag() string { return TagTransaction }

// TransactionTrytes is a "tx_trytes" or "trytes" frame.
type TransactionTrytes struct {
	RawTag string
	Trytes string
	Hash   string
}

func (t *TransactionTrytes) Tag() string { return t.RawTag }

// LatestMilestoneIndex is an "lmi" frame.
type LatestMilestoneIndex struct {
	Previous uint32
	Latest   uint32
}

func (*LatestMilestoneIndex) Tag() string { return TagLatestIndex }

// AddressActivity is a frame on an address topic. Milestones arrive this
// way: the topic is the coordinator address.
type AddressActivity struct {
	Address        string
	Hash           string
	MilestoneIndex uint32
}

func (a *AddressActivity) Tag() string { return a.Address }

// -----------------------------------------------------------------------------
// Topic-based variants
// -----------------------------------------------------------------------------

// MilestoneInfo is published on milestones/latest and milestones/confirmed.
type MilestoneInfo struct {
	Topic       string `json:"-"`
	Index       uint32 `json:"index"`
	Timestamp   int64  `json:"timestamp"`
	MilestoneID string `json:"milestoneId,omitempty"`
}

func (m *MilestoneInfo) Tag() string { return m.Topic }

// Message is a raw message on the messages topic. ID is derived from the
// payload bytes.
type Message struct {
	ID   string
	Data []byte
}

func (*Message) Tag() string { return TopicMessages }

// MessageMetadata is published on messages/referenced and
// messages/{id}/metadata.
type MessageMetadata struct {
	Topic                      string   `json:"-"`
	MessageID                  string   `json:"messageId"`
	ParentMessageIDs           []string `json:"parentMessageIds,omitempty"`
	IsSolid                    bool     `json:"isSolid"`
	ReferencedByMilestoneIndex uint32   `json:"referencedByMilestoneIndex,omitempty"`
	MilestoneIndex             uint32   `json:"milestoneIndex,omitempty"`
	LedgerInclusionState       string   `json:"ledgerInclusionState,omitempty"`
	ShouldPromote              bool     `json:"shouldPromote,omitempty"`
	ShouldReattach             bool     `json:"shouldReattach,omitempty"`
}

func (m *MessageMetadata) Tag() string { return m.Topic }

// Output is published on outputs/{id} and addresses/{id}/outputs. Only
// identifying fields are decoded.
type Output struct {
	Topic         string `json:"-"`
	MessageID     string `json:"messageId"`
	TransactionID string `json:"transactionId"`
	OutputIndex   uint16 `json:"outputIndex"`
	IsSpent       bool   `json:"isSpent"`
	LedgerIndex   uint32 `json:"ledgerIndex"`
}

func (o *Output) Tag() string { return o.Topic }
