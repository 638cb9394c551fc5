package proto

// Inbound is the envelope for messages coming from the client. The protocol
// is flat: the type tag and its fields live on one JSON object, so a single
// struct covers the closed set of inbound kinds. Fields that do not belong
// to the tagged kind are ignored by the dispatcher.
type Inbound struct {
	Type      string `json:"type"`
	UserID    string `json:"userId,omitempty"`
	Username  string `json:"username,omitempty"`
	ChannelID string `json:"channelId,omitempty"`
}

const (
	InboundTypeRegister = "register"
	InboundTypeJoin     = "join-channel-call"
	InboundTypeLeave    = "leave-channel-call"

	OutboundTypeRegisterSuccess = "register-success"
	OutboundTypeParticipants    = "conference-participants"
	OutboundTypeError           = "error"
)

// Participant is the wire representation of one registered, joined user.
// Username falls back to the user id when no display name was registered.
type Participant struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Outbound is the envelope for messages sent to the client.
type Outbound struct {
	Type         string        `json:"type"`
	UserID       string        `json:"userId,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
	Error        *Error        `json:"error,omitempty"`
}

// Error describes a protocol-level error response.
type Error struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
}
