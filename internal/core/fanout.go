package core

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/pttalk/presence-server/internal/proto"
)

// Fanout pushes a freshly computed participant list to every connection in
// a channel. Delivery is best-effort, latest-state-wins: a connection whose
// outbound queue is full is skipped, not retried, because any later
// membership change triggers a new push with the current list.
type Fanout struct {
	reg *Registry
	log *zerolog.Logger
}

func NewFanout(reg *Registry, logger *zerolog.Logger) *Fanout {
	return &Fanout{reg: reg, log: logger}
}

// Broadcast serializes the channel's member list once and delivers it to
// every member. The snapshot is taken from the registry, never the store.
func (f *Fanout) Broadcast(channelID string) {
	members := f.reg.channelSnapshot(channelID)
	if len(members) == 0 {
		return
	}

	participants := make([]proto.Participant, 0, len(members))
	for _, m := range members {
		username := m.member.DisplayName
		if username == "" {
			username = m.member.UserID
		}
		participants = append(participants, proto.Participant{
			ID:       m.member.UserID,
			Username: username,
		})
	}

	payload, err := json.Marshal(proto.Outbound{
		Type:         proto.OutboundTypeParticipants,
		Participants: participants,
	})
	if err != nil {
		f.log.Error().Err(err).Str("channel_id", channelID).Msg("marshal participants payload")
		return
	}

	for _, m := range members {
		select {
		case m.conn.Out <- payload:
		default:
			f.log.Debug().
				Str("conn_id", m.conn.ID).
				Str("channel_id", channelID).
				Msg("skipping unwritable connection during fanout")
		}
	}
}
