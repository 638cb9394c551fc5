package store

import "context"

// Membership is the shared per-channel participant ledger. It mirrors the
// live registry into an external set store so that other processes (and a
// restarted coordinator) can read who is in a channel. It is write-mostly
// bookkeeping: broadcast payloads never come from here.
type Membership interface {
	// AddMember puts userID into the channel's set. Idempotent.
	AddMember(ctx context.Context, channelID, userID string) error

	// RemoveMember takes userID out of the channel's set and deletes the
	// set entirely when it becomes empty, so no empty keys linger.
	RemoveMember(ctx context.Context, channelID, userID string) error

	// ListMembers returns the current set of user ids for a channel.
	// Diagnostics and cross-process reads only.
	ListMembers(ctx context.Context, channelID string) ([]string, error)
}

// Key returns the set key for a channel's participants.
func Key(channelID string) string {
	return "call:channel:" + channelID + ":participants"
}
