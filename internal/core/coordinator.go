package core

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/pttalk/presence-server/internal/store"
)

const defaultStoreTimeout = 2 * time.Second

// Coordinator drives the per-connection presence state machine: register,
// join, leave, disconnect. Registry mutations apply first and are the
// authoritative source for broadcasts; the shared store is updated as a
// best-effort durable side effect and never blocks or fails an operation.
type Coordinator struct {
	reg          *Registry
	members      store.Membership
	fanout       *Fanout
	log          *zerolog.Logger
	storeTimeout time.Duration
}

func NewCoordinator(reg *Registry, members store.Membership, fanout *Fanout, logger *zerolog.Logger, storeTimeout time.Duration) *Coordinator {
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}
	return &Coordinator{
		reg:          reg,
		members:      members,
		fanout:       fanout,
		log:          logger,
		storeTimeout: storeTimeout,
	}
}

// OnOpen records a just-accepted socket. The connection starts with the
// unknown identity and cannot join anything until it registers.
func (c *Coordinator) OnOpen(conn *Conn) {
	c.reg.OnOpen(conn)
	c.log.Debug().Str("conn_id", conn.ID).Msg("connection opened")
}

// Register sets the connection's identity. Re-registering with a different
// user id while in a channel is refused, otherwise the store would keep
// membership under the old id.
func (c *Coordinator) Register(conn *Conn, userID, username string) *CoreError {
	if userID == "" || userID == UnknownUser {
		return coreError(ErrCodeBadRequest, "userId is required")
	}
	if err := c.reg.Register(conn, userID, username); err != nil {
		if errors.Is(err, ErrInChannel) {
			c.log.Warn().Str("conn_id", conn.ID).Str("user_id", userID).Msg("refusing re-register while in a channel")
			return coreError(ErrCodeInChannel, "cannot change identity while in a channel")
		}
		return coreError(ErrCodeBadRequest, err.Error())
	}
	c.log.Info().Str("conn_id", conn.ID).Str("user_id", userID).Str("username", username).Msg("connection registered")
	return nil
}

// Join puts the connection into a channel. Joining while already in another
// channel is an implicit leave of the old one, so a connection never shows
// up in two channels' registry scans at once.
func (c *Coordinator) Join(ctx context.Context, conn *Conn, channelID string) *CoreError {
	if channelID == "" {
		return coreError(ErrCodeBadRequest, "channelId is required")
	}
	userID, prev, err := c.reg.Join(conn, channelID)
	if err != nil {
		c.log.Warn().Err(err).Str("conn_id", conn.ID).Str("channel_id", channelID).Msg("refusing join")
		return coreError(ErrCodeNotRegistered, "register before joining a channel")
	}

	if prev != "" && prev != channelID {
		c.storeRemove(ctx, prev, userID)
		c.fanout.Broadcast(prev)
	}

	c.storeAdd(ctx, channelID, userID)
	c.fanout.Broadcast(channelID)
	c.log.Info().Str("conn_id", conn.ID).Str("user_id", userID).Str("channel_id", channelID).Msg("joined channel")
	return nil
}

// Leave takes the connection out of its channel and notifies the remaining
// members. Leaving twice, or without ever joining, is a no-op.
func (c *Coordinator) Leave(ctx context.Context, conn *Conn) *CoreError {
	userID, channelID := c.reg.Leave(conn)
	if channelID == "" {
		return nil
	}
	c.storeRemove(ctx, channelID, userID)
	c.fanout.Broadcast(channelID)
	c.log.Info().Str("conn_id", conn.ID).Str("user_id", userID).Str("channel_id", channelID).Msg("left channel")
	return nil
}

// OnClose removes the connection and runs the same cleanup as an explicit
// leave. Clients cannot be trusted to send leave-channel-call before they
// vanish, so this path is the at-least-cleanup guarantee.
func (c *Coordinator) OnClose(conn *Conn) {
	userID, channelID := c.reg.OnClose(conn)
	c.log.Debug().Str("conn_id", conn.ID).Msg("connection closed")
	if channelID == "" {
		return
	}
	// The connection's own context is gone by the time close cleanup runs.
	c.storeRemove(context.Background(), channelID, userID)
	c.fanout.Broadcast(channelID)
}

func (c *Coordinator) storeAdd(ctx context.Context, channelID, userID string) {
	sctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	if err := c.members.AddMember(sctx, channelID, userID); err != nil {
		c.log.Warn().Err(err).Str("channel_id", channelID).Str("user_id", userID).Msg("membership store add failed, continuing with registry state")
	}
}

func (c *Coordinator) storeRemove(ctx context.Context, channelID, userID string) {
	sctx, cancel := context.WithTimeout(ctx, c.storeTimeout)
	defer cancel()
	if err := c.members.RemoveMember(sctx, channelID, userID); err != nil {
		c.log.Warn().Err(err).Str("channel_id", channelID).Str("user_id", userID).Msg("membership store remove failed, continuing with registry state")
	}
}
