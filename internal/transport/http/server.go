package http

import (
	"errors"
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pttalk/presence-server/internal/config"
	"github.com/pttalk/presence-server/internal/core"
	"github.com/pttalk/presence-server/internal/store"
)

// NewServer builds the HTTP server: the WebSocket endpoint, a liveness
// probe, and a diagnostic read of the shared membership store.
func NewServer(coord *core.Coordinator, members store.Membership, cfg config.Config, logger *zerolog.Logger) *stdhttp.Server {
	return &stdhttp.Server{
		Addr:              cfg.Addr,
		Handler:           NewRouter(coord, members, logger),
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

// NewRouter wires the gin engine. Split from NewServer so tests can mount
// it on httptest directly.
func NewRouter(coord *core.Coordinator, members store.Membership, logger *zerolog.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(LoggerMiddleware(logger), gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET("/ws", gin.WrapH(NewWSHandler(coord, logger)))
	router.GET("/api/channels/:id/participants", participantsHandler(members, logger))

	return router
}

// participantsHandler reads the shared store, not the registry: it answers
// "who does the cross-process ledger say is here", which may include members
// held by other coordinator processes.
func participantsHandler(members store.Membership, logger *zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		channelID := c.Param("id")
		userIDs, err := members.ListMembers(c.Request.Context(), channelID)
		if err != nil {
			if errors.Is(err, store.ErrUnavailable) {
				c.JSON(stdhttp.StatusServiceUnavailable, gin.H{"error": "membership store unavailable"})
				return
			}
			logger.Error().Err(err).Str("channel_id", channelID).Msg("list members")
			c.JSON(stdhttp.StatusInternalServerError, gin.H{"error": "internal error"})
			return
		}
		c.JSON(stdhttp.StatusOK, gin.H{"participants": userIDs})
	}
}
