package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	stdhttp "net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pttalk/presence-server/internal/core"
	"github.com/pttalk/presence-server/internal/proto"
)

// WSHandler upgrades HTTP connections and bridges them to the coordinator.
// The read loop is the only driver of coordinator calls for a connection,
// which is what preserves per-connection message ordering.
type WSHandler struct {
	coord *core.Coordinator
	log   *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(coord *core.Coordinator, logger *zerolog.Logger) stdhttp.Handler {
	return &WSHandler{coord: coord, log: logger}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	ctx := r.Context()

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	client := core.NewConn(uuid.NewString())
	h.coord.OnOpen(client)
	defer h.coord.OnClose(client)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- h.writeLoop(ctx, conn, client)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != 0 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = err.Error()
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	conn.Close(status, reason)
}

// readLoop decodes inbound frames and drives the coordinator. A frame that
// does not parse, or carries an unknown type, never terminates the
// connection: the client gets an error frame and the loop keeps reading.
func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("dropping unparseable message")
			h.enqueueError(client, core.ErrCodeBadRequest, "malformed message")
			continue
		}

		switch inbound.Type {
		case proto.InboundTypeRegister:
			if cerr := h.coord.Register(client, inbound.UserID, inbound.Username); cerr != nil {
				h.enqueueError(client, cerr.Code, cerr.Message)
				continue
			}
			h.enqueue(client, proto.Outbound{
				Type:   proto.OutboundTypeRegisterSuccess,
				UserID: inbound.UserID,
			})
		case proto.InboundTypeJoin:
			if cerr := h.coord.Join(ctx, client, inbound.ChannelID); cerr != nil {
				h.enqueueError(client, cerr.Code, cerr.Message)
			}
		case proto.InboundTypeLeave:
			if cerr := h.coord.Leave(ctx, client); cerr != nil {
				h.enqueueError(client, cerr.Code, cerr.Message)
			}
		default:
			h.log.Warn().Str("conn_id", client.ID).Str("type", inbound.Type).Msg("dropping message with unknown type")
			h.enqueueError(client, core.ErrCodeUnknownType, "unknown message type")
		}
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Conn) error {
	for {
		select {
		case payload := <-client.Out:
			if err := conn.Write(ctx, websocket.MessageText, payload); err != nil {
				h.log.Error().Err(err).Str("conn_id", client.ID).Msg("write ws payload")
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// enqueue serializes an outbound frame into the connection's queue. Frames
// go through the write loop so there is a single socket writer.
func (h *WSHandler) enqueue(client *core.Conn, out proto.Outbound) {
	payload, err := json.Marshal(out)
	if err != nil {
		h.log.Error().Err(err).Str("conn_id", client.ID).Msg("marshal outbound frame")
		return
	}
	select {
	case client.Out <- payload:
	default:
		h.log.Debug().Str("conn_id", client.ID).Msg("outbound queue full, dropping frame")
	}
}

func (h *WSHandler) enqueueError(client *core.Conn, code, msg string) {
	h.enqueue(client, proto.Outbound{
		Type:  proto.OutboundTypeError,
		Error: &proto.Error{Code: code, Msg: msg},
	})
}
