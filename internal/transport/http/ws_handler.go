package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomwire/internal/auth"
	"github.com/vovakirdan/roomwire/internal/config"
	"github.com/vovakirdan/roomwire/internal/core"
	"github.com/vovakirdan/roomwire/internal/errs"
	"github.com/vovakirdan/roomwire/internal/proto"
)

// errClientClosed ends the write loop when the hub closes the client.
var errClientClosed = errors.New("client closed by hub")

// WSHandler authenticates the handshake, upgrades it and bridges the
// connection to a core.Client.
type WSHandler struct {
	hub        *core.Hub
	authn      *auth.Authenticator
	accept     *websocket.AcceptOptions
	readLimit  int64
	sendBuffer int
	log        *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(hub *core.Hub, authn *auth.Authenticator, cfg *config.Config, logger *zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:   hub,
		authn: authn,
		accept: acceptOptions(cfg.AllowedOrigins),
		// Text may be fully \u-escaped inside the envelope.
		readLimit:  int64(cfg.MaxMessageBytes)*6 + 1024,
		sendBuffer: cfg.SendBuffer,
		log:        logger,
	}
}

// acceptOptions turns configured origins into host patterns.
func acceptOptions(origins []string) *websocket.AcceptOptions {
	opts := &websocket.AcceptOptions{}
	for _, o := range origins {
		if o == "*" {
			opts.InsecureSkipVerify = true
			continue
		}
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			opts.OriginPatterns = append(opts.OriginPatterns, u.Host)
		}
	}
	return opts
}

// Handle serves GET /ws. Unauthenticated handshakes get 401 and leave no state behind.
func (h *WSHandler) Handle(c *gin.Context) {
	p, err := h.authn.Authenticate(c.Request)
	if err != nil {
		h.log.Debug().Err(err).Msg("ws handshake rejected")
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{
			Error: errs.MessageOf(err),
			Code:  errs.CodeUnauthorized,
		})
		return
	}

	conn, err := websocket.Accept(c.Writer, c.Request, h.accept)
	if err != nil {
		h.log.Warn().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(h.readLimit)

	client := core.NewClient(uuid.NewString(), p, h.sendBuffer)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	h.hub.Connect(ctx, client)
	defer h.hub.Disconnect(client)

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

	status, reason := h.closeStatus(client, err)
	_ = conn.Close(status, reason)
}

func (h *WSHandler) closeStatus(client *core.Client, err error) (websocket.StatusCode, string) {
	select {
	case <-client.Done():
		r := client.Reason()
		return websocket.StatusCode(r.Code), r.Text
	default:
	}

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, io.EOF) {
		return status, reason
	}
	if s := websocket.CloseStatus(err); s != -1 {
		status = s
	}
	if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
		return status, reason
	}
	if status == websocket.StatusMessageTooBig {
		return status, "message too big"
	}
	h.log.Warn().Err(err).Str("client_id", client.ID).Msg("ws connection closed with error")
	return websocket.StatusInternalError, "internal error"
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}

		var inbound proto.Inbound
		if err := json.Unmarshal(data, &inbound); err != nil {
			h.hub.Reject(client, errMalformed)
			continue
		}

		cmd, err := inboundToCommand(inbound)
		if err != nil {
			h.log.Debug().Err(err).Str("client_id", client.ID).Str("type", inbound.Type).Msg("failed to map inbound")
			h.hub.Reject(client, err)
			continue
		}
		h.hub.Handle(ctx, client, cmd)
	}
}

func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, client *core.Client) error {
	for {
		select {
		case event := <-client.Events():
			if err := wsjson.Write(ctx, conn, outboundFromEvent(event)); err != nil {
				return err
			}
		case <-client.Done():
			// Close here, while the read loop is still running to complete the handshake.
			r := client.Reason()
			_ = conn.Close(websocket.StatusCode(r.Code), r.Text)
			return errClientClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
