package web

import (
	"context"
	"errors"
	"net/http"
	"time"

	iface "YoloDetServer/interface"
	"YoloDetServer/monitor"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const wsReadLimit = 20 * 1024 * 1024

type wsReply struct {
	Data  []iface.YoloItem `json:"data"`
	Error string           `json:"error,omitempty"`
}

// stream runs detect on every frame received for one engine: binary frames
// carry encoded images, text frames carry base64 (optionally a data: URL).
// The connection is closed after idleTimeout without a frame.
func (s *Server) stream(c *gin.Context) {
	id := c.Param("id")
	if _, err := s.registry.Get(id); err != nil {
		abort(c, err)
		return
	}

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// the upgrader already wrote the response
		return
	}
	defer conn.Close()
	conn.SetReadLimit(wsReadLimit)
	monitor.WSSessions.Inc()
	defer monitor.WSSessions.Dec()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			var netErr interface{ Timeout() bool }
			if errors.As(err, &netErr) && netErr.Timeout() {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "idle timeout, released"),
					time.Now().Add(time.Second))
			}
			s.log.Debug("Connection closed", zap.String("engine", id), zap.Error(err))
			return
		}

		var data []byte
		switch mt {
		case websocket.BinaryMessage:
			data = msg
		case websocket.TextMessage:
			data, err = decodeBase64Image(string(msg))
			if err != nil {
				_ = conn.WriteJSON(wsReply{Error: "invalid image: " + err.Error()})
				continue
			}
		default:
			_ = conn.WriteJSON(wsReply{Error: "unsupported message type"})
			continue
		}

		items, err := s.registry.DetectBytes(ctx, id, data)
		if err != nil {
			_ = conn.WriteJSON(wsReply{Error: err.Error()})
			if httpStatus(err) == http.StatusNotFound {
				return
			}
			continue
		}
		if items == nil {
			items = []iface.YoloItem{}
		}
		if err := conn.WriteJSON(wsReply{Data: items}); err != nil {
			return
		}
	}
}
