package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/collinglass/blarg/internal/config"
	"github.com/collinglass/blarg/internal/feed"
	"github.com/collinglass/blarg/internal/identity"
	"github.com/collinglass/blarg/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades feed connections and hands them to the dispatcher.
type WSHandler struct {
	dispatcher *feed.Dispatcher
	provider   identity.Provider
	wsCfg      config.WebSocketConfig
}

func NewWSHandler(d *feed.Dispatcher, p identity.Provider, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		dispatcher: d,
		provider:   p,
		wsCfg:      wsCfg,
	}
}

// HandleWebSocket upgrades the request and starts the connection pumps. The
// upgrade itself is the CONNECT_FEED boundary event.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	who := h.provider.Identify(c.Request)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		l := log.Ctx(c.Request.Context())
		l.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	fc := h.dispatcher.Connect(c.Request.Context(), who.ConnectionID, who.Name)

	client := newWSClient(conn, fc, h.dispatcher, h.wsCfg)
	go client.writePump()
	go client.readPump()
}

// RegisterRoutes mounts the websocket endpoint.
func (h *WSHandler) RegisterRoutes(r *gin.Engine) {
	r.GET("/feed/ws", h.HandleWebSocket)
}
