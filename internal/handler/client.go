package handler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"

	"github.com/collinglass/blarg/internal/config"
	"github.com/collinglass/blarg/internal/domain"
	"github.com/collinglass/blarg/internal/feed"
	"github.com/collinglass/blarg/pkg/log"
)

// wsClient bridges one websocket to its feed connection: the read pump turns
// frames into envelopes for the dispatcher, the write pump drains the feed
// queue back to the socket. Separating the two avoids head-of-line blocking
// when a client is slow.
type wsClient struct {
	conn       *websocket.Conn
	feedConn   *feed.Conn
	dispatcher *feed.Dispatcher
	cfg        config.WebSocketConfig
}

func newWSClient(conn *websocket.Conn, fc *feed.Conn, d *feed.Dispatcher, cfg config.WebSocketConfig) *wsClient {
	return &wsClient{
		conn:       conn,
		feedConn:   fc,
		dispatcher: d,
		cfg:        cfg,
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.dispatcher.Disconnect(context.Background(), c.feedConn)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldConnID, c.feedConn.ID).Msg("websocket read error")
			}
			break
		}

		var ev domain.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			c.feedConn.Enqueue(domain.NewErrorEvent(domain.ErrKindBadRequest, "invalid envelope"))
			continue
		}
		ev.Sender = c.feedConn.ID

		c.dispatcher.Dispatch(context.Background(), c.feedConn, &ev)
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.feedConn.Events():
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				l := log.L()
				l.Error().Err(err).Str(log.FieldEvent, string(ev.Type)).Msg("failed to marshal outbound event")
				continue
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(data)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
