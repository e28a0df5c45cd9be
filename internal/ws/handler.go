package ws

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/songline-backend/internal/hub"
	"github.com/DoyleJ11/songline-backend/internal/types"
)

const (
	writeTimeout      = 3 * time.Second
	pingInterval      = 30 * time.Second
	pingTimeout       = 10 * time.Second
	disconnectTimeout = 5 * time.Second
	maxFrameBytes     = 64 << 10
)

// Handler upgrades the request and pumps frames between the socket and the hub until either
// side gives up.
func Handler(h *hub.Hub, logger *zap.Logger, originPatterns []string) http.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
		if err != nil {
			logger.Debug("websocket accept failed", zap.Error(err))
			return
		}
		ws.SetReadLimit(maxFrameBytes)

		ctx, cancel := context.WithCancel(r.Context())
		c := newConn(uuid.NewString(), cancel)
		log := logger.With(zap.String("conn_id", c.id))
		h.Attach(c)
		log.Debug("connection opened")

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			writeLoop(ctx, ws, c, log)
		}()
		go keepAlive(ctx, ws, cancel)

		readLoop(ctx, ws, h, c, log)

		cancel()
		c.close()
		<-writerDone

		dctx, dcancel := context.WithTimeout(context.Background(), disconnectTimeout)
		h.Disconnect(dctx, c.id)
		dcancel()
		_ = ws.Close(websocket.StatusNormalClosure, "bye")
		log.Debug("connection closed")
	}
}

func readLoop(ctx context.Context, ws *websocket.Conn, h *hub.Hub, c *conn, log *zap.Logger) {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			default:
				if !errors.Is(err, context.Canceled) {
					log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		m, err := types.Decode(data)
		if err != nil {
			h.ReportInvalid(c.id, err)
			continue
		}
		_ = h.Dispatch(ctx, c.id, m)
	}
}

func writeLoop(ctx context.Context, ws *websocket.Conn, c *conn, log *zap.Logger) {
	for data := range c.out {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := ws.Write(wctx, websocket.MessageText, data)
		cancel()
		if err != nil {
			log.Debug("write failed", zap.Error(err))
			c.kill()
			return
		}
	}
}

func keepAlive(ctx context.Context, ws *websocket.Conn, kill context.CancelFunc) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := ws.Ping(pctx)
			cancel()
			if err != nil {
				kill()
				return
			}
		}
	}
}
