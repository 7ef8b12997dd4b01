package analyses

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/drewano/VocalAlchemy/internal/notify"
	"github.com/drewano/VocalAlchemy/internal/shared/server/middleware"
	"github.com/drewano/VocalAlchemy/internal/shared/server/respond"
	"github.com/drewano/VocalAlchemy/internal/shared/telemetry"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPingPeriod = 30 * time.Second
)

// StreamHandler upgrades clients to a websocket and forwards status events
// for one analysis until the job settles or the client disconnects.
type StreamHandler struct {
	Svc      *Service
	Notifier notify.Notifier
	Upgrader websocket.Upgrader
}

// NewStreamHandler constructs a StreamHandler.
func NewStreamHandler(svc *Service, notifier notify.Notifier) *StreamHandler {
	return &StreamHandler{
		Svc:      svc,
		Notifier: notifier,
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Cross-origin policy is enforced by the CORS layer in front.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Serve handles GET /analyses/:id/ws.
func (h *StreamHandler) Serve(c *gin.Context) {
	userID := middleware.UserIDFromContext(c)
	analysisID := c.Param("id")

	analysis, err := h.Svc.Get(c.Request.Context(), userID, analysisID)
	if err != nil {
		respond.Error(c, http.StatusNotFound, "not_found", "analysis not found", nil)
		return
	}

	events, cancel, err := h.Notifier.Subscribe(c.Request.Context(), analysisID)
	if err != nil {
		respond.Error(c, http.StatusInternalServerError, "internal_error", "failed to subscribe", nil)
		return
	}
	defer cancel()

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the handshake error.
		return
	}
	defer conn.Close()

	// Drain reads so close frames and pongs are processed.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Snapshot first so late subscribers see the current state.
	snapshot := notify.Event{
		AnalysisID: analysis.ID,
		Status:     string(analysis.Status),
		Error:      analysis.ErrorMessage,
		Progress:   analysis.Progress,
	}
	if err := h.write(conn, snapshot); err != nil {
		return
	}
	if Status(snapshot.Status).Terminal() {
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := h.write(conn, event); err != nil {
				telemetry.Warn("stream.write_failed", map[string]any{
					"analysis_id": analysisID,
					"error":       err.Error(),
				})
				return
			}
			if Status(event.Status).Terminal() {
				return
			}
		}
	}
}

func (h *StreamHandler) write(conn *websocket.Conn, event notify.Event) error {
	conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	return conn.WriteJSON(event)
}
