package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/ujianku/ujianku-backend/internal/config"
	"github.com/ujianku/ujianku-backend/internal/middleware"
	"github.com/ujianku/ujianku-backend/internal/service"
	ws "github.com/ujianku/ujianku-backend/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams live exam progress to monitoring gurus.
type WSHandler struct {
	rdb         *redis.Client
	examService *service.ExamService
	log         zerolog.Logger
	upgrader    websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, examService *service.ExamService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:         rdb,
		examService: examService,
		log:         log.With().Str("component", "ws_handler").Logger(),
		upgrader:    buildUpgrader(allowedOrigins),
	}
}

// MonitorExam godoc
// WS /ws/v1/guru/exams/:id/monitor?token=...
// Subscribes the guru to the exam's monitor channel and forwards every
// finalized-session event until the client disconnects.
func (h *WSHandler) MonitorExam(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	// Ownership check before the upgrade; a guru may only watch their
	// own exams.
	if _, err := h.examService.Get(c.Request.Context(), examID, claims.UserID); err != nil {
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	// The read loop answers pings while the select loop forwards events;
	// the wrapper keeps their writes from interleaving.
	conn := ws.Wrap(raw)
	defer conn.Close()

	wsLog := h.log.With().
		Int("guru_id", claims.UserID).
		Str("exam_id", examID.String()).
		Logger()
	wsLog.Info().Msg("Monitor connected")

	pubsub := h.rdb.Subscribe(c.Request.Context(), config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()

	done := make(chan struct{})

	// Read loop: consume pings and detect the client going away.
	go func() {
		defer close(done)
		for {
			var msg ws.RequestEnvelope
			if err := conn.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					wsLog.Warn().Err(err).Msg("Unexpected close")
				}
				return
			}
			switch msg.Action {
			case ws.ActionPing:
				_ = conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
			default:
				_ = conn.WriteError("unknown action")
			}
		}
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-done:
			wsLog.Info().Msg("Monitor disconnected")
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			err := conn.WriteTyped(ws.FinalizedEvent{
				Event:      ws.EventFinalized,
				Payload:    []byte(msg.Payload),
				ReceivedAt: time.Now(),
			})
			if err != nil {
				wsLog.Debug().Err(err).Msg("Monitor write failed")
				return
			}
		}
	}
}
