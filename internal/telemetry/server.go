// Package telemetry implements the publish surface: /healthz, /metrics, and
// a read-only /stream of event-bus activity. Trimmed to a publish-only
// surface — no control/mutation routes, since operator chat and dashboards
// are external collaborators, not components this module owns. The
// CORS-permissive router setup follows a SetupRouter pattern, and the
// websocket fan-out follows a Hub pattern, with each stream client
// subscribing to the bus directly instead of draining a single shared
// broadcast channel.
package telemetry

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sniperbot/engine/internal/eventbus"
	"github.com/sniperbot/engine/pkg/models"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// streamTopics is every topic a dashboard client receives on /stream.
var streamTopics = []models.Topic{
	models.TopicPoolDetected,
	models.TopicScored,
	models.TopicPositionOpened,
	models.TopicPositionUpdated,
	models.TopicPositionClosed,
	models.TopicSellFailed,
	models.TopicBalanceChanged,
	models.TopicAlert,
}

// HealthReporter reports whether upstream dependencies (RPC pool, wallet)
// are currently usable.
type HealthReporter interface {
	Healthy() (bool, string)
}

// Server is the read-only publish surface: health, metrics, and a streamed
// feed of every bus topic.
type Server struct {
	bus     *eventbus.Bus
	health  HealthReporter
	engine  *gin.Engine
	httpSrv *http.Server
}

func NewServer(bus *eventbus.Bus, health HealthReporter, port string) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	s := &Server{bus: bus, health: health, engine: router}
	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/stream", s.handleStream)

	s.httpSrv = &http.Server{Addr: ":" + port, Handler: router}
	return s
}

// corsMiddleware allows any origin to read the publish surface; there is
// nothing mutable behind it for a cross-origin caller to abuse.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// Run blocks serving HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	healthy, detail := true, "ok"
	if s.health != nil {
		healthy, detail = s.health.Healthy()
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "detail": detail})
}

// handleStream upgrades to a websocket and forwards every event published on
// streamTopics until the client disconnects.
func (s *Server) handleStream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[telemetry] upgrade: %v", err)
		return
	}
	defer conn.Close()

	subs := make([]*eventbus.Subscription, 0, len(streamTopics))
	for _, topic := range streamTopics {
		subs = append(subs, s.bus.Subscribe(topic))
	}
	defer func() {
		for _, sub := range subs {
			sub.Unsubscribe()
		}
	}()

	merged := make(chan any, 256)
	done := make(chan struct{})
	for _, sub := range subs {
		go func(sub *eventbus.Subscription) {
			for payload := range sub.C {
				select {
				case merged <- payload:
				case <-done:
					return
				}
			}
		}(sub)
	}

	// Drain client reads only to detect disconnects; the stream is
	// write-only from the server's perspective.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				close(done)
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case payload := <-merged:
			body, err := json.Marshal(payload)
			if err != nil {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, body); err != nil {
				return
			}
		}
	}
}
