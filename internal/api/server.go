package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/terminal-bench/gridflow/internal/alertstore"
	"github.com/terminal-bench/gridflow/internal/engine"
	"github.com/terminal-bench/gridflow/pkg/messaging"
)

// Server exposes the engine over HTTP: read-only frame/tooltip endpoints,
// a websocket frame stream, and an authenticated control surface for the
// embedding application's pushed inputs.
type Server struct {
	router    *gin.Engine
	engine    *engine.Engine
	hub       *engine.Hub
	alerts    *alertstore.Store
	jwtSecret []byte
	log       *zap.Logger
	upgrader  websocket.Upgrader
}

// NewServer builds the router.
func NewServer(eng *engine.Engine, hub *engine.Hub, alerts *alertstore.Store, jwtSecret string, log *zap.Logger) *Server {
	s := &Server{
		router:    gin.New(),
		engine:    eng,
		hub:       hub,
		alerts:    alerts,
		jwtSecret: []byte(jwtSecret),
		log:       log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	s.router.Use(gin.Recovery())
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})

	v1 := s.router.Group("/api/v1")
	{
		v1.GET("/frame", s.getFrame)
		v1.GET("/tooltip", s.getTooltip)
		v1.GET("/capacities", s.getCapacities)
		v1.GET("/staleness", s.getStaleness)

		control := v1.Group("", s.authMiddleware())
		{
			control.POST("/semantic", s.postSemantic)
			control.POST("/display", s.postDisplay)
			control.POST("/alerts/:id/ack", s.ackAlert)
		}
	}

	s.router.GET("/ws/frames", s.handleWebSocket)
}

// Handler returns the http handler for server wiring.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) getFrame(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Scene())
}

func (s *Server) getTooltip(c *gin.Context) {
	x, errX := strconv.ParseFloat(c.Query("x"), 64)
	y, errY := strconv.ParseFloat(c.Query("y"), 64)
	if errX != nil || errY != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "x and y must be numeric"})
		return
	}
	tip, ok := s.engine.Tooltip(x, y)
	if !ok {
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, tip)
}

func (s *Server) getCapacities(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Capacities())
}

func (s *Server) getStaleness(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.StalenessNow(time.Now()))
}

func (s *Server) postSemantic(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	upd, err := messaging.DecodeSemantic(body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed semantic payload"})
		return
	}
	s.engine.SetSemantic(upd)
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) postDisplay(c *gin.Context) {
	var upd messaging.DisplayUpdate
	if err := c.ShouldBindJSON(&upd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.engine.SetDisplay(upd)
	c.JSON(http.StatusOK, gin.H{"status": "accepted"})
}

func (s *Server) ackAlert(c *gin.Context) {
	ackAt, err := s.alerts.Acknowledge(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ack_ts": ackAt})
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.ServeWS(c.Request.Context(), conn)
}

// authMiddleware checks a bearer token signed with the shared control-surface
// secret. Read endpoints stay open; only pushed inputs require it.
func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		_, err := jwt.Parse(token, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return s.jwtSecret, nil
		})
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Next()
	}
}
