// internal/handler/websocket_handler.go
package handler

import (
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"barcode-service/internal/config"
	"barcode-service/internal/events"
	"barcode-service/internal/model"
	"barcode-service/internal/service"
	"barcode-service/internal/utils"
)

const (
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 54 * time.Second
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 256
)

// WebSocketHandler streams scanner events to WebSocket clients
type WebSocketHandler struct {
	upgrader       websocket.Upgrader
	connections    *ConnectionManager
	scannerService *service.ScannerService
	bus            *events.Bus
	subscription   <-chan model.ScannerEvent
	logger         *utils.ServiceLogger

	relayDone chan struct{}
	closeOnce sync.Once
}

// NewWebSocketHandler creates a new WebSocket handler and starts relaying
// bus events to connected clients
func NewWebSocketHandler(
	scannerService *service.ScannerService,
	bus *events.Bus,
	security config.SecurityConfig,
	logger *zap.Logger,
) *WebSocketHandler {
	allowed := security.AllowedOrigins

	handler := &WebSocketHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return originAllowed(allowed, r.Header.Get("Origin"))
			},
		},
		connections:    NewConnectionManager(),
		scannerService: scannerService,
		bus:            bus,
		subscription:   bus.Subscribe(events.AllEvents),
		logger:         utils.NewServiceLogger(logger, "websocket-handler"),
		relayDone:      make(chan struct{}),
	}

	go handler.relay()

	return handler
}

// RegisterRoutes registers WebSocket routes
func (h *WebSocketHandler) RegisterRoutes(router *gin.RouterGroup) {
	// Every scanner's events
	router.GET("/events", h.HandleEventConnection)

	// One scanner's events, preceded by its current status
	router.GET("/scanners/:name", h.HandleScannerConnection)
}

// HandleEventConnection handles general event WebSocket connections
func (h *WebSocketHandler) HandleEventConnection(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := h.newClient(c, conn, clientTypeEvents, nil)
	h.connections.Register(client)
	h.logger.Info("Event WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("remote_addr", client.RemoteAddr),
	)

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// HandleScannerConnection handles scanner-specific WebSocket connections
func (h *WebSocketHandler) HandleScannerConnection(c *gin.Context) {
	name := c.Param("name")
	status, err := h.scannerService.Get(name)
	if err != nil {
		utils.ErrorResponse(c, http.StatusNotFound, "Scanner not found", err)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade WebSocket connection", zap.Error(err))
		return
	}

	client := h.newClient(c, conn, clientTypeScanner, &name)
	h.connections.Register(client)
	h.logger.Info("Scanner WebSocket client connected",
		zap.String("client_id", client.ID),
		zap.String("scanner", name),
		zap.String("remote_addr", client.RemoteAddr),
	)

	h.sendMessage(client, &WebSocketMessage{
		Type:      "initial_status",
		Data:      status,
		Timestamp: time.Now(),
	})

	go h.handleClientRead(client)
	go h.handleClientWrite(client)
}

// GetConnectionStats returns connection statistics
func (h *WebSocketHandler) GetConnectionStats() *ConnectionStats {
	return h.connections.GetStats()
}

// Close stops the relay and disconnects every client
func (h *WebSocketHandler) Close() {
	h.closeOnce.Do(func() {
		h.bus.Unsubscribe(events.AllEvents, h.subscription)
		<-h.relayDone
		h.connections.CloseAll()
	})
}

func (h *WebSocketHandler) newClient(c *gin.Context, conn *websocket.Conn, clientType string, scannerName *string) *Client {
	return &Client{
		ID:          uuid.New().String(),
		Connection:  conn,
		Send:        make(chan []byte, wsSendBuffer),
		Type:        clientType,
		ScannerName: scannerName,
		UserAgent:   c.Request.UserAgent(),
		RemoteAddr:  c.Request.RemoteAddr,
		ConnectedAt: time.Now(),
	}
}

// relay forwards bus events until the subscription is closed
func (h *WebSocketHandler) relay() {
	defer close(h.relayDone)

	for event := range h.subscription {
		message, err := json.Marshal(&WebSocketMessage{
			Type:      "scanner_event",
			Data:      event,
			Timestamp: event.Timestamp,
		})
		if err != nil {
			h.logger.Error("Failed to marshal broadcast message", zap.Error(err))
			continue
		}

		if dropped := h.connections.Broadcast(event, message); dropped > 0 {
			h.logger.Warn("Client send channel full during broadcast",
				zap.String("event_type", string(event.EventType)),
				zap.Int("dropped", dropped),
			)
		}
	}
}

// handleClientRead handles reading messages from WebSocket client
func (h *WebSocketHandler) handleClientRead(client *Client) {
	defer func() {
		h.connections.Unregister(client)
		client.Connection.Close()
	}()

	client.Connection.SetReadDeadline(time.Now().Add(wsPongWait))
	client.Connection.SetPongHandler(func(string) error {
		client.Connection.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		_, messageBytes, err := client.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Error("WebSocket read error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
			}
			return
		}

		var message WebSocketMessage
		if err := json.Unmarshal(messageBytes, &message); err != nil {
			h.sendError(client, "invalid message")
			continue
		}

		h.handleClientMessage(client, &message)
	}
}

// handleClientWrite handles writing messages to WebSocket client
func (h *WebSocketHandler) handleClientWrite(client *Client) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		client.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				client.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := client.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				h.logger.Debug("WebSocket write error",
					zap.Error(err),
					zap.String("client_id", client.ID),
				)
				return
			}

		case <-ticker.C:
			client.Connection.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := client.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handleClientMessage handles incoming client messages
func (h *WebSocketHandler) handleClientMessage(client *Client, message *WebSocketMessage) {
	switch message.Type {
	case "subscribe", "unsubscribe":
		eventType, ok := eventTypeFrom(message.Data)
		if !ok {
			h.sendError(client, "event_type is required")
			return
		}
		if message.Type == "subscribe" {
			client.Subscribe(eventType)
		} else {
			client.Unsubscribe(eventType)
		}
		h.sendMessage(client, &WebSocketMessage{
			Type: message.Type + "d",
			Data: map[string]interface{}{
				"event_type":    eventType,
				"subscriptions": client.Subscriptions(),
			},
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	case "ping":
		h.sendMessage(client, &WebSocketMessage{
			Type:      "pong",
			Timestamp: time.Now(),
			RequestID: message.RequestID,
		})
	default:
		h.sendError(client, "unknown message type: "+message.Type)
	}
}

// sendMessage sends a message to a client
func (h *WebSocketHandler) sendMessage(client *Client, message *WebSocketMessage) {
	messageBytes, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal WebSocket message", zap.Error(err))
		return
	}

	if !h.connections.Enqueue(client, messageBytes) {
		h.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", client.ID),
		)
	}
}

// sendError sends an error message to a client
func (h *WebSocketHandler) sendError(client *Client, errorMsg string) {
	h.sendMessage(client, &WebSocketMessage{
		Type: "error",
		Data: map[string]interface{}{
			"error": errorMsg,
		},
		Timestamp: time.Now(),
	})
}

func eventTypeFrom(data interface{}) (model.EventType, bool) {
	fields, ok := data.(map[string]interface{})
	if !ok {
		return "", false
	}
	value, ok := fields["event_type"].(string)
	if !ok || value == "" {
		return "", false
	}
	return model.EventType(value), true
}

// originAllowed accepts same-host clients (no Origin header) and any origin
// in the allow list. An empty list or "*" allows every origin.
func originAllowed(allowed []string, origin string) bool {
	if origin == "" || len(allowed) == 0 {
		return true
	}
	return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
}
