package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/ternarybob/arbor"

	"github.com/shortsmith/api/internal/model"
)

// OAuthTopic carries authorization prompts and outcomes.
const OAuthTopic = "oauth"

// Client represents a WebSocket client
type Client struct {
	Topic string
	Conn  *websocket.Conn
	Send  chan []byte
}

// Hub fans out messages to the clients subscribed to a topic. Job updates
// use the job id as topic.
type Hub struct {
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	logger arbor.ILogger
	mu     sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	Topic   string
	Message []byte
}

// NewHub creates a new Hub
func NewHub(logger arbor.ILogger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.Topic] == nil {
				h.clients[client.Topic] = make(map[*Client]bool)
			}
			h.clients[client.Topic][client] = true
			h.mu.Unlock()
			h.logger.Debug().Str("topic", client.Topic).Msg("WebSocket client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()
			h.logger.Debug().Str("topic", client.Topic).Msg("WebSocket client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.Topic] {
				select {
				case client.Send <- msg.Message:
				default:
					// slow consumer
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Stop ends Run.
func (h *Hub) Stop() {
	close(h.done)
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.Topic]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.Send)
	if len(clients) == 0 {
		delete(h.clients, client.Topic)
	}
}

// Subscribers returns how many clients listen on topic.
func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// BroadcastProgress announces a job status change
func (h *Hub) BroadcastProgress(jobID string, status model.JobStatus, step string) {
	h.publish(jobID, model.WSProgressMessage{
		Type:   model.WSMessageTypeProgress,
		JobID:  jobID,
		Status: status,
		Step:   step,
	})
}

// BroadcastComplete sends the succeeded job to its subscribers
func (h *Hub) BroadcastComplete(job *model.Job) {
	h.publish(job.ID, model.WSCompleteMessage{
		Type:  model.WSMessageTypeComplete,
		JobID: job.ID,
		Job:   job,
	})
}

// BroadcastError sends an error message to all job subscribers
func (h *Hub) BroadcastError(jobID string, code, message string) {
	h.publish(jobID, model.WSErrorMessage{
		Type:  model.WSMessageTypeError,
		JobID: jobID,
		Error: model.WSError{
			Code:    code,
			Message: message,
		},
	})
}

// BroadcastOAuthRequired asks connected clients to open the consent window
func (h *Hub) BroadcastOAuthRequired(state, authorizationURL string) {
	h.publish(OAuthTopic, model.WSOAuthRequiredMessage{
		Type:             model.WSMessageTypeOAuthRequired,
		State:            state,
		AuthorizationURL: authorizationURL,
	})
}

// BroadcastOAuthResolved reports the outcome of an authorization attempt
func (h *Hub) BroadcastOAuthResolved(res *model.Resolution) {
	h.publish(OAuthTopic, model.WSOAuthResolvedMessage{
		Type:       model.WSMessageTypeOAuthResolved,
		Resolution: res,
	})
}

func (h *Hub) publish(topic string, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal websocket message")
		return
	}

	select {
	case h.broadcast <- &BroadcastMessage{Topic: topic, Message: data}:
	default:
		h.logger.Warn().Str("topic", topic).Msg("Broadcast queue full, dropping message")
	}
}

// HandleConnection serves one WebSocket connection subscribed to topic
func (h *Hub) HandleConnection(c *websocket.Conn, topic string) {
	client := &Client{
		Topic: topic,
		Conn:  c,
		Send:  make(chan []byte, 256),
	}

	h.Register(client)
	defer h.Unregister(client)

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("topic", topic).Msg("WebSocket error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		if msg.Type == model.WSMessageTypePing {
			pong, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			select {
			case client.Send <- pong:
			default:
			}
		}
	}
}
