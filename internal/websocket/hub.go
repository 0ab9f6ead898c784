package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"church-portal-be/internal/identity"
	"church-portal-be/internal/model"
	"church-portal-be/internal/pkg/logger"
	"church-portal-be/internal/pkg/metrics"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	clusterChannel = "cluster_events"
	broadcastGroup = "*"
)

// Hub tracks live connections and the broadcast groups they joined. Pushes are delivered
// locally and relayed through Redis to the other instances when Redis is configured.
type Hub struct {
	clients map[*Client]struct{}
	groups  map[string]map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	rdb        *redis.Client
	instanceID string

	logger logger.ILogger
}

// clusterMessage is what instances exchange on the Redis channel.
type clusterMessage struct {
	Origin  string          `json:"origin"`
	Group   string          `json:"group"`
	Message json.RawMessage `json:"message"`
}

// pushMessage is the server-initiated frame; it never carries an envelope id.
type pushMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		groups:     make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rdb:        rdb,
		instanceID: uuid.NewString(),
		logger:     log,
	}
}

// Run serves register and unregister requests until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			metrics.ConnectionOpened()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"connection_id": client.id})

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				for group := range client.groups {
					h.removeFromGroup(group, client)
				}
				client.groups = nil
				metrics.ConnectionClosed()
			}
			h.mu.Unlock()
			h.logger.Info("Hub", "Client unregistered", map[string]interface{}{"connection_id": client.id})
		}
	}
}

func (h *Hub) add(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

func (h *Hub) remove(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join adds client to group. Joining twice is a no-op.
func (h *Hub) Join(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.groups == nil {
		return
	}
	members, ok := h.groups[group]
	if !ok {
		members = make(map[*Client]struct{})
		h.groups[group] = members
	}
	members[client] = struct{}{}
	client.groups[group] = struct{}{}
}

// Leave removes client from group. Leaving a group never joined is a no-op.
func (h *Hub) Leave(client *Client, group string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if client.groups == nil {
		return
	}
	delete(client.groups, group)
	h.removeFromGroup(group, client)
}

// removeFromGroup expects h.mu held.
func (h *Hub) removeFromGroup(group string, client *Client) {
	if members, ok := h.groups[group]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.groups, group)
		}
	}
}

// GroupSize reports how many local connections are in group.
func (h *Hub) GroupSize(group string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.groups[group])
}

// Send (NotificationDelivery interface implementation) pushes to every connection of userID.
func (h *Hub) Send(userID string, notification model.Notification) {
	h.PublishToGroup(identity.UserGroup(userID), "notification", notification)
}

// Broadcast sends a notification to all connected clients.
func (h *Hub) Broadcast(notification model.Notification) {
	h.PublishToGroup(broadcastGroup, "notification", notification)
}

// PublishToGroup delivers a push frame to the group's local members and relays it to the
// other instances.
func (h *Hub) PublishToGroup(group, msgType string, data interface{}) {
	payload, err := json.Marshal(pushMessage{Type: msgType, Data: data})
	if err != nil {
		h.logger.Error("Hub", "Failed to encode push message", map[string]interface{}{"group": group, "error": err})
		return
	}

	h.deliver(group, payload)

	if h.rdb != nil {
		relay, _ := json.Marshal(clusterMessage{Origin: h.instanceID, Group: group, Message: payload})
		if err := h.rdb.Publish(context.Background(), clusterChannel, relay).Err(); err != nil {
			h.logger.Warn("Hub", "Failed to relay push to cluster", map[string]interface{}{"group": group, "error": err})
		}
	}
}

func (h *Hub) deliver(group string, payload []byte) {
	h.mu.RLock()
	var targets []*Client
	if group == broadcastGroup {
		targets = make([]*Client, 0, len(h.clients))
		for c := range h.clients {
			targets = append(targets, c)
		}
	} else {
		targets = make([]*Client, 0, len(h.groups[group]))
		for c := range h.groups[group] {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		if !client.push(payload) {
			h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{
				"connection_id": client.id,
				"group":         group,
			})
		}
	}
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		h.logger.Error("Hub", "Redis subscribe failed, cluster fan-out disabled", map[string]interface{}{"error": err})
		return
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var relay clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &relay); err != nil {
				h.logger.Warn("Hub", "Redis msg parse error", map[string]interface{}{"error": err})
				continue
			}
			if relay.Origin == h.instanceID {
				continue
			}
			h.deliver(relay.Group, relay.Message)
		}
	}
}
