// Package gateway is the realtime surface of the server. The owner's
// devices connect to /app with their session token and receive private
// journal, sync and mint events; the shareable streak widget connects
// to /web and receives only anonymized gamification events. Broadcasts
// go through Redis pub/sub so every instance delivers them.
package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	pkgredis "github.com/clarity-app/core/internal/pkg/redis"
)

const (
	eventDeviceOnline  = "DEVICE_ONLINE"
	eventDeviceOffline = "DEVICE_OFFLINE"
)

// NewHub builds the hub. tokenValidator gates the /app namespace and
// receives the raw token from the socket handshake.
func NewHub(rc *pkgredis.Client, logger *zap.Logger, tokenValidator func(string) bool) *Hub {
	sio := socketio.NewServer(nil, nil)
	h := &Hub{
		sidRoom:        make(map[string]string),
		roomCount:      make(map[string]int),
		logSubs:        make(map[string]logSubscription),
		broadcast:      make(chan Message, 256),
		register:       make(chan clientMeta, 256),
		unregister:     make(chan clientMeta, 256),
		rc:             rc,
		logger:         logger,
		sio:            sio,
		tokenValidator: tokenValidator,
	}
	h.registerNamespaces()
	return h
}

// Run starts the hub loop and the Redis subscriber.
func (h *Hub) Run(ctx context.Context) {
	go h.subscribeRedis(ctx)

	for {
		select {
		case <-ctx.Done():
			h.sio.Close(nil)
			return

		case c := <-h.register:
			h.registerClient(c)

		case c := <-h.unregister:
			h.unregisterClient(c)

		case msg := <-h.broadcast:
			h.deliver(msg)
			channel := redisChanPublic
			if msg.Room == RoomOwner {
				channel = redisChanOwner
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if err := h.rc.Publish(ctx, channel, string(data)); err != nil && h.logger != nil {
				h.logger.Warn("gateway publish failed", zap.String("channel", channel), zap.Error(err))
			}
		}
	}
}

func (h *Hub) registerClient(c clientMeta) {
	announceDevices := false
	devicesOnline := 0

	h.mu.Lock()
	if oldRoom, ok := h.sidRoom[c.sid]; ok {
		if oldRoom == c.room {
			h.mu.Unlock()
			return
		}
		if h.roomCount[oldRoom] > 0 {
			h.roomCount[oldRoom]--
		}
	}

	h.sidRoom[c.sid] = c.room
	h.roomCount[c.room]++
	if c.room == RoomOwner {
		announceDevices = true
		devicesOnline = h.roomCount[RoomOwner]
	}
	h.mu.Unlock()

	if announceDevices {
		h.BroadcastOwner(eventDeviceOnline, newDeviceEventPayload(devicesOnline))
		h.updateDailyDeviceStats(devicesOnline)
	}
}

func (h *Hub) unregisterClient(c clientMeta) {
	announceDevices := false
	devicesOnline := 0

	h.mu.Lock()
	room, ok := h.sidRoom[c.sid]
	if !ok {
		h.mu.Unlock()
		return
	}

	delete(h.sidRoom, c.sid)
	if h.roomCount[room] > 0 {
		h.roomCount[room]--
	}
	if room == RoomOwner {
		announceDevices = true
		devicesOnline = h.roomCount[RoomOwner]
	}
	h.mu.Unlock()

	if announceDevices {
		h.BroadcastOwner(eventDeviceOffline, newDeviceEventPayload(devicesOnline))
	}
}

// updateDailyDeviceStats keeps two Redis hashes keyed by day: the peak
// number of simultaneously connected devices, and the raw connect count.
// The stats dashboard reads both.
func (h *Hub) updateDailyDeviceStats(devicesOnline int) {
	if devicesOnline < 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	dateKey := shortDateKey(time.Now())

	peak := 0
	current, err := h.rc.Raw().HGet(ctx, redisKeyMaxDevicesOnline, dateKey).Result()
	switch {
	case err == nil:
		if parsed, parseErr := strconv.Atoi(strings.TrimSpace(current)); parseErr == nil {
			peak = parsed
		}
	case err == redis.Nil:
		// no-op
	default:
		if h.logger != nil {
			h.logger.Warn("gateway get device peak failed", zap.Error(err))
		}
	}

	if devicesOnline > peak {
		if err := h.rc.Raw().HSet(ctx, redisKeyMaxDevicesOnline, dateKey, devicesOnline).Err(); err != nil && h.logger != nil {
			h.logger.Warn("gateway set device peak failed", zap.Error(err))
		}
	}

	if err := h.rc.Raw().HIncrBy(ctx, redisKeyDeviceConnects, dateKey, 1).Err(); err != nil && h.logger != nil {
		h.logger.Warn("gateway incr device connects failed", zap.Error(err))
	}
}

func shortDateKey(t time.Time) string {
	return t.Format("1-2-06")
}

func newDeviceEventPayload(online int) map[string]interface{} {
	return map[string]interface{}{
		"online":    online,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
}

// Broadcast sends an event to the given room, or to every client when
// room is empty.
func (h *Hub) Broadcast(event string, payload interface{}, room string) {
	h.broadcast <- Message{Event: event, Payload: payload, Room: room}
}

// BroadcastOwner sends to the owner's signed-in devices only.
func (h *Hub) BroadcastOwner(event string, payload interface{}) {
	h.Broadcast(event, payload, RoomOwner)
}

// BroadcastPublic sends to the streak widget viewers.
func (h *Hub) BroadcastPublic(event string, payload interface{}) {
	h.Broadcast(event, payload, RoomPublic)
}

// ClientCount returns the number of connected clients, optionally
// filtered by room.
func (h *Hub) ClientCount(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if room == "" {
		return len(h.sidRoom)
	}
	return h.roomCount[room]
}

// Handler returns the socket.io HTTP handler mounted at /socket.io.
func (h *Hub) Handler() http.Handler {
	return h.sio.ServeHandler(nil)
}
