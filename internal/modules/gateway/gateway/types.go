package gateway

import (
	"sync"

	socketio "github.com/zishang520/socket.io/v2/socket"
	"go.uber.org/zap"

	pkgredis "github.com/clarity-app/core/internal/pkg/redis"
)

const (
	// RoomOwner holds the owner's signed-in devices. RoomPublic holds
	// anonymous viewers of the shareable streak widget.
	RoomOwner  = "owner"
	RoomPublic = "public"

	namespaceApp = "/app"
	namespaceWeb = "/web"

	redisChanOwner  = "clarity:gateway:owner"
	redisChanPublic = "clarity:gateway:public"

	redisKeyMaxDevicesOnline = "clarity:devices:max_online"
	redisKeyDeviceConnects   = "clarity:devices:connects"

	logSnapshotChunkSize = 32 * 1024
)

// Message is the envelope used by hub broadcasts and Redis fan-out.
type Message struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
	Code    *int        `json:"code,omitempty"`
	Room    string      `json:"room,omitempty"`
}

type gatewayPayload struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
	Code *int        `json:"code,omitempty"`
}

type clientMeta struct {
	sid  string
	room string
}

type logSubscription struct {
	streamID int
	stopCh   chan struct{}
}

// Hub manages the socket.io namespaces and cross-instance fan-out.
type Hub struct {
	mu sync.RWMutex

	sidRoom   map[string]string
	roomCount map[string]int

	logSubMu sync.Mutex
	logSubs  map[string]logSubscription

	broadcast  chan Message
	register   chan clientMeta
	unregister chan clientMeta

	rc             *pkgredis.Client
	logger         *zap.Logger
	sio            *socketio.Server
	tokenValidator func(string) bool
}
