package ws

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ktiyab/coheara/internal/corestate"
	"github.com/ktiyab/coheara/internal/devices"
)

// TicketConsumer validates a ticket query parameter and returns the
// device it was minted for. internal/httpapi.ConsumeTicket satisfies
// this; the interface exists so this package doesn't import httpapi
// (which already imports corestate, avoiding a cycle back through ws).
type TicketConsumer func(ticket string) (deviceID string, err error)

// Hub upgrades authenticated WebSocket connections and runs each
// connection's read/write pump. One Hub serves every paired device.
type Hub struct {
	state         *corestate.State
	consumeTicket TicketConsumer
	heartbeat     time.Duration
	upgrader      websocket.Upgrader
}

// NewHub builds a Hub. heartbeat is how often a server-initiated
// heartbeat is sent down an idle connection (spec §4.10).
func NewHub(state *corestate.State, consumeTicket TicketConsumer, heartbeat time.Duration) *Hub {
	return &Hub{
		state:         state,
		consumeTicket: consumeTicket,
		heartbeat:     heartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP is the GET /ws/connect?ticket=... handler (spec §6).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ticket := r.URL.Query().Get("ticket")
	if ticket == "" {
		http.Error(w, "missing ticket", http.StatusUnauthorized)
		return
	}
	deviceID, err := h.consumeTicket(ticket)
	if err != nil {
		http.Error(w, "invalid ticket", http.StatusUnauthorized)
		return
	}

	registry, err := h.state.Devices()
	if err != nil {
		http.Error(w, "profile locked", http.StatusServiceUnavailable)
		return
	}
	device, ok := registry.GetDevice(deviceID)
	if !ok || device.IsRevoked {
		http.Error(w, "device not paired", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	h.serve(conn, registry, deviceID, device.DeviceName)
}

// serve runs one connection's lifetime: registers its sender, sends
// Welcome, flushes anything queued while it was offline, then drives a
// writer loop (outgoing channel + heartbeat ticker) alongside a reader
// loop (incoming frames), until either side closes.
func (h *Hub) serve(conn *websocket.Conn, registry *devices.Registry, deviceID, deviceName string) {
	defer conn.Close()

	outgoing := make(chan any, 64)
	registry.RegisterSender(deviceID, outgoing)
	registry.RegisterConnection(deviceID, conn.RemoteAddr().String())
	defer func() {
		registry.UnregisterSender(deviceID)
		registry.UnregisterConnection(deviceID)
	}()

	sess, err := h.state.Active()
	if err != nil {
		return
	}
	welcome := Welcome(sess.Name(), sess.ProfileID().String(), devices.DefaultReconnectionPolicy())
	if err := conn.WriteJSON(welcome); err != nil {
		return
	}

	registry.FlushPending(deviceID)

	done := make(chan struct{})
	go h.readLoop(conn, registry, deviceID, done)
	h.writeLoop(conn, outgoing, done)
}

// readLoop processes phone→server frames. Only Ready/Pong/ChatQuery/
// ChatFeedback are recognized (spec §4.10); unrecognized frames are
// ignored rather than closing the connection.
func (h *Hub) readLoop(conn *websocket.Conn, registry *devices.Registry, deviceID string, done chan struct{}) {
	defer close(done)
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		registry.Touch(deviceID)

		in, err := ParseIncoming(raw)
		if err != nil {
			continue
		}
		switch in.Type {
		case IncomingReady, IncomingPong:
			// Liveness only; no response required.
		case IncomingChatQuery, IncomingChatFeedback:
			// Chat generation lives outside C11's scope (no model-serving
			// component is named among the infrastructure pieces this
			// package grounds on); frames are read and dropped: nothing
			// is routed to a responder and no reply is sent.
		}
	}
}

// writeLoop drains the per-device outgoing channel onto the socket and
// emits a periodic heartbeat; it exits when either the reader loop ends
// (done closes) or a write fails.
func (h *Hub) writeLoop(conn *websocket.Conn, outgoing <-chan any, done chan struct{}) {
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg := <-outgoing:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := conn.WriteJSON(Heartbeat(time.Now())); err != nil {
				return
			}
		}
	}
}
