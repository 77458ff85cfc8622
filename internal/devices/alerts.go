package devices

import "github.com/ktiyab/coheara/internal/metrics"

// RegisterSender installs a device's outgoing-message channel, called by
// the WebSocket hub once the connection is upgraded and authenticated.
func (r *Registry) RegisterSender(deviceID string, sender Sender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[deviceID] = sender
	if c, ok := r.active[deviceID]; ok {
		c.HasWebSocket = true
		r.active[deviceID] = c
	}
}

// UnregisterSender removes a device's channel (on disconnect).
func (r *Registry) UnregisterSender(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.senders, deviceID)
	if c, ok := r.active[deviceID]; ok {
		c.HasWebSocket = false
		r.active[deviceID] = c
	}
	metrics.DeleteWSQueueDepth(deviceID)
}

// SenderFor returns a device's outgoing channel, for sending outside the
// registry's lock.
func (r *Registry) SenderFor(deviceID string) (Sender, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[deviceID]
	return s, ok
}

// AllSenders returns every connected device's channel, for broadcast.
func (r *Registry) AllSenders() map[string]Sender {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Sender, len(r.senders))
	for id, s := range r.senders {
		out[id] = s
	}
	return out
}

// SendOrQueue attempts a non-blocking delivery through the device's
// channel; if it has none, or the channel is full, msg is queued instead
// (dropped once the queue reaches MaxPendingAlerts, spec §4.10).
func (r *Registry) SendOrQueue(deviceID string, msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sendOrQueueLocked(deviceID, msg)
}

func (r *Registry) sendOrQueueLocked(deviceID string, msg any) {
	if sender, ok := r.senders[deviceID]; ok {
		select {
		case sender <- msg:
			return
		default:
		}
	}
	queue := r.pendingAlerts[deviceID]
	if len(queue) < MaxPendingAlerts {
		queue = append(queue, msg)
		r.pendingAlerts[deviceID] = queue
	}
	// Silently drop once at capacity, matching device_manager.rs.
	metrics.SetWSQueueDepth(deviceID, len(queue))
}

// FlushPending drains a device's queued messages through its channel,
// stopping at the first delivery failure (message stays queued).
func (r *Registry) FlushPending(deviceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sender, ok := r.senders[deviceID]
	if !ok {
		return
	}
	queue := r.pendingAlerts[deviceID]
	i := 0
	for ; i < len(queue); i++ {
		select {
		case sender <- queue[i]:
		default:
			goto drained
		}
	}
drained:
	if i == len(queue) {
		delete(r.pendingAlerts, deviceID)
		metrics.SetWSQueueDepth(deviceID, 0)
	} else {
		r.pendingAlerts[deviceID] = queue[i:]
		metrics.SetWSQueueDepth(deviceID, len(queue)-i)
	}
}

// PendingCount reports how many messages are queued for a device.
func (r *Registry) PendingCount(deviceID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pendingAlerts[deviceID])
}

// Broadcast sends msg to every non-revoked paired device, queuing for
// any that are currently disconnected.
func (r *Registry) Broadcast(msg any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, d := range r.devices {
		if d.IsRevoked {
			continue
		}
		r.sendOrQueueLocked(id, msg)
	}
}
