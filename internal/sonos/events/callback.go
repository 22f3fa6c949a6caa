package events

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// NotifyMethod is the GENA event delivery verb.
const NotifyMethod = "NOTIFY"

func init() {
	chi.RegisterMethod(NotifyMethod)
}

// CallbackHandler handles UPnP NOTIFY events from Sonos devices.
type CallbackHandler struct {
	manager *Manager
}

// NewCallbackHandler creates a new callback handler.
func NewCallbackHandler(manager *Manager) *CallbackHandler {
	return &CallbackHandler{
		manager: manager,
	}
}

// ServeHTTP handles incoming NOTIFY requests.
func (h *CallbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != NotifyMethod {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sid := r.Header.Get("SID")
	seq := ParseSEQ(r.Header.Get("SEQ"))

	if sid == "" {
		http.Error(w, "Missing SID", http.StatusBadRequest)
		return
	}
	if r.Header.Get("NT") != "upnp:event" {
		http.Error(w, "Invalid NT", http.StatusBadRequest)
		return
	}
	if r.Header.Get("NTS") != "upnp:propchange" {
		http.Error(w, "Invalid NTS", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusInternalServerError)
		return
	}

	if h.manager != nil {
		h.manager.handleNotify(sid, seq, InferServiceTypeFromPath(r.URL.Path), extractSourceIP(r), body)
	}

	// Devices drop the subscription after repeated non-200 replies.
	w.WriteHeader(http.StatusOK)
}

// extractSourceIP extracts the source IP from the request.
func extractSourceIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	addr := r.RemoteAddr
	if colonIdx := strings.LastIndex(addr, ":"); colonIdx != -1 {
		return addr[:colonIdx]
	}
	return addr
}

// RegisterCallbackRoutes registers the NOTIFY callback routes.
func RegisterCallbackRoutes(router chi.Router, handler *CallbackHandler) {
	router.Method(NotifyMethod, "/upnp/notify", handler)
	router.Method(NotifyMethod, "/upnp/notify/avtransport", handler)
	router.Method(NotifyMethod, "/upnp/notify/renderingcontrol", handler)
	router.Method(NotifyMethod, "/upnp/notify/topology", handler)
}

// handleNotify processes one NOTIFY delivery for a known subscription.
func (m *Manager) handleNotify(sid string, seq int, serviceType ServiceType, sourceIP string, body []byte) {
	m.mu.Lock()
	m.stats.EventsReceived++
	m.mu.Unlock()

	sub := m.findSubscriptionBySID(sid)
	if sub == nil {
		m.logger.Printf("UPNP: Received event for unknown SID: %s", sid)
		return
	}

	if seq > 0 && sub.SEQ > 0 && seq != sub.SEQ+1 {
		m.logger.Printf("UPNP: Sequence gap on %s: expected %d, got %d", sid, sub.SEQ+1, seq)
	}
	m.updateSubscriptionSEQ(sid, seq)

	// The subscription knows the service even when the path does not.
	if sub.ServiceType != "" {
		serviceType = sub.ServiceType
	}

	event, err := ParseNotifyBody(body, serviceType)
	if err != nil {
		m.logger.Printf("UPNP: Failed to parse %s event from %s: %v", serviceType, sourceIP, err)
		return
	}
	event.SID = sid
	event.SEQ = seq
	event.DeviceIP = sourceIP

	m.dispatch(event, sub.DeviceUDN)

	m.mu.Lock()
	m.stats.EventsProcessed++
	m.stats.LastEventAt = m.now()
	m.mu.Unlock()
}

// dispatch forwards a parsed event to the sink.
func (m *Manager) dispatch(event *NotifyEvent, deviceUDN string) {
	if m.sink == nil {
		return
	}

	switch {
	case event.Transport != nil:
		m.sink.TransportEvent(deviceUDN, *event.Transport)
	case event.Rendering != nil:
		m.sink.RenderingEvent(deviceUDN, *event.Rendering)
	case event.Topology != nil:
		m.sink.TopologyEvent(deviceUDN, *event.Topology)
	}
}
