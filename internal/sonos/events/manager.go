package events

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// Manager owns the GENA subscriptions for every zone player and forwards
// parsed NOTIFY events to its Sink.
type Manager struct {
	config    ManagerConfig
	subClient *SubscriptionClient
	sink      Sink
	logger    *log.Logger

	mu            sync.RWMutex
	subscriptions map[string]*Subscription            // SID -> subscription
	devices       map[string]*DeviceSubscriptionState // device IP -> state
	callbackURL   string
	port          int

	stopCh  chan struct{}
	stopped bool
	stats   ManagerStats

	now func() time.Time
}

// NewManager creates a manager delivering parsed events to sink. port is
// the HTTP server port that serves the NOTIFY callback routes.
func NewManager(config ManagerConfig, port int, sink Sink, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	return &Manager{
		config:        config,
		subClient:     NewSubscriptionClient(10 * time.Second),
		sink:          sink,
		logger:        logger,
		subscriptions: make(map[string]*Subscription),
		devices:       make(map[string]*DeviceSubscriptionState),
		port:          port,
		stopCh:        make(chan struct{}),
		stats:         ManagerStats{Enabled: config.Enabled},
		now:           time.Now,
	}
}

// Start resolves the callback URL and starts the renewal loop.
func (m *Manager) Start() error {
	if !m.config.Enabled {
		m.logger.Printf("UPNP: Event subscriptions disabled")
		return nil
	}

	host := m.config.CallbackHost
	if host == "" {
		discovered, err := discoverLocalIP()
		if err != nil {
			return fmt.Errorf("discover local IP: %w", err)
		}
		host = discovered
	}
	port := m.port
	if m.config.CallbackPort > 0 {
		port = m.config.CallbackPort
	}

	m.mu.Lock()
	m.callbackURL = fmt.Sprintf("http://%s/upnp/notify", net.JoinHostPort(host, fmt.Sprint(port)))
	m.mu.Unlock()

	m.logger.Printf("UPNP: Event manager started, callback URL: %s", m.CallbackURL())
	go m.renewalLoop()
	return nil
}

// Stop unsubscribes everything and stops the renewal loop.
func (m *Manager) Stop(ctx context.Context) error {
	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return nil
	}
	m.stopped = true
	close(m.stopCh)
	subs := make([]*Subscription, 0, len(m.subscriptions))
	for _, sub := range m.subscriptions {
		subs = append(subs, sub)
	}
	m.mu.Unlock()

	for _, sub := range subs {
		_ = m.subClient.Unsubscribe(ctx, sub.DeviceIP, EventPaths()[sub.ServiceType], sub.SID)
		m.removeSubscription(sub.SID)
	}

	m.logger.Printf("UPNP: Event manager stopped")
	return nil
}

// SubscribeDevice subscribes to every configured service the device is
// not yet subscribed to. Repeated failures back off exponentially.
func (m *Manager) SubscribeDevice(ctx context.Context, deviceIP, deviceUDN string) error {
	if !m.config.Enabled {
		return nil
	}

	missing, ok := m.beginAttempt(deviceIP, deviceUDN)
	if !ok {
		return nil
	}

	paths := EventPaths()
	var errs []error
	for _, serviceType := range missing {
		path, known := paths[serviceType]
		if !known {
			continue
		}
		callbackURL := m.serviceCallbackURL(serviceType)

		sid, timeout, err := m.subClient.Subscribe(ctx, deviceIP, path, callbackURL, m.config.SubscriptionTimeout)
		if err != nil {
			m.logger.Printf("UPNP: Failed to subscribe %s on %s: %v", serviceType, deviceIP, err)
			errs = append(errs, fmt.Errorf("%s: %w", serviceType, err))
			continue
		}

		now := m.now()
		m.addSubscription(&Subscription{
			SID:          sid,
			DeviceIP:     deviceIP,
			DeviceUDN:    deviceUDN,
			ServiceType:  serviceType,
			CallbackURL:  callbackURL,
			Timeout:      timeout,
			SubscribedAt: now,
			RenewAt:      now.Add(m.renewIn(timeout)),
		})
		m.logger.Printf("UPNP: Subscribed to %s on %s (SID: %s, timeout: %ds)", serviceType, deviceIP, sid, timeout)
	}

	m.finishAttempt(deviceIP, len(errs), len(missing))
	return errors.Join(errs...)
}

// beginAttempt returns the services still missing for the device, or
// false when it is fully subscribed or backing off.
func (m *Manager) beginAttempt(deviceIP, deviceUDN string) ([]ServiceType, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	state := m.devices[deviceIP]
	if state == nil {
		state = &DeviceSubscriptionState{
			DeviceIP:     deviceIP,
			DeviceUDN:    deviceUDN,
			Services:     make(map[ServiceType]string),
			SubscribedAt: m.now(),
		}
		m.devices[deviceIP] = state
	}
	if state.IsFullySubscribed(m.config.Services) {
		return nil, false
	}
	if state.FailureCount > 0 && m.now().Sub(state.LastAttemptAt) <= backoff(state.FailureCount) {
		return nil, false
	}
	state.LastAttemptAt = m.now()

	var missing []ServiceType
	for _, svc := range m.config.Services {
		if _, ok := state.Services[svc]; !ok {
			missing = append(missing, svc)
		}
	}
	return missing, true
}

func (m *Manager) finishAttempt(deviceIP string, failed, attempted int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.stats.SubscriptionFailures += int64(failed)
	state := m.devices[deviceIP]
	if state == nil {
		return
	}
	switch {
	case failed == 0:
		state.FailureCount = 0
	case failed == attempted:
		state.FailureCount++
	}
}

// backoff is 30s doubling per failure, capped at ten minutes.
func backoff(failures int) time.Duration {
	seconds := 30 * (1 << min(failures, 5))
	return time.Duration(min(seconds, 600)) * time.Second
}

func (m *Manager) renewIn(timeout int) time.Duration {
	seconds := timeout - m.config.RenewalBuffer
	if seconds < 60 {
		seconds = 60
	}
	return time.Duration(seconds) * time.Second
}

// UnsubscribeDevice removes all subscriptions for a device.
func (m *Manager) UnsubscribeDevice(ctx context.Context, deviceIP string) {
	for _, sub := range m.deviceSubscriptions(deviceIP) {
		if err := m.subClient.Unsubscribe(ctx, deviceIP, EventPaths()[sub.ServiceType], sub.SID); err != nil {
			m.logger.Printf("UPNP: Failed to unsubscribe %s: %v", sub.SID, err)
		}
		m.removeSubscription(sub.SID)
	}
}

// Stats returns manager statistics.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := m.stats
	stats.ActiveSubscriptions = len(m.subscriptions)
	stats.TotalDevices = len(m.devices)
	return stats
}

// IsEnabled returns whether the event manager is enabled.
func (m *Manager) IsEnabled() bool {
	return m.config.Enabled
}

// CallbackURL returns the base NOTIFY callback URL.
func (m *Manager) CallbackURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.callbackURL
}

// IsDeviceFullySubscribed reports whether every configured service has an
// active subscription on the device.
func (m *Manager) IsDeviceFullySubscribed(deviceIP string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.devices[deviceIP]
	return ok && state.IsFullySubscribed(m.config.Services)
}

func (m *Manager) serviceCallbackURL(serviceType ServiceType) string {
	suffix := map[ServiceType]string{
		ServiceAVTransport:       "/avtransport",
		ServiceRenderingControl:  "/renderingcontrol",
		ServiceZoneGroupTopology: "/topology",
	}[serviceType]
	return m.CallbackURL() + suffix
}

func (m *Manager) addSubscription(sub *Subscription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subscriptions[sub.SID] = sub
	if state := m.devices[sub.DeviceIP]; state != nil {
		state.Services[sub.ServiceType] = sub.SID
	}
}

func (m *Manager) removeSubscription(sid string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.subscriptions[sid]
	if !ok {
		return
	}
	delete(m.subscriptions, sid)

	state, ok := m.devices[sub.DeviceIP]
	if !ok {
		return
	}
	if state.Services[sub.ServiceType] == sid {
		delete(state.Services, sub.ServiceType)
	}
	if len(state.Services) == 0 && state.FailureCount == 0 {
		delete(m.devices, sub.DeviceIP)
	}
}

func (m *Manager) deviceSubscriptions(deviceIP string) []*Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var subs []*Subscription
	for _, sub := range m.subscriptions {
		if sub.DeviceIP == deviceIP {
			subs = append(subs, sub)
		}
	}
	return subs
}

func (m *Manager) findSubscriptionBySID(sid string) *Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.subscriptions[sid]
}

func (m *Manager) updateSubscriptionSEQ(sid string, seq int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sub, ok := m.subscriptions[sid]; ok {
		sub.SEQ = seq
	}
}

func (m *Manager) renewalLoop() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.renewExpiring(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// renewExpiring renews subscriptions past their renewal deadline. A 412
// from the device means the SID is gone and the service is resubscribed.
func (m *Manager) renewExpiring(ctx context.Context) {
	m.mu.RLock()
	var due []Subscription
	now := m.now()
	for _, sub := range m.subscriptions {
		if sub.IsExpiringSoon(now) {
			due = append(due, *sub)
		}
	}
	m.mu.RUnlock()

	for _, sub := range due {
		callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		timeout, err := m.subClient.Renew(callCtx, sub.DeviceIP, EventPaths()[sub.ServiceType], sub.SID, m.config.SubscriptionTimeout)
		cancel()

		switch {
		case errors.Is(err, ErrSubscriptionNotFound):
			m.logger.Printf("UPNP: Subscription %s expired, resubscribing", sub.SID)
			m.removeSubscription(sub.SID)
			_ = m.SubscribeDevice(ctx, sub.DeviceIP, sub.DeviceUDN)
		case err != nil:
			m.logger.Printf("UPNP: Failed to renew %s: %v", sub.SID, err)
			m.mu.Lock()
			m.stats.RenewalFailures++
			m.mu.Unlock()
		default:
			m.mu.Lock()
			if live, ok := m.subscriptions[sub.SID]; ok {
				live.Timeout = timeout
				live.RenewAt = m.now().Add(m.renewIn(timeout))
			}
			m.mu.Unlock()
		}
	}
}

// discoverLocalIP finds the interface address used for outbound traffic.
// No packet is sent.
func discoverLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
