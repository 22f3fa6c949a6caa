package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/strefethen/sonos-multiroom-go/internal/config"
	"github.com/strefethen/sonos-multiroom-go/internal/zone"
)

const (
	mqttConnectTimeout = 10 * time.Second
	mqttPublishTimeout = 5 * time.Second
	mqttKeepAlive      = 60 * time.Second
	mqttQuiesceMs      = 250
	mqttQoS            = byte(1)
	mqttOutboxSize     = 256

	statusOnline  = "online"
	statusOffline = "offline"
)

// ErrMQTTConnect is returned when the broker cannot be reached.
var ErrMQTTConnect = errors.New("mqtt connection failed")

// Topics builds the bridge topic tree under a prefix.
//
//	<prefix>/status                        online/offline (retained, LWT)
//	<prefix>/zones/<zone_id>/state         zone snapshot JSON (retained)
//	<prefix>/zones/<zone_id>/set/power     true|false|on|off
//	<prefix>/zones/<zone_id>/set/volume    0..100
//	<prefix>/control/state                 global snapshot JSON (retained)
//	<prefix>/control/set/<toggle>          power|mute|remote_volume|remote_auto_group|sync
type Topics struct {
	Prefix string
}

func (t Topics) Status() string                 { return t.Prefix + "/status" }
func (t Topics) ZoneState(zoneID string) string { return t.Prefix + "/zones/" + zoneID + "/state" }
func (t Topics) GlobalState() string            { return t.Prefix + "/control/state" }
func (t Topics) ZoneCommands() string           { return t.Prefix + "/zones/+/set/+" }
func (t Topics) ControlCommands() string        { return t.Prefix + "/control/set/+" }

// parseCommand splits a command topic into zone id (empty for control
// topics) and field.
func (t Topics) parseCommand(topic string) (zoneID, field string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	switch {
	case len(parts) == 4 && parts[0] == "zones" && parts[2] == "set" && parts[1] != "":
		return parts[1], parts[3], true
	case len(parts) == 3 && parts[0] == "control" && parts[1] == "set":
		return "", parts[2], true
	default:
		return "", "", false
	}
}

type outbound struct {
	topic   string
	payload []byte
}

// MQTTBridge publishes zone state to a broker and turns command topics
// into engine commands.
type MQTTBridge struct {
	client pahomqtt.Client
	topics Topics
	ctrl   Controller
	logger *log.Logger

	outbox    chan outbound
	stopCh    chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// ConnectMQTT connects to the configured broker and starts the publisher.
func ConnectMQTT(cfg config.MQTTConfig, ctrl Controller, logger *log.Logger) (*MQTTBridge, error) {
	topics := Topics{Prefix: strings.TrimSuffix(cfg.TopicPrefix, "/")}
	bridge := newMQTTBridge(nil, topics, ctrl, logger)

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(mqttConnectTimeout)
	opts.SetKeepAlive(mqttKeepAlive)
	opts.SetWill(topics.Status(), statusOffline, mqttQoS, true)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { bridge.onConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		bridge.logger.Printf("MQTT: connection lost: %v", err)
	})

	bridge.client = pahomqtt.NewClient(opts)
	token := bridge.client.Connect()
	if !token.WaitTimeout(mqttConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrMQTTConnect, mqttConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMQTTConnect, err)
	}

	bridge.Start()
	bridge.logger.Printf("MQTT: connected to %s (prefix %s)", cfg.Broker, topics.Prefix)
	return bridge, nil
}

func newMQTTBridge(client pahomqtt.Client, topics Topics, ctrl Controller, logger *log.Logger) *MQTTBridge {
	if logger == nil {
		logger = log.Default()
	}
	return &MQTTBridge{
		client: client,
		topics: topics,
		ctrl:   ctrl,
		logger: logger,
		outbox: make(chan outbound, mqttOutboxSize),
		stopCh: make(chan struct{}),
	}
}

// Start launches the publisher goroutine.
func (b *MQTTBridge) Start() {
	b.wg.Add(1)
	go b.publishLoop()
}

// PublishZone queues a retained zone snapshot. It never blocks.
func (b *MQTTBridge) PublishZone(snap zone.Snapshot) {
	b.enqueue(b.topics.ZoneState(snap.ZoneID), snap)
}

// PublishGlobal queues the retained aggregate snapshot. It never blocks.
func (b *MQTTBridge) PublishGlobal(snap zone.GlobalSnapshot) {
	b.enqueue(b.topics.GlobalState(), snap)
}

// Close publishes the offline status and disconnects.
func (b *MQTTBridge) Close() {
	b.closeOnce.Do(func() {
		close(b.stopCh)
		b.wg.Wait()
		if b.client != nil && b.client.IsConnected() {
			b.client.Publish(b.topics.Status(), mqttQoS, true, statusOffline).WaitTimeout(mqttPublishTimeout)
			b.client.Disconnect(mqttQuiesceMs)
		}
		b.logger.Printf("MQTT: disconnected")
	})
}

func (b *MQTTBridge) enqueue(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		b.logger.Printf("MQTT: failed to marshal %s: %v", topic, err)
		return
	}
	select {
	case b.outbox <- outbound{topic: topic, payload: data}:
	default:
		b.logger.Printf("MQTT: outbox full, dropping %s", topic)
	}
}

func (b *MQTTBridge) publishLoop() {
	defer b.wg.Done()
	for {
		select {
		case msg := <-b.outbox:
			b.publish(msg)
		case <-b.stopCh:
			for {
				select {
				case msg := <-b.outbox:
					b.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (b *MQTTBridge) publish(msg outbound) {
	token := b.client.Publish(msg.topic, mqttQoS, true, msg.payload)
	if !token.WaitTimeout(mqttPublishTimeout) {
		b.logger.Printf("MQTT: publish to %s timed out", msg.topic)
		return
	}
	if err := token.Error(); err != nil {
		b.logger.Printf("MQTT: publish to %s failed: %v", msg.topic, err)
	}
}

// onConnect runs on every (re)connect: subscriptions do not survive a
// clean session.
func (b *MQTTBridge) onConnect() {
	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if err := b.handleMessage(msg.Topic(), msg.Payload()); err != nil {
			b.logger.Printf("MQTT: rejected command on %s: %v", msg.Topic(), err)
		}
	}
	for _, topic := range []string{b.topics.ZoneCommands(), b.topics.ControlCommands()} {
		if token := b.client.Subscribe(topic, mqttQoS, handler); token.WaitTimeout(mqttPublishTimeout) && token.Error() != nil {
			b.logger.Printf("MQTT: subscribe %s failed: %v", topic, token.Error())
		}
	}
	b.client.Publish(b.topics.Status(), mqttQoS, true, statusOnline)
}

func (b *MQTTBridge) handleMessage(topic string, payload []byte) error {
	zoneID, field, ok := b.topics.parseCommand(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic", ErrInvalidCommand)
	}
	raw := string(payload)

	cmd := Command{ZoneID: zoneID}
	switch {
	case zoneID != "" && field == "power":
		on, err := ParseSwitch(raw)
		if err != nil {
			return err
		}
		cmd.Action, cmd.On = ActionPower, &on
	case zoneID != "" && field == "volume":
		level, err := ParseLevel(raw)
		if err != nil {
			return err
		}
		cmd.Action, cmd.Volume = ActionVolume, &level
	case zoneID == "" && field == "sync":
		cmd.Action = ActionSync
	case zoneID == "":
		action, known := controlFields[field]
		if !known {
			return fmt.Errorf("%w: unknown control %q", ErrInvalidCommand, field)
		}
		enabled, err := ParseSwitch(raw)
		if err != nil {
			return err
		}
		cmd.Action, cmd.Enabled = action, &enabled
	default:
		return fmt.Errorf("%w: unknown zone field %q", ErrInvalidCommand, field)
	}

	return Apply(b.ctrl, cmd, "mqtt")
}

var controlFields = map[string]string{
	"power":             ActionGlobalPower,
	"mute":              ActionMuteAll,
	"remote_volume":     ActionRemoteVolume,
	"remote_auto_group": ActionRemoteAutoGroup,
}
