package mqtt

import (
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/vanviegen/lightlynx-sub001/internal/config"
)

// Connection constants.
const (
	defaultConnectTimeout    = 10 * time.Second
	defaultPublishTimeout    = 5 * time.Second
	defaultDisconnectQuiesce = 1000 // milliseconds
	defaultKeepAlive         = 60 * time.Second
	defaultMaxReconnect      = 2 * time.Minute

	maxQoS = 2

	tlsMinVersion = tls.VersionTLS12
)

// StatusTopic carries the retained online/offline status of this controller.
func StatusTopic(clientID string) string {
	return "lightlynx/" + clientID + "/status"
}

// buildClientOptions creates paho MQTT options from config.
func buildClientOptions(cfg config.MQTTConfig) (*pahomqtt.ClientOptions, error) {
	broker, err := url.Parse(cfg.Broker)
	if err != nil || broker.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBroker, cfg.Broker)
	}

	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	opts.SetCleanSession(true)

	// Reconnect with paho's exponential backoff
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Second)
	opts.SetMaxReconnectInterval(defaultMaxReconnect)

	timeout := cfg.ConnectTimeout.Duration()
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	opts.SetConnectTimeout(timeout)
	opts.SetKeepAlive(defaultKeepAlive)

	switch broker.Scheme {
	case "ssl", "tls", "mqtts", "wss":
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts, nil
}

// configureLWT makes the broker mark us offline on unexpected disconnects.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	opts.SetWill(StatusTopic(clientID), statusPayload("offline", "unexpected_disconnect"), 1, true)
}

func statusPayload(status, reason string) string {
	if reason == "" {
		return fmt.Sprintf(`{"status":%q,"timestamp":%q}`, status, time.Now().UTC().Format(time.RFC3339))
	}
	return fmt.Sprintf(`{"status":%q,"reason":%q,"timestamp":%q}`, status, reason, time.Now().UTC().Format(time.RFC3339))
}
