package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/vanviegen/lightlynx-sub001/internal/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker:         "tcp://127.0.0.1:1883",
		ClientID:       "lightlynx-test",
		BaseTopic:      "zigbee2mqtt",
		QoS:            1,
		ConnectTimeout: config.Duration(200 * time.Millisecond),
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	cfg.Username = "user"
	cfg.Password = "secret"

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://127.0.0.1:1883" {
		t.Errorf("Servers = %v, want [tcp://127.0.0.1:1883]", opts.Servers)
	}
	if opts.ClientID != "lightlynx-test" {
		t.Errorf("ClientID = %q, want lightlynx-test", opts.ClientID)
	}
	if opts.Username != "user" || opts.Password != "secret" {
		t.Errorf("credentials = %q/%q, want user/secret", opts.Username, opts.Password)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if opts.ConnectTimeout != 200*time.Millisecond {
		t.Errorf("ConnectTimeout = %v, want 200ms", opts.ConnectTimeout)
	}
	if opts.TLSConfig != nil && opts.TLSConfig.MinVersion != 0 {
		t.Error("TLS configured for tcp:// broker")
	}
}

func TestBuildClientOptions_TLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker = "ssl://broker.example:8883"

	opts, err := buildClientOptions(cfg)
	if err != nil {
		t.Fatalf("buildClientOptions() error = %v", err)
	}
	if opts.TLSConfig == nil || opts.TLSConfig.MinVersion != tlsMinVersion {
		t.Errorf("TLSConfig = %+v, want MinVersion TLS 1.2", opts.TLSConfig)
	}
}

func TestBuildClientOptions_InvalidBroker(t *testing.T) {
	cfg := testConfig()
	cfg.Broker = "localhost"

	_, err := buildClientOptions(cfg)
	if !errors.Is(err, ErrInvalidBroker) {
		t.Errorf("buildClientOptions() error = %v, want ErrInvalidBroker", err)
	}
}

func TestConfigureLWT(t *testing.T) {
	opts, err := buildClientOptions(testConfig())
	if err != nil {
		t.Fatal(err)
	}
	configureLWT(opts, "lightlynx-test")

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "lightlynx/lightlynx-test/status" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	if !strings.Contains(string(opts.WillPayload), `"status":"offline"`) {
		t.Errorf("WillPayload = %s, want offline status", opts.WillPayload)
	}
}

func TestDispatch_RecoversPanics(t *testing.T) {
	called := false
	dispatch(func(topic string, payload []byte) error {
		called = true
		panic("boom")
	}, "zigbee2mqtt/living", []byte(`{}`))

	if !called {
		t.Error("handler not called")
	}

	dispatch(func(string, []byte) error {
		return errors.New("bad payload")
	}, "zigbee2mqtt/living", nil)
}

func TestConnect_Unreachable(t *testing.T) {
	cfg := testConfig()
	cfg.Broker = "tcp://127.0.0.1:1"

	_, err := Connect(context.Background(), cfg)
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}
