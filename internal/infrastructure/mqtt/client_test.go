package mqtt

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/verdantio/growgate-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration. No broker is running
// in unit tests; connection-dependent behaviour is exercised against a
// disconnected client.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "growgate-test",
			TLS:      false,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

func TestCloseNil(t *testing.T) {
	client := &Client{}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client error = %v, want nil", err)
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}
	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := &Client{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := client.HealthCheck(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("HealthCheck() error = %v, want context.Canceled", err)
	}
}

func TestPublishValidation(t *testing.T) {
	client := &Client{cfg: testConfig()}

	if err := client.Publish("", []byte("x"), 1, false); !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("empty topic error = %v, want ErrInvalidTopic", err)
	}
	if err := client.Publish("growgate/state/t/e", []byte("x"), 3, false); !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("bad QoS error = %v, want ErrInvalidQoS", err)
	}
	if err := client.Publish("growgate/state/t/e", []byte("x"), 1, false); !errors.Is(err, ErrNotConnected) {
		t.Errorf("disconnected publish error = %v, want ErrNotConnected", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := &Client{cfg: testConfig()}
	payload := make([]byte, maxPayloadSize+1)
	err := client.Publish("growgate/state/t/e", payload, 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("oversized payload error = %v, want ErrPublishFailed", err)
	}
}

func TestTopicBuilders(t *testing.T) {
	topics := Topics{}
	tests := []struct {
		name string
		got  string
		want string
	}{
		{"tenant state", topics.TenantState("tenant-1", "light.grow_1"), "growgate/state/tenant-1/light.grow_1"},
		{"tenant wildcard", topics.TenantStates("tenant-1"), "growgate/state/tenant-1/+"},
		{"all states", topics.AllTenantStates(), "growgate/state/+/+"},
		{"system status", topics.SystemStatus(), "growgate/system/status"},
		{"all topics", topics.AllTopics(), "growgate/#"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("topic = %q, want %q", tt.got, tt.want)
			}
		})
	}
}

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)

	if got := opts.ClientID; got != "growgate-test" {
		t.Errorf("client id = %q, want growgate-test", got)
	}
	if len(opts.Servers) != 1 {
		t.Fatalf("servers = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker url = %q, want tcp://127.0.0.1:1883", got)
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := statusPayload("growgate-1", "online", "")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, "growgate-1") {
		t.Errorf("online payload = %s", online)
	}
	if strings.Contains(online, "reason") {
		t.Errorf("online payload carries a reason: %s", online)
	}
	offline := statusPayload("growgate-1", "offline", "graceful_shutdown")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, "graceful_shutdown") {
		t.Errorf("offline payload = %s", offline)
	}
}
