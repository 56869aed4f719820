package gateway

import (
	"errors"
	"testing"
	"time"

	"github.com/verdantio/growgate-core/internal/infrastructure/config"
	"github.com/verdantio/growgate-core/internal/resilience"
	"github.com/verdantio/growgate-core/internal/tenant"
)

func TestHubConfig_CarriesCredentialOverrides(t *testing.T) {
	cfg := config.HubConfig{
		RequestTimeout:   15,
		HandshakeTimeout: 5,
		CacheTTL:         120,
		RateLimit:        8,
		Reconnect: config.HubReconnectConfig{
			MaxAttempts: 4,
			BaseDelay:   2,
			MaxDelay:    60,
		},
	}
	creds := &tenant.Credentials{
		TenantID:          "tenant-1",
		HubURL:            "http://hub-1.local:8123",
		AccessToken:       "token-1",
		WSURL:             "ws://hub-1.local:8124/ws",
		ProxyClientID:     "proxy-id",
		ProxyClientSecret: "proxy-secret",
	}

	hc := hubConfig(cfg, creds, nil)

	if hc.BaseURL != creds.HubURL || hc.Token != creds.AccessToken {
		t.Errorf("base = %q token = %q, want credential values", hc.BaseURL, hc.Token)
	}
	if hc.WSURL != "ws://hub-1.local:8124/ws" {
		t.Errorf("WSURL = %q, want stored override", hc.WSURL)
	}
	if hc.ProxyClientID != "proxy-id" || hc.ProxyClientSecret != "proxy-secret" {
		t.Errorf("proxy pair = %q/%q, want stored values", hc.ProxyClientID, hc.ProxyClientSecret)
	}
	if hc.RequestTimeout != 15*time.Second || hc.HandshakeTimeout != 5*time.Second {
		t.Errorf("timeouts = %v/%v", hc.RequestTimeout, hc.HandshakeTimeout)
	}
	if hc.ReconnectBaseDelay != 2*time.Second || hc.ReconnectMaxDelay != time.Minute {
		t.Errorf("reconnect delays = %v/%v", hc.ReconnectBaseDelay, hc.ReconnectMaxDelay)
	}
	if hc.ConnectReporter != nil {
		t.Error("reporter set without a controller")
	}
}

func TestHubConfig_ReportsWebSocketOutcomes(t *testing.T) {
	ctrl := resilience.New(resilience.Options{})
	ctrl.Register(ServiceHubWebSocket, resilience.Config{
		Breaker: resilience.BreakerPolicy{FailureThreshold: 1, RecoveryTimeout: time.Minute},
	})
	t.Cleanup(ctrl.Stop)

	hc := hubConfig(config.HubConfig{}, &tenant.Credentials{
		HubURL:      "http://hub.local:8123",
		AccessToken: "tok",
	}, ctrl)
	if hc.ConnectReporter == nil {
		t.Fatal("no reporter wired")
	}

	hc.ConnectReporter(errors.New("dial refused"))
	if state, _ := ctrl.BreakerState(ServiceHubWebSocket); state != resilience.StateOpen {
		t.Errorf("breaker = %s after reported failure, want OPEN", state)
	}
	if got := ctrl.Snapshot()[ServiceHubWebSocket].TotalErrors; got != 1 {
		t.Errorf("TotalErrors = %d, want 1", got)
	}
}
