package gateway

import (
	"context"
	"time"

	"github.com/verdantio/growgate-core/internal/hub"
	"github.com/verdantio/growgate-core/internal/infrastructure/config"
	"github.com/verdantio/growgate-core/internal/resilience"
	"github.com/verdantio/growgate-core/internal/tenant"
)

// hubAdapter lifts *hub.Client into the HubClient interface. Only the
// subscription methods need translation; the rest are promoted.
type hubAdapter struct {
	*hub.Client
}

func (a hubAdapter) Subscribe(entityID string) (EventStream, error) {
	return a.Client.Subscribe(entityID)
}

func (a hubAdapter) Unsubscribe(stream EventStream) error {
	sub, ok := stream.(*hub.Subscription)
	if !ok {
		return nil
	}
	return a.Client.Unsubscribe(sub)
}

// NewHubFactory returns a HubFactory that opens real hub sessions using
// per-tenant credentials and the shared hub settings. WebSocket
// connection outcomes are recorded with the controller under the
// hub-websocket service, driving its breaker and health monitoring.
func NewHubFactory(cfg config.HubConfig, ctrl *resilience.Controller, logger Logger) HubFactory {
	return func(ctx context.Context, creds *tenant.Credentials) (HubClient, error) {
		client, err := hub.New(hubConfig(cfg, creds, ctrl), logger)
		if err != nil {
			return nil, err
		}
		return hubAdapter{client}, nil
	}
}

// hubConfig merges the shared hub settings with one tenant's stored
// credentials, including the optional WebSocket URL override and
// reverse-proxy access pair.
func hubConfig(cfg config.HubConfig, creds *tenant.Credentials, ctrl *resilience.Controller) hub.Config {
	hc := hub.Config{
		BaseURL:              creds.HubURL,
		Token:                creds.AccessToken,
		WSURL:                creds.WSURL,
		ProxyClientID:        creds.ProxyClientID,
		ProxyClientSecret:    creds.ProxyClientSecret,
		RequestTimeout:       cfg.GetRequestTimeout(),
		HandshakeTimeout:     cfg.GetHandshakeTimeout(),
		CacheTTL:             cfg.GetCacheTTL(),
		RateLimit:            cfg.RateLimit,
		MaxReconnectAttempts: cfg.Reconnect.MaxAttempts,
		ReconnectBaseDelay:   time.Duration(cfg.Reconnect.BaseDelay) * time.Second,
		ReconnectMaxDelay:    time.Duration(cfg.Reconnect.MaxDelay) * time.Second,
	}
	if ctrl != nil {
		hc.ConnectReporter = func(err error) {
			ctrl.Record(ServiceHubWebSocket, err)
		}
	}
	return hc
}
