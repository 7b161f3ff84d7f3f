package binance

import (
	"testing"
)

func TestNewWSConnection_DefaultsToProductionURL(t *testing.T) {
	ws := NewWSConnection(DefaultConfig())

	if ws.url != WSBaseURL+"/ws" {
		t.Errorf("expected production url, got %s", ws.url)
	}
	if ws.IsConnected() {
		t.Error("expected a fresh connection to report not connected")
	}
}

func TestNewWSConnection_TestnetURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.UseTestnet = true
	ws := NewWSConnection(cfg)

	if ws.url != WSBaseURLTestnet+"/ws" {
		t.Errorf("expected testnet url, got %s", ws.url)
	}
}

func TestNewWSConnection_NilConfigFallsBackToDefault(t *testing.T) {
	ws := NewWSConnection(nil)

	if ws.config == nil {
		t.Fatal("expected a default config, got nil")
	}
	if ws.url != WSBaseURL+"/ws" {
		t.Errorf("expected production url for nil config, got %s", ws.url)
	}
}

func TestWSConnection_SendMessageRequiresConnection(t *testing.T) {
	ws := NewWSConnection(DefaultConfig())

	if err := ws.SendMessage([]byte("hello")); err == nil {
		t.Error("expected an error sending on a disconnected socket")
	}
}

func TestWSConnection_SubscribeRequiresStreams(t *testing.T) {
	ws := NewWSConnection(DefaultConfig())

	if err := ws.Subscribe(nil); err == nil {
		t.Error("expected an error subscribing with no streams")
	}
	if err := ws.Unsubscribe(nil); err == nil {
		t.Error("expected an error unsubscribing with no streams")
	}
}

func TestWSConnection_GetNextRequestIDIncrements(t *testing.T) {
	ws := NewWSConnection(DefaultConfig())

	first := ws.getNextRequestID()
	second := ws.getNextRequestID()

	if second != first+1 {
		t.Errorf("expected monotonically increasing request ids, got %d then %d", first, second)
	}
}

func TestWSConnection_DisconnectWithoutConnectIsNoOp(t *testing.T) {
	ws := NewWSConnection(DefaultConfig())

	if err := ws.Disconnect(); err != nil {
		t.Errorf("expected disconnecting an unconnected socket to be a no-op, got %v", err)
	}
}
