package config

import (
	"os"
	"testing"
	"time"
)

func TestNewAppliesDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := New()
	if err != nil {
		t.Fatalf("new config: %v", err)
	}

	if cfg.Port != "3000" {
		t.Errorf("port default: got %q", cfg.Port)
	}
	if cfg.Voice.HeartbeatInterval != 5*time.Second {
		t.Errorf("heartbeat interval default: got %s", cfg.Voice.HeartbeatInterval)
	}
	if cfg.Voice.HeartbeatTimeout != 15*time.Second {
		t.Errorf("heartbeat timeout default: got %s", cfg.Voice.HeartbeatTimeout)
	}
	if cfg.Voice.RateLimitMax != 20 {
		t.Errorf("rate limit default: got %d", cfg.Voice.RateLimitMax)
	}
	if cfg.CoturnServer.Host != "" {
		t.Errorf("coturn host must default to empty, got %q", cfg.CoturnServer.Host)
	}
}

func TestNewRequiresJWTSecret(t *testing.T) {
	// t.Setenv registers the restore; the test needs the variable absent.
	t.Setenv("JWT_SECRET", "s3cret")
	os.Unsetenv("JWT_SECRET")

	if _, err := New(); err == nil {
		t.Error("missing JWT_SECRET must fail")
	}
}

func TestICEServersWithoutCoturn(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := New()
	if err != nil {
		t.Fatalf("new config: %v", err)
	}

	servers := cfg.ICEServers()
	if len(servers) != 1 {
		t.Fatalf("expected STUN only, got %d servers", len(servers))
	}
	if servers[0].URLs[0] != cfg.Voice.StunServer {
		t.Errorf("stun url: got %q, want %q", servers[0].URLs[0], cfg.Voice.StunServer)
	}
}

func TestICEServersWithCoturn(t *testing.T) {
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("COTURN_HOST", "turn.example.com:3478")
	t.Setenv("COTURN_USERNAME", "u")
	t.Setenv("COTURN_PASSWORD", "p")

	cfg, err := New()
	if err != nil {
		t.Fatalf("new config: %v", err)
	}

	servers := cfg.ICEServers()
	if len(servers) != 3 {
		t.Fatalf("expected STUN plus TURN udp/tcp, got %d servers", len(servers))
	}
	if servers[1].URLs[0] != "turn:turn.example.com:3478?transport=udp" {
		t.Errorf("turn udp url: got %q", servers[1].URLs[0])
	}
	if servers[2].URLs[0] != "turn:turn.example.com:3478?transport=tcp" {
		t.Errorf("turn tcp url: got %q", servers[2].URLs[0])
	}
	if servers[1].Username != "u" {
		t.Errorf("turn username: got %q", servers[1].Username)
	}
}
