package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pion/webrtc/v4"
)

type Config struct {
	Debug     bool   `env:"DEBUG" envDefault:"false"`
	Port      string `env:"PORT" envDefault:"3000"`
	Domain    string `env:"DOMAIN" envDefault:"http://localhost:3000"`
	JWTSecret string `env:"JWT_SECRET,required"`

	TurnUDPServer webrtc.ICEServer
	TurnTCPServer webrtc.ICEServer

	CoturnServer CoturnConfig
	Voice        VoiceConfig
	Metrics      MetricsConfig
}

type CoturnConfig struct {
	Host     string `env:"COTURN_HOST"`
	Username string `env:"COTURN_USERNAME"`
	Password string `env:"COTURN_PASSWORD"`

	// Secret is used to derive time-limited credentials for clients.
	Secret string `env:"COTURN_SECRET"`
}

type VoiceConfig struct {
	// HeartbeatInterval is how often a liveness probe is sent on each
	// signaling connection. A connection silent for longer than
	// HeartbeatTimeout is forcibly closed.
	HeartbeatInterval time.Duration `env:"VOICE_HEARTBEAT_INTERVAL" envDefault:"5s"`
	HeartbeatTimeout  time.Duration `env:"VOICE_HEARTBEAT_TIMEOUT" envDefault:"15s"`

	// RateLimitWindow / RateLimitMax bound inbound signaling messages per
	// connection; messages over the limit are dropped with an error reply.
	RateLimitWindow time.Duration `env:"VOICE_RATE_LIMIT_WINDOW" envDefault:"5s"`
	RateLimitMax    int           `env:"VOICE_RATE_LIMIT_MAX" envDefault:"20"`

	StunServer string `env:"VOICE_STUN_SERVER" envDefault:"stun:stun.l.google.com:19302"`
}

type MetricsConfig struct {
	Port string `env:"METRICS_PORT" envDefault:"9090"`
}

func New() (*Config, error) {
	c, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if c.CoturnServer.Host != "" {
		c.TurnUDPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=udp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}

		c.TurnTCPServer = webrtc.ICEServer{
			URLs:       []string{fmt.Sprintf("turn:%s?transport=tcp", c.CoturnServer.Host)},
			Username:   c.CoturnServer.Username,
			Credential: c.CoturnServer.Password,
		}
	}

	return &c, nil
}

// ICEServers returns the servers handed to every peer transport.
func (c *Config) ICEServers() []webrtc.ICEServer {
	servers := []webrtc.ICEServer{
		{URLs: []string{c.Voice.StunServer}},
	}

	if c.CoturnServer.Host != "" {
		servers = append(servers, c.TurnUDPServer, c.TurnTCPServer)
	}

	return servers
}
