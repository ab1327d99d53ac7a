package handlers

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/pion/webrtc/v4"

	"github.com/okaypadak/everup-backend/internal/application/config"
)

func callIceServers(t *testing.T, cfg *config.Config) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/ice", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := NewIceHandler(cfg).IceServers(c); err != nil {
		t.Fatalf("ice servers: %v", err)
	}
	return rec
}

func TestIceServersStunOnlyWithoutCoturn(t *testing.T) {
	cfg := &config.Config{}
	cfg.Voice.StunServer = "stun:stun.example.com:3478"

	rec := callIceServers(t, cfg)

	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}

	var servers []webrtc.ICEServer
	if err := json.Unmarshal(rec.Body.Bytes(), &servers); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(servers) != 1 || servers[0].URLs[0] != "stun:stun.example.com:3478" {
		t.Errorf("expected the configured STUN server only, got %+v", servers)
	}
}

func TestIceServersDerivesCoturnCredentials(t *testing.T) {
	cfg := &config.Config{}
	cfg.CoturnServer.Host = "turn.example.com:3478"
	cfg.CoturnServer.Secret = "coturn-secret"
	cfg.TurnUDPServer = webrtc.ICEServer{URLs: []string{"turn:turn.example.com:3478?transport=udp"}}
	cfg.TurnTCPServer = webrtc.ICEServer{URLs: []string{"turn:turn.example.com:3478?transport=tcp"}}

	rec := callIceServers(t, cfg)

	var server webrtc.ICEServer
	if err := json.Unmarshal(rec.Body.Bytes(), &server); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}

	if len(server.URLs) != 2 {
		t.Fatalf("expected udp and tcp TURN urls, got %+v", server.URLs)
	}
	if server.Username == "" {
		t.Fatal("expected a time-limited username")
	}

	// The credential must be the HMAC-SHA1 of the username under the shared
	// secret, the coturn static-auth-secret scheme.
	mac := hmac.New(sha1.New, []byte("coturn-secret"))
	mac.Write([]byte(server.Username))
	want := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	if server.Credential != want {
		t.Errorf("credential: got %v, want %s", server.Credential, want)
	}
}
