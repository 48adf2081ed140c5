package e2e

import (
	"bytes"
	"chatto/domain"
	"chatto/domain/event"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/stretchr/testify/suite"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

type BaseSuite struct {
	suite.Suite
	Config Config
	client *http.Client
}

// SetupSuite loads the environment configuration and skips without a live server.
func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	if s.Config.BaseURL == "" {
		s.T().Skip("E2E_BASE_URL is not set")
	}
	s.client = &http.Client{Timeout: 10 * time.Second}
}

// Step prints a colorized header for one scenario step.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

// Call sends a JSON request and decodes the response into out when non nil.
func (s *BaseSuite) Call(method, path, token string, body, out any) int {
	var payload bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&payload).Encode(body))
	}
	req, err := http.NewRequest(method, strings.TrimSuffix(s.Config.BaseURL, "/")+path, &payload)
	s.Require().NoError(err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := s.client.Do(req)
	s.Require().NoError(err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)

	s.T().Logf("HTTP %s %s [%d] in %v", method, path, resp.StatusCode, time.Since(start))
	if s.Config.DebugJSON {
		s.T().Logf("REQUEST: %s\nRESPONSE: %s", payload.String(), raw)
	}
	if out != nil && resp.StatusCode < 300 {
		s.Require().NoError(json.Unmarshal(raw, out), string(raw))
	}
	return resp.StatusCode
}

// SignUp registers a fresh user and logs it in.
func (s *BaseSuite) SignUp(name string) (string, domain.PublicUser) {
	credentials := map[string]string{
		"email":    fmt.Sprintf("%s-%s@e2e.test", name, uuid.NewString()[:8]),
		"password": "e2e-password",
	}
	s.Require().Equal(http.StatusOK, s.Call(http.MethodPost, "/api/auth/register", "", credentials, nil))

	var login struct {
		Token string            `json:"token"`
		User  domain.PublicUser `json:"user"`
	}
	s.Require().Equal(http.StatusOK, s.Call(http.MethodPost, "/api/auth/login", "", credentials, &login))
	return login.Token, login.User
}

// Socket dials /ws with the token.
func (s *BaseSuite) Socket(ctx context.Context, token string) *websocket.Conn {
	url := "ws" + strings.TrimPrefix(strings.TrimSuffix(s.Config.BaseURL, "/"), "http") + "/ws?token=" + token
	conn, _, err := websocket.Dial(ctx, url, nil)
	s.Require().NoError(err)
	return conn
}

// Expect reads frames until one of kind arrives.
func (s *BaseSuite) Expect(ctx context.Context, conn *websocket.Conn, kind event.Kind) json.RawMessage {
	for {
		var frame event.Inbound
		s.Require().NoError(wsjson.Read(ctx, conn, &frame), "waiting for %s", kind)
		s.T().Logf("WS <- %s %s", frame.Type, frame.Data)
		if frame.Type == kind {
			return frame.Data
		}
	}
}

// WithHealth provides a grpc health client.
func (s *BaseSuite) WithHealth(fn func(ctx context.Context, client grpc_health_v1.HealthClient)) {
	conn, err := grpc.NewClient(s.Config.HealthAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	s.Require().NoError(err, "Failed to connect to gRPC server at "+s.Config.HealthAddr)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	fn(ctx, grpc_health_v1.NewHealthClient(conn))
}
