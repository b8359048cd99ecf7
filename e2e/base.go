package e2e

import (
	"context"
	"fmt"
	"net/http/httptest"
	"profilebook/auth"
	"profilebook/client"
	"profilebook/domain"
	httpserver "profilebook/infrastructure/http/server"
	"profilebook/infrastructure/websocket"
	"profilebook/moderation"
	"profilebook/observability"
	"profilebook/protocol"
	"profilebook/repositories"
	"profilebook/runtime"
	"profilebook/runtime/workers"
	"profilebook/services"
	"strings"
	"time"

	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/suite"
)

const password = "Sup3r-Secret!!"

// BaseSuite boots the whole server in process: badger and bluge in a temp
// dir, the hub and the REST API behind one httptest server.
type BaseSuite struct {
	suite.Suite
	Config   Config
	Registry *runtime.Registry

	server  *httptest.Server
	db      *badger.DB
	writer  *bluge.Writer
	users   *repositories.UserRepository
	issuer  *auth.TokenIssuer
	cancel  context.CancelFunc
	closers []func() error
}

func (s *BaseSuite) SetupSuite() {
	var err error
	s.Config, err = LoadConfig()
	s.Require().NoError(err)
	log := logs.GetLoggerFromString(s.Config.LogLevel)
	dir := s.T().TempDir()

	s.db, err = badger.Open(badger.DefaultOptions(dir + "/badger").WithLogger(nil))
	s.Require().NoError(err)
	s.writer, err = bluge.OpenWriter(bluge.DefaultConfig(dir + "/bluge"))
	s.Require().NoError(err)

	clock := repositories.NewClock()
	messages, err := repositories.NewMessageRepository(s.db, log, clock, nil)
	s.Require().NoError(err)
	notifications, err := repositories.NewNotificationRepository(s.db, log, clock)
	s.Require().NoError(err)
	s.closers = append(s.closers, messages.Close, notifications.Close)
	s.users = repositories.NewUserRepository(s.db)
	moderator, err := moderation.NewDefaultModerator('*', log)
	s.Require().NoError(err)

	s.Registry = runtime.NewRegistry()
	monitoring := observability.NewMonitoringManager(log, s.Registry.Count)
	dispatcher := runtime.NewDispatcher(log, s.Registry, monitoring, time.Second)
	s.issuer = auth.NewTokenIssuer("e2e-secret", time.Hour)
	authService := services.NewAuthService(s.users, s.issuer)
	messagingService := services.NewMessagingService(log, messages, s.users,
		repositories.NewMessageIndex(s.writer, log), moderator, dispatcher, 500)
	notificationService := services.NewNotificationService(log, notifications, s.users, dispatcher, 500)

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	sup := workers.NewSupervisor(log, 100*time.Millisecond)
	sup.Add(workers.NewJanitorWorker(log, s.Registry, 30*time.Second, time.Second))
	go sup.Run(ctx)

	hub := websocket.NewHub(log, s.Registry, authService, messagingService, notificationService, websocket.HubConfig{
		BufferSize:      32,
		PingInterval:    time.Second,
		IdleTimeout:     30 * time.Second,
		DeliveryTimeout: time.Second,
		AllowedOrigins:  []string{"*"},
	})
	handler := httpserver.NewHandler(log, authService, messagingService, notificationService)
	s.server = httptest.NewServer(httpserver.NewRouter(log, handler, authService, hub, []string{"*"}))
}

func (s *BaseSuite) TearDownSuite() {
	s.server.Close()
	s.cancel()
	for _, conn := range s.Registry.Snapshot() {
		_ = conn.Close()
	}
	for _, closer := range s.closers {
		_ = closer()
	}
	_ = s.writer.Close()
	_ = s.db.Close()
}

// Step prints a colorized header for a scenario step in the test logs.
func (s *BaseSuite) Step(name string) {
	header := fmt.Sprintf("  ====== %s ======", name)
	if s.Config.Colours {
		header = color.New(color.BgBlack, color.FgGreen).Render(header)
	}
	s.T().Log(header)
}

func (s *BaseSuite) ClientConfig() client.Config {
	return client.Config{
		BaseURL:        s.server.URL,
		HubURL:         "ws" + strings.TrimPrefix(s.server.URL, "http") + "/hub",
		Codec:          protocol.SubprotocolJSON,
		BackoffInitial: 20 * time.Millisecond,
		BackoffMax:     200 * time.Millisecond,
		MaxAttempts:    10,
		RequestTimeout: 2 * time.Second,
		PollInterval:   100 * time.Millisecond,
	}
}

// Register creates a fresh user and returns its account.
func (s *BaseSuite) Register(name string) protocol.AccountResponse {
	username := name + uuid.NewString()[:8]
	account, err := s.Store("").Register(context.Background(), username+"@example.com", username, password)
	s.Require().NoError(err)
	return account
}

// Admin creates a user holding the admin role and returns its token.
func (s *BaseSuite) Admin() string {
	hash, err := auth.HashPassword(password)
	s.Require().NoError(err)
	name := "admin" + uuid.NewString()[:8]
	user, err := s.users.CreateUser(name+"@example.com", name, hash, []string{"user", auth.RoleAdmin})
	s.Require().NoError(err)
	token, err := s.issuer.GenerateToken(user.ID, user.Roles)
	s.Require().NoError(err)
	return token
}

func (s *BaseSuite) Store(token string) *client.HTTPStore {
	return client.NewHTTPStore(s.server.URL, func() string { return token }, 2*time.Second)
}

// Session opens a live session for the account; it is closed with the test.
func (s *BaseSuite) Session(account protocol.AccountResponse, codec string) *client.Session {
	cfg := s.ClientConfig()
	if codec != "" {
		cfg.Codec = codec
	}
	log := logs.GetLoggerFromString(s.Config.LogLevel)
	session := client.NewSession(log, cfg, s.Store(account.Token), func() string { return account.Token })
	s.T().Cleanup(session.Disconnect)
	s.Require().NoError(session.Connect(context.Background()))
	s.Require().Equal(domain.SubjectID(account.UserID), session.Subject())
	return session
}

// Eventually waits for cond within the configured bound.
func (s *BaseSuite) Eventually(cond func() bool, msg string) {
	s.Require().Eventually(cond, s.Config.Wait, 10*time.Millisecond, msg)
}
