// Package test runs the content engine end to end against a Postgres
// container, through HTTP and bearer tokens.
package test

import (
	"context"
	"fmt"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relabs-tech/kurbisio-cms/core"
	"github.com/relabs-tech/kurbisio-cms/core/access"
	"github.com/relabs-tech/kurbisio-cms/core/backend"
	"github.com/relabs-tech/kurbisio-cms/core/client"
	"github.com/relabs-tech/kurbisio-cms/core/csql"
)

const jwtSecret = "integration-secret"

// events records content events in memory
type events struct {
	mu   sync.Mutex
	list []core.Event
}

func (e *events) Notify(ctx context.Context, event core.Event) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, event)
	return nil
}

func (e *events) names(id string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var names []string
	for _, ev := range e.list {
		if ev.ID == id {
			names = append(names, ev.Name)
		}
	}
	return names
}

type IntegrationTestSuite struct {
	*backend.Backend
	suite.Suite

	srv               *httptest.Server
	dbConn            *csql.DB
	router            *mux.Router
	events            *events
	postgresContainer testcontainers.Container

	admin     client.Client
	user      client.Client
	userID    string
	anonymous client.Client
}

func (s *IntegrationTestSuite) token(actor access.Actor) string {
	token, err := access.IssueToken([]byte(jwtSecret), actor, time.Hour)
	s.Require().NoError(err)
	return token
}

func (s *IntegrationTestSuite) SetupSuite() {
	ctx := context.Background()

	postgresUser := "testuser"
	postgresPassword := "testpass"
	postgresDB := "testdb"

	pgReq := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithDeadline(2 * time.Minute),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: pgReq,
		Started:          true,
	})
	if err != nil {
		s.T().Skipf("cannot start postgres container: %v", err)
	}
	s.postgresContainer = pgC

	pgHost, err := pgC.Host(ctx)
	s.Require().NoError(err)
	pgPort, err := pgC.MappedPort(ctx, "5432")
	s.Require().NoError(err)

	s.dbConn = csql.OpenWithSchema(fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=disable",
		pgHost, pgPort.Port(), postgresUser, postgresDB), postgresPassword, "cms")

	s.router = mux.NewRouter()
	s.events = &events{}
	s.Backend = backend.New(&backend.Builder{
		DB:        s.dbConn,
		Router:    s.router,
		Notifier:  s.events,
		JWTSecret: []byte(jwtSecret),
		CORS:      true,
	})
	s.srv = httptest.NewServer(s.router)

	s.userID = uuid.NewString()
	base := client.NewWithURL(s.srv.URL)
	s.anonymous = base
	s.admin = base.WithToken(s.token(access.Actor{ID: uuid.NewString(), Roles: []string{access.RoleAdmin}}))
	s.user = base.WithToken(s.token(access.Actor{ID: s.userID}))
}

func (s *IntegrationTestSuite) TearDownSuite() {
	ctx := context.Background()
	if s.srv != nil {
		s.srv.Close()
	}
	if s.dbConn != nil {
		s.dbConn.Close()
	}
	if s.postgresContainer != nil {
		err := s.postgresContainer.Terminate(ctx)
		s.Require().NoError(err)
	}
}
