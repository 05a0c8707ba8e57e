// Package testutil starts the backing services newsvec integration and e2e
// tests run against.
package testutil

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/cloo-solutions/newsvec/internal/database"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	PostgresImage = "pgvector/pgvector:0.8.1-pg18"
	QdrantImage   = "qdrant/qdrant:v1.16.2"
	RedisImage    = "redis:7-alpine"
	RustFSImage   = "rustfs/rustfs:latest"

	RustFSAccessKey = "rustfsadmin"
	RustFSSecretKey = "rustfsadmin"

	postgresCredential = "newsvec"
)

// Service is a started container and the host it is reachable on.
type Service struct {
	Container testcontainers.Container
	Host      string
}

// Terminate stops and removes the container.
func (s *Service) Terminate(ctx context.Context) error {
	return testcontainers.TerminateContainer(s.Container)
}

// PostgresContainer is a PostgreSQL server with the vector extension available.
type PostgresContainer struct {
	Service
	Port     string
	User     string
	Password string
	Database string
}

// NewPostgresContainer starts pgvector/PostgreSQL.
func NewPostgresContainer(ctx context.Context, t *testing.T) *PostgresContainer {
	svc, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        PostgresImage,
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresCredential,
			"POSTGRES_PASSWORD": postgresCredential,
			"POSTGRES_DB":       postgresCredential,
		},
		// postgres restarts once after initdb
		WaitingFor: wait.ForAll(
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
			wait.ForListeningPort("5432/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "5432")

	return &PostgresContainer{
		Service:  svc,
		Port:     port,
		User:     postgresCredential,
		Password: postgresCredential,
		Database: postgresCredential,
	}
}

// ConnectionString returns a postgres:// URL for the container.
func (pc *PostgresContainer) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		pc.User, pc.Password, pc.Host, pc.Port, pc.Database)
}

// QdrantContainer is a Qdrant server reached over gRPC.
type QdrantContainer struct {
	Service
	GRPCPort int
}

// NewQdrantContainer starts Qdrant and waits for its REST readiness endpoint.
func NewQdrantContainer(ctx context.Context, t *testing.T) *QdrantContainer {
	svc, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        QdrantImage,
		ExposedPorts: []string{"6333/tcp", "6334/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort("6334/tcp"),
			wait.ForHTTP("/readyz").WithPort("6333/tcp"),
		).WithStartupTimeout(60 * time.Second),
	}, "6334")

	grpcPort, err := strconv.Atoi(port)
	if err != nil {
		t.Fatalf("invalid qdrant port %q: %v", port, err)
	}
	return &QdrantContainer{Service: svc, GRPCPort: grpcPort}
}

// RedisContainer is a Redis server for the embedding cache.
type RedisContainer struct {
	Service
	Port string
}

// NewRedisContainer starts Redis.
func NewRedisContainer(ctx context.Context, t *testing.T) *RedisContainer {
	svc, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        RedisImage,
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForLog("Ready to accept connections"),
			wait.ForListeningPort("6379/tcp"),
		).WithStartupTimeout(30 * time.Second),
	}, "6379")

	return &RedisContainer{Service: svc, Port: port}
}

// Addr returns the host:port of the server.
func (rc *RedisContainer) Addr() string {
	return rc.Host + ":" + rc.Port
}

// RustFSContainer is an S3-compatible object store for snapshots.
type RustFSContainer struct {
	Service
	Port string
}

// NewRustFSContainer starts RustFS with the RustFSAccessKey credentials.
func NewRustFSContainer(ctx context.Context, t *testing.T) *RustFSContainer {
	svc, port := start(ctx, t, testcontainers.ContainerRequest{
		Image:        RustFSImage,
		ExposedPorts: []string{"9000/tcp"},
		Env: map[string]string{
			"RUSTFS_ACCESS_KEY": RustFSAccessKey,
			"RUSTFS_SECRET_KEY": RustFSSecretKey,
		},
		WaitingFor: wait.ForListeningPort("9000/tcp").WithStartupTimeout(30 * time.Second),
	}, "9000")

	return &RustFSContainer{Service: svc, Port: port}
}

// Endpoint returns the S3 endpoint URL.
func (rc *RustFSContainer) Endpoint() string {
	return "http://" + rc.Host + ":" + rc.Port
}

// start runs req and returns the service with the host port mapped to port.
func start(ctx context.Context, t *testing.T, req testcontainers.ContainerRequest, port string) (Service, string) {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start %s: %v", req.Image, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get %s host: %v", req.Image, err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("failed to map %s port %s: %v", req.Image, port, err)
	}

	return Service{Container: container, Host: host}, mapped.Port()
}

// NewTestPool migrates the container's database and returns a pool on it.
// Migrations run first so the vector type exists when the pool registers it.
func NewTestPool(ctx context.Context, t *testing.T, pc *PostgresContainer) *pgxpool.Pool {
	t.Helper()

	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		if _, err = database.RunMigrations(pc.ConnectionString(), nil); err == nil {
			break
		}
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}

	pool, err := database.NewPool(ctx, database.Config{URL: pc.ConnectionString()})
	if err != nil {
		t.Fatalf("failed to create pool: %v", err)
	}
	return pool
}

// TruncateAll empties the chunk table between tests.
func TruncateAll(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, "TRUNCATE TABLE news_chunks"); err != nil {
		return fmt.Errorf("failed to truncate news_chunks: %w", err)
	}
	return nil
}
