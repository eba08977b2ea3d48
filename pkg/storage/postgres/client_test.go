package postgres_test

import (
	"context"
	"testing"
	"time"

	"pairstream/config"
	"pairstream/pkg/storage/postgres"
)

func localConfig(dbname string) config.PostgresConfig {
	return config.PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "yourpw",
		DBName:   dbname,
		SSLMode:  "disable",
		TimeZone: "UTC",

		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 1 * time.Hour,
	}
}

// localClient connects to the local test database, skipping the test when no
// server is reachable.
func localClient(t *testing.T, dbname string) *postgres.PostgresClient {
	t.Helper()

	cfg := localConfig(dbname)
	client, err := postgres.NewClient(cfg.DSN("dev"))
	if err != nil {
		t.Skipf("local postgres unavailable: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if !client.IsHealthy(ctx) {
		t.Skip("local postgres unavailable")
	}
	return client
}

// go test -v --run ^TestPostgresInvalidDSN$
func TestPostgresInvalidDSN(t *testing.T) {
	invalidDSN := "host=invalid port=5432 user=fail password=fail dbname=fail sslmode=disable"

	_, err := postgres.NewClient(invalidDSN)
	if err == nil {
		t.Fatal("expected error for invalid DSN, got nil")
	}
}

// go test -v --run ^TestPostgresClientWithConfig$
func TestPostgresClientWithConfig(t *testing.T) {
	client := localClient(t, "pairstream")
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if !client.IsHealthy(ctx) {
		t.Fatal("expected healthy DB connection")
	}

	if err := client.AutoMigrateTickRecord(); err != nil {
		t.Fatalf("auto migration failed: %v", err)
	}
}
