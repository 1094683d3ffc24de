package testsupport

import "testing"

func TestPostgresConfigFromEnv(t *testing.T) {
	t.Setenv("POSTGRES_HOST", "localhost")
	t.Setenv("POSTGRES_USER", "user")
	t.Setenv("POSTGRES_PASSWORD", "pass")
	t.Setenv("POSTGRES_DB", "db")
	t.Setenv("POSTGRES_PORT", "5543")

	cfg := PostgresConfigFromEnv(t)
	if cfg.Host != "localhost" || cfg.Port != 5543 || cfg.Database != "db" {
		t.Fatalf("unexpected postgres config %+v", cfg)
	}
	if cfg.SSLMode != "disable" {
		t.Fatalf("expected default ssl mode, got %q", cfg.SSLMode)
	}
}

func TestRedisConfigFromEnv(t *testing.T) {
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("REDIS_DB", "2")

	cfg := RedisConfigFromEnv(t)
	if cfg.Host != "redis" || cfg.Port != 6380 || cfg.DB != 2 {
		t.Fatalf("unexpected redis config %+v", cfg)
	}
}
