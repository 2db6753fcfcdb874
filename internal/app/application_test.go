package app

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"huddle/internal/client"
	"huddle/internal/config"
	"huddle/pkg/types"
)

func testConfig(t *testing.T, driver string) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.HTTP.Host = "127.0.0.1"
	cfg.HTTP.Port = 0
	cfg.Database.Driver = driver
	cfg.Database.Path = filepath.Join(t.TempDir(), "huddle.db")
	return cfg
}

func startApp(t *testing.T, cfg *config.Config) *Application {
	t.Helper()
	application, err := NewApplication(cfg, slog.Default())
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = application.Stop(ctx)
	})
	return application
}

func TestNewApplication_RejectsInvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.HTTP.Port = -1

	if _, err := NewApplication(cfg, slog.Default()); err == nil {
		t.Error("invalid config must be rejected")
	}
}

func TestNewApplication_DefaultConfigOnFreshCheckout(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	application, err := NewApplication(config.DefaultConfig(), slog.Default())
	if err != nil {
		t.Fatalf("NewApplication with defaults: %v", err)
	}
	defer application.store.Close()

	if _, err := os.Stat(filepath.Join(dir, "data", "huddle.db")); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

func TestApplication_EndToEnd(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			application := startApp(t, testConfig(t, driver))
			ctx := t.Context()

			api := client.NewHTTPClient("http://" + application.Addr())
			created, err := api.CreateSession(ctx, "Trivia Night", "Ada")
			if err != nil {
				t.Fatalf("CreateSession: %v", err)
			}

			stream, err := client.Dial(ctx, "ws://"+application.Addr()+"/ws", 0)
			if err != nil {
				t.Fatalf("Dial: %v", err)
			}
			defer stream.Close()

			deadline := time.Now().Add(2 * time.Second)
			for application.registry.Count() == 0 && time.Now().Before(deadline) {
				time.Sleep(10 * time.Millisecond)
			}

			if _, err := api.JoinSession(ctx, created.ID, "Bob"); err != nil {
				t.Fatalf("JoinSession: %v", err)
			}

			event, err := stream.Next()
			if err != nil {
				t.Fatalf("Next: %v", err)
			}
			users, ok := event.(*types.SessionUsersEvent)
			if !ok || len(users.Users) != 2 {
				t.Fatalf("expected users event with 2 users, got %#v", event)
			}
		})
	}
}

func TestApplication_StopClosesStreams(t *testing.T) {
	application, err := NewApplication(testConfig(t, config.DriverMemory), slog.Default())
	if err != nil {
		t.Fatalf("NewApplication failed: %v", err)
	}
	if err := application.Start(t.Context()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stream, err := client.Dial(t.Context(), "ws://"+application.Addr()+"/ws", 0)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer stream.Close()

	deadline := time.Now().Add(2 * time.Second)
	for application.registry.Count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := application.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if _, err := stream.Next(); err == nil {
		t.Error("stream must be closed by shutdown")
	}
	if application.registry.Count() != 0 {
		t.Errorf("registry not drained, %d connections left", application.registry.Count())
	}
}

const seedJSON = `{
	"sessions": [
		{"id": "s1", "name": "Trivia Night", "startedAt": null, "stoppedAt": null, "createdAt": "2024-05-01T12:00:00Z"}
	],
	"users": [
		{"id": "u1", "sessionId": "s1", "name": "Ada", "isHost": true, "order": 1},
		{"id": "u2", "sessionId": "s1", "name": "Bob", "isHost": false, "order": 2}
	],
	"activities": [
		{"id": "a1", "sessionId": "s1", "event": "Ada created session Trivia Night.", "eventAt": "2024-05-01T12:00:00Z"},
		{"id": "a2", "sessionId": "s1", "event": "Bob joined session.", "eventAt": "2024-05-01T12:01:00Z"}
	]
}`

func writeSeed(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "seed.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write seed: %v", err)
	}
	return path
}

func TestApplication_Seed(t *testing.T) {
	for _, driver := range []string{config.DriverMemory, config.DriverSQLite} {
		t.Run(driver, func(t *testing.T) {
			seed, err := LoadSeedFile(writeSeed(t, seedJSON))
			if err != nil {
				t.Fatalf("LoadSeedFile: %v", err)
			}

			application, err := NewApplication(testConfig(t, driver), slog.Default())
			if err != nil {
				t.Fatalf("NewApplication: %v", err)
			}
			defer application.store.Close()

			if err := application.Seed(t.Context(), seed); err != nil {
				t.Fatalf("Seed: %v", err)
			}

			users, err := application.sessions.GetSessionUsers(t.Context(), "s1")
			if err != nil || len(users) != 2 || users[0].Name != "Ada" {
				t.Fatalf("seeded users = %+v, err = %v", users, err)
			}
			activities, err := application.sessions.GetSessionActivities(t.Context(), "s1")
			if err != nil || len(activities) != 2 {
				t.Fatalf("seeded activities = %+v, err = %v", activities, err)
			}
		})
	}
}

func TestSeed_RejectedRecordWritesNothing(t *testing.T) {
	seed, err := LoadSeedFile(writeSeed(t, `{
		"sessions": [{"id": "s1", "name": "Trivia Night"}],
		"users": [{"id": "u1", "sessionId": "s1", "name": "", "order": 1}]
	}`))
	if err != nil {
		t.Fatalf("LoadSeedFile: %v", err)
	}

	application, err := NewApplication(testConfig(t, config.DriverMemory), slog.Default())
	if err != nil {
		t.Fatalf("NewApplication: %v", err)
	}
	defer application.store.Close()

	if err := application.Seed(t.Context(), seed); !types.IsValidationError(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := application.sessions.GetSession(t.Context(), "s1"); !types.IsNotFoundError(err) {
		t.Errorf("session must be rolled back, got %v", err)
	}
}

func TestLoadSeedFile_Errors(t *testing.T) {
	if _, err := LoadSeedFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("missing file must fail")
	}
	if _, err := LoadSeedFile(writeSeed(t, `{"sessions": [`)); err == nil {
		t.Error("malformed file must fail")
	}
}
