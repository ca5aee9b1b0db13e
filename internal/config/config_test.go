package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validYAML = `
port: "8080"
logLevel: debug
databaseURL: "postgres://localhost/consultly"
jwtSecret: "secret"
amqpURL: "amqp://localhost"
eventsExchange: "events"
`

func TestLoad(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8080" || cfg.LogLevel != "debug" {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.EventsExchange != "events" {
		t.Fatalf("eventsExchange = %q", cfg.EventsExchange)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, validYAML)
	t.Setenv("PORT", "9999")
	t.Setenv("JWT_SECRET", "env-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9999" {
		t.Fatalf("port = %q, want env override", cfg.Port)
	}
	if cfg.JWTSecret != "env-secret" {
		t.Fatalf("jwtSecret = %q, want env override", cfg.JWTSecret)
	}
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "missing port",
			yaml: `databaseURL: "postgres://x"` + "\n" + `jwtSecret: "s"`,
			want: "port",
		},
		{
			name: "missing database",
			yaml: `port: "8080"` + "\n" + `jwtSecret: "s"`,
			want: "databaseURL",
		},
		{
			name: "missing jwt secret",
			yaml: `port: "8080"` + "\n" + `databaseURL: "postgres://x"`,
			want: "jwtSecret",
		},
		{
			name: "amqp without exchange",
			yaml: `port: "8080"` + "\n" + `databaseURL: "postgres://x"` + "\n" + `jwtSecret: "s"` + "\n" + `amqpURL: "amqp://x"`,
			want: "eventsExchange",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			path := writeConfig(t, c.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), c.want) {
				t.Fatalf("error %q should mention %q", err, c.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseJWTLeeway(t *testing.T) {
	d, err := ParseJWTLeeway("")
	if err != nil || d != 0 {
		t.Fatalf("empty leeway: d=%v err=%v", d, err)
	}
	d, err = ParseJWTLeeway("45s")
	if err != nil || d != 45*time.Second {
		t.Fatalf("45s: d=%v err=%v", d, err)
	}
	if _, err := ParseJWTLeeway("bogus"); err == nil {
		t.Fatal("expected error for bad duration")
	}
}
