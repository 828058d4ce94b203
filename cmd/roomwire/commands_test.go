package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/vovakirdan/roomwire/internal/auth"
	"github.com/vovakirdan/roomwire/internal/config"
)

func TestTokenCommandMintsVerifiableToken(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROOMWIRE_JWT_SECRET", "cli-secret")

	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"token", "--config", filepath.Join(dir, "config.yaml"), "--user-id", "7", "--username", "alice"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	cfg := config.Default()
	claims, err := auth.ValidateToken(&auth.JWTConfig{
		Secret:   []byte("cli-secret"),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
	}, strings.TrimSpace(out.String()))
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if claims.UserID != 7 || claims.Username != "alice" {
		t.Fatalf("unexpected claims %+v", claims)
	}
}

func TestTokenCommandRequiresIdentity(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"token"})
	if err := root.Execute(); err == nil {
		t.Fatalf("expected missing flags to fail")
	}
}

func TestMigrateCommand(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("ROOMWIRE_DATABASE_PATH", filepath.Join(dir, "roomwire.db"))

	root := newRootCmd()
	root.SetArgs([]string{"migrate", "--config", filepath.Join(dir, "config.yaml")})
	if err := root.Execute(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
}
