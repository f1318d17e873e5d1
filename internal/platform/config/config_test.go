package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID": "vietcart-test",
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(context.Background(),
		WithEnvMap(baseEnv()),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Fatalf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Fatalf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "vietcart-test" {
		t.Fatalf("expected firestore project to fall back to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "vietcart-test" {
		t.Fatalf("expected pubsub project to fall back to firebase project, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.PubSub.OrderEventsTopic != "order-events" {
		t.Fatalf("unexpected order events topic: %s", cfg.PubSub.OrderEventsTopic)
	}
	if cfg.Features.StrictVoucherLookup {
		t.Fatal("strict voucher lookup should default to off")
	}
	if !cfg.Features.PublishOrderEvents {
		t.Fatal("order event publishing should default to on")
	}
	if cfg.Idempotency.Header != "Idempotency-Key" {
		t.Fatalf("unexpected idempotency header: %s", cfg.Idempotency.Header)
	}
}

func TestLoadReportsMissingFields(t *testing.T) {
	_, err := Load(context.Background(),
		WithEnvMap(map[string]string{}),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)
	if err == nil {
		t.Fatal("expected validation error")
	}

	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	if len(fields) == 0 {
		t.Fatal("expected at least one missing field")
	}
	found := false
	for _, field := range fields {
		if field == "Firebase.ProjectID" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected Firebase.ProjectID in missing fields, got %v", fields)
	}
}

func TestLoadReadsDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := "# comment\nexport API_FIREBASE_PROJECT_ID=vietcart-dotenv\nAPI_SERVER_PORT=\"9090\"\n"
	if err := os.WriteFile(envFile, []byte(content), 0o600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithoutSystemEnv(),
		WithEnvFile(envFile),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "vietcart-dotenv" {
		t.Fatalf("unexpected firebase project: %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "9090" {
		t.Fatalf("expected quoted port to be trimmed, got %s", cfg.Server.Port)
	}
}

func TestLoadEnvMapOverridesDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("API_SERVER_PORT=9090\n"), 0o600); err != nil {
		t.Fatalf("writing env file: %v", err)
	}

	env := baseEnv()
	env["API_SERVER_PORT"] = "7070"
	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(envFile),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Fatalf("expected env map to win, got %s", cfg.Server.Port)
	}
}

func TestLoadResolvesPaymentSecrets(t *testing.T) {
	env := baseEnv()
	env["API_PAYMENT_MOMO_SECRET_KEY"] = "secret://momo-secret-key"
	env["API_PAYMENT_VNPAY_HASH_SECRET"] = "sm://vnpay-hash-secret"

	resolved := map[string]string{
		"secret://momo-secret-key":   "momo-secret",
		"secret://vnpay-hash-secret": "vnpay-secret",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		value, ok := resolved[ref]
		if !ok {
			return "", errors.New("unknown secret")
		}
		return value, nil
	})

	cfg, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
		WithSecretResolver(resolver),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Payments.MoMo.SecretKey != "momo-secret" {
		t.Fatalf("unexpected momo secret: %s", cfg.Payments.MoMo.SecretKey)
	}
	if cfg.Payments.VNPay.HashSecret != "vnpay-secret" {
		t.Fatalf("expected sm:// reference to resolve, got %s", cfg.Payments.VNPay.HashSecret)
	}
}

func TestLoadSecretResolutionFailure(t *testing.T) {
	env := baseEnv()
	env["API_PAYMENT_MOMO_SECRET_KEY"] = "secret://momo-secret-key"

	_, err := Load(context.Background(),
		WithEnvMap(env),
		WithoutSystemEnv(),
		WithEnvFile(""),
	)
	if err == nil {
		t.Fatal("expected error for unresolved secret reference")
	}
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://momo-secret-key" {
		t.Fatalf("unexpected ref: %s", secretErr.Ref)
	}
}
