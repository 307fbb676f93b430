package main

import (
	"testing"

	"golang.org/x/crypto/bcrypt"

	"udhaar/backend/internal/config"
	"udhaar/backend/internal/domain"
)

const strongSecret = "0123456789abcdef0123456789abcdef"

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected short secret to be rejected")
	}
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret, BootstrapOwnerPassword: "abc"}); err == nil {
		t.Fatalf("expected short bootstrap password to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: strongSecret}); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}

func TestBootstrapOwnerUnset(t *testing.T) {
	_, ok, err := bootstrapOwner(config.Config{})
	if err != nil || ok {
		t.Fatalf("expected no bootstrap owner, got ok=%v err=%v", ok, err)
	}
}

func TestBootstrapOwnerRequiresAllFields(t *testing.T) {
	_, _, err := bootstrapOwner(config.Config{BootstrapTenant: "shop-1", BootstrapOwnerUsername: "asha"})
	if err == nil {
		t.Fatalf("expected partial bootstrap config to be rejected")
	}
}

func TestBootstrapOwnerHashesPassword(t *testing.T) {
	user, ok, err := bootstrapOwner(config.Config{
		BootstrapTenant:        "shop-1",
		BootstrapOwnerUsername: "asha",
		BootstrapOwnerPassword: "correct-horse",
	})
	if err != nil || !ok {
		t.Fatalf("expected bootstrap owner, got ok=%v err=%v", ok, err)
	}
	if user.Role != domain.RoleOwner || user.TenantID != "shop-1" || !user.Active {
		t.Fatalf("unexpected account: %+v", user)
	}
	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte("correct-horse")) != nil {
		t.Fatalf("password was not hashed with bcrypt")
	}
}
