package auth

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	v := NewValidator([]*KeyInfo{
		{Key: "sk-a", Enabled: true, Identity: Identity{Username: "ada"}},
		{Key: "sk-b", Enabled: false, Identity: Identity{Username: "bob"}},
	})

	identity, err := v.Validate("sk-a")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if identity.Username != "ada" {
		t.Errorf("username = %q", identity.Username)
	}

	// Disabled and unknown keys fail with the same error text.
	_, errDisabled := v.Validate("sk-b")
	_, errUnknown := v.Validate("sk-z")
	if errDisabled == nil || errUnknown == nil {
		t.Fatal("disabled and unknown keys must both fail")
	}
	if errDisabled.Error() != errUnknown.Error() {
		t.Errorf("error texts differ: %q vs %q", errDisabled, errUnknown)
	}
}

func TestReplaceSwapsKeys(t *testing.T) {
	v := NewValidator([]*KeyInfo{
		{Key: "sk-old", Enabled: true, Identity: Identity{Username: "ada"}},
	})

	v.Replace([]*KeyInfo{
		{Key: "sk-new", Enabled: true, Identity: Identity{Username: "bob"}},
	})

	if _, err := v.Validate("sk-old"); err == nil {
		t.Error("old key still valid after replace")
	}
	if _, err := v.Validate("sk-new"); err != nil {
		t.Errorf("new key invalid after replace: %v", err)
	}
}

func TestCheckAccess(t *testing.T) {
	ada := &Identity{
		Username: "ada",
		Email:    "ada@example.com",
		Groups:   []string{"research", "oncall"},
	}

	tests := []struct {
		name    string
		groups  []string
		domains []string
		wantOK  bool
	}{
		{"unrestricted", nil, nil, true},
		{"group allowed", []string{"research"}, nil, true},
		{"group denied", []string{"finance"}, nil, false},
		{"domain allowed", nil, []string{"example.com"}, true},
		{"domain denied", nil, []string{"other.org"}, false},
		{"group allowed but domain denied", []string{"research"}, []string{"other.org"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckAccess(ada, tt.groups, tt.domains)
			if tt.wantOK && err != nil {
				t.Errorf("CheckAccess: %v", err)
			}
			if !tt.wantOK {
				var denied *AccessDeniedError
				if !errors.As(err, &denied) {
					t.Errorf("error type = %T, want *AccessDeniedError", err)
				}
			}
		})
	}
}

func TestIdentityDomain(t *testing.T) {
	if got := (&Identity{Email: "ada@example.com"}).Domain(); got != "example.com" {
		t.Errorf("domain = %q", got)
	}
	if got := (&Identity{Email: "no-at-sign"}).Domain(); got != "" {
		t.Errorf("domain = %q, want empty for malformed email", got)
	}
	if got := (&Identity{}).Domain(); got != "" {
		t.Errorf("domain = %q, want empty when unset", got)
	}
}

func TestSecretsEqual(t *testing.T) {
	if !SecretsEqual("hop-secret", "hop-secret") {
		t.Error("equal secrets compare unequal")
	}
	if SecretsEqual("hop-secret", "hop-secreT") {
		t.Error("different secrets compare equal")
	}
	if SecretsEqual("", "hop-secret") {
		t.Error("empty secret compares equal")
	}
}
