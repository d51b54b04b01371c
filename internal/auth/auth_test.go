package auth

import (
	"net/http/httptest"
	"testing"
)

func TestValidateAPIKey(t *testing.T) {
	a := NewAuthenticator([]APIKey{
		{KeyHash: HashAPIKey("secret-1"), Name: "accountant-1"},
		{KeyHash: HashAPIKey("secret-2"), Name: "accountant-2"},
	})

	actor, err := a.ValidateAPIKey("secret-1")
	if err != nil {
		t.Fatalf("ValidateAPIKey() error = %v", err)
	}
	if actor != "accountant-1" {
		t.Errorf("ValidateAPIKey() actor = %q, want accountant-1", actor)
	}

	if _, err := a.ValidateAPIKey("wrong-key"); err == nil {
		t.Error("ValidateAPIKey() expected error for unknown key")
	}
}

func TestExtractAPIKey(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		want    string
		wantErr bool
	}{
		{name: "bearer", header: "Bearer my-key", want: "my-key"},
		{name: "lowercase scheme", header: "bearer my-key", want: "my-key"},
		{name: "missing header", header: "", wantErr: true},
		{name: "no scheme", header: "my-key", wantErr: true},
		{name: "wrong scheme", header: "Basic my-key", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			got, err := ExtractAPIKey(r)
			if tt.wantErr {
				if err == nil {
					t.Error("ExtractAPIKey() expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ExtractAPIKey() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ExtractAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHashAPIKey_Deterministic(t *testing.T) {
	if HashAPIKey("abc") != HashAPIKey("abc") {
		t.Error("HashAPIKey() should be deterministic")
	}
	if HashAPIKey("abc") == HashAPIKey("abd") {
		t.Error("HashAPIKey() collision for distinct inputs")
	}
}
