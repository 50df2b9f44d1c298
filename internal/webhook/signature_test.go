package webhook

import (
	"strings"
	"testing"
)

func TestComputeHMAC(t *testing.T) {
	sig := ComputeHMAC([]byte(`{"type":"rule.triggered"}`), "secret")
	if !strings.HasPrefix(sig, "sha256=") {
		t.Fatalf("signature missing scheme prefix: %q", sig)
	}
	if len(sig) != len("sha256=")+64 {
		t.Errorf("expected hex-encoded sha256 digest, got %q", sig)
	}

	// Deterministic for the same payload and secret.
	if again := ComputeHMAC([]byte(`{"type":"rule.triggered"}`), "secret"); again != sig {
		t.Error("signature should be deterministic")
	}
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"type":"rule.triggered","ruleId":"r1"}`)
	sig := ComputeHMAC(payload, "secret")

	tests := []struct {
		name      string
		payload   []byte
		signature string
		secret    string
		want      bool
	}{
		{"valid", payload, sig, "secret", true},
		{"wrong secret", payload, sig, "other", false},
		{"tampered payload", []byte(`{"type":"rule.triggered","ruleId":"r2"}`), sig, "secret", false},
		{"malformed signature", payload, "sha256=zz", "secret", false},
		{"empty signature", payload, "", "secret", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := VerifySignature(tt.payload, tt.signature, tt.secret); got != tt.want {
				t.Errorf("VerifySignature = %t, want %t", got, tt.want)
			}
		})
	}
}
