package token

import (
	"testing"
	"time"

	"github.com/hitoshi/nbhdcity/internal/model"
)

func TestMintAndVerify(t *testing.T) {
	m := NewManager("test-secret", 7*24*time.Hour)

	tok, err := m.Mint("did:plc:alice")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	userID, err := m.Verify(tok)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != "did:plc:alice" {
		t.Errorf("subject = %q, want did:plc:alice", userID)
	}
}

func TestVerify_ExpiredToken(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)

	tok, err := m.Mint("did:plc:alice")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	_, err = m.Verify(tok)
	if !model.IsAuth(err) {
		t.Fatalf("expected auth error for expired token, got %v", err)
	}
}

func TestVerify_WrongSecret(t *testing.T) {
	tok, err := NewManager("secret-a", time.Hour).Mint("did:plc:alice")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	_, err = NewManager("secret-b", time.Hour).Verify(tok)
	if !model.IsAuth(err) {
		t.Fatalf("expected auth error for wrong secret, got %v", err)
	}
}

func TestVerify_Garbage(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	for _, tok := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, err := m.Verify(tok); !model.IsAuth(err) {
			t.Errorf("Verify(%q): expected auth error, got %v", tok, err)
		}
	}
}

func TestVerify_TamperedPayload(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	tok, err := m.Mint("did:plc:alice")
	if err != nil {
		t.Fatalf("Mint failed: %v", err)
	}

	tampered := []byte(tok)
	// ペイロード部の1バイトを書き換えると署名検証が失敗する
	tampered[len(tampered)/2] ^= 0x01

	if _, err := m.Verify(string(tampered)); !model.IsAuth(err) {
		t.Fatalf("expected auth error for tampered token, got %v", err)
	}
}
