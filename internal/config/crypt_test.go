package config

import "testing"

func TestDeriveKeyIsDeterministicAndFullLength(t *testing.T) {
	a := DeriveKey("shared-secret")
	b := DeriveKey("shared-secret")
	if len(a) != 32 {
		t.Fatalf("expected a 32-byte key, got %d", len(a))
	}
	if string(a) != string(b) {
		t.Fatal("expected DeriveKey to be deterministic for the same passphrase")
	}
	c := DeriveKey("different-secret")
	if string(a) == string(c) {
		t.Fatal("expected different passphrases to derive different keys")
	}
}

func TestSelectBlockCryptKnownMethod(t *testing.T) {
	key := DeriveKey("shared-secret")
	block, name := SelectBlockCrypt("aes-128", key)
	if block == nil {
		t.Fatal("expected a non-nil BlockCrypt for aes-128")
	}
	if name != "aes-128" {
		t.Fatalf("expected effective name aes-128, got %q", name)
	}
}

func TestSelectBlockCryptUnknownFallsBackToAES(t *testing.T) {
	key := DeriveKey("shared-secret")
	block, name := SelectBlockCrypt("not-a-real-cipher", key)
	if block == nil {
		t.Fatal("expected fallback aes BlockCrypt")
	}
	if name != "aes" {
		t.Fatalf("expected fallback name aes, got %q", name)
	}
}

func TestSelectBlockCryptNull(t *testing.T) {
	block, name := SelectBlockCrypt("null", nil)
	if block != nil {
		t.Fatal("expected null cipher to yield a nil BlockCrypt")
	}
	if name != "null" {
		t.Fatalf("expected effective name null, got %q", name)
	}
}
