package artifact

import (
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestHMACSigner_SignAndVerify(t *testing.T) {
	s := NewHMACSigner("https://files.example.com", []byte("secret"))

	signed, err := s.SignURL("jobs/abc.zip", 15*time.Minute)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	if !strings.HasPrefix(signed, "https://files.example.com/jobs/abc.zip?") {
		t.Errorf("unexpected url shape: %s", signed)
	}

	u, err := url.Parse(signed)
	if err != nil {
		t.Fatalf("parse signed url: %v", err)
	}
	expires, err := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	if err != nil {
		t.Fatalf("parse expires: %v", err)
	}
	sig := u.Query().Get("signature")

	if !s.Verify("jobs/abc.zip", expires, sig) {
		t.Error("expected signature to verify")
	}
	if s.Verify("jobs/other.zip", expires, sig) {
		t.Error("signature verified for wrong key")
	}
}

func TestHMACSigner_Expiry(t *testing.T) {
	s := NewHMACSigner("https://files.example.com", []byte("secret"))
	s.now = func() time.Time { return time.Unix(1000, 0) }

	signed, err := s.SignURL("k", time.Minute)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}

	u, _ := url.Parse(signed)
	expires, _ := strconv.ParseInt(u.Query().Get("expires"), 10, 64)
	sig := u.Query().Get("signature")

	s.now = func() time.Time { return time.Unix(1000+61, 0) }
	if s.Verify("k", expires, sig) {
		t.Error("expected expired signature to fail verification")
	}
}

func TestHMACSigner_Invalid(t *testing.T) {
	s := NewHMACSigner("https://files.example.com/", []byte("secret"))

	if _, err := s.SignURL("", time.Minute); err == nil {
		t.Error("expected error for empty key")
	}
	if _, err := s.SignURL("k", 0); err == nil {
		t.Error("expected error for zero ttl")
	}
}
