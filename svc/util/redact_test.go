package util

import (
	"strings"
	"testing"
)

func TestRedactIP(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"192.168.1.100", "192.168.1.0"},
		{"10.0.0.7:54321", "10.0.0.0"},
		{"[2001:db8:85a3::8a2e:370:7334]:443", "2001:db8::"},
	}
	for _, tt := range tests {
		if got := RedactIP(tt.in); got != tt.want {
			t.Errorf("RedactIP(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if got := RedactIP("not-an-ip"); !strings.HasPrefix(got, "hash:") {
		t.Errorf("unparseable address should be hashed, got %q", got)
	}
}

func TestRedactID(t *testing.T) {
	id := "AbCdEfGhIjKlMnOpQrStUv"
	got := RedactID(id)
	if strings.Contains(got, id[4:20]) {
		t.Errorf("redacted id leaks the middle of the id: %q", got)
	}
	if got != "AbCd...Uv" {
		t.Errorf("RedactID(%q) = %q", id, got)
	}
	if RedactID("") != "" {
		t.Error("empty id should stay empty")
	}
	if RedactID("abc") != "[ID-REDACTED]" {
		t.Error("short ids should be fully redacted")
	}
}
