package config

import (
	"testing"
	"time"
)

func TestInt(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	if got := Int("TEST_INT", 7, 1); got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}
	t.Setenv("TEST_INT", "0")
	if got := Int("TEST_INT", 7, 1); got != 7 {
		t.Fatalf("expected fallback for value below min, got %d", got)
	}
	t.Setenv("TEST_INT", "abc")
	if got := Int("TEST_INT", 7, 1); got != 7 {
		t.Fatalf("expected fallback for garbage, got %d", got)
	}
}

func TestDuration(t *testing.T) {
	t.Setenv("TEST_DUR", "1500")
	if got := Duration("TEST_DUR", time.Second, time.Millisecond); got != 1500*time.Millisecond {
		t.Fatalf("expected 1.5s, got %s", got)
	}
	t.Setenv("TEST_DUR", "3s")
	if got := Duration("TEST_DUR", time.Second, time.Millisecond); got != 3*time.Second {
		t.Fatalf("expected 3s, got %s", got)
	}
	t.Setenv("TEST_DUR", "-1")
	if got := Duration("TEST_DUR", time.Second, time.Millisecond); got != time.Second {
		t.Fatalf("expected fallback, got %s", got)
	}
}

func TestBoolAndList(t *testing.T) {
	t.Setenv("TEST_BOOL", "Yes")
	if !Bool("TEST_BOOL", false) {
		t.Fatal("expected true")
	}
	t.Setenv("TEST_BOOL", "maybe")
	if Bool("TEST_BOOL", false) {
		t.Fatal("expected fallback false")
	}

	t.Setenv("TEST_LIST", " a, ,b ,c")
	got := List("TEST_LIST", "")
	if len(got) != 3 || got[0] != "a" || got[1] != "b" || got[2] != "c" {
		t.Fatalf("unexpected list: %#v", got)
	}
}

func TestPort(t *testing.T) {
	t.Setenv("TEST_PORT", "70000")
	if _, err := Port("TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out of range port")
	}
	t.Setenv("TEST_PORT", "")
	if p, err := Port("TEST_PORT", "8080"); err != nil || p != "8080" {
		t.Fatalf("expected fallback port, got %q %v", p, err)
	}
}
