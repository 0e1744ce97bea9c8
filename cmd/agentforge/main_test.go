package main

import (
	"reflect"
	"testing"
)

func TestOriginPatterns(t *testing.T) {
	tests := []struct {
		origin string
		want   []string
	}{
		{"", []string{"*"}},
		{"*", []string{"*"}},
		{"http://localhost:3000", []string{"localhost:3000"}},
		{"https://app.example.com", []string{"app.example.com"}},
		{"app.example.com", []string{"app.example.com"}},
	}
	for _, tt := range tests {
		if got := originPatterns(tt.origin); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("originPatterns(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("äöüäöü", 4); got != "äöü…" {
		t.Errorf("truncate = %q", got)
	}
}

func TestTypeListRejectsUnknown(t *testing.T) {
	var l typeList
	if err := l.Set("handoff"); err != nil {
		t.Fatal(err)
	}
	if err := l.Set("bogus"); err == nil {
		t.Fatal("expected error for unknown type")
	}
	if len(l) != 1 {
		t.Fatalf("len = %d", len(l))
	}
}
