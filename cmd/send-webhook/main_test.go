package main

import "testing"

func TestIsLocal(t *testing.T) {
	tests := []struct {
		url  string
		want bool
	}{
		{url: "http://localhost:8080/webhook", want: true},
		{url: "http://127.0.0.1/webhook", want: true},
		{url: "http://[::1]:8080/webhook", want: true},
		{url: "https://gateway.example.com/webhook", want: false},
		{url: "://bad", want: false},
	}

	for _, tt := range tests {
		if got := isLocal(tt.url); got != tt.want {
			t.Fatalf("isLocal(%q) = %v, want %v", tt.url, got, tt.want)
		}
	}
}
