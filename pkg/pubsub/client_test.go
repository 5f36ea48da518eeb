package pubsub

import (
	"context"
	"testing"
)

func TestTopicResourceName(t *testing.T) {
	tests := []struct {
		name      string
		projectID string
		topic     string
		want      string
	}{
		{"short id", "demo", "inventory-events", "projects/demo/topics/inventory-events"},
		{"full name kept", "demo", "projects/other/topics/x", "projects/other/topics/x"},
		{"trimmed", "demo", "  inv  ", "projects/demo/topics/inv"},
		{"empty topic", "demo", " ", ""},
		{"missing project", "", "inv", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := topicResourceName(tt.projectID, tt.topic); got != tt.want {
				t.Fatalf("expected %q got %q", tt.want, got)
			}
		})
	}
}

func TestNilClientIsSafe(t *testing.T) {
	var c *Client
	if c.Publisher("inv") != nil {
		t.Fatal("expected nil publisher from nil client")
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := c.Ping(context.Background()); err == nil {
		t.Fatal("expected ping error from nil client")
	}
}
