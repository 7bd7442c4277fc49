package domain

import (
	"fmt"
	"testing"
)

func TestTouchDeviceKeepsFiveMostRecent(t *testing.T) {
	u := &User{}
	for i := 0; i < 7; i++ {
		u.TouchDevice(fmt.Sprintf("dev-%d", i), "phone", "ua", "1.2.3.4")
	}

	if len(u.Devices) != 5 {
		t.Fatalf("devices = %d, want 5", len(u.Devices))
	}
	if u.Devices[0].ID != "dev-6" {
		t.Errorf("newest device = %s, want dev-6", u.Devices[0].ID)
	}
	current := 0
	for _, d := range u.Devices {
		if d.Current {
			current++
		}
	}
	if current != 1 {
		t.Errorf("current devices = %d, want exactly 1", current)
	}
}

func TestTouchDeviceReplacesSameID(t *testing.T) {
	u := &User{}
	u.TouchDevice("a", "phone", "ua", "ip")
	u.TouchDevice("b", "laptop", "ua", "ip")
	u.TouchDevice("a", "phone", "ua2", "ip2")

	if len(u.Devices) != 2 {
		t.Fatalf("devices = %d, want 2", len(u.Devices))
	}
	if u.Devices[0].ID != "a" || !u.Devices[0].Current {
		t.Errorf("repeat login should move device to front as current, got %+v", u.Devices[0])
	}
}

func TestAppendChatTrimsOldest(t *testing.T) {
	u := &User{}
	for i := 0; i < 55; i++ {
		u.AppendChat("user", fmt.Sprintf("message %d", i))
	}

	if len(u.ChatHistory) != maxChatHistory {
		t.Fatalf("chat history = %d, want %d", len(u.ChatHistory), maxChatHistory)
	}
	if u.ChatHistory[0].Content != "message 5" {
		t.Errorf("oldest kept = %q, want message 5", u.ChatHistory[0].Content)
	}
	if u.ChatHistory[len(u.ChatHistory)-1].Content != "message 54" {
		t.Errorf("newest = %q, want message 54", u.ChatHistory[len(u.ChatHistory)-1].Content)
	}
}
