package config

import "testing"

func TestString(t *testing.T) {
	t.Setenv("SNAPCAM_TEST_STR", "")
	if got := String("SNAPCAM_TEST_STR", "def"); got != "def" {
		t.Errorf("String unset = %q, want def", got)
	}
	t.Setenv("SNAPCAM_TEST_STR", "set")
	if got := String("SNAPCAM_TEST_STR", "def"); got != "set" {
		t.Errorf("String set = %q, want set", got)
	}
}

func TestInt(t *testing.T) {
	tests := []struct {
		val  string
		want int
	}{
		{"", 7},
		{"42", 42},
		{"-1", -1},
		{"nope", 7},
	}
	for _, tt := range tests {
		t.Setenv("SNAPCAM_TEST_INT", tt.val)
		if got := Int("SNAPCAM_TEST_INT", 7); got != tt.want {
			t.Errorf("Int(%q) = %d, want %d", tt.val, got, tt.want)
		}
	}
}

func TestDefaults(t *testing.T) {
	t.Setenv(EnvReceiverURL, "")
	t.Setenv(EnvPort, "")
	t.Setenv(EnvDevice, "")
	t.Setenv(EnvSessionID, "")

	if ReceiverURL() != DefaultReceiverURL {
		t.Errorf("ReceiverURL() = %q", ReceiverURL())
	}
	if Port() != DefaultPort {
		t.Errorf("Port() = %d", Port())
	}
	if Device() != -1 {
		t.Errorf("Device() = %d, want -1", Device())
	}
	if SessionID() != "" {
		t.Errorf("SessionID() = %q, want empty", SessionID())
	}
}
