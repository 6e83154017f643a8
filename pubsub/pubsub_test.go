package pubsub

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		topic   string
		want    bool
	}{
		{"gocommand.ack", "gocommand.ack", true},
		{"gocommand.ack", "gocommand.events.s1", false},
		{"gocommand.events.>", "gocommand.events.s1", true},
		{"gocommand.events.>", "gocommand.events.bank-account-ACC1", true},
		{"gocommand.events.>", "gocommand.ack", false},
		{">", "anything", true},
	}
	for _, tt := range tests {
		if got := Match(tt.pattern, tt.topic); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.topic, got, tt.want)
		}
	}
}
