package core

import "testing"

func TestValueEqual(t *testing.T) {
	cases := []struct {
		name string
		a, b Value
		want bool
	}{
		{"null_null", Null(), Null(), true},
		{"null_bool", Null(), Bool(false), false},
		{"bool_same", Bool(true), Bool(true), true},
		{"bool_diff", Bool(true), Bool(false), false},
		{"int_same", Int(42), Int(42), true},
		{"int_float", Int(1), Float(1), false},
		{"text_same", Text("a"), Text("a"), true},
		{"list_same", List(Int(1), Text("x")), List(Int(1), Text("x")), true},
		{"list_order", List(Int(1), Int(2)), List(Int(2), Int(1)), false},
		{"map_same", Map(map[string]Value{"a": Int(1)}), Map(map[string]Value{"a": Int(1)}), true},
		{"map_extra_key", Map(map[string]Value{"a": Int(1)}), Map(map[string]Value{"a": Int(1), "b": Int(2)}), false},
		{"nested", Map(map[string]Value{"l": List(Bool(true))}), Map(map[string]Value{"l": List(Bool(true))}), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValueEqual(tc.a, tc.b); got != tc.want {
				t.Fatalf("ValueEqual(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestNewMessageNormalizesNilPayload(t *testing.T) {
	msg := NewMessage(ChannelTopic, "weather.update", nil, nil)
	if _, ok := msg.Payload.(NullValue); !ok {
		t.Fatalf("expected NullValue payload, got %T", msg.Payload)
	}
	if msg.ID == "" {
		t.Error("expected generated message id")
	}
}

func TestLifecycleStateString(t *testing.T) {
	if StateActive.String() != "active" || StateShuttingDown.String() != "shutting_down" {
		t.Errorf("unexpected state strings: %s, %s", StateActive, StateShuttingDown)
	}
	if LifecycleState(99).String() != "unknown" {
		t.Error("out-of-range state should print unknown")
	}
}
