package dialogue

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skilldock/skilldock/core"
)

func TestAnyValidator(t *testing.T) {
	v, ok := Any{}.Validate("whatever input")
	assert.True(t, ok)
	assert.True(t, core.ValueEqual(core.Text("whatever input"), v))
}

func TestBoolValidatorExact(t *testing.T) {
	v := Bool{}
	cases := []struct {
		raw      string
		want     bool
		accepted bool
	}{
		{"yes", true, true},
		{"  YES ", true, true},
		{"no", false, true},
		{"true", true, true},
		{"false", false, true},
		{"1", true, true},
		{"0", false, true},
		{"yeah", false, false}, // fuzzy only
		{"banana", false, false},
		{"", false, false},
	}
	for _, tc := range cases {
		got, ok := v.Validate(tc.raw)
		assert.Equal(t, tc.accepted, ok, "input %q", tc.raw)
		if tc.accepted {
			assert.True(t, core.ValueEqual(core.Bool(tc.want), got), "input %q", tc.raw)
		}
	}
}

func TestBoolValidatorFuzzy(t *testing.T) {
	v := Bool{Fuzzy: true}

	got, ok := v.Validate("yeah sure!")
	assert.True(t, ok)
	assert.True(t, core.ValueEqual(core.Bool(true), got))

	got, ok = v.Validate("nope, not today")
	assert.True(t, ok)
	assert.True(t, core.ValueEqual(core.Bool(false), got))

	_, ok = v.Validate("banana")
	assert.False(t, ok)
}

func TestKeyMapValidator(t *testing.T) {
	v := KeyMap{Choices: map[string]core.Value{
		"small":  core.Int(1),
		"medium": core.Int(2),
		"large":  core.Int(3),
	}}

	got, ok := v.Validate("  Medium ")
	assert.True(t, ok)
	assert.True(t, core.ValueEqual(core.Int(2), got))

	_, ok = v.Validate("extra large")
	assert.False(t, ok)
}

func TestAllowListValidator(t *testing.T) {
	v := AllowList{Allowed: []string{"red", "Green", "blue"}}

	got, ok := v.Validate("GREEN")
	assert.True(t, ok)
	assert.True(t, core.ValueEqual(core.Text("green"), got))

	got, ok = v.Validate("")
	assert.True(t, ok, "empty input is allowed")
	assert.True(t, core.ValueEqual(core.Text(""), got))

	_, ok = v.Validate("purple")
	assert.False(t, ok)
}

func TestOptionalValidator(t *testing.T) {
	v := Optional{Inner: Bool{}}

	got, ok := v.Validate("")
	assert.True(t, ok)
	assert.True(t, core.ValueEqual(core.Null(), got))

	got, ok = v.Validate("yes")
	assert.True(t, ok)
	assert.True(t, core.ValueEqual(core.Bool(true), got))

	_, ok = v.Validate("banana")
	assert.False(t, ok, "non-empty input still goes through the inner validator")
}
