package password

import "testing"

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()

	cases := []struct {
		candidate string
		want      bool
	}{
		{"Password1", true},
		{"Str0ngEnough", true},
		{"short1A", false},
		{"password1", false}, // no uppercase
		{"PASSWORD1", false}, // no lowercase
		{"Passwords", false}, // no digit
		{"", false},
		{"Päßw0rdOk", true}, // non-ASCII letters still count
	}

	for _, tc := range cases {
		if got := p.Check(tc.candidate); got != tc.want {
			t.Errorf("Check(%q) = %v, want %v", tc.candidate, got, tc.want)
		}
	}
}

func TestPolicyLengthCountsRunes(t *testing.T) {
	p := Policy{MinLength: 8}

	// 8 multibyte runes, more than 8 bytes.
	if !p.Check("ααααααα1") {
		t.Fatal("expected rune-counted length to pass")
	}
}

func TestZeroPolicyAcceptsAnything(t *testing.T) {
	var p Policy
	if !p.Check("x") {
		t.Fatal("zero policy should accept any non-empty password")
	}
}
