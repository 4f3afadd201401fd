package primitives

import (
	"errors"
	"testing"
)

func TestValidatorID_TextRoundTrip(t *testing.T) {
	var id ValidatorID
	for i := range id {
		id[i] = byte(i + 1)
	}

	text, err := id.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var parsed ValidatorID
	if err := parsed.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed != id {
		t.Fatalf("parsed = %v, want %v", parsed, id)
	}
}

func TestParseValidatorID_RejectsWrongLength(t *testing.T) {
	_, err := ParseValidatorID("3yZe7d")
	if !errors.Is(err, ErrInvalidValidatorID) {
		t.Fatalf("error = %v, want %v", err, ErrInvalidValidatorID)
	}
	_, err = ParseValidatorID("  ")
	if !errors.Is(err, ErrInvalidValidatorID) {
		t.Fatalf("error = %v, want %v", err, ErrInvalidValidatorID)
	}
}

func TestValidatorIDs_DropsAccounts(t *testing.T) {
	pairs := []AccountValidator{
		{Account: "alice", ID: ValidatorID{1}},
		{Account: "bob", ID: ValidatorID{2}},
	}
	ids := ValidatorIDs(pairs)
	if len(ids) != 2 || ids[0] != (ValidatorID{1}) || ids[1] != (ValidatorID{2}) {
		t.Fatalf("ids = %v", ids)
	}
}

func TestWeightAdd(t *testing.T) {
	tests := []struct {
		name string
		a, b Weight
		want Weight
	}{
		{name: "zero", a: 0, b: 0, want: 0},
		{name: "small", a: 7, b: 5, want: 12},
		{name: "saturates", a: MaxWeight - 1, b: 5, want: MaxWeight},
		{name: "max plus zero", a: MaxWeight, b: 0, want: MaxWeight},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Add(tt.b); got != tt.want {
				t.Fatalf("%d + %d = %d, want %d", tt.a, tt.b, got, tt.want)
			}
			if got := tt.b.Add(tt.a); got != tt.want {
				t.Fatalf("%d + %d = %d, want %d", tt.b, tt.a, got, tt.want)
			}
		})
	}
}

func TestSessionIndexSaturatingSub(t *testing.T) {
	if got := SessionIndex(3).SaturatingSub(5); got != 0 {
		t.Fatalf("3 - 5 = %d, want 0", got)
	}
	if got := SessionIndex(9).SaturatingSub(2); got != 7 {
		t.Fatalf("9 - 2 = %d, want 7", got)
	}
}

func TestParseHash(t *testing.T) {
	h := Hash{0xab, 0xcd}
	parsed, err := ParseHash(h.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != h {
		t.Fatalf("parsed = %v, want %v", parsed, h)
	}
	if _, err := ParseHash("0x1234"); !errors.Is(err, ErrInvalidHash) {
		t.Fatalf("error = %v, want %v", err, ErrInvalidHash)
	}
}
