package parse

import "testing"

func TestSuffixedNumber(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"82.28B", 82280000000, true},
		{"3.72K", 3720, true},
		{"1.5M", 1500000, true},
		{"950", 950, true},
		{"1,234", 1234, true},
		{"2.6k", 2600, true},
		{"  45M ", 45000000, true},
		{"", 0, false},
		{"N/A", 0, false},
		{"12X", 0, false},
		{"-5K", 0, false},
	}
	for _, c := range cases {
		got := SuffixedNumber(c.in)
		if c.ok != (got != nil) {
			t.Errorf("SuffixedNumber(%q) presence = %v, want %v", c.in, got != nil, c.ok)
			continue
		}
		if got != nil && *got != c.want {
			t.Errorf("SuffixedNumber(%q) = %d, want %d", c.in, *got, c.want)
		}
	}
}

func TestDuration(t *testing.T) {
	cases := []struct {
		in   string
		want int64
		ok   bool
	}{
		{"00:14:24", 864, true},
		{"14:24", 864, true},
		{"1:02:03", 3723, true},
		{"2m 15s", 135, true},
		{"1h 3m", 3780, true},
		{"45s", 45, true},
		{"00:00:00", 0, false},
		{"", 0, false},
		{"forever", 0, false},
	}
	for _, c := range cases {
		got := Duration(c.in)
		if c.ok != (got != nil) {
			t.Errorf("Duration(%q) presence = %v, want %v", c.in, got != nil, c.ok)
			continue
		}
		if got != nil && *got != c.want {
			t.Errorf("Duration(%q) = %d, want %d", c.in, *got, c.want)
		}
	}
}

func TestPercentage(t *testing.T) {
	if got := Percentage("45.2%"); got == nil || *got != 45.2 {
		t.Errorf("Percentage(45.2%%) = %v, want 45.2", got)
	}
	if got := Percentage("31.93"); got == nil || *got != 31.93 {
		t.Errorf("Percentage(31.93) = %v, want 31.93", got)
	}
	if got := Percentage("not a number"); got != nil {
		t.Errorf("Percentage(garbage) = %v, want nil", got)
	}
	if got := Percentage(""); got != nil {
		t.Errorf("Percentage(empty) = %v, want nil", got)
	}
	// Out-of-range values pass through; the caller polices ranges.
	if got := Percentage("150%"); got == nil || *got != 150 {
		t.Errorf("Percentage(150%%) = %v, want 150", got)
	}
}

func TestFloat(t *testing.T) {
	if got := Float("4.25"); got == nil || *got != 4.25 {
		t.Errorf("Float(4.25) = %v, want 4.25", got)
	}
	if got := Float("x"); got != nil {
		t.Errorf("Float(x) = %v, want nil", got)
	}
}
