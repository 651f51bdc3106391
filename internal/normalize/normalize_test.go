package normalize

import "testing"

func TestLabel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"diacritics cedilla form", "Bucureşti", "BUCURESTI"},
		{"diacritics comma form", "București", "BUCURESTI"},
		{"already plain", "BUCURESTI", "BUCURESTI"},
		{"mixed diacritics", "Timiş - Caraş-Severin", "TIMIS - CARAS-SEVERIN"},
		{"whitespace runs", "  Anul   2020 ", "ANUL 2020"},
		{"tabs and newlines", "Regiunea\tNord-Vest\n", "REGIUNEA NORD-VEST"},
		{"empty", "", ""},
		{"only whitespace", "   \t ", ""},
		{"breve and circumflex", "Brăila Târgu", "BRAILA TARGU"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Label(tt.input); got != tt.want {
				t.Errorf("Label(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestLabelEquivalence(t *testing.T) {
	// The durable cache key must unify diacritic variants with their ASCII
	// renderings used in older exports.
	if Label("Bucureşti") != Label("BUCURESTI") {
		t.Errorf("cedilla rendering should normalize to the ASCII form: %q vs %q",
			Label("Bucureşti"), Label("BUCURESTI"))
	}
	if Label(" Cluj ") != Label("Cluj") {
		t.Error("leading/trailing whitespace should not change the key")
	}
}

func TestLabelFoldHyphens(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"Nord-Vest", "NORD VEST"},
		{"Nord - Vest", "NORD VEST"},
		{"Sud - Muntenia", "SUD MUNTENIA"},
		{"Bistrița-Năsăud", "BISTRITA NASAUD"},
	}

	for _, tt := range tests {
		if got := LabelFoldHyphens(tt.input); got != tt.want {
			t.Errorf("LabelFoldHyphens(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestLabelIdempotent(t *testing.T) {
	inputs := []string{"Bucureşti", "  Anul   2020 ", "MACROREGIUNEA  UNU", "Vâlcea"}
	for _, in := range inputs {
		once := Label(in)
		if twice := Label(once); twice != once {
			t.Errorf("Label not idempotent for %q: %q -> %q", in, once, twice)
		}
	}
}
