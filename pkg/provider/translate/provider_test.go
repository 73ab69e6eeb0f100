package translate

import "testing"

func TestPrompt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		text, target, want string
	}{
		{"hello", "Arabic", `Translate to Arabic: "hello"`},
		{"how are you?", "Hindi", `Translate to Hindi: "how are you?"`},
		{"", "Urdu", `Translate to Urdu: ""`},
	}
	for _, tt := range tests {
		if got := Prompt(tt.text, tt.target); got != tt.want {
			t.Errorf("Prompt(%q, %q) = %q; want %q", tt.text, tt.target, got, tt.want)
		}
	}
}
