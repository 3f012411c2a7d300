package layout

import "testing"

func TestLabel(t *testing.T) {
	labels := NewLabels(map[string]string{
		"German":    "XX",
		"colemak":   "CM",
		"Ukrainian": "УК",
	})

	tests := []struct {
		name  string
		group uint32
		want  string
	}{
		{name: "English (US)", want: "EN"},
		{name: "German", want: "XX"},
		{name: "german", want: "XX"},
		{name: "German (Austria)", want: "XX"},
		{name: "Colemak", want: "CM"},
		{name: "Ukrainian", want: "УК"},
		{name: "french", want: "FR"},
		{name: "Russian (phonetic)", want: "RU"},
		{name: "Esperanto", want: "ES"},
		{name: "émoji board", want: "ÉM"},
		{name: "", group: 3, want: "G3"},
		{name: "(42)", group: 1, want: "G1"},
	}
	for _, test := range tests {
		if got := labels.Label(test.name, test.group); got != test.want {
			t.Errorf("Label(%q, %v) = %q, want %q", test.name, test.group, got, test.want)
		}
	}
}

func TestSetOverrides(t *testing.T) {
	labels := NewLabels(nil)
	if got := labels.Label("German", 1); got != "DE" {
		t.Fatalf("builtin: got %q", got)
	}

	overrides := map[string]string{"German": "XX"}
	labels.SetOverrides(overrides)
	overrides["German"] = "YY"
	if got := labels.Label("German", 1); got != "XX" {
		t.Fatalf("override: got %q", got)
	}

	labels.SetOverrides(nil)
	if got := labels.Label("German", 1); got != "DE" {
		t.Fatalf("cleared override: got %q", got)
	}
	if len(labels.Overrides()) != 0 {
		t.Errorf("overrides: got %v", labels.Overrides())
	}
}
