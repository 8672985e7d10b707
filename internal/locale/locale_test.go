package locale

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "en"},
		{"en", "en"},
		{"en-US", "en"},
		{"ja", "ja"},
		{"ja-JP", "ja"},
		{"zh-Hans-CN", "zh"},
		{"id", "id"},
		{"fr-CA,en;q=0.8", "fr"},
		{"ko-KR,ko;q=0.9,en-US;q=0.8", "ko"},
		{"de-AT", "de"},
		{"tlh", "en"},       // unsupported
		{"not a tag", "en"}, // unparseable
		{"  es-MX  ", "es"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
