package config

import "testing"

func TestEnvInt(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  int
	}{
		{"unset", "", 12},
		{"valid", "24", 24},
		{"malformed", "twelve", 12},
		{"negative", "-3", 12},
		{"zero", "0", 12},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("TOKEN_TTL_HOURS", tc.value)
			if got := envInt("TOKEN_TTL_HOURS", 12); got != tc.want {
				t.Fatalf("envInt(%q) = %d, want %d", tc.value, got, tc.want)
			}
		})
	}
}
