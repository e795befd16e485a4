package policy

import "testing"

func TestGlobMatch(t *testing.T) {
	cases := []struct {
		text, pattern string
		want          bool
	}{
		{"https://api.github.com/repos", "https://api.github.com/*", true},
		{"ls -la /tmp", "ls *", true},
		{"user@company.com", "*@company.com", true},
		{"user@other.com", "*@company.com", false},
		{"anything", "*", true},
		{"exact", "exact", true},
		{"different", "exact", false},
		{"aXbYc", "a*b*c", true},
		{"a-b-c-b-c", "a*b*c", true},
		{"acb", "a*b*c", false},
		{"a", "a*b*c", false},
	}

	for _, c := range cases {
		if got := globMatch(c.text, c.pattern); got != c.want {
			t.Errorf("globMatch(%q, %q) = %v, want %v", c.text, c.pattern, got, c.want)
		}
	}
}
