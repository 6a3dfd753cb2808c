package textutil

import "testing"

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"reyes/jordan resume.txt", "reyes-jordan resume.txt"},
		{"resume*final:v2.md", "resume-final-v2.md"},
		{`who?<>|".txt`, "who.txt"},
		{"  candidate.md  ", "candidate.md"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := SanitizeFileName(tc.in); got != tc.want {
			t.Fatalf("SanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"Jordan Reyes", "jordan_reyes"},
		{"Anna-Lena O'Neill", "anna-lena_o_neill"},
		{"", "unknown"},
		{"++--++", "unknown"},
	}
	for _, tc := range cases {
		if got := SanitizeToken(tc.in); got != tc.want {
			t.Fatalf("SanitizeToken(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
