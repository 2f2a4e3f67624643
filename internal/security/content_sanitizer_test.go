package security

import (
	"strings"
	"testing"
)

func TestSanitizeText(t *testing.T) {
	s := NewTextSanitizer()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"plain text", "A stunning revival.", "A stunning revival."},
		{"trims whitespace", "  Great cast \n", "Great cast"},
		{"strips tags keeps text", "<p>Loved <strong>every</strong> minute</p>", "Loved every minute"},
		{"drops script body", `Nice<script>alert("x")</script>`, "Nice"},
		{"drops event attributes", `<img src=x onerror=alert(1)>Bravo`, "Bravo"},
		{"keeps ampersand", "Rosencrantz & Guildenstern", "Rosencrantz & Guildenstern"},
		{"keeps quotes", `"Wow," she said`, `"Wow," she said`},
		{"decodes entities", "5 &lt; 6", "5 < 6"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeText(tt.in); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeText_NoMarkupSurvives(t *testing.T) {
	s := NewTextSanitizer()
	payloads := []string{
		`<iframe src="https://evil.example"></iframe>`,
		`<a href="javascript:alert(1)">click</a>`,
		`<svg onload=alert(1)>`,
		`<style>body{display:none}</style>`,
		`&lt;script&gt;alert(1)&lt;/script&gt;`,
		`&lt;img src=x onerror=alert(1)&gt;`,
		`&amp;lt;b&amp;gt;x`,
		`&#60;iframe src="https://evil.example"&#62;`,
	}
	for _, p := range payloads {
		got := s.SanitizeText(p)
		if strings.Contains(got, "<") && strings.Contains(got, ">") {
			t.Errorf("SanitizeText(%q) = %q, markup survived", p, got)
		}
	}
}

func TestSanitizeText_Idempotent(t *testing.T) {
	s := NewTextSanitizer()
	inputs := []string{
		"<b>Bold</b> & brave",
		"5 &lt; 6",
		"&amp;lt;b&amp;gt;x",
		"&amp;amp;lt;script&amp;amp;gt;alert(1)",
		"  Encore!  ",
	}
	for _, in := range inputs {
		once := s.SanitizeText(in)
		if twice := s.SanitizeText(once); twice != once {
			t.Errorf("SanitizeText(%q) not idempotent: %q -> %q", in, once, twice)
		}
	}
}

func TestSanitizeText_EscapedMarkup(t *testing.T) {
	s := NewTextSanitizer()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"エスケープされたscriptは本文ごと除去", "&lt;script&gt;alert(1)&lt;/script&gt;", ""},
		{"二重エスケープのタグも除去", "&amp;lt;b&amp;gt;x", "x"},
		{"数値文字参照のタグも除去", "Bravo&#60;br&#62;", "Bravo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.SanitizeText(tt.in); got != tt.want {
				t.Errorf("SanitizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestTextSanitizerInterface(t *testing.T) {
	var _ TextSanitizer = NewTextSanitizer()
}
