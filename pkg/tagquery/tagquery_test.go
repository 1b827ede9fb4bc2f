package tagquery

import (
	"reflect"
	"testing"
)

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "long_hair", want: "long_hair"},
		{input: "  Long Hair  ", want: "long_hair"},
		{input: "BLUE   eyes", want: "blue_eyes"},
		{input: "", want: ""},
	}

	for _, tt := range tests {
		if got := NormalizeName(tt.input); got != tt.want {
			t.Fatalf("NormalizeName(%q): got %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestStripCategory(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{input: "artist:someone", want: "someone"},
		{input: "Character:hero", want: "hero"},
		{input: "foo:bar", want: "foo:bar"},
		{input: "species:", want: "species:"},
		{input: "plain", want: "plain"},
	}

	for _, tt := range tests {
		if got := StripCategory(tt.input); got != tt.want {
			t.Fatalf("StripCategory(%q): got %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestParse(t *testing.T) {
	got := Parse("a -b ~c\n\n  - d\n")
	want := [][]Token{
		{{Name: "a"}, {Prefix: "-", Name: "b"}, {Prefix: "~", Name: "c"}},
		{{Name: "d"}},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected tokens: got %+v, want %+v", got, want)
	}
}

func TestContainsToken(t *testing.T) {
	tests := []struct {
		name  string
		query string
		tag   string
		want  bool
	}{
		{name: "whole token", query: "cat dog", tag: "dog", want: true},
		{name: "negated token", query: "cat -dog", tag: "dog", want: true},
		{name: "case insensitive", query: "Dog", tag: "dog", want: true},
		{name: "category qualifier", query: "artist:dog", tag: "dog", want: true},
		{name: "substring only", query: "hotdog", tag: "dog", want: false},
		{name: "second line", query: "cat\n~dog", tag: "dog", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsToken(tt.query, tt.tag); got != tt.want {
				t.Fatalf("ContainsToken(%q, %q): got %v, want %v", tt.query, tt.tag, got, tt.want)
			}
		})
	}
}

func TestRewrite(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		overrides map[string]string
		want      string
		replaced  int
	}{
		{
			name:      "simple replacement",
			query:     "cat dog",
			overrides: map[string]string{"dog": "canine"},
			want:      "cat canine",
			replaced:  1,
		},
		{
			name:      "keeps markers",
			query:     "-dog ~dog",
			overrides: map[string]string{"dog": "canine"},
			want:      "-canine ~canine",
			replaced:  2,
		},
		{
			name:      "case insensitive with category",
			query:     "artist:Dog",
			overrides: map[string]string{"dog": "canine"},
			want:      "canine",
			replaced:  1,
		},
		{
			name:      "substring untouched",
			query:     "hotdog",
			overrides: map[string]string{"dog": "canine"},
			want:      "hotdog",
			replaced:  0,
		},
		{
			name:      "collapses identical lines",
			query:     "dog\ncanine",
			overrides: map[string]string{"dog": "canine"},
			want:      "canine",
			replaced:  1,
		},
		{
			name:      "no change returns input",
			query:     "cat  dog\n",
			overrides: map[string]string{"bird": "avian"},
			want:      "cat  dog\n",
			replaced:  0,
		},
		{
			name:      "reverse mapping",
			query:     "canine -cat",
			overrides: map[string]string{"canine": "dog"},
			want:      "dog -cat",
			replaced:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, n := Rewrite(tt.query, tt.overrides)
			if got != tt.want || n != tt.replaced {
				t.Fatalf("Rewrite(%q): got (%q, %d), want (%q, %d)", tt.query, got, n, tt.want, tt.replaced)
			}
		})
	}
}

func TestApplyDiff(t *testing.T) {
	tests := []struct {
		name   string
		tags   string
		add    []string
		remove []string
		want   string
	}{
		{name: "swap", tags: "a b c", add: []string{"d"}, remove: []string{"b"}, want: "a c d"},
		{name: "no duplicate add", tags: "a b", add: []string{"a"}, want: "a b"},
		{name: "dedupes input", tags: "a a b", want: "a b"},
		{name: "ignores empty add", tags: "a", add: []string{""}, want: "a"},
		{name: "empty string", tags: "", add: []string{"x"}, want: "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplyDiff(tt.tags, tt.add, tt.remove); got != tt.want {
				t.Fatalf("ApplyDiff: got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHasTag(t *testing.T) {
	if !HasTag("a b c", "b") {
		t.Fatal("expected b to be present")
	}
	if HasTag("a bc", "b") {
		t.Fatal("expected b to be absent")
	}
}

func TestToAliased(t *testing.T) {
	got := ToAliased([]string{"a", "b", "c"}, map[string]string{"a": "c"})
	want := []string{"c", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("ToAliased: got %v, want %v", got, want)
	}
}
