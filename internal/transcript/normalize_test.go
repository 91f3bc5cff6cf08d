package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeCollapsesWhitespace(t *testing.T) {
	require.Equal(t, "hello world", Normalize("  hello \n\t world  ", Options{}))
	require.Equal(t, "", Normalize(" \n ", Options{TrailingSpace: true}))
}

func TestNormalizeTrailingSpace(t *testing.T) {
	require.Equal(t, "hello world ", Normalize("hello world", Options{TrailingSpace: true}))
}

func TestNormalizeCapitalizesSentences(t *testing.T) {
	cases := map[string]string{
		"hello. how are you? fine!":          "Hello. How are you? Fine!",
		"i think i'm ready":                  "I think I'm ready",
		"so i said i would":                  "So I said I would",
		"talk to dr. smith tomorrow. ok":     "Talk to dr. smith tomorrow. Ok",
		"use e.g. this one":                  "Use e.g. this one",
		"e.g. this one":                      "e.g. this one",
		"the u.s. team won. great":           "The u.s. team won. Great",
		`she said "stop." "why?" he asked`:   `She said "stop." "Why?" He asked`,
		"version 2. next":                    "Version 2. Next",
		"i.e. nothing changes":               "i.e. nothing changes",
	}

	for input, want := range cases {
		t.Run(input, func(t *testing.T) {
			require.Equal(t, want, Normalize(input, Options{CapitalizeSentences: true}))
		})
	}
}

func TestNormalizerBindsOptions(t *testing.T) {
	normalize := Normalizer(Options{CapitalizeSentences: true, TrailingSpace: true})
	require.Equal(t, "Hi there. ", normalize("hi  there."))
}
