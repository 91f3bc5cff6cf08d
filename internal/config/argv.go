package config

import (
	"fmt"
	"strings"
	"unicode"
)

// splitCommand splits a command line into argv the way a POSIX shell splits words,
// without any expansion. Single quotes are literal, backslash escapes the next rune
// elsewhere, and quoted empty strings are kept as arguments. A leading '#' disables
// the command.
func splitCommand(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv   []string
		word   strings.Builder
		inWord bool
		quote  rune
	)
	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case quote == '\'':
			if r == '\'' {
				quote = 0
				continue
			}
			word.WriteRune(r)
		case r == '\\':
			if i+1 == len(runes) {
				return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
			}
			i++
			word.WriteRune(runes[i])
			inWord = true
		case quote == '"':
			if r == '"' {
				quote = 0
				continue
			}
			word.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case unicode.IsSpace(r):
			if inWord {
				argv = append(argv, word.String())
				word.Reset()
				inWord = false
			}
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c quote in command: %q", quote, input)
	}
	if inWord {
		argv = append(argv, word.String())
	}
	return argv, nil
}

// parseCommand builds the CommandConfig for the config key holding raw.
func parseCommand(key, raw string) (CommandConfig, error) {
	argv, err := splitCommand(raw)
	if err != nil {
		return CommandConfig{}, fmt.Errorf("invalid %s: %w", key, err)
	}
	return CommandConfig{Raw: raw, Argv: argv}, nil
}

func mustCommand(key, raw string) CommandConfig {
	cmd, err := parseCommand(key, raw)
	if err != nil {
		panic(err)
	}
	return cmd
}
