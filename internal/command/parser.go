// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package command

import (
	"strings"
	"unicode"

	"github.com/samber/oops"
)

// Line is one tokenized command line.
type Line struct {
	Label string   // first token, without a leading '/'
	Args  []string // remaining tokens with quotes removed
	Rest  string   // text after the label, as typed
	Raw   string   // original input
}

// Parse splits input into a label and arguments. A single leading '/' is
// dropped. Arguments split on whitespace; single or double quotes group
// words and a backslash escapes the next rune.
func Parse(input string) (*Line, error) {
	trimmed := strings.TrimSpace(input)
	trimmed = strings.TrimPrefix(trimmed, "/")
	if trimmed == "" {
		return nil, oops.Code(CodeEmptyInput).Errorf("no command provided")
	}

	label, rest := trimmed, ""
	if idx := strings.IndexFunc(trimmed, unicode.IsSpace); idx >= 0 {
		label, rest = trimmed[:idx], strings.TrimLeftFunc(trimmed[idx:], unicode.IsSpace)
	}

	args, err := tokenize(rest)
	if err != nil {
		return nil, oops.Code(CodeInvalidArgs).With("command", label).Wrap(err)
	}
	return &Line{Label: label, Args: args, Rest: rest, Raw: input}, nil
}

func tokenize(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		quote   rune
		escaped bool
		inToken bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped, inToken = true, true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote, inToken = r, true
		case unicode.IsSpace(r):
			if inToken {
				args = append(args, cur.String())
				cur.Reset()
				inToken = false
			}
		default:
			cur.WriteRune(r)
			inToken = true
		}
	}
	if quote != 0 {
		return nil, oops.Errorf("unterminated %c quote", quote)
	}
	if escaped {
		return nil, oops.Errorf("trailing backslash")
	}
	if inToken {
		args = append(args, cur.String())
	}
	return args, nil
}
