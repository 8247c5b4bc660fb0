package command

import (
	"errors"
	"strings"

	"github.com/fyrsmithlabs/promptd/internal/prompterr"
)

// Parser tokenizes raw command text into a Parsed command.
//
// Grammar (deliberately small; richer front-ends sit outside the daemon):
//
//	>>prompt-id [%modifier ...] [key=value ...] [free text]
//
// Free text that is not key=value is collected into the "input" argument.
// Chain expansion happens later, from the prompt definition, so the parser
// only ever produces a KindSingle command; the planning stage upgrades it to
// KindChain when the catalog declares steps.
type Parser struct{}

// NewParser creates a Parser.
func NewParser() *Parser {
	return &Parser{}
}

// commandPrefix marks prompt invocations in raw text.
const commandPrefix = ">>"

var knownModifiers = map[string]Modifier{
	"clean":  ModifierClean,
	"lean":   ModifierLean,
	"guided": ModifierGuided,
}

// Parse tokenizes raw into a Parsed command.
// Returns a prompterr.KindInvalidInput error for malformed commands.
func (p *Parser) Parse(raw string) (*Parsed, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return nil, prompterr.InvalidInput("parse command", errors.New("empty command"))
	}
	if !strings.HasPrefix(text, commandPrefix) {
		return nil, prompterr.InvalidInput("parse command", errors.New("command must start with >>"))
	}

	tokens := strings.Fields(strings.TrimPrefix(text, commandPrefix))
	if len(tokens) == 0 {
		return nil, prompterr.InvalidInput("parse command", errors.New("missing prompt id"))
	}

	promptID := tokens[0]
	args := make(map[string]string)
	var modifiers []Modifier
	var freeText []string

	for _, tok := range tokens[1:] {
		switch {
		case strings.HasPrefix(tok, "%"):
			name := strings.TrimPrefix(tok, "%")
			mod, ok := knownModifiers[name]
			if !ok {
				return nil, prompterr.InvalidInput("parse command", errors.New("unknown modifier %"+name))
			}
			modifiers = append(modifiers, mod)
		case strings.Contains(tok, "="):
			kv := strings.SplitN(tok, "=", 2)
			if kv[0] == "" {
				return nil, prompterr.InvalidInput("parse command", errors.New("argument with empty key"))
			}
			args[kv[0]] = kv[1]
		default:
			freeText = append(freeText, tok)
		}
	}

	if len(freeText) > 0 {
		args["input"] = strings.Join(freeText, " ")
	}

	return &Parsed{
		Kind: KindSingle,
		Single: &Single{
			PromptID: promptID,
			Args:     args,
		},
		Modifiers: modifiers,
	}, nil
}
