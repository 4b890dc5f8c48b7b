package profile

import (
	"encoding/json"
	"fmt"
	"strings"

	"copper/internal/rules"
)

// ArgumentFormat tells which of the two argument layouts a profile uses.
type ArgumentFormat int

const (
	// StructuredFormat is the "arguments": {"game": [...], "jvm": [...]} layout.
	StructuredFormat ArgumentFormat = iota + 1
	// LegacyFormat is the single space separated "minecraftArguments" string,
	// which only carries game arguments.
	LegacyFormat
)

// Arguments is the argument template of a profile in one of its two formats.
type Arguments struct {
	Format     ArgumentFormat
	Structured StructuredArguments
	Legacy     string
}

// StructuredArguments are the game and JVM argument lists.
type StructuredArguments struct {
	Game []Argument `json:"game"`
	JVM  []Argument `json:"jvm"`
}

// LegacyGameArguments splits the legacy string on single spaces, dropping
// empty tokens.
func (a Arguments) LegacyGameArguments() []Argument {
	var out []Argument
	for _, token := range strings.Split(a.Legacy, " ") {
		if token == "" {
			continue
		}
		out = append(out, Literal(token))
	}
	return out
}

// ArgumentKind distinguishes literal arguments from rule governed ones.
type ArgumentKind int

const (
	LiteralArgument ArgumentKind = iota + 1
	RuleArgument
)

// Argument is a literal string or a list of values guarded by rules.
type Argument struct {
	Kind   ArgumentKind
	Values []string
	Rules  rules.Tree
}

// Literal is an always-active single value argument.
func Literal(value string) Argument {
	return Argument{Kind: LiteralArgument, Values: []string{value}}
}

// Active returns the argument's values when its rules hold, or nil.
func (a Argument) Active(p rules.Platform, f rules.Features) []string {
	if a.Kind == RuleArgument && !a.Rules.Evaluate(p, f) {
		return nil
	}
	return a.Values
}

type ruleArgument struct {
	Rules rules.Tree      `json:"rules"`
	Value json.RawMessage `json:"value"`
}

func (a *Argument) UnmarshalJSON(data []byte) error {
	var literal string
	if err := json.Unmarshal(data, &literal); err == nil {
		*a = Literal(literal)
		return nil
	}

	var rule ruleArgument
	if err := json.Unmarshal(data, &rule); err != nil {
		return fmt.Errorf("argument is neither a string nor a rule: %w", err)
	}
	values, err := decodeValues(rule.Value)
	if err != nil {
		return err
	}
	*a = Argument{Kind: RuleArgument, Values: values, Rules: rule.Rules}
	return nil
}

func (a Argument) MarshalJSON() ([]byte, error) {
	if a.Kind == LiteralArgument && len(a.Values) == 1 {
		return json.Marshal(a.Values[0])
	}
	var value any = a.Values
	if len(a.Values) == 1 {
		value = a.Values[0]
	}
	return json.Marshal(struct {
		Rules rules.Tree `json:"rules"`
		Value any        `json:"value"`
	}{a.Rules, value})
}

// decodeValues accepts a single string or a list of strings.
func decodeValues(raw json.RawMessage) ([]string, error) {
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return []string{single}, nil
	}
	var multi []string
	if err := json.Unmarshal(raw, &multi); err != nil {
		return nil, fmt.Errorf("rule value is neither a string nor a list of strings: %w", err)
	}
	return multi, nil
}
