package variables

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"regexp/syntax"

	reggen "github.com/ledokol-inc/string-generation"
)

const regexManyCharactersLimit = 10

// Variable produces random values matching GenerationRegex, e.g. search terms typed by users.
type Variable struct {
	Name            string
	GenerationRegex *syntax.Regexp `mapstructure:"generationRegex" json:"generationRegex"`
}

func New(name string, pattern string) (*Variable, error) {
	regex, err := Parse(pattern)
	if err != nil {
		return nil, err
	}
	return &Variable{Name: name, GenerationRegex: regex}, nil
}

func Parse(pattern string) (*syntax.Regexp, error) {
	regex, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, fmt.Errorf("invalid generation regex %q: %w", pattern, err)
	}
	return regex, nil
}

func (variable *Variable) Generate(userRand *rand.Rand) string {
	return reggen.Generate(variable.GenerationRegex, regexManyCharactersLimit, userRand)
}

func (variable *Variable) UnmarshalJSON(data []byte) error {
	var raw struct {
		Name            string
		GenerationRegex string `json:"generationRegex"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	regex, err := Parse(raw.GenerationRegex)
	if err != nil {
		return err
	}
	variable.Name = raw.Name
	variable.GenerationRegex = regex
	return nil
}

func (variable *Variable) MarshalJSON() ([]byte, error) {
	pattern := ""
	if variable.GenerationRegex != nil {
		pattern = variable.GenerationRegex.String()
	}
	return json.Marshal(struct {
		Name            string
		GenerationRegex string `json:"generationRegex"`
	}{variable.Name, pattern})
}
