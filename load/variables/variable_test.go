package variables

import (
	"encoding/json"
	"math/rand"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateMatchesPattern(t *testing.T) {
	variable, err := New("search", "(curso|tema) [a-z]{3,6}")
	require.NoError(t, err)

	matcher := regexp.MustCompile(`^(curso|tema) [a-z]{3,6}$`)
	rnd := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		value := variable.Generate(rnd)
		assert.Regexp(t, matcher, value)
	}
}

func TestNewRejectsInvalidPattern(t *testing.T) {
	_, err := New("broken", "(unclosed")
	assert.Error(t, err)
}

func TestVariableJson(t *testing.T) {
	var variable Variable
	require.NoError(t, json.Unmarshal([]byte(`{"Name":"search","generationRegex":"[0-9]{4}"}`), &variable))
	assert.Equal(t, "search", variable.Name)
	require.NotNil(t, variable.GenerationRegex)

	data, err := json.Marshal(&variable)
	require.NoError(t, err)
	var decoded Variable
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, "search", decoded.Name)
	assert.Regexp(t, `^[0-9]{4}$`, decoded.Generate(rand.New(rand.NewSource(1))))

	assert.Error(t, json.Unmarshal([]byte(`{"Name":"x","generationRegex":"("}`), &variable))
}
