package configtest

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckYAMLTags(t *testing.T) {
	type nested struct {
		Timeout int `yaml:"timeout,omitempty"`
	}
	type good struct {
		Enabled bool              `yaml:"enabled"`
		Name    string            `yaml:"name,omitempty"`
		Nested  nested            `yaml:"nested,omitempty"`
		Servers []nested          `yaml:"servers,omitempty"`
		Labels  map[string]string `yaml:"labels,omitempty"`
		Ignored string            `yaml:"-"`
	}
	require.NoError(t, CheckYAMLTags(good{}))

	type missingOmitEmpty struct {
		Name string `yaml:"name"`
	}
	require.Error(t, CheckYAMLTags(missingOmitEmpty{}))

	type camelCase struct {
		PongWait int `yaml:"pongWait,omitempty"`
	}
	require.ErrorContains(t, CheckYAMLTags(camelCase{}), "snake_case")

	type badNested struct {
		Inner struct {
			Port int `yaml:"port"`
		} `yaml:"inner,omitempty"`
	}
	require.Error(t, CheckYAMLTags(badNested{}))
}
