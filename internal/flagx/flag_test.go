package flagx

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFilterArgs(t *testing.T) {
	tests := []struct {
		name         string
		args         []string
		allowedFlags []string
		want         []string
	}{
		{
			name:         "separate value",
			args:         []string{"-c", "conf.yaml", "-a", ":8080"},
			allowedFlags: []string{"-c"},
			want:         []string{"-c", "conf.yaml"},
		},
		{
			name:         "equals form",
			args:         []string{"--config=alt.json", "-a", ":8080"},
			allowedFlags: []string{"-c", "--config"},
			want:         []string{"--config=alt.json"},
		},
		{
			name:         "order preserved",
			args:         []string{"-d", "dsn", "-x", "1", "-a", ":9000"},
			allowedFlags: []string{"-a", "-d"},
			want:         []string{"-d", "dsn", "-a", ":9000"},
		},
		{
			name:         "boolean-like flag followed by another flag",
			args:         []string{"-v", "-a", ":1"},
			allowedFlags: []string{"-v", "-a"},
			want:         []string{"-v", "-a", ":1"},
		},
		{
			name:         "nothing allowed",
			args:         []string{"-x", "1", "positional"},
			allowedFlags: []string{"-c"},
			want:         []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FilterArgs(tt.args, tt.allowedFlags))
		})
	}
}

func TestConfigFileFlag(t *testing.T) {
	assert.Equal(t, "a.yaml", ConfigFileFlag([]string{"-a", ":1", "-c", "a.yaml"}))
	assert.Equal(t, "b.json", ConfigFileFlag([]string{"-config=b.json"}))
	assert.Equal(t, "", ConfigFileFlag([]string{"-a", ":1"}))
	assert.Equal(t, "", ConfigFileFlag(nil))
}
