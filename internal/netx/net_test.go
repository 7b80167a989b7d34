package netx

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "127.0.0.1:8080", want: "http://127.0.0.1:8080"},
		{in: "http://localhost:8080/", want: "http://localhost:8080"},
		{in: "https://files.example.com/vault/", want: "https://files.example.com/vault"},
		{in: " https://files.example.com?x=1 ", want: "https://files.example.com"},
		{in: "", wantErr: true},
		{in: "ftp://files.example.com", wantErr: true},
		{in: "http://", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := BaseURL(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "http://h/api/v1/files", Join("http://h", "api", "v1", "files"))
	assert.Equal(t, "http://h/files/a%2Fb", Join("http://h", "files", "a/b"))
}
