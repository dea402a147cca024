package cli

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrompter_Passphrase(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "line", input: "open sesame\n", want: "open sesame"},
		{name: "empty", input: "\n", wantErr: ErrEmptyPassphrase},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(strings.NewReader(tt.input), &out)

			got, err := p.Passphrase(context.Background(), "Passphrase")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, out.String(), "Passphrase")
		})
	}
}

func TestPrompter_PassphraseFromTerminal(t *testing.T) {
	var out bytes.Buffer
	p := NewPrompter(strings.NewReader(""), &out)
	p.readPassword = func() ([]byte, error) { return []byte("hidden"), nil }

	got, err := p.Passphrase(context.Background(), "Passphrase")
	require.NoError(t, err)
	assert.Equal(t, "hidden", got)

	p.readPassword = func() ([]byte, error) { return nil, errors.New("tty gone") }
	_, err = p.Passphrase(context.Background(), "Passphrase")
	assert.Error(t, err)
}

func TestPrompter_NewPassphrase(t *testing.T) {
	var out bytes.Buffer

	p := NewPrompter(strings.NewReader("abc123\nabc123\n"), &out)
	got, err := p.NewPassphrase(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc123", got)

	p = NewPrompter(strings.NewReader("abc123\nabc124\n"), &out)
	_, err = p.NewPassphrase(context.Background())
	assert.ErrorIs(t, err, ErrPassphraseMismatch)
}

func TestPrompter_Confirm(t *testing.T) {
	tests := map[string]bool{
		"y\n":     true,
		"YES\n":   true,
		"n\n":     false,
		"\n":      false,
		"maybe\n": false,
	}

	for input, want := range tests {
		t.Run(strings.TrimSpace(input), func(t *testing.T) {
			var out bytes.Buffer
			p := NewPrompter(strings.NewReader(input), &out)

			got, err := p.Confirm(context.Background(), "Delete?")
			require.NoError(t, err)
			assert.Equal(t, want, got)
			assert.Contains(t, out.String(), "[y/N]")
		})
	}
}
