package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBody(t *testing.T) {
	v := New(DefaultRules())

	tests := []struct {
		name string
		body string
		want error
	}{
		{"plain", "See you at 5pm!", nil},
		{"empty", "", ErrEmptyBody},
		{"whitespace only", " \n\t ", ErrEmptyBody},
		{"at max length", strings.Repeat("ab", 1000), nil},
		{"too long", strings.Repeat("ab", 1000) + "c", ErrBodyTooLong},
		{"multibyte counts runes", strings.Repeat("é", 2000), ErrRepeatedChars},
		{"short caps allowed", "OK THANKS", nil},
		{"shouting", "PLEASE ANSWER ME NOW", ErrShouting},
		{"caps with lowercase", "PLEASE ANSWER me NOW", nil},
		{"acronyms and digits", "SAT ACT 1600 1500", nil},
		{"eight repeats allowed", "noooooooo", nil},
		{"nine repeats", "nooooooooo", ErrRepeatedChars},
		{"repeated spaces ignored", "a          b", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := v.Body(tt.body)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, strings.TrimSpace(tt.body), got)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			var verr *Error
			require.ErrorAs(t, err, &verr)
			assert.NotEmpty(t, verr.Message)
		})
	}
}

func TestBodyTrimsBeforeChecking(t *testing.T) {
	v := New(Rules{MaxLength: 5})
	got, err := v.Body("   hello   ")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestCustomLimits(t *testing.T) {
	v := New(Rules{MaxLength: 10, ShoutingLimit: 3, MaxRepeatedRun: 2})

	_, err := v.Body("HEYA")
	assert.ErrorIs(t, err, ErrShouting)
	_, err = v.Body("heyyy")
	assert.ErrorIs(t, err, ErrRepeatedChars)
	_, err = v.Body("hello world")
	assert.ErrorIs(t, err, ErrBodyTooLong)
	assert.Contains(t, err.Error(), "10 characters")
}
