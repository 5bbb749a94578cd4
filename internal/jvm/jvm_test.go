package jvm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMajor(t *testing.T) {
	tests := []struct {
		name   string
		banner string
		want   int
	}{
		{
			name:   "modern openjdk",
			banner: `openjdk version "17.0.7" 2023-04-18`,
			want:   17,
		},
		{
			name:   "modern 21",
			banner: `openjdk version "21" 2023-09-19`,
			want:   21,
		},
		{
			name:   "legacy 8",
			banner: `java version "1.8.0_392"`,
			want:   8,
		},
		{
			name:   "oracle 11",
			banner: `java version "11.0.21" 2023-10-17 LTS`,
			want:   11,
		},
		{
			name:   "unquoted banner",
			banner: "openjdk version 17",
			want:   17,
		},
		{
			name: "multi line banner",
			banner: `openjdk version "17.0.9" 2023-10-17
OpenJDK Runtime Environment (build 17.0.9+9)
OpenJDK 64-Bit Server VM (build 17.0.9+9, mixed mode, sharing)`,
			want: 17,
		},
		{
			name:   "garbage",
			banner: "command not found",
			want:   0,
		},
		{
			name:   "empty",
			banner: "",
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseMajor(tt.banner))
		})
	}
}

func TestFindPicksHighestEligible(t *testing.T) {
	known := wellKnownPaths()
	banners := map[string]string{
		known[0]: `openjdk version "21.0.1"`,
		known[1]: `openjdk version "17.0.9"`,
		"java":   `java version "1.8.0_392"`,
	}
	l := &Locator{probe: func(path string) (string, error) {
		banner, ok := banners[path]
		if !ok {
			return "", errors.New("not found")
		}
		return banner, nil
	}}

	rt, err := l.Find()
	require.NoError(t, err)
	assert.Equal(t, 21, rt.Major)
	assert.Equal(t, known[0], rt.Path)
}

func TestFindRejectsOldRuntimes(t *testing.T) {
	l := &Locator{probe: func(path string) (string, error) {
		if path == "java" {
			return `java version "1.8.0_392"`, nil
		}
		return "", errors.New("not found")
	}}

	_, err := l.Find()
	var tooOld *TooOldError
	require.ErrorAs(t, err, &tooOld)
	assert.Equal(t, 8, tooOld.Major)
}

func TestFindNothingInstalled(t *testing.T) {
	l := &Locator{probe: func(path string) (string, error) {
		return "", errors.New("not found")
	}}

	_, err := l.Find()
	assert.ErrorIs(t, err, ErrNotFound)
	// The message reaches status.json as-is, so it must tell the user what
	// to install.
	assert.Contains(t, err.Error(), "Java 17")
}

func TestFindNeverSelectsBelowMinimum(t *testing.T) {
	l := &Locator{probe: func(path string) (string, error) {
		return `openjdk version "16.0.2"`, nil
	}}

	rt, err := l.Find()
	require.Error(t, err)
	assert.Nil(t, rt)
}
