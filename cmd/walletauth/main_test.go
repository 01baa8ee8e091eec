package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLinePrompt_SharesInputAcrossPrompts(t *testing.T) {
	var out bytes.Buffer
	prompt := linePrompt(strings.NewReader("y\nn\nY\n"), &out)
	ctx := context.Background()

	assert.True(t, prompt(ctx, "connect 0xabc"))
	assert.False(t, prompt(ctx, "sign message"))
	assert.True(t, prompt(ctx, "sign again"))
	assert.False(t, prompt(ctx, "input exhausted"))

	assert.Contains(t, out.String(), "connect 0xabc")
	assert.Equal(t, 4, strings.Count(out.String(), "Approve? [y/N]"))
}
