package core

import (
	"bytes"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetLogLevel(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(io.Discard)
	defer SetLogLevel("debug")

	require.NoError(t, SetLogLevel("warn"))
	LogInfo("quiet %d", 1)
	assert.Empty(t, buf.String())

	LogWarn("loud %d", 2)
	assert.Contains(t, buf.String(), "loud 2")

	assert.Error(t, SetLogLevel("chatty"))
	buf.Reset()
	LogWarn("still warn")
	assert.Contains(t, buf.String(), "still warn")
}

func TestLogError_KeepsMessageVerbatim(t *testing.T) {
	var buf bytes.Buffer
	SetLogOutput(&buf)
	defer SetLogOutput(io.Discard)

	LogError("%s", errors.New("upload 100% done, 5%d left"))
	assert.Contains(t, buf.String(), "upload 100% done, 5%d left")
	assert.NotContains(t, buf.String(), "%!")
}

func TestMain(m *testing.M) {
	SetLogOutput(io.Discard)
	os.Exit(m.Run())
}
