package log

import (
	"bytes"
	"testing"

	"github.com/kataras/golog"
	"github.com/stretchr/testify/assert"
)

func TestNewGologLogger(t *testing.T) {
	logger := NewGologLogger(golog.New())

	assert.NotNil(t, logger)
	assert.Equal(t, LevelInfo, logger.GetLevel())
}

func TestGologLogger_LevelControl(t *testing.T) {
	logger := NewGologLogger(golog.New())

	logger.SetLevel(LevelDebug)
	assert.Equal(t, LevelDebug, logger.GetLevel())

	logger.SetLevel(LevelError)
	assert.Equal(t, LevelError, logger.GetLevel())

	logger.SetLevel(LevelNone)
	assert.Equal(t, LevelNone, logger.GetLevel())
}

func TestGologLogger_WritesFormattedLines(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelDebug, &buf)

	logger.Info("session %s opened", "abc")
	logger.Error("failed after %d attempts", 3)

	out := buf.String()
	assert.Contains(t, out, "session abc opened")
	assert.Contains(t, out, "failed after 3 attempts")
}

func TestGologLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelError, &buf)

	logger.Debug("hidden debug")
	logger.Info("hidden info")
	logger.Warn("hidden warn")
	logger.Error("visible error")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "visible error")
}

func TestGologLogger_Named(t *testing.T) {
	var buf bytes.Buffer
	logger := New(LevelInfo, &buf)

	Named(logger, "research").Info("phase %d done", 1)

	assert.Contains(t, buf.String(), "research")
	assert.Contains(t, buf.String(), "phase 1 done")
}

func TestNamed_PassThroughForPlainLoggers(t *testing.T) {
	l := &NoOpLogger{}
	assert.Same(t, l, Named(l, "x"))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]Level{
		"debug":   LevelDebug,
		"INFO":    LevelInfo,
		"warning": LevelWarn,
		"error":   LevelError,
		"off":     LevelNone,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLevelString(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "NONE", LevelNone.String())
	assert.Equal(t, "UNKNOWN(42)", Level(42).String())
}

func TestPackageLevelLogger(t *testing.T) {
	prev := GetDefaultLogger()
	defer SetDefaultLogger(prev)

	var buf bytes.Buffer
	SetDefaultLogger(New(LevelDebug, &buf))

	Debug("d %d", 1)
	Info("i %d", 2)
	Warn("w %d", 3)
	Error("e %d", 4)

	out := buf.String()
	for _, s := range []string{"d 1", "i 2", "w 3", "e 4"} {
		assert.Contains(t, out, s)
	}
}
