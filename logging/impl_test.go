package logging

import (
	"bytes"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

type bufferSyncer struct {
	bytes.Buffer
}

func (bs *bufferSyncer) Sync() error {
	return nil
}

func TestLevelFiltering(t *testing.T) {
	var out bufferSyncer
	logger := &impl{name: "arcal", level: NewAtomicLevelAt(INFO), appenders: []Appender{NewWriterAppender(&out)}}

	logger.Debug("hidden")
	test.That(t, out.Len(), test.ShouldEqual, 0)

	logger.Infow("calibrated", "rms", 0.25)
	test.That(t, out.String(), test.ShouldContainSubstring, "calibrated")
	test.That(t, out.String(), test.ShouldContainSubstring, `"rms": 0.25`)

	logger.SetLevel(DEBUG)
	logger.Debug("shown")
	test.That(t, out.String(), test.ShouldContainSubstring, "shown")
}

func TestSubloggerAndFields(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	sub := logger.Sublogger("session").WithFields("session_id", "abc")
	sub.Warnw("pose failed", "frame", 3)

	entries := observed.All()
	test.That(t, entries, test.ShouldHaveLength, 1)
	test.That(t, entries[0].LoggerName, test.ShouldEqual, "session")
	test.That(t, entries[0].Level, test.ShouldEqual, zapcore.WarnLevel)
	ctx := entries[0].ContextMap()
	test.That(t, ctx["session_id"], test.ShouldEqual, "abc")
	test.That(t, ctx["frame"], test.ShouldEqual, int64(3))
}

func TestUnpairedKey(t *testing.T) {
	logger, observed := NewObservedTestLogger(t)
	logger.Infow("msg", "dangling")
	ctx := observed.All()[0].ContextMap()
	test.That(t, ctx["dangling"], test.ShouldNotBeNil)
}

func TestLevelFromString(t *testing.T) {
	for _, tc := range []struct {
		in  string
		out Level
	}{
		{"debug", DEBUG},
		{"INFO", INFO},
		{"warning", WARN},
		{"Error", ERROR},
	} {
		level, err := LevelFromString(tc.in)
		test.That(t, err, test.ShouldBeNil)
		test.That(t, level, test.ShouldEqual, tc.out)
	}
	_, err := LevelFromString("loud")
	test.That(t, err, test.ShouldNotBeNil)
}
