//go:build test

package testutils

import (
	"fmt"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

// recordingT captures failures instead of failing the enclosing test.
type recordingT struct {
	failures []string
}

func (r *recordingT) Helper() {}

func (r *recordingT) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestJSONAsserter_Defaults(t *testing.T) {
	ja := NewJSONAsserter(t)
	assert.True(t, ja.options.IgnoreExtraKeys)
	assert.True(t, ja.options.AllowPresencePlaceholder)
	assert.False(t, ja.options.IgnoreArrayOrder)
}

func TestJSONAsserter_Diff(t *testing.T) {
	tests := []struct {
		name     string
		opts     []Option
		actual   string
		expected string
		match    bool
	}{
		{
			name:     "extra keys ignored",
			actual:   `{"uuid":"180f","name":"Battery","primary":true}`,
			expected: `{"uuid":"180f","primary":true}`,
			match:    true,
		},
		{
			name:     "extra keys reported",
			opts:     []Option{WithIgnoreExtraKeys(false)},
			actual:   `{"uuid":"180f","name":"Battery"}`,
			expected: `{"uuid":"180f"}`,
		},
		{
			name:     "presence placeholder",
			actual:   `{"id":"9a1c","level":12}`,
			expected: `{"id":"<<PRESENCE>>","level":12}`,
			match:    true,
		},
		{
			name:     "placeholder requires key",
			actual:   `{"level":12}`,
			expected: `{"id":"<<PRESENCE>>","level":12}`,
		},
		{
			name:     "root arrays",
			actual:   `[{"uuid":"a"},{"uuid":"b"}]`,
			expected: `[{"uuid":"a"},{"uuid":"b"}]`,
			match:    true,
		},
		{
			name:     "array order matters by default",
			actual:   `{"props":["write","read"]}`,
			expected: `{"props":["read","write"]}`,
		},
		{
			name:     "array order ignored",
			opts:     []Option{WithIgnoreArrayOrder(true)},
			actual:   `{"props":["write","read"]}`,
			expected: `{"props":["read","write"]}`,
			match:    true,
		},
		{
			name:     "ignored fields at depth",
			opts:     []Option{WithIgnoredFields("time"), WithIgnoreExtraKeys(false)},
			actual:   `{"events":[{"time":"t1","message":"Service started"}]}`,
			expected: `{"events":[{"time":"t2","message":"Service started"}]}`,
			match:    true,
		},
		{
			name:     "value mismatch",
			actual:   `{"level":12}`,
			expected: `{"level":13}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewJSONAsserter(t).WithOptions(tt.opts...).Diff(tt.actual, tt.expected)
			if tt.match {
				assert.Empty(t, d)
			} else {
				assert.NotEmpty(t, d)
			}
		})
	}
}

func TestJSONAsserter_InvalidJSON(t *testing.T) {
	d := NewJSONAsserter(t).Diff(`{`, `{}`)
	assert.Contains(t, d, "invalid actual JSON")
}

func TestJSONAsserter_AssertValueReportsFailure(t *testing.T) {
	rt := &recordingT{}
	NewJSONAsserter(rt).AssertValue(map[string]int{"level": 1}, `{"level":2}`)
	assert.Len(t, rt.failures, 1)
	assert.Contains(t, rt.failures[0], "JSON assertion failed")
}

func TestTextAsserter(t *testing.T) {
	ta := NewTextAsserter(t)
	ta.Assert("\nService started\nAdvertising started\n", "Service started\nAdvertising started")
	ta.AssertLines([]string{"a", "b"}, "a\nb")

	rt := &recordingT{}
	NewTextAsserter(rt).Assert("a\nb", "a\nc")
	assert.Len(t, rt.failures, 1)
	assert.Contains(t, rt.failures[0], "-c")
	assert.Contains(t, rt.failures[0], "+b")
}

func TestTextAsserter_Options(t *testing.T) {
	ta := NewTextAsserter(t).WithOptions(WithIgnoreEmptyLines(true), WithIgnoreTrailingWhitespace(true))
	assert.Empty(t, ta.Diff("a  \n\n b", "a\n b"))

	strict := NewTextAsserter(t).WithOptions(WithTrimSpace(false))
	assert.NotEmpty(t, strict.Diff("a\n", "a"))

	colored := NewTextAsserter(t).WithOptions(WithEnableColors(true))
	assert.Contains(t, colored.Diff("x", "y"), "\x1b[")
}

func TestHasEntry(t *testing.T) {
	logger, hook := NewTestLogger()
	logger.Warn("Could not send value")
	logger.Debug("tick")

	assert.True(t, HasEntry(hook, logrus.WarnLevel, "Could not send value"))
	assert.True(t, HasEntry(hook, logrus.DebugLevel, "tick"))
	assert.False(t, HasEntry(hook, logrus.ErrorLevel, "Could not send value"))
}
