package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	cases := map[string]string{
		`{"a":1}`:                                  `{"a":1}`,
		"```json\n{\"a\":1}\n```":                  `{"a":1}`,
		"Sure! Here you go: {\"a\":{\"b\":2}} ok": `{"a":{"b":2}}`,
		`{"text":"brace } inside"}`:               `{"text":"brace } inside"}`,
		`{"esc":"quote \" and }"}`:                `{"esc":"quote \" and }"}`,
		"no json here":                            "",
		`{"unterminated": 1`:                      "",
	}
	for in, want := range cases {
		assert.Equal(t, want, ExtractJSON(in), in)
	}
}

func TestDecodeObject(t *testing.T) {
	m, ok := DecodeObject("```\n{\"action\":\"unclear\"}\n```")
	require.True(t, ok)
	assert.Equal(t, "unclear", m["action"])

	_, ok = DecodeObject(`{"action": unclear}`)
	assert.False(t, ok)
}

func TestSchemaJSON(t *testing.T) {
	type reply struct {
		Action string `json:"action" jsonschema:"enum=a,enum=b"`
	}
	schema := SchemaJSON(reply{})
	assert.Contains(t, schema, `"action"`)
	assert.Contains(t, schema, `"enum"`)
}

func TestNewRequiresKeyAndKnownProvider(t *testing.T) {
	_, err := New(context.Background(), Config{Provider: ProviderAnthropic})
	assert.Error(t, err)

	_, err = New(context.Background(), Config{Provider: "palm", APIKey: "k"})
	assert.Error(t, err)

	c, err := New(context.Background(), Config{APIKey: "k", Model: "claude-test"})
	require.NoError(t, err)
	assert.Equal(t, "claude-test", c.Model())

	c, err = New(context.Background(), Config{APIKey: "k", RateLimitRPS: 5})
	require.NoError(t, err)
	_, isThrottled := c.(*Throttled)
	assert.True(t, isThrottled)
}

func TestThrottledAppliesTimeout(t *testing.T) {
	slow := Func(func(ctx context.Context, _ string) (string, error) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Second):
			return "late", nil
		}
	})

	_, err := NewThrottled(slow, 0, 10*time.Millisecond).Complete(context.Background(), "p")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestThrottledHonoursCancellation(t *testing.T) {
	calls := 0
	fast := Func(func(context.Context, string) (string, error) {
		calls++
		return "{}", nil
	})
	th := NewThrottled(fast, 0.001, 0)

	_, err := th.Complete(context.Background(), "first")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = th.Complete(ctx, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestTransientClassification(t *testing.T) {
	base := errors.New("boom")
	assert.True(t, IsTransient(fmt.Errorf("wrap: %w", classifyStatus(base, 503))))
	assert.True(t, IsTransient(classifyStatus(base, 429)))
	assert.False(t, IsTransient(classifyStatus(base, 400)))
	assert.True(t, IsTransient(classifyNet(context.DeadlineExceeded)))
}
