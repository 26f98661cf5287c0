package bus

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsMatching(t *testing.T) {
	cases := []struct {
		topic   string
		pattern string
		want    bool
	}{
		{"data.bar.price", "data.bar.price", true},
		{"data.bar.price", "data.*.price", true},
		{"data.bar.price", "data.*", true},
		{"data.bar.price", "*", true},
		{"data.bar.price", "data.?ar.price", true},
		{"data.bar.price", "data.??r.price", true},
		{"data.bar.price", "data.bar", false},
		{"data.bar.price", "data.?.price", false},
		{"events.order.S-001", "events.order.*", true},
		{"events.order.S-001", "events.position.*", false},
		{"", "*", true},
		{"", "?", false},
		{"a", "", false},
		{"", "", true},
		{"abc", "a*c", true},
		{"ac", "a*c", true},
		{"abcd", "a*c", false},
		{"aaa", "a*a", true},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsMatching(tc.topic, tc.pattern),
			"topic=%q pattern=%q", tc.topic, tc.pattern)
	}
}

// matchOracle is the straightforward recursive definition the DP must agree with.
func matchOracle(topic, pattern string) bool {
	if pattern == "" {
		return topic == ""
	}
	switch pattern[0] {
	case '*':
		if matchOracle(topic, pattern[1:]) {
			return true
		}
		return topic != "" && matchOracle(topic[1:], pattern)
	case '?':
		return topic != "" && matchOracle(topic[1:], pattern[1:])
	default:
		return topic != "" && topic[0] == pattern[0] && matchOracle(topic[1:], pattern[1:])
	}
}

func TestIsMatchingAgainstOracle(t *testing.T) {
	alphabet := []byte{'a', 'b', '.', '*', '?'}
	var topics, patterns []string
	// All strings over the alphabet up to length 4 (topics without wildcards).
	var build func(prefix string, depth int)
	build = func(prefix string, depth int) {
		patterns = append(patterns, prefix)
		if prefix == "" || (prefix[0] != '*' && prefix[0] != '?' && noWildcards(prefix)) {
			topics = append(topics, prefix)
		}
		if depth == 0 {
			return
		}
		for _, c := range alphabet {
			build(prefix+string(c), depth-1)
		}
	}
	build("", 4)

	for _, topic := range topics {
		for _, pattern := range patterns {
			assert.Equal(t, matchOracle(topic, pattern), IsMatching(topic, pattern),
				"topic=%q pattern=%q", topic, pattern)
		}
	}
}

func noWildcards(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == '*' || s[i] == '?' {
			return false
		}
	}
	return true
}

func TestRegisterSendDeregister(t *testing.T) {
	b := New()
	var got any
	handler := func(msg any) { got = msg }

	require.NoError(t, b.Register("exec.engine", handler))
	require.Error(t, b.Register("exec.engine", handler))
	assert.True(t, b.IsRegistered("exec.engine"))

	b.Send("exec.engine", "hello")
	assert.Equal(t, "hello", got)

	// Unknown endpoint drops without panicking.
	b.Send("nope", "dropped")

	require.NoError(t, b.Deregister("exec.engine", handler))
	assert.False(t, b.IsRegistered("exec.engine"))
	require.Error(t, b.Deregister("exec.engine", handler))
}

func TestPublishPriorityOrdering(t *testing.T) {
	b := New()
	var order []string
	h1 := func(msg any) { order = append(order, "h1") }
	h2 := func(msg any) { order = append(order, "h2") }

	b.Subscribe("data.*.price", h1, 0)
	b.Subscribe("data.bar.price", h2, 10)

	b.Publish("data.bar.price", map[string]int{"px": 100})

	require.Equal(t, []string{"h2", "h1"}, order)
}

func TestPublishExactlyOncePerSubscription(t *testing.T) {
	b := New()
	counts := make(map[string]int)
	mk := func(name string) Handler {
		return func(msg any) { counts[name]++ }
	}
	h1, h2, h3 := mk("wild"), mk("exact"), mk("miss")

	b.Subscribe("events.order.*", h1, 0)
	b.Subscribe("events.order.S-001", h2, 5)
	b.Subscribe("events.position.*", h3, 0)

	b.Publish("events.order.S-001", "ev")

	assert.Equal(t, 1, counts["wild"])
	assert.Equal(t, 1, counts["exact"])
	assert.Equal(t, 0, counts["miss"])
}

func TestSubscribeIdempotentAndUnsubscribe(t *testing.T) {
	b := New()
	n := 0
	h := func(msg any) { n++ }

	b.Subscribe("data.*", h, 0)
	b.Subscribe("data.*", h, 0) // duplicate pair: no-op
	assert.True(t, b.IsSubscribed("data.*", h))
	assert.Len(t, b.Subscriptions(), 1)

	b.Publish("data.tick", nil)
	assert.Equal(t, 1, n)

	b.Unsubscribe("data.*", h)
	assert.False(t, b.IsSubscribed("data.*", h))
	b.Publish("data.tick", nil)
	assert.Equal(t, 1, n)
}

func TestSubscribeAfterMemoization(t *testing.T) {
	b := New()
	var order []string
	h1 := func(msg any) { order = append(order, "early") }
	h2 := func(msg any) { order = append(order, "late-high") }

	b.Subscribe("data.*", h1, 0)
	b.Publish("data.tick", nil) // memoizes data.tick

	// A later subscribe must patch the memoized array, in priority position.
	b.Subscribe("data.tick", h2, 9)
	order = nil
	b.Publish("data.tick", nil)
	require.Equal(t, []string{"late-high", "early"}, order)

	// And unsubscribing must remove it from the memoized array.
	b.Unsubscribe("data.tick", h2)
	order = nil
	b.Publish("data.tick", nil)
	require.Equal(t, []string{"early"}, order)
}

func TestMutationDuringDispatchAppliesNextPublish(t *testing.T) {
	b := New()
	var calls []string
	late := func(msg any) { calls = append(calls, "late") }
	var first Handler
	first = func(msg any) {
		calls = append(calls, "first")
		b.Subscribe("topic", late, 100)
	}

	b.Subscribe("topic", first, 0)
	b.Publish("topic", nil)
	require.Equal(t, []string{"first"}, calls)

	calls = nil
	b.Publish("topic", nil)
	require.Equal(t, []string{"late", "first"}, calls)
}

func TestRequestResponse(t *testing.T) {
	b := New()
	var received any
	require.NoError(t, b.Register("data", func(msg any) { received = msg }))

	invoked := 0
	b.Request("data", "R1", "req-payload", func(msg any) { invoked++ })
	assert.Equal(t, "req-payload", received)

	b.Response("R1", "res-payload")
	assert.Equal(t, 1, invoked)

	// Second response with the same id is logged and dropped.
	b.Response("R1", "res-payload")
	assert.Equal(t, 1, invoked)
}

func TestRequestDuplicateID(t *testing.T) {
	b := New()
	require.NoError(t, b.Register("data", func(msg any) {}))

	invoked := 0
	b.Request("data", "R1", nil, func(msg any) { invoked++ })
	b.Request("data", "R1", nil, func(msg any) { invoked += 100 }) // dropped

	b.Response("R1", nil)
	assert.Equal(t, 1, invoked)
}

func TestDropCorrelation(t *testing.T) {
	b := New()
	require.NoError(t, b.Register("data", func(msg any) {}))

	invoked := 0
	b.Request("data", "R9", nil, func(msg any) { invoked++ })
	assert.True(t, b.DropCorrelation("R9"))
	assert.False(t, b.DropCorrelation("R9"))

	b.Response("R9", nil) // callback already removed
	assert.Equal(t, 0, invoked)
}

func TestSamePriorityFIFO(t *testing.T) {
	b := New()
	var order []string
	first := func(msg any) { order = append(order, "first") }
	second := func(msg any) { order = append(order, "second") }
	third := func(msg any) { order = append(order, "third") }

	b.Subscribe("t", first, 0)
	b.Subscribe("t", second, 0)
	b.Subscribe("t", third, 0)

	b.Publish("t", nil)
	require.Equal(t, []string{"first", "second", "third"}, order,
		fmt.Sprintf("FIFO within priority, got %v", order))
}
