package agents

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finsight/internal/rules"
	"finsight/internal/snapshot"
)

// scriptedClient returns canned completions keyed by a substring of the
// system prompt, and can be told to fail or stall for specific agents.
type scriptedClient struct {
	mu        sync.Mutex
	replies   map[Agent]string
	failures  map[Agent]error
	stalls    map[Agent]time.Duration
	callCount int
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *scriptedClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	c.mu.Lock()
	c.callCount++
	c.mu.Unlock()

	// Identify which agent is calling via its embedded prompt.
	var who Agent
	for _, a := range All() {
		if system == a.systemPrompt() {
			who = a
			break
		}
	}

	if d, ok := c.stalls[who]; ok {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err, ok := c.failures[who]; ok {
		return "", err
	}
	if reply, ok := c.replies[who]; ok {
		return reply, nil
	}
	return `{"findings": []}`, nil
}

func findingJSON(title string, impact float64) string {
	return fmt.Sprintf(`{"title":%q,"dollar_impact":%v,"impact_direction":"save",
		"urgency":"evergreen","reasoning":"r","confidence":"high","what_to_do":"w"}`, title, impact)
}

func TestRun_ParsesFencedFindings(t *testing.T) {
	client := &scriptedClient{replies: map[Agent]string{
		Allocation: "```json\n{\"findings\": [" + findingJSON("Use TFSA room", 4100) + "]}\n```",
	}}
	inv := NewInvoker(client)

	findings, err := inv.Run(context.Background(), Allocation, snapshot.Snapshot{}, rules.Ruleset{})
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, "Use TFSA room", findings[0].Title)
	assert.True(t, findings[0].Valid())
}

func TestRun_RejectsUnknownAgent(t *testing.T) {
	inv := NewInvoker(&scriptedClient{})
	_, err := inv.Run(context.Background(), DirectResponse, snapshot.Snapshot{}, nil)
	assert.Error(t, err)

	_, err = inv.Run(context.Background(), Agent("mystery"), snapshot.Snapshot{}, nil)
	assert.Error(t, err)
}

func TestRunAll_IsolatesFailuresAndKeepsOrder(t *testing.T) {
	client := &scriptedClient{
		replies: map[Agent]string{
			Allocation: `{"findings": [` + findingJSON("alloc", 100) + `]}`,
			Timing:     `{"findings": [` + findingJSON("timing", 300) + `]}`,
		},
		failures: map[Agent]error{
			TLH: errors.New("boom"),
		},
		// Slow first agent: completion order differs from request order.
		stalls: map[Agent]time.Duration{
			Allocation: 50 * time.Millisecond,
		},
	}
	inv := NewInvoker(client)

	outcomes := inv.RunAll(context.Background(), []Agent{Allocation, TLH, Timing}, snapshot.Snapshot{}, nil)
	require.Len(t, outcomes, 3)

	assert.Equal(t, Allocation, outcomes[0].Agent)
	require.NoError(t, outcomes[0].Err)
	assert.Equal(t, "alloc", outcomes[0].Findings[0].Title)

	assert.Equal(t, TLH, outcomes[1].Agent)
	assert.Error(t, outcomes[1].Err)
	assert.Empty(t, outcomes[1].Findings)

	assert.Equal(t, Timing, outcomes[2].Agent)
	require.NoError(t, outcomes[2].Err)
	assert.Equal(t, "timing", outcomes[2].Findings[0].Title)
}

func TestRunAll_MalformedJSONIsIsolated(t *testing.T) {
	client := &scriptedClient{replies: map[Agent]string{
		Allocation: `not json at all`,
		Timing:     `{"findings": []}`,
	}}
	inv := NewInvoker(client)

	outcomes := inv.RunAll(context.Background(), []Agent{Allocation, Timing}, snapshot.Snapshot{}, nil)
	assert.Error(t, outcomes[0].Err)
	assert.NoError(t, outcomes[1].Err)
}

func TestRunAllWithin_DegradesOnDeadline(t *testing.T) {
	client := &scriptedClient{
		stalls: map[Agent]time.Duration{
			Allocation: 5 * time.Second,
		},
		replies: map[Agent]string{
			Timing: `{"findings": [` + findingJSON("fast", 10) + `]}`,
		},
	}
	inv := NewInvoker(client)

	start := time.Now()
	outcomes := inv.RunAllWithin(context.Background(), 100*time.Millisecond,
		[]Agent{Allocation, Timing}, snapshot.Snapshot{}, nil)
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, outcomes, 2)
	assert.Error(t, outcomes[0].Err) // deadline hit
	assert.NoError(t, outcomes[1].Err)
	assert.Equal(t, "fast", outcomes[1].Findings[0].Title)
}

func TestDomainKeys(t *testing.T) {
	assert.Equal(t, "tax", TaxImplications.DomainKey())
	assert.Equal(t, "rates", RateArbitrage.DomainKey())
	assert.Equal(t, "allocation", Allocation.DomainKey())
	assert.Equal(t, "tlh", TLH.DomainKey())
	assert.Equal(t, "timing", Timing.DomainKey())
}
