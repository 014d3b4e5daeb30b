package synthesis

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sequenceClient returns its scripted replies in call order.
type sequenceClient struct {
	replies []string
	errs    []error
	calls   int
	systems []string
}

func (c *sequenceClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

func (c *sequenceClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	i := c.calls
	c.calls++
	c.systems = append(c.systems, system)
	var err error
	if i < len(c.errs) {
		err = c.errs[i]
	}
	var reply string
	if i < len(c.replies) {
		reply = c.replies[i]
	}
	return reply, err
}

func TestRespond_ShortAnswerPassesThrough(t *testing.T) {
	client := &sequenceClient{replies: []string{"  Contribute $7,000 to your TFSA.  "}}
	got := New(client).Respond(context.Background(), "what now?", nil, nil, nil)
	assert.Equal(t, "Contribute $7,000 to your TFSA.", got)
	assert.Equal(t, 1, client.calls)
}

func TestRespond_TrimsLongAnswer(t *testing.T) {
	long := strings.Repeat("word ", 100)
	client := &sequenceClient{replies: []string{long, "Short version with $7,000."}}
	got := New(client).Respond(context.Background(), "q", nil, nil, nil)
	assert.Equal(t, "Short version with $7,000.", got)
	assert.Equal(t, 2, client.calls)
}

func TestRespond_TrimFailureKeepsLongAnswer(t *testing.T) {
	long := strings.TrimSpace(strings.Repeat("word ", 100))
	client := &sequenceClient{
		replies: []string{long, ""},
		errs:    []error{nil, errors.New("trim boom")},
	}
	got := New(client).Respond(context.Background(), "q", nil, nil, nil)
	assert.Equal(t, long, got)
}

func TestRespond_FailureYieldsFallback(t *testing.T) {
	client := &sequenceClient{errs: []error{errors.New("boom")}}
	got := New(client).Respond(context.Background(), "q", nil, nil, nil)
	assert.Equal(t, FallbackResponse, got)
}

func TestFollowUps_CapsAtThree(t *testing.T) {
	client := &sequenceClient{replies: []string{`["a?", "b?", "c?", "d?"]`}}
	got := New(client).FollowUps(context.Background(), "q", "r", nil)
	assert.Equal(t, []string{"a?", "b?", "c?"}, got)
}

func TestFollowUps_FailsToEmpty(t *testing.T) {
	client := &sequenceClient{errs: []error{errors.New("boom")}}
	assert.Nil(t, New(client).FollowUps(context.Background(), "q", "r", nil))

	client = &sequenceClient{replies: []string{"not a json array"}}
	assert.Nil(t, New(client).FollowUps(context.Background(), "q", "r", nil))
}

func TestGreeting_FallbackSentence(t *testing.T) {
	client := &sequenceClient{errs: []error{errors.New("boom")}}
	got := New(client).Greeting(context.Background(), nil, 142350.5, -1200)
	assert.Contains(t, got, "$142,350.50")
	assert.Contains(t, got, "Welcome back")
}

func TestAdvise_ParsesSections(t *testing.T) {
	client := &sequenceClient{replies: []string{
		"<headline>Move $14,500 into your RRSP.</headline>\n" +
			"<full_picture>First do A.\nThen do B.</full_picture>\n" +
			"<do_not_do>Do not sell CNQ yet.</do_not_do>",
	}}
	got, err := New(client).Advise(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "Move $14,500 into your RRSP.", got.Headline)
	assert.Equal(t, "First do A.\nThen do B.", got.FullPicture)
	assert.Equal(t, "Do not sell CNQ yet.", got.DoNotDo)
}

func TestAdvise_MissingSectionIsEmpty(t *testing.T) {
	client := &sequenceClient{replies: []string{"<headline>H</headline>"}}
	got, err := New(client).Advise(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "H", got.Headline)
	assert.Empty(t, got.DoNotDo)
}

func TestAdvise_PropagatesError(t *testing.T) {
	client := &sequenceClient{errs: []error{errors.New("boom")}}
	_, err := New(client).Advise(context.Background(), nil, nil)
	assert.Error(t, err)
}

func TestFormatDollars(t *testing.T) {
	assert.Equal(t, "$1,234,567.89", formatDollars(1234567.89))
	assert.Equal(t, "$0.00", formatDollars(0))
	assert.Equal(t, "-$8,000.00", formatDollars(-8000))
}
