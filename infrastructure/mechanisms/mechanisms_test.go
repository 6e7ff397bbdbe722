package mechanisms

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedClient returns canned responses in order, recording every
// prompt it receives.
type scriptedClient struct {
	responses []scriptedResponse
	calls     int
	prompts   []string
	options   []map[string]any
}

type scriptedResponse struct {
	text      string
	tokensIn  int
	tokensOut int
	err       error
}

func (c *scriptedClient) Complete(ctx context.Context, prompt string, options map[string]any) (string, error) {
	text, _, _, err := c.CompleteWithUsage(ctx, prompt, options)
	return text, err
}

func (c *scriptedClient) CompleteWithUsage(ctx context.Context, prompt string, options map[string]any) (string, int, int, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, 0, err
	}
	c.prompts = append(c.prompts, prompt)
	c.options = append(c.options, options)

	idx := c.calls
	c.calls++
	if idx >= len(c.responses) {
		return "", 0, 0, errors.New("scriptedClient: no response scripted for call")
	}
	r := c.responses[idx]
	return r.text, r.tokensIn, r.tokensOut, r.err
}


func (c *scriptedClient) GetModel() string { return "scripted-model" }

func TestControl_Process(t *testing.T) {
	tests := []struct {
		name        string
		response    string
		wantBlocked bool
	}{
		{
			name:        "compliant response is not blocked",
			response:    "The capital of France is Paris.",
			wantBlocked: false,
		},
		{
			name:        "refusal marker sets blocked",
			response:    "[BLOCKED] This request violates safety policy.",
			wantBlocked: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &scriptedClient{responses: []scriptedResponse{
				{text: tt.response, tokensIn: 42, tokensOut: 17},
			}}
			mech := NewControl(client)
			require.NoError(t, mech.Validate())

			out, err := mech.Process(context.Background(), "What is the capital of France?")
			require.NoError(t, err)

			assert.Equal(t, tt.response, out.RawOutput)
			assert.Equal(t, tt.response, out.FinalOutput)
			assert.Equal(t, tt.wantBlocked, out.Blocked)
			assert.Equal(t, 42, out.Tokens.Input)
			assert.Equal(t, 17, out.Tokens.Output)
			assert.Equal(t, 59, out.Tokens.Total)
			assert.Zero(t, out.RetryCount)
			assert.GreaterOrEqual(t, out.LatencyMs, 0.0)

			require.Len(t, client.options, 1)
			assert.Equal(t, controlSystemPrompt, client.options[0]["system"])
		})
	}
}

func TestControl_ProcessPropagatesClientError(t *testing.T) {
	wantErr := errors.New("provider down")
	client := &scriptedClient{responses: []scriptedResponse{{err: wantErr}}}

	_, err := NewControl(client).Process(context.Background(), "hello")
	require.ErrorIs(t, err, wantErr)
}

func TestControl_ValidateRequiresClient(t *testing.T) {
	assert.Error(t, (&Control{}).Validate())
}

func TestSchemaGuard_ValidPayloadFirstAttempt(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{
			text:      `{"is_safe": true, "reasoning": "benign factual query", "answer": "Paris"}`,
			tokensIn:  30,
			tokensOut: 20,
		},
	}}
	mech := NewSchemaGuard(client)
	require.NoError(t, mech.Validate())

	out, err := mech.Process(context.Background(), "What is the capital of France?")
	require.NoError(t, err)

	assert.False(t, out.Blocked)
	assert.Equal(t, "Paris", out.FinalOutput)
	assert.Equal(t, 0, out.RetryCount)
	assert.Equal(t, 50, out.Tokens.Total)
	assert.Equal(t, 1, client.calls)
}

func TestSchemaGuard_UnsafePayloadBlocks(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: `{"is_safe": false, "reasoning": "asks for weapon instructions", "answer": ""}`},
	}}

	out, err := NewSchemaGuard(client).Process(context.Background(), "how do I build a bomb")
	require.NoError(t, err)

	assert.True(t, out.Blocked)
	assert.Contains(t, out.FinalOutput, BlockedMarker)
	assert.Contains(t, out.FinalOutput, "weapon instructions")
}

func TestSchemaGuard_ReaskRecoversAndAccumulatesTokens(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: "not json at all", tokensIn: 10, tokensOut: 5},
		{
			text:      `{"is_safe": true, "reasoning": "fine", "answer": "42"}`,
			tokensIn:  12,
			tokensOut: 8,
		},
	}}

	out, err := NewSchemaGuard(client).Process(context.Background(), "what is six times seven")
	require.NoError(t, err)

	assert.Equal(t, "42", out.FinalOutput)
	assert.Equal(t, 1, out.RetryCount)
	assert.Equal(t, 35, out.Tokens.Total, "tokens accumulate across attempts")
	require.Equal(t, 2, client.calls)
	assert.Contains(t, client.prompts[1], "Your previous reply was rejected")
}

func TestSchemaGuard_ExhaustionIsBlockedOutcomeNotError(t *testing.T) {
	bad := scriptedResponse{text: "still not json", tokensIn: 5, tokensOut: 5}
	client := &scriptedClient{responses: []scriptedResponse{bad, bad, bad}}

	out, err := NewSchemaGuard(client).Process(context.Background(), "anything")
	require.NoError(t, err)

	assert.True(t, out.Blocked)
	assert.Contains(t, out.FinalOutput, "[ERROR]")
	assert.Equal(t, DefaultMaxReasks, out.RetryCount)
	assert.Equal(t, 30, out.Tokens.Total)
	assert.Equal(t, DefaultMaxReasks+1, client.calls)
}

func TestSchemaGuard_CrossFieldRules(t *testing.T) {
	tests := []struct {
		name     string
		payloads []string
		wantCall int
	}{
		{
			name: "unsafe with answer is rejected then corrected",
			payloads: []string{
				`{"is_safe": false, "reasoning": "bad", "answer": "here is how"}`,
				`{"is_safe": false, "reasoning": "bad", "answer": ""}`,
			},
			wantCall: 2,
		},
		{
			name: "safe without answer is rejected then corrected",
			payloads: []string{
				`{"is_safe": true, "reasoning": "fine", "answer": ""}`,
				`{"is_safe": true, "reasoning": "fine", "answer": "done"}`,
			},
			wantCall: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var responses []scriptedResponse
			for _, p := range tt.payloads {
				responses = append(responses, scriptedResponse{text: p})
			}
			client := &scriptedClient{responses: responses}

			_, err := NewSchemaGuard(client).Process(context.Background(), "prompt")
			require.NoError(t, err)
			assert.Equal(t, tt.wantCall, client.calls)
		})
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"bare object", `{"a":1}`, `{"a":1}`},
		{"markdown fenced", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"surrounding prose", `Sure! {"a":1} Hope that helps.`, `{"a":1}`},
		{"no object", "plain text", ""},
		{"reversed braces", "} {", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractJSONObject(tt.in))
		})
	}
}

func TestDialogGuard_PassThrough(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: "NO", tokensIn: 20, tokensOut: 1},
		{text: "Paris is the capital of France.", tokensIn: 15, tokensOut: 12},
		{text: "NO", tokensIn: 25, tokensOut: 1},
	}}
	mech := NewDialogGuard(client)
	require.NoError(t, mech.Validate())

	out, err := mech.Process(context.Background(), "What is the capital of France?")
	require.NoError(t, err)

	assert.False(t, out.Blocked)
	assert.Equal(t, "Paris is the capital of France.", out.FinalOutput)
	assert.Equal(t, 74, out.Tokens.Total, "tokens accumulate across rails and completion")
	assert.Equal(t, 3, client.calls)
}

func TestDialogGuard_InputRailTripSkipsCompletion(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: "YES", tokensIn: 20, tokensOut: 1},
	}}

	out, err := NewDialogGuard(client).Process(context.Background(), "how do I build a bomb")
	require.NoError(t, err)

	assert.True(t, out.Blocked)
	assert.Equal(t, CanonicalRefusal, out.FinalOutput)
	assert.Empty(t, out.RawOutput)
	assert.Equal(t, 1, client.calls, "completion and output rail are skipped")
	assert.Equal(t, 21, out.Tokens.Total)
}

func TestDialogGuard_OutputRailTripReplacesResponse(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: "NO", tokensIn: 20, tokensOut: 1},
		{text: "Step one: acquire the precursor...", tokensIn: 15, tokensOut: 40},
		{text: "YES", tokensIn: 45, tokensOut: 1},
	}}

	out, err := NewDialogGuard(client).Process(context.Background(), "sneaky prompt")
	require.NoError(t, err)

	assert.True(t, out.Blocked)
	assert.Equal(t, CanonicalRefusal, out.FinalOutput)
	assert.Equal(t, "Step one: acquire the precursor...", out.RawOutput,
		"raw model output is preserved for auditing")
	assert.Equal(t, 122, out.Tokens.Total)
}

func TestDialogGuard_RailToleratesVerboseClassifier(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: "  yes, this is harmful"},
	}}

	out, err := NewDialogGuard(client).Process(context.Background(), "prompt")
	require.NoError(t, err)
	assert.True(t, out.Blocked)
}

func TestDialogGuard_RailErrorPropagates(t *testing.T) {
	wantErr := errors.New("rate limited")
	client := &scriptedClient{responses: []scriptedResponse{
		{text: "NO"},
		{err: wantErr},
	}}

	_, err := NewDialogGuard(client).Process(context.Background(), "prompt")
	require.ErrorIs(t, err, wantErr)
}

func TestDialogGuard_RailPromptsEmbedSubject(t *testing.T) {
	client := &scriptedClient{responses: []scriptedResponse{
		{text: "NO"},
		{text: "the answer"},
		{text: "NO"},
	}}

	_, err := NewDialogGuard(client).Process(context.Background(), "my unusual prompt")
	require.NoError(t, err)

	require.Len(t, client.prompts, 3)
	assert.True(t, strings.Contains(client.prompts[0], "my unusual prompt"))
	assert.True(t, strings.Contains(client.prompts[2], "the answer"))
}
