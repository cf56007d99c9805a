package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/rs/zerolog/log"

	contractx "github.com/itinera-labs/itinera/agent/contract"
	statex "github.com/itinera-labs/itinera/agent/state"
)

// Composer renders the turn's reply text.
type Composer interface {
	Compose(ctx context.Context, st *GraphState) (string, error)
}

// ComposeReply renders the reply, appends it as the assistant message, and
// saves the session. Composer failures degrade to the deterministic
// template so the turn always produces text.
func ComposeReply(ctx context.Context, st *GraphState, composer Composer, store statex.Store, now func() time.Time) (GraphOutput, error) {
	reply := ""
	if composer != nil {
		text, err := composer.Compose(ctx, st)
		if err != nil {
			log.Warn().Err(err).Str("session_id", st.Session.SessionID).
				Msg("llm reply composition failed, using template reply")
		} else {
			reply = strings.TrimSpace(text)
		}
	}
	if reply == "" {
		reply = templateReply(st)
	}

	st.Session.AppendMessage(statex.RoleAssistant, reply, now())
	if st.Failure == nil {
		st.Session.ClearError()
	}
	if err := store.Save(ctx, st.Session); err != nil {
		log.Error().Err(err).Str("session_id", st.Session.SessionID).
			Msg("failed to persist session after turn")
	}
	return GraphOutput{Reply: reply, State: st.Session}, nil
}

// LLMComposer drafts replies with a chat model. The raw task payloads go
// into the user message as JSON; error details are reduced to their kind
// so provider internals never leak into the conversation.
type LLMComposer struct {
	client *openaisdk.Client
	model  string
	prompt string
}

func NewLLMComposer(client *openaisdk.Client, model, prompt string) *LLMComposer {
	return &LLMComposer{client: client, model: model, prompt: prompt}
}

func (c *LLMComposer) Compose(ctx context.Context, st *GraphState) (string, error) {
	if c.client == nil {
		return "", fmt.Errorf("llm composer: no client configured")
	}

	payload, err := json.Marshal(composerView(st))
	if err != nil {
		return "", fmt.Errorf("llm composer: encode turn view: %w", err)
	}

	resp, err := c.client.Chat.Completions.New(ctx, openaisdk.ChatCompletionNewParams{
		Model: openaisdk.ChatModel(c.model),
		Messages: []openaisdk.ChatCompletionMessageParamUnion{
			openaisdk.SystemMessage(c.prompt),
			openaisdk.UserMessage(string(payload)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("llm composer: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("llm composer: empty completion")
	}
	return resp.Choices[0].Message.Content, nil
}

type taskView struct {
	Task      string `json:"task"`
	OK        bool   `json:"ok"`
	Payload   any    `json:"payload,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

func composerView(st *GraphState) map[string]any {
	tasks := make([]taskView, 0, len(st.Results))
	for _, r := range st.Results {
		view := taskView{Task: r.Task.Name, OK: r.Result.OK()}
		if r.Result.OK() {
			view.Payload = r.Result.Payload
		} else if r.Result.Err != nil {
			view.ErrorKind = string(r.Result.Err.Kind)
		}
		tasks = append(tasks, view)
	}
	return map[string]any{
		"message":  st.Session.LatestUserMessage(),
		"intent":   st.Plan.Intent,
		"results":  tasks,
		"degraded": st.Degraded,
	}
}

// templateReply is the deterministic fallback used when no chat model is
// configured or the model call fails.
func templateReply(st *GraphState) string {
	if st.Plan.Clarify {
		return st.Plan.Question
	}
	if st.Failure != nil {
		return failureReply(st.Failure)
	}

	var b strings.Builder
	for _, r := range st.SuccessfulResults() {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(summarizePayload(r.Task.Name, r.Result.Payload))
	}
	if b.Len() == 0 {
		return "I could not find anything for that. Could you rephrase or add more detail?"
	}
	if st.Degraded {
		b.WriteString("\nNote: some of this came from saved notes and may be incomplete.")
	}
	return b.String()
}

func failureReply(failure *contractx.InvocationError) string {
	switch failure.Kind {
	case contractx.KindValidation, contractx.KindMethodNotSupported:
		return "I could not run that request as asked. Could you rephrase it?"
	case contractx.KindProviderTransient:
		return "The travel data services are not responding right now. Please try again in a moment."
	default:
		return "Sorry, I could not complete that request. Please try again or ask something else."
	}
}

func summarizePayload(task string, payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%s: done.", task)
	}
	const maxInline = 400
	text := string(data)
	if len(text) > maxInline {
		text = text[:maxInline] + "..."
	}
	return fmt.Sprintf("%s: %s", task, text)
}
