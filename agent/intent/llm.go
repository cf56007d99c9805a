package intent

import (
	"context"
	"encoding/json"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	statex "github.com/itinera-labs/itinera/agent/state"
)

// ModelClassifier asks an LLM for the intent and slots, with the rule
// classifier as its safety net: any model or schema failure falls back to
// deterministic rules so routing never depends on provider uptime.
type ModelClassifier struct {
	runner   compose.Runnable[map[string]any, Classification]
	fallback *RuleClassifier
}

func NewModelClassifier(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*ModelClassifier, error) {
	runner, err := compileClassifierGraph(ctx, chatModel, systemPrompt)
	if err != nil {
		return nil, err
	}
	return &ModelClassifier{
		runner:   runner,
		fallback: NewRuleClassifier(),
	}, nil
}

func (c *ModelClassifier) Classify(ctx context.Context, message string, history []statex.IntentRecord) (Classification, error) {
	payload := map[string]any{
		"message": message,
		"history": summarizeHistory(history),
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return c.fallback.Classify(ctx, message, history)
	}

	out, err := c.runner.Invoke(ctx, map[string]any{"input": string(input)})
	if err != nil {
		log.Debug().Err(err).Msg("model classification failed, using rules")
		return c.fallback.Classify(ctx, message, history)
	}

	if !knownIntent(out.Intent) || out.Confidence <= 0 || out.Confidence > 1 {
		log.Debug().Str("intent", out.Intent).Float64("confidence", out.Confidence).
			Msg("model classification out of schema, using rules")
		return c.fallback.Classify(ctx, message, history)
	}

	// The model is better at intent than at slot extraction; merge in the
	// rule-based slots it missed.
	ruleCls, _ := c.fallback.Classify(ctx, message, history)
	if out.Slots == nil {
		out.Slots = ruleCls.Slots
	} else {
		for k, v := range ruleCls.Slots {
			if _, exists := out.Slots[k]; !exists {
				out.Slots[k] = v
			}
		}
	}
	return out, nil
}

func compileClassifierGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
	systemPrompt string,
) (compose.Runnable[map[string]any, Classification], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	parser := schema.NewMessageJSONParser[Classification](&schema.MessageJSONParseConfig{
		ParseFrom: schema.MessageParseFromContent,
	})

	graph := compose.NewGraph[map[string]any, Classification]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add classifier prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add classifier model node: %w", err)
	}
	if err := graph.AddLambdaNode("parse_json", compose.MessageParser(parser)); err != nil {
		return nil, fmt.Errorf("add classifier parser node: %w", err)
	}

	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add classifier edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add classifier edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", "parse_json"); err != nil {
		return nil, fmt.Errorf("add classifier edge model->parse: %w", err)
	}
	if err := graph.AddEdge("parse_json", compose.END); err != nil {
		return nil, fmt.Errorf("add classifier edge parse->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("intent.classifier_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile classifier graph: %w", err)
	}
	return runner, nil
}

func knownIntent(name string) bool {
	switch name {
	case IntentFlightSearch, IntentFlightStatus, IntentLodgingSearch,
		IntentWeather, IntentRoute, IntentWebpage, IntentCalendar,
		IntentMemoryRecall:
		return true
	default:
		return false
	}
}

func summarizeHistory(history []statex.IntentRecord) []string {
	const keep = 5
	start := 0
	if len(history) > keep {
		start = len(history) - keep
	}
	out := make([]string, 0, keep)
	for _, rec := range history[start:] {
		out = append(out, fmt.Sprintf("%s (%.2f)", rec.Intent, rec.Confidence))
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
