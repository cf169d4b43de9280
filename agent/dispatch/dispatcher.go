package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog/log"

	contractx "github.com/calldeck/calldeck/agent/contract"
)

// recentWindow is how many trailing messages are scanned for evidence that a
// call was already initiated before a call-initiating tool runs again.
const recentWindow = 15

// callActiveMarkers are the textual traces an earlier dispatch (or a human
// joining the call) leaves in the conversation. Any hit inside the recent
// window suppresses a repeated call-initiating tool call.
var callActiveMarkers = []string{
	"dispatched a calling agent",
	"call is underway",
	"call is still in progress",
	"a call for this conversation is already in progress",
	"the business answered",
}

const alreadyActiveResult = "A call agent is already active for this conversation. Do not start another call; ask for its status instead."

// Turn is one completed LLM turn handed to the dispatcher.
type Turn struct {
	Answer  *schema.Message
	History []*schema.Message
	AppID   string
	UserID  string
	Channel string
}

// ExecutedCall records one tool call's outcome within a turn.
type ExecutedCall struct {
	Name      string
	Result    string
	Class     contractx.ToolClass
	Synthetic bool
}

// Outcome is the turn's final reply plus what was executed to produce it.
type Outcome struct {
	Reply    string
	Executed []ExecutedCall
}

// Dispatcher executes a turn's tool calls against the handler registry,
// classifies the results, and decides whether to re-prompt the model.
type Dispatcher struct {
	registry       contractx.HandlerRegistry
	model          einomodel.BaseChatModel
	classes        map[string]contractx.ToolClass
	callInitiating map[string]struct{}

	runner compose.Runnable[Turn, Outcome]
}

// Config binds the dispatcher's collaborators. Classes defaults any unmapped
// tool name to the data class; CallInitiating names get the duplicate-call
// suppression scan.
type Config struct {
	Registry       contractx.HandlerRegistry
	Model          einomodel.BaseChatModel
	Classes        map[string]contractx.ToolClass
	CallInitiating []string
}

func New(ctx context.Context, cfg Config) (*Dispatcher, error) {
	if cfg.Registry == nil {
		return nil, errors.New("handler registry is required")
	}
	if cfg.Model == nil {
		return nil, errors.New("chat model is required")
	}

	callInitiating := make(map[string]struct{}, len(cfg.CallInitiating))
	for _, name := range cfg.CallInitiating {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			callInitiating[trimmed] = struct{}{}
		}
	}

	classes := make(map[string]contractx.ToolClass, len(cfg.Classes))
	for name, class := range cfg.Classes {
		classes[name] = class
	}

	d := &Dispatcher{
		registry:       cfg.Registry,
		model:          cfg.Model,
		classes:        classes,
		callInitiating: callInitiating,
	}

	runner, err := d.compileTurnGraph(ctx)
	if err != nil {
		return nil, err
	}
	d.runner = runner

	return d, nil
}

// Execute runs one turn: every requested tool call in order, then at most one
// follow-up completion when any result was produced.
func (d *Dispatcher) Execute(ctx context.Context, turn Turn) (Outcome, error) {
	return d.runner.Invoke(ctx, turn)
}

type turnState struct {
	Turn     Turn
	Results  []*schema.Message
	Executed []ExecutedCall
}

// executeTools processes the turn's tool calls sequentially. Order matters:
// later calls may depend on conversational side effects of earlier ones.
func (d *Dispatcher) executeTools(ctx context.Context, st *turnState) (*turnState, error) {
	executed := make(map[string]struct{}, len(st.Turn.Answer.ToolCalls))

	for _, call := range st.Turn.Answer.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			continue
		}

		// A given name executes at most once per turn, even when the model
		// emits identical duplicate requests.
		if _, done := executed[name]; done {
			log.Debug().Str("tool", name).Msg("duplicate tool call in turn, skipped")
			continue
		}
		executed[name] = struct{}{}

		if _, isCall := d.callInitiating[name]; isCall && callAlreadyActive(st.Turn.History) {
			st.Results = append(st.Results, toolResultMessage(call.ID, alreadyActiveResult))
			st.Executed = append(st.Executed, ExecutedCall{
				Name:      name,
				Result:    alreadyActiveResult,
				Class:     d.classFor(name),
				Synthetic: true,
			})
			continue
		}

		handler, ok := d.registry.Handler(name)
		if !ok {
			// No tool result is appended; the request stays unanswered
			// for this turn.
			log.Warn().Str("tool", name).Msg("unknown tool name, dropped")
			continue
		}

		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return nil, fmt.Errorf("%w: invalid arguments for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}

		result, err := handler(ctx, st.Turn.AppID, st.Turn.UserID, st.Turn.Channel, args)
		if err != nil {
			// Handler failures stay conversational: the model relays them.
			result = fmt.Sprintf("The %s tool failed: %v", name, err)
		}

		st.Results = append(st.Results, toolResultMessage(call.ID, result))
		st.Executed = append(st.Executed, ExecutedCall{
			Name:   name,
			Result: result,
			Class:  d.classFor(name),
		})
	}

	return st, nil
}

// followUp issues exactly one completion over system/user/tool messages plus
// the fresh results. Assistant turns are stripped so the model is not confused
// by its own interim tool-call syntax.
func (d *Dispatcher) followUp(ctx context.Context, st *turnState) (Outcome, error) {
	messages := make([]*schema.Message, 0, len(st.Turn.History)+len(st.Results))
	for _, msg := range st.Turn.History {
		if msg == nil || msg.Role == schema.Assistant {
			continue
		}
		messages = append(messages, msg)
	}
	messages = append(messages, st.Results...)

	answer, err := d.model.Generate(ctx, messages)
	if err != nil {
		return Outcome{}, fmt.Errorf("follow-up completion: %w", err)
	}

	return Outcome{
		Reply:    strings.TrimSpace(answer.Content),
		Executed: st.Executed,
	}, nil
}

func (d *Dispatcher) classFor(name string) contractx.ToolClass {
	if class, ok := d.classes[name]; ok {
		return class
	}
	return contractx.ToolClassData
}

// callAlreadyActive scans the trailing window of the conversation for traces
// of an already-initiated call. Prevents redundant phone calls triggered by
// model retries.
func callAlreadyActive(history []*schema.Message) bool {
	start := len(history) - recentWindow
	if start < 0 {
		start = 0
	}
	for _, msg := range history[start:] {
		if msg == nil || msg.Content == "" {
			continue
		}
		lowered := strings.ToLower(msg.Content)
		for _, marker := range callActiveMarkers {
			if strings.Contains(lowered, marker) {
				return true
			}
		}
	}
	return false
}

func toolResultMessage(toolCallID, content string) *schema.Message {
	return &schema.Message{
		Role:       schema.Tool,
		ToolCallID: toolCallID,
		Content:    content,
	}
}
