package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"quranchat/internal/tools"
	"quranchat/pkg/ai"
	"quranchat/pkg/domain"
	"quranchat/pkg/queue"
	"quranchat/pkg/storage"
	"quranchat/pkg/store"
)

const (
	maxMessageRunes = 2000
	maxHistoryTurns = 40
)

// TurnPublisher hands finished turns to an async recorder. RedisTurnQueue
// implements it.
type TurnPublisher interface {
	Enqueue(ctx context.Context, turn queue.Turn) error
}

// Options wires the orchestrator. Model, ChatModel and Executor are
// required; Store, Publisher, Image and Cache are optional and disable
// their features when absent.
type Options struct {
	Model      ai.ChatModel
	ChatModel  string
	Image      ai.ImageModel
	ImageModel string
	Executor   *tools.Executor
	Store      store.Store
	Publisher  TurnPublisher
	Cache      storage.ImageCache
}

// App runs chat turns: it drives the two-phase model exchange, executes
// tool calls, and records finished turns.
type App struct {
	model      ai.ChatModel
	chatModel  string
	image      ai.ImageModel
	imageModel string
	executor   *tools.Executor
	store      store.Store
	publisher  TurnPublisher
	cache      storage.ImageCache
	guard      *turnGuard
}

// New validates the options and builds the orchestrator.
func New(opts Options) (*App, error) {
	if opts.Model == nil {
		return nil, errors.New("chat model required")
	}
	if strings.TrimSpace(opts.ChatModel) == "" {
		return nil, errors.New("chat model name required")
	}
	if opts.Executor == nil {
		return nil, errors.New("tool executor required")
	}
	return &App{
		model:      opts.Model,
		chatModel:  opts.ChatModel,
		image:      opts.Image,
		imageModel: opts.ImageModel,
		executor:   opts.Executor,
		store:      opts.Store,
		publisher:  opts.Publisher,
		cache:      opts.Cache,
		guard:      newTurnGuard(),
	}, nil
}

// TurnRequest is one user message plus its conversational context.
type TurnRequest struct {
	SessionID      string
	Identity       string
	ConversationID string
	Message        string
	History        []domain.ChatMessage
	Language       string
}

// TurnReply is the user-visible outcome of a turn.
type TurnReply struct {
	ConversationID string `json:"conversationId,omitempty"`
	domain.TurnResult
}

// Turn runs one chat exchange. Provider failures never surface as errors:
// they become localized apology text so the conversation stays usable.
// Validation failures and superseded turns do return errors.
func (a *App) Turn(ctx context.Context, req TurnRequest) (TurnReply, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return TurnReply{}, ErrEmptyMessage
	}
	if len([]rune(message)) > maxMessageRunes {
		return TurnReply{}, ErrMessageTooLong
	}

	turnCtx, done := a.guard.begin(ctx, a.sessionKey(req))
	defer done()

	contents := historyContents(req.History)
	contents = append(contents, ai.Content{Role: "user", Parts: []ai.Part{{Text: message}}})

	first := ai.GenerateRequest{
		Contents:          contents,
		SystemInstruction: &ai.Content{Parts: []ai.Part{{Text: systemInstruction}}},
		Tools:             []ai.Tool{{FunctionDeclarations: tools.Declarations()}},
	}
	content, err := a.model.GenerateContent(turnCtx, a.chatModel, first)
	if err != nil {
		return a.turnFailure(ctx, turnCtx, req, err)
	}

	calls := ai.FunctionCallsOf(content)
	if len(calls) == 0 {
		text := ai.TextOf(content)
		if text == "" {
			text = fallbackReply
		}
		return a.finishTurn(ctx, turnCtx, req, message, domain.TurnResult{Text: text})
	}

	results := a.executeCalls(turnCtx, calls)
	if isSuperseded(ctx, turnCtx) {
		return TurnReply{}, ErrTurnSuperseded
	}

	second := first
	second.Contents = append(second.Contents, content)
	second.Contents = append(second.Contents,
		ai.Content{Role: "function", Parts: functionResponses(results)},
		ai.Content{Role: "user", Parts: []ai.Part{{Text: finalAnswerInstruction}}},
	)
	content, err = a.model.GenerateContent(turnCtx, a.chatModel, second)
	if err != nil {
		return a.turnFailure(ctx, turnCtx, req, err)
	}

	text := ai.TextOf(content)
	if text == "" {
		text = fallbackReply
	}
	return a.finishTurn(ctx, turnCtx, req, message, domain.TurnResult{Text: text, ToolResults: results})
}

// Clear cancels the session's in-flight turn so its late result is
// discarded instead of racing a fresh conversation.
func (a *App) Clear(sessionID string) {
	a.guard.clear(sessionID)
}

func (a *App) sessionKey(req TurnRequest) string {
	if req.SessionID != "" {
		return req.SessionID
	}
	return req.Identity
}

// executeCalls runs tool calls concurrently but keeps results in call
// order. Executor failures are payloads, never errors, so the group only
// aborts on context cancellation.
func (a *App) executeCalls(ctx context.Context, calls []ai.FunctionCall) []domain.ToolResult {
	results := make([]domain.ToolResult, len(calls))
	g, gctx := errgroup.WithContext(ctx)
	for i, call := range calls {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = a.executor.Execute(gctx, domain.ToolCall{Name: call.Name, Args: call.Args})
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		slog.Warn("tool execution interrupted", "err", err)
	}
	return results
}

func functionResponses(results []domain.ToolResult) []ai.Part {
	parts := make([]ai.Part, 0, len(results))
	for _, r := range results {
		response, ok := r.Result.(map[string]any)
		if !ok {
			response = map[string]any{"result": r.Result}
		}
		parts = append(parts, ai.Part{FunctionResponse: &ai.FunctionResponse{
			Name:     r.Name,
			Response: response,
		}})
	}
	return parts
}

// historyContents maps stored history into model contents, keeping only the
// most recent turns.
func historyContents(history []domain.ChatMessage) []ai.Content {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}
	contents := make([]ai.Content, 0, len(history)+1)
	for _, msg := range history {
		var role string
		switch msg.Role {
		case domain.RoleUser:
			role = "user"
		case domain.RoleModel:
			role = "model"
		default:
			continue
		}
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		contents = append(contents, ai.Content{Role: role, Parts: []ai.Part{{Text: msg.Content}}})
	}
	return contents
}

// isSuperseded distinguishes a Clear-cancelled turn from a caller that
// went away entirely.
func isSuperseded(parent, turnCtx context.Context) bool {
	return turnCtx.Err() != nil && parent.Err() == nil
}

// turnFailure converts a provider error into a localized apology reply.
// Superseded turns and dead callers still error out.
func (a *App) turnFailure(parent, turnCtx context.Context, req TurnRequest, err error) (TurnReply, error) {
	if isSuperseded(parent, turnCtx) {
		return TurnReply{}, ErrTurnSuperseded
	}
	if parent.Err() != nil {
		return TurnReply{}, parent.Err()
	}

	kind := apologyGeneric
	switch {
	case errors.Is(err, ai.ErrQuotaExceeded):
		kind = apologyQuota
	case errors.Is(err, ai.ErrRateLimited):
		kind = apologyRateLimit
	}
	slog.Warn("chat turn failed", "err", err, "session", req.SessionID)
	return TurnReply{
		ConversationID: req.ConversationID,
		TurnResult:     domain.TurnResult{Text: apologyText(req.Language, kind)},
	}, nil
}

// finishTurn runs the post-answer bookkeeping: supersede check, then
// best-effort persistence.
func (a *App) finishTurn(parent, turnCtx context.Context, req TurnRequest, message string, result domain.TurnResult) (TurnReply, error) {
	if isSuperseded(parent, turnCtx) {
		return TurnReply{}, ErrTurnSuperseded
	}
	convID := a.recordTurn(parent, req, message, result)
	return TurnReply{ConversationID: convID, TurnResult: result}, nil
}

// recordTurn persists the exchange. Every failure here is logged and
// swallowed: the user already has their answer.
func (a *App) recordTurn(ctx context.Context, req TurnRequest, message string, result domain.TurnResult) string {
	if a.store == nil {
		return req.ConversationID
	}

	convID := req.ConversationID
	if convID != "" {
		conv, found, err := a.store.GetConversation(convID)
		if err != nil {
			slog.Error("load conversation failed", "conversation_id", convID, "err", err)
			return ""
		}
		// A foreign id is treated exactly like an unknown one: the turn
		// lands in a fresh conversation instead of someone else's.
		if !found || conv.UserID != req.Identity {
			slog.Warn("conversation id rejected", "conversation_id", convID)
			convID = ""
		}
	}
	if convID == "" {
		convID = uuid.NewString()
		now := time.Now().UTC()
		conv := domain.Conversation{
			ID:        convID,
			UserID:    req.Identity,
			Title:     titleOf(message),
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.store.CreateConversation(conv); err != nil {
			slog.Error("create conversation failed", "err", err)
			return ""
		}
	}

	turn := queue.Turn{
		ConversationID: convID,
		UserID:         req.Identity,
		UserMessage: domain.Message{
			ID:             uuid.NewString(),
			ConversationID: convID,
			Role:           domain.RoleUser,
			Content:        message,
			CreatedAt:      time.Now().UTC(),
		},
		ModelMessage: domain.Message{
			ID:             uuid.NewString(),
			ConversationID: convID,
			Role:           domain.RoleModel,
			Content:        result.Text,
			ToolCalls:      result.ToolResults,
			CreatedAt:      time.Now().UTC(),
		},
	}

	if a.publisher != nil {
		err := a.publisher.Enqueue(ctx, turn)
		if err == nil {
			return convID
		}
		slog.Warn("turn enqueue failed, writing directly", "err", err)
	}
	if err := a.store.AppendMessage(convID, turn.UserMessage); err != nil {
		slog.Error("append user message failed", "err", err)
	}
	if err := a.store.AppendMessage(convID, turn.ModelMessage); err != nil {
		slog.Error("append model message failed", "err", err)
	}
	return convID
}

// titleOf derives a short conversation title from the opening message.
func titleOf(message string) string {
	fields := strings.Fields(message)
	if len(fields) > 6 {
		fields = fields[:6]
	}
	title := strings.Join(fields, " ")
	runes := []rune(title)
	if len(runes) > 40 {
		title = string(runes[:40])
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Sprintf("Conversation %s", time.Now().UTC().Format("2006-01-02"))
	}
	return title
}
