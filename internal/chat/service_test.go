package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/echo-chat/internal/ai"
	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/persona"
	"gorm.io/gorm"
)

type recordingProvider struct {
	mu    sync.Mutex
	reply string
	err   error
	calls [][]ai.Message
	opts  []ai.Options
}

func (p *recordingProvider) Chat(ctx context.Context, messages []ai.Message, opts ai.Options) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	// copy to avoid mutations
	p.calls = append(p.calls, append([]ai.Message(nil), messages...))
	p.opts = append(p.opts, opts)
	if p.err != nil {
		return "", p.err
	}
	return p.reply, nil
}

func (p *recordingProvider) last() ([]ai.Message, ai.Options) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[len(p.calls)-1], p.opts[len(p.opts)-1]
}

type recordingDispatcher struct {
	mu   sync.Mutex
	jobs []TitleJob
}

func (d *recordingDispatcher) DispatchTitle(_ context.Context, job TitleJob) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.jobs = append(d.jobs, job)
	return nil
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&Conversation{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// backends runs fn against both store implementations.
func backends(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("gorm", func(t *testing.T) { fn(t, NewRepo(openTestDB(t))) })
}

func newTestService(store Store, prov ai.Provider, window int) *Service {
	reg := ai.NewRegistry()
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		return prov, nil
	})
	return NewService(store, reg, ServiceConfig{Provider: "fake", Model: "fake-model", MaxTokens: 1000, ContextWindowSize: window}, zerolog.Nop())
}

func TestSendMessage_NewConversation(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		prov := &recordingProvider{reply: "4"}
		svc := newTestService(store, prov, 0)
		titles := &recordingDispatcher{}
		svc.SetTitleDispatcher(titles)

		res, err := svc.SendMessage(ctx, TurnInput{UserID: "u1", Message: "What is 2+2?", Persona: "default"})
		if err != nil {
			t.Fatalf("send message: %v", err)
		}
		if res.ConversationID == "" || res.Response != "4" || !res.Created {
			t.Fatalf("unexpected result: %+v", res)
		}
		if res.MessageCount != 2 || res.Persona != "default" || res.Model != "fake-model" {
			t.Fatalf("unexpected metadata: %+v", res)
		}

		conv, err := svc.GetConversation(ctx, "u1", res.ConversationID)
		if err != nil {
			t.Fatalf("get conversation: %v", err)
		}
		if len(conv.Messages) != 2 {
			t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
		}
		if conv.Messages[0].Role != RoleUser || conv.Messages[0].Content != "What is 2+2?" {
			t.Fatalf("unexpected user msg: %+v", conv.Messages[0])
		}
		if conv.Messages[1].Role != RoleAssistant || conv.Messages[1].Content != "4" {
			t.Fatalf("unexpected assistant msg: %+v", conv.Messages[1])
		}
		if conv.Title != "What is 2+2?" {
			t.Fatalf("expected provisional title, got %q", conv.Title)
		}

		summaries, err := store.ListSummaries(ctx, "u1")
		if err != nil || len(summaries) != 1 {
			t.Fatalf("expected exactly one conversation, got %d (%v)", len(summaries), err)
		}
		if len(titles.jobs) != 1 || titles.jobs[0].ConversationID != res.ConversationID {
			t.Fatalf("expected one title job, got %+v", titles.jobs)
		}
	})
}

func TestSendMessage_PromptUsesPersonaAndHistory(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		prov := &recordingProvider{reply: "ok"}
		svc := newTestService(store, prov, 0)
		titles := &recordingDispatcher{}
		svc.SetTitleDispatcher(titles)

		first, err := svc.SendMessage(ctx, TurnInput{UserID: "u1", Message: "hello"})
		if err != nil {
			t.Fatalf("first turn: %v", err)
		}
		_, err = svc.SendMessage(ctx, TurnInput{UserID: "u1", ConversationID: first.ConversationID, Message: "fix my bug", Persona: "debugger"})
		if err != nil {
			t.Fatalf("second turn: %v", err)
		}

		prompt, opts := prov.last()
		dbg := persona.Get("debugger")
		if len(prompt) != 4 {
			t.Fatalf("expected system + 2 prior + new, got %d", len(prompt))
		}
		if prompt[0].Role != ai.RoleSystem || prompt[0].Content != dbg.Instruction {
			t.Fatalf("unexpected system message: %+v", prompt[0])
		}
		if prompt[1].Content != "hello" || prompt[2].Role != ai.RoleAssistant || prompt[3].Content != "fix my bug" {
			t.Fatalf("unexpected prompt: %+v", prompt)
		}
		if opts.Temperature != dbg.Temperature || opts.MaxTokens != 1000 {
			t.Fatalf("unexpected options: %+v", opts)
		}
		if len(titles.jobs) != 1 {
			t.Fatalf("existing conversations must not dispatch titles, got %d jobs", len(titles.jobs))
		}
	})
}

func TestSendMessage_UsesContextWindow(t *testing.T) {
	store := NewMemoryStore()
	prov := &recordingProvider{reply: "ok"}
	window := 3
	svc := newTestService(store, prov, window)
	ctx := context.Background()

	conv, _ := store.CreateConversation(ctx, "u2", "seed")
	// seed messages: 5 messages already in history
	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if _, err := store.AppendMessage(ctx, conv.ID, role, fmt.Sprintf("m%d", i)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	if _, err := svc.SendMessage(ctx, TurnInput{UserID: "u2", ConversationID: conv.ID, Message: "new"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	prompt, _ := prov.last()
	if len(prompt) != window+2 {
		t.Fatalf("expected %d prompt messages, got %d", window+2, len(prompt))
	}
	if prompt[1].Content != "m2" || prompt[len(prompt)-1].Content != "new" {
		t.Fatalf("expected oldest turns dropped first, got %+v", prompt)
	}
}

func TestSendMessage_Validation(t *testing.T) {
	store := NewMemoryStore()
	svc := newTestService(store, &recordingProvider{reply: "x"}, 0)

	for _, in := range []TurnInput{
		{UserID: "u1", Message: "   "},
		{UserID: "", Message: "hi"},
	} {
		_, err := svc.SendMessage(context.Background(), in)
		if !errors.Is(err, common.ErrBadRequest) {
			t.Fatalf("expected ErrBadRequest for %+v, got %v", in, err)
		}
	}
	if s, _ := store.ListSummaries(context.Background(), "u1"); len(s) != 0 {
		t.Fatalf("validation failures must not create conversations")
	}
}

func TestSendMessage_OwnershipEnforced(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		svc := newTestService(store, &recordingProvider{reply: "ok"}, 0)

		res, err := svc.SendMessage(ctx, TurnInput{UserID: "owner", Message: "mine"})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}

		_, err = svc.SendMessage(ctx, TurnInput{UserID: "intruder", ConversationID: res.ConversationID, Message: "hijack"})
		if !errors.Is(err, common.ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if err := svc.DeleteConversation(ctx, "intruder", res.ConversationID); !errors.Is(err, common.ErrForbidden) {
			t.Fatalf("expected ErrForbidden on delete, got %v", err)
		}
		if _, err := svc.GetConversation(ctx, "intruder", res.ConversationID); !errors.Is(err, common.ErrForbidden) {
			t.Fatalf("expected ErrForbidden on read, got %v", err)
		}
		if _, err := svc.ListHistory(ctx, "intruder", "owner"); !errors.Is(err, common.ErrForbidden) {
			t.Fatalf("expected ErrForbidden on history, got %v", err)
		}

		conv, err := svc.GetConversation(ctx, "owner", res.ConversationID)
		if err != nil || len(conv.Messages) != 2 {
			t.Fatalf("forbidden calls must not touch the conversation: %v %d", err, len(conv.Messages))
		}

		_, err = svc.SendMessage(ctx, TurnInput{UserID: "owner", ConversationID: "01MISSINGMISSINGMISSING000", Message: "hi"})
		if !errors.Is(err, common.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})
}

func TestSendMessage_ModelFailureKeepsUserMessage(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		prov := &recordingProvider{err: errors.New("connection refused")}
		svc := newTestService(store, prov, 0)

		res, err := svc.SendMessage(ctx, TurnInput{UserID: "u1", Message: "are you there?"})
		if !errors.Is(err, common.ErrModelUnavailable) {
			t.Fatalf("expected ErrModelUnavailable, got %v", err)
		}
		if res == nil || res.ConversationID == "" {
			t.Fatalf("expected result carrying the conversation id, got %+v", res)
		}

		conv, err := store.GetConversation(ctx, res.ConversationID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(conv.Messages) != 1 || conv.Messages[0].Content != "are you there?" {
			t.Fatalf("user message must survive model failure: %+v", conv.Messages)
		}

		// retry within the same conversation
		prov.err = nil
		prov.reply = "yes"
		if _, err := svc.SendMessage(ctx, TurnInput{UserID: "u1", ConversationID: res.ConversationID, Message: "retry"}); err != nil {
			t.Fatalf("retry: %v", err)
		}
		conv, _ = store.GetConversation(ctx, res.ConversationID)
		if len(conv.Messages) != 3 {
			t.Fatalf("expected 3 messages after retry, got %d", len(conv.Messages))
		}
	})
}

func TestSendMessage_PlaceholderProvider(t *testing.T) {
	svc := newTestService(NewMemoryStore(), ai.PlaceholderProvider{}, 0)
	res, err := svc.SendMessage(context.Background(), TurnInput{UserID: "u1", Message: "hi"})
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if !strings.HasPrefix(res.Response, ai.PlaceholderPrefix) || res.Model != "placeholder" {
		t.Fatalf("expected labeled placeholder reply, got %+v", res)
	}
}

func TestGenerateTitle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	prov := &recordingProvider{reply: `"Basic Arithmetic Question Here Today Extra"`}
	svc := newTestService(store, prov, 0)

	conv, _ := store.CreateConversation(ctx, "u1", "What is 2+2?")
	if err := svc.GenerateTitle(ctx, conv.ID, "What is 2+2?"); err != nil {
		t.Fatalf("generate title: %v", err)
	}
	got, _ := store.GetConversation(ctx, conv.ID)
	if got.Title != "Basic Arithmetic Question Here Today" {
		t.Fatalf("unexpected title %q", got.Title)
	}
	prompt, opts := prov.last()
	if prompt[0].Content != titleInstruction || opts.MaxTokens != titleMaxTokens {
		t.Fatalf("unexpected title request: %+v %+v", prompt, opts)
	}

	// blank and failing generations keep the existing title
	prov.reply = "   "
	_ = svc.GenerateTitle(ctx, conv.ID, "x")
	prov.err = errors.New("boom")
	if err := svc.GenerateTitle(ctx, conv.ID, "x"); !errors.Is(err, common.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	got, _ = store.GetConversation(ctx, conv.ID)
	if got.Title != "Basic Arithmetic Question Here Today" {
		t.Fatalf("title must be unchanged, got %q", got.Title)
	}
}

func TestRenameConversation(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(store, &recordingProvider{}, 0)
	conv, _ := store.CreateConversation(ctx, "u1", "old")

	if err := svc.RenameConversation(ctx, "u1", conv.ID, "  "); !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("expected ErrBadRequest, got %v", err)
	}
	if err := svc.RenameConversation(ctx, "u2", conv.ID, "new"); !errors.Is(err, common.ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if err := svc.RenameConversation(ctx, "u1", conv.ID, "new"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	got, _ := store.GetConversation(ctx, conv.ID)
	if got.Title != "new" {
		t.Fatalf("unexpected title %q", got.Title)
	}
}

type chunkedProvider struct {
	parts []string
	gate  chan struct{}
}

func (p *chunkedProvider) Chat(ctx context.Context, _ []ai.Message, _ ai.Options) (string, error) {
	return strings.Join(p.parts, ""), nil
}

func (p *chunkedProvider) StreamChat(ctx context.Context, _ []ai.Message, _ ai.Options) (<-chan string, <-chan error) {
	chunks := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		for i, part := range p.parts {
			if i == 1 && p.gate != nil {
				<-p.gate
			}
			select {
			case chunks <- part:
			case <-ctx.Done():
				return
			}
		}
	}()
	return chunks, errs
}

func TestSendMessageStream_Completes(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	svc := newTestService(store, &chunkedProvider{parts: []string{"Hel", "lo"}}, 0)

	ts, err := svc.SendMessageStream(ctx, TurnInput{UserID: "u1", Message: "hi"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	var b strings.Builder
	for c := range ts.Chunks {
		b.WriteString(c)
	}
	out := <-ts.Outcome
	if out.Err != nil || out.Result.Response != "Hello" || b.String() != "Hello" {
		t.Fatalf("unexpected outcome: %+v %q", out, b.String())
	}
	conv, _ := store.GetConversation(ctx, ts.ConversationID)
	if len(conv.Messages) != 2 || conv.Messages[1].Content != "Hello" {
		t.Fatalf("expected assistant reply stored, got %+v", conv.Messages)
	}
}

func TestSendMessageStream_CancelDiscardsPartialReply(t *testing.T) {
	store := NewMemoryStore()
	prov := &chunkedProvider{parts: []string{"partial", " rest"}, gate: make(chan struct{})}
	svc := newTestService(store, prov, 0)

	ctx, cancel := context.WithCancel(context.Background())
	ts, err := svc.SendMessageStream(ctx, TurnInput{UserID: "u1", Message: "long question"})
	if err != nil {
		t.Fatalf("stream: %v", err)
	}

	if first := <-ts.Chunks; first != "partial" {
		t.Fatalf("unexpected first chunk %q", first)
	}
	cancel()
	close(prov.gate)

	for range ts.Chunks {
	}
	select {
	case out := <-ts.Outcome:
		if !errors.Is(out.Err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %+v", out)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("stream did not finish after cancel")
	}

	conv, _ := store.GetConversation(context.Background(), ts.ConversationID)
	if len(conv.Messages) != 1 || conv.Messages[0].Role != RoleUser {
		t.Fatalf("only the user message should be stored, got %+v", conv.Messages)
	}
}

func TestSendMessageStream_ProviderErrorKeepsConversation(t *testing.T) {
	backends(t, func(t *testing.T, store Store) {
		ctx := context.Background()
		svc := NewService(store, ai.NewRegistry(), ServiceConfig{Provider: "missing"}, zerolog.Nop())

		ts, err := svc.SendMessageStream(ctx, TurnInput{UserID: "u1", Message: "hello?"})
		if !errors.Is(err, common.ErrModelUnavailable) {
			t.Fatalf("expected ErrModelUnavailable, got %v", err)
		}
		if ts == nil || ts.ConversationID == "" || !ts.Created {
			t.Fatalf("expected stream carrying the new conversation id, got %+v", ts)
		}

		conv, err := store.GetConversation(ctx, ts.ConversationID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if len(conv.Messages) != 1 || conv.Messages[0].Content != "hello?" {
			t.Fatalf("user message must survive provider failure: %+v", conv.Messages)
		}
	})
}

func TestSuggestTitle(t *testing.T) {
	ctx := context.Background()

	svc := newTestService(NewMemoryStore(), &recordingProvider{reply: "Title: Go Channel Basics"}, 0)
	title, err := svc.SuggestTitle(ctx, "how do channels work in go")
	if err != nil || title != "Go Channel Basics" {
		t.Fatalf("got %q, %v", title, err)
	}

	placeholder := newTestService(NewMemoryStore(), ai.PlaceholderProvider{}, 0)
	title, _ = placeholder.SuggestTitle(ctx, "summarize international telecommunications regulations quickly")
	if title != "summarize international teleco..." {
		t.Fatalf("fallback title = %q", title)
	}

	failing := newTestService(NewMemoryStore(), &recordingProvider{err: errors.New("boom")}, 0)
	title, err = failing.SuggestTitle(ctx, "anything")
	if err != nil || title != DefaultTitle {
		t.Fatalf("got %q, %v", title, err)
	}

	if _, err := svc.SuggestTitle(ctx, "   "); !errors.Is(err, common.ErrBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}
