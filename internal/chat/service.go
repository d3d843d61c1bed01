package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/suPer8Hu/echo-chat/internal/ai"
	"github.com/suPer8Hu/echo-chat/internal/common"
	"github.com/suPer8Hu/echo-chat/internal/persona"
)

const (
	titleInstruction = "Summarize this prompt in 3-5 words for a chat title. Do not use quotes. Be concise and descriptive."
	titleMaxTokens   = 20
	titleTemperature = 0.7
	maxTitleLength   = 255
)

type ServiceConfig struct {
	Provider  string
	Model     string
	MaxTokens int
	// ContextWindowSize caps prior messages sent to the model; 0 means all.
	ContextWindowSize int
}

type Service struct {
	store    Store
	registry *ai.Registry
	cfg      ServiceConfig
	titles   TitleDispatcher
	log      zerolog.Logger
}

func NewService(store Store, registry *ai.Registry, cfg ServiceConfig, log zerolog.Logger) *Service {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}
	if cfg.ContextWindowSize < 0 {
		cfg.ContextWindowSize = 0
	}
	return &Service{store: store, registry: registry, cfg: cfg, log: log}
}

// SetTitleDispatcher wires background title generation. Without one, new
// conversations keep their provisional title.
func (s *Service) SetTitleDispatcher(d TitleDispatcher) { s.titles = d }

type TurnInput struct {
	UserID         string
	ConversationID string
	Message        string
	Persona        string
}

type TurnResult struct {
	ConversationID string
	Response       string
	Title          string
	MessageCount   int
	Persona        string
	Model          string
	Created        bool
}

func (s *Service) provider(ctx context.Context) (ai.Provider, string, error) {
	p, err := s.registry.Get(ctx, s.cfg.Provider, s.cfg.Model)
	if err != nil {
		return nil, "", err
	}
	model := s.cfg.Model
	if n, ok := p.(ai.Namer); ok {
		model = n.ModelName()
	}
	return p, model, nil
}

func asModelUnavailable(err error) error {
	if errors.Is(err, common.ErrModelUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", common.ErrModelUnavailable, err)
}

// begin runs steps shared by both turn flavors: validate, resolve or create
// the conversation, persist the user message. The returned conversation
// holds the messages that existed before this turn.
func (s *Service) begin(ctx context.Context, in TurnInput) (*Conversation, string, bool, error) {
	text := strings.TrimSpace(in.Message)
	if text == "" {
		return nil, "", false, fmt.Errorf("message is required: %w", common.ErrBadRequest)
	}
	if strings.TrimSpace(in.UserID) == "" {
		return nil, "", false, fmt.Errorf("user is required: %w", common.ErrBadRequest)
	}

	var (
		conv    *Conversation
		created bool
		err     error
	)
	if in.ConversationID != "" {
		conv, err = s.store.GetConversation(ctx, in.ConversationID)
		if err != nil {
			return nil, "", false, err
		}
		if conv.UserID != in.UserID {
			return nil, "", false, fmt.Errorf("conversation %s: %w", conv.ID, common.ErrForbidden)
		}
	} else {
		conv, err = s.store.CreateConversation(ctx, in.UserID, ProvisionalTitle(text))
		if err != nil {
			return nil, "", false, fmt.Errorf("create conversation: %w", err)
		}
		created = true
	}

	if _, err := s.store.AppendMessage(ctx, conv.ID, RoleUser, text); err != nil {
		return conv, "", created, fmt.Errorf("store user message: %w", err)
	}
	return conv, text, created, nil
}

// SendMessage runs one chat turn. On a model failure the user message stays
// stored and the returned result still carries the conversation id.
func (s *Service) SendMessage(ctx context.Context, in TurnInput) (*TurnResult, error) {
	conv, text, created, err := s.begin(ctx, in)
	if err != nil {
		if conv != nil {
			return &TurnResult{ConversationID: conv.ID, Created: created}, err
		}
		return nil, err
	}
	if created {
		s.dispatchTitle(conv.ID, text)
	}

	p := persona.Get(in.Persona)
	res := &TurnResult{
		ConversationID: conv.ID,
		Title:          conv.Title,
		MessageCount:   len(conv.Messages) + 1,
		Persona:        p.Key,
		Created:        created,
	}

	provider, model, err := s.provider(ctx)
	if err != nil {
		return res, err
	}
	res.Model = model

	prompt := AssemblePrompt(p.Instruction, conv.Messages, text, s.cfg.ContextWindowSize)
	reply, err := provider.Chat(ctx, prompt, ai.Options{Temperature: p.Temperature, MaxTokens: s.cfg.MaxTokens})
	if err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("model call failed")
		return res, asModelUnavailable(err)
	}

	if _, err := s.store.AppendMessage(ctx, conv.ID, RoleAssistant, reply); err != nil {
		return res, fmt.Errorf("store assistant message: %w", err)
	}
	res.Response = reply
	res.MessageCount++
	return res, nil
}

type StreamOutcome struct {
	Result *TurnResult
	Err    error
}

// TurnStream is a turn whose reply arrives incrementally. Outcome receives
// exactly one value once Chunks is closed.
type TurnStream struct {
	ConversationID string
	Created        bool
	Chunks         <-chan string
	Outcome        <-chan StreamOutcome
}

// SendMessageStream stores the user message immediately, streams assistant chunks,
// and stores the assistant message only if the stream completes. When ctx is
// cancelled forwarding stops and the partial reply is discarded. If the turn
// fails before streaming starts but after the conversation is known, the
// returned stream carries its id and has nil channels.
func (s *Service) SendMessageStream(ctx context.Context, in TurnInput) (*TurnStream, error) {
	conv, text, created, err := s.begin(ctx, in)
	if err != nil {
		if conv != nil {
			return &TurnStream{ConversationID: conv.ID, Created: created}, err
		}
		return nil, err
	}
	if created {
		s.dispatchTitle(conv.ID, text)
	}

	p := persona.Get(in.Persona)
	provider, model, err := s.provider(ctx)
	if err != nil {
		return &TurnStream{ConversationID: conv.ID, Created: created}, err
	}
	prompt := AssemblePrompt(p.Instruction, conv.Messages, text, s.cfg.ContextWindowSize)
	opts := ai.Options{Temperature: p.Temperature, MaxTokens: s.cfg.MaxTokens}

	out := make(chan string, 16)
	outcome := make(chan StreamOutcome, 1)

	go func() {
		defer close(outcome)
		finish := func(r *TurnResult, err error) {
			close(out)
			outcome <- StreamOutcome{Result: r, Err: err}
		}

		var pChunks <-chan string
		var pErrs <-chan error
		if sp, ok := provider.(ai.StreamProvider); ok {
			pChunks, pErrs = sp.StreamChat(ctx, prompt, opts)
		} else {
			pChunks, pErrs = chatAsStream(ctx, provider, prompt, opts)
		}

		var b strings.Builder
		for c := range pChunks {
			b.WriteString(c)
			select {
			case out <- c:
			case <-ctx.Done():
				finish(nil, ctx.Err())
				return
			}
		}
		if err := <-pErrs; err != nil {
			finish(nil, asModelUnavailable(err))
			return
		}
		if err := ctx.Err(); err != nil {
			finish(nil, err)
			return
		}

		reply := b.String()
		if _, err := s.store.AppendMessage(ctx, conv.ID, RoleAssistant, reply); err != nil {
			finish(nil, fmt.Errorf("store assistant message: %w", err))
			return
		}
		finish(&TurnResult{
			ConversationID: conv.ID,
			Response:       reply,
			Title:          conv.Title,
			MessageCount:   len(conv.Messages) + 2,
			Persona:        p.Key,
			Model:          model,
			Created:        created,
		}, nil)
	}()

	return &TurnStream{ConversationID: conv.ID, Created: created, Chunks: out, Outcome: outcome}, nil
}

func chatAsStream(ctx context.Context, p ai.Provider, prompt []ai.Message, opts ai.Options) (<-chan string, <-chan error) {
	chunks := make(chan string, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		reply, err := p.Chat(ctx, prompt, opts)
		if err != nil {
			errs <- err
			return
		}
		chunks <- reply
	}()
	return chunks, errs
}

func (s *Service) dispatchTitle(conversationID, firstMessage string) {
	if s.titles == nil {
		return
	}
	job := TitleJob{ConversationID: conversationID, FirstMessage: firstMessage}
	if err := s.titles.DispatchTitle(context.Background(), job); err != nil {
		s.log.Warn().Err(err).Str("conversation_id", conversationID).Msg("title dispatch failed")
	}
}

func (s *Service) modelTitle(ctx context.Context, message string) (string, error) {
	provider, _, err := s.provider(ctx)
	if err != nil {
		return "", err
	}
	raw, err := provider.Chat(ctx, []ai.Message{
		{Role: ai.RoleSystem, Content: titleInstruction},
		{Role: ai.RoleUser, Content: message},
	}, ai.Options{Temperature: titleTemperature, MaxTokens: titleMaxTokens})
	if err != nil {
		return "", asModelUnavailable(err)
	}
	if strings.HasPrefix(raw, ai.PlaceholderPrefix) {
		return "", nil
	}
	return SanitizeTitle(raw), nil
}

// GenerateTitle asks the model for a short title and renames the
// conversation. Empty or placeholder answers leave the title unchanged.
func (s *Service) GenerateTitle(ctx context.Context, conversationID, firstMessage string) error {
	title, err := s.modelTitle(ctx, firstMessage)
	if err != nil || title == "" {
		return err
	}
	return s.store.RenameConversation(ctx, conversationID, title)
}

// SuggestTitle returns a title for message without touching any
// conversation. Without a usable model answer it falls back to the first
// words of the message.
func (s *Service) SuggestTitle(ctx context.Context, message string) (string, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return "", fmt.Errorf("message is required: %w", common.ErrBadRequest)
	}
	title, err := s.modelTitle(ctx, message)
	if err != nil {
		s.log.Warn().Err(err).Msg("title suggestion failed")
		return DefaultTitle, nil
	}
	if title == "" {
		return FallbackTitle(message), nil
	}
	return title, nil
}

func (s *Service) owned(ctx context.Context, requesterID, conversationID string) (*Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.UserID != requesterID {
		return nil, fmt.Errorf("conversation %s: %w", conversationID, common.ErrForbidden)
	}
	return conv, nil
}

func (s *Service) GetConversation(ctx context.Context, requesterID, conversationID string) (*Conversation, error) {
	return s.owned(ctx, requesterID, conversationID)
}

func (s *Service) ListHistory(ctx context.Context, requesterID, ownerID string) ([]Summary, error) {
	if requesterID != ownerID {
		return nil, fmt.Errorf("history of %s: %w", ownerID, common.ErrForbidden)
	}
	return s.store.ListSummaries(ctx, ownerID)
}

func (s *Service) RenameConversation(ctx context.Context, requesterID, conversationID, title string) error {
	title = strings.TrimSpace(title)
	if title == "" || utf8.RuneCountInString(title) > maxTitleLength {
		return fmt.Errorf("title must be 1-%d characters: %w", maxTitleLength, common.ErrBadRequest)
	}
	if _, err := s.owned(ctx, requesterID, conversationID); err != nil {
		return err
	}
	return s.store.RenameConversation(ctx, conversationID, title)
}

func (s *Service) DeleteConversation(ctx context.Context, requesterID, conversationID string) error {
	return s.store.DeleteConversation(ctx, conversationID, requesterID)
}
