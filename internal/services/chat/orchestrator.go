package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chatmux/chatmux/internal/config"
	"github.com/chatmux/chatmux/internal/models"
	"github.com/chatmux/chatmux/internal/services/ai"
	"github.com/chatmux/chatmux/internal/services/cache"
	"github.com/chatmux/chatmux/internal/services/storage"
	"github.com/chatmux/chatmux/internal/services/stream"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const responseCacheName = "response"

// Classifier proposes mode switches
type Classifier interface {
	ShouldSuggestModeSwitch(query string, current models.ChatMode, lang string) *models.ModeSuggestion
}

// Translator renders localized messages
type Translator interface {
	Get(lang, messageID string, data map[string]interface{}) string
}

// Metrics receives orchestrator events
type Metrics interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
	StreamStarted()
	StreamFinished(outcome string)
	RecordPersistenceFailure()
}

// Deps are the collaborators of an Orchestrator
type Deps struct {
	Provider   ai.Provider
	Store      storage.SessionStore
	Classifier Classifier
	Translator Translator
	Metrics    Metrics
	Logger     *logrus.Logger
	// CacheOptions configure the response cache, e.g. its clock
	CacheOptions []cache.Option
}

// Options tune request handling
type Options struct {
	ResponseTimeout time.Duration
	PersistTimeout  time.Duration
	CacheEnabled    bool
	ResponseTTL     time.Duration
	Context         config.ContextConfig
}

// OptionsFromConfig derives Options from the loaded configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ResponseTimeout: cfg.Server.ResponseTimeout,
		PersistTimeout:  5 * time.Second,
		CacheEnabled:    cfg.Cache.Enabled,
		ResponseTTL:     cfg.Cache.ResponseTTL,
		Context:         cfg.Context,
	}
}

// Orchestrator turns chat requests into responses or event streams
type Orchestrator struct {
	provider   ai.Provider
	store      storage.SessionStore
	classifier Classifier
	translator Translator
	metrics    Metrics
	logger     *logrus.Logger
	opts       Options

	responses *cache.TTLCache[string]
	registry  *Registry
	validate  *validator.Validate

	// pending counts async session writes; idle is closed when it drops to zero
	mu      sync.Mutex
	pending int
	idle    chan struct{}
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	metrics := deps.Metrics
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}

	return &Orchestrator{
		provider:   deps.Provider,
		store:      deps.Store,
		classifier: deps.Classifier,
		translator: deps.Translator,
		metrics:    metrics,
		logger:     deps.Logger,
		opts:       opts,
		responses:  cache.New[string](responseCacheName, opts.ResponseTTL, deps.CacheOptions...),
		registry:   NewRegistry(),
		validate:   validator.New(),
	}
}

// ResponseCache exposes the response cache so the janitor can sweep it
func (o *Orchestrator) ResponseCache() *cache.TTLCache[string] {
	return o.responses
}

// Validate checks a request against its struct constraints
func (o *Orchestrator) Validate(req *models.ChatRequest) error {
	if err := o.validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s failed on %s", strings.ToLower(fe.Field()), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: content is blank", ErrValidation)
	}
	return nil
}

// Process answers a request in one piece, bounded by the response timeout
func (o *Orchestrator) Process(ctx context.Context, req *models.ChatRequest, userID, lang string) (*models.ChatResponse, error) {
	start := time.Now()
	if err := o.Validate(req); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, o.opts.ResponseTimeout)
	defer cancel()

	history, err := o.history(ctx, req.SessionID, userID)
	if err != nil {
		return nil, err
	}
	suggestion := o.classifier.ShouldSuggestModeSwitch(req.Content, req.Mode, lang)
	log := o.logger.WithFields(logrus.Fields{
		"mode":       req.Mode,
		"session_id": req.SessionID,
		"user_id":    userID,
	})

	key := cache.NewFingerprint(req, history).Key()
	text, cached := "", false
	if o.opts.CacheEnabled {
		text, cached = o.responses.Get(key)
		if cached {
			o.metrics.RecordCacheHit(responseCacheName)
			log.WithField("cache_key", key).Debug("Cache hit for response")
		} else {
			o.metrics.RecordCacheMiss(responseCacheName)
		}
	}

	if !cached {
		text, err = o.generate(ctx, BuildPrompt(req, history))
		if err != nil {
			log.WithError(err).Error("Error generating response")
			return nil, err
		}
		if o.opts.CacheEnabled {
			o.responses.Set(key, text, o.opts.ResponseTTL)
		}
	}

	now := time.Now()
	resp := &models.ChatResponse{
		ID:             uuid.New().String(),
		Type:           models.RoleAssistant,
		Content:        RenderHTML(text, req.Mode),
		Timestamp:      now,
		Mode:           req.Mode,
		Steps:          Steps(req.Mode, now),
		ModeSuggestion: suggestion,
		Cached:         cached,
	}
	if req.Mode == models.ModeCode || req.Mode == models.ModeTroubleshoot {
		resp.Code = stream.ExtractCodeBlock(text)
	}
	if req.Mode == models.ModeTroubleshoot {
		resp.Logs = DiagnosticLogs(req, now)
	}

	o.persist(req, userID, text)

	resp.ProcessingTime = time.Since(start).Seconds()
	return resp, nil
}

// generate calls the provider and maps context expiry onto ErrTimeout or ErrCancelled
func (o *Orchestrator) generate(ctx context.Context, prompt ai.Prompt) (string, error) {
	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)

	go func() {
		text, err := o.provider.Generate(ctx, prompt)
		done <- result{text, err}
	}()

	select {
	case r := <-done:
		if r.err == nil {
			return r.text, nil
		}
		if ctxErr := contextError(ctx); ctxErr != nil {
			return "", ctxErr
		}
		return "", fmt.Errorf("%w: %v", ErrProvider, r.err)
	case <-ctx.Done():
		return "", contextError(ctx)
	}
}

func contextError(ctx context.Context) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return ErrTimeout
	case ctx.Err() != nil:
		return ErrCancelled
	default:
		return nil
	}
}

// Stream starts a streaming answer. Nothing is sent upstream until the
// first body event is pulled.
func (o *Orchestrator) Stream(ctx context.Context, req *models.ChatRequest, userID, lang string) (*EventStream, error) {
	if err := o.Validate(req); err != nil {
		return nil, err
	}

	history, err := o.history(ctx, req.SessionID, userID)
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	streamCtx := o.registry.Register(ctx, requestID)
	suggestion := o.classifier.ShouldSuggestModeSwitch(req.Content, req.Mode, lang)

	o.metrics.StreamStarted()
	o.logger.WithFields(logrus.Fields{
		"mode":       req.Mode,
		"request_id": requestID,
		"user_id":    userID,
	}).Info("Starting streaming response")

	return &EventStream{
		o:          o,
		ctx:        streamCtx,
		req:        req,
		userID:     userID,
		lang:       lang,
		prompt:     BuildPrompt(req, history),
		requestID:  requestID,
		messageID:  uuid.New().String(),
		suggestion: suggestion,
		assembler:  stream.NewReassembler(),
	}, nil
}

// Stop cancels an in-flight stream by request id
func (o *Orchestrator) Stop(requestID string) error {
	if err := o.registry.Cancel(requestID); err != nil {
		return err
	}
	o.logger.WithField("request_id", requestID).Info("Stream stop requested")
	return nil
}

// ActiveStreams returns the number of registered streams
func (o *Orchestrator) ActiveStreams() int {
	return o.registry.Len()
}

// Wait blocks until pending session writes finish or ctx ends
func (o *Orchestrator) Wait(ctx context.Context) error {
	o.mu.Lock()
	if o.pending == 0 {
		o.mu.Unlock()
		return nil
	}
	idle := o.idle
	o.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) track() {
	o.mu.Lock()
	if o.pending == 0 {
		o.idle = make(chan struct{})
	}
	o.pending++
	o.mu.Unlock()
}

func (o *Orchestrator) untrack() {
	o.mu.Lock()
	o.pending--
	if o.pending == 0 {
		close(o.idle)
	}
	o.mu.Unlock()
}

// history loads the bounded history of a session the caller may use.
// A session owned by someone else is reported as missing; an unknown
// session starts empty.
func (o *Orchestrator) history(ctx context.Context, sessionID, userID string) ([]models.ConversationTurn, error) {
	if sessionID == "" {
		return nil, nil
	}

	session, err := o.store.Get(ctx, sessionID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	if session.OwnerID != "" && session.OwnerID != userID {
		o.logger.WithFields(logrus.Fields{
			"session_id": sessionID,
			"user_id":    userID,
		}).Warn("Session belongs to another user")
		return nil, storage.ErrSessionNotFound
	}
	return BoundHistory(session.Turns, o.opts.Context), nil
}

// persist stores the turn pair without blocking the caller. A new
// session is created owned by userID.
func (o *Orchestrator) persist(req *models.ChatRequest, userID, answer string) {
	if req.SessionID == "" || answer == "" {
		return
	}

	now := time.Now().UTC()
	turns := []models.ConversationTurn{
		{Role: models.RoleUser, Content: req.Content, CreatedAt: now},
		{Role: models.RoleAssistant, Content: answer, CreatedAt: now},
	}

	o.track()
	go func() {
		defer o.untrack()

		ctx, cancel := context.WithTimeout(context.Background(), o.opts.PersistTimeout)
		defer cancel()

		err := o.store.Create(ctx, req.SessionID, userID)
		if err == nil {
			err = o.store.AppendTurns(ctx, req.SessionID, turns...)
		}
		if err != nil {
			o.metrics.RecordPersistenceFailure()
			o.logger.WithError(fmt.Errorf("%w: %v", ErrPersistence, err)).
				WithField("session_id", req.SessionID).
				Error("Error storing conversation")
		}
	}()
}

func (o *Orchestrator) message(lang, id string) string {
	if o.translator == nil {
		return id
	}
	return o.translator.Get(lang, id, nil)
}

type nopMetrics struct{}

func (nopMetrics) RecordCacheHit(string)     {}
func (nopMetrics) RecordCacheMiss(string)    {}
func (nopMetrics) StreamStarted()            {}
func (nopMetrics) StreamFinished(string)     {}
func (nopMetrics) RecordPersistenceFailure() {}
