package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/voiceflow/contact"
	"github.com/BaSui01/voiceflow/internal/errtrack"
	"github.com/BaSui01/voiceflow/internal/metrics"
	"github.com/BaSui01/voiceflow/internal/pool"
	"github.com/BaSui01/voiceflow/internal/race"
	"github.com/BaSui01/voiceflow/pipeline"
	"github.com/BaSui01/voiceflow/prompt"
	"github.com/BaSui01/voiceflow/transcript"
	"github.com/BaSui01/voiceflow/types"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ===== 📦 通话编排 =====

// State 通话生命周期阶段
type State string

const (
	StateStarting State = "starting"
	StateActive   State = "active"
	StateClosing  State = "closing"
	StateClosed   State = "closed"
)

// Narrow dependency surfaces so tests can substitute fakes per concern.

// ConfigSource fetches agent personas.
type ConfigSource interface {
	Get(ctx context.Context, agentID, companyID string) (*types.AgentConfig, error)
}

// TranscriptStore persists and reads conversation records.
type TranscriptStore interface {
	ListMessages(ctx context.Context, conversationID string, limit int) ([]transcript.Message, error)
	SaveMessage(ctx context.Context, conversationID, content string, sender transcript.SenderType) error
	UpdateConversation(ctx context.Context, conversationID string, upd transcript.ConversationUpdate) error
}

// KnowledgeSource answers bounded knowledge queries.
type KnowledgeSource interface {
	Query(ctx context.Context, query, companyID, agentID string, topK int) (string, bool)
}

// ContactExtractor pulls contact info out of a user message.
type ContactExtractor interface {
	Extract(ctx context.Context, text string, recentContext []string) (*types.ExtractedContactInfo, error)
}

// ContactSink upserts validated contact info and returns the contact id.
type ContactSink interface {
	Upsert(ctx context.Context, companyID string, info *types.ExtractedContactInfo, callMeta map[string]any) (string, error)
}

// SessionFactory builds the pipeline session for a call. instructions is the
// composed system prompt the gateway seeds the language model with.
type SessionFactory func(ctx context.Context, call *types.CallContext, components pipeline.Components, instructions string) (pipeline.Session, error)

// Options 编排器行为参数
type Options struct {
	// GreetingSettleDelay 入场问候前的静默等待，零值时 500ms
	GreetingSettleDelay time.Duration

	// ProbeTimeout 新旧会话探测上限，零值时 5s
	ProbeTimeout time.Duration

	// KBTopK / KBTokenBudget 知识检索参数
	KBTopK        int
	KBTokenBudget int

	// MaxPendingTasks 通话内后台任务上限，零值时 32
	MaxPendingTasks int

	// DrainTimeout 收尾时等待后台任务的上限，零值时 10s
	DrainTimeout time.Duration

	// Components 流水线组件选型
	Components pipeline.ComponentConfig
}

func (o Options) withDefaults() Options {
	if o.GreetingSettleDelay == 0 {
		o.GreetingSettleDelay = 500 * time.Millisecond
	}
	if o.ProbeTimeout == 0 {
		o.ProbeTimeout = 5 * time.Second
	}
	if o.KBTopK == 0 {
		o.KBTopK = 5
	}
	if o.MaxPendingTasks == 0 {
		o.MaxPendingTasks = 32
	}
	if o.DrainTimeout == 0 {
		o.DrainTimeout = 10 * time.Second
	}
	return o
}

// Orchestrator runs voice calls. One Run per call; the orchestrator itself
// is stateless across calls and safe to share.
type Orchestrator struct {
	configs     ConfigSource
	transcripts TranscriptStore
	knowledge   KnowledgeSource
	extractor   ContactExtractor
	contacts    ContactSink
	newSession  SessionFactory
	composer    *prompt.Composer
	collector   *metrics.Collector
	reporter    *errtrack.Reporter
	opts        Options
	logger      *zap.Logger
}

// Deps 编排器依赖集合
type Deps struct {
	Configs     ConfigSource
	Transcripts TranscriptStore
	Knowledge   KnowledgeSource
	Extractor   ContactExtractor
	Contacts    ContactSink
	NewSession  SessionFactory
	Collector   *metrics.Collector
	Reporter    *errtrack.Reporter
	Logger      *zap.Logger
}

// NewOrchestrator 创建编排器
func NewOrchestrator(deps Deps, opts Options) *Orchestrator {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		configs:     deps.Configs,
		transcripts: deps.Transcripts,
		knowledge:   deps.Knowledge,
		extractor:   deps.Extractor,
		contacts:    deps.Contacts,
		newSession:  deps.NewSession,
		composer:    prompt.NewComposer(),
		collector:   deps.Collector,
		reporter:    deps.Reporter,
		opts:        opts.withDefaults(),
		logger:      logger.With(zap.String("component", "orchestrator")),
	}
}

// CallRequest is the dispatch-side input for one call.
type CallRequest struct {
	RoomName     string
	JobMetadata  string
	RoomMetadata string

	// Rooms 为空时跳过房间服务元数据回退
	Rooms roomLister
}

// callState is the per-call mutable state shared between the event loop and
// background tasks.
type callState struct {
	mu            sync.Mutex
	state         State
	convMeta      types.ConversationMetadata
	contactLinked bool
}

func (cs *callState) setState(s State) {
	cs.mu.Lock()
	cs.state = s
	cs.mu.Unlock()
}

// Run executes one call to completion. ctx cancellation is the shutdown
// signal; the call also ends on pipeline completion or room disconnect,
// whichever fires first.
func (o *Orchestrator) Run(ctx context.Context, req CallRequest) error {
	start := time.Now()
	cs := &callState{state: StateStarting, convMeta: types.ConversationMetadata{}}

	call := ResolveCallContext(ctx, req.RoomName,
		JobMetadataResolver(req.JobMetadata, o.logger),
		RoomMetadataResolver(req.RoomMetadata, req.RoomName, req.Rooms, o.logger),
		RoomNameResolver(req.RoomName),
	)
	logger := o.logger.With(
		zap.String("agent_id", call.AgentID),
		zap.String("conversation_id", call.ConversationID),
		zap.String("room", call.RoomName),
	)

	tracer := otel.Tracer("voiceflow/session")
	ctx, span := tracer.Start(ctx, "voice_call")
	span.SetAttributes(
		attribute.String("voiceflow.agent_id", call.AgentID),
		attribute.String("voiceflow.conversation_id", call.ConversationID),
		attribute.String("voiceflow.room", call.RoomName),
	)
	defer span.End()

	agent, err := o.loadConfig(ctx, call, logger)
	if err != nil {
		o.reportError(ctx, err, call)
		return err
	}

	call.IsNewConversation = o.probeNovelty(ctx, call, logger)

	var kbContext string
	if call.KBEnabled() {
		kbContext, _ = o.knowledge.Query(ctx, "company information and products",
			call.CompanyID, call.AgentID, o.opts.KBTopK)
	}
	instructions := o.composer.Compose(prompt.Input{
		Agent:             agent,
		KBContext:         kbContext,
		IsNewConversation: call.IsNewConversation,
		KBTokenBudget:     o.opts.KBTokenBudget,
	})
	components := pipeline.NewComponents(o.opts.Components, agent.Voice.TTSVoice)
	sess, err := o.newSession(ctx, call, components, instructions)
	if err != nil {
		err = types.NewError(types.ErrPipelineInit, "pipeline construction failed").WithCause(err)
		o.reportError(ctx, err, call)
		return err
	}
	if err := sess.Start(ctx); err != nil {
		o.reportError(ctx, err, call)
		return err
	}

	if o.collector != nil {
		o.collector.SessionStarted()
		defer func() { o.collector.SessionEnded(time.Since(start)) }()
	}

	cs.setState(StateActive)
	logger.Info("session active",
		zap.Bool("is_new_conversation", call.IsNewConversation),
		zap.String("tts_voice", components.TTS))

	taskCtx, cancelTasks := context.WithCancel(context.Background())
	defer cancelTasks()
	tasks := pool.New(taskCtx, o.opts.MaxPendingTasks, logger)

	sessionDone := race.NewSignal("session_done")
	shutdown := race.NewSignal("shutdown")
	disconnect := race.NewSignal("disconnect")

	loopCtx, cancelLoop := context.WithCancel(context.Background())
	defer cancelLoop()
	go func() {
		select {
		case <-ctx.Done():
			shutdown.Fire()
		case <-loopCtx.Done():
		}
	}()
	go o.eventLoop(loopCtx, sess, call, agent, cs, tasks, sessionDone, disconnect)

	winner := race.First(context.Background(), sessionDone, shutdown, disconnect)
	cs.setState(StateClosing)
	logger.Info("session closing", zap.String("cause", winner))

	if winner != "session_done" && call.PersistenceEnabled() {
		// 结束标记不阻塞拆除，排进任务池并在 drain 阶段完成
		if err := tasks.Go("mark_ended", func(context.Context) error {
			o.markEnded(cs, call, logger)
			return nil
		}); err != nil {
			o.markEnded(cs, call, logger)
		}
	}

	_ = sess.Close()
	cancelLoop()
	if drained := tasks.Close(o.opts.DrainTimeout); !drained {
		logger.Warn("background tasks did not drain before deadline")
	}
	cs.setState(StateClosed)
	logger.Info("session closed", zap.Duration("duration", time.Since(start)))
	return nil
}

// loadConfig fetches the persona. Unresolved or missing agents fall back to
// the substitute persona; a tenant mismatch is fatal.
func (o *Orchestrator) loadConfig(ctx context.Context, call *types.CallContext, logger *zap.Logger) (*types.AgentConfig, error) {
	if call.AgentID == types.FallbackAgentID || o.configs == nil {
		logger.Info("no agent resolved, using fallback persona")
		return types.FallbackAgentConfig(), nil
	}

	agent, err := o.configs.Get(ctx, call.AgentID, call.CompanyID)
	if err != nil {
		if types.CodeOf(err) == types.ErrSecurityViolation {
			return nil, err
		}
		logger.Warn("agent config unavailable, using fallback persona", zap.Error(err))
		call.AgentID = types.FallbackAgentID
		return types.FallbackAgentConfig(), nil
	}
	if call.CompanyID == "" {
		call.CompanyID = agent.CompanyID
	}
	return agent, nil
}

// probeNovelty decides whether to greet. Any probe failure defaults to a new
// conversation so a greeting is never silently skipped.
func (o *Orchestrator) probeNovelty(ctx context.Context, call *types.CallContext, logger *zap.Logger) bool {
	if !call.PersistenceEnabled() || o.transcripts == nil {
		return true
	}
	probeCtx, cancel := context.WithTimeout(ctx, o.opts.ProbeTimeout)
	defer cancel()

	msgs, err := o.transcripts.ListMessages(probeCtx, call.ConversationID, 1)
	if err != nil {
		logger.Warn("novelty probe failed, assuming new conversation", zap.Error(err))
		return true
	}
	return len(msgs) <= 1
}

// eventLoop consumes pipeline events until the channel closes. It owns the
// greeting timer and fans persistence/extraction out to the task pool.
func (o *Orchestrator) eventLoop(ctx context.Context, sess pipeline.Session, call *types.CallContext,
	agent *types.AgentConfig, cs *callState, tasks *pool.TaskPool,
	sessionDone, disconnect *race.Signal) {

	if call.IsNewConversation {
		greet := time.AfterFunc(o.opts.GreetingSettleDelay, func() {
			if err := sess.GenerateReply(ctx, prompt.GreetingInstructions(agent), false); err != nil {
				o.logger.Warn("greeting generation failed", zap.Error(err))
			}
		})
		defer greet.Stop()
	}

	for {
		var ev pipeline.Event
		var ok bool
		select {
		case ev, ok = <-sess.Events():
		case <-ctx.Done():
			return
		}
		if !ok {
			sessionDone.Fire()
			return
		}

		switch ev.Type {
		case pipeline.EventTurnCompleted:
			o.handleTurn(ctx, sess, call, ev.Transcript)
		case pipeline.EventItemAdded:
			if ev.Item != nil {
				o.handleItem(call, cs, tasks, *ev.Item)
			}
		case pipeline.EventStateChanged:
			o.logger.Debug("agent state changed", zap.String("state", ev.State))
		case pipeline.EventClosed:
			if ev.Reason == "disconnect" || ev.Reason == "participant_disconnected" {
				disconnect.Fire()
			} else {
				sessionDone.Fire()
			}
			return
		}
	}
}

// handleTurn injects per-turn knowledge context before the reply generates.
// KB failure is silent continue.
func (o *Orchestrator) handleTurn(ctx context.Context, sess pipeline.Session, call *types.CallContext, userText string) {
	if o.collector != nil {
		o.collector.RecordTurn("user")
	}
	if !call.KBEnabled() || o.knowledge == nil || userText == "" {
		return
	}
	snippet, ok := o.knowledge.Query(ctx, userText, call.CompanyID, call.AgentID, o.opts.KBTopK)
	if !ok {
		return
	}
	if err := sess.InjectContext(ctx, "Relevant knowledge base information:\n"+snippet); err != nil {
		o.logger.Warn("context injection failed", zap.Error(err))
	}
}

// handleItem persists one conversation item and, for user items, kicks off
// the extraction chain. Neither path blocks turn processing.
func (o *Orchestrator) handleItem(call *types.CallContext, cs *callState, tasks *pool.TaskPool, item pipeline.Item) {
	text := NormalizeItemText(item.Text)
	if text == "" || !call.PersistenceEnabled() {
		return
	}

	sender := transcript.SenderAgent
	if item.Role == pipeline.RoleUser {
		sender = transcript.SenderUser
	}

	if err := tasks.Go("persist_item", func(taskCtx context.Context) error {
		err := o.transcripts.SaveMessage(taskCtx, call.ConversationID, text, sender)
		if o.collector != nil {
			o.collector.RecordTranscriptSave(resultLabel(err))
		}
		return err
	}); err != nil {
		o.logger.Warn("persist task rejected", zap.Error(err))
	}

	// 联系人链路需要租户归属；公司未知（回退模式）时不做抽取
	if item.Role != pipeline.RoleUser || o.extractor == nil || call.CompanyID == "" {
		return
	}
	if err := tasks.Go("extract_contact", func(taskCtx context.Context) error {
		return o.runExtraction(taskCtx, call, cs, text)
	}); err != nil {
		o.logger.Warn("extraction task rejected", zap.Error(err))
	}
}

// runExtraction is the async contact chain: recent-context fetch, LLM
// extraction, metadata merge, store upsert, conversation linking. Every step
// is best-effort.
func (o *Orchestrator) runExtraction(ctx context.Context, call *types.CallContext, cs *callState, text string) error {
	recent := o.recentContext(ctx, call)

	info, err := o.extractor.Extract(ctx, text, recent)
	if o.collector != nil {
		o.collector.RecordExtraction(resultLabel(err))
	}
	if err != nil || info == nil {
		return err
	}

	cs.mu.Lock()
	merged, changed := contact.MergeIntoMetadata(cs.convMeta, info)
	if changed {
		cs.convMeta = merged
	}
	alreadyLinked := cs.contactLinked
	cs.mu.Unlock()

	upd := transcript.ConversationUpdate{}
	if changed {
		upd.Metadata = merged
	}

	if o.contacts != nil && call.CompanyID != "" {
		contactID, err := o.contacts.Upsert(ctx, call.CompanyID, info, map[string]any{
			"conversation_id": call.ConversationID,
		})
		if err != nil {
			o.logger.Warn("contact upsert failed", zap.Error(err))
		} else if contactID != "" && !alreadyLinked {
			upd.ContactID = contactID
			cs.mu.Lock()
			cs.contactLinked = true
			cs.mu.Unlock()
			if o.collector != nil {
				o.collector.RecordContactUpsert("linked")
			}
		}
	}

	if upd.Metadata != nil || upd.ContactID != "" {
		if err := o.transcripts.UpdateConversation(ctx, call.ConversationID, upd); err != nil {
			o.logger.Warn("conversation metadata update failed", zap.Error(err))
		}
	}
	return nil
}

// recentContext best-effort fetches the last few messages for extraction
// disambiguation.
func (o *Orchestrator) recentContext(ctx context.Context, call *types.CallContext) []string {
	if o.transcripts == nil {
		return nil
	}
	msgs, err := o.transcripts.ListMessages(ctx, call.ConversationID, 10)
	if err != nil {
		return nil
	}
	if len(msgs) > 5 {
		msgs = msgs[len(msgs)-5:]
	}
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("%s: %s", m.SenderType, m.Content))
	}
	return lines
}

// markEnded flags the conversation ended. Runs on its own short deadline
// because the call context is already cancelled at this point.
func (o *Orchestrator) markEnded(cs *callState, call *types.CallContext, logger *zap.Logger) {
	endCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	cs.mu.Lock()
	meta := cs.convMeta.Clone()
	cs.mu.Unlock()

	err := o.transcripts.UpdateConversation(endCtx, call.ConversationID, transcript.ConversationUpdate{
		Status:   "ended",
		EndedAt:  time.Now().UTC(),
		Metadata: meta,
	})
	if err != nil {
		logger.Warn("failed to mark conversation ended", zap.Error(err))
	}
}

// reportError sends a fatal call error to the tracker with call-identifying
// tags before it propagates.
func (o *Orchestrator) reportError(ctx context.Context, err error, call *types.CallContext) {
	o.logger.Error("session error",
		zap.String("agent_id", call.AgentID),
		zap.String("conversation_id", call.ConversationID),
		zap.String("room", call.RoomName),
		zap.Error(err))
	if o.reporter != nil {
		o.reporter.CaptureException(ctx, err, map[string]string{
			"agentId":        call.AgentID,
			"conversationId": call.ConversationID,
			"roomName":       call.RoomName,
		}, map[string]any{
			"errorType": "session_error",
		})
	}
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
