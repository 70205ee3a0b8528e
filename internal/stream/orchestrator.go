// Package stream runs the per-connection voice ordering loop.
//
// Each accepted connection gets one Orchestrator.Run call, which walks
// the connection through its lifecycle: Connecting, Authenticated,
// Streaming, Closing, Closed. During Streaming two tasks run
// concurrently. The ingest task reads binary audio frames from the
// client, decodes them to PCM, and pushes them onto a bounded queue. A
// forwarding task drains the queue into the ASR provider. The respond
// task consumes committed transcripts and runs the turn pipeline:
// generate a reply, parse its directives, mutate the order, persist,
// and push the transcript, reply, and order diff back to the client.
//
// Failure policy: a failed generator call costs one turn and emits an
// error event; the stream stays open. A broken ASR connection, the
// session deadline, or a terminal intent all force Closing.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xxgiasonxx/voice-ordering-system/internal/observe"
	"github.com/xxgiasonxx/voice-ordering-system/internal/order"
	"github.com/xxgiasonxx/voice-ordering-system/internal/session"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/audio"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/menu"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/asr"
	"github.com/xxgiasonxx/voice-ordering-system/pkg/provider/generator"
)

const (
	// defaultMaxSession caps a voice session's wall-clock duration.
	defaultMaxSession = 10 * time.Minute

	// defaultQueueDepth is the audio frame queue capacity. At one
	// 20 ms frame per entry this buffers about five seconds of speech.
	defaultQueueDepth = 256

	// defaultTopK is the number of menu chunks retrieved per turn.
	defaultTopK = 50

	// closeGrace bounds the final event writes once the streaming
	// context is already cancelled.
	closeGrace = 5 * time.Second
)

// State names a phase of the connection lifecycle.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateStreaming
	StateClosing
	StateClosed
)

// String returns the state label used in logs.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Sentinel errors used to classify why Streaming ended.
var (
	// errSessionEnded means the turn pipeline observed a terminal
	// intent. A clean, expected shutdown.
	errSessionEnded = errors.New("stream: session ended")

	// errClientGone means the ingest task lost the client connection.
	errClientGone = errors.New("stream: client disconnected")

	// errProviderClosed means the ASR provider closed its transcript
	// stream while the client was still connected.
	errProviderClosed = errors.New("stream: transcription provider closed stream")
)

// Conn is the client-facing side of one voice connection. The server
// package adapts a WebSocket to this interface; tests use an in-memory
// double.
//
// Implementations must allow WriteEvent and ReadFrame to be called
// from different goroutines.
type Conn interface {
	// ReadFrame blocks until the next binary audio frame arrives.
	ReadFrame(ctx context.Context) ([]byte, error)

	// WriteEvent sends one JSON event to the client.
	WriteEvent(ctx context.Context, ev Event) error

	// Close closes the connection with a code matching reason. Calling
	// Close more than once is safe.
	Close(reason CloseReason, msg string) error
}

// Option configures an Orchestrator during construction.
type Option func(*Orchestrator)

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(log *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithMetrics sets the metrics sink. Defaults to observe.DefaultMetrics().
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithMaxSession caps a session's wall-clock duration. Default 10 minutes.
func WithMaxSession(d time.Duration) Option {
	return func(o *Orchestrator) { o.maxSession = d }
}

// WithQueueDepth sets the audio frame queue capacity. Default 256.
func WithQueueDepth(n int) Option {
	return func(o *Orchestrator) { o.queueDepth = n }
}

// WithRetriever sets the menu context retriever for generator prompts.
// Without one, turns run with no menu context.
func WithRetriever(r menu.Retriever) Option {
	return func(o *Orchestrator) { o.retriever = r }
}

// WithTopK sets how many menu chunks each turn retrieves. Default 50.
func WithTopK(k int) Option {
	return func(o *Orchestrator) { o.topK = k }
}

// WithTerminalIntents replaces the set of intent labels that end the
// session. Default is just "end"; any label outside the set passes
// through as plain status data.
func WithTerminalIntents(labels []string) Option {
	return func(o *Orchestrator) {
		o.terminal = make(map[string]struct{}, len(labels))
		for _, l := range labels {
			o.terminal[l] = struct{}{}
		}
	}
}

// WithFrameDecoder sets the inbound audio decoder. Default is
// pass-through PCM16 at the ASR target rate.
func WithFrameDecoder(d audio.FrameDecoder) Option {
	return func(o *Orchestrator) { o.decoder = d }
}

// WithStreamConfig overrides the ASR stream configuration.
func WithStreamConfig(cfg asr.StreamConfig) Option {
	return func(o *Orchestrator) { o.asrCfg = cfg }
}

// WithClock overrides the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator drives voice ordering sessions. One instance serves all
// connections; per-connection state lives inside Run.
//
// Orchestrator is safe for concurrent use.
type Orchestrator struct {
	sessions  *session.Service
	engine    *order.Engine
	asrP      asr.Provider
	gen       generator.Provider
	retriever menu.Retriever

	maxSession time.Duration
	queueDepth int
	topK       int
	terminal   map[string]struct{}
	decoder    audio.FrameDecoder
	asrCfg     asr.StreamConfig
	now        func() time.Time

	metrics *observe.Metrics
	log     *slog.Logger
}

// New constructs an Orchestrator over its four collaborators. Options
// are applied after defaults.
func New(sessions *session.Service, engine *order.Engine, asrP asr.Provider, gen generator.Provider, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		sessions:   sessions,
		engine:     engine,
		asrP:       asrP,
		gen:        gen,
		maxSession: defaultMaxSession,
		queueDepth: defaultQueueDepth,
		topK:       defaultTopK,
		terminal:   map[string]struct{}{order.StatusEnd: {}},
		decoder:    &audio.PCMDecoder{SampleRate: audio.TargetSampleRate, Channels: audio.TargetChannels},
		asrCfg: asr.StreamConfig{
			SampleRate: audio.TargetSampleRate,
			Channels:   audio.TargetChannels,
			Language:   "zh-TW",
		},
		now: time.Now,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	return o
}

// Run owns one client connection from acceptance to closure. token is
// the encrypted session credential presented by the client. Run blocks
// until the connection is closed and returns nil on any clean shutdown
// (terminal intent, client hangup, deadline).
func (o *Orchestrator) Run(ctx context.Context, conn Conn, token string) error {
	// Connecting: the credential decides whether we proceed at all.
	id, err := o.sessions.Verify(ctx, token)
	if err != nil {
		o.log.Info("stream rejected", "state", StateConnecting, "err", err)
		o.closeConn(conn, CloseUnauthorized, "unauthorized")
		return fmt.Errorf("stream: verify credential: %w", err)
	}
	log := o.log.With("session_id", id)

	// Authenticated: tell the client we are live before any audio flows.
	if err := conn.WriteEvent(ctx, SuccessEvent()); err != nil {
		return fmt.Errorf("stream: write success event: %w", err)
	}

	handle, err := o.asrP.StartStream(ctx, o.asrCfg)
	if err != nil {
		o.metrics.RecordProviderError(ctx, "asr", "start_stream")
		log.Error("asr stream start failed", "err", err)
		o.closeConn(conn, CloseInternal, "transcription unavailable")
		return fmt.Errorf("stream: start transcription: %w", err)
	}
	defer handle.Close()

	o.metrics.ActiveStreams.Add(ctx, 1)
	defer o.metrics.ActiveStreams.Add(ctx, -1)

	log.Info("stream open", "state", StateStreaming, "max_session", o.maxSession)

	streamCtx, cancel := context.WithTimeout(ctx, o.maxSession)
	defer cancel()

	runErr := o.streaming(streamCtx, conn, handle, id, log)

	// Closing: pick the close code from what ended Streaming. Writes
	// here use a fresh context because streamCtx is usually cancelled.
	reason, msg := classify(runErr, streamCtx.Err())
	log.Info("stream closing", "state", StateClosing, "reason", reason, "err", runErr)
	o.closeConn(conn, reason, msg)

	if reason == CloseInternal {
		return runErr
	}
	return nil
}

// streaming runs the ingest, forward, and respond tasks until one of
// them ends the session. The returned error tells Run why.
func (o *Orchestrator) streaming(ctx context.Context, conn Conn, handle asr.SessionHandle, id string, log *slog.Logger) error {
	// frames is the bounded queue between ingest and the provider. A
	// nil entry is the end-of-audio sentinel.
	frames := make(chan []byte, o.queueDepth)

	// clientErr records why ingest stopped reading. Written once by
	// ingest before it parks the sentinel, read only after g.Wait.
	var clientErr error

	g, ctx := errgroup.WithContext(ctx)

	// Ingest: client frames in, decoded PCM onto the queue. A read
	// failure is not an error here: ingest parks the sentinel and lets
	// the pipeline drain, so audio already queued still reaches the
	// provider and an in-flight turn can finish.
	g.Go(func() error {
		defer func() {
			select {
			case frames <- nil:
			case <-ctx.Done():
			}
		}()
		for {
			frame, err := conn.ReadFrame(ctx)
			if err != nil {
				if ctx.Err() == nil {
					clientErr = err
				}
				return nil
			}
			pcm, err := o.decoder.Decode(frame)
			if err != nil {
				log.Debug("dropping undecodable frame", "size", len(frame), "err", err)
				continue
			}
			select {
			case frames <- pcm:
			case <-ctx.Done():
				return nil
			}
		}
	})

	// Forward: queue to provider, strictly in arrival order. The
	// sentinel closes the provider stream, which in turn closes the
	// transcript channels the respond task ranges over.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case frame := <-frames:
				if frame == nil {
					return handle.Close()
				}
				if err := handle.SendAudio(frame); err != nil {
					o.metrics.RecordProviderError(ctx, "asr", "send_audio")
					return fmt.Errorf("stream: forward audio: %w", err)
				}
			}
		}
	})

	// Respond: committed transcripts drive the turn pipeline, one turn
	// at a time so order state never sees concurrent writers.
	g.Go(func() error {
		finals := handle.Finals()
		interims := handle.Interims()
		for {
			select {
			case <-ctx.Done():
				return nil
			case t, ok := <-interims:
				if !ok {
					interims = nil
					continue
				}
				log.Debug("interim transcript", "text", t.Text)
			case t, ok := <-finals:
				if !ok {
					// Either the provider died or the sentinel shut it
					// down after a client disconnect. Which one is
					// settled after Wait, when clientErr is visible.
					return errProviderClosed
				}
				if t.Text == "" {
					continue
				}
				terminal, err := o.runTurn(ctx, conn, id, t, log)
				if err != nil {
					return err
				}
				if terminal {
					return errSessionEnded
				}
			}
		}
	})

	err := g.Wait()
	if clientErr != nil && errors.Is(err, errProviderClosed) {
		return fmt.Errorf("%w: %w", errClientGone, clientErr)
	}
	return err
}

// TurnResult is the outcome of one completed ordering turn.
type TurnResult struct {
	// Reply is the customer-facing reply text.
	Reply string

	// Intent is the turn's effective intent label, empty when the
	// reply carried none.
	Intent string

	// Changes is the structural diff against the pre-turn order.
	Changes order.Changes

	// Document is the post-turn order state.
	Document order.Document

	// Terminal reports whether Intent is in the terminal set.
	Terminal bool
}

// TextTurn runs one full ordering turn for a typed or transcribed
// query: retrieve menu context, generate a reply, apply its directives
// to the order, and persist the result. It is the same pipeline the
// voice stream runs per committed transcript, usable on its own for
// the stateless order endpoint.
func (o *Orchestrator) TextTurn(ctx context.Context, id, query string) (TurnResult, error) {
	start := o.now()
	res, err := o.textTurn(ctx, id, query, start)
	if err != nil {
		o.metrics.RecordTurn(ctx, "error")
		return TurnResult{}, err
	}
	o.metrics.TurnDuration.Record(ctx, o.now().Sub(start).Seconds())
	o.metrics.RecordTurn(ctx, "ok")
	return res, nil
}

func (o *Orchestrator) textTurn(ctx context.Context, id, query string, start time.Time) (TurnResult, error) {
	history, err := o.sessions.Conversation(ctx, id)
	if err != nil {
		return TurnResult{}, fmt.Errorf("stream: load conversation: %w", err)
	}
	doc, err := o.sessions.OrderState(ctx, id)
	if err != nil {
		return TurnResult{}, fmt.Errorf("stream: load order state: %w", err)
	}

	menuCtx := ""
	if o.retriever != nil {
		menuCtx, err = o.retriever.RetrieveContext(ctx, query, o.topK)
		if err != nil {
			// Degrade to an uninformed prompt rather than losing the turn.
			o.metrics.RecordProviderError(ctx, "retriever", "retrieve")
			o.log.Warn("menu retrieval failed", "session_id", id, "err", err)
			menuCtx = ""
		}
	}

	stateJSON, err := json.Marshal(doc)
	if err != nil {
		return TurnResult{}, fmt.Errorf("stream: encode order state: %w", err)
	}

	genStart := o.now()
	raw, err := o.gen.Generate(ctx, generator.Request{
		Query:       query,
		History:     historyMessages(history),
		MenuContext: menuCtx,
		OrderState:  string(stateJSON),
	})
	o.metrics.GenerateDuration.Record(ctx, o.now().Sub(genStart).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, "generator", "generate")
		return TurnResult{}, fmt.Errorf("stream: generate reply: %w", err)
	}

	reply := order.ParseReply(raw)
	before := doc.Clone()
	if err := o.engine.Apply(ctx, &doc, reply); err != nil {
		return TurnResult{}, fmt.Errorf("stream: apply directives: %w", err)
	}
	for _, d := range reply.Directives {
		o.metrics.RecordDirective(ctx, directiveKind(d))
	}

	if err := o.sessions.SaveOrderState(ctx, id, doc); err != nil {
		return TurnResult{}, fmt.Errorf("stream: save order state: %w", err)
	}
	if err := o.sessions.AppendConversation(ctx, id,
		session.ConversationEntry{Type: session.EntryUser, Response: query, Time: start},
		session.ConversationEntry{Type: session.EntryLLM, Response: reply.CustomerText, Time: o.now()},
	); err != nil {
		// The order already persisted; losing one log entry is not
		// worth failing the turn over.
		o.log.Warn("append conversation failed", "session_id", id, "err", err)
	}

	intent := replyIntent(reply)
	_, terminal := o.terminal[intent]
	return TurnResult{
		Reply:    reply.CustomerText,
		Intent:   intent,
		Changes:  order.Diff(before, doc),
		Document: doc,
		Terminal: terminal,
	}, nil
}

// runTurn executes one voice turn for a committed transcript, pushing
// the transcript, reply, and diff to the client as it goes. It returns
// terminal=true when the turn's intent ends the session, and a non-nil
// error only when the connection itself is unusable. Provider and
// persistence failures cost the turn, not the stream.
func (o *Orchestrator) runTurn(ctx context.Context, conn Conn, id string, t asr.Transcript, log *slog.Logger) (terminal bool, err error) {
	if t.Duration > 0 {
		o.metrics.ASRDuration.Record(ctx, t.Duration.Seconds())
	}

	if err := conn.WriteEvent(ctx, TranscriptEvent(t.Text, o.now())); err != nil {
		return false, fmt.Errorf("stream: write transcript event: %w", err)
	}

	res, err := o.TextTurn(ctx, id, t.Text)
	if err != nil {
		log.Error("turn failed", "err", err)
		if werr := conn.WriteEvent(ctx, ErrorEvent("這次沒有聽清楚，請再說一次")); werr != nil {
			return false, fmt.Errorf("stream: write error event: %w", werr)
		}
		return false, nil
	}

	if err := conn.WriteEvent(ctx, ReplyEvent(res.Reply, o.now())); err != nil {
		return false, fmt.Errorf("stream: write reply event: %w", err)
	}
	if err := conn.WriteEvent(ctx, OrderEvent(res.Changes)); err != nil {
		return false, fmt.Errorf("stream: write order event: %w", err)
	}
	if res.Terminal {
		if err := conn.WriteEvent(ctx, EndEvent()); err != nil {
			return false, fmt.Errorf("stream: write end event: %w", err)
		}
	}

	log.Info("turn complete", "transcript", t.Text, "total_price", res.Document.TotalPrice, "status", res.Document.Status)
	return res.Terminal, nil
}

// closeConn flushes the close event and shuts the connection. Safe to
// call with a dead connection; write failures only get logged.
func (o *Orchestrator) closeConn(conn Conn, reason CloseReason, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()
	if err := conn.WriteEvent(ctx, CloseEvent(msg)); err != nil {
		o.log.Debug("close event not delivered", "reason", reason, "err", err)
	}
	if err := conn.Close(reason, msg); err != nil {
		o.log.Debug("connection close failed", "reason", reason, "err", err)
	}
}

// classify maps the Streaming outcome onto a close code and message.
func classify(runErr, ctxErr error) (CloseReason, string) {
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return CloseTimeout, "session time limit reached"
	case runErr == nil, errors.Is(runErr, errSessionEnded):
		return CloseNormal, "order complete"
	case errors.Is(runErr, errClientGone):
		return CloseNormal, "client disconnected"
	default:
		return CloseInternal, "internal error"
	}
}

// replyIntent returns the turn's effective intent label, empty when the
// reply carried none. Later intent directives override earlier ones.
func replyIntent(r order.Reply) string {
	intent := ""
	for _, d := range r.Directives {
		if in, ok := d.(order.IntentDirective); ok {
			intent = in.Intent
		}
	}
	return intent
}

// directiveKind labels a directive for the directive counter.
func directiveKind(d order.Directive) string {
	switch d.(type) {
	case order.IntentDirective:
		return "intent"
	case order.AddDirective:
		return "add"
	case order.RemoveDirective:
		return "remove"
	default:
		return "unknown"
	}
}

// historyMessages converts the persisted conversation log into
// generator messages, oldest first.
func historyMessages(entries []session.ConversationEntry) []generator.Message {
	msgs := make([]generator.Message, 0, len(entries))
	for _, e := range entries {
		role := generator.RoleUser
		if e.Type == session.EntryLLM {
			role = generator.RoleAssistant
		}
		msgs = append(msgs, generator.Message{Role: role, Content: e.Response})
	}
	return msgs
}
