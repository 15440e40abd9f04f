// README: Per-turn dialogue state machine tying extraction, validation, tools and the store together.
package dialogue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"time"

	"go.uber.org/zap"

	"wayfarer/internal/modules/extract"
	"wayfarer/internal/modules/gateway"
	"wayfarer/internal/modules/guard"
	"wayfarer/internal/modules/location"
	"wayfarer/internal/modules/params"
	"wayfarer/internal/modules/session"
	"wayfarer/internal/modules/tools"
)

// persistGrace is how long a turn may still spend saving state after its
// own deadline passed.
const persistGrace = 2 * time.Second

type Deps struct {
	Store     *session.Store
	Extractor *extract.Extractor
	Tools     *tools.Registry
	// Directory resolves places during validation; nil accepts IATA codes only.
	Directory *location.Directory
	// Guard is optional; without it input is only sanitized.
	Guard  *guard.Guard
	Schema params.Schema
	Logger *zap.Logger
}

type Orchestrator struct {
	cfg       Config
	store     *session.Store
	extractor *extract.Extractor
	tools     *tools.Registry
	directory *location.Directory
	guard     *guard.Guard
	schema    params.Schema
	logger    *zap.Logger
	now       func() time.Time

	// sleep waits between turn retries; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Schema == nil {
		deps.Schema = params.DefaultSchema()
	}
	if deps.Tools != nil {
		deps.Schema = deps.Tools.Require(deps.Schema)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		store:     deps.Store,
		extractor: deps.Extractor,
		tools:     deps.Tools,
		directory: deps.Directory,
		guard:     deps.Guard,
		schema:    deps.Schema,
		logger:    deps.Logger,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// SetClock replaces the time source. Tests only.
func (o *Orchestrator) SetClock(now func() time.Time) { o.now = now }

// Handle runs one user turn. The only error it returns is a guard rejection
// (errors.Is guard.ErrInputRejected), in which case session state is
// untouched. Store failures, provider failures and deadline overruns come
// back as a degraded reply.
func (o *Orchestrator) Handle(ctx context.Context, sessionID, utterance string) (*Reply, error) {
	text := guard.Sanitize(utterance)
	if o.guard != nil {
		var err error
		if text, err = o.guard.Admit(sessionID, utterance); err != nil {
			return nil, err
		}
	} else if !guard.ValidSessionID(sessionID) {
		return nil, &guard.RejectedError{Reason: guard.ReasonInvalidSession}
	} else if text == "" {
		return nil, &guard.RejectedError{Reason: guard.ReasonEmpty}
	}

	ctx, cancel := context.WithTimeout(ctx, o.cfg.TurnTimeout)
	defer cancel()

	var last *session.SessionState
	for attempt := 0; attempt <= o.cfg.MaxTurnRetries; attempt++ {
		reply, loaded, err := o.turn(ctx, sessionID, text)
		if loaded != nil {
			last = loaded
		}
		if err == nil {
			return reply, nil
		}
		if errors.Is(err, session.ErrConcurrentModification) {
			o.logger.Debug("turn lost session race, retrying",
				zap.String("session_id", sessionID),
				zap.Int("attempt", attempt+1),
			)
			if attempt == o.cfg.MaxTurnRetries {
				break
			}
			if err := o.sleep(ctx, o.retryWait(attempt)); err != nil {
				o.logger.Warn("turn deadline passed while retrying", zap.String("session_id", sessionID), zap.Error(err))
				return o.fallbackReply(sessionID, last, unavailableText), nil
			}
			continue
		}
		o.logger.Warn("turn failed", zap.String("session_id", sessionID), zap.Error(err))
		return o.fallbackReply(sessionID, last, unavailableText), nil
	}
	o.logger.Warn("turn retries exhausted", zap.String("session_id", sessionID), zap.Int("retries", o.cfg.MaxTurnRetries))
	return o.fallbackReply(sessionID, last, tryAgainText), nil
}

// retryWait grows linearly with attempt and adds up to one base of jitter
// so two racing turns do not retry in lockstep.
func (o *Orchestrator) retryWait(attempt int) time.Duration {
	base := o.cfg.RetryBackoff
	return base*time.Duration(attempt+1) + rand.N(base)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// turn computes the next state from a single load and persists it with one
// AtomicUpdate. The mutator refuses to write if the session moved since the
// load, so a concurrent turn never gets its parameters overwritten.
func (o *Orchestrator) turn(ctx context.Context, id, text string) (*Reply, *session.SessionState, error) {
	now := o.now()
	loaded, err := o.store.Load(ctx, id)
	if err != nil {
		return nil, nil, fmt.Errorf("load session: %w", err)
	}
	st, err := loaded.Clone()
	if err != nil {
		return nil, loaded, fmt.Errorf("clone session: %w", err)
	}

	st.AppendTurn(session.Turn{Role: session.RoleUser, Text: text, At: now}, o.store.HistoryLimit())
	reply := o.decide(ctx, st, text, now)
	st.AppendTurn(session.Turn{Role: session.RoleAssistant, Text: reply.Text, At: o.now()}, o.store.HistoryLimit())

	persistCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), persistGrace)
		defer cancel()
	}
	saved, err := o.store.AtomicUpdate(persistCtx, id, func(cur *session.SessionState) error {
		if cur.Version != loaded.Version {
			return session.ErrConcurrentModification
		}
		*cur = *st
		return nil
	})
	if err != nil {
		return nil, loaded, err
	}

	reply.SessionID = id
	reply.Intent = saved.Intent
	reply.Parameters = saved.Parameters
	reply.Missing = saved.MissingFields(o.schema)
	reply.Version = saved.Version
	o.logger.Info("turn complete",
		zap.String("session_id", id),
		zap.String("intent", string(saved.Intent)),
		zap.String("phase", string(reply.Phase)),
		zap.Int64("version", saved.Version),
		zap.Bool("degraded", reply.Degraded),
	)
	return reply, loaded, nil
}

// decide mutates st for one utterance and returns the reply text and phase.
func (o *Orchestrator) decide(ctx context.Context, st *session.SessionState, text string, now time.Time) *Reply {
	r := &Reply{}
	pending := st.Pending
	st.Pending = nil

	confirmed := pending != nil && pending.Kind == session.QuestionConfirm && affirmative(text)
	var out extract.Outcome
	if !confirmed {
		prior := extract.Prior{Intent: st.Intent, Parameters: st.Parameters}
		if pending != nil && pending.Kind == session.QuestionAskField && pending.Intent == st.Intent {
			prior.PendingField = pending.Field
		}
		out = o.extractor.Extract(ctx, text, prior, now)
		r.Degraded = out.Degraded
		st.Intent = out.Intent
		st.Parameters = out.Parameters

		if pending != nil && pending.Kind == session.QuestionConfirm && negative(text) && len(out.Updated) == 0 {
			r.Text, r.Phase = changeWhatText, PhaseCollectingParameters
			return r
		}
	}

	if !st.Intent.Known() {
		st.Pending = &session.PendingQuestion{Kind: session.QuestionClarifyIntent, AskedAt: now}
		r.Text, r.Phase = clarifyIntentText, PhaseAwaitingIntent
		return r
	}
	intent := st.Intent

	lookup := o.resolvePlaces(ctx, intent, st.Parameters, out.Updated, &r.Degraded)
	rules := params.Rules{
		Today:         o.extractor.Today(now),
		Locations:     lookup,
		MaxPassengers: o.cfg.MaxPassengers,
		MaxGuests:     o.cfg.MaxGuests,
	}
	if err := params.Validate(intent, st.Parameters, rules); err != nil {
		var verr *params.ValidationError
		if errors.As(err, &verr) {
			bad := st.Parameters.Text(intent, verr.Field)
			st.Parameters.Clear(intent, verr.Field)
			st.Pending = &session.PendingQuestion{Kind: session.QuestionAskField, Intent: intent, Field: verr.Field, AskedAt: now}
			r.Text, r.Phase = invalidQuestion(intent, verr, bad, st.Parameters, o.cfg), PhaseCollectingParameters
			return r
		}
	}

	if missing := o.schema.Missing(intent, st.Parameters); len(missing) > 0 {
		st.Pending = &session.PendingQuestion{Kind: session.QuestionAskField, Intent: intent, Field: missing[0], AskedAt: now}
		r.Text = question(intent, missing[0])
		if len(out.Updated) > 0 {
			r.Text = fmt.Sprintf("Got it, %s. %s", describe(intent, st.Parameters), r.Text)
		}
		r.Phase = PhaseCollectingParameters
		return r
	}

	if o.cfg.ConfirmInferred && !confirmed && o.inferredRequired(intent, out.Inferred) {
		st.Pending = &session.PendingQuestion{Kind: session.QuestionConfirm, Intent: intent, AskedAt: now}
		r.Text, r.Phase = confirmQuestion(intent, st.Parameters), PhaseReadyToInvoke
		return r
	}

	o.invoke(ctx, st, now, r)
	return r
}

func (o *Orchestrator) inferredRequired(intent params.Intent, inferred []params.Field) bool {
	for _, f := range o.schema.Required(intent) {
		if slices.Contains(inferred, f) {
			return true
		}
	}
	return false
}

// invoke runs the intent's tool, or reuses the last result when the
// parameters have not changed and it is still fresh.
func (o *Orchestrator) invoke(ctx context.Context, st *session.SessionState, now time.Time, r *Reply) {
	r.Phase = PhaseResponding
	fp := st.Parameters.Fingerprint(st.Intent)
	if last := st.LastToolResult; last != nil && last.Intent == st.Intent && last.Fingerprint == fp && now.Sub(last.ProducedAt) < o.cfg.ResultTTL {
		o.logger.Debug("reusing tool result", zap.String("session_id", st.ID), zap.String("tool", last.Tool))
		r.Text = last.Summary
		r.Result = outputFrom(last, true)
		return
	}

	tool, ok := o.tools.For(st.Intent)
	if !ok {
		o.logger.Error("no tool registered", zap.String("intent", string(st.Intent)))
		r.Text, r.Degraded = degradedText, true
		return
	}

	o.logger.Debug("invoking tool",
		zap.String("session_id", st.ID),
		zap.String("tool", tool.Name()),
		zap.String("phase", string(PhaseAwaitingToolResult)),
	)
	res, err := tool.Execute(ctx, st.Parameters)
	if errors.Is(err, tools.ErrMissingParameters) {
		o.logger.Error("tool refused parameters the schema accepted", zap.String("tool", tool.Name()), zap.Error(err))
		r.Text, r.Phase = tryAgainText, PhaseCollectingParameters
		return
	}
	if err != nil {
		r.Degraded = true
		if errors.Is(err, gateway.ErrRateLimited) {
			r.Text = retryLaterText
		} else {
			r.Text = degradedText
		}
		o.logger.Warn("tool failed", zap.String("session_id", st.ID), zap.String("tool", tool.Name()), zap.Error(err))
		return
	}

	payload, err := json.Marshal(res.Data)
	if err != nil {
		o.logger.Error("encode tool result", zap.String("tool", tool.Name()), zap.Error(err))
		payload = nil
	}
	st.LastToolResult = &session.ToolResult{
		Intent:      st.Intent,
		Tool:        res.Tool,
		Fingerprint: fp,
		Summary:     res.Summary,
		Payload:     payload,
		Provider:    res.Provider,
		ProducedAt:  now,
	}
	r.Text = res.Summary
	r.Result = outputFrom(st.LastToolResult, res.FromCache)
}

// resolvePlaces teaches the directory the place names written this turn.
// A geocoder outage accepts the name as typed and marks the turn degraded.
func (o *Orchestrator) resolvePlaces(ctx context.Context, intent params.Intent, set params.ParameterSet, updated []params.Field, degraded *bool) params.LocationLookup {
	l := turnLocations{dir: o.directory, accepted: map[string]bool{}}
	if o.directory == nil {
		return l
	}
	for _, f := range updated {
		if f.Kind() != params.KindPlace {
			continue
		}
		name := set.Text(intent, f)
		if name == "" || o.directory.Known(name) {
			continue
		}
		if _, _, err := o.directory.Resolve(ctx, name); err != nil {
			o.logger.Warn("geocoding failed, accepting place as typed", zap.String("place", name), zap.Error(err))
			l.accepted[name] = true
			*degraded = true
		}
	}
	return l
}

type turnLocations struct {
	dir      *location.Directory
	accepted map[string]bool
}

func (l turnLocations) Known(name string) bool {
	if l.accepted[name] {
		return true
	}
	return l.dir != nil && l.dir.Known(name)
}

func (o *Orchestrator) fallbackReply(id string, st *session.SessionState, text string) *Reply {
	r := &Reply{SessionID: id, Text: text, Phase: PhaseResponding, Intent: params.IntentUnclear, Degraded: true}
	if st != nil {
		r.Intent = st.Intent
		r.Parameters = st.Parameters
		r.Missing = st.MissingFields(o.schema)
		r.Version = st.Version
	}
	return r
}

// Session returns the current view of a session without changing it.
func (o *Orchestrator) Session(ctx context.Context, id string) (*Snapshot, error) {
	if !guard.ValidSessionID(id) {
		return nil, &guard.RejectedError{Reason: guard.ReasonInvalidSession}
	}
	st, err := o.store.Load(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	return &Snapshot{
		SessionID:      st.ID,
		Intent:         st.Intent,
		Phase:          phaseOf(st, o.schema),
		Parameters:     st.Parameters,
		Missing:        st.MissingFields(o.schema),
		Pending:        st.Pending,
		History:        st.History,
		LastToolResult: st.LastToolResult,
		Version:        st.Version,
		UpdatedAt:      st.UpdatedAt,
	}, nil
}

// Reset forgets a session.
func (o *Orchestrator) Reset(ctx context.Context, id string) error {
	if !guard.ValidSessionID(id) {
		return &guard.RejectedError{Reason: guard.ReasonInvalidSession}
	}
	return o.store.Delete(ctx, id)
}

func phaseOf(st *session.SessionState, schema params.Schema) Phase {
	switch {
	case !st.Intent.Known():
		return PhaseAwaitingIntent
	case len(st.MissingFields(schema)) > 0:
		return PhaseCollectingParameters
	case st.Pending != nil && st.Pending.Kind == session.QuestionConfirm:
		return PhaseReadyToInvoke
	case st.LastToolResult != nil && st.LastToolResult.Fingerprint == st.Parameters.Fingerprint(st.Intent):
		return PhaseResponding
	}
	return PhaseReadyToInvoke
}
