package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coderelay/internal/eventbus"
	"coderelay/internal/storage"
	logx "coderelay/pkg/logx"
)

// Outcome discriminates the result of a boundary operation.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeDeleted     Outcome = "deleted"
	OutcomeNotFound    Outcome = "not_found"
	OutcomeForbidden   Outcome = "forbidden"
	OutcomeBadRequest  Outcome = "bad_request"
	OutcomeUnavailable Outcome = "unavailable"
)

type Result struct {
	Outcome Outcome
	Code    string
	Err     error
}

type LookupResult struct {
	Text  string
	Found bool
}

type ListResult struct {
	Outcome Outcome
	Codes   []string
}

type BroadcastResult struct {
	Outcome Outcome
	Report  Report
}

func (r BroadcastResult) Delivered() int { return r.Report.Delivered }

const greetingFormat = "Hello! Send a code like 001, 002 etc.\nYour Telegram ID is: %d"

// Deps wires a Service. Store is used for the audit trail only.
type Deps struct {
	Registry    *Registry
	Subscribers *Subscribers
	Auth        AuthGate
	Broadcaster *Broadcaster
	Store       storage.Store
	Bus         eventbus.Bus
	Log         logx.Logger
	Metrics     *Metrics
}

// Service is what the chat router calls. Its methods never panic and report
// outcomes as values; only storage failures carry an error.
type Service struct {
	reg   *Registry
	subs  *Subscribers
	auth  AuthGate
	bc    *Broadcaster
	audit storage.Store
	bus   eventbus.Bus
	log   logx.Logger
	m     *Metrics
}

func NewService(d Deps) *Service {
	if d.Log.IsZero() {
		d.Log = logx.Nop()
	}
	if d.Bus == nil {
		d.Bus = eventbus.Nop()
	}
	return &Service{
		reg:   d.Registry,
		subs:  d.Subscribers,
		auth:  d.Auth,
		bc:    d.Broadcaster,
		audit: d.Store,
		bus:   d.Bus,
		log:   d.Log,
		m:     d.Metrics,
	}
}

func (s *Service) Registry() *Registry       { return s.reg }
func (s *Service) Subscribers() *Subscribers { return s.subs }
func (s *Service) Auth() AuthGate            { return s.auth }
func (s *Service) Broadcaster() *Broadcaster { return s.bc }

// Degraded reports whether a namespace could not be read at startup.
func (s *Service) Degraded() bool { return !s.reg.Loaded() || !s.subs.Loaded() }

// Recover retries loading any namespace that failed at startup.
func (s *Service) Recover(ctx context.Context) error {
	return errors.Join(s.reg.Reload(ctx), s.subs.Reload(ctx))
}

// OnFirstContact registers callerID and returns the greeting. A storage
// failure is logged; the caller still gets greeted.
func (s *Service) OnFirstContact(ctx context.Context, callerID int64) string {
	s.Touch(ctx, callerID)
	return fmt.Sprintf(greetingFormat, callerID)
}

// Touch registers callerID if it is new.
func (s *Service) Touch(ctx context.Context, callerID int64) {
	added, err := s.subs.RegisterIfNew(ctx, callerID)
	if err != nil {
		s.log.Warn("subscriber registration failed", logx.Int64("id", callerID), logx.Err(err))
		return
	}
	if added {
		s.log.Info("subscriber registered", logx.Int64("id", callerID), logx.Int("total", s.subs.Len()))
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeSubscriberRegistered, Data: callerID})
	}
}

func (s *Service) OnLookup(code string) LookupResult {
	code = strings.TrimSpace(code)
	if code == "" {
		s.m.lookup(false)
		return LookupResult{}
	}
	text, ok := s.reg.Get(code)
	s.m.lookup(ok)
	s.log.Trace("lookup", logx.String("code", code), logx.Bool("found", ok))
	return LookupResult{Text: text, Found: ok}
}

func (s *Service) OnAdminSet(ctx context.Context, callerID int64, code, text string) Result {
	start := time.Now()
	code = strings.TrimSpace(code)
	res := s.adminSet(ctx, callerID, code, text)
	s.finishAdmin(ctx, "code.set", callerID, code, res, start)
	if res.Outcome == OutcomeOK {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeCodeSet, Data: code})
	}
	return res
}

func (s *Service) adminSet(ctx context.Context, callerID int64, code, text string) Result {
	if !s.auth.Authorize(callerID) {
		return Result{Outcome: OutcomeForbidden, Code: code, Err: ErrForbidden}
	}
	if code == "" || strings.TrimSpace(text) == "" {
		return Result{Outcome: OutcomeBadRequest, Code: code, Err: ErrBadRequest}
	}
	if err := s.reg.Set(ctx, code, text); err != nil {
		return Result{Outcome: outcomeFor(err), Code: code, Err: err}
	}
	return Result{Outcome: OutcomeOK, Code: code}
}

func (s *Service) OnAdminDelete(ctx context.Context, callerID int64, code string) Result {
	start := time.Now()
	code = strings.TrimSpace(code)
	res := s.adminDelete(ctx, callerID, code)
	s.finishAdmin(ctx, "code.delete", callerID, code, res, start)
	if res.Outcome == OutcomeDeleted {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeCodeDeleted, Data: code})
	}
	return res
}

func (s *Service) adminDelete(ctx context.Context, callerID int64, code string) Result {
	if !s.auth.Authorize(callerID) {
		return Result{Outcome: OutcomeForbidden, Code: code, Err: ErrForbidden}
	}
	if code == "" {
		return Result{Outcome: OutcomeBadRequest, Err: ErrBadRequest}
	}
	found, err := s.reg.Delete(ctx, code)
	if err != nil {
		return Result{Outcome: outcomeFor(err), Code: code, Err: err}
	}
	if !found {
		return Result{Outcome: OutcomeNotFound, Code: code, Err: ErrNotFound}
	}
	return Result{Outcome: OutcomeDeleted, Code: code}
}

func (s *Service) OnAdminList(ctx context.Context, callerID int64) ListResult {
	if !s.auth.Authorize(callerID) {
		s.finishAdmin(ctx, "code.list", callerID, "", Result{Outcome: OutcomeForbidden, Err: ErrForbidden}, time.Now())
		return ListResult{Outcome: OutcomeForbidden}
	}
	s.m.adminOp("code.list", OutcomeOK)
	return ListResult{Outcome: OutcomeOK, Codes: s.reg.List()}
}

// AuthorizeAdmin gates admin actions that live outside Service. Denials are
// logged and audited like the built-in admin operations.
func (s *Service) AuthorizeAdmin(ctx context.Context, callerID int64, action string) bool {
	if s.auth.Authorize(callerID) {
		return true
	}
	s.finishAdmin(ctx, action, callerID, "", Result{Outcome: OutcomeForbidden, Err: ErrForbidden}, time.Now())
	return false
}

// OnAdminBroadcast sends text to every subscriber and reports how many got it.
func (s *Service) OnAdminBroadcast(ctx context.Context, callerID int64, text string) BroadcastResult {
	if !s.auth.Authorize(callerID) {
		s.finishAdmin(ctx, "broadcast", callerID, "", Result{Outcome: OutcomeForbidden, Err: ErrForbidden}, time.Now())
		return BroadcastResult{Outcome: OutcomeForbidden}
	}
	if strings.TrimSpace(text) == "" {
		s.m.adminOp("broadcast", OutcomeBadRequest)
		return BroadcastResult{Outcome: OutcomeBadRequest}
	}
	rep := s.Broadcast(ctx, "admin", text)
	s.m.adminOp("broadcast", OutcomeOK)
	s.writeAudit(ctx, storage.AuditEntry{
		At:      time.Now(),
		ID:      rep.ID,
		ActorID: callerID,
		Action:  "broadcast",
		OK:      rep.Delivered,
		Fail:    rep.Failed,
		TookMS:  rep.Took.Milliseconds(),
	})
	return BroadcastResult{Outcome: OutcomeOK, Report: rep}
}

// Broadcast fans text out to all subscribers without an authorization check.
// It is used by the admin path and by scheduled announcements.
func (s *Service) Broadcast(ctx context.Context, source, text string) Report {
	if err := s.subs.Reload(ctx); err != nil {
		s.log.Warn("broadcast with unread subscriber list", logx.String("source", source), logx.Err(err))
	}
	rep := s.bc.Send(ctx, text, s.subs.Enumerate())
	s.bus.Publish(eventbus.Event{Type: eventbus.TypeBroadcastDone, Data: BroadcastDone{Source: source, Report: rep}})
	return rep
}

// BroadcastDone is the payload of eventbus.TypeBroadcastDone.
type BroadcastDone struct {
	Source string
	Report Report
}

func (s *Service) finishAdmin(ctx context.Context, action string, callerID int64, code string, res Result, start time.Time) {
	s.m.adminOp(action, res.Outcome)
	fields := []logx.Field{
		logx.String("action", action),
		logx.Int64("caller", callerID),
		logx.String("code", code),
		logx.String("outcome", string(res.Outcome)),
	}
	switch res.Outcome {
	case OutcomeForbidden:
		s.log.Warn("admin op denied", fields...)
	case OutcomeUnavailable:
		s.log.Error("admin op failed", append(fields, logx.Err(res.Err))...)
	case OutcomeBadRequest:
		s.log.Debug("admin op rejected", fields...)
		return
	default:
		s.log.Info("admin op", fields...)
	}

	e := storage.AuditEntry{
		At:      time.Now(),
		ActorID: callerID,
		Action:  action,
		Target:  code,
		TookMS:  time.Since(start).Milliseconds(),
	}
	switch res.Outcome {
	case OutcomeOK, OutcomeDeleted:
		e.OK = 1
	case OutcomeNotFound:
		// Nothing to delete is not a failure.
	default:
		e.Fail = 1
		if res.Err != nil {
			e.Error = res.Err.Error()
		}
	}
	s.writeAudit(ctx, e)
}

// writeAudit is best effort; a failed append never changes an outcome.
func (s *Service) writeAudit(ctx context.Context, e storage.AuditEntry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.AppendAudit(context.WithoutCancel(ctx), e); err != nil {
		s.log.Warn("audit append failed", logx.String("action", e.Action), logx.Err(err))
	}
}

func outcomeFor(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrBadRequest):
		return OutcomeBadRequest
	case errors.Is(err, ErrForbidden):
		return OutcomeForbidden
	case errors.Is(err, ErrNotFound):
		return OutcomeNotFound
	default:
		return OutcomeUnavailable
	}
}
