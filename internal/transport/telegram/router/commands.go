package router

import (
	"context"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"coderelay/internal/relay"
	rtsup "coderelay/internal/runtime/supervisor"
	kit "coderelay/internal/transport"
	logx "coderelay/pkg/logx"
)

// Reply texts.
const (
	msgNotAllowed     = "You are not allowed."
	msgInvalidCode    = "Invalid code. Try again!"
	msgUnavailable    = "Storage is unavailable right now. Try again later."
	msgUnknownCommand = "Unknown command. Try /help"
	msgBusy           = "Busy, try again."
	msgNoCodes        = "No codes yet."
)

type Command struct {
	Name        string
	Description string
	Usage       string
	AdminOnly   bool // listed in /help for the admin only; the relay service enforces access
	Handle      HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Logger  logx.Logger
}

type Options struct {
	Workers        int
	QueueSize      int
	HandlerTimeout time.Duration
	// BotUsername filters "/cmd@otherbot" in groups. Empty accepts any mention.
	BotUsername string
	// Announcer enables /announce. Nil leaves the command out.
	Announcer Announcer
}

// Announcer fires a configured announcement by name.
type Announcer interface {
	Trigger(ctx context.Context, name string) (relay.Report, bool)
}

// Router turns chat updates into relay.Service calls and replies.
type Router struct {
	log     logx.Logger
	adapter kit.Adapter
	svc     *relay.Service
	opts    Options

	cmds  map[string]Command
	order []Command

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func New(svc *relay.Service, adapter kit.Adapter, opts Options, log logx.Logger) *Router {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.HandlerTimeout <= 0 {
		opts.HandlerTimeout = 30 * time.Second
	}
	opts.BotUsername = strings.ToLower(strings.TrimPrefix(opts.BotUsername, "@"))
	r := &Router{
		log:     log,
		adapter: adapter,
		svc:     svc,
		opts:    opts,
		cmds:    map[string]Command{},
		jobs:    make(chan func(), opts.QueueSize),
	}
	for _, c := range r.commands() {
		r.cmds[c.Name] = c
		r.order = append(r.order, c)
	}
	return r
}

func (r *Router) commands() []Command {
	cmds := []Command{
		{Name: "start", Description: "register and show your Telegram ID", Usage: "/start", Handle: r.handleStart},
		{Name: "help", Description: "show available commands", Usage: "/help", Handle: r.handleHelp},
		{Name: "add", Description: "set the message for a code", Usage: "/add <code> <message>", AdminOnly: true, Handle: r.handleAdd},
		{Name: "delete", Description: "remove a code", Usage: "/delete <code>", AdminOnly: true, Handle: r.handleDelete},
		{Name: "list", Description: "list all codes", Usage: "/list", AdminOnly: true, Handle: r.handleList},
		// Broadcasts can take a while on big subscriber lists; no handler timeout.
		// The same holds for /announce.
		{Name: "broadcast", Description: "send a message to every subscriber", Usage: "/broadcast <message>", AdminOnly: true, Handle: r.handleBroadcast},
	}
	if r.opts.Announcer != nil {
		cmds = append(cmds, Command{Name: "announce", Description: "send a configured announcement now", Usage: "/announce <name>", AdminOnly: true, Handle: r.handleAnnounce})
	}
	return cmds
}

// MenuCommands is the public part of the command list, for the chat menu.
func (r *Router) MenuCommands() []kit.BotCommand {
	out := make([]kit.BotCommand, 0, len(r.order))
	for _, c := range r.order {
		if c.AdminOnly {
			continue
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	return out
}

// Supervisor returns the dispatcher's supervisor (nil if not running).
func (r *Router) Supervisor() *rtsup.Supervisor {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if !r.running {
		return nil
	}
	return r.sup
}

func (r *Router) setSupervisor(sup *rtsup.Supervisor, running bool) {
	r.runMu.Lock()
	r.sup = sup
	r.running = running
	r.runMu.Unlock()
}

// tryEnqueue is panic-safe against the jobs channel being closed.
func (r *Router) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			ok = false
		}
	}()
	select {
	case r.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop reads updates until ctx is done or updates is closed and runs
// them on a bounded worker pool. It may be called once per Router.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.setSupervisor(sup, true)
	r.log.Info("dispatcher started", logx.Int("workers", r.opts.Workers), logx.Int("job_queue_cap", cap(r.jobs)))

	if up, ok := r.adapter.(kit.CommandMenuUpdater); ok {
		sup.Go("menu.update", func(c context.Context) error {
			cctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, r.MenuCommands()); err != nil {
				r.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	for i := 0; i < r.opts.Workers; i++ {
		idx := i
		sup.GoRestart("worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-r.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if rec := recover(); rec != nil {
								r.log.Error("panic in job", logx.Int("worker", idx), logx.Any("panic", rec), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		r.setSupervisor(sup, false)
		close(r.jobs)
		// Let in-flight jobs finish briefly; broadcasts ignore cancellation anyway.
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		sup.Cancel()
		r.setSupervisor(nil, false)
		r.log.Info("dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			job := r.prepare(ctx, up)
			if job == nil {
				continue
			}
			if !r.tryEnqueue(job) {
				r.log.Warn("job queue full, update dropped", logx.String("kind", string(up.Kind)))
				if up.Message != nil {
					r.reply(ctx, kit.ChatTarget{ChatID: up.Message.ChatID, ThreadID: up.Message.ThreadID}, msgBusy)
				}
			}
		}
	}
}

// Handle processes one update synchronously.
func (r *Router) Handle(ctx context.Context, up kit.Update) {
	if job := r.prepare(ctx, up); job != nil {
		job()
	}
}

// prepare returns the job for up, or nil when up is ignored.
func (r *Router) prepare(ctx context.Context, up kit.Update) func() {
	var (
		req *Request
		h   HandlerFunc
		tmo = r.opts.HandlerTimeout
	)
	switch up.Kind {
	case kit.UpdateMessage:
		msg := up.Message
		if msg == nil || msg.FromID == 0 {
			return nil
		}
		req = r.newRequest(up, kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}, msg.FromID)
		pc, isCmd := parseCommand(msg.Text)
		switch {
		case !isCmd:
			if strings.HasPrefix(strings.TrimSpace(msg.Text), "/") {
				// malformed command; never treat it as a code
				h = func(ctx context.Context, req *Request) error { return r.reply(ctx, req.Chat, msgUnknownCommand) }
				break
			}
			h = r.handleLookup
		case pc.Bot != "" && r.opts.BotUsername != "" && pc.Bot != r.opts.BotUsername:
			return nil
		default:
			req.Command = pc.Name
			req.Args = pc.Args
			req.Logger = req.Logger.With(logx.String("cmd", pc.Name))
			cmd, ok := r.cmds[pc.Name]
			if !ok {
				h = func(ctx context.Context, req *Request) error { return r.reply(ctx, req.Chat, msgUnknownCommand) }
				break
			}
			h = cmd.Handle
			if cmd.Name == "broadcast" || cmd.Name == "announce" {
				tmo = 0
			}
		}
		if msg.IsPrivate {
			h = r.withTouch(h)
		}
	case kit.UpdateInlineQuery:
		if up.Query == nil {
			return nil
		}
		req = r.newRequest(up, kit.ChatTarget{}, up.Query.FromID)
		h = r.handleInline
	default:
		return nil
	}

	final := Chain(h, MWPanicRecover(), MWRequestLog(), MWTimeout(tmo))
	return func() { _ = final(ctx, req) }
}

func (r *Router) newRequest(up kit.Update, chat kit.ChatTarget, from int64) *Request {
	rid := uuid.NewString()[:8]
	return &Request{
		Update: up,
		Chat:   chat,
		FromID: from,
		ReqID:  rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", chat.ChatID),
			logx.Int64("from_id", from),
		),
	}
}

// withTouch registers private-chat senders as broadcast recipients before
// running next. Registration is idempotent and cheap for known ids.
func (r *Router) withTouch(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, req *Request) error {
		if req.Command != "start" {
			r.svc.Touch(ctx, req.FromID)
		}
		return next(ctx, req)
	}
}

func (r *Router) reply(ctx context.Context, to kit.ChatTarget, text string) error {
	if _, err := r.adapter.SendText(ctx, to, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		return fmt.Errorf("send reply: %w", err)
	}
	return nil
}

func (r *Router) handleStart(ctx context.Context, req *Request) error {
	return r.reply(ctx, req.Chat, r.svc.OnFirstContact(ctx, req.FromID))
}

func (r *Router) handleLookup(ctx context.Context, req *Request) error {
	res := r.svc.OnLookup(req.Update.Message.Text)
	if !res.Found {
		return r.reply(ctx, req.Chat, msgInvalidCode)
	}
	return r.reply(ctx, req.Chat, res.Text)
}

func (r *Router) handleAdd(ctx context.Context, req *Request) error {
	var code, text string
	if len(req.Args) > 0 {
		code = req.Args[0]
	}
	if len(req.Args) > 1 {
		text = joinArgs(req.Args[1:])
	}
	res := r.svc.OnAdminSet(ctx, req.FromID, code, text)
	switch res.Outcome {
	case relay.OutcomeOK:
		return r.reply(ctx, req.Chat, "Added message for code "+res.Code)
	case relay.OutcomeBadRequest:
		return r.reply(ctx, req.Chat, "Usage: /add <code> <message>")
	default:
		return r.replyFailure(ctx, req, res.Outcome)
	}
}

func (r *Router) handleDelete(ctx context.Context, req *Request) error {
	var code string
	if len(req.Args) > 0 {
		code = req.Args[0]
	}
	res := r.svc.OnAdminDelete(ctx, req.FromID, code)
	switch res.Outcome {
	case relay.OutcomeDeleted:
		return r.reply(ctx, req.Chat, "Deleted message for code "+res.Code)
	case relay.OutcomeNotFound:
		return r.reply(ctx, req.Chat, "No message for code "+res.Code)
	case relay.OutcomeBadRequest:
		return r.reply(ctx, req.Chat, "Usage: /delete <code>")
	default:
		return r.replyFailure(ctx, req, res.Outcome)
	}
}

func (r *Router) handleList(ctx context.Context, req *Request) error {
	res := r.svc.OnAdminList(ctx, req.FromID)
	if res.Outcome != relay.OutcomeOK {
		return r.replyFailure(ctx, req, res.Outcome)
	}
	if len(res.Codes) == 0 {
		return r.reply(ctx, req.Chat, msgNoCodes)
	}
	return r.reply(ctx, req.Chat, fmt.Sprintf("Codes (%d):\n%s", len(res.Codes), strings.Join(res.Codes, "\n")))
}

func (r *Router) handleBroadcast(ctx context.Context, req *Request) error {
	res := r.svc.OnAdminBroadcast(ctx, req.FromID, joinArgs(req.Args))
	switch res.Outcome {
	case relay.OutcomeOK:
		return r.reply(ctx, req.Chat, fmt.Sprintf("Broadcast sent to %d users.", res.Delivered()))
	case relay.OutcomeBadRequest:
		return r.reply(ctx, req.Chat, "Usage: /broadcast <message>")
	default:
		return r.replyFailure(ctx, req, res.Outcome)
	}
}

func (r *Router) replyFailure(ctx context.Context, req *Request, o relay.Outcome) error {
	switch o {
	case relay.OutcomeForbidden:
		return r.reply(ctx, req.Chat, msgNotAllowed)
	case relay.OutcomeUnavailable:
		return r.reply(ctx, req.Chat, msgUnavailable)
	default:
		req.Logger.Warn("unexpected outcome", logx.String("outcome", string(o)))
		return nil
	}
}

func (r *Router) handleAnnounce(ctx context.Context, req *Request) error {
	if !r.svc.AuthorizeAdmin(ctx, req.FromID, "announce") {
		return r.replyFailure(ctx, req, relay.OutcomeForbidden)
	}
	name := joinArgs(req.Args)
	if name == "" {
		return r.reply(ctx, req.Chat, "Usage: /announce <name>")
	}
	rep, ok := r.opts.Announcer.Trigger(ctx, name)
	if !ok {
		return r.reply(ctx, req.Chat, "No announcement named "+name)
	}
	return r.reply(ctx, req.Chat, fmt.Sprintf("Announcement %s sent to %d users.", name, rep.Delivered))
}

func (r *Router) handleInline(ctx context.Context, req *Request) error {
	q := req.Update.Query
	res, ok := r.svc.OnInlineSearch(q.Text)
	var arts []kit.InlineArticle
	if ok {
		arts = []kit.InlineArticle{{ID: res.Code, Title: res.Title, Description: res.Preview, Text: res.FullText}}
	}
	if err := r.adapter.AnswerInline(ctx, q.ID, arts); err != nil {
		return fmt.Errorf("answer inline: %w", err)
	}
	return nil
}
