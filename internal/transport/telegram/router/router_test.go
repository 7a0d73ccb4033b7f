package router

import (
	"context"
	"reflect"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"coderelay/internal/announce"
	"coderelay/internal/relay"
	"coderelay/internal/storage"
	kit "coderelay/internal/transport"
	"coderelay/internal/transport/mocks"
	logx "coderelay/pkg/logx"
)

const testAdmin int64 = 1001

type fixture struct {
	ctx       context.Context
	ad        *mocks.MockAdapter
	store     *storage.Memory
	svc       *relay.Service
	r         *Router
	delivered atomic.Int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctrl := gomock.NewController(t)
	f := &fixture{ctx: context.Background(), ad: mocks.NewMockAdapter(ctrl), store: storage.NewMemory()}
	deliver := relay.DelivererFunc(func(ctx context.Context, id int64, msg string) error {
		f.delivered.Add(1)
		return nil
	})
	f.svc = relay.NewService(relay.Deps{
		Registry:    relay.NewRegistry(f.ctx, f.store, logx.Nop(), nil),
		Subscribers: relay.NewSubscribers(f.ctx, f.store, logx.Nop(), nil),
		Auth:        relay.NewAuthGate(testAdmin),
		Broadcaster: relay.NewBroadcaster(deliver, relay.BroadcastOptions{}, logx.Nop(), nil),
		Store:       f.store,
	})
	f.r = New(f.svc, f.ad, Options{BotUsername: "relaybot"}, logx.Nop())
	return f
}

func msg(from int64, text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: from, FromID: from, Text: text, IsPrivate: true}}
}

func (f *fixture) expectReply(chat int64, text string) *gomock.Call {
	return f.ad.EXPECT().
		SendText(gomock.Any(), kit.ChatTarget{ChatID: chat}, text, gomock.Any()).
		Return(kit.MessageRef{ChatID: chat}, nil)
}

func TestStartGreetsAndRegisters(t *testing.T) {
	f := newFixture(t)
	f.expectReply(42, "Hello! Send a code like 001, 002 etc.\nYour Telegram ID is: 42")

	f.r.Handle(f.ctx, msg(42, "/start"))

	if !f.svc.Subscribers().Known(42) {
		t.Fatalf("caller not registered")
	}
}

func TestAdminAddThenLookup(t *testing.T) {
	f := newFixture(t)
	f.expectReply(testAdmin, "Added message for code 001")
	f.expectReply(7, "hello world")

	f.r.Handle(f.ctx, msg(testAdmin, "/add 001 hello   world"))
	f.r.Handle(f.ctx, msg(7, " 001 "))

	if !f.svc.Subscribers().Known(7) {
		t.Fatalf("private sender should be registered on any message")
	}
}

func TestNonAdminIsRejected(t *testing.T) {
	f := newFixture(t)
	f.expectReply(7, msgNotAllowed).Times(3)

	f.r.Handle(f.ctx, msg(7, "/add 001 hi"))
	f.r.Handle(f.ctx, msg(7, "/delete 001"))
	f.r.Handle(f.ctx, msg(7, "/broadcast hi"))

	if f.svc.Registry().Len() != 0 {
		t.Fatalf("registry mutated by non-admin")
	}
	if f.delivered.Load() != 0 {
		t.Fatalf("non-admin broadcast delivered %d", f.delivered.Load())
	}
}

func TestUsageReplies(t *testing.T) {
	f := newFixture(t)
	f.expectReply(testAdmin, "Usage: /add <code> <message>")
	f.expectReply(testAdmin, "Usage: /delete <code>")
	f.expectReply(testAdmin, "Usage: /broadcast <message>")

	f.r.Handle(f.ctx, msg(testAdmin, "/add 001"))
	f.r.Handle(f.ctx, msg(testAdmin, "/delete"))
	f.r.Handle(f.ctx, msg(testAdmin, "/broadcast"))
}

func TestDeleteOutcomes(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.Registry().Set(f.ctx, "001", "x"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.expectReply(testAdmin, "Deleted message for code 001")
	f.expectReply(testAdmin, "No message for code 001")

	f.r.Handle(f.ctx, msg(testAdmin, "/delete 001"))
	f.r.Handle(f.ctx, msg(testAdmin, "/delete 001"))
}

func TestLookupMiss(t *testing.T) {
	f := newFixture(t)
	f.expectReply(7, msgInvalidCode)
	f.r.Handle(f.ctx, msg(7, "999"))
}

func TestListForAdmin(t *testing.T) {
	f := newFixture(t)
	f.expectReply(testAdmin, msgNoCodes)
	f.expectReply(testAdmin, "Codes (2):\n001\n002")

	f.r.Handle(f.ctx, msg(testAdmin, "/list"))
	_ = f.svc.Registry().Set(f.ctx, "002", "b")
	_ = f.svc.Registry().Set(f.ctx, "001", "a")
	f.r.Handle(f.ctx, msg(testAdmin, "/list"))
}

func TestBroadcastCountsRecipients(t *testing.T) {
	f := newFixture(t)
	f.svc.Touch(f.ctx, 11)
	f.svc.Touch(f.ctx, 12)
	// The admin's own private message registers them too.
	f.expectReply(testAdmin, "Broadcast sent to 3 users.")

	f.r.Handle(f.ctx, msg(testAdmin, "/broadcast  maintenance at 10"))

	if f.delivered.Load() != 3 {
		t.Fatalf("delivered = %d, want 3", f.delivered.Load())
	}
}

func TestStorageUnavailable(t *testing.T) {
	f := newFixture(t)
	f.store.SetSaveErr(storage.ErrDisabled)
	f.expectReply(testAdmin, msgUnavailable)

	// Group chat, so no registration write happens first.
	up := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: -100, FromID: testAdmin, Text: "/add 001 hi"}}
	f.ad.EXPECT().SendText(gomock.Any(), kit.ChatTarget{ChatID: -100}, msgUnavailable, gomock.Any()).Return(kit.MessageRef{}, nil)
	f.r.Handle(f.ctx, up)
	f.r.Handle(f.ctx, msg(testAdmin, "/add 001 hi"))
}

func TestUnknownAndForeignCommands(t *testing.T) {
	f := newFixture(t)
	f.expectReply(7, msgUnknownCommand)

	f.r.Handle(f.ctx, msg(7, "/nope"))
	// addressed to another bot: ignored, no reply
	f.r.Handle(f.ctx, msg(7, "/start@otherbot"))
}

func TestInlineSearch(t *testing.T) {
	f := newFixture(t)
	_ = f.svc.Registry().Set(f.ctx, "001", "hello world")

	f.ad.EXPECT().AnswerInline(gomock.Any(), "q1", []kit.InlineArticle{
		{ID: "001", Title: "Code 001", Description: "hello world", Text: "hello world"},
	}).Return(nil)
	f.ad.EXPECT().AnswerInline(gomock.Any(), "q2", gomock.Nil()).Return(nil)

	f.r.Handle(f.ctx, kit.Update{Kind: kit.UpdateInlineQuery, Query: &kit.InlineQuery{ID: "q1", FromID: 7, Text: "001"}})
	f.r.Handle(f.ctx, kit.Update{Kind: kit.UpdateInlineQuery, Query: &kit.InlineQuery{ID: "q2", FromID: 7, Text: "404"}})
}

func TestHelpHidesAdminCommands(t *testing.T) {
	f := newFixture(t)
	user := f.r.helpText(false)
	admin := f.r.helpText(true)
	if strings.Contains(user, "/add") || !strings.Contains(admin, "/add") || !strings.Contains(admin, "/broadcast") {
		t.Fatalf("help texts:\nuser=%q\nadmin=%q", user, admin)
	}
	menu := f.r.MenuCommands()
	names := make([]string, 0, len(menu))
	for _, c := range menu {
		names = append(names, c.Command)
	}
	if !reflect.DeepEqual(names, []string{"start", "help"}) {
		t.Fatalf("menu = %v", names)
	}
}

func TestDispatchLoop(t *testing.T) {
	f := newFixture(t)
	done := make(chan struct{})
	f.ad.EXPECT().
		SendText(gomock.Any(), kit.ChatTarget{ChatID: 7}, msgInvalidCode, gomock.Any()).
		DoAndReturn(func(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
			close(done)
			return kit.MessageRef{}, nil
		})

	ctx, cancel := context.WithCancel(f.ctx)
	updates := make(chan kit.Update, 1)
	exited := make(chan error, 1)
	go func() { exited <- f.r.DispatchLoop(ctx, updates) }()

	updates <- msg(7, "nope")
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("update not handled")
	}
	cancel()
	select {
	case err := <-exited:
		if err != nil {
			t.Fatalf("DispatchLoop err = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("DispatchLoop did not exit")
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		in   string
		ok   bool
		name string
		bot  string
		args []string
	}{
		{"/start", true, "start", "", []string{}},
		{"  /ADD 001  hi  there ", true, "add", "", []string{"001", "hi", "there"}},
		{"/list@RelayBot", true, "list", "relaybot", []string{}},
		{"001", false, "", "", nil},
		{"/", false, "", "", nil},
		{"/bad-name x", false, "", "", nil},
	}
	for _, tc := range cases {
		pc, ok := parseCommand(tc.in)
		if ok != tc.ok {
			t.Fatalf("%q: ok=%v want %v", tc.in, ok, tc.ok)
		}
		if !ok {
			continue
		}
		if pc.Name != tc.name || pc.Bot != tc.bot || !reflect.DeepEqual(pc.Args, tc.args) {
			t.Fatalf("%q: got %+v", tc.in, pc)
		}
	}
}

func TestAnnounceFiresConfiguredAnnouncement(t *testing.T) {
	f := newFixture(t)
	ann := announce.New(announce.Config{Items: []announce.Announcement{
		{Name: "promo", Schedule: "@daily", Text: "Try code 007"},
	}}, f.svc, logx.Nop())
	f.r = New(f.svc, f.ad, Options{BotUsername: "relaybot", Announcer: ann}, logx.Nop())
	f.svc.Touch(f.ctx, 11)

	f.expectReply(7, msgNotAllowed)
	f.expectReply(testAdmin, "Usage: /announce <name>")
	f.expectReply(testAdmin, "No announcement named nope")
	f.expectReply(testAdmin, "Announcement promo sent to 3 users.")

	f.r.Handle(f.ctx, msg(7, "/announce promo"))
	if f.delivered.Load() != 0 {
		t.Fatalf("non-admin announce delivered %d", f.delivered.Load())
	}
	f.r.Handle(f.ctx, msg(testAdmin, "/announce"))
	f.r.Handle(f.ctx, msg(testAdmin, "/announce nope"))
	f.r.Handle(f.ctx, msg(testAdmin, "/announce promo"))

	// 7 and the admin register through their private messages.
	if got := f.delivered.Load(); got != 3 {
		t.Fatalf("delivered = %d, want 3", got)
	}
	audit := f.store.Audit()
	if len(audit) == 0 || audit[0].Action != "announce" || audit[0].ActorID != 7 {
		t.Fatalf("denied announce not audited: %+v", audit)
	}
}

func TestAnnounceHiddenWithoutAnnouncer(t *testing.T) {
	f := newFixture(t)
	f.expectReply(testAdmin, msgUnknownCommand)
	f.r.Handle(f.ctx, msg(testAdmin, "/announce promo"))
}
