package transport

import "context"

type UpdateKind string

const (
	UpdateMessage     UpdateKind = "message"
	UpdateInlineQuery UpdateKind = "inline_query"
)

type Update struct {
	Kind    UpdateKind
	Message *Message
	Query   *InlineQuery
}

type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // telegram forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
	IsPrivate    bool
}

// InlineQuery is an "@bot <text>" query typed in any chat.
type InlineQuery struct {
	ID     string
	FromID int64
	Text   string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

type MessageRef struct {
	ChatID    int64
	ThreadID  int
	MessageID int
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// InlineArticle is one entry of an inline query answer.
type InlineArticle struct {
	ID          string
	Title       string
	Description string
	Text        string
}

//go:generate mockgen -source=types.go -destination=mocks/adapter.go -package=mocks Adapter

type Adapter interface {
	Start(ctx context.Context, out chan<- Update) error
	Stop(ctx context.Context) error

	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) (MessageRef, error)
	AnswerInline(ctx context.Context, queryID string, results []InlineArticle) error
}

// BotCommand represents a single bot command menu entry.
type BotCommand struct {
	Command     string
	Description string
}

// CommandMenuUpdater is an optional interface that adapters can implement
// to publish the command list to the platform's menu.
type CommandMenuUpdater interface {
	UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error
}
