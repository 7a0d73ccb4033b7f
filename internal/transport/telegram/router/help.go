package router

import (
	"context"
	"strings"
)

func (r *Router) handleHelp(ctx context.Context, req *Request) error {
	return r.reply(ctx, req.Chat, r.helpText(r.svc.Auth().Authorize(req.FromID)))
}

// helpText lists commands; admin-only ones are shown to the admin only.
func (r *Router) helpText(admin bool) string {
	var b strings.Builder
	b.WriteString("Send a code like 001 to get its message.\n\nCommands:\n")
	for _, c := range r.order {
		if c.AdminOnly && !admin {
			continue
		}
		b.WriteString(c.Usage)
		b.WriteString(" - ")
		b.WriteString(c.Description)
		b.WriteByte('\n')
	}
	if r.opts.BotUsername != "" {
		b.WriteString("\nInline: type @" + r.opts.BotUsername + " <code> in any chat.")
	}
	return strings.TrimRight(b.String(), "\n")
}
