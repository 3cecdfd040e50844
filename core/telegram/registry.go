package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/pitarabot/core/logger"
	"github.com/m3rciful/pitarabot/core/netutil"
	"github.com/m3rciful/pitarabot/core/telegram/commands"
	"github.com/m3rciful/pitarabot/core/telegram/update"
)

// Route binds a handler name to its handler.
type Route struct {
	Name    string
	Handler update.HandlerFunc
}

// Registry holds one route per update kind plus the command menu.
type Registry struct {
	mu       sync.RWMutex
	routes   map[update.Kind]Route
	commands map[string]commands.Command
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		routes:   make(map[update.Kind]Route),
		commands: make(map[string]commands.Command),
	}
}

// Handle binds kind to handler. Each kind accepts exactly one handler.
func (r *Registry) Handle(kind update.Kind, name string, h update.HandlerFunc) error {
	if kind == update.KindUnknown || h == nil || name == "" {
		logger.Warn(context.Background(), logger.CompWire, "register.route.skip",
			slog.String("kind", kind.String()),
			slog.String("handler", name),
			slog.String("reason", "invalid"),
		)
		return fmt.Errorf("invalid route registration for %s", kind)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.routes[kind]; exists {
		logger.Warn(context.Background(), logger.CompWire, "register.route.duplicate",
			slog.String("kind", kind.String()),
		)
		return fmt.Errorf("route already registered: %s", kind)
	}
	r.routes[kind] = Route{Name: name, Handler: h}
	return nil
}

// Lookup returns the route bound to kind.
func (r *Registry) Lookup(kind update.Kind) (Route, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	route, ok := r.routes[kind]
	return route, ok
}

// Missing lists routable kinds that have no handler.
func (r *Registry) Missing() []update.Kind {
	var out []update.Kind
	for _, k := range update.Kinds() {
		if _, ok := r.Lookup(k); !ok {
			out = append(out, k)
		}
	}
	return out
}

// RegisterCommand adds a menu command such as "/start".
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	if name == "" || name[0] != '/' || cmd.Description == "" {
		logger.Warn(context.Background(), logger.CompWire, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		logger.Warn(context.Background(), logger.CompWire, "register.command.duplicate",
			slog.String("name", name),
		)
		return
	}
	r.commands[name] = cmd
}

// ListCommands returns menu entries sorted by name, optionally without hidden ones.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, meta := range r.commands {
		if visibleOnly && meta.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: name, Description: meta.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// CommandSetter publishes the command menu.
type CommandSetter interface {
	SetCommands(opts ...any) error
}

// InitBotCommands sets the Telegram bot commands shown in the command menu.
func InitBotCommands(ctx context.Context, bot CommandSetter, reg *Registry) {
	list := reg.ListCommands(true)
	if err := bot.SetCommands(list); err != nil {
		logger.Error(ctx, logger.CompWire, "register.commands",
			slog.String("status", "fail"),
			slog.String("err", netutil.ErrorString(err)),
		)
		return
	}
	logger.Info(ctx, logger.CompWire, "register.commands",
		slog.String("status", "ok"),
		slog.Int("commands", len(list)),
	)
}
