package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

const (
	replyUnknown = "Неизвестная команда. Список команд: /help"
	replyFailed  = "Команда не выполнена: %v"
)

// Command is a slash command such as /status.
type Command struct {
	Name        string // without the leading slash
	Description string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// Request is one parsed command invocation.
type Request struct {
	Message *kit.Message
	Command string
	Args    []string

	sender kit.Sender
}

// Reply answers in the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	_, err := r.sender.SendText(ctx, kit.ChatTarget{ChatID: r.Message.ChatID}, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// Router dispatches commands from a single allowed chat. Messages from other
// chats and plain text are ignored.
type Router struct {
	log     logx.Logger
	sender  kit.Sender
	allowed int64
	timeout time.Duration

	mu   sync.RWMutex
	cmds map[string]Command
}

func New(sender kit.Sender, allowedChatID int64, log logx.Logger) *Router {
	return &Router{
		log:     log,
		sender:  sender,
		allowed: allowedChatID,
		timeout: 30 * time.Second,
		cmds:    map[string]Command{},
	}
}

// SetAllowedChat changes the chat commands are accepted from.
func (r *Router) SetAllowedChat(id int64) {
	r.mu.Lock()
	r.allowed = id
	r.mu.Unlock()
}

func (r *Router) Register(cmds ...Command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range cmds {
		name := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Name), "/"))
		if name == "" || c.Handle == nil {
			return errors.New("command name and handler are required")
		}
		if _, dup := r.cmds[name]; dup {
			return fmt.Errorf("command /%s already registered", name)
		}
		c.Name = name
		r.cmds[name] = c
	}
	return nil
}

// Commands returns the registered commands sorted by name.
func (r *Router) Commands() []kit.BotCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kit.BotCommand, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, kit.BotCommand{Command: c.Name, Description: c.Description})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}

// HelpText lists every command with its description.
func (r *Router) HelpText() string {
	var b strings.Builder
	b.WriteString("Команды:\n")
	for _, c := range r.Commands() {
		fmt.Fprintf(&b, "/%s - %s\n", c.Command, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// DispatchLoop routes updates until ctx is done or the channel closes.
// Commands run one at a time.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	r.log.Info("command dispatcher started")
	defer r.log.Info("command dispatcher stopped")
	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			_ = r.Dispatch(ctx, up)
		}
	}
}

// Dispatch handles one update and reports whether it ran a handler error.
func (r *Router) Dispatch(ctx context.Context, up kit.Update) error {
	msg := up.Message
	if msg == nil {
		return nil
	}
	name, args, ok := ParseCommand(msg.Text)
	if !ok {
		return nil
	}

	r.mu.RLock()
	allowed := r.allowed
	cmd, known := r.cmds[name]
	r.mu.RUnlock()

	if msg.ChatID != allowed {
		r.log.Debug("command from foreign chat ignored", logx.Int64("chat_id", msg.ChatID), logx.String("cmd", name))
		return nil
	}

	req := &Request{Message: msg, Command: name, Args: args, sender: r.sender}
	if !known {
		return req.Reply(ctx, replyUnknown)
	}

	timeout := r.timeout
	if cmd.Timeout > 0 {
		timeout = cmd.Timeout
	}
	h := Chain(cmd.Handle,
		MWRequestLog(r.log),
		MWPanicRecover(r.log),
		MWTimeout(timeout),
	)
	err := h(ctx, req)
	if err != nil && ctx.Err() == nil {
		_ = req.Reply(ctx, fmt.Sprintf(replyFailed, err))
	}
	return err
}

// ParseCommand splits "/name@bot arg1 arg2" into its lowercased name and args.
func ParseCommand(text string) (name string, args []string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, false
	}
	parts := strings.Fields(text)
	word := strings.TrimPrefix(parts[0], "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	if word == "" {
		return "", nil, false
	}
	return strings.ToLower(word), parts[1:], true
}
