package core

import "strings"

// activateCommandPrefix marks the meta-command that toggles a feed
// subscription, e.g. /activate_activity_feeds yes.
const activateCommandPrefix = "activate_"

// defaultCommand is the registry key of the mandatory fallback handler.
const defaultCommand = "default"

// ParseCommand extracts the command name and argument list from an update.
//
// The name is the text covered by a bot-command entity span with the leading
// slash stripped. The arguments are the text after the span split on single
// spaces; an empty remainder yields a nil slice, never a slice containing one
// empty string. Updates with no text or no command span report ok=false.
//
// When a message carries several command spans, the last span wins. That
// mirrors the historical bot behavior and keeps routing deterministic.
func ParseCommand(u Update) (name string, args []string, ok bool) {
	if u.Text == "" {
		return "", nil, false
	}
	for _, entity := range u.Entities {
		if entity.Type != EntityTypeBotCommand {
			continue
		}
		from := entity.Offset
		to := entity.Offset + entity.Length
		if from < 0 || to > len(u.Text) || from >= to {
			continue
		}
		name = strings.TrimPrefix(u.Text[from:to], "/")
		args = splitArgs(u.Text, to)
		ok = true
	}
	if name == "" {
		return "", nil, false
	}
	return name, args, ok
}

// splitArgs splits the text after the command span on single spaces.
func splitArgs(text string, spanEnd int) []string {
	if spanEnd >= len(text) {
		return nil
	}
	rest := text[spanEnd:]
	rest = strings.TrimPrefix(rest, " ")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, " ")
}

// Registry holds a session's command handlers and periodic feeds. It is
// populated once at session construction and never mutated afterwards.
type Registry struct {
	commands map[string]HandlerFunc
	feeds    map[string]Feed
}

// NewRegistry builds a registry from explicit handler and feed maps. The
// commands map must contain a "default" entry; dispatch relies on it.
func NewRegistry(commands map[string]HandlerFunc, feeds map[string]Feed) *Registry {
	if commands == nil {
		commands = map[string]HandlerFunc{}
	}
	if feeds == nil {
		feeds = map[string]Feed{}
	}
	return &Registry{commands: commands, feeds: feeds}
}

// FeedNames returns the names of all registered feeds.
func (r *Registry) FeedNames() []string {
	names := make([]string, 0, len(r.feeds))
	for name := range r.feeds {
		names = append(names, name)
	}
	return names
}

// Feed looks up a registered feed by name.
func (r *Registry) Feed(name string) (Feed, bool) {
	feed, ok := r.feeds[name]
	return feed, ok
}

// Dispatch routes a parsed command invocation to its handler.
//
// Resolution order: an exactly matching registered command; then the
// activate_<feed> meta-command for a registered feed, routed to activate;
// then the mandatory default handler. Dispatch itself has no side effects
// beyond invoking the chosen handler.
func (r *Registry) Dispatch(name string, args []string, u Update, activate func(feedName string, args []string, u Update)) {
	if handler, ok := r.commands[name]; ok {
		handler(args, u)
		return
	}
	if feedName, found := strings.CutPrefix(name, activateCommandPrefix); found {
		if _, ok := r.feeds[feedName]; ok && activate != nil {
			activate(feedName, args, u)
			return
		}
	}
	if fallback, ok := r.commands[defaultCommand]; ok {
		fallback(args, u)
	}
}
