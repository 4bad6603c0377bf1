// Package command runs bot commands through a single envelope: inhibitors,
// the command body, then post hooks that always run.
//
// Two command shapes exist side by side. StructuredCommand receives named
// options (slash-command style) and returns its reply; LegacyCommand receives
// positional arguments and writes its own output. Both are normalized into an
// AbstractCommand when registered.
package command

import (
	"context"
	"fmt"
)

// Kind identifies which representation backs a command name.
type Kind string

const (
	KindStructured Kind = "structured"
	KindLegacy     Kind = "legacy"
)

// Meta holds the attributes shared by both command representations.
type Meta struct {
	Name        string
	Description string
	Category    string
	Examples    []string
	// RequiresMinion marks commands that only make sense for users owning a minion.
	RequiresMinion bool
	// RequiresIdle blocks the command while the user's minion is on a trip.
	RequiresIdle bool
	// PerkTier is the minimum patron tier; zero means everyone.
	PerkTier int
}

// AbstractCommand is the normalized view of a registered command.
type AbstractCommand struct {
	Meta
	Kind Kind
}

// Invocation identifies who ran a command and where.
type Invocation struct {
	UserID    string
	ChannelID string
	GuildID   string
}

// Args carries the raw arguments of a dispatch: Options or Positional.
type Args interface {
	isArgs()
}

// Options are named arguments for structured commands.
type Options map[string]any

// Positional are ordered arguments for legacy commands.
type Positional []string

func (Options) isArgs()    {}
func (Positional) isArgs() {}

// Sub returns the options of subcommand name, if it was chosen.
func (o Options) Sub(name string) (Options, bool) {
	raw, ok := o[name]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case Options:
		return v, true
	case map[string]any:
		return Options(v), true
	case nil:
		return Options{}, true
	}
	return nil, false
}

// String returns option key as a string.
func (o Options) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Definition is implemented only by StructuredCommand and LegacyCommand.
type Definition interface {
	meta() Meta
}

// StructuredCall is the input of a structured command body.
type StructuredCall struct {
	Invocation
	Options Options
}

// StructuredCommand is a command with named options whose reply is sent by the dispatcher.
type StructuredCommand struct {
	Meta
	Run func(ctx context.Context, call StructuredCall) (Message, error)
}

func (c *StructuredCommand) meta() Meta { return c.Meta }

// LegacyCall is the input of a legacy command body.
type LegacyCall struct {
	Invocation
	Args  []string
	reply func(context.Context, Message)
}

// Reply sends content to the invoking channel.
func (c LegacyCall) Reply(ctx context.Context, format string, args ...any) {
	if c.reply == nil {
		return
	}
	c.reply(ctx, Message{Content: fmt.Sprintf(format, args...)})
}

// LegacyCommand is a command with positional arguments that writes its own output.
type LegacyCommand struct {
	Meta
	Enabled bool
	Run     func(ctx context.Context, call LegacyCall) error
}

func (c *LegacyCommand) meta() Meta { return c.Meta }

// Message is a reply rendered for the chat platform.
type Message struct {
	Content     string
	Attachments []Attachment
}

// Attachment is a file sent along a message.
type Attachment struct {
	Name string
	Data []byte
}

// IsEmpty reports whether there is nothing to send.
func (m Message) IsEmpty() bool {
	return m.Content == "" && len(m.Attachments) == 0
}

// Text is shorthand for a content-only message.
func Text(format string, args ...any) Message {
	return Message{Content: fmt.Sprintf(format, args...)}
}

// Channel delivers messages to a chat channel. Delivery is not retried.
type Channel interface {
	Send(ctx context.Context, channelID string, msg Message) error
}
