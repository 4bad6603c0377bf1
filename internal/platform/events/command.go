package events

import "encoding/json"

// CommandInvocation is a chat command forwarded by the gateway.
type CommandInvocation struct {
	Command   string `json:"command"`
	UserID    string `json:"user_id"`
	ChannelID string `json:"channel_id"`
	GuildID   string `json:"guild_id,omitempty"`
	// Options is set for slash commands, Args for prefix commands.
	Options    map[string]any `json:"options,omitempty"`
	Args       []string       `json:"args,omitempty"`
	IsContinue bool           `json:"is_continue,omitempty"`
}

// CommandReply is a message the gateway should post to a channel.
type CommandReply struct {
	ChannelID   string            `json:"channel_id"`
	Content     string            `json:"content,omitempty"`
	Attachments []ReplyAttachment `json:"attachments,omitempty"`
}

// ReplyAttachment is a file attached to a reply. Data is base64 in JSON.
type ReplyAttachment struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// HasOptions reports whether the invocation carried named options,
// including an explicitly empty object.
func (c CommandInvocation) HasOptions() bool {
	return c.Options != nil
}

// DecodeInvocation parses a command invocation message body.
func DecodeInvocation(body []byte) (CommandInvocation, error) {
	var inv CommandInvocation
	err := json.Unmarshal(body, &inv)
	return inv, err
}
