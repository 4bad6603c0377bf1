package consumer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/xmasacrex/club-rpg/internal/command"
	platformevents "github.com/xmasacrex/club-rpg/internal/platform/events"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// ReplyChannel publishes command replies to Kafka for the chat gateway.
// Replies are keyed by channel so each channel sees them in order.
type ReplyChannel struct {
	writer messageWriter
	topic  string
}

// NewReplyChannel constructs a ReplyChannel writing to topic.
func NewReplyChannel(writer messageWriter, topic string) *ReplyChannel {
	return &ReplyChannel{writer: writer, topic: topic}
}

// Send implements command.Channel.
func (c *ReplyChannel) Send(ctx context.Context, channelID string, msg command.Message) error {
	reply := platformevents.CommandReply{
		ChannelID: channelID,
		Content:   msg.Content,
	}
	for _, a := range msg.Attachments {
		reply.Attachments = append(reply.Attachments, platformevents.ReplyAttachment{Name: a.Name, Data: a.Data})
	}
	body, err := json.Marshal(reply)
	if err != nil {
		return err
	}
	err = c.writer.WriteMessages(ctx, c.topic, kafka.Message{
		Key:   []byte(channelID),
		Value: body,
		Time:  time.Now().UTC(),
	})
	if err != nil {
		replyErrorCounter.Inc()
		return err
	}
	repliesCounter.Inc()
	return nil
}
