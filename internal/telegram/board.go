package telegram

import (
	"context"
	"fmt"
	"slices"
	"unicode/utf16"

	"github.com/gotd/td/telegram/message/entity"
	"github.com/gotd/td/tg"

	"github.com/botzhub/botstatus/internal/monitor"
	"github.com/botzhub/botstatus/internal/report"
)

// Board is the status message in a channel, edited as the connected user.
type Board struct {
	client    *Client
	channelID int64
	messageID int
}

var _ monitor.Board = (*Board)(nil)

// Board returns the status message identified by channelID and messageID.
// channelID may be bare or in the -100 marked form.
func (c *Client) Board(channelID int64, messageID int) *Board {
	return &Board{client: c, channelID: NormalizeChannelID(channelID), messageID: messageID}
}

// Read returns the current status message with its formatting.
func (b *Board) Read(ctx context.Context) (report.Document, error) {
	ch, err := b.client.channel(ctx, b.channelID)
	if err != nil {
		return nil, err
	}

	res, err := b.client.api.ChannelsGetMessages(ctx, &tg.ChannelsGetMessagesRequest{
		Channel: ch,
		ID:      []tg.InputMessageClass{&tg.InputMessageID{ID: b.messageID}},
	})
	if err != nil {
		return nil, wrapRPC(fmt.Errorf("get message %d: %w", b.messageID, err))
	}

	for _, m := range messagesOf(res) {
		if full, ok := m.(*tg.Message); ok && full.ID == b.messageID {
			return FromEntities(full.Message, full.Entities), nil
		}
	}
	return nil, fmt.Errorf("message %d in channel %d: %w", b.messageID, b.channelID, ErrMessageNotFound)
}

// Write replaces the status message with doc.
func (b *Board) Write(ctx context.Context, doc report.Document) error {
	ch, err := b.client.channel(ctx, b.channelID)
	if err != nil {
		return err
	}

	text, entities := Entities(doc)
	_, err = b.client.api.MessagesEditMessage(ctx, &tg.MessagesEditMessageRequest{
		NoWebpage: true,
		Peer:      &tg.InputPeerChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash},
		ID:        b.messageID,
		Message:   text,
		Entities:  entities,
	})
	if err != nil {
		return wrapRPC(fmt.Errorf("edit message %d: %w", b.messageID, err))
	}
	return nil
}

// Entities converts a report document into message text and MTProto
// formatting entities.
func Entities(doc report.Document) (string, []tg.MessageEntityClass) {
	var b entity.Builder
	for _, span := range doc {
		switch span.Style {
		case report.Bold:
			b.Bold(span.Text)
		case report.Italic:
			b.Italic(span.Text)
		case report.Code:
			b.Code(span.Text)
		default:
			b.Plain(span.Text)
		}
	}
	return b.Complete()
}

// FromEntities converts message text and its entities back into a report
// document. Bold, italic, code and pre entities keep their style; other
// entities and entities overlapping an earlier one are read as plain text.
// Offsets are in UTF-16 code units.
func FromEntities(text string, entities []tg.MessageEntityClass) report.Document {
	type styled struct {
		offset, length int
		style          report.Style
	}

	var marks []styled
	for _, e := range entities {
		var style report.Style
		switch e.(type) {
		case *tg.MessageEntityBold:
			style = report.Bold
		case *tg.MessageEntityItalic:
			style = report.Italic
		case *tg.MessageEntityCode, *tg.MessageEntityPre:
			style = report.Code
		default:
			continue
		}
		marks = append(marks, styled{offset: e.GetOffset(), length: e.GetLength(), style: style})
	}
	slices.SortStableFunc(marks, func(a, b styled) int { return a.offset - b.offset })

	units := utf16.Encode([]rune(text))
	var doc report.Document
	appendSpan := func(from, to int, style report.Style) {
		if from >= to {
			return
		}
		part := string(utf16.Decode(units[from:to]))
		if n := len(doc); n > 0 && style == report.Plain && doc[n-1].Style == report.Plain {
			doc[n-1].Text += part
			return
		}
		doc = append(doc, report.Span{Text: part, Style: style})
	}

	pos := 0
	for _, m := range marks {
		end := m.offset + m.length
		if m.length <= 0 || m.offset < pos || end > len(units) {
			continue
		}
		appendSpan(pos, m.offset, report.Plain)
		appendSpan(m.offset, end, m.style)
		pos = end
	}
	appendSpan(pos, len(units), report.Plain)

	return doc
}
