package telegram

import (
	"context"
	"fmt"

	"github.com/gotd/td/tg"
)

const (
	// markedChannelOffset is the offset of "-100" marked channel ids as used
	// by the Bot API and most clients.
	markedChannelOffset = 1_000_000_000_000

	dialogsPageSize = 100
	maxDialogPages  = 20
)

// NormalizeChannelID converts a -100 marked channel id into a bare one.
// Bare ids are returned unchanged.
func NormalizeChannelID(id int64) int64 {
	if id >= 0 {
		return id
	}
	id = -id
	if id > markedChannelOffset {
		return id - markedChannelOffset
	}
	return id
}

// MarkedChannelID converts a channel id into its -100 marked form.
func MarkedChannelID(id int64) int64 {
	return -markedChannelOffset - NormalizeChannelID(id)
}

// channel resolves a bare channel id into an input channel. A zero access
// hash lookup is tried first; the dialog list is scanned when it fails.
func (c *Client) channel(ctx context.Context, id int64) (*tg.InputChannel, error) {
	if ch, ok := c.channels[id]; ok {
		return ch, nil
	}

	ch, err := c.channelByID(ctx, id)
	if err != nil {
		c.logger.Debug("Direct channel lookup failed, scanning dialogs", "channel_id", id, "error", err)
		ch, err = c.channelFromDialogs(ctx, id)
		if err != nil {
			return nil, err
		}
	}

	c.channels[id] = ch
	return ch, nil
}

func (c *Client) channelByID(ctx context.Context, id int64) (*tg.InputChannel, error) {
	res, err := c.api.ChannelsGetChannels(ctx, []tg.InputChannelClass{&tg.InputChannel{ChannelID: id}})
	if err != nil {
		return nil, wrapRPC(fmt.Errorf("get channel %d: %w", id, err))
	}
	if ch := findChannel(res.GetChats(), id); ch != nil {
		return ch, nil
	}
	return nil, fmt.Errorf("channel %d: %w", id, ErrChannelNotFound)
}

func (c *Client) channelFromDialogs(ctx context.Context, id int64) (*tg.InputChannel, error) {
	req := &tg.MessagesGetDialogsRequest{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      dialogsPageSize,
	}

	for page := 0; page < maxDialogPages; page++ {
		res, err := c.api.MessagesGetDialogs(ctx, req)
		if err != nil {
			return nil, wrapRPC(fmt.Errorf("get dialogs: %w", err))
		}

		var pg dialogsPage
		last := false
		switch d := res.(type) {
		case *tg.MessagesDialogs:
			pg = dialogsPage{dialogs: d.Dialogs, messages: d.Messages, chats: d.Chats, users: d.Users}
			last = true
		case *tg.MessagesDialogsSlice:
			pg = dialogsPage{dialogs: d.Dialogs, messages: d.Messages, chats: d.Chats, users: d.Users}
		default:
			last = true
		}

		if ch := findChannel(pg.chats, id); ch != nil {
			return ch, nil
		}
		if last || len(pg.dialogs) < dialogsPageSize {
			break
		}

		date, msgID, peer, ok := pg.nextOffset()
		if !ok {
			break
		}
		req.OffsetDate, req.OffsetID, req.OffsetPeer = date, msgID, peer
	}

	return nil, fmt.Errorf("channel %d is not among the account's dialogs: %w", id, ErrChannelNotFound)
}

func findChannel(chats []tg.ChatClass, id int64) *tg.InputChannel {
	for _, chat := range chats {
		if ch, ok := chat.(*tg.Channel); ok && ch.ID == id {
			return &tg.InputChannel{ChannelID: ch.ID, AccessHash: ch.AccessHash}
		}
	}
	return nil
}

type dialogsPage struct {
	dialogs  []tg.DialogClass
	messages []tg.MessageClass
	chats    []tg.ChatClass
	users    []tg.UserClass
}

// nextOffset computes the pagination offset from the last dialog of the page.
func (p dialogsPage) nextOffset() (date, msgID int, peer tg.InputPeerClass, ok bool) {
	if len(p.dialogs) == 0 {
		return 0, 0, nil, false
	}
	dlg, isDialog := p.dialogs[len(p.dialogs)-1].(*tg.Dialog)
	if !isDialog {
		return 0, 0, nil, false
	}

	peer = p.inputPeer(dlg.Peer)
	if peer == nil {
		return 0, 0, nil, false
	}

	for _, m := range p.messages {
		mDate, mPeer, known := messageDateAndPeer(m)
		if known && m.GetID() == dlg.TopMessage && samePeer(mPeer, dlg.Peer) {
			return mDate, dlg.TopMessage, peer, true
		}
	}
	return 0, 0, nil, false
}

func (p dialogsPage) inputPeer(peer tg.PeerClass) tg.InputPeerClass {
	switch pr := peer.(type) {
	case *tg.PeerUser:
		for _, u := range p.users {
			if user, ok := u.(*tg.User); ok && user.ID == pr.UserID {
				return &tg.InputPeerUser{UserID: user.ID, AccessHash: user.AccessHash}
			}
		}
	case *tg.PeerChat:
		return &tg.InputPeerChat{ChatID: pr.ChatID}
	case *tg.PeerChannel:
		if ch := findChannel(p.chats, pr.ChannelID); ch != nil {
			return &tg.InputPeerChannel{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash}
		}
	}
	return nil
}

func messageDateAndPeer(m tg.MessageClass) (int, tg.PeerClass, bool) {
	switch msg := m.(type) {
	case *tg.Message:
		return msg.Date, msg.PeerID, true
	case *tg.MessageService:
		return msg.Date, msg.PeerID, true
	default:
		return 0, nil, false
	}
}

func samePeer(a, b tg.PeerClass) bool {
	switch pa := a.(type) {
	case *tg.PeerUser:
		pb, ok := b.(*tg.PeerUser)
		return ok && pa.UserID == pb.UserID
	case *tg.PeerChat:
		pb, ok := b.(*tg.PeerChat)
		return ok && pa.ChatID == pb.ChatID
	case *tg.PeerChannel:
		pb, ok := b.(*tg.PeerChannel)
		return ok && pa.ChannelID == pb.ChannelID
	default:
		return false
	}
}
