package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/bwmarrin/discordgo"

	"github.com/bowerhall/gatekeeper/internal/logger"
	"github.com/bowerhall/gatekeeper/internal/verifier"
)

// discord maps guild members onto the chat model: the "chat" of a join is
// the channel the challenge is posted in, and bans apply to that channel's
// guild.
type discord struct {
	session         *discordgo.Session
	fallbackChannel string
	sink            Sink
}

func newDiscord(token string, fallbackChannelID int64) (Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	d := &discord{session: session}
	if fallbackChannelID != 0 {
		d.fallbackChannel = strconv.FormatInt(fallbackChannelID, 10)
	}

	session.AddHandler(d.handleMemberAdd)
	session.AddHandler(d.handleMemberRemove)
	session.AddHandler(d.handleMessage)

	return d, nil
}

func (d *discord) Start(ctx context.Context, sink Sink) error {
	d.sink = sink

	if err := d.session.Open(); err != nil {
		return err
	}
	logger.Info("discord connected")

	<-ctx.Done()
	return d.session.Close()
}

func (d *discord) handleMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	channelID := d.challengeChannel(s, m.GuildID)
	if channelID == "" {
		logger.Warn("no channel for challenge, join ignored", "guild", m.GuildID)
		return
	}

	ev, err := discordJoin(m.Member, channelID)
	if err != nil {
		logger.Warn("discord join not mapped", "guild", m.GuildID, "error", err)
		return
	}
	deliver(d.sink, ev)
}

func (d *discord) handleMemberRemove(s *discordgo.Session, m *discordgo.GuildMemberRemove) {
	ev, err := discordLeave(m.Member, d.challengeChannel(s, m.GuildID))
	if err != nil {
		logger.Warn("discord leave not mapped", "guild", m.GuildID, "error", err)
		return
	}
	deliver(d.sink, ev)
}

func (d *discord) handleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}

	ev, ok, err := discordText(m.Message)
	if err != nil {
		logger.Warn("discord message not mapped", "channel", m.ChannelID, "error", err)
		return
	}
	if ok {
		deliver(d.sink, ev)
	}
}

// challengeChannel prefers the guild's system channel.
func (d *discord) challengeChannel(s *discordgo.Session, guildID string) string {
	if g, err := s.State.Guild(guildID); err == nil && g.SystemChannelID != "" {
		return g.SystemChannelID
	}
	return d.fallbackChannel
}

func discordJoin(m *discordgo.Member, channelID string) (verifier.Event, error) {
	if m == nil || m.User == nil {
		return nil, fmt.Errorf("member without user")
	}

	user, err := discordPrincipal(m.User)
	if err != nil {
		return nil, err
	}
	chatID, err := snowflake(channelID)
	if err != nil {
		return nil, err
	}

	return verifier.MemberJoined{
		Users:     []verifier.Principal{user},
		ChatID:    chatID,
		Timestamp: m.JoinedAt,
		Actor:     user,
	}, nil
}

func discordLeave(m *discordgo.Member, channelID string) (verifier.Event, error) {
	if m == nil || m.User == nil {
		return nil, fmt.Errorf("member without user")
	}

	user, err := discordPrincipal(m.User)
	if err != nil {
		return nil, err
	}

	// leaves are keyed by user only, an unknown channel is fine
	chatID, _ := snowflake(channelID)
	return verifier.MemberLeft{User: user, ChatID: chatID}, nil
}

// discordText reports ok=false for messages that carry no answer, such as
// system notices and attachments without text.
func discordText(m *discordgo.Message) (verifier.Event, bool, error) {
	if m == nil || m.Author == nil || m.Content == "" {
		return nil, false, nil
	}
	if m.Type != discordgo.MessageTypeDefault && m.Type != discordgo.MessageTypeReply {
		return nil, false, nil
	}

	user, err := discordPrincipal(m.Author)
	if err != nil {
		return nil, false, err
	}
	chatID, err := snowflake(m.ChannelID)
	if err != nil {
		return nil, false, err
	}
	msgID, err := snowflake(m.ID)
	if err != nil {
		return nil, false, err
	}

	return verifier.TextMessage{
		User:      user,
		ChatID:    chatID,
		MessageID: msgID,
		Text:      m.Content,
		Timestamp: m.Timestamp,
	}, true, nil
}

func discordPrincipal(u *discordgo.User) (verifier.Principal, error) {
	id, err := snowflake(u.ID)
	if err != nil {
		return verifier.Principal{}, err
	}
	return verifier.Principal{
		ID:    id,
		Name:  displayName(u.GlobalName, u.Username),
		IsBot: u.Bot,
	}, nil
}

func snowflake(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q: %w", id, err)
	}
	return n, nil
}

func channelString(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (d *discord) SendMessage(chatID int64, text string) (int64, error) {
	msg, err := d.session.ChannelMessageSend(channelString(chatID), text)
	if err != nil {
		return 0, err
	}
	logger.Debug("message sent", "chat", chatID, "message", msg.ID, "chars", len(text))
	return snowflake(msg.ID)
}

func (d *discord) Notify(chatID int64, text string) error {
	_, err := d.session.ChannelMessageSend(channelString(chatID), text)
	return err
}

func (d *discord) DeleteMessage(chatID, messageID int64) error {
	return d.session.ChannelMessageDelete(channelString(chatID), channelString(messageID))
}

func (d *discord) BanMember(chatID, userID int64) error {
	guildID, err := d.guildOf(chatID)
	if err != nil {
		return err
	}
	return d.session.GuildBanCreate(guildID, channelString(userID), 0)
}

func (d *discord) UnbanMember(chatID, userID int64) error {
	guildID, err := d.guildOf(chatID)
	if err != nil {
		return err
	}
	return d.session.GuildBanDelete(guildID, channelString(userID))
}

// ListAdmins returns the guild owner and every member holding a role with
// the administrator permission.
func (d *discord) ListAdmins(chatID int64) (map[int64]struct{}, error) {
	guildID, err := d.guildOf(chatID)
	if err != nil {
		return nil, err
	}

	guild, err := d.session.State.Guild(guildID)
	if err != nil {
		if guild, err = d.session.Guild(guildID); err != nil {
			return nil, err
		}
	}

	members, err := allMembers(func(after string) ([]*discordgo.Member, error) {
		return d.session.GuildMembers(guildID, after, memberPageSize)
	})
	if err != nil {
		return nil, err
	}

	return discordAdmins(guild, members), nil
}

// memberPageSize is the most members Discord returns per request.
const memberPageSize = 1000

// allMembers pages through a guild's member list, which Discord orders by
// user id.
func allMembers(fetch func(after string) ([]*discordgo.Member, error)) ([]*discordgo.Member, error) {
	var all []*discordgo.Member
	after := ""

	for {
		page, err := fetch(after)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)

		if len(page) < memberPageSize {
			return all, nil
		}

		last := page[len(page)-1]
		if last.User == nil || last.User.ID == after {
			return all, nil
		}
		after = last.User.ID
	}
}

func discordAdmins(guild *discordgo.Guild, members []*discordgo.Member) map[int64]struct{} {
	adminRoles := make(map[string]struct{})
	for _, r := range guild.Roles {
		if r.Permissions&discordgo.PermissionAdministrator != 0 {
			adminRoles[r.ID] = struct{}{}
		}
	}

	admins := make(map[int64]struct{})
	if id, err := snowflake(guild.OwnerID); err == nil {
		admins[id] = struct{}{}
	}

	for _, m := range members {
		if m.User == nil {
			continue
		}
		for _, roleID := range m.Roles {
			if _, ok := adminRoles[roleID]; !ok {
				continue
			}
			if id, err := snowflake(m.User.ID); err == nil {
				admins[id] = struct{}{}
			}
			break
		}
	}
	return admins
}

func (d *discord) guildOf(chatID int64) (string, error) {
	channelID := channelString(chatID)

	ch, err := d.session.State.Channel(channelID)
	if err != nil {
		if ch, err = d.session.Channel(channelID); err != nil {
			return "", fmt.Errorf("resolve guild for channel %s: %w", channelID, err)
		}
	}
	if ch.GuildID == "" {
		return "", fmt.Errorf("channel %s is not in a guild", channelID)
	}
	return ch.GuildID, nil
}
