package telegram

import (
	"time"

	"github.com/mymmrac/telego"

	"github.com/AndreyKrivtsov/tgbot-sub001/internal/biz/domain"
)

func isGroupChat(chat telego.Chat) bool {
	return chat.Type == "group" || chat.Type == "supergroup"
}

// isAnonymousAdmin checks for a message posted on behalf of the group itself
func isAnonymousAdmin(msg *telego.Message) bool {
	return msg.SenderChat != nil && msg.SenderChat.ID == msg.Chat.ID
}

// toIncoming converts a group message to the domain shape.
// Returns false for messages the pipeline should not see.
func toIncoming(msg *telego.Message, isAdmin bool) (domain.IncomingMessage, bool) {
	if msg == nil || msg.From == nil || !isGroupChat(msg.Chat) {
		return domain.IncomingMessage{}, false
	}
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	if text == "" {
		return domain.IncomingMessage{}, false
	}

	in := domain.IncomingMessage{
		ConversationID: msg.Chat.ID,
		UserID:         msg.From.ID,
		MessageID:      int64(msg.MessageID),
		Text:           text,
		Timestamp:      time.Unix(msg.Date, 0),
		Username:       displayName(msg.From),
		IsAdmin:        isAdmin || isAnonymousAdmin(msg),
	}
	if reply := msg.ReplyToMessage; reply != nil {
		id := int64(reply.MessageID)
		in.ReplyToMessageID = &id
		if reply.From != nil {
			uid := reply.From.ID
			in.ReplyToUserID = &uid
		}
	}
	return in, true
}

func displayName(u *telego.User) string {
	if u.Username != "" {
		return u.Username
	}
	name := u.FirstName
	if u.LastName != "" {
		name += " " + u.LastName
	}
	return name
}

// chatPermissions maps the permission set of a restrict or unrestrict action
func chatPermissions(p domain.Permissions) telego.ChatPermissions {
	allow := p == domain.PermissionsFull
	return telego.ChatPermissions{
		CanSendMessages:       &allow,
		CanSendAudios:         &allow,
		CanSendDocuments:      &allow,
		CanSendPhotos:         &allow,
		CanSendVideos:         &allow,
		CanSendVideoNotes:     &allow,
		CanSendVoiceNotes:     &allow,
		CanSendPolls:          &allow,
		CanSendOtherMessages:  &allow,
		CanAddWebPagePreviews: &allow,
	}
}

// untilDate returns the unix deadline of a timed restriction; zero means forever
func untilDate(now time.Time, minutes int) int64 {
	if minutes <= 0 {
		return 0
	}
	return now.Add(time.Duration(minutes) * time.Minute).Unix()
}
