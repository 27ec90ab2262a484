package service

import (
	"fmt"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/internal/modules/notification/dto"
	"anoa.com/notifyhub/internal/modules/notification/metadata"
	"github.com/microcosm-cc/bluemonday"
)

type previewBuilder func(actor entity.ActorProfile, meta metadata.MetaData) dto.Preview

var sanitizer = bluemonday.StrictPolicy()

var previewBuilders = map[entity.NotificationType]previewBuilder{
	entity.NotificationTypePostLike:      actorPreview("%s liked your post."),
	entity.NotificationTypeCommentAdded:  commentPreview,
	entity.NotificationTypeCommentLike:   actorPreview("%s liked your comment."),
	entity.NotificationTypeFollow:        actorPreview("%s started following you."),
	entity.NotificationTypeFollowRequest: actorPreview("%s requested to follow you."),
	entity.NotificationTypeFollowAccept:  actorPreview("%s accepted your follow request."),
}

func init() {
	for _, t := range entity.AllNotificationTypes {
		if _, ok := previewBuilders[t]; !ok {
			panic(fmt.Sprintf("notification type %s has no preview builder", t))
		}
	}
}

func actorPreview(format string) previewBuilder {
	return func(actor entity.ActorProfile, _ metadata.MetaData) dto.Preview {
		nick := sanitizer.Sanitize(actor.Nickname)
		return dto.Preview{
			Title:    nick,
			Body:     fmt.Sprintf(format, nick),
			ImageURL: actor.ProfileImageURL,
		}
	}
}

func commentPreview(actor entity.ActorProfile, meta metadata.MetaData) dto.Preview {
	var excerpt string
	if m, ok := meta.(metadata.PostCommentMeta); ok {
		excerpt = sanitizer.Sanitize(m.CommentExcerpt)
	}
	return dto.Preview{
		Title:    sanitizer.Sanitize(actor.Nickname),
		Body:     "New comment: " + excerpt,
		ImageURL: actor.ProfileImageURL,
	}
}

// BuildPreview renders the human readable summary for a notification.
func BuildPreview(t entity.NotificationType, actor entity.ActorProfile, meta metadata.MetaData) dto.Preview {
	return previewBuilders[t](actor, meta)
}
