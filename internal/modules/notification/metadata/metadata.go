// Package metadata converts untyped event payloads into the closed set of
// per-type notification metadata variants.
package metadata

import (
	"fmt"

	"anoa.com/notifyhub/internal/entity"
	"anoa.com/notifyhub/pkg/apperror"
	"anoa.com/notifyhub/pkg/validator"
	"github.com/goccy/go-json"
	"gorm.io/datatypes"
)

// MetaData is implemented only by the variants in this package.
type MetaData interface {
	Type() entity.NotificationType
	sealed()
}

type PostLikeMeta struct {
	PostID string `json:"postId"`
}

type PostCommentMeta struct {
	PostID         string `json:"postId"`
	CommentID      string `json:"commentId"`
	CommentExcerpt string `json:"commentExcerpt"`
}

type CommentLikeMeta struct {
	PostID         string `json:"postId"`
	CommentID      string `json:"commentId"`
	CommentExcerpt string `json:"commentExcerpt"`
}

type FollowMeta struct{}

type FollowRequestMeta struct{}

type FollowAcceptMeta struct{}

func (PostLikeMeta) Type() entity.NotificationType      { return entity.NotificationTypePostLike }
func (PostCommentMeta) Type() entity.NotificationType   { return entity.NotificationTypeCommentAdded }
func (CommentLikeMeta) Type() entity.NotificationType   { return entity.NotificationTypeCommentLike }
func (FollowMeta) Type() entity.NotificationType        { return entity.NotificationTypeFollow }
func (FollowRequestMeta) Type() entity.NotificationType { return entity.NotificationTypeFollowRequest }
func (FollowAcceptMeta) Type() entity.NotificationType  { return entity.NotificationTypeFollowAccept }

func (PostLikeMeta) sealed()      {}
func (PostCommentMeta) sealed()   {}
func (CommentLikeMeta) sealed()   {}
func (FollowMeta) sealed()        {}
func (FollowRequestMeta) sealed() {}
func (FollowAcceptMeta) sealed()  {}

// DecodeError is returned for every payload that cannot become a variant.
type DecodeError struct {
	Type   entity.NotificationType
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s metadata: %s", e.Type, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return apperror.ErrDecode
}

// Decode builds the variant owned by t from raw. Every required key must be
// present with a string value. Empty strings are kept; nothing is defaulted.
func Decode(t entity.NotificationType, raw map[string]any) (MetaData, error) {
	switch t {
	case entity.NotificationTypePostLike:
		return decodeInto[postLikeWire](t, raw)
	case entity.NotificationTypeCommentAdded:
		return decodeInto[postCommentWire](t, raw)
	case entity.NotificationTypeCommentLike:
		return decodeInto[commentLikeWire](t, raw)
	case entity.NotificationTypeFollow:
		return FollowMeta{}, nil
	case entity.NotificationTypeFollowRequest:
		return FollowRequestMeta{}, nil
	case entity.NotificationTypeFollowAccept:
		return FollowAcceptMeta{}, nil
	default:
		return nil, &DecodeError{Type: t, Reason: "unknown notification type"}
	}
}

// Wire forms use pointers so that required means present, not non-empty.
type postLikeWire struct {
	PostID *string `json:"postId" validate:"required"`
}

type commentWire struct {
	PostID         *string `json:"postId" validate:"required"`
	CommentID      *string `json:"commentId" validate:"required"`
	CommentExcerpt *string `json:"commentExcerpt" validate:"required"`
}

type postCommentWire commentWire

type commentLikeWire commentWire

func (w postLikeWire) variant() MetaData {
	return PostLikeMeta{PostID: *w.PostID}
}

func (w postCommentWire) variant() MetaData {
	return PostCommentMeta{PostID: *w.PostID, CommentID: *w.CommentID, CommentExcerpt: *w.CommentExcerpt}
}

func (w commentLikeWire) variant() MetaData {
	return CommentLikeMeta{PostID: *w.PostID, CommentID: *w.CommentID, CommentExcerpt: *w.CommentExcerpt}
}

type wire interface {
	postLikeWire | postCommentWire | commentLikeWire
	variant() MetaData
}

func decodeInto[W wire](t entity.NotificationType, raw map[string]any) (MetaData, error) {
	if raw == nil {
		return nil, &DecodeError{Type: t, Reason: "metadata is missing"}
	}

	b, err := json.Marshal(raw)
	if err != nil {
		return nil, &DecodeError{Type: t, Reason: err.Error()}
	}

	var w W
	if err := json.Unmarshal(b, &w); err != nil {
		return nil, &DecodeError{Type: t, Reason: err.Error()}
	}
	if err := validator.Struct(w); err != nil {
		return nil, &DecodeError{Type: t, Reason: err.Error()}
	}
	return w.variant(), nil
}

// Encode is the storage form of m.
func Encode(m MetaData) (datatypes.JSON, error) {
	if m == nil {
		return nil, &DecodeError{Reason: "metadata is nil"}
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s metadata: %w", m.Type(), err)
	}
	return datatypes.JSON(b), nil
}

// Parse restores the variant of a stored row. Stored rows go through the same
// checks as inbound payloads.
func Parse(t entity.NotificationType, stored datatypes.JSON) (MetaData, error) {
	raw := map[string]any{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &raw); err != nil {
			return nil, &DecodeError{Type: t, Reason: err.Error()}
		}
	}
	return Decode(t, raw)
}
