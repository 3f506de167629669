package app

import (
	"context"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/rbac"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/util"
)

type CreateCommentInput struct {
	CardID  string `json:"cardId"`
	Content string `json:"content"`
}

// ListComments returns the card's comments newest first, with author names.
func (s *Service) ListComments(ctx context.Context, actor Actor, cardID string) ([]store.Comment, error) {
	access, err := s.store.BoardAccessForCard(ctx, cardID, actor.UserID)
	if err != nil {
		return nil, lookupError(err, "Card")
	}
	if _, err := authorize(access, actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListComments(ctx, cardID)
}

func (s *Service) CreateComment(ctx context.Context, actor Actor, in CreateCommentInput) (store.Comment, error) {
	if err := validateID("cardId", in.CardID); err != nil {
		return store.Comment{}, err
	}
	content, err := validateContent(in.Content)
	if err != nil {
		return store.Comment{}, err
	}

	var comment store.Comment
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccessForCard(ctx, in.CardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Card")
		}
		if _, err := authorize(access, actor, rbac.ActionWrite); err != nil {
			return err
		}
		id := util.NewID("cmt")
		if err := q.InsertComment(ctx, store.Comment{
			ID:        id,
			CardID:    in.CardID,
			UserID:    actor.UserID,
			Content:   content,
			CreatedAt: s.now().UTC(),
		}); err != nil {
			return err
		}
		comment, err = q.GetComment(ctx, id)
		return err
	})
	if err != nil {
		return store.Comment{}, err
	}
	return comment, nil
}

// DeleteComment is allowed to the comment's author and the board owner.
func (s *Service) DeleteComment(ctx context.Context, actor Actor, commentID string) error {
	return s.store.WithTx(ctx, func(q store.Querier) error {
		comment, err := q.GetComment(ctx, commentID)
		if err != nil {
			return lookupError(err, "Comment")
		}
		access, err := q.BoardAccessForCard(ctx, comment.CardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Comment")
		}
		role := rbac.Resolve(actor.UserID, access.OwnerID, access.MemberRole)
		if !rbac.CanDeleteAuthored(role, actor.UserID, comment.UserID) {
			return forbidden("Only the author or the board owner can delete this comment")
		}
		deleted, err := q.DeleteComment(ctx, commentID)
		if err != nil {
			return err
		}
		if !deleted {
			return notFound("Comment not found")
		}
		return nil
	})
}
