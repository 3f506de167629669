package app

import (
	"context"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/position"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/rbac"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/util"
)

type CreateListInput struct {
	BoardID  string   `json:"boardId"`
	Title    string   `json:"title"`
	Position *float64 `json:"position"`
}

// UpdateListInput changes the title and/or the position. Index places the
// list among its siblings when Position is absent.
type UpdateListInput struct {
	Title    *string  `json:"title"`
	Position *float64 `json:"position"`
	Index    *int     `json:"index"`
}

func (s *Service) ListLists(ctx context.Context, actor Actor, boardID string) ([]store.List, error) {
	access, err := s.store.BoardAccess(ctx, boardID, actor.UserID)
	if err != nil {
		return nil, lookupError(err, "Board")
	}
	if _, err := authorize(access, actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListLists(ctx, boardID)
}

// CreateList appends the list to the board unless an explicit position is
// given.
func (s *Service) CreateList(ctx context.Context, actor Actor, in CreateListInput) (store.List, error) {
	if err := validateID("boardId", in.BoardID); err != nil {
		return store.List{}, err
	}
	title, err := validateTitle("title", in.Title)
	if err != nil {
		return store.List{}, err
	}

	var list store.List
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccess(ctx, in.BoardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Board")
		}
		if _, err := authorize(access, actor, rbac.ActionWrite); err != nil {
			return err
		}
		pos, err := placeList(ctx, q, in.BoardID, "", position.Target{Explicit: in.Position})
		if err != nil {
			return err
		}
		now := s.now().UTC()
		list = store.List{
			ID:        util.NewID("lst"),
			BoardID:   in.BoardID,
			Title:     title,
			Position:  pos,
			CreatedAt: now,
			UpdatedAt: now,
		}
		return q.InsertList(ctx, list)
	})
	if err != nil {
		return store.List{}, err
	}
	return list, nil
}

// UpdateList never changes the board a list belongs to.
func (s *Service) UpdateList(ctx context.Context, actor Actor, listID string, in UpdateListInput) (store.List, error) {
	var list store.List
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccessForList(ctx, listID, actor.UserID)
		if err != nil {
			return lookupError(err, "List")
		}
		if _, err := authorize(access, actor, rbac.ActionWrite); err != nil {
			return err
		}
		if list, err = q.GetList(ctx, listID); err != nil {
			return lookupError(err, "List")
		}
		if in.Title != nil {
			if list.Title, err = validateTitle("title", *in.Title); err != nil {
				return err
			}
		}
		if in.Position != nil || in.Index != nil {
			if list.Position, err = placeList(ctx, q, list.BoardID, list.ID, position.Target{Explicit: in.Position, Index: in.Index}); err != nil {
				return err
			}
		}
		list.UpdatedAt = s.now().UTC()
		return q.UpdateList(ctx, list)
	})
	if err != nil {
		return store.List{}, err
	}
	return list, nil
}

// DeleteList removes the list with its cards. Owner only.
func (s *Service) DeleteList(ctx context.Context, actor Actor, listID string) error {
	var keys, cardIDs []string
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccessForList(ctx, listID, actor.UserID)
		if err != nil {
			return lookupError(err, "List")
		}
		if _, err := authorize(access, actor, rbac.ActionAdminister); err != nil {
			return err
		}
		if keys, err = q.AttachmentKeysForList(ctx, listID); err != nil {
			return err
		}
		if cardIDs, err = q.CardIDsForList(ctx, listID); err != nil {
			return err
		}
		deleted, err := q.DeleteList(ctx, listID)
		if err != nil {
			return err
		}
		if !deleted {
			return notFound("List not found")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.releaseBlobs(ctx, keys)
	s.unindexCards(cardIDs)
	return nil
}

// placeList is placeCard for the lists of a board.
func placeList(ctx context.Context, q store.Querier, boardID, listID string, target position.Target) (float64, error) {
	siblings, err := q.ListSiblingPositions(ctx, boardID, listID)
	if err != nil {
		return 0, err
	}
	if pos, ok := position.Resolve(siblings, target); ok {
		return pos, nil
	}
	lists, err := q.ListLists(ctx, boardID)
	if err != nil {
		return 0, err
	}
	keys := position.Spread(len(siblings))
	i := 0
	for _, l := range lists {
		if l.ID == listID || i == len(keys) {
			continue
		}
		if err := q.SetListPosition(ctx, l.ID, keys[i]); err != nil {
			return 0, err
		}
		i++
	}
	pos, _ := position.Resolve(keys, target)
	return pos, nil
}
