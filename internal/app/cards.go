package app

import (
	"context"
	"time"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/position"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/rbac"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/util"
)

type CreateCardInput struct {
	ListID      string     `json:"listId"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Position    *float64   `json:"position"`
	Color       *string    `json:"color"`
	DueDate     *time.Time `json:"dueDate"`
}

// UpdateCardInput only touches fields that are present. Description, Color
// and DueDate may be cleared with an explicit null. A patch with no fields
// leaves the card, including updated_at, untouched.
type UpdateCardInput struct {
	Title       *string          `json:"title"`
	Description Patch[string]    `json:"description"`
	Color       Patch[string]    `json:"color"`
	DueDate     Patch[time.Time] `json:"dueDate"`
	Position    *float64         `json:"position"`
}

// MoveCardInput names the destination list (empty keeps the current list)
// and where in it the card lands: an explicit Position, an Index among the
// destination's cards, or the end when neither is set.
type MoveCardInput struct {
	ListID   string   `json:"listId"`
	Position *float64 `json:"position"`
	Index    *int     `json:"index"`
}

func (s *Service) ListCards(ctx context.Context, actor Actor, listID string) ([]store.Card, error) {
	access, err := s.store.BoardAccessForList(ctx, listID, actor.UserID)
	if err != nil {
		return nil, lookupError(err, "List")
	}
	if _, err := authorize(access, actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListCards(ctx, listID)
}

func (s *Service) CreateCard(ctx context.Context, actor Actor, in CreateCardInput) (store.Card, error) {
	if err := validateID("listId", in.ListID); err != nil {
		return store.Card{}, err
	}
	title, err := validateTitle("title", in.Title)
	if err != nil {
		return store.Card{}, err
	}
	var color *string
	if in.Color != nil {
		c, err := validateColor(*in.Color)
		if err != nil {
			return store.Card{}, err
		}
		color = &c
	}

	var (
		card    store.Card
		boardID string
	)
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccessForList(ctx, in.ListID, actor.UserID)
		if err != nil {
			return lookupError(err, "List")
		}
		if _, err := authorize(access, actor, rbac.ActionWrite); err != nil {
			return err
		}
		boardID = access.BoardID
		pos, err := placeCard(ctx, q, in.ListID, "", position.Target{Explicit: in.Position})
		if err != nil {
			return err
		}
		now := s.now().UTC()
		card = store.Card{
			ID:          util.NewID("crd"),
			ListID:      in.ListID,
			Title:       title,
			Description: in.Description,
			Position:    pos,
			Color:       color,
			DueDate:     utcPtr(in.DueDate),
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		return q.InsertCard(ctx, card)
	})
	if err != nil {
		return store.Card{}, err
	}

	s.logActivity(ctx, actor, boardID, "card_created", map[string]any{
		"card_id": card.ID,
		"list_id": card.ListID,
		"title":   card.Title,
	})
	s.indexCard(boardID, card)
	return card, nil
}

func (s *Service) UpdateCard(ctx context.Context, actor Actor, cardID string, in UpdateCardInput) (store.Card, error) {
	var (
		card    store.Card
		boardID string
		changed []string
	)
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccessForCard(ctx, cardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Card")
		}
		if _, err := authorize(access, actor, rbac.ActionWrite); err != nil {
			return err
		}
		boardID = access.BoardID
		if card, err = q.GetCard(ctx, cardID); err != nil {
			return lookupError(err, "Card")
		}

		if in.Title != nil {
			if card.Title, err = validateTitle("title", *in.Title); err != nil {
				return err
			}
			changed = append(changed, "title")
		}
		if in.Description.Set {
			card.Description = in.Description.Value
			changed = append(changed, "description")
		}
		if in.Color.Set {
			card.Color = nil
			if in.Color.Value != nil {
				c, err := validateColor(*in.Color.Value)
				if err != nil {
					return err
				}
				card.Color = &c
			}
			changed = append(changed, "color")
		}
		if in.DueDate.Set {
			card.DueDate = utcPtr(in.DueDate.Value)
			changed = append(changed, "due_date")
		}
		if in.Position != nil {
			card.Position = *in.Position
			changed = append(changed, "position")
		}
		if len(changed) == 0 {
			return nil
		}
		card.UpdatedAt = s.now().UTC()
		return q.UpdateCard(ctx, card)
	})
	if err != nil {
		return store.Card{}, err
	}
	if len(changed) == 0 {
		return card, nil
	}

	s.logActivity(ctx, actor, boardID, "card_updated", map[string]any{
		"card_id": card.ID,
		"fields":  changed,
	})
	s.indexCard(boardID, card)
	return card, nil
}

// MoveCard reassigns a card's list and position. Moving a card onto the
// slot it already occupies succeeds without writing.
func (s *Service) MoveCard(ctx context.Context, actor Actor, cardID string, in MoveCardInput) (store.Card, error) {
	var (
		card     store.Card
		boardID  string
		fromList string
		moved    bool
	)
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccessForCard(ctx, cardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Card")
		}
		if _, err := authorize(access, actor, rbac.ActionWrite); err != nil {
			return err
		}
		boardID = access.BoardID
		if card, err = q.GetCard(ctx, cardID); err != nil {
			return lookupError(err, "Card")
		}
		fromList = card.ListID

		target := in.ListID
		if target == "" {
			target = card.ListID
		}
		if target != card.ListID {
			dest, err := q.BoardAccessForList(ctx, target, actor.UserID)
			if err != nil {
				return lookupError(err, "List")
			}
			if dest.BoardID != access.BoardID {
				return invalidInput("listId", "Cards can only move between lists of the same board")
			}
		}

		pos, err := placeCard(ctx, q, target, card.ID, position.Target{Explicit: in.Position, Index: in.Index})
		if err != nil {
			return err
		}
		if target == card.ListID && pos == card.Position {
			return nil
		}

		card.ListID = target
		card.Position = pos
		card.UpdatedAt = s.now().UTC()
		moved = true
		return q.UpdateCard(ctx, card)
	})
	if err != nil {
		return store.Card{}, err
	}
	if !moved {
		return card, nil
	}

	s.logActivity(ctx, actor, boardID, "card_moved", map[string]any{
		"card_id":      card.ID,
		"from_list_id": fromList,
		"to_list_id":   card.ListID,
		"position":     card.Position,
	})
	s.indexCard(boardID, card)
	return card, nil
}

// DeleteCard removes the card with its comments and attachments. Owner only.
func (s *Service) DeleteCard(ctx context.Context, actor Actor, cardID string) error {
	var (
		card    store.Card
		boardID string
		keys    []string
	)
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccessForCard(ctx, cardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Card")
		}
		if _, err := authorize(access, actor, rbac.ActionAdminister); err != nil {
			return err
		}
		boardID = access.BoardID
		if card, err = q.GetCard(ctx, cardID); err != nil {
			return lookupError(err, "Card")
		}
		if keys, err = q.AttachmentKeysForCard(ctx, cardID); err != nil {
			return err
		}
		deleted, err := q.DeleteCard(ctx, cardID)
		if err != nil {
			return err
		}
		if !deleted {
			return notFound("Card not found")
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.releaseBlobs(ctx, keys)
	s.unindexCards([]string{cardID})
	s.logActivity(ctx, actor, boardID, "card_deleted", map[string]any{
		"card_id": card.ID,
		"list_id": card.ListID,
		"title":   card.Title,
	})
	return nil
}

// placeCard resolves target among the cards of listID other than cardID.
// When the neighbouring keys are too close to split, the other cards are
// renumbered in place (order unchanged) and target is resolved again.
func placeCard(ctx context.Context, q store.Querier, listID, cardID string, target position.Target) (float64, error) {
	siblings, err := q.CardSiblingPositions(ctx, listID, cardID)
	if err != nil {
		return 0, err
	}
	if pos, ok := position.Resolve(siblings, target); ok {
		return pos, nil
	}
	cards, err := q.ListCards(ctx, listID)
	if err != nil {
		return 0, err
	}
	keys := position.Spread(len(siblings))
	i := 0
	for _, c := range cards {
		if c.ID == cardID || i == len(keys) {
			continue
		}
		if err := q.SetCardPosition(ctx, c.ID, keys[i]); err != nil {
			return 0, err
		}
		i++
	}
	pos, _ := position.Resolve(keys, target)
	return pos, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
