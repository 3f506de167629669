package app

import (
	"context"
	"errors"
	"strings"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/email"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/rbac"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/util"
)

type CreateBoardInput struct {
	Title string  `json:"title"`
	Color *string `json:"color"`
}

type UpdateBoardInput struct {
	Title *string `json:"title"`
	Color *string `json:"color"`
}

// AddMemberInput names the new member by id or by email.
type AddMemberInput struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// ListBoards returns boards the actor owns or is a member of, newest first.
func (s *Service) ListBoards(ctx context.Context, actor Actor) ([]store.Board, error) {
	return s.store.ListBoardsForUser(ctx, actor.UserID)
}

func (s *Service) CreateBoard(ctx context.Context, actor Actor, in CreateBoardInput) (store.Board, error) {
	title, err := validateTitle("title", in.Title)
	if err != nil {
		return store.Board{}, err
	}
	color := defaultColor
	if in.Color != nil && strings.TrimSpace(*in.Color) != "" {
		if color, err = validateColor(*in.Color); err != nil {
			return store.Board{}, err
		}
	}

	now := s.now().UTC()
	board := store.Board{
		ID:        util.NewID("brd"),
		Title:     title,
		Color:     color,
		OwnerID:   actor.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertBoard(ctx, board); err != nil {
		return store.Board{}, err
	}
	return board, nil
}

func (s *Service) GetBoard(ctx context.Context, actor Actor, boardID string) (store.Board, error) {
	access, err := s.store.BoardAccess(ctx, boardID, actor.UserID)
	if err != nil {
		return store.Board{}, lookupError(err, "Board")
	}
	if _, err := authorize(access, actor, rbac.ActionRead); err != nil {
		return store.Board{}, err
	}
	board, err := s.store.GetBoard(ctx, boardID)
	if err != nil {
		return store.Board{}, lookupError(err, "Board")
	}
	return board, nil
}

func (s *Service) UpdateBoard(ctx context.Context, actor Actor, boardID string, in UpdateBoardInput) (store.Board, error) {
	var board store.Board
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccess(ctx, boardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Board")
		}
		if _, err := authorize(access, actor, rbac.ActionAdminister); err != nil {
			return err
		}
		if board, err = q.GetBoard(ctx, boardID); err != nil {
			return lookupError(err, "Board")
		}
		if in.Title != nil {
			if board.Title, err = validateTitle("title", *in.Title); err != nil {
				return err
			}
		}
		if in.Color != nil {
			if board.Color, err = validateColor(*in.Color); err != nil {
				return err
			}
		}
		board.UpdatedAt = s.now().UTC()
		return q.UpdateBoard(ctx, board)
	})
	if err != nil {
		return store.Board{}, err
	}
	return board, nil
}

// DeleteBoard removes the board and everything beneath it. Attachment files
// are released once the rows are gone.
func (s *Service) DeleteBoard(ctx context.Context, actor Actor, boardID string) error {
	var keys, cardIDs []string
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccess(ctx, boardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Board")
		}
		if _, err := authorize(access, actor, rbac.ActionAdminister); err != nil {
			return err
		}
		if keys, err = q.AttachmentKeysForBoard(ctx, boardID); err != nil {
			return err
		}
		if cardIDs, err = q.CardIDsForBoard(ctx, boardID); err != nil {
			return err
		}
		deleted, err := q.DeleteBoard(ctx, boardID)
		if err != nil {
			return err
		}
		if !deleted {
			return notFound("Board not found")
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

func (s *Service) ListMembers(ctx context.Context, actor Actor, boardID string) ([]store.Member, error) {
	access, err := s.store.BoardAccess(ctx, boardID, actor.UserID)
	if err != nil {
		return nil, lookupError(err, "Board")
	}
	if _, err := authorize(access, actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, boardID)
}

// AddMember grants a user access to the board, or changes the role of an
// existing member. Owner only.
func (s *Service) AddMember(ctx context.Context, actor Actor, boardID string, in AddMemberInput) (store.Member, error) {
	role := strings.TrimSpace(in.Role)
	if role == "" {
		role = string(rbac.RoleMember)
	}
	if role != string(rbac.RoleMember) && role != string(rbac.RoleAdmin) {
		return store.Member{}, invalidInput("role", "role must be member or admin")
	}
	if strings.TrimSpace(in.UserID) == "" && strings.TrimSpace(in.Email) == "" {
		return store.Member{}, invalidInput("email", "email or userId is required")
	}

	var (
		board  store.Board
		member store.Member
	)
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccess(ctx, boardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Board")
		}
		if _, err := authorize(access, actor, rbac.ActionAdminister); err != nil {
			return err
		}
		if board, err = q.GetBoard(ctx, boardID); err != nil {
			return lookupError(err, "Board")
		}

		var user store.User
		if id := strings.TrimSpace(in.UserID); id != "" {
			user, err = q.GetUserByID(ctx, id)
		} else {
			user, err = q.GetUserByEmail(ctx, strings.TrimSpace(in.Email))
		}
		if errors.Is(err, store.ErrNotFound) {
			return invalidInput("email", "No user with that email or id")
		}
		if err != nil {
			return err
		}
		if user.ID == access.OwnerID {
			return invalidInput("userId", "The owner is already on the board")
		}

		membership := store.Membership{
			BoardID:   boardID,
			UserID:    user.ID,
			Role:      role,
			CreatedAt: s.now().UTC(),
		}
		if err := q.UpsertMember(ctx, membership); err != nil {
			return err
		}
		member = store.Member{Membership: membership, Name: user.Name, Email: user.Email, Avatar: user.Avatar}
		return nil
	})
	if err != nil {
		return store.Member{}, err
	}
	s.notifyMemberAdded(ctx, actor, board, member)
	return member, nil
}

func (s *Service) notifyMemberAdded(ctx context.Context, actor Actor, board store.Board, member store.Member) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	inviter := ""
	if user, err := s.store.GetUserByID(ctx, actor.UserID); err == nil {
		inviter = user.Name
	}
	data := email.MemberAddedData{
		AppName:     "Glide",
		MemberName:  member.Name,
		InviterName: inviter,
		BoardTitle:  board.Title,
		BoardURL:    strings.TrimRight(s.cfg.FrontendURL, "/") + "/boards/" + board.ID,
	}
	go func() {
		if err := s.mailer.SendMemberAdded(member.Email, data); err != nil {
			s.logger.Warn("member added email failed", "board_id", board.ID, "user_id", member.UserID, "error", err)
		}
	}()
}

func (s *Service) RemoveMember(ctx context.Context, actor Actor, boardID, userID string) error {
	return s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccess(ctx, boardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Board")
		}
		if _, err := authorize(access, actor, rbac.ActionAdminister); err != nil {
			return err
		}
		if userID == access.OwnerID {
			return invalidInput("userId", "The owner cannot be removed")
		}
		removed, err := q.RemoveMember(ctx, boardID, userID)
		if err != nil {
			return err
		}
		if !removed {
			return notFound("Member not found")
		}
		return nil
	})
}
