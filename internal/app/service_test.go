package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/blob"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/position"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
)

func TestCreateListPositionsFollowSiblings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")

	board, err := env.svc.CreateBoard(ctx, owner, CreateBoardInput{Title: "Fresh"})
	require.NoError(t, err)

	todo, err := env.svc.CreateList(ctx, owner, CreateListInput{BoardID: board.ID, Title: "Todo"})
	require.NoError(t, err)
	assert.Equal(t, position.Baseline, todo.Position)

	doing, err := env.svc.CreateList(ctx, owner, CreateListInput{BoardID: board.ID, Title: "Doing"})
	require.NoError(t, err)
	assert.Greater(t, doing.Position, todo.Position)

	_, err = env.svc.CreateList(ctx, owner, CreateListInput{BoardID: board.ID, Title: "Later", Position: ptr(42.5)})
	require.NoError(t, err)
	done, err := env.svc.CreateList(ctx, owner, CreateListInput{BoardID: board.ID, Title: "Done"})
	require.NoError(t, err)
	assert.Greater(t, done.Position, 42.5)

	lists, err := env.svc.ListLists(ctx, owner, board.ID)
	require.NoError(t, err)
	require.Len(t, lists, 4)
	assert.Equal(t, []string{"Todo", "Doing", "Later", "Done"}, []string{lists[0].Title, lists[1].Title, lists[2].Title, lists[3].Title})
}

func TestCreateCardPositionExceedsSiblings(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	_, list, first := env.board(t, owner)

	assert.Equal(t, position.Baseline, first.Position)
	_, err := env.svc.CreateCard(ctx, owner, CreateCardInput{ListID: list.ID, Title: "Pinned", Position: ptr(7.0)})
	require.NoError(t, err)

	next, err := env.svc.CreateCard(ctx, owner, CreateCardInput{ListID: list.ID, Title: "Appended"})
	require.NoError(t, err)
	assert.Greater(t, next.Position, 7.0)
}

func TestNonMemberIsForbiddenEverywhere(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	stranger := env.user(t, "usr_stranger")
	board, list, card := env.board(t, owner)

	comment, err := env.svc.CreateComment(ctx, owner, CreateCommentInput{CardID: card.ID, Content: "first"})
	require.NoError(t, err)
	attachment := env.upload(t, owner, card.ID, "notes.txt", "hello")

	checks := map[string]func() error{
		"get board":   func() error { _, err := env.svc.GetBoard(ctx, stranger, board.ID); return err },
		"update board": func() error {
			_, err := env.svc.UpdateBoard(ctx, stranger, board.ID, UpdateBoardInput{Title: ptr("x")})
			return err
		},
		"delete board":   func() error { return env.svc.DeleteBoard(ctx, stranger, board.ID) },
		"list members":   func() error { _, err := env.svc.ListMembers(ctx, stranger, board.ID); return err },
		"add member":     func() error { _, err := env.svc.AddMember(ctx, stranger, board.ID, AddMemberInput{UserID: stranger.UserID}); return err },
		"list lists":     func() error { _, err := env.svc.ListLists(ctx, stranger, board.ID); return err },
		"create list":    func() error { _, err := env.svc.CreateList(ctx, stranger, CreateListInput{BoardID: board.ID, Title: "x"}); return err },
		"update list":    func() error { _, err := env.svc.UpdateList(ctx, stranger, list.ID, UpdateListInput{Title: ptr("x")}); return err },
		"delete list":    func() error { return env.svc.DeleteList(ctx, stranger, list.ID) },
		"list cards":     func() error { _, err := env.svc.ListCards(ctx, stranger, list.ID); return err },
		"create card":    func() error { _, err := env.svc.CreateCard(ctx, stranger, CreateCardInput{ListID: list.ID, Title: "x"}); return err },
		"update card":    func() error { _, err := env.svc.UpdateCard(ctx, stranger, card.ID, UpdateCardInput{Title: ptr("x")}); return err },
		"move card":      func() error { _, err := env.svc.MoveCard(ctx, stranger, card.ID, MoveCardInput{Index: ptr(0)}); return err },
		"delete card":    func() error { return env.svc.DeleteCard(ctx, stranger, card.ID) },
		"list comments":  func() error { _, err := env.svc.ListComments(ctx, stranger, card.ID); return err },
		"create comment": func() error { _, err := env.svc.CreateComment(ctx, stranger, CreateCommentInput{CardID: card.ID, Content: "x"}); return err },
		"delete comment": func() error { return env.svc.DeleteComment(ctx, stranger, comment.ID) },
		"list attachments": func() error {
			_, err := env.svc.ListAttachments(ctx, stranger, card.ID)
			return err
		},
		"upload attachment": func() error {
			_, err := env.svc.UploadAttachment(ctx, stranger, UploadInput{CardID: card.ID, FileName: "a.txt", Size: 1, Body: bytes.NewReader([]byte("a"))})
			return err
		},
		"delete attachment": func() error { return env.svc.DeleteAttachment(ctx, stranger, attachment.ID) },
		"open attachment": func() error {
			_, _, err := env.svc.OpenAttachmentFile(ctx, stranger, attachment.StorageKey)
			return err
		},
		"search":   func() error { _, err := env.svc.SearchCards(ctx, stranger, board.ID, "launch", 0); return err },
		"activity": func() error { _, err := env.svc.ListActivity(ctx, stranger, board.ID, 0); return err },
		"realtime": func() error { return env.svc.CanAccessBoard(ctx, stranger.UserID, board.ID) },
	}
	for name, call := range checks {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, call(), ErrForbidden)
		})
	}

	boards, err := env.svc.ListBoards(ctx, stranger)
	require.NoError(t, err)
	assert.Empty(t, boards)

	cards, err := env.svc.ListCards(ctx, owner, list.ID)
	require.NoError(t, err)
	require.Len(t, cards, 1)
	assert.Equal(t, card.Title, cards[0].Title)
}

func TestMissingEntitiesAreNotFound(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")

	_, err := env.svc.GetBoard(ctx, owner, "brd_missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.svc.CreateCard(ctx, owner, CreateCardInput{ListID: "lst_missing", Title: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, env.svc.DeleteComment(ctx, owner, "cmt_missing"), ErrNotFound)
}

func TestDeleteBoardCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	board, list, card := env.board(t, owner)

	comment, err := env.svc.CreateComment(ctx, owner, CreateCommentInput{CardID: card.ID, Content: "ship it"})
	require.NoError(t, err)
	attachment := env.upload(t, owner, card.ID, "plan.txt", "the plan")

	require.NoError(t, env.svc.DeleteBoard(ctx, owner, board.ID))

	_, err = env.store.GetBoard(ctx, board.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.store.GetList(ctx, list.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.store.GetCard(ctx, card.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.store.GetComment(ctx, comment.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = env.store.GetAttachment(ctx, attachment.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, _, err = env.blobs.Open(ctx, attachment.StorageKey)
	assert.ErrorIs(t, err, blob.ErrNotFound)

	_, err = env.svc.GetBoard(ctx, owner, board.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMoveCardBetweenListsChangesCounts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	board, listA, card := env.board(t, owner)
	_, err := env.svc.CreateCard(ctx, owner, CreateCardInput{ListID: listA.ID, Title: "Stays"})
	require.NoError(t, err)

	listB, err := env.svc.CreateList(ctx, owner, CreateListInput{BoardID: board.ID, Title: "Done"})
	require.NoError(t, err)
	_, err = env.svc.CreateCard(ctx, owner, CreateCardInput{ListID: listB.ID, Title: "Already done"})
	require.NoError(t, err)

	beforeA, _ := env.svc.ListCards(ctx, owner, listA.ID)
	beforeB, _ := env.svc.ListCards(ctx, owner, listB.ID)

	moved, err := env.svc.MoveCard(ctx, owner, card.ID, MoveCardInput{ListID: listB.ID})
	require.NoError(t, err)
	assert.Equal(t, listB.ID, moved.ListID)

	afterA, _ := env.svc.ListCards(ctx, owner, listA.ID)
	afterB, _ := env.svc.ListCards(ctx, owner, listB.ID)
	assert.Len(t, afterA, len(beforeA)-1)
	assert.Len(t, afterB, len(beforeB)+1)
	for _, c := range afterA {
		assert.NotEqual(t, card.ID, c.ID)
	}
	assert.Equal(t, card.ID, afterB[len(afterB)-1].ID)
}

func TestMoveCardIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	board, _, card := env.board(t, owner)
	listB, err := env.svc.CreateList(ctx, owner, CreateListInput{BoardID: board.ID, Title: "Done"})
	require.NoError(t, err)
	_, err = env.svc.CreateCard(ctx, owner, CreateCardInput{ListID: listB.ID, Title: "Existing"})
	require.NoError(t, err)

	move := MoveCardInput{ListID: listB.ID, Index: ptr(0)}
	first, err := env.svc.MoveCard(ctx, owner, card.ID, move)
	require.NoError(t, err)
	once, err := env.svc.ListCards(ctx, owner, listB.ID)
	require.NoError(t, err)

	second, err := env.svc.MoveCard(ctx, owner, card.ID, move)
	require.NoError(t, err)
	twice, err := env.svc.ListCards(ctx, owner, listB.ID)
	require.NoError(t, err)

	assert.Equal(t, first.Position, second.Position)
	assert.Equal(t, once, twice)
	assert.Equal(t, card.ID, twice[0].ID)

	explicit := MoveCardInput{ListID: listB.ID, Position: ptr(first.Position)}
	third, err := env.svc.MoveCard(ctx, owner, card.ID, explicit)
	require.NoError(t, err)
	assert.True(t, first.UpdatedAt.Equal(third.UpdatedAt))
}

func TestMoveCardRejectsForeignBoardList(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	_, _, card := env.board(t, owner)
	_, otherList, _ := env.board(t, owner)

	_, err := env.svc.MoveCard(ctx, owner, card.ID, MoveCardInput{ListID: otherList.ID})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRepeatedIndexMovesKeepOrder(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	board, list, _ := env.board(t, owner)

	var cards []store.Card
	for _, title := range []string{"b", "c", "d"} {
		c, err := env.svc.CreateCard(ctx, owner, CreateCardInput{ListID: list.ID, Title: title})
		require.NoError(t, err)
		cards = append(cards, c)
	}
	for i := 0; i < 200; i++ {
		mover := cards[1+i%2]
		_, err := env.svc.MoveCard(ctx, owner, mover.ID, MoveCardInput{Index: ptr(2)})
		require.NoError(t, err)

		got, err := env.svc.ListCards(ctx, owner, list.ID)
		require.NoError(t, err)
		require.Len(t, got, 4)
		require.Equal(t, mover.ID, got[2].ID, "move %d", i)
		for j := 1; j < len(got); j++ {
			require.Less(t, got[j-1].Position, got[j].Position, "move %d", i)
		}
	}

	var lists []store.List
	for _, title := range []string{"Doing", "Review", "Done"} {
		l, err := env.svc.CreateList(ctx, owner, CreateListInput{BoardID: board.ID, Title: title})
		require.NoError(t, err)
		lists = append(lists, l)
	}
	for i := 0; i < 200; i++ {
		mover := lists[1+i%2]
		_, err := env.svc.UpdateList(ctx, owner, mover.ID, UpdateListInput{Index: ptr(2)})
		require.NoError(t, err)

		got, err := env.svc.ListLists(ctx, owner, board.ID)
		require.NoError(t, err)
		require.Len(t, got, 4)
		require.Equal(t, mover.ID, got[2].ID, "move %d", i)
		for j := 1; j < len(got); j++ {
			require.Less(t, got[j-1].Position, got[j].Position, "move %d", i)
		}
	}
}

func TestUpdateCardOnlyTouchesPresentFields(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	_, list, _ := env.board(t, owner)

	due := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	card, err := env.svc.CreateCard(ctx, owner, CreateCardInput{
		ListID:      list.ID,
		Title:       "Draft",
		Description: ptr("long form"),
		Color:       ptr("green"),
		DueDate:     &due,
		Position:    ptr(3.0),
	})
	require.NoError(t, err)

	var patch UpdateCardInput
	require.NoError(t, json.Unmarshal([]byte(`{"title":"Final"}`), &patch))
	updated, err := env.svc.UpdateCard(ctx, owner, card.ID, patch)
	require.NoError(t, err)

	stored, err := env.store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	for _, c := range []store.Card{updated, stored} {
		assert.Equal(t, "Final", c.Title)
		require.NotNil(t, c.Description)
		assert.Equal(t, "long form", *c.Description)
		require.NotNil(t, c.Color)
		assert.Equal(t, "green", *c.Color)
		require.NotNil(t, c.DueDate)
		assert.True(t, due.Equal(*c.DueDate))
		assert.Equal(t, 3.0, c.Position)
	}

	var clearing UpdateCardInput
	require.NoError(t, json.Unmarshal([]byte(`{"description":null,"dueDate":null}`), &clearing))
	cleared, err := env.svc.UpdateCard(ctx, owner, card.ID, clearing)
	require.NoError(t, err)
	assert.Nil(t, cleared.Description)
	assert.Nil(t, cleared.DueDate)
	assert.Equal(t, "Final", cleared.Title)
	require.NotNil(t, cleared.Color)
}

func TestEmptyCardPatchWritesNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	board, _, card := env.board(t, owner)

	var patch UpdateCardInput
	require.NoError(t, json.Unmarshal([]byte(`{}`), &patch))
	got, err := env.svc.UpdateCard(ctx, owner, card.ID, patch)
	require.NoError(t, err)
	assert.True(t, card.UpdatedAt.Equal(got.UpdatedAt))

	stored, err := env.store.GetCard(ctx, card.ID)
	require.NoError(t, err)
	assert.True(t, card.UpdatedAt.Equal(stored.UpdatedAt))

	entries, err := env.svc.ListActivity(ctx, owner, board.ID, 0)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotEqual(t, "card_updated", e.Action)
	}
}

func TestLaunchScenario(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.user(t, "usr_alice")
	bob := env.user(t, "usr_bob")

	board, err := env.svc.CreateBoard(ctx, alice, CreateBoardInput{Title: "Launch"})
	require.NoError(t, err)
	assert.Equal(t, "blue", board.Color)

	_, err = env.svc.GetBoard(ctx, bob, board.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	member, err := env.svc.AddMember(ctx, alice, board.ID, AddMemberInput{Email: "USR_BOB@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "member", member.Role)
	assert.Equal(t, bob.UserID, member.UserID)

	got, err := env.svc.GetBoard(ctx, bob, board.ID)
	require.NoError(t, err)
	assert.Equal(t, "Launch", got.Title)

	boards, err := env.svc.ListBoards(ctx, bob)
	require.NoError(t, err)
	require.Len(t, boards, 1)

	_, err = env.svc.UpdateBoard(ctx, bob, board.ID, UpdateBoardInput{Title: ptr("Mine now")})
	assert.ErrorIs(t, err, ErrForbidden)

	require.NoError(t, env.svc.RemoveMember(ctx, alice, board.ID, bob.UserID))
	_, err = env.svc.GetBoard(ctx, bob, board.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestAddMemberValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	board, _, _ := env.board(t, owner)

	_, err := env.svc.AddMember(ctx, owner, board.ID, AddMemberInput{Email: "nobody@example.com"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.AddMember(ctx, owner, board.ID, AddMemberInput{UserID: owner.UserID})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.svc.AddMember(ctx, owner, board.ID, AddMemberInput{UserID: owner.UserID, Role: "owner"})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.ErrorIs(t, env.svc.RemoveMember(ctx, owner, board.ID, "usr_nobody"), ErrNotFound)
}

func TestMemberCanWriteButNotAdminister(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	member := env.user(t, "usr_member")
	board, list, card := env.board(t, owner)
	_, err := env.svc.AddMember(ctx, owner, board.ID, AddMemberInput{UserID: member.UserID})
	require.NoError(t, err)

	_, err = env.svc.CreateCard(ctx, member, CreateCardInput{ListID: list.ID, Title: "By member"})
	require.NoError(t, err)
	_, err = env.svc.UpdateCard(ctx, member, card.ID, UpdateCardInput{Title: ptr("Renamed")})
	require.NoError(t, err)
	_, err = env.svc.UpdateList(ctx, member, list.ID, UpdateListInput{Title: ptr("Backlog")})
	require.NoError(t, err)

	assert.ErrorIs(t, env.svc.DeleteCard(ctx, member, card.ID), ErrForbidden)
	assert.ErrorIs(t, env.svc.DeleteList(ctx, member, list.ID), ErrForbidden)
	assert.ErrorIs(t, env.svc.DeleteBoard(ctx, member, board.ID), ErrForbidden)
	_, err = env.svc.ListActivity(ctx, member, board.ID, 0)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCommentDeleteRules(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	author := env.user(t, "usr_author")
	other := env.user(t, "usr_other")
	board, _, card := env.board(t, owner)
	for _, u := range []Actor{author, other} {
		_, err := env.svc.AddMember(ctx, owner, board.ID, AddMemberInput{UserID: u.UserID})
		require.NoError(t, err)
	}

	comment, err := env.svc.CreateComment(ctx, author, CreateCommentInput{CardID: card.ID, Content: "  looks good  "})
	require.NoError(t, err)
	assert.Equal(t, "looks good", comment.Content)
	assert.Equal(t, "User usr_author", comment.AuthorName)

	assert.ErrorIs(t, env.svc.DeleteComment(ctx, other, comment.ID), ErrForbidden)
	require.NoError(t, env.svc.DeleteComment(ctx, author, comment.ID))

	comments, err := env.svc.ListComments(ctx, owner, card.ID)
	require.NoError(t, err)
	assert.Empty(t, comments)

	byOther, err := env.svc.CreateComment(ctx, other, CreateCommentInput{CardID: card.ID, Content: "owner may remove this"})
	require.NoError(t, err)
	require.NoError(t, env.svc.DeleteComment(ctx, owner, byOther.ID))
}

func TestRemovedAuthorCannotDeleteOwnComment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	author := env.user(t, "usr_author")
	board, _, card := env.board(t, owner)
	_, err := env.svc.AddMember(ctx, owner, board.ID, AddMemberInput{UserID: author.UserID})
	require.NoError(t, err)

	comment, err := env.svc.CreateComment(ctx, author, CreateCommentInput{CardID: card.ID, Content: "leaving soon"})
	require.NoError(t, err)
	attachment := env.upload(t, author, card.ID, "notes.txt", "bye")
	require.NoError(t, env.svc.RemoveMember(ctx, owner, board.ID, author.UserID))

	assert.ErrorIs(t, env.svc.DeleteComment(ctx, author, comment.ID), ErrForbidden)
	assert.ErrorIs(t, env.svc.DeleteAttachment(ctx, author, attachment.ID), ErrForbidden)

	require.NoError(t, env.svc.DeleteComment(ctx, owner, comment.ID))
	require.NoError(t, env.svc.DeleteAttachment(ctx, owner, attachment.ID))
}

func TestValidationReportsFirstFailingField(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	_, list, card := env.board(t, owner)

	_, err := env.svc.CreateCard(ctx, owner, CreateCardInput{ListID: list.ID, Title: "   "})
	var derr *DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, []FieldError{{Field: "title", Message: "title is required"}}, derr.Details)

	_, err = env.svc.CreateCard(ctx, owner, CreateCardInput{Title: string(bytes.Repeat([]byte("x"), 256))})
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "listId", derr.Details.([]FieldError)[0].Field)

	_, err = env.svc.CreateComment(ctx, owner, CreateCommentInput{CardID: card.ID, Content: string(bytes.Repeat([]byte("y"), 2001))})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.svc.CreateList(ctx, owner, CreateListInput{BoardID: "brd_x", Title: string(bytes.Repeat([]byte("z"), 255))})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdatesCheckAccessBeforeValidating(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	outsider := env.user(t, "usr_outsider")
	board, list, card := env.board(t, owner)
	blank := ptr("   ")

	_, err := env.svc.UpdateBoard(ctx, outsider, board.ID, UpdateBoardInput{Title: blank})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.UpdateList(ctx, outsider, list.ID, UpdateListInput{Title: blank})
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.svc.UpdateCard(ctx, outsider, card.ID, UpdateCardInput{Title: blank})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.svc.UpdateCard(ctx, owner, card.ID, UpdateCardInput{Title: blank})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCardActivityIsLoggedNewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	board, list, card := env.board(t, owner)

	_, err := env.svc.UpdateCard(ctx, owner, card.ID, UpdateCardInput{Title: ptr("Edited")})
	require.NoError(t, err)
	_, err = env.svc.MoveCard(ctx, owner, card.ID, MoveCardInput{Position: ptr(9.0)})
	require.NoError(t, err)
	require.NoError(t, env.svc.DeleteCard(ctx, owner, card.ID))
	_, err = env.svc.UpdateList(ctx, owner, list.ID, UpdateListInput{Title: ptr("Renamed")})
	require.NoError(t, err)

	entries, err := env.svc.ListActivity(ctx, owner, board.ID, 0)
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	assert.Equal(t, []string{"card_deleted", "card_moved", "card_updated", "card_created"}, actions)

	var details map[string]any
	require.NoError(t, json.Unmarshal(entries[1].Details, &details))
	assert.Equal(t, card.ID, details["card_id"])
	assert.Equal(t, list.ID, details["to_list_id"])
	require.NotNil(t, entries[0].IPAddress)
	assert.Equal(t, "127.0.0.1", *entries[0].IPAddress)
}

type failingAttachmentInsert struct {
	store.Querier
}

func (failingAttachmentInsert) InsertAttachment(context.Context, store.Attachment) error {
	return errors.New("disk full")
}

type failingAttachmentStore struct {
	*store.PostgresStore
}

func (f failingAttachmentStore) WithTx(ctx context.Context, fn func(store.Querier) error) error {
	return f.PostgresStore.WithTx(ctx, func(q store.Querier) error {
		return fn(failingAttachmentInsert{q})
	})
}

func TestUploadDeletesFileWhenRowInsertFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	_, _, card := env.board(t, owner)

	var keys []string
	recording := &recordingBlobs{Storage: env.blobs, puts: &keys}
	env.svc.blobs = recording
	env.svc.store = failingAttachmentStore{env.store}

	_, err := env.svc.UploadAttachment(ctx, owner, UploadInput{
		CardID:   card.ID,
		FileName: "report.pdf",
		Size:     3,
		Body:     bytes.NewReader([]byte("pdf")),
	})
	require.Error(t, err)
	require.Len(t, keys, 1)

	_, _, err = env.blobs.Open(ctx, keys[0])
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestUploadChecksAccessBeforeWritingFile(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")

	var keys []string
	env.svc.blobs = &recordingBlobs{Storage: env.blobs, puts: &keys}

	_, err := env.svc.UploadAttachment(ctx, owner, UploadInput{CardID: "crd_missing", FileName: "a.txt", Size: 1, Body: bytes.NewReader([]byte("a"))})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, keys)

	_, _, card := env.board(t, owner)
	_, err = env.svc.UploadAttachment(ctx, owner, UploadInput{CardID: card.ID, FileName: "big.bin", Size: 2 << 20, Body: bytes.NewReader(nil)})
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Empty(t, keys)
}

func TestAttachmentLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	member := env.user(t, "usr_member")
	board, _, card := env.board(t, owner)
	_, err := env.svc.AddMember(ctx, owner, board.ID, AddMemberInput{UserID: member.UserID})
	require.NoError(t, err)

	attachment := env.upload(t, member, card.ID, "../../etc/Notes.TXT", "hello world")
	assert.Equal(t, "Notes.TXT", attachment.FileName)
	assert.Equal(t, "text/plain", attachment.FileType)
	assert.Equal(t, "User usr_member", attachment.UploaderName)
	assert.Equal(t, "/api/attachments/file/"+attachment.StorageKey, attachment.FileURL)
	assert.Regexp(t, `\.txt$`, attachment.StorageKey)

	body, got, err := env.svc.OpenAttachmentFile(ctx, owner, attachment.StorageKey)
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, attachment.ID, got.ID)

	list, err := env.svc.ListAttachments(ctx, owner, card.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	require.NoError(t, env.svc.DeleteAttachment(ctx, member, attachment.ID))
	_, _, err = env.blobs.Open(ctx, attachment.StorageKey)
	assert.ErrorIs(t, err, blob.ErrNotFound)
}

func TestSearchCardsIsBoardScoped(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	owner := env.user(t, "usr_owner")
	board, _, card := env.board(t, owner)
	env.board(t, owner)

	resp, err := env.svc.SearchCards(ctx, owner, board.ID, "launch", 0)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, card.ID, resp.Results[0].CardID)
}

type recordingBlobs struct {
	blob.Storage
	puts *[]string
}

func (r *recordingBlobs) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	*r.puts = append(*r.puts, key)
	return r.Storage.Put(ctx, key, body, size, contentType)
}
