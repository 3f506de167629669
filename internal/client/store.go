package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/position"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/realtime"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/util"
)

var (
	ErrNoBoard     = errors.New("no board is open")
	ErrUnknownList = errors.New("list is not in the open board")
	ErrUnknownCard = errors.New("card is not in the open board")
)

const tempPrefix = "tmp"

// IsTemporary reports whether id was minted locally for an entity the
// server has not acknowledged yet.
func IsTemporary(id string) bool {
	return strings.HasPrefix(id, tempPrefix+"_")
}

// Publisher forwards a successful mutation to the other viewers of a board.
type Publisher interface {
	Publish(event, boardID string, data any) error
}

// Store caches the signed-in user, their boards and the open board's lists
// and cards. It is safe for concurrent use; the lock is never held across
// network calls.
type Store struct {
	api    API
	logger *slog.Logger
	now    func() time.Time

	mu        sync.Mutex
	publisher Publisher
	user      *store.User
	boards    []store.Board
	board     *store.Board
	lists     []store.List
	cards     map[string][]store.Card
}

type Option func(*Store)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

func WithPublisher(p Publisher) Option {
	return func(s *Store) { s.publisher = p }
}

func NewStore(api API, opts ...Option) *Store {
	s := &Store{
		api:    api,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		cards:  map[string][]store.Card{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetPublisher replaces the publisher, typically once a Subscription is up.
func (s *Store) SetPublisher(p Publisher) {
	s.mu.Lock()
	s.publisher = p
	s.mu.Unlock()
}

// Reset drops everything cached. Called on logout.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	s.boards = nil
	s.board = nil
	s.lists = nil
	s.cards = map[string][]store.Card{}
}

// Load fetches the current user and their boards.
func (s *Store) Load(ctx context.Context) error {
	user, err := s.api.Me(ctx)
	if err != nil {
		return err
	}
	boards, err := s.api.ListBoards(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.user = &user
	s.boards = boards
	s.mu.Unlock()
	return nil
}

// OpenBoard makes boardID the open board and loads its lists and cards.
func (s *Store) OpenBoard(ctx context.Context, boardID string) error {
	board, err := s.api.GetBoard(ctx, boardID)
	if err != nil {
		return err
	}
	lists, cards, err := s.fetchBoard(ctx, boardID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.board = &board
	s.lists = lists
	s.cards = cards
	return nil
}

func (s *Store) fetchBoard(ctx context.Context, boardID string) ([]store.List, map[string][]store.Card, error) {
	lists, err := s.api.ListLists(ctx, boardID)
	if err != nil {
		return nil, nil, err
	}
	cards := make(map[string][]store.Card, len(lists))
	for _, list := range lists {
		listCards, err := s.api.ListCards(ctx, list.ID)
		if err != nil {
			return nil, nil, err
		}
		sortCards(listCards)
		cards[list.ID] = listCards
	}
	sortLists(lists)
	return lists, cards, nil
}

// reload replaces the open board's lists and cards with the server's view.
func (s *Store) reload(ctx context.Context, boardID string) error {
	lists, cards, err := s.fetchBoard(ctx, boardID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil || s.board.ID != boardID {
		return nil
	}
	s.lists = lists
	s.cards = cards
	return nil
}

// Resync reloads the open board. Events missed while the realtime channel
// was down are not replayed, so call it after redialing and joining again.
func (s *Store) Resync(ctx context.Context) error {
	s.mu.Lock()
	if s.board == nil {
		s.mu.Unlock()
		return ErrNoBoard
	}
	boardID := s.board.ID
	s.mu.Unlock()
	return s.reload(ctx, boardID)
}

func (s *Store) User() (store.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return store.User{}, false
	}
	return *s.user, true
}

func (s *Store) Boards() []store.Board {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Board(nil), s.boards...)
}

func (s *Store) Board() (store.Board, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.board == nil {
		return store.Board{}, false
	}
	return *s.board, true
}

// Lists returns the open board's lists in display order.
func (s *Store) Lists() []store.List {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.List(nil), s.lists...)
}

// Cards returns listID's cards in display order.
func (s *Store) Cards(listID string) []store.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Card(nil), s.cards[listID]...)
}

// AddList appends a list to the open board. The list shows up immediately
// under a temporary id and is swapped for the server's row on success or
// removed on failure.
func (s *Store) AddList(ctx context.Context, title string) (store.List, error) {
	s.mu.Lock()
	if s.board == nil {
		s.mu.Unlock()
		return store.List{}, ErrNoBoard
	}
	boardID := s.board.ID
	positions := make([]float64, 0, len(s.lists))
	for _, l := range s.lists {
		positions = append(positions, l.Position)
	}
	now := s.now().UTC()
	temp := store.List{
		ID:        util.NewID(tempPrefix),
		BoardID:   boardID,
		Title:     title,
		Position:  position.Next(positions),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.lists = append(s.lists, temp)
	s.cards[temp.ID] = nil
	sortLists(s.lists)
	s.mu.Unlock()

	created, err := s.api.CreateList(ctx, boardID, title)

	s.mu.Lock()
	s.removeList(temp.ID)
	if err != nil {
		s.mu.Unlock()
		return store.List{}, err
	}
	if s.isOpen(boardID) {
		s.reconcileList(created)
	}
	s.mu.Unlock()

	s.publish(realtime.EventListUpdate, boardID, created)
	return created, nil
}

// AddCard appends a card to listID with the same temporary id scheme as
// AddList.
func (s *Store) AddCard(ctx context.Context, listID, title string) (store.Card, error) {
	s.mu.Lock()
	if s.board == nil {
		s.mu.Unlock()
		return store.Card{}, ErrNoBoard
	}
	if _, ok := s.cards[listID]; !ok {
		s.mu.Unlock()
		return store.Card{}, ErrUnknownList
	}
	boardID := s.board.ID
	siblings := cardPositions(s.cards[listID], "")
	now := s.now().UTC()
	temp := store.Card{
		ID:        util.NewID(tempPrefix),
		ListID:    listID,
		Title:     title,
		Position:  position.Next(siblings),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.putCard(temp)
	s.mu.Unlock()

	created, err := s.api.CreateCard(ctx, listID, title)

	s.mu.Lock()
	s.removeCard(temp.ID)
	if err != nil {
		s.mu.Unlock()
		return store.Card{}, err
	}
	if s.isOpen(boardID) {
		s.reconcileCard(created)
	}
	s.mu.Unlock()

	s.publish(realtime.EventCardUpdate, boardID, created)
	return created, nil
}

// UpdateCard applies patch locally, then on the server. On failure the
// previous card is restored unless a newer version has arrived meanwhile.
func (s *Store) UpdateCard(ctx context.Context, cardID string, patch CardPatch) (store.Card, error) {
	s.mu.Lock()
	if s.board == nil {
		s.mu.Unlock()
		return store.Card{}, ErrNoBoard
	}
	prev, ok := s.findCard(cardID)
	if !ok {
		s.mu.Unlock()
		return store.Card{}, ErrUnknownCard
	}
	boardID := s.board.ID
	edited := prev
	patch.apply(&edited)
	s.putCard(edited)
	s.mu.Unlock()

	updated, err := s.api.UpdateCard(ctx, cardID, patch)

	s.mu.Lock()
	if err != nil {
		if cur, ok := s.findCard(cardID); ok && !cur.UpdatedAt.After(prev.UpdatedAt) {
			s.putCard(prev)
		}
		s.mu.Unlock()
		return store.Card{}, err
	}
	if s.isOpen(boardID) {
		s.reconcileCard(updated)
	}
	s.mu.Unlock()

	s.publish(realtime.EventCardUpdate, boardID, updated)
	return updated, nil
}

// MoveCard moves cardID to index within toListID. A failed move reloads
// the whole board since neighbouring positions may have shifted.
func (s *Store) MoveCard(ctx context.Context, cardID, toListID string, index int) (store.Card, error) {
	s.mu.Lock()
	if s.board == nil {
		s.mu.Unlock()
		return store.Card{}, ErrNoBoard
	}
	card, ok := s.findCard(cardID)
	if !ok {
		s.mu.Unlock()
		return store.Card{}, ErrUnknownCard
	}
	if _, ok := s.cards[toListID]; !ok {
		s.mu.Unlock()
		return store.Card{}, ErrUnknownList
	}
	boardID := s.board.ID
	moved := card
	moved.ListID = toListID
	moved.Position = position.ForIndex(cardPositions(s.cards[toListID], cardID), index)
	s.putCard(moved)
	s.mu.Unlock()

	result, err := s.api.MoveCard(ctx, cardID, toListID, index)
	if err != nil {
		if reloadErr := s.reload(ctx, boardID); reloadErr != nil {
			s.logger.Warn("reload board after failed move", "board_id", boardID, "error", reloadErr)
		}
		return store.Card{}, err
	}

	s.mu.Lock()
	if s.isOpen(boardID) {
		s.reconcileCard(result)
	}
	s.mu.Unlock()

	s.publish(realtime.EventCardMove, boardID, result)
	return result, nil
}

// ApplyEvent folds a realtime notification into the cache. It reports
// whether anything changed. Events for other boards and stale versions are
// ignored.
func (s *Store) ApplyEvent(msg realtime.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.isOpen(msg.BoardID) {
		return false
	}

	switch msg.Event {
	case realtime.EventCardUpdated, realtime.EventCardMoved:
		var card store.Card
		if err := json.Unmarshal(msg.Data, &card); err != nil || card.ID == "" {
			s.logger.Warn("ignoring malformed card event", "event", msg.Event, "error", err)
			return false
		}
		if _, ok := s.cards[card.ListID]; !ok {
			return false
		}
		return s.reconcileCard(card)
	case realtime.EventListUpdated:
		var list store.List
		if err := json.Unmarshal(msg.Data, &list); err != nil || list.ID == "" {
			s.logger.Warn("ignoring malformed list event", "event", msg.Event, "error", err)
			return false
		}
		if list.BoardID != "" && list.BoardID != msg.BoardID {
			return false
		}
		return s.reconcileList(list)
	default:
		return false
	}
}

func (s *Store) publish(event, boardID string, data any) {
	s.mu.Lock()
	p := s.publisher
	s.mu.Unlock()
	if p == nil {
		return
	}
	if err := p.Publish(event, boardID, data); err != nil {
		s.logger.Warn("publish board event", "event", event, "board_id", boardID, "error", err)
	}
}

// The helpers below expect s.mu to be held.

func (s *Store) isOpen(boardID string) bool {
	return s.board != nil && s.board.ID == boardID
}

// reconcileList stores list unless the cached copy is newer.
func (s *Store) reconcileList(list store.List) bool {
	for i, cur := range s.lists {
		if cur.ID != list.ID {
			continue
		}
		if list.UpdatedAt.Before(cur.UpdatedAt) {
			return false
		}
		s.lists[i] = list
		sortLists(s.lists)
		return true
	}
	s.lists = append(s.lists, list)
	if _, ok := s.cards[list.ID]; !ok {
		s.cards[list.ID] = nil
	}
	sortLists(s.lists)
	return true
}

func (s *Store) removeList(listID string) {
	for i, l := range s.lists {
		if l.ID == listID {
			s.lists = append(s.lists[:i], s.lists[i+1:]...)
			break
		}
	}
	delete(s.cards, listID)
}

// reconcileCard stores card unless the cached copy is newer.
func (s *Store) reconcileCard(card store.Card) bool {
	if cur, ok := s.findCard(card.ID); ok && card.UpdatedAt.Before(cur.UpdatedAt) {
		return false
	}
	if _, ok := s.cards[card.ListID]; !ok {
		return false
	}
	s.putCard(card)
	return true
}

func (s *Store) findCard(cardID string) (store.Card, bool) {
	for _, cards := range s.cards {
		for _, c := range cards {
			if c.ID == cardID {
				return c, true
			}
		}
	}
	return store.Card{}, false
}

// putCard removes any cached copy of card and inserts it into its list.
func (s *Store) putCard(card store.Card) {
	s.removeCard(card.ID)
	cards := append(s.cards[card.ListID], card)
	sortCards(cards)
	s.cards[card.ListID] = cards
}

func (s *Store) removeCard(cardID string) {
	for listID, cards := range s.cards {
		for i, c := range cards {
			if c.ID == cardID {
				s.cards[listID] = append(cards[:i:i], cards[i+1:]...)
				return
			}
		}
	}
}

func cardPositions(cards []store.Card, exclude string) []float64 {
	out := make([]float64, 0, len(cards))
	for _, c := range cards {
		if c.ID != exclude {
			out = append(out, c.Position)
		}
	}
	return out
}

func sortLists(lists []store.List) {
	sort.SliceStable(lists, func(i, j int) bool {
		return less(lists[i].Position, lists[j].Position, lists[i].CreatedAt, lists[j].CreatedAt, lists[i].ID, lists[j].ID)
	})
}

func sortCards(cards []store.Card) {
	sort.SliceStable(cards, func(i, j int) bool {
		return less(cards[i].Position, cards[j].Position, cards[i].CreatedAt, cards[j].CreatedAt, cards[i].ID, cards[j].ID)
	})
}

// less orders by position, then creation time, then id.
func less(pa, pb float64, ca, cb time.Time, ia, ib string) bool {
	if pa != pb {
		return pa < pb
	}
	if !ca.Equal(cb) {
		return ca.Before(cb)
	}
	return ia < ib
}
