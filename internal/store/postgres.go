package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned (wrapped) when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Querier is every read and write the board service issues. It is
// implemented by Queries, bound either to the pool or to one transaction.
type Querier interface {
	CreateUser(ctx context.Context, user User) error
	GetUserByID(ctx context.Context, userID string) (User, error)
	GetUserByEmail(ctx context.Context, email string) (User, error)
	GetUserByGoogleID(ctx context.Context, googleID string) (User, error)
	LinkGoogleAccount(ctx context.Context, userID, googleID string, avatar *string) error

	SaveSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error
	LookupSession(ctx context.Context, tokenHash string, now time.Time) (User, error)
	RevokeSession(ctx context.Context, tokenHash string) error

	BoardAccess(ctx context.Context, boardID, userID string) (BoardAccess, error)
	BoardAccessForList(ctx context.Context, listID, userID string) (BoardAccess, error)
	BoardAccessForCard(ctx context.Context, cardID, userID string) (BoardAccess, error)

	ListBoardsForUser(ctx context.Context, userID string) ([]Board, error)
	InsertBoard(ctx context.Context, board Board) error
	GetBoard(ctx context.Context, boardID string) (Board, error)
	UpdateBoard(ctx context.Context, board Board) error
	DeleteBoard(ctx context.Context, boardID string) (bool, error)
	UpsertMember(ctx context.Context, membership Membership) error
	RemoveMember(ctx context.Context, boardID, userID string) (bool, error)
	ListMembers(ctx context.Context, boardID string) ([]Member, error)

	ListLists(ctx context.Context, boardID string) ([]List, error)
	ListSiblingPositions(ctx context.Context, boardID, excludeListID string) ([]float64, error)
	SetListPosition(ctx context.Context, listID string, position float64) error
	InsertList(ctx context.Context, list List) error
	GetList(ctx context.Context, listID string) (List, error)
	UpdateList(ctx context.Context, list List) error
	DeleteList(ctx context.Context, listID string) (bool, error)

	ListCards(ctx context.Context, listID string) ([]Card, error)
	CardSiblingPositions(ctx context.Context, listID, excludeCardID string) ([]float64, error)
	SetCardPosition(ctx context.Context, cardID string, position float64) error
	InsertCard(ctx context.Context, card Card) error
	GetCard(ctx context.Context, cardID string) (Card, error)
	UpdateCard(ctx context.Context, card Card) error
	DeleteCard(ctx context.Context, cardID string) (bool, error)

	ListComments(ctx context.Context, cardID string) ([]Comment, error)
	InsertComment(ctx context.Context, comment Comment) error
	GetComment(ctx context.Context, commentID string) (Comment, error)
	DeleteComment(ctx context.Context, commentID string) (bool, error)

	ListAttachments(ctx context.Context, cardID string) ([]Attachment, error)
	InsertAttachment(ctx context.Context, attachment Attachment) error
	GetAttachment(ctx context.Context, attachmentID string) (Attachment, error)
	GetAttachmentByKey(ctx context.Context, storageKey string) (Attachment, error)
	DeleteAttachment(ctx context.Context, attachmentID string) (bool, error)
	AttachmentKeysForBoard(ctx context.Context, boardID string) ([]string, error)
	AttachmentKeysForList(ctx context.Context, listID string) ([]string, error)
	AttachmentKeysForCard(ctx context.Context, cardID string) ([]string, error)
	CardIDsForBoard(ctx context.Context, boardID string) ([]string, error)
	CardIDsForList(ctx context.Context, listID string) ([]string, error)

	InsertActivity(ctx context.Context, entry ActivityLogEntry) error
	ListActivity(ctx context.Context, boardID string, limit int) ([]ActivityLogEntry, error)
}

// Queries implements Querier on top of a DBTX. Statements are written in the
// common subset of Postgres and SQLite: positional parameters first appear in
// ascending order and timestamps are always supplied by the caller.
type Queries struct {
	db DBTX
}

func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

type PostgresStore struct {
	*Queries
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{Queries: NewQueries(db), db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// WithTx runs fn inside a single transaction. The transaction commits when
// fn returns nil and rolls back otherwise.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(NewQueries(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func notFound(what string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Users

const userColumns = `u.id, u.name, u.email, u.avatar, u.google_id, u.password_hash, u.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(&user.ID, &user.Name, &user.Email, &user.Avatar, &user.GoogleID, &user.PasswordHash, &user.CreatedAt)
	return user, err
}

func (q *Queries) CreateUser(ctx context.Context, user User) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email, avatar, google_id, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, user.ID, user.Name, user.Email, user.Avatar, user.GoogleID, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (q *Queries) GetUserByID(ctx context.Context, userID string) (User, error) {
	user, err := scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.id=$1`, userID))
	if err != nil {
		return User{}, notFound("get user", err)
	}
	return user, nil
}

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	user, err := scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE LOWER(u.email)=LOWER($1)`, email))
	if err != nil {
		return User{}, notFound("get user by email", err)
	}
	return user, nil
}

func (q *Queries) GetUserByGoogleID(ctx context.Context, googleID string) (User, error) {
	user, err := scanUser(q.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users u WHERE u.google_id=$1`, googleID))
	if err != nil {
		return User{}, notFound("get user by google id", err)
	}
	return user, nil
}

func (q *Queries) LinkGoogleAccount(ctx context.Context, userID, googleID string, avatar *string) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE users SET google_id=$1, avatar=COALESCE(avatar, $2) WHERE id=$3
	`, googleID, avatar, userID)
	if err != nil {
		return fmt.Errorf("link google account: %w", err)
	}
	return nil
}

// Sessions

func (q *Queries) SaveSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at
	`, tokenHash, userID, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (q *Queries) LookupSession(ctx context.Context, tokenHash string, now time.Time) (User, error) {
	user, err := scanUser(q.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token_hash = $1 AND s.expires_at > $2
	`, tokenHash, now.UTC()))
	if err != nil {
		return User{}, notFound("lookup session", err)
	}
	return user, nil
}

func (q *Queries) RevokeSession(ctx context.Context, tokenHash string) error {
	if _, err := q.db.ExecContext(ctx, `DELETE FROM sessions WHERE token_hash=$1`, tokenHash); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}
	return nil
}

// Access

func (q *Queries) scanAccess(ctx context.Context, what, query string, userID, id string) (BoardAccess, error) {
	var access BoardAccess
	err := q.db.QueryRowContext(ctx, query, userID, id).Scan(&access.BoardID, &access.OwnerID, &access.MemberRole)
	if err != nil {
		return BoardAccess{}, notFound(what, err)
	}
	return access, nil
}

func (q *Queries) BoardAccess(ctx context.Context, boardID, userID string) (BoardAccess, error) {
	return q.scanAccess(ctx, "board access", `
		SELECT b.id, b.owner_id, COALESCE(bm.role, '')
		FROM boards b
		LEFT JOIN board_members bm ON bm.board_id = b.id AND bm.user_id = $1
		WHERE b.id = $2
	`, userID, boardID)
}

func (q *Queries) BoardAccessForList(ctx context.Context, listID, userID string) (BoardAccess, error) {
	return q.scanAccess(ctx, "list access", `
		SELECT b.id, b.owner_id, COALESCE(bm.role, '')
		FROM lists l
		JOIN boards b ON b.id = l.board_id
		LEFT JOIN board_members bm ON bm.board_id = b.id AND bm.user_id = $1
		WHERE l.id = $2
	`, userID, listID)
}

func (q *Queries) BoardAccessForCard(ctx context.Context, cardID, userID string) (BoardAccess, error) {
	return q.scanAccess(ctx, "card access", `
		SELECT b.id, b.owner_id, COALESCE(bm.role, '')
		FROM cards c
		JOIN lists l ON l.id = c.list_id
		JOIN boards b ON b.id = l.board_id
		LEFT JOIN board_members bm ON bm.board_id = b.id AND bm.user_id = $1
		WHERE c.id = $2
	`, userID, cardID)
}

// Boards

func scanBoard(row rowScanner) (Board, error) {
	var b Board
	err := row.Scan(&b.ID, &b.Title, &b.Color, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

func (q *Queries) ListBoardsForUser(ctx context.Context, userID string) ([]Board, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT b.id, b.title, b.color, b.owner_id, b.created_at, b.updated_at
		FROM boards b
		WHERE b.owner_id = $1
			OR EXISTS (SELECT 1 FROM board_members bm WHERE bm.board_id = b.id AND bm.user_id = $1)
		ORDER BY b.created_at DESC, b.id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list boards: %w", err)
	}
	defer rows.Close()

	boards := []Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan board: %w", err)
		}
		boards = append(boards, b)
	}
	return boards, rows.Err()
}

func (q *Queries) InsertBoard(ctx context.Context, board Board) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO boards (id, title, color, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, board.ID, board.Title, board.Color, board.OwnerID, board.CreatedAt, board.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	return nil
}

func (q *Queries) GetBoard(ctx context.Context, boardID string) (Board, error) {
	b, err := scanBoard(q.db.QueryRowContext(ctx, `
		SELECT id, title, color, owner_id, created_at, updated_at FROM boards WHERE id=$1
	`, boardID))
	if err != nil {
		return Board{}, notFound("get board", err)
	}
	return b, nil
}

func (q *Queries) UpdateBoard(ctx context.Context, board Board) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE boards SET title=$1, color=$2, updated_at=$3 WHERE id=$4
	`, board.Title, board.Color, board.UpdatedAt, board.ID)
	if err != nil {
		return fmt.Errorf("update board: %w", err)
	}
	return nil
}

func (q *Queries) DeleteBoard(ctx context.Context, boardID string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM boards WHERE id=$1`, boardID)
	if err != nil {
		return false, fmt.Errorf("delete board: %w", err)
	}
	return affected(res)
}

func (q *Queries) UpsertMember(ctx context.Context, m Membership) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO board_members (board_id, user_id, role, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (board_id, user_id) DO UPDATE SET role=EXCLUDED.role
	`, m.BoardID, m.UserID, m.Role, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("upsert member: %w", err)
	}
	return nil
}

func (q *Queries) RemoveMember(ctx context.Context, boardID, userID string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM board_members WHERE board_id=$1 AND user_id=$2`, boardID, userID)
	if err != nil {
		return false, fmt.Errorf("remove member: %w", err)
	}
	return affected(res)
}

func (q *Queries) ListMembers(ctx context.Context, boardID string) ([]Member, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT bm.board_id, bm.user_id, bm.role, bm.created_at, u.name, u.email, u.avatar
		FROM board_members bm
		JOIN users u ON u.id = bm.user_id
		WHERE bm.board_id = $1
		ORDER BY bm.created_at, u.name
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	members := []Member{}
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.BoardID, &m.UserID, &m.Role, &m.CreatedAt, &m.Name, &m.Email, &m.Avatar); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// Lists

func scanList(row rowScanner) (List, error) {
	var l List
	err := row.Scan(&l.ID, &l.BoardID, &l.Title, &l.Position, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

func (q *Queries) ListLists(ctx context.Context, boardID string) ([]List, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, board_id, title, position, created_at, updated_at
		FROM lists
		WHERE board_id = $1
		ORDER BY position, created_at, id
	`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list lists: %w", err)
	}
	defer rows.Close()

	lists := []List{}
	for rows.Next() {
		l, err := scanList(rows)
		if err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		lists = append(lists, l)
	}
	return lists, rows.Err()
}

func (q *Queries) ListSiblingPositions(ctx context.Context, boardID, excludeListID string) ([]float64, error) {
	return q.positions(ctx, `
		SELECT position FROM lists WHERE board_id=$1 AND id<>$2 ORDER BY position, created_at, id
	`, boardID, excludeListID)
}

func (q *Queries) positions(ctx context.Context, query, parentID, excludeID string) ([]float64, error) {
	rows, err := q.db.QueryContext(ctx, query, parentID, excludeID)
	if err != nil {
		return nil, fmt.Errorf("sibling positions: %w", err)
	}
	defer rows.Close()

	var out []float64
	for rows.Next() {
		var p float64
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetListPosition rewrites only the sort key; updated_at is left alone.
func (q *Queries) SetListPosition(ctx context.Context, listID string, position float64) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE lists SET position=$1 WHERE id=$2`, position, listID); err != nil {
		return fmt.Errorf("set list position: %w", err)
	}
	return nil
}

func (q *Queries) InsertList(ctx context.Context, l List) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO lists (id, board_id, title, position, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.ID, l.BoardID, l.Title, l.Position, l.CreatedAt, l.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert list: %w", err)
	}
	return nil
}

func (q *Queries) GetList(ctx context.Context, listID string) (List, error) {
	l, err := scanList(q.db.QueryRowContext(ctx, `
		SELECT id, board_id, title, position, created_at, updated_at FROM lists WHERE id=$1
	`, listID))
	if err != nil {
		return List{}, notFound("get list", err)
	}
	return l, nil
}

// UpdateList never touches board_id: a list cannot change boards.
func (q *Queries) UpdateList(ctx context.Context, l List) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE lists SET title=$1, position=$2, updated_at=$3 WHERE id=$4
	`, l.Title, l.Position, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("update list: %w", err)
	}
	return nil
}

func (q *Queries) DeleteList(ctx context.Context, listID string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM lists WHERE id=$1`, listID)
	if err != nil {
		return false, fmt.Errorf("delete list: %w", err)
	}
	return affected(res)
}

// Cards

func scanCard(row rowScanner) (Card, error) {
	var c Card
	err := row.Scan(&c.ID, &c.ListID, &c.Title, &c.Description, &c.Position, &c.Color, &c.DueDate, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (q *Queries) ListCards(ctx context.Context, listID string) ([]Card, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, list_id, title, description, position, color, due_date, created_at, updated_at
		FROM cards
		WHERE list_id = $1
		ORDER BY position, created_at, id
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	cards := []Card{}
	for rows.Next() {
		c, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

func (q *Queries) CardSiblingPositions(ctx context.Context, listID, excludeCardID string) ([]float64, error) {
	return q.positions(ctx, `
		SELECT position FROM cards WHERE list_id=$1 AND id<>$2 ORDER BY position, created_at, id
	`, listID, excludeCardID)
}

func (q *Queries) SetCardPosition(ctx context.Context, cardID string, position float64) error {
	if _, err := q.db.ExecContext(ctx, `UPDATE cards SET position=$1 WHERE id=$2`, position, cardID); err != nil {
		return fmt.Errorf("set card position: %w", err)
	}
	return nil
}

func (q *Queries) InsertCard(ctx context.Context, c Card) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO cards (id, list_id, title, description, position, color, due_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, c.ID, c.ListID, c.Title, c.Description, c.Position, c.Color, c.DueDate, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

func (q *Queries) GetCard(ctx context.Context, cardID string) (Card, error) {
	c, err := scanCard(q.db.QueryRowContext(ctx, `
		SELECT id, list_id, title, description, position, color, due_date, created_at, updated_at
		FROM cards WHERE id=$1
	`, cardID))
	if err != nil {
		return Card{}, notFound("get card", err)
	}
	return c, nil
}

func (q *Queries) UpdateCard(ctx context.Context, c Card) error {
	_, err := q.db.ExecContext(ctx, `
		UPDATE cards
		SET list_id=$1, title=$2, description=$3, position=$4, color=$5, due_date=$6, updated_at=$7
		WHERE id=$8
	`, c.ListID, c.Title, c.Description, c.Position, c.Color, c.DueDate, c.UpdatedAt, c.ID)
	if err != nil {
		return fmt.Errorf("update card: %w", err)
	}
	return nil
}

func (q *Queries) DeleteCard(ctx context.Context, cardID string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM cards WHERE id=$1`, cardID)
	if err != nil {
		return false, fmt.Errorf("delete card: %w", err)
	}
	return affected(res)
}

// Comments

func (q *Queries) ListComments(ctx context.Context, cardID string) ([]Comment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT c.id, c.card_id, c.user_id, c.content, c.created_at, u.name, u.avatar
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.card_id = $1
		ORDER BY c.created_at DESC, c.id DESC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := []Comment{}
	for rows.Next() {
		var c Comment
		if err := rows.Scan(&c.ID, &c.CardID, &c.UserID, &c.Content, &c.CreatedAt, &c.AuthorName, &c.AuthorAvatar); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (q *Queries) InsertComment(ctx context.Context, c Comment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO comments (id, card_id, user_id, content, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.ID, c.CardID, c.UserID, c.Content, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (q *Queries) GetComment(ctx context.Context, commentID string) (Comment, error) {
	var c Comment
	err := q.db.QueryRowContext(ctx, `
		SELECT c.id, c.card_id, c.user_id, c.content, c.created_at, u.name, u.avatar
		FROM comments c
		JOIN users u ON u.id = c.user_id
		WHERE c.id = $1
	`, commentID).Scan(&c.ID, &c.CardID, &c.UserID, &c.Content, &c.CreatedAt, &c.AuthorName, &c.AuthorAvatar)
	if err != nil {
		return Comment{}, notFound("get comment", err)
	}
	return c, nil
}

func (q *Queries) DeleteComment(ctx context.Context, commentID string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM comments WHERE id=$1`, commentID)
	if err != nil {
		return false, fmt.Errorf("delete comment: %w", err)
	}
	return affected(res)
}

// Attachments

const attachmentColumns = `a.id, a.card_id, a.uploaded_by, a.file_name, a.file_url, a.file_type, a.storage_key, a.file_size, a.uploaded_at, u.name`

func scanAttachment(row rowScanner) (Attachment, error) {
	var a Attachment
	err := row.Scan(&a.ID, &a.CardID, &a.UploadedBy, &a.FileName, &a.FileURL, &a.FileType, &a.StorageKey, &a.Size, &a.UploadedAt, &a.UploaderName)
	return a, err
}

func (q *Queries) ListAttachments(ctx context.Context, cardID string) ([]Attachment, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments a
		JOIN users u ON u.id = a.uploaded_by
		WHERE a.card_id = $1
		ORDER BY a.uploaded_at DESC, a.id DESC
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	attachments := []Attachment{}
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	return attachments, rows.Err()
}

func (q *Queries) InsertAttachment(ctx context.Context, a Attachment) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO attachments (id, card_id, uploaded_by, file_name, file_url, file_type, storage_key, file_size, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.CardID, a.UploadedBy, a.FileName, a.FileURL, a.FileType, a.StorageKey, a.Size, a.UploadedAt)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (q *Queries) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	a, err := scanAttachment(q.db.QueryRowContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments a
		JOIN users u ON u.id = a.uploaded_by
		WHERE a.id = $1
	`, attachmentID))
	if err != nil {
		return Attachment{}, notFound("get attachment", err)
	}
	return a, nil
}

func (q *Queries) GetAttachmentByKey(ctx context.Context, storageKey string) (Attachment, error) {
	a, err := scanAttachment(q.db.QueryRowContext(ctx, `
		SELECT `+attachmentColumns+`
		FROM attachments a
		JOIN users u ON u.id = a.uploaded_by
		WHERE a.storage_key = $1
	`, storageKey))
	if err != nil {
		return Attachment{}, notFound("get attachment by key", err)
	}
	return a, nil
}

func (q *Queries) DeleteAttachment(ctx context.Context, attachmentID string) (bool, error) {
	res, err := q.db.ExecContext(ctx, `DELETE FROM attachments WHERE id=$1`, attachmentID)
	if err != nil {
		return false, fmt.Errorf("delete attachment: %w", err)
	}
	return affected(res)
}

func (q *Queries) AttachmentKeysForBoard(ctx context.Context, boardID string) ([]string, error) {
	return q.keys(ctx, "attachment keys", `
		SELECT a.storage_key
		FROM attachments a
		JOIN cards c ON c.id = a.card_id
		JOIN lists l ON l.id = c.list_id
		WHERE l.board_id = $1
	`, boardID)
}

func (q *Queries) AttachmentKeysForList(ctx context.Context, listID string) ([]string, error) {
	return q.keys(ctx, "attachment keys", `
		SELECT a.storage_key
		FROM attachments a
		JOIN cards c ON c.id = a.card_id
		WHERE c.list_id = $1
	`, listID)
}

func (q *Queries) AttachmentKeysForCard(ctx context.Context, cardID string) ([]string, error) {
	return q.keys(ctx, "attachment keys", `SELECT storage_key FROM attachments WHERE card_id = $1`, cardID)
}

// CardIDsForBoard and CardIDsForList name the cards a cascade is about to
// remove so they can be dropped from the search index afterwards.
func (q *Queries) CardIDsForBoard(ctx context.Context, boardID string) ([]string, error) {
	return q.keys(ctx, "card ids", `
		SELECT c.id
		FROM cards c
		JOIN lists l ON l.id = c.list_id
		WHERE l.board_id = $1
	`, boardID)
}

func (q *Queries) CardIDsForList(ctx context.Context, listID string) ([]string, error) {
	return q.keys(ctx, "card ids", `SELECT id FROM cards WHERE list_id = $1`, listID)
}

func (q *Queries) keys(ctx context.Context, what, query, id string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, query, id)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan %s: %w", what, err)
		}
		out = append(out, key)
	}
	return out, rows.Err()
}

// Activity

func (q *Queries) InsertActivity(ctx context.Context, entry ActivityLogEntry) error {
	details := string(entry.Details)
	if details == "" {
		details = "{}"
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO activity_logs (id, user_id, board_id, action, details, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.UserID, entry.BoardID, entry.Action, details, entry.IPAddress, entry.UserAgent, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func (q *Queries) ListActivity(ctx context.Context, boardID string, limit int) ([]ActivityLogEntry, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, user_id, board_id, action, details, ip_address, user_agent, created_at
		FROM activity_logs
		WHERE board_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, boardID, limit)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	entries := []ActivityLogEntry{}
	for rows.Next() {
		var (
			e       ActivityLogEntry
			details []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.BoardID, &e.Action, &details, &e.IPAddress, &e.UserAgent, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		e.Details = details
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
