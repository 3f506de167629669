package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/blob"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/rbac"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
	"github.com/Xxsnakesz/glide-team-board-26655/internal/util"
)

const attachmentFilePath = "/api/attachments/file/"

// UploadInput is one file bound for a card.
type UploadInput struct {
	CardID      string
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ListAttachments returns the card's attachments newest first.
func (s *Service) ListAttachments(ctx context.Context, actor Actor, cardID string) ([]store.Attachment, error) {
	access, err := s.store.BoardAccessForCard(ctx, cardID, actor.UserID)
	if err != nil {
		return nil, lookupError(err, "Card")
	}
	if _, err := authorize(access, actor, rbac.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListAttachments(ctx, cardID)
}

// UploadAttachment checks access, writes the file, then records the row. If
// anything fails after the file is written, the file is deleted again.
func (s *Service) UploadAttachment(ctx context.Context, actor Actor, in UploadInput) (store.Attachment, error) {
	if err := validateID("cardId", in.CardID); err != nil {
		return store.Attachment{}, err
	}
	name := cleanFileName(in.FileName)
	if name == "" {
		return store.Attachment{}, invalidInput("file", "file is required")
	}
	if in.Body == nil || in.Size < 0 {
		return store.Attachment{}, invalidInput("file", "file is required")
	}
	if s.cfg.MaxFileSize > 0 && in.Size > s.cfg.MaxFileSize {
		return store.Attachment{}, invalidInput("file", fmt.Sprintf("file exceeds the %d byte limit", s.cfg.MaxFileSize))
	}
	if s.blobs == nil {
		return store.Attachment{}, errors.New("attachment storage is not configured")
	}

	access, err := s.store.BoardAccessForCard(ctx, in.CardID, actor.UserID)
	if err != nil {
		return store.Attachment{}, lookupError(err, "Card")
	}
	if _, err := authorize(access, actor, rbac.ActionWrite); err != nil {
		return store.Attachment{}, err
	}

	contentType := detectContentType(name, in.ContentType)
	key := util.NewID("att") + storageExt(name)
	if err := s.blobs.Put(ctx, key, in.Body, in.Size, contentType); err != nil {
		return store.Attachment{}, fmt.Errorf("store attachment file: %w", err)
	}

	var attachment store.Attachment
	err = s.store.WithTx(ctx, func(q store.Querier) error {
		access, err := q.BoardAccessForCard(ctx, in.CardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Card")
		}
		if _, err := authorize(access, actor, rbac.ActionWrite); err != nil {
			return err
		}
		id := util.NewID("att")
		if err := q.InsertAttachment(ctx, store.Attachment{
			ID:         id,
			CardID:     in.CardID,
			UploadedBy: actor.UserID,
			FileName:   name,
			FileURL:    attachmentFilePath + key,
			FileType:   contentType,
			StorageKey: key,
			Size:       in.Size,
			UploadedAt: s.now().UTC(),
		}); err != nil {
			return err
		}
		attachment, err = q.GetAttachment(ctx, id)
		return err
	})
	if err != nil {
		s.releaseBlobs(ctx, []string{key})
		return store.Attachment{}, err
	}
	return attachment, nil
}

// DeleteAttachment is allowed to the uploader and the board owner. The file
// is released after the row delete commits.
func (s *Service) DeleteAttachment(ctx context.Context, actor Actor, attachmentID string) error {
	var key string
	err := s.store.WithTx(ctx, func(q store.Querier) error {
		attachment, err := q.GetAttachment(ctx, attachmentID)
		if err != nil {
			return lookupError(err, "Attachment")
		}
		access, err := q.BoardAccessForCard(ctx, attachment.CardID, actor.UserID)
		if err != nil {
			return lookupError(err, "Attachment")
		}
		role := rbac.Resolve(actor.UserID, access.OwnerID, access.MemberRole)
		if !rbac.CanDeleteAuthored(role, actor.UserID, attachment.UploadedBy) {
			return forbidden("Only the uploader or the board owner can delete this attachment")
		}
		deleted, err := q.DeleteAttachment(ctx, attachmentID)
		if err != nil {
			return err
		}
		if !deleted {
			return notFound("Attachment not found")
		}
		key = attachment.StorageKey
		return nil
	})
	if err != nil {
		return err
	}
	s.releaseBlobs(ctx, []string{key})
	return nil
}

// OpenAttachmentFile streams a stored file to a reader of its board. The
// caller closes the returned reader.
func (s *Service) OpenAttachmentFile(ctx context.Context, actor Actor, key string) (io.ReadCloser, store.Attachment, error) {
	if err := blob.ValidateKey(key); err != nil {
		return nil, store.Attachment{}, notFound("File not found")
	}
	attachment, err := s.store.GetAttachmentByKey(ctx, key)
	if err != nil {
		return nil, store.Attachment{}, lookupError(err, "File")
	}
	access, err := s.store.BoardAccessForCard(ctx, attachment.CardID, actor.UserID)
	if err != nil {
		return nil, store.Attachment{}, lookupError(err, "File")
	}
	if _, err := authorize(access, actor, rbac.ActionRead); err != nil {
		return nil, store.Attachment{}, err
	}
	if s.blobs == nil {
		return nil, store.Attachment{}, notFound("File not found")
	}
	body, _, err := s.blobs.Open(ctx, key)
	if errors.Is(err, blob.ErrNotFound) {
		return nil, store.Attachment{}, notFound("File not found")
	}
	if err != nil {
		return nil, store.Attachment{}, err
	}
	return body, attachment, nil
}

func cleanFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(strings.TrimSpace(name), "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}
	for utf8.RuneCountInString(name) > maxTitleLen {
		_, size := utf8.DecodeLastRuneInString(name)
		name = name[:len(name)-size]
	}
	return name
}

// storageExt keeps a short alphanumeric extension so stored keys stay flat.
func storageExt(name string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if ext == "" || len(ext) > 10 {
		return ""
	}
	for _, r := range ext {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return "." + ext
}

func detectContentType(name, declared string) string {
	if declared = strings.TrimSpace(declared); declared != "" {
		return declared
	}
	if byExt := mime.TypeByExtension(filepath.Ext(name)); byExt != "" {
		return byExt
	}
	return "application/octet-stream"
}
