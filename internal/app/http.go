package app

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Xxsnakesz/glide-team-board-26655/internal/store"
)

// realtimeServer upgrades an authenticated request to the board channel.
type realtimeServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, userID string)
}

type HTTPServer struct {
	service    *Service
	corsOrigin string
	realtime   realtimeServer
	limiter    *rateLimiter
	logger     *slog.Logger
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{
		service:    service,
		corsOrigin: corsOrigin,
		limiter:    newRateLimiter(),
		logger:     service.logger,
	}
}

// WithRealtime mounts the websocket channel at /ws.
func (s *HTTPServer) WithRealtime(rt realtimeServer) *HTTPServer {
	s.realtime = rt
	return s
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	// Auth routes (no session required)
	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/signup" {
		s.limiter.wrap("signup", 20, time.Minute, s.handleSignUp)(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/login" {
		s.limiter.wrap("login", 30, time.Minute, s.handleLogin)(w, r)
		return
	}

	if r.Method == http.MethodPost && r.URL.Path == "/api/auth/logout" {
		_ = s.service.Logout(r.Context(), s.sessionToken(r))
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/google" {
		target, err := s.service.GoogleAuthURL(r.URL.Query().Get("returnTo"))
		if err != nil {
			s.fail(w, r, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/google/callback" {
		s.handleGoogleCallback(w, r)
		return
	}

	user, ok := s.requireSession(w, r)
	if !ok {
		return
	}
	actor := Actor{UserID: user.ID, IP: clientIP(r), UserAgent: r.UserAgent()}

	if r.Method == http.MethodGet && r.URL.Path == "/api/auth/me" {
		writeJSON(w, http.StatusOK, map[string]any{"user": user})
		return
	}

	if r.URL.Path == "/ws" {
		if s.realtime == nil {
			writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
			return
		}
		s.realtime.ServeWS(w, r, user.ID)
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) < 2 || parts[0] != "api" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch parts[1] {
	case "boards":
		s.handleBoards(w, r, actor, parts[2:])
	case "lists":
		s.handleLists(w, r, actor, parts[2:])
	case "cards":
		s.handleCards(w, r, actor, parts[2:])
	case "comments":
		s.handleComments(w, r, actor, parts[2:])
	case "attachments":
		s.handleAttachments(w, r, actor, parts[2:])
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleBoards(w http.ResponseWriter, r *http.Request, actor Actor, parts []string) {
	ctx := r.Context()

	if len(parts) == 0 {
		switch r.Method {
		case http.MethodGet:
			boards, err := s.service.ListBoards(ctx, actor)
			s.respond(w, r, http.StatusOK, boards, err)
		case http.MethodPost:
			var body CreateBoardInput
			if !s.decode(w, r, &body) {
				return
			}
			board, err := s.service.CreateBoard(ctx, actor, body)
			s.respond(w, r, http.StatusCreated, board, err)
		default:
			methodNotAllowed(w)
		}
		return
	}

	boardID := parts[0]
	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			board, err := s.service.GetBoard(ctx, actor, boardID)
			s.respond(w, r, http.StatusOK, board, err)
		case http.MethodPut:
			var body UpdateBoardInput
			if !s.decode(w, r, &body) {
				return
			}
			board, err := s.service.UpdateBoard(ctx, actor, boardID, body)
			s.respond(w, r, http.StatusOK, board, err)
		case http.MethodDelete:
			err := s.service.DeleteBoard(ctx, actor, boardID)
			s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
		default:
			methodNotAllowed(w)
		}
		return
	}

	switch {
	case parts[1] == "members" && len(parts) == 2 && r.Method == http.MethodGet:
		members, err := s.service.ListMembers(ctx, actor, boardID)
		s.respond(w, r, http.StatusOK, members, err)
	case parts[1] == "members" && len(parts) == 2 && r.Method == http.MethodPost:
		var body AddMemberInput
		if !s.decode(w, r, &body) {
			return
		}
		member, err := s.service.AddMember(ctx, actor, boardID, body)
		s.respond(w, r, http.StatusCreated, member, err)
	case parts[1] == "members" && len(parts) == 3 && r.Method == http.MethodDelete:
		err := s.service.RemoveMember(ctx, actor, boardID, parts[2])
		s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	case parts[1] == "search" && len(parts) == 2 && r.Method == http.MethodGet:
		query := r.URL.Query()
		result, err := s.service.SearchCards(ctx, actor, boardID, query.Get("q"), queryInt(query, "limit"))
		s.respond(w, r, http.StatusOK, result, err)
	case parts[1] == "activity" && len(parts) == 2 && r.Method == http.MethodGet:
		entries, err := s.service.ListActivity(ctx, actor, boardID, queryInt(r.URL.Query(), "limit"))
		s.respond(w, r, http.StatusOK, entries, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleLists(w http.ResponseWriter, r *http.Request, actor Actor, parts []string) {
	ctx := r.Context()

	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body CreateListInput
		if !s.decode(w, r, &body) {
			return
		}
		list, err := s.service.CreateList(ctx, actor, body)
		s.respond(w, r, http.StatusCreated, list, err)
	case len(parts) == 1 && r.Method == http.MethodGet:
		lists, err := s.service.ListLists(ctx, actor, parts[0])
		s.respond(w, r, http.StatusOK, lists, err)
	case len(parts) == 1 && r.Method == http.MethodPut:
		var body UpdateListInput
		if !s.decode(w, r, &body) {
			return
		}
		list, err := s.service.UpdateList(ctx, actor, parts[0], body)
		s.respond(w, r, http.StatusOK, list, err)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		err := s.service.DeleteList(ctx, actor, parts[0])
		s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCards(w http.ResponseWriter, r *http.Request, actor Actor, parts []string) {
	ctx := r.Context()

	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body CreateCardInput
		if !s.decode(w, r, &body) {
			return
		}
		card, err := s.service.CreateCard(ctx, actor, body)
		s.respond(w, r, http.StatusCreated, card, err)
	case len(parts) == 1 && r.Method == http.MethodGet:
		cards, err := s.service.ListCards(ctx, actor, parts[0])
		s.respond(w, r, http.StatusOK, cards, err)
	case len(parts) == 1 && r.Method == http.MethodPut:
		var body UpdateCardInput
		if !s.decode(w, r, &body) {
			return
		}
		card, err := s.service.UpdateCard(ctx, actor, parts[0], body)
		s.respond(w, r, http.StatusOK, card, err)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		err := s.service.DeleteCard(ctx, actor, parts[0])
		s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	case len(parts) == 2 && parts[1] == "move" && r.Method == http.MethodPut:
		var body MoveCardInput
		if !s.decode(w, r, &body) {
			return
		}
		card, err := s.service.MoveCard(ctx, actor, parts[0], body)
		s.respond(w, r, http.StatusOK, card, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleComments(w http.ResponseWriter, r *http.Request, actor Actor, parts []string) {
	ctx := r.Context()

	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		var body CreateCommentInput
		if !s.decode(w, r, &body) {
			return
		}
		comment, err := s.service.CreateComment(ctx, actor, body)
		s.respond(w, r, http.StatusCreated, comment, err)
	case len(parts) == 1 && r.Method == http.MethodGet:
		comments, err := s.service.ListComments(ctx, actor, parts[0])
		s.respond(w, r, http.StatusOK, comments, err)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		err := s.service.DeleteComment(ctx, actor, parts[0])
		s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleAttachments(w http.ResponseWriter, r *http.Request, actor Actor, parts []string) {
	ctx := r.Context()

	switch {
	case len(parts) == 0 && r.Method == http.MethodPost:
		s.handleUpload(w, r, actor)
	case len(parts) == 2 && parts[0] == "file" && r.Method == http.MethodGet:
		s.handleFile(w, r, actor, parts[1])
	case len(parts) == 1 && r.Method == http.MethodGet:
		attachments, err := s.service.ListAttachments(ctx, actor, parts[0])
		s.respond(w, r, http.StatusOK, attachments, err)
	case len(parts) == 1 && r.Method == http.MethodDelete:
		err := s.service.DeleteAttachment(ctx, actor, parts[0])
		s.respond(w, r, http.StatusOK, map[string]any{"ok": true}, err)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

const multipartMemory = 8 << 20

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request, actor Actor) {
	limit := s.service.cfg.MaxFileSize
	if limit > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, limit+multipartMemory)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.fail(w, r, invalidInput("file", fmt.Sprintf("file exceeds the %d byte limit", limit)))
			return
		}
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "invalid multipart body", nil)
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.fail(w, r, invalidInput("file", "file is required"))
		return
	}
	defer file.Close()

	attachment, err := s.service.UploadAttachment(r.Context(), actor, UploadInput{
		CardID:      r.FormValue("cardId"),
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	s.respond(w, r, http.StatusCreated, attachment, err)
}

func (s *HTTPServer) handleFile(w http.ResponseWriter, r *http.Request, actor Actor, key string) {
	body, attachment, err := s.service.OpenAttachmentFile(r.Context(), actor, key)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer body.Close()

	contentType, disposition := "application/octet-stream", "attachment"
	if inlineSafe(attachment.FileType) {
		contentType, disposition = attachment.FileType, "inline"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Disposition", mime.FormatMediaType(disposition, map[string]string{"filename": attachment.FileName}))
	w.Header().Set("Content-Length", strconv.FormatInt(attachment.Size, 10))
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, body); err != nil {
		s.logger.Warn("stream attachment", "key", key, "error", err)
	}
}

// inlineTypes may render in the browser. Everything else, notably HTML and
// SVG, is sent as a download so it cannot run script on the API origin.
var inlineTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
}

func inlineSafe(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return inlineTypes[mediaType]
}

func (s *HTTPServer) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var body SignUpInput
	if !s.decode(w, r, &body) {
		return
	}
	sess, err := s.service.SignUp(r.Context(), Actor{IP: clientIP(r), UserAgent: r.UserAgent()}, body)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookie(w, sess)
	writeJSON(w, http.StatusCreated, map[string]any{"user": sess.User, "token": sess.Token})
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !s.decode(w, r, &body) {
		return
	}
	sess, err := s.service.Login(r.Context(), Actor{IP: clientIP(r), UserAgent: r.UserAgent()}, body.Email, body.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.setSessionCookie(w, sess)
	writeJSON(w, http.StatusOK, map[string]any{"user": sess.User, "token": sess.Token})
}

func (s *HTTPServer) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	frontend := strings.TrimRight(s.service.cfg.FrontendURL, "/")
	query := r.URL.Query()
	sess, returnTo, err := s.service.GoogleCallback(r.Context(), Actor{IP: clientIP(r), UserAgent: r.UserAgent()}, query.Get("code"), query.Get("state"))
	if err != nil {
		s.logger.Warn("google sign-in failed", "request_id", requestIDFrom(r.Context()), "error", err)
		http.Redirect(w, r, frontend+"/login?error=oauth_failed", http.StatusFound)
		return
	}
	s.setSessionCookie(w, sess)
	http.Redirect(w, r, frontend+safeReturnPath(returnTo), http.StatusFound)
}

// safeReturnPath only allows local paths so the callback cannot be used as
// an open redirect.
func safeReturnPath(returnTo string) string {
	if !strings.HasPrefix(returnTo, "/") || strings.HasPrefix(returnTo, "//") {
		return "/"
	}
	if u, err := url.Parse(returnTo); err != nil || u.Host != "" {
		return "/"
	}
	return returnTo
}

func (s *HTTPServer) setSessionCookie(w http.ResponseWriter, sess Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.cfg.SessionCookieName,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   s.service.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *HTTPServer) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.service.cfg.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.service.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

// sessionToken prefers a bearer token and falls back to the session cookie.
func (s *HTTPServer) sessionToken(r *http.Request) string {
	if token := bearerToken(r); token != "" {
		return token
	}
	if s.service.cfg.SessionCookieName == "" {
		return ""
	}
	cookie, err := r.Cookie(s.service.cfg.SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func (s *HTTPServer) requireSession(w http.ResponseWriter, r *http.Request) (store.User, bool) {
	user, err := s.service.SessionFromToken(r.Context(), s.sessionToken(r))
	if err != nil {
		if !errors.Is(err, ErrUnauthenticated) {
			s.logger.Error("session lookup failed", "request_id", requestIDFrom(r.Context()), "error", err)
		}
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required", nil)
		return store.User{}, false
	}
	return user, true
}

func (s *HTTPServer) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := decodeBody(r, target); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return false
	}
	return true
}

func (s *HTTPServer) respond(w http.ResponseWriter, r *http.Request, status int, payload any, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, status, payload)
}

// fail writes err as an error body. With MaskNotFound set, missing
// board-scoped entities are reported as 403 like foreign ones.
func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message, details := mapError(err)
	if status == http.StatusNotFound && s.service.cfg.MaskNotFound {
		status, code, message = http.StatusForbidden, "FORBIDDEN", "Access denied"
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"request_id", requestIDFrom(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, code, message, details)
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", writer.status,
			"duration_ms", time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Hijack passes the connection through for the websocket upgrade.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return hijacker.Hijack()
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func queryInt(values url.Values, key string) int {
	n, err := strconv.Atoi(values.Get(key))
	if err != nil {
		return 0
	}
	return n
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
