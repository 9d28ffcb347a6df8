package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/tinywideclouds/go-keypool-service/internal/auth"
	"github.com/tinywideclouds/go-keypool-service/internal/i18n"
	"github.com/tinywideclouds/go-keypool-service/internal/pool"
	"github.com/tinywideclouds/go-keypool-service/pkg/keypool"
)

const (
	commandStart  = "/start"
	commandCancel = "/cancel"
	skipField     = "-"
)

// Handler routes operator updates to pool operations.
type Handler struct {
	svc        *pool.Service
	authorizer *auth.Authorizer
	tr         *i18n.Translator
	sessions   *SessionStore
	logger     *slog.Logger
	loc        *time.Location
}

// Option configures a Handler.
type Option func(*Handler)

// WithLocation sets the time zone used to display timestamps.
func WithLocation(loc *time.Location) Option {
	return func(h *Handler) { h.loc = loc }
}

// NewHandler creates a chat Handler.
func NewHandler(svc *pool.Service, authorizer *auth.Authorizer, tr *i18n.Translator, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		svc:        svc,
		authorizer: authorizer,
		tr:         tr,
		sessions:   NewSessionStore(0),
		logger:     logger.With("component", "chat"),
		loc:        time.Local,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle processes one update. Updates from operators outside the allow-list
// produce an empty response and touch nothing.
func (h *Handler) Handle(ctx context.Context, u Update) Response {
	if !h.authorizer.IsAuthorized(u.OperatorID) {
		h.logger.Warn("Ignoring update from unauthorized operator", "operator_id", u.OperatorID)
		return Response{}
	}

	logger := h.logger.With("operator_id", u.OperatorID)
	if u.Callback != "" {
		logger.Debug("Handling callback", "callback", u.Callback)
		return h.handleCallback(ctx, logger, u.Callback)
	}
	logger.Debug("Handling message")
	return h.handleText(ctx, logger, u.OperatorID, strings.TrimSpace(u.Text))
}

func (h *Handler) handleText(ctx context.Context, logger *slog.Logger, operatorID, text string) Response {
	if text == commandCancel {
		return h.cancelWizard(operatorID)
	}
	if sess, ok := h.sessions.Get(operatorID); ok {
		return h.wizardStep(ctx, logger, sess, text)
	}

	switch text {
	case commandStart:
		var resp Response
		resp.add(Reply{Text: h.tr.T("welcome"), Markdown: true})
		resp.add(h.currentScreen(ctx, logger).Replies...)
		resp.add(Reply{Text: h.tr.T("choose_action"), Keyboard: h.mainMenu()})
		return resp
	case h.tr.T("menu_current"):
		return h.currentScreen(ctx, logger)
	case h.tr.T("menu_list"):
		return h.listScreen(ctx, logger)
	case h.tr.T("menu_switch"):
		return h.switchPicker(ctx, logger)
	case h.tr.T("menu_reset"):
		return h.resetAll(ctx, logger)
	case h.tr.T("menu_details"):
		return h.detailsPicker(ctx, logger)
	case h.tr.T("menu_stats"):
		return h.statsScreen(ctx, logger)
	case h.tr.T("menu_add"):
		sess := h.sessions.Start(operatorID)
		logger.Info("Add-key wizard started", "session_id", sess.ID, "open_sessions", h.sessions.Len())
		return reply(Reply{Text: h.tr.T("add_ask_name"), Keyboard: [][]string{{commandCancel}}})
	case h.tr.T("menu_back"):
		return reply(Reply{Text: h.tr.T("main_menu"), Keyboard: h.mainMenu()})
	}

	if name, ok := strings.CutPrefix(text, detailsPrefix); ok {
		return h.detailsScreen(ctx, logger, name)
	}
	if name, ok := strings.CutPrefix(text, switchPrefix); ok {
		return h.switchTo(ctx, logger, name)
	}
	return reply(Reply{Text: h.tr.T("unknown_input"), Keyboard: h.mainMenu()})
}

func (h *Handler) handleCallback(ctx context.Context, logger *slog.Logger, data string) Response {
	switch {
	case data == CallbackNext:
		return h.next(ctx, logger)
	case data == CallbackBack:
		return Response{Dismiss: true, Replies: []Reply{{Text: h.tr.T("main_menu"), Keyboard: h.mainMenu()}}}
	case data == CallbackDetails:
		resp := h.detailsPicker(ctx, logger)
		resp.Dismiss = true
		resp.Replies = append([]Reply{{Text: h.tr.T("back_to_list")}}, resp.Replies...)
		return resp
	case strings.HasPrefix(data, CallbackExhaust):
		return h.exhaust(ctx, logger, strings.TrimPrefix(data, CallbackExhaust))
	case strings.HasPrefix(data, CallbackActivate):
		return h.activate(ctx, logger, strings.TrimPrefix(data, CallbackActivate))
	case strings.HasPrefix(data, CallbackDelete):
		return h.remove(ctx, logger, strings.TrimPrefix(data, CallbackDelete))
	default:
		logger.Warn("Unknown callback", "callback", data)
		return Response{Notice: h.tr.T("notice_error")}
	}
}

func (h *Handler) currentScreen(ctx context.Context, logger *slog.Logger) Response {
	rec, p, err := h.svc.Current(ctx)
	if errors.Is(err, keypool.ErrNoActiveKeys) {
		return reply(Reply{Text: h.tr.T("no_active_keys"), Keyboard: h.emptyMenu()})
	}
	if err != nil {
		return h.failure(logger, "current", err)
	}
	return reply(h.keyCard("title_current", rec, p))
}

func (h *Handler) next(ctx context.Context, logger *slog.Logger) Response {
	rec, p, err := h.svc.Next(ctx)
	if errors.Is(err, keypool.ErrNoActiveKeys) {
		return Response{Notice: h.tr.T("notice_no_active_keys")}
	}
	if err != nil {
		return h.callbackFailure(logger, "next", err)
	}
	return Response{
		Notice:  h.tr.Tf("notice_switched", map[string]any{"Name": rec.Name}),
		Dismiss: true,
		Replies: []Reply{h.keyCard("title_next", rec, p)},
	}
}

// exhaust marks name exhausted and moves rotation to the following active key.
func (h *Handler) exhaust(ctx context.Context, logger *slog.Logger, name string) Response {
	res, err := h.svc.ExhaustAndAdvance(ctx, name)
	if err != nil {
		if errors.Is(err, keypool.ErrNotFound) {
			return Response{Notice: h.tr.T("notice_key_not_found")}
		}
		return h.callbackFailure(logger, "exhaust", err)
	}

	resp := Response{
		Notice:  h.tr.Tf("notice_exhausted", map[string]any{"Name": name}),
		Dismiss: true,
		Replies: []Reply{{Text: h.tr.Tf("exhausted", map[string]any{"Name": name}), Markdown: true}},
	}
	if res.Next == nil {
		resp.add(Reply{Text: h.tr.T("no_more_active_keys"), Keyboard: h.emptyMenu()})
		return resp
	}
	resp.add(h.keyCard("title_new_active", *res.Next, res.Pool))
	return resp
}

func (h *Handler) activate(ctx context.Context, logger *slog.Logger, name string) Response {
	if _, err := h.svc.Activate(ctx, name); err != nil {
		if errors.Is(err, keypool.ErrNotFound) {
			return Response{Notice: h.tr.T("notice_key_not_found")}
		}
		return h.callbackFailure(logger, "activate", err)
	}
	return Response{
		Notice:  h.tr.Tf("notice_activated", map[string]any{"Name": name}),
		Dismiss: true,
		Replies: []Reply{{
			Text:     h.tr.Tf("activated", map[string]any{"Name": name}),
			Markdown: true,
			Keyboard: h.mainMenu(),
		}},
	}
}

func (h *Handler) remove(ctx context.Context, logger *slog.Logger, name string) Response {
	if err := h.svc.Remove(ctx, name); err != nil {
		if errors.Is(err, keypool.ErrNotFound) {
			return Response{Notice: h.tr.T("notice_key_not_found")}
		}
		return h.callbackFailure(logger, "remove", err)
	}
	return Response{
		Notice:  h.tr.Tf("notice_deleted", map[string]any{"Name": name}),
		Dismiss: true,
		Replies: []Reply{{
			Text:     h.tr.Tf("deleted", map[string]any{"Name": name}),
			Markdown: true,
			Keyboard: h.mainMenu(),
		}},
	}
}

func (h *Handler) listScreen(ctx context.Context, logger *slog.Logger) Response {
	p, err := h.svc.List(ctx)
	if err != nil {
		return h.failure(logger, "list", err)
	}
	return reply(Reply{Text: h.keyList(p), Markdown: len(p) > 0, Inline: h.backInline()})
}

func (h *Handler) statsScreen(ctx context.Context, logger *slog.Logger) Response {
	stats, err := h.svc.Stats(ctx)
	if err != nil {
		return h.failure(logger, "stats", err)
	}
	if stats.Total == 0 {
		return reply(Reply{Text: h.tr.T("list_empty")})
	}
	return reply(Reply{Text: h.statsText(stats), Markdown: true, Inline: h.backInline()})
}

func (h *Handler) detailsPicker(ctx context.Context, logger *slog.Logger) Response {
	p, err := h.svc.List(ctx)
	if err != nil {
		return h.failure(logger, "details", err)
	}
	if len(p) == 0 {
		return reply(Reply{Text: h.tr.T("list_empty")})
	}
	names := make([]string, len(p))
	for i, r := range p {
		names[i] = r.Name
	}
	return reply(Reply{Text: h.tr.T("details_choose"), Keyboard: h.picker(detailsPrefix, names, detailsPerRow)})
}

func (h *Handler) detailsScreen(ctx context.Context, logger *slog.Logger, name string) Response {
	rec, err := h.svc.Get(ctx, name)
	if errors.Is(err, keypool.ErrNotFound) {
		return reply(Reply{Text: h.tr.T("key_not_found")})
	}
	if err != nil {
		return h.failure(logger, "details", err)
	}
	return reply(Reply{Text: h.keyInfo(rec), Markdown: true, Inline: h.infoInline(rec.Name)})
}

func (h *Handler) switchPicker(ctx context.Context, logger *slog.Logger) Response {
	p, err := h.svc.List(ctx)
	if err != nil {
		return h.failure(logger, "switch", err)
	}
	var names []string
	for _, r := range p {
		if r.Active {
			names = append(names, r.Name)
		}
	}
	if len(names) == 0 {
		return reply(Reply{Text: h.tr.T("no_active_keys"), Keyboard: h.emptyMenu()})
	}
	return reply(Reply{Text: h.tr.T("switch_choose"), Keyboard: h.picker(switchPrefix, names, switchPerRow)})
}

func (h *Handler) switchTo(ctx context.Context, logger *slog.Logger, name string) Response {
	_, err := h.svc.Select(ctx, name)
	switch {
	case errors.Is(err, keypool.ErrNotFound):
		return reply(Reply{Text: h.tr.T("key_not_found")})
	case errors.Is(err, keypool.ErrKeyExhausted):
		return reply(Reply{Text: h.tr.Tf("switch_exhausted", map[string]any{"Name": name}), Markdown: true})
	case err != nil:
		return h.failure(logger, "select", err)
	}

	resp := reply(Reply{
		Text:     h.tr.Tf("switch_done", map[string]any{"Name": name}),
		Markdown: true,
		Keyboard: h.mainMenu(),
	})
	resp.add(h.currentScreen(ctx, logger).Replies...)
	return resp
}

func (h *Handler) resetAll(ctx context.Context, logger *slog.Logger) Response {
	if _, err := h.svc.Reset(ctx); err != nil {
		return h.failure(logger, "reset", err)
	}
	resp := reply(Reply{Text: h.tr.T("reset_done"), Keyboard: h.mainMenu()})
	resp.add(h.currentScreen(ctx, logger).Replies...)
	return resp
}

func (h *Handler) cancelWizard(operatorID string) Response {
	h.sessions.End(operatorID)
	return reply(Reply{Text: h.tr.T("add_cancelled"), Keyboard: h.mainMenu()})
}

// wizardStep consumes one answer of the add-key dialogue.
func (h *Handler) wizardStep(ctx context.Context, logger *slog.Logger, sess AddKeySession, text string) Response {
	cancelRow := [][]string{{commandCancel}}
	ask := func(id string) Response {
		h.sessions.Put(sess)
		return reply(Reply{Text: h.tr.T(id), Keyboard: cancelRow})
	}

	switch sess.Step {
	case StepName:
		if err := pool.ValidateName(text); err != nil {
			return reply(Reply{Text: h.tr.T("add_invalid_name"), Keyboard: cancelRow})
		}
		if _, err := h.svc.Get(ctx, text); err == nil {
			return reply(Reply{Text: h.tr.Tf("add_duplicate", map[string]any{"Name": text}), Markdown: true, Keyboard: cancelRow})
		}
		sess.Input.Name = text
		sess.Step = StepValue
		return ask("add_ask_value")

	case StepValue:
		if err := pool.ValidateValue(text); err != nil {
			return reply(Reply{Text: h.tr.T("add_invalid_value"), Keyboard: cancelRow})
		}
		sess.Input.Value = text
		sess.Step = StepEmail
		return ask("add_ask_email")

	case StepEmail:
		if text != skipField {
			if err := pool.ValidateEmail(text); err != nil {
				return reply(Reply{Text: h.tr.T("add_invalid_email"), Keyboard: cancelRow})
			}
			sess.Input.Email = text
		}
		sess.Step = StepPassword
		return ask("add_ask_password")
	}

	if text != skipField {
		sess.Input.Password = text
	}
	rec, err := h.svc.AddKey(ctx, sess.Input)
	if errors.Is(err, keypool.ErrDuplicateName) {
		// taken by another session since the name step; ask again
		name := sess.Input.Name
		sess.Input = pool.AddKeyInput{}
		sess.Step = StepName
		h.sessions.Put(sess)
		return reply(Reply{Text: h.tr.Tf("add_duplicate", map[string]any{"Name": name}), Markdown: true, Keyboard: cancelRow})
	}
	h.sessions.End(sess.OperatorID)
	if err != nil {
		return h.failure(logger, "add", err)
	}
	logger.Info("Key added", "key", rec.Name, "session_id", sess.ID)
	return reply(Reply{Text: h.tr.Tf("add_done", map[string]any{"Name": rec.Name}), Markdown: true, Keyboard: h.mainMenu()})
}

func (h *Handler) failure(logger *slog.Logger, op string, err error) Response {
	logger.Error("Chat operation failed", "operation", op, "err", err)
	msg := h.tr.T("error_generic")
	if errors.Is(err, keypool.ErrPersistence) {
		msg = h.tr.T("error_persistence")
	}
	return reply(Reply{Text: msg, Keyboard: h.mainMenu()})
}

func (h *Handler) callbackFailure(logger *slog.Logger, op string, err error) Response {
	resp := h.failure(logger, op, err)
	resp.Notice = h.tr.T("notice_error")
	return resp
}

func reply(r Reply) Response {
	return Response{Replies: []Reply{r}}
}
