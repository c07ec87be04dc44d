package arya

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/arya/cdn"
	"github.com/eringen/arya/credentials"
	"github.com/eringen/arya/errs"
	"github.com/eringen/arya/markdown"
	"github.com/eringen/arya/publish"
)

func (a *App) handleGetConfig(c echo.Context) error {
	return c.JSON(http.StatusOK, ConfigResponse{
		Content:   settingsView(a.Credentials.Get(credentials.Content)),
		Image:     settingsView(a.Credentials.Get(credentials.Image)),
		LinkRule:  a.Credentials.LinkRule().ID,
		LinkRules: cdn.Rules(),
	})
}

func (a *App) handleSetConfig(c echo.Context) error {
	target, err := credentials.ParseTarget(c.Param("target"))
	if err != nil {
		return err
	}
	var req SetConfigRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	creds := req.credentials()
	if err := a.Credentials.Validate(creds); err != nil {
		return err
	}
	if !a.Credentials.Set(target, creds) {
		return errs.Newf(errs.Unknown, "could not save %s settings", target).
			WithHint("settings storage is unavailable: check the database path and disk space")
	}
	if target == credentials.Content {
		a.Cache.Purge()
	}
	return c.JSON(http.StatusOK, settingsView(a.Credentials.Get(target)))
}

func (a *App) handleSetLinkRule(c echo.Context) error {
	var req LinkRuleRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if _, ok := cdn.Lookup(req.Rule); !ok {
		return errs.Newf(errs.ValidationFailed, "unknown link rule %q", req.Rule).
			WithHint("pick one of github, jsdelivr, statically or china-jsdelivr")
	}
	if !a.Credentials.SetLinkRule(req.Rule) {
		return errs.New(errs.Unknown, "could not save link rule")
	}
	return c.JSON(http.StatusOK, map[string]cdn.RuleID{"linkRule": a.Credentials.LinkRule().ID})
}

func (a *App) handleCheck(c echo.Context) error {
	target, err := credentials.ParseTarget(c.Param("target"))
	if err != nil {
		return err
	}
	report, err := a.CheckAccess(c.Request().Context(), target)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, report)
}

func (a *App) handleCheckRepository(c echo.Context) error {
	client, err := a.Client(credentials.Image)
	if err != nil {
		return err
	}
	status, err := client.CheckRepository(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, status)
}

func (a *App) handleCreateRepository(c echo.Context) error {
	var req CreateRepositoryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	client, err := a.Client(credentials.Image)
	if err != nil {
		return err
	}
	status, err := client.CreateRepository(c.Request().Context(), req.Description, req.Private)
	if err != nil {
		return err
	}
	a.logger.Info("image repository created", zap.String("repo", status.FullName))
	return c.JSON(http.StatusCreated, status)
}

func (a *App) handlePublish(c echo.Context) error {
	var req publish.Request
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	res, err := a.Publish(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (a *App) handleGallery(c echo.Context) error {
	var req GalleryRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		url = markdown.FirstImageURL(req.Markdown)
	}
	if url == "" {
		return errs.New(errs.ValidationFailed, "no image URL given").
			WithHint("insert an uploaded image into the document first")
	}
	date, _ := publish.ParseTime(req.Date)

	res, err := a.PublishGallery(c.Request().Context(), url, date)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, res)
}

func (a *App) handlePosts(c echo.Context) error {
	kind := c.QueryParam("type")
	if kind == "" {
		kind = string(publish.Blog)
	}
	ct, err := publish.ParseContentType(kind)
	if err != nil {
		return err
	}
	docs, err := a.ListPublished(c.Request().Context(), ct)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, docs)
}

func (a *App) handleHistory(c echo.Context) error {
	limit := 50
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return errs.Newf(errs.ValidationFailed, "invalid limit %q", raw).WithHint("limit must be a positive number")
		}
		limit = min(n, 500)
	}
	entries, err := a.Store.ListHistory(HistoryKind(c.QueryParam("kind")), limit)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, entries)
}
