package stagehand

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/stagehand/editor"
	"github.com/eringen/stagehand/views"
)

// SectionSnapshot is everything a page needs to render one section in one
// mode.
type SectionSnapshot struct {
	Section string             `json:"section"`
	Mode    editor.Mode        `json:"mode"`
	Layout  editor.Layout      `json:"layout"`
	Content map[string]string  `json:"content"`
	Image   *editor.ImageAsset `json:"image,omitempty"`
}

func (a *App) snapshot(ctx context.Context, section string, mode editor.Mode) (SectionSnapshot, error) {
	layout, err := a.Editor.Layouts.Get(ctx, section)
	if err != nil {
		return SectionSnapshot{}, err
	}
	content, err := a.Editor.Content.Section(ctx, section, mode)
	if err != nil {
		return SectionSnapshot{}, err
	}
	snap := SectionSnapshot{
		Section: layout.Section,
		Mode:    mode,
		Layout:  layout.Staging,
		Content: content,
	}
	if mode == editor.Published {
		snap.Layout = layout.Published
	}
	img, ok, err := a.Editor.Images.Active(ctx, section, mode)
	if err != nil {
		return SectionSnapshot{}, err
	}
	if ok {
		snap.Image = &img
	}
	return snap, nil
}

func (s SectionSnapshot) view(pending bool) views.Section {
	v := views.Section{
		Name:    s.Section,
		Layout:  string(s.Layout),
		Content: s.Content,
		Pending: pending,
	}
	if s.Image != nil {
		v.ImageURL = s.Image.URL
		v.ImageAlt = s.Image.AltText
	}
	return v
}

func (a *App) siteView() views.SiteConfig {
	return views.SiteConfig{
		Name:        a.Config.Name,
		URL:         a.Config.URL,
		Description: a.Config.Description,
	}
}

func (a *App) handleHome(c echo.Context) error {
	snaps, err := a.Cache.Sections(c.Request().Context())
	if err != nil {
		return err
	}
	sections := make([]views.Section, len(snaps))
	for i, s := range snaps {
		sections[i] = s.view(false)
	}
	return Render(c, a.Views.Home(a.siteView(), sections))
}

// handleSectionSnapshot serves the published snapshot of a section, or the
// staged one when an admin asks for a preview.
func (a *App) handleSectionSnapshot(c echo.Context) error {
	section := c.Param("section")
	if !a.Cache.Known(section) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown section")
	}
	if c.QueryParam("preview") != "" && IsAdmin(c) {
		snap, err := a.snapshot(c.Request().Context(), section, editor.Staging)
		if err != nil {
			return apiError(err)
		}
		return c.JSON(http.StatusOK, snap)
	}
	snap, err := a.Cache.Section(c.Request().Context(), section)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, snap)
}

func (a *App) handleFavicon(c echo.Context) error {
	return c.File(a.staticDir + "/favicon.svg")
}

func (a *App) handleRobots(c echo.Context) error {
	return c.File(a.staticDir + "/robots.txt")
}

type errorBody struct {
	Error string `json:"error"`
}

// apiError maps editor and store errors onto HTTP errors.
func apiError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, editor.ErrNotFound), errors.Is(err, ErrUnknownSection):
		return echo.NewHTTPError(http.StatusNotFound, err.Error()).SetInternal(err)
	case errors.Is(err, editor.ErrInvalidLayout),
		errors.Is(err, editor.ErrInvalidSection),
		errors.Is(err, editor.ErrInvalidKey):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error()).SetInternal(err)
	}
	return err
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	he, ok := err.(*echo.HTTPError)
	code := http.StatusInternalServerError
	if ok {
		code = he.Code
	}

	if isAPIRequest(c) {
		msg := http.StatusText(code)
		if ok {
			if s, isString := he.Message.(string); isString {
				msg = s
			}
		} else {
			// Store failures carry a human-readable message for the editor.
			msg = err.Error()
		}
		if code >= 500 {
			a.Log.Error("api error", zapError(c, err)...)
		}
		_ = c.JSON(code, errorBody{Error: msg})
		return
	}

	if code == http.StatusNotFound {
		_ = RenderStatus(c, http.StatusNotFound, a.Views.NotFound())
		return
	}
	if code >= 500 {
		a.Log.Error("server error", zapError(c, err)...)
		_ = RenderStatus(c, code, a.Views.ServerError())
		return
	}
	a.Echo.DefaultHTTPErrorHandler(err, c)
}
