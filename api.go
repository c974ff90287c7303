package stagehand

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/eringen/stagehand/editor"
)

// mutationResponse is returned by every endpoint that changes state: the
// operation's own result plus the recomputed set of unpublished sections.
type mutationResponse struct {
	Result      any      `json:"result"`
	Unpublished []string `json:"unpublished"`
}

func (a *App) respondMutation(c echo.Context, code int, result any) error {
	pending, err := a.Editor.Aggregator.Unpublished(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(code, mutationResponse{Result: result, Unpublished: pending.Sorted()})
}

func (a *App) handleGetLayout(c echo.Context) error {
	l, err := a.Editor.Layouts.Get(c.Request().Context(), c.Param("section"))
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, l)
}

type setLayoutRequest struct {
	Layout string `json:"layout" form:"layout"`
}

func (a *App) handleSetLayout(c echo.Context) error {
	var req setLayoutRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	layout, err := editor.ParseLayout(req.Layout)
	if err != nil {
		return apiError(err)
	}
	l, err := a.Editor.Layouts.Set(c.Request().Context(), c.Param("section"), layout)
	if err != nil {
		return apiError(err)
	}
	return a.respondMutation(c, http.StatusOK, l)
}

func (a *App) handlePublishLayout(c echo.Context) error {
	l, err := a.Editor.Layouts.Publish(c.Request().Context(), c.Param("section"))
	if err != nil {
		return apiError(err)
	}
	a.Cache.Invalidate()
	return a.respondMutation(c, http.StatusOK, l)
}

type contentResponse struct {
	Section string            `json:"section"`
	Mode    editor.Mode       `json:"mode"`
	Values  map[string]string `json:"values"`
}

func (a *App) handleGetContent(c echo.Context) error {
	mode := editor.ParseMode(c.QueryParam("mode"))
	values, err := a.Editor.Content.Section(c.Request().Context(), c.Param("section"), mode)
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, contentResponse{Section: c.Param("section"), Mode: mode, Values: values})
}

type setContentRequest struct {
	Value string `json:"value" form:"value"`
}

func (a *App) handleSetContent(c echo.Context) error {
	var req setContentRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	item, err := a.Editor.Content.Set(c.Request().Context(), c.Param("section"), c.Param("key"), req.Value)
	if err != nil {
		return apiError(err)
	}
	return a.respondMutation(c, http.StatusOK, item)
}

func (a *App) handlePublishContent(c echo.Context) error {
	report, err := a.Editor.Content.PublishSection(c.Request().Context(), c.Param("section"))
	if err != nil {
		return apiError(err)
	}
	a.Cache.Invalidate()
	return a.respondMutation(c, http.StatusOK, report)
}

type selectImageRequest struct {
	URL string `json:"url" form:"url"`
}

func (a *App) handleSelectImage(c echo.Context) error {
	var req selectImageRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if strings.TrimSpace(req.URL) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "url is required")
	}
	img, err := a.Editor.Images.SelectForSection(c.Request().Context(), c.Param("section"), req.URL)
	if err != nil {
		return apiError(err)
	}
	return a.respondMutation(c, http.StatusOK, img)
}

// handleSectionImages lists every image row of one section, newest first.
func (a *App) handleSectionImages(c echo.Context) error {
	rows, err := a.Editor.Images.Section(c.Request().Context(), c.Param("section"))
	if err != nil {
		return apiError(err)
	}
	if rows == nil {
		rows = []editor.ImageAsset{}
	}
	return c.JSON(http.StatusOK, rows)
}

func (a *App) handleImageLibrary(c echo.Context) error {
	lib, err := a.Editor.Images.Library(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	if lib == nil {
		lib = []editor.LibraryImage{}
	}
	return c.JSON(http.StatusOK, lib)
}

func (a *App) handleImageDelete(c echo.Context) error {
	deleted, err := a.Editor.Images.Delete(c.Request().Context(), c.Param("id"))
	if err != nil {
		return apiError(err)
	}
	if err := a.Objects.RemoveURL(deleted.URL); err != nil {
		a.Log.Warn("remove image file", zap.String("url", deleted.URL), zap.Error(err))
	}
	a.Cache.Invalidate()
	return a.respondMutation(c, http.StatusOK, deleted)
}

type cleanupResponse struct {
	Removed int `json:"removed"`
}

func (a *App) handleImageCleanup(c echo.Context) error {
	n, err := a.Editor.Images.CleanupDuplicates(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	return a.respondMutation(c, http.StatusOK, cleanupResponse{Removed: n})
}

func (a *App) handleUnpublished(c echo.Context) error {
	pending, err := a.Editor.Aggregator.Unpublished(c.Request().Context())
	if err != nil {
		return apiError(err)
	}
	return c.JSON(http.StatusOK, mutationResponse{Unpublished: pending.Sorted()})
}

type publishRequest struct {
	Sections []string `json:"sections"`
}

// handlePublishAll publishes the given sections' layouts (or every pending
// section's when none are given) and all staged images and content. Row
// failures do not fail the request; they are listed in the report.
func (a *App) handlePublishAll(c echo.Context) error {
	var req publishRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	ctx := c.Request().Context()
	sections := req.Sections
	if len(sections) == 0 {
		pending, err := a.Editor.Aggregator.Unpublished(ctx)
		if err != nil {
			return apiError(err)
		}
		sections = pending.Sorted()
	}
	report, err := a.Editor.Publisher.PublishAll(ctx, sections)
	a.Cache.Invalidate()
	if err != nil {
		return apiError(err)
	}
	if report.Partial() {
		a.Log.Warn("partial publish", zap.Int("failures", len(report.Failures)))
	}
	return c.JSON(http.StatusOK, mutationResponse{Result: report, Unpublished: report.Remaining})
}
