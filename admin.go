package stagehand

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/eringen/stagehand/editor"
	"github.com/eringen/stagehand/views"
)

func (a *App) handleAdmin(c echo.Context) error {
	if !IsAdmin(c) {
		return Render(c, a.Views.AdminLogin(a.siteView(), false, CsrfToken(c)))
	}
	ctx := c.Request().Context()
	pending, err := a.Editor.Aggregator.Unpublished(ctx)
	if err != nil {
		return err
	}
	sections := make([]views.Section, 0, len(a.Config.Sections))
	for _, name := range a.Config.Sections {
		snap, err := a.snapshot(ctx, name, editor.Staging)
		if err != nil {
			return err
		}
		sections = append(sections, snap.view(pending.Has(name)))
	}
	layouts := make([]string, len(editor.KnownLayouts))
	for i, l := range editor.KnownLayouts {
		layouts[i] = string(l)
	}
	return Render(c, a.Views.AdminEditor(a.siteView(), sections, pending.Sorted(), layouts, CsrfToken(c)))
}

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return c.String(http.StatusTooManyRequests, "Too many login attempts. Try again later.")
	}
	if a.checkPassword(c.FormValue("password")) {
		if err := setAdminSession(c); err != nil {
			return err
		}
		a.Log.Info("admin login", zap.String("ip", ip))
		return c.Redirect(http.StatusSeeOther, "/admin/")
	}
	a.loginLimiter.Record(ip)
	a.Log.Warn("admin login failed", zap.String("ip", ip))
	return Render(c, a.Views.AdminLogin(a.siteView(), true, CsrfToken(c)))
}

// checkPassword accepts either a bcrypt hash or a plain-text password in
// the config.
func (a *App) checkPassword(pass string) bool {
	want := a.Config.AdminPassword
	if isBcryptHash(want) {
		return bcrypt.CompareHashAndPassword([]byte(want), []byte(pass)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(pass), []byte(want)) == 1
}

func isBcryptHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.Redirect(http.StatusSeeOther, "/admin/")
}
