package pagekit

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type loginRequest struct {
	Username string `json:"username" form:"username"`
	Password string `json:"password" form:"password"`
}

func (a *App) handleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return validationError("username and password are required")
	}
	token, err := a.Auth.Login(req.Username, req.Password)
	if err != nil {
		if KindOf(err) == KindAuthentication {
			a.log.Warn("admin login rejected", zap.String("ip", c.RealIP()))
		}
		return err
	}
	a.log.Info("admin login", zap.String("username", req.Username), zap.String("ip", c.RealIP()))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"token":   token,
		"message": "login successful",
	})
}

func (a *App) handleVerify(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{
		"valid": true,
		"user":  ClaimsFrom(c),
	})
}

func (a *App) handleImageUpload(c echo.Context) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return validationError("no image provided")
	}
	img, err := a.Images.Upload(c.Request().Context(), fh, a.publicBaseURL(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"filename":     img.Filename,
		"url":          img.URL,
		"size":         img.Size,
		"width":        img.Width,
		"height":       img.Height,
		"originalName": img.OriginalName,
		"uploadedAt":   img.UploadedAt,
		"message":      "image uploaded",
	})
}

func (a *App) handleImageList(c echo.Context) error {
	images, err := a.Images.List(a.publicBaseURL(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"images": images})
}

func (a *App) handleImageDelete(c echo.Context) error {
	filename := c.Param("filename")
	if unescaped, err := url.PathUnescape(filename); err == nil {
		filename = unescaped
	}
	if err := a.Images.Delete(c.Request().Context(), filename); err != nil {
		if KindOf(err) == KindAccessDenied {
			a.log.Warn("image delete outside upload dir rejected",
				zap.String("filename", filename),
				zap.String("ip", c.RealIP()))
		}
		return err
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "message": "image deleted"})
}

func (a *App) handlePageData(c echo.Context) error {
	data, err := a.Pages.FetchOrCreate(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, data)
}

func (a *App) handlePageDataSave(c echo.Context) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		var he *echo.HTTPError
		if errors.As(err, &he) {
			return he
		}
		return validationError("invalid data")
	}
	saved, err := a.Pages.Save(c.Request().Context(), body)
	if err != nil {
		return err
	}
	a.log.Info("page data saved",
		zap.String("username", ClaimsFrom(c).Username),
		zap.Int("services", len(saved.Services)))
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "data saved",
		"data":    saved,
	})
}

// healthPingTimeout bounds the store check behind /api/health.
const healthPingTimeout = 2 * time.Second

func (a *App) handleHealth(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), healthPingTimeout)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		return storeUnavailableError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "OK", "server": "running"})
}

// publicBaseURL returns the configured base URL, or one derived from the
// request (honoring X-Forwarded-Proto/Host from a proxy).
func (a *App) publicBaseURL(c echo.Context) string {
	if a.Config.PublicBaseURL != "" {
		return a.Config.PublicBaseURL
	}
	r := c.Request()
	proto := firstHeaderValue(r.Header.Get(echo.HeaderXForwardedProto))
	if proto == "" {
		proto = c.Scheme()
	}
	host := firstHeaderValue(r.Header.Get("X-Forwarded-Host"))
	if host == "" {
		host = r.Host
	}
	return proto + "://" + host
}

// httpErrorHandler renders every error as {"error": message}.
func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := "internal server error"

	var pe *Error
	var he *echo.HTTPError
	switch {
	case errors.As(err, &pe):
		code = pe.Status
		msg = pe.Message
	case errors.As(err, &he):
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}

	if code >= 500 {
		a.log.Error("server error",
			zap.String("method", c.Request().Method),
			zap.String("uri", c.Request().RequestURI),
			zap.Error(err))
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, echo.Map{"error": msg})
	}
	if err != nil {
		a.log.Error("write error response", zap.Error(err))
	}
}
