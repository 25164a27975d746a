// Package api serves an HTTP control surface for a single element.
package api

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/thesyncim/mediaview"
)

// StateResponse is the body of GET /state.
type StateResponse struct {
	Element      string            `json:"element"`
	Mounted      bool              `json:"mounted"`
	State        string            `json:"state"`
	Kind         string            `json:"kind"`
	PositionMS   int64             `json:"positionMs"`
	DurationMS   int64             `json:"durationMs"`
	NaturalSize  mediaview.Size    `json:"naturalSize"`
	VisibleRect  mediaview.Rect    `json:"visibleRect"`
	PlaybackRate *float64          `json:"playbackRate"` // null when NaN
	Muted        bool              `json:"muted"`
	Attributes   map[string]string `json:"attributes"`
}

// SeekRequest is the body of POST /seek.
type SeekRequest struct {
	PositionMS int64 `json:"positionMs"`
}

// StepRequest is the body of POST /step.
type StepRequest struct {
	Frames int `json:"frames"`
}

// AttributeRequest is the body of PUT /attributes/:name.
type AttributeRequest struct {
	Value string `json:"value"`
}

// CameraAccessRequest is the body of PUT /camera/access.
type CameraAccessRequest struct {
	Granted bool `json:"granted"`
}

// CameraAccess grants or refuses access to the capture devices.
type CameraAccess interface {
	SetDeny(deny bool)
}

// Controller routes HTTP requests to an element.
type Controller struct {
	Echo    *echo.Echo
	element *mediaview.Element
	log     *slog.Logger
}

// New creates a controller for element. Metrics are served from gatherer
// at /metrics when it is non-nil.
func New(element *mediaview.Element, gatherer prometheus.Gatherer, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	c := &Controller{Echo: e, element: element, log: logger.With("component", "api")}
	c.Echo.Use(c.logRequests)

	e.GET("/state", c.GetState)
	e.POST("/play", c.Play)
	e.POST("/pause", c.Pause)
	e.POST("/toggle", c.Toggle)
	e.POST("/seek", c.Seek)
	e.POST("/step", c.Step)
	e.PUT("/attributes/:name", c.SetAttribute)
	e.DELETE("/attributes/:name", c.RemoveAttribute)
	e.PUT("/bounds", c.SetBounds)
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
	return c
}

// EnableCameraAccess serves PUT /camera/access backed by access.
func (c *Controller) EnableCameraAccess(access CameraAccess) {
	c.Echo.PUT("/camera/access", func(ctx echo.Context) error {
		var req CameraAccessRequest
		if err := ctx.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid camera access request")
		}
		access.SetDeny(!req.Granted)
		c.log.Info("camera access changed", "granted", req.Granted)
		return ctx.NoContent(http.StatusNoContent)
	})
}

func (c *Controller) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		start := time.Now()
		err := next(ctx)
		c.log.Debug("request",
			"method", ctx.Request().Method,
			"path", ctx.Path(),
			"status", ctx.Response().Status,
			"duration", time.Since(start),
		)
		return err
	}
}

// Start serves on addr until ctx is done, then shuts down gracefully.
func (c *Controller) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		if err := c.Echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Echo.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// GetState handles GET /state.
func (c *Controller) GetState(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, c.state())
}

func (c *Controller) state() StateResponse {
	e := c.element
	resp := StateResponse{
		Element:     e.ID(),
		Mounted:     e.Mounted(),
		State:       e.State().String(),
		Kind:        e.ActiveKind().String(),
		PositionMS:  e.CurrentTime().Milliseconds(),
		DurationMS:  e.Duration().Milliseconds(),
		NaturalSize: e.NaturalSize(),
		VisibleRect: e.VisibleRect(),
		Muted:       e.Muted(),
		Attributes:  map[string]string{},
	}
	if rate := e.PlaybackRate(); !math.IsNaN(rate) {
		resp.PlaybackRate = &rate
	}
	for _, name := range []string{
		mediaview.AttrSourceReference, mediaview.AttrUseCamera, mediaview.AttrIsImage,
		mediaview.AttrIsLooping, mediaview.AttrPlaybackRate, mediaview.AttrAutoplay, mediaview.AttrMuted,
	} {
		if v, ok := e.Attribute(name); ok {
			resp.Attributes[name] = v
		}
	}
	return resp
}

func (c *Controller) respond(ctx echo.Context, err error) error {
	if err != nil {
		if errors.Is(err, mediaview.ErrClosed) {
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return ctx.JSON(http.StatusOK, c.state())
}

// Play handles POST /play.
func (c *Controller) Play(ctx echo.Context) error {
	return c.respond(ctx, c.element.Play())
}

// Pause handles POST /pause.
func (c *Controller) Pause(ctx echo.Context) error {
	return c.respond(ctx, c.element.Pause())
}

// Toggle handles POST /toggle.
func (c *Controller) Toggle(ctx echo.Context) error {
	return c.respond(ctx, c.element.TogglePlayback())
}

// Seek handles POST /seek.
func (c *Controller) Seek(ctx echo.Context) error {
	var req SeekRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid seek request")
	}
	return c.respond(ctx, c.element.SeekTo(time.Duration(req.PositionMS)*time.Millisecond))
}

// Step handles POST /step.
func (c *Controller) Step(ctx echo.Context) error {
	var req StepRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid step request")
	}
	return c.respond(ctx, c.element.Step(req.Frames))
}

// SetAttribute handles PUT /attributes/:name.
func (c *Controller) SetAttribute(ctx echo.Context) error {
	var req AttributeRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid attribute request")
	}
	c.element.SetAttribute(ctx.Param("name"), req.Value)
	return c.respond(ctx, nil)
}

// RemoveAttribute handles DELETE /attributes/:name.
func (c *Controller) RemoveAttribute(ctx echo.Context) error {
	c.element.RemoveAttribute(ctx.Param("name"))
	return c.respond(ctx, nil)
}

// SetBounds handles PUT /bounds. Zero bounds are accepted and ignored.
func (c *Controller) SetBounds(ctx echo.Context) error {
	var size mediaview.Size
	if err := ctx.Bind(&size); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid bounds")
	}
	c.element.Resize(size)
	return c.respond(ctx, nil)
}
