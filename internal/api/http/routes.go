package httpapi

import (
	"bytes"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/weather-dashboard/internal/offline"
)

var validate = validator.New()

// ScriptPath is the worker script every registration names.
const ScriptPath = "/sw.js"

var hopHeaders = map[string]bool{
	"Connection":        true,
	"Keep-Alive":        true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"Content-Length":    true,
	"Host":              true,
}

// NewApp builds the Fiber app with the centralized error handler, access
// logging, panic recovery and a health endpoint.
func NewApp(name string, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          ErrorHandler,
	})

	if accessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": name,
		})
	})
	return app
}

// ErrorHandler renders every error as {error, message} JSON.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{
		"error":   true,
		"message": err.Error(),
	})
}

// RegisterRoutes wires worker management and the catch-all proxy that runs
// every other request through the registry. backend is the origin proxied
// requests are sent to.
func RegisterRoutes(app *fiber.App, registry *offline.Registry, backend *url.URL) {
	w := app.Group("/__worker")

	w.Get("/", func(c *fiber.Ctx) error {
		reg, err := registry.Status(c.UserContext())
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "failed to read worker status")
		}
		return c.JSON(reg)
	})

	w.Post("/", func(c *fiber.Ctx) error {
		req := registerQuery{Version: c.Query("version")}
		if err := validate.Struct(req); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		reg, updated, err := registry.Register(c.UserContext(), req.scriptURL())
		if err != nil {
			if errors.Is(err, offline.ErrInstallFailed) {
				return fiber.NewError(fiber.StatusBadGateway, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to register worker")
		}
		return c.JSON(fiber.Map{
			"registration": reg,
			"updated":      updated,
		})
	})

	app.All("/*", func(c *fiber.Ctx) error {
		req, err := toRequest(c, backend)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		resp, err := registry.Handle(c.UserContext(), req)
		if err != nil {
			if errors.Is(err, offline.ErrNoResponse) {
				return fiber.NewError(fiber.StatusGatewayTimeout, "offline and not cached")
			}
			return fiber.NewError(fiber.StatusBadGateway, "backend unavailable")
		}
		return writeResponse(c, resp)
	})
}

// registerQuery holds the parameters of a worker registration.
type registerQuery struct {
	Version string `validate:"required,max=64,printascii"`
}

func (q registerQuery) scriptURL() string {
	return ScriptPath + "?" + url.Values{"v": {q.Version}}.Encode()
}

// ScriptURL is the worker script URL for version.
func ScriptURL(version string) string {
	return registerQuery{Version: version}.scriptURL()
}

func toRequest(c *fiber.Ctx, backend *url.URL) (*http.Request, error) {
	ref, err := url.Parse(c.OriginalURL())
	if err != nil {
		return nil, err
	}
	target := backend.ResolveReference(ref)

	req, err := http.NewRequestWithContext(c.UserContext(), c.Method(), target.String(), bytes.NewReader(c.Body()))
	if err != nil {
		return nil, err
	}
	c.Request().Header.VisitAll(func(k, v []byte) {
		key := http.CanonicalHeaderKey(string(k))
		if hopHeaders[key] {
			return
		}
		req.Header.Add(key, string(v))
	})
	return req, nil
}

func writeResponse(c *fiber.Ctx, resp *offline.Response) error {
	body, err := resp.Body()
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	for k, vs := range resp.Header {
		if hopHeaders[http.CanonicalHeaderKey(k)] {
			continue
		}
		for _, v := range vs {
			c.Response().Header.Add(k, v)
		}
	}
	if resp.Opaque {
		c.Set("X-Offline-Opaque", "1")
	}
	return c.Status(resp.StatusCode).Send(body)
}
