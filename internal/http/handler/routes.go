package handler

import (
	"context"
	"database/sql"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"filedrop/internal/service"
	"filedrop/internal/storage"
)

// Deps bundles everything the routes need.
type Deps struct {
	DB       *sql.DB
	Ingest   service.IngestService
	Retrieve service.RetrieveService
	Shorten  service.ShortenService
	Links    *service.LinkBuilder
	Store    storage.DigestStore

	// XAccelRedirect delegates file responses to a fronting nginx.
	XAccelRedirect bool
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Handlers stay thin: parsing and response shaping here, everything
// else in the services.
func RegisterRoutes(app *fiber.App, deps Deps) {
	app.Get("/robots.txt", func(c *fiber.Ctx) error {
		c.Type("txt")
		return c.SendString("User-agent: *\nDisallow: /\n")
	})

	// Health endpoint: checks DB connectivity only
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := deps.DB.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy"})
	})

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	app.Post("/", uploadHandler(deps))

	app.Get("/s/:secret/:name", serveFileHandler(deps, true))
	app.Post("/s/:secret/:name", manageHandler(deps))

	app.Get("/:name", serveNameHandler(deps))
	app.Post("/:name", manageHandler(deps))
}

// parseExpires reads the optional expires form field. The value is
// either a number of hours or an absolute epoch-millisecond timestamp;
// the distinction is made downstream.
func parseExpires(c *fiber.Ctx) (*int64, error) {
	raw := strings.TrimSpace(c.FormValue("expires"))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return nil, service.ErrBadRequest
	}
	return &v, nil
}

// uploadHandler accepts one of three multipart forms: a file, a remote
// url to fetch, or a url to shorten. The response body is the public
// URL; X-Token carries the management token on first creation only.
func uploadHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		expires, err := parseExpires(c)
		if err != nil {
			return writeServiceError(c, err)
		}

		req := service.IngestRequest{
			Addr:                c.IP(),
			UserAgent:           c.Get(fiber.HeaderUserAgent),
			RequestedExpiration: expires,
			WantSecret:          c.FormValue("secret") != "",
		}

		if fh, err := c.FormFile("file"); err == nil {
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "cannot open uploaded file")
			}
			defer f.Close()
			data, err := io.ReadAll(f)
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "cannot read uploaded file")
			}

			req.Data = data
			req.Filename = fh.Filename
			req.DeclaredMime = fh.Header.Get(fiber.HeaderContentType)

			res, err := deps.Ingest.Ingest(c.UserContext(), req)
			if err != nil {
				return writeServiceError(c, err)
			}
			return writeUploadResult(c, deps, res)
		}

		if remote := c.FormValue("url"); remote != "" {
			res, err := deps.Ingest.IngestRemote(c.UserContext(), remote, req)
			if err != nil {
				return writeServiceError(c, err)
			}
			return writeUploadResult(c, deps, res)
		}

		if target := c.FormValue("shorten"); target != "" {
			l, err := deps.Shorten.Shorten(c.UserContext(), target)
			if err != nil {
				return writeServiceError(c, err)
			}
			return c.Status(fiber.StatusOK).SendString(deps.Links.ShortURL(l) + "\n")
		}

		return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "provide a file, url or shorten field")
	}
}

func writeUploadResult(c *fiber.Ctx, deps Deps, res *service.UploadResult) error {
	if res.Entry.ExpiresAt != nil {
		c.Set("X-Expires", strconv.FormatInt(*res.Entry.ExpiresAt, 10))
	}
	status := fiber.StatusOK
	if res.IsNew {
		status = fiber.StatusCreated
		if res.Entry.MgmtToken != nil {
			c.Set("X-Token", *res.Entry.MgmtToken)
		}
	}
	return c.Status(status).SendString(deps.Links.FileURL(res.Entry) + "\n")
}

// serveNameHandler resolves a bare path segment: dotted names are
// files, undotted ones are shortened-link redirects.
func serveNameHandler(deps Deps) fiber.Handler {
	serveFile := serveFileHandler(deps, false)
	return func(c *fiber.Ctx) error {
		name := c.Params("name")
		if strings.ContainsRune(name, '.') {
			return serveFile(c)
		}
		target, err := deps.Retrieve.LookupLink(c.UserContext(), name)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Redirect(target, fiber.StatusMovedPermanently)
	}
}

func serveFileHandler(deps Deps, withSecret bool) fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret := ""
		if withSecret {
			secret = c.Params("secret")
		}
		e, err := deps.Retrieve.LookupFile(c.UserContext(), c.Params("name"), secret)
		if err != nil {
			return writeServiceError(c, err)
		}

		if e.ExpiresAt != nil {
			c.Set("X-Expires", strconv.FormatInt(*e.ExpiresAt, 10))
		}
		if deps.XAccelRedirect {
			c.Set("X-Accel-Redirect", deps.Store.Path(e.Digest))
			c.Set(fiber.HeaderContentType, e.Mime)
			return c.SendStatus(fiber.StatusOK)
		}
		if err := c.SendFile(deps.Store.Path(e.Digest)); err != nil {
			return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "not found")
		}
		c.Response().Header.SetContentType(e.Mime)
		return nil
	}
}

// manageHandler handles owner operations: a POST to the file's own path
// carrying the management token plus either a delete flag or a new
// expiration.
func manageHandler(deps Deps) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tok := c.FormValue("token")
		if tok == "" {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "management token required")
		}
		name := c.Params("name")

		if c.FormValue("delete") != "" {
			if err := deps.Retrieve.DeleteByToken(c.UserContext(), name, tok); err != nil {
				return writeServiceError(c, err)
			}
			return c.SendStatus(fiber.StatusOK)
		}

		if raw := strings.TrimSpace(c.FormValue("expires")); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || v <= 0 {
				return writeServiceError(c, service.ErrBadRequest)
			}
			e, err := deps.Retrieve.UpdateExpirationByToken(c.UserContext(), name, tok, v)
			if err != nil {
				return writeServiceError(c, err)
			}
			if e.ExpiresAt != nil {
				c.Set("X-Expires", strconv.FormatInt(*e.ExpiresAt, 10))
			}
			return c.SendStatus(fiber.StatusOK)
		}

		return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", "provide a delete or expires field")
	}
}
