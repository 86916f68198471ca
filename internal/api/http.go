package api

import (
	"crypto/subtle"
	"strconv"

	"github.com/gofiber/contrib/otelfiber"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"github.com/advpropsys/tinymem/internal/apierr"
)

// HTTPConfig carries the pieces of server wiring the HTTP surface
// needs but does not own.
type HTTPConfig struct {
	Token          string
	CorsOrigins    string
	BodyLimitBytes int
}

// NewHTTPServer builds the fiber app and registers every route. The
// bearer token check, CORS policy, and tracing middleware follow the
// same shape used for authenticated JSON APIs elsewhere in this
// codebase: a cors.New() + tracing + auth middleware chain ahead of
// a flat route table.
func NewHTTPServer(svc *Service, cfg HTTPConfig) *fiber.App {
	app := fiber.New(fiber.Config{
		BodyLimit:    cfg.BodyLimitBytes,
		ErrorHandler: errorHandler,
	})

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CorsOrigins,
		AllowCredentials: cfg.CorsOrigins != "*",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowMethods:     "GET, POST, PUT, PATCH, DELETE, OPTIONS",
	}))
	app.Use(otelfiber.Middleware())

	// /healthz is intentionally outside the auth group: it is consulted
	// by orchestrators that may not carry the bearer token.
	app.Get("/healthz", newHealthHandler(svc))

	h := &handlers{svc: svc}
	protected := app.Group("", bearerAuth(cfg.Token))
	protected.Get("/logs", newLogsHandler(svc))
	protected.Post("/session", h.createSession)
	protected.Get("/session", h.listSessions)
	protected.Post("/start", h.startSession)
	protected.Get("/session/:id", h.getSession)
	protected.Post("/session/:id/hook", h.hook)
	protected.Post("/session/:id/msg", h.msg)
	protected.Post("/session/:id/ask", h.ask)
	protected.Post("/session/:id/summary", h.summary)
	protected.Post("/session/:id/done", h.done)
	protected.Post("/chain/link", h.chainLink)
	protected.Get("/chain/:name", h.chainLoad)
	protected.Get("/chains", h.chainList)
	protected.Post("/artifact/save", h.artifactSave)
	protected.Get("/search", h.search)
	protected.Get("/get/:id", h.get)

	return app
}

// bearerAuth rejects any request whose Authorization header does not
// present the configured token, compared in constant time so response
// timing cannot be used to guess it.
func bearerAuth(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if len(authHeader) < 7 || authHeader[:7] != "Bearer " {
			return apierr.Unauthorizedf("missing bearer token")
		}
		presented := authHeader[7:]
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return apierr.Unauthorizedf("invalid bearer token")
		}
		return c.Next()
	}
}

// errorHandler renders an apierr.Error as {"error": {"kind","message"}}
// at the Kind's mapped HTTP status; anything else falls back to 500.
func errorHandler(c *fiber.Ctx, err error) error {
	if e, ok := apierr.As(err); ok {
		return c.Status(e.Kind.HTTPStatus()).JSON(fiber.Map{
			"error": fiber.Map{"kind": e.Kind, "message": e.Reason},
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": fiber.Map{"kind": apierr.Internal, "message": err.Error()},
	})
}

type handlers struct {
	svc *Service
}

type createSessionRequest struct {
	Agent string `json:"agent"`
	Cwd   string `json:"cwd"`
	Name  string `json:"name"`
}

func (h *handlers) createSession(c *fiber.Ctx) error {
	var req createSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequestf("invalid request body: %v", err)
	}
	sess, err := h.svc.CreateSession(c.Context(), req.Agent, req.Cwd, req.Name)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

func (h *handlers) listSessions(c *fiber.Ctx) error {
	sessions, err := h.svc.ListSessions(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(sessions)
}

type startSessionRequest struct {
	ClaudeSessionID string `json:"claude_session_id"`
	Agent           string `json:"agent"`
	Cwd             string `json:"cwd"`
}

func (h *handlers) startSession(c *fiber.Ctx) error {
	var req startSessionRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequestf("invalid request body: %v", err)
	}
	id, reused, err := h.svc.StartSession(c.Context(), req.ClaudeSessionID, req.Agent, req.Cwd)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": id, "reused": reused})
}

func (h *handlers) getSession(c *fiber.Ctx) error {
	sess, err := h.svc.GetSession(c.Context(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(sess)
}

type hookRequest struct {
	Kind string `json:"kind"`
	Task string `json:"task"`
	Meta any    `json:"meta"`
}

func (h *handlers) hook(c *fiber.Ctx) error {
	var req hookRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequestf("invalid request body: %v", err)
	}
	seq, err := h.svc.Hook(c.Context(), c.Params("id"), req.Kind, req.Task, req.Meta)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"seq": seq})
}

type msgRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (h *handlers) msg(c *fiber.Ctx) error {
	var req msgRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequestf("invalid request body: %v", err)
	}
	if err := h.svc.Msg(c.Context(), c.Params("id"), req.Role, req.Content); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true})
}

type askRequest struct {
	Question string `json:"question"`
}

func (h *handlers) ask(c *fiber.Ctx) error {
	var req askRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequestf("invalid request body: %v", err)
	}
	outcome, err := h.svc.Ask(c.Context(), c.Params("id"), req.Question)
	if err != nil {
		return err
	}
	if outcome.Expired || outcome.SessDone {
		return c.JSON(fiber.Map{"error": "expired"})
	}
	return c.JSON(fiber.Map{"answer": outcome.Answer})
}

type summaryRequest struct {
	Text string `json:"text"`
}

func (h *handlers) summary(c *fiber.Ctx) error {
	var req summaryRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequestf("invalid request body: %v", err)
	}
	if err := h.svc.Summary(c.Context(), c.Params("id"), req.Text); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true})
}

func (h *handlers) done(c *fiber.Ctx) error {
	if err := h.svc.Done(c.Context(), c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"ok": true})
}

type chainLinkRequest struct {
	ChainName string `json:"chain_name"`
	Slug      string `json:"slug"`
	Content   string `json:"content"`
}

func (h *handlers) chainLink(c *fiber.Ctx) error {
	var req chainLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequestf("invalid request body: %v", err)
	}
	slug, err := h.svc.ChainLink(c.Context(), req.ChainName, req.Slug, req.Content)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"slug_used": slug})
}

func (h *handlers) chainLoad(c *fiber.Ctx) error {
	limit := queryInt(c, "limit", 0)
	offset := queryInt(c, "offset", 0)
	links, total, err := h.svc.ChainLoad(c.Context(), c.Params("name"), limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"links": links, "total": total})
}

func (h *handlers) chainList(c *fiber.Ctx) error {
	chains, err := h.svc.ChainList(c.Context())
	if err != nil {
		return err
	}
	return c.JSON(chains)
}

func (h *handlers) artifactSave(c *fiber.Ctx) error {
	var req struct {
		FilePath    string `json:"file_path"`
		Title       string `json:"title"`
		Description string `json:"description"`
	}
	if err := c.BodyParser(&req); err != nil {
		return apierr.BadRequestf("invalid request body: %v", err)
	}
	art, err := h.svc.ArtifactSave(c.Context(), req.FilePath, req.Title, req.Description)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(art)
}

func (h *handlers) search(c *fiber.Ctx) error {
	results, err := h.svc.SearchText(c.Context(), c.Query("q"))
	if err != nil {
		return err
	}
	return c.JSON(results)
}

func (h *handlers) get(c *fiber.Ctx) error {
	maxChars := queryInt(c, "max_chars", 4000)
	offset := queryInt(c, "offset", 0)
	result, err := h.svc.Get(c.Context(), c.Params("id"), maxChars, offset)
	if err != nil {
		return err
	}
	return c.JSON(result)
}

func queryInt(c *fiber.Ctx, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func newHealthHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := svc.Store.Ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "degraded",
				"redis":  "unreachable",
			})
		}
		return c.JSON(fiber.Map{"status": "ok", "redis": "reachable"})
	}
}

func newLogsHandler(svc *Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		level := c.Query("level")
		limit := queryInt(c, "limit", 100)
		offset := queryInt(c, "offset", 0)
		entries, err := svc.Log.GetLogs(level, limit, offset)
		if err != nil {
			return err
		}
		return c.JSON(entries)
	}
}
