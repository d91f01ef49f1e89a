package csrf

import "github.com/gofiber/fiber/v2"

// RouteConfig controls the token bootstrap endpoint
type RouteConfig struct {
	Path       string
	ContextKey string
	HeaderName string
	RouteName  string
}

const (
	defaultRoutePath = "/auth/csrf"
	defaultRouteName = "auth.csrf.get"
)

// RegisterRoutes adds a GET endpoint returning the current token. The CSRF
// middleware must run before it.
func RegisterRoutes(r fiber.Router, cfg ...RouteConfig) {
	conf := routeConfigDefault(cfg...)
	r.Get(conf.Path, tokenHandler(conf)).Name(conf.RouteName)
}

func routeConfigDefault(cfg ...RouteConfig) RouteConfig {
	conf := RouteConfig{
		Path:       defaultRoutePath,
		ContextKey: DefaultContextKey,
		HeaderName: DefaultHeaderName,
		RouteName:  defaultRouteName,
	}
	if len(cfg) == 0 {
		return conf
	}

	c := cfg[0]
	if c.Path != "" {
		conf.Path = c.Path
	}
	if c.ContextKey != "" {
		conf.ContextKey = c.ContextKey
	}
	if c.HeaderName != "" {
		conf.HeaderName = c.HeaderName
	}
	if c.RouteName != "" {
		conf.RouteName = c.RouteName
	}
	return conf
}

func tokenHandler(conf RouteConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := Token(c, conf.ContextKey)
		if token == "" {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": fiber.Map{"code": "CSRF_ERROR", "message": "CSRF middleware not configured"},
			})
		}
		c.Set(fiber.HeaderCacheControl, "no-store")
		return c.JSON(fiber.Map{
			"token":       token,
			"header_name": conf.HeaderName,
		})
	}
}
