package handlers

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"
	config "github.com/maheshrc27/crosspost/configs"
	"github.com/maheshrc27/crosspost/internal/service"
	"github.com/maheshrc27/crosspost/internal/transfer"
)

// PlatformHandler runs the connect flows for OAuth2 platforms and the Twitter
// OAuth1 handshake.
type PlatformHandler struct {
	s   service.OAuthService
	cfg config.Config
}

func NewPlatformHandler(s service.OAuthService, cfg config.Config) *PlatformHandler {
	return &PlatformHandler{s: s, cfg: cfg}
}

func (h *PlatformHandler) accountsPage(params url.Values) string {
	u := fmt.Sprintf("%s/dashboard/accounts", h.cfg.FrontendURL)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (h *PlatformHandler) Authorize(c *fiber.Ctx) error {
	authURL, err := h.s.AuthorizationURL(c.Context(), GetUserID(c), c.Params("platform"))
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.AuthorizationResponse{AuthorizationURL: authURL})
}

func (h *PlatformHandler) CallbackHandler(c *fiber.Ctx) error {
	platform := c.Params("platform")

	if denied := c.Query("error"); denied != "" {
		slog.Info("oauth2 authorization denied", "platform", platform, "error", denied)
		return badRequest(c, "authorization was denied: "+denied)
	}

	code, state := c.Query("code"), c.Query("state")
	if code == "" || state == "" {
		return badRequest(c, "missing code or state")
	}

	conns, err := h.s.ExchangeCode(c.Context(), platform, code, state)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Redirect(h.accountsPage(url.Values{
		"connected": {platform},
		"accounts":  {fmt.Sprint(len(conns))},
	}), fiber.StatusTemporaryRedirect)
}

func (h *PlatformHandler) InitiateOAuth1(c *fiber.Ctx) error {
	var req transfer.OAuth1Request
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid body")
		}
	}

	// Only frontend pages may be used as the final redirect.
	if req.RedirectURI != "" && !strings.HasPrefix(req.RedirectURI, h.cfg.FrontendURL+"/") {
		return badRequest(c, "redirect_uri must point at the frontend")
	}

	authURL, err := h.s.InitiateOAuth1(c.Context(), GetUserID(c), req.RedirectURI)
	if err != nil {
		return errorResponse(c, err)
	}
	return c.Status(fiber.StatusOK).JSON(transfer.AuthorizationResponse{AuthorizationURL: authURL})
}

func (h *PlatformHandler) OAuth1Callback(c *fiber.Ctx) error {
	if denied := c.Query("denied"); denied != "" {
		return badRequest(c, "authorization was denied")
	}

	token, verifier := c.Query("oauth_token"), c.Query("oauth_verifier")
	if token == "" || verifier == "" {
		return badRequest(c, "missing oauth_token or oauth_verifier")
	}

	_, redirectURI, err := h.s.CompleteOAuth1(c.Context(), token, verifier)
	if err != nil {
		return errorResponse(c, err)
	}

	if redirectURI == "" {
		redirectURI = h.accountsPage(url.Values{"connected": {"twitter"}})
	}
	return c.Redirect(redirectURI, fiber.StatusTemporaryRedirect)
}
