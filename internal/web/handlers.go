package web

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/sytexa-julia/docker-kicker/internal/kick"
)

// statusHandler answers the bare status probe
func (s *Server) statusHandler(c *gin.Context) {
	c.Status(http.StatusOK)
}

// healthHandler answers the health check endpoint
func (s *Server) healthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// kickHandler resolves the key to a configuration entry, enforces the
// allowlist, and hands the launch off to the kicker. The response is not
// written until the admission decision is made, so a limit rejection is
// always delivered as 429.
func (s *Server) kickHandler(c *gin.Context) {
	entry := s.cfg.Lookup(c.Param("key"))
	if entry == nil {
		c.Status(http.StatusBadRequest)
		return
	}

	addr := c.ClientIP()
	if !entry.AllowedFrom(addr) {
		s.logger.WithFields(logrus.Fields{
			"config": entry.Name,
			"ip":     addr,
		}).Warn("Rejected kick from disallowed address")
		c.Status(http.StatusForbidden)
		return
	}

	extraEnv := queryEnv(c.Request.URL.Query(), entry.QueryParamsToEnv)

	if err := s.kicker.Kick(c.Request.Context(), entry, extraEnv); err != nil {
		if errors.Is(err, kick.ErrLimitReached) {
			c.Status(http.StatusTooManyRequests)
			return
		}
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "internal_server_error",
			Code:    http.StatusInternalServerError,
			Message: err.Error(),
		})
		return
	}

	c.Status(http.StatusOK)
}

// queryEnv translates allowlisted query parameters into NAME=value entries.
// Parameters outside the allowlist are silently dropped so untrusted query
// strings cannot inject arbitrary environment variables.
func queryEnv(query url.Values, allowed []string) []string {
	env := []string{}
	for _, name := range allowed {
		if query.Has(name) {
			env = append(env, name+"="+query.Get(name))
		}
	}
	return env
}
