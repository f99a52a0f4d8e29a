// Package auth provides API token authentication for the ledger API.
package auth

import (
	"fmt"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/RH-FMK/sktm/pkg/types"
)

// Validator checks API tokens against a token file. When no token file
// is configured the validator is permissive, which suits a daemon
// bound to localhost next to its CI driver.
type Validator struct {
	apiTokens map[string]bool
	open      bool
}

// NewValidator creates a validator from the API_TOKENS_FILE
// environment variable (one token per line).
func NewValidator() (*Validator, error) {
	v := &Validator{apiTokens: make(map[string]bool)}

	tokenFile := os.Getenv("API_TOKENS_FILE")
	if tokenFile == "" {
		v.open = true
		logrus.Warn("API_TOKENS_FILE not set; API authentication disabled")
		return v, nil
	}

	content, err := os.ReadFile(tokenFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read API tokens: %w", err)
	}

	for _, line := range strings.Split(string(content), "\n") {
		token := strings.TrimSpace(line)
		if token != "" {
			v.apiTokens[token] = true
		}
	}

	if len(v.apiTokens) == 0 {
		return nil, fmt.Errorf("token file %s contains no tokens", tokenFile)
	}

	return v, nil
}

// Middleware returns Gin middleware enforcing token authentication.
func (v *Validator) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if v.open || v.validateAPIToken(c) {
			c.Next()
			return
		}

		c.AbortWithStatusJSON(401, types.ErrorResponse{
			Error:   "authentication required",
			Message: "provide a valid API token",
			Code:    401,
		})
	}
}

// validateAPIToken checks the Authorization and X-API-Token headers.
func (v *Validator) validateAPIToken(c *gin.Context) bool {
	authHeader := c.GetHeader("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return v.apiTokens[strings.TrimPrefix(authHeader, "Bearer ")]
	}

	if token := c.GetHeader("X-API-Token"); token != "" {
		return v.apiTokens[token]
	}

	return false
}
