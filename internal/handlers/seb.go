package handlers

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/testschool/testschool-backend/internal/logger"
)

// SEBHandler backs the Safe Exam Browser integration endpoints. Validation is
// advisory: when no config hash is configured server-side, any non-empty
// client token is accepted.
type SEBHandler struct {
	log          *logger.Logger
	configHash   string
	clientOrigin string
}

func NewSEBHandler(log *logger.Logger, configHash, clientOrigin string) *SEBHandler {
	return &SEBHandler{
		log:          log.With("handler", "SEBHandler"),
		configHash:   configHash,
		clientOrigin: clientOrigin,
	}
}

type sebValidateRequest struct {
	ConfigHash  string `json:"configHash"`
	ClientToken string `json:"clientToken"`
}

// POST /api/seb/validate
func (sh *SEBHandler) Validate(c *gin.Context) {
	var req sebValidateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_input", err)
		return
	}

	ok := false
	if sh.configHash != "" {
		ok = subtle.ConstantTimeCompare([]byte(strings.ToLower(req.ConfigHash)), []byte(strings.ToLower(sh.configHash))) == 1
	} else {
		ok = strings.TrimSpace(req.ClientToken) != ""
	}
	if !ok {
		sh.log.Warn("SEB validation rejected", "ip", c.ClientIP())
	}
	RespondOK(c, gin.H{"ok": ok})
}

// GET /api/seb/config
func (sh *SEBHandler) Config(c *gin.Context) {
	keyBytes := make([]byte, 16)
	if _, err := rand.Read(keyBytes); err != nil {
		RespondError(c, http.StatusInternalServerError, "config_failed", err)
		return
	}
	RespondOK(c, gin.H{
		"examUrl":        sh.clientOrigin + "/exam",
		"browserExamKey": hex.EncodeToString(keyBytes),
		"allowClipboard": false,
		"allowNewWindow": false,
		"allowWLAN":      false,
	})
}
