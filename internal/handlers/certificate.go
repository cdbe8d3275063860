package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/testschool/testschool-backend/internal/services"
)

type CertificateHandler struct {
	certificateService services.CertificateService
}

func NewCertificateHandler(certificateService services.CertificateService) *CertificateHandler {
	return &CertificateHandler{certificateService: certificateService}
}

// GET /api/certificates/my
func (ch *CertificateHandler) ListMine(c *gin.Context) {
	certs, err := ch.certificateService.ListMine(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"certificates": certs})
}

// GET /api/certificates/my/latest/pdf
func (ch *CertificateHandler) LatestPDF(c *gin.Context) {
	cert, pdfBytes, err := ch.certificateService.LatestPDF(c.Request.Context())
	if err != nil {
		if errors.Is(err, services.ErrNoCertificate) {
			RespondError(c, http.StatusNotFound, "no_certificate", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "render_failed", err)
		return
	}
	writePDF(c, fmt.Sprintf("certificate-%s.pdf", cert.Level), pdfBytes)
}

// GET /api/certificates/:id/pdf
func (ch *CertificateHandler) PDFByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_id", err)
		return
	}
	cert, pdfBytes, err := ch.certificateService.PDFByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNoCertificate) {
			RespondError(c, http.StatusNotFound, "no_certificate", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "render_failed", err)
		return
	}
	writePDF(c, fmt.Sprintf("certificate-%s.pdf", cert.Level), pdfBytes)
}

func writePDF(c *gin.Context, filename string, pdfBytes []byte) {
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	c.Data(http.StatusOK, "application/pdf", pdfBytes)
}
