package services

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"os"
	"strings"
	"time"

	"github.com/fogleman/gg"
	"github.com/go-pdf/fpdf"
	"github.com/golang/freetype/truetype"
	"github.com/google/uuid"
	"golang.org/x/image/font"
	"gorm.io/gorm"

	"github.com/testschool/testschool-backend/internal/logger"
	"github.com/testschool/testschool-backend/internal/repos"
	"github.com/testschool/testschool-backend/internal/requestdata"
	"github.com/testschool/testschool-backend/internal/types"
)

var ErrNoCertificate = fmt.Errorf("No certificate available")

const certificateTitle = "Test_School Digital Competency Certificate"

type CertificateService interface {
	// IssueForAttempt is called on exam finalization. At most one certificate
	// row exists per attempt; mail delivery is best-effort and never blocks
	// or fails the caller.
	IssueForAttempt(ctx context.Context, userID, attemptID uuid.UUID, level types.Level)
	ListMine(ctx context.Context) ([]*types.Certificate, error)
	LatestPDF(ctx context.Context) (*types.Certificate, []byte, error)
	PDFByID(ctx context.Context, id uuid.UUID) (*types.Certificate, []byte, error)
}

type certificateService struct {
	db          *gorm.DB
	log         *logger.Logger
	certRepo    repos.CertificateRepo
	examRepo    repos.ExamRepo
	attemptRepo repos.AttemptRepo
	userRepo    repos.UserRepo
	mailService MailService

	sealFace font.Face
}

func NewCertificateService(
	db *gorm.DB,
	log *logger.Logger,
	certRepo repos.CertificateRepo,
	examRepo repos.ExamRepo,
	attemptRepo repos.AttemptRepo,
	userRepo repos.UserRepo,
	mailService MailService,
) CertificateService {
	serviceLog := log.With("service", "CertificateService")
	var face font.Face
	if fontPath := strings.TrimSpace(os.Getenv("CERTIFICATE_FONT")); fontPath != "" {
		loaded, err := loadFontFace(fontPath, 64)
		if err != nil {
			serviceLog.Warn("Could not load certificate font, using built-in face", "font", fontPath, "error", err)
		} else {
			face = loaded
		}
	}
	return &certificateService{
		db:          db,
		log:         serviceLog,
		certRepo:    certRepo,
		examRepo:    examRepo,
		attemptRepo: attemptRepo,
		userRepo:    userRepo,
		mailService: mailService,
		sealFace:    face,
	}
}

func loadFontFace(path string, points float64) (font.Face, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	parsed, err := truetype.Parse(raw)
	if err != nil {
		return nil, err
	}
	return truetype.NewFace(parsed, &truetype.Options{Size: points}), nil
}

func (cs *certificateService) IssueForAttempt(ctx context.Context, userID, attemptID uuid.UUID, level types.Level) {
	fresh := &types.Certificate{
		ID:        uuid.New(),
		UserID:    userID,
		AttemptID: attemptID,
		Level:     level,
		CreatedAt: time.Now(),
	}
	stored, err := cs.certRepo.CreateIfAbsent(ctx, nil, fresh)
	if err != nil {
		cs.log.Warn("Certificate issuance failed", "user_id", userID, "attempt_id", attemptID, "error", err)
		return
	}
	if stored.ID != fresh.ID {
		// Already issued for this attempt; nothing to deliver again.
		return
	}
	users, err := cs.userRepo.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil || len(users) == 0 {
		cs.log.Warn("Certificate issued but holder lookup failed", "user_id", userID, "error", err)
		return
	}
	user := users[0]
	pdfBytes, err := cs.buildPDF(stored, user)
	if err != nil {
		cs.log.Warn("Certificate PDF rendering failed", "certificate_id", stored.ID, "error", err)
		return
	}
	go cs.emailCertificate(user, stored, pdfBytes)
}

func (cs *certificateService) emailCertificate(user *types.User, cert *types.Certificate, pdfBytes []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	body := fmt.Sprintf("<p>Congratulations! You achieved level <b>%s</b>. Your certificate is attached.</p>", cert.Level)
	err := cs.mailService.Send(ctx, user.Email, "Your certificate", body, []Attachment{{
		Filename:    fmt.Sprintf("certificate-%s.pdf", cert.ID),
		ContentType: "application/pdf",
		Data:        pdfBytes,
	}})
	if err != nil {
		cs.log.Warn("Certificate mail delivery failed", "certificate_id", cert.ID, "error", err)
	}
}

func (cs *certificateService) ListMine(ctx context.Context) ([]*types.Certificate, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		return nil, ErrNoRequestData
	}
	return cs.certRepo.ListByUser(ctx, nil, rd.UserID)
}

// LatestPDF issues the certificate lazily when the exam completed before one
// was stored (e.g. issuance failed during submit).
func (cs *certificateService) LatestPDF(ctx context.Context) (*types.Certificate, []byte, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		return nil, nil, ErrNoRequestData
	}
	cert, err := cs.certRepo.LatestByUser(ctx, nil, rd.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to load certificate: %w", err)
	}
	if cert == nil {
		exam, eErr := cs.examRepo.GetByUserID(ctx, nil, rd.UserID)
		if eErr != nil {
			return nil, nil, fmt.Errorf("Failed to load exam: %w", eErr)
		}
		if exam == nil || exam.Status != types.ExamCompleted || exam.FinalLevel == nil {
			return nil, nil, ErrNoCertificate
		}
		attempt, aErr := cs.attemptRepo.LatestSubmittedByExam(ctx, nil, exam.ID)
		if aErr != nil {
			return nil, nil, fmt.Errorf("Failed to load attempt: %w", aErr)
		}
		if attempt == nil {
			return nil, nil, ErrNoCertificate
		}
		cert, eErr = cs.certRepo.CreateIfAbsent(ctx, nil, &types.Certificate{
			ID:        uuid.New(),
			UserID:    rd.UserID,
			AttemptID: attempt.ID,
			Level:     *exam.FinalLevel,
			CreatedAt: time.Now(),
		})
		if eErr != nil {
			return nil, nil, fmt.Errorf("Failed to issue certificate: %w", eErr)
		}
	}
	return cs.renderFor(ctx, cert)
}

func (cs *certificateService) PDFByID(ctx context.Context, id uuid.UUID) (*types.Certificate, []byte, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil {
		return nil, nil, ErrNoRequestData
	}
	cert, err := cs.certRepo.GetByIDAndUser(ctx, nil, id, rd.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to load certificate: %w", err)
	}
	if cert == nil {
		return nil, nil, ErrNoCertificate
	}
	return cs.renderFor(ctx, cert)
}

func (cs *certificateService) renderFor(ctx context.Context, cert *types.Certificate) (*types.Certificate, []byte, error) {
	users, err := cs.userRepo.GetByIDs(ctx, nil, []uuid.UUID{cert.UserID})
	if err != nil || len(users) == 0 {
		return nil, nil, fmt.Errorf("Failed to load certificate holder: %w", err)
	}
	pdfBytes, err := cs.buildPDF(cert, users[0])
	if err != nil {
		return nil, nil, fmt.Errorf("Failed to render certificate: %w", err)
	}
	return cert, pdfBytes, nil
}

// renderSeal draws the round level badge embedded in the PDF.
func (cs *certificateService) renderSeal(level types.Level) (*bytes.Buffer, error) {
	const size = 512
	dc := gg.NewContext(size, size)

	dc.DrawCircle(float64(size)/2, float64(size)/2, float64(size)/2)
	dc.Clip()

	dc.SetColor(color.NRGBA{R: 0x1f, G: 0x3a, B: 0x5f, A: 0xff})
	dc.DrawRectangle(0, 0, float64(size), float64(size))
	dc.Fill()

	dc.SetColor(color.NRGBA{R: 0xd4, G: 0xaf, B: 0x37, A: 0xff})
	dc.SetLineWidth(14)
	dc.DrawCircle(float64(size)/2, float64(size)/2, float64(size)/2-18)
	dc.Stroke()

	if cs.sealFace != nil {
		dc.SetFontFace(cs.sealFace)
	}
	dc.SetColor(color.White)
	dc.DrawStringAnchored(string(level), float64(size)/2, float64(size)/2, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode seal PNG: %w", err)
	}
	return &buf, nil
}

func (cs *certificateService) buildPDF(cert *types.Certificate, user *types.User) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 24)
	pdf.CellFormat(0, 40, certificateTitle, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 16)
	pdf.CellFormat(0, 12, fmt.Sprintf("Awarded to %s", user.Name), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "B", 20)
	pdf.CellFormat(0, 14, fmt.Sprintf("Level: %s", cert.Level), "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 10, fmt.Sprintf("Issued: %s", cert.CreatedAt.Format("Jan 2, 2006")), "", 1, "C", false, 0, "")

	seal, err := cs.renderSeal(cert.Level)
	if err != nil {
		return nil, err
	}
	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("seal", opts, seal)
	pageWidth, _ := pdf.GetPageSize()
	pdf.ImageOptions("seal", pageWidth/2-25, 130, 50, 50, false, opts, 0, "")

	var out bytes.Buffer
	if err := pdf.Output(&out); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return out.Bytes(), nil
}
