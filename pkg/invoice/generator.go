package invoice

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"

	"github.com/dmitrymomot/substrack/pkg/logger"
	"github.com/dmitrymomot/substrack/pkg/money"
)

var (
	colorPrimary   = [3]int{30, 58, 95}
	colorTextDark  = [3]int{44, 62, 80}
	colorTextMuted = [3]int{127, 140, 141}
	colorTableHead = [3]int{241, 245, 249}
	colorGridLine  = [3]int{220, 220, 220}
	colorPaid      = [3]int{46, 204, 113}
	colorFailed    = [3]int{231, 76, 60}
)

const (
	pageMargin        = 20.0
	defaultLogoWait   = 5 * time.Second
	qrSizePixels      = 256
	fontFamily        = "Arial"
	headerBandHeight  = 34.0
	logoBoxHeightMM   = 18.0
	logoBoxMaxWidthMM = 45.0
)

// Generator lays out invoices as A4 PDF documents.
type Generator struct {
	logos       LogoFetcher
	logoTimeout time.Duration
	log         *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithLogoFetcher enables logo embedding.
func WithLogoFetcher(f LogoFetcher) Option {
	return func(g *Generator) { g.logos = f }
}

// WithLogoTimeout bounds each logo fetch. Non-positive values are ignored.
func WithLogoTimeout(d time.Duration) Option {
	return func(g *Generator) {
		if d > 0 {
			g.logoTimeout = d
		}
	}
}

// WithLogger sets the logger used for skipped logos.
func WithLogger(log *slog.Logger) Option {
	return func(g *Generator) {
		if log != nil {
			g.log = log
		}
	}
}

// NewGenerator creates a Generator. Without a LogoFetcher documents are
// rendered without a logo.
func NewGenerator(opts ...Option) *Generator {
	g := &Generator{
		logoTimeout: defaultLogoWait,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// RenderBase64 is Render encoded for email attachments.
func (g *Generator) RenderBase64(ctx context.Context, inv Invoice) (string, error) {
	raw, err := g.Render(ctx, inv)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Render produces the PDF bytes. Logo and QR code failures never fail the
// document; they are left out.
func (g *Generator) Render(ctx context.Context, inv Invoice) ([]byte, error) {
	if inv.Number == "" {
		return nil, ErrMissingNumber
	}
	if inv.Total.IsNegative() {
		return nil, ErrNegativeTotal
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, 25)
	pdf.SetCreationDate(inv.IssuedAt)
	pdf.SetTitle(inv.Number, true)
	pdf.SetAuthor(inv.Seller.Name, true)
	pdf.SetCreator("substrack", false)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.AddPage()

	logo := g.logo(ctx, inv.Seller.LogoRef)
	g.writeHeader(pdf, tr, inv, logo)
	g.writeParties(pdf, tr, inv)
	g.writeLineItems(pdf, tr, inv)
	g.writeTotals(pdf, inv)
	g.writePayment(pdf, tr, inv)
	g.writeQRCode(pdf, inv.PortalURL)
	g.writeFooter(pdf, tr, inv)
	g.addPageNumbers(pdf)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, errors.Join(ErrRenderFailed, err)
	}
	return buf.Bytes(), nil
}

type logoImage struct {
	data      []byte
	imageType string
	width     float64
	height    float64
}

// logo fetches and sniffs the merchant logo within the configured timeout.
func (g *Generator) logo(ctx context.Context, ref string) *logoImage {
	if g.logos == nil || strings.TrimSpace(ref) == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.logoTimeout)
	defer cancel()

	data, err := g.logos.Fetch(ctx, ref)
	if err != nil {
		g.log.WarnContext(ctx, "invoice logo skipped", slog.String("logo_ref", ref), logger.Error(err))
		return nil
	}

	img, err := sniffImage(data)
	if err != nil {
		g.log.WarnContext(ctx, "invoice logo skipped", slog.String("logo_ref", ref), logger.Error(err))
		return nil
	}
	return img
}

func sniffImage(data []byte) (*logoImage, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, errors.Join(ErrUnsupportedImage, err)
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return nil, ErrUnsupportedImage
	}

	var imageType string
	switch format {
	case "png":
		imageType = "PNG"
	case "jpeg":
		imageType = "JPG"
	case "gif":
		imageType = "GIF"
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, format)
	}

	// Fit into the header box keeping the aspect ratio.
	h := logoBoxHeightMM
	w := h * float64(cfg.Width) / float64(cfg.Height)
	if w > logoBoxMaxWidthMM {
		w = logoBoxMaxWidthMM
		h = w * float64(cfg.Height) / float64(cfg.Width)
	}
	return &logoImage{data: data, imageType: imageType, width: w, height: h}, nil
}

// embedImage registers an image and draws it. A broken image is dropped and
// the document error state cleared so that rendering continues.
func embedImage(pdf *fpdf.Fpdf, name, imageType string, data []byte, x, y, w, h float64) bool {
	opts := fpdf.ImageOptions{ImageType: imageType}
	pdf.RegisterImageOptionsReader(name, opts, bytes.NewReader(data))
	if !pdf.Ok() {
		pdf.ClearError()
		return false
	}
	pdf.ImageOptions(name, x, y, w, h, false, opts, 0, "")
	if !pdf.Ok() {
		pdf.ClearError()
		return false
	}
	return true
}

func (g *Generator) writeHeader(pdf *fpdf.Fpdf, tr func(string) string, inv Invoice, logo *logoImage) {
	pageWidth, _ := pdf.GetPageSize()

	pdf.SetFillColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.Rect(0, 0, pageWidth, headerBandHeight, "F")

	nameX := pageMargin
	if logo != nil {
		y := (headerBandHeight - logo.height) / 2
		if embedImage(pdf, "logo", logo.imageType, logo.data, pageMargin, y, logo.width, logo.height) {
			nameX = pageMargin + logo.width + 4
		}
	}

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont(fontFamily, "B", 16)
	pdf.SetXY(nameX, 10)
	pdf.CellFormat(100, 8, tr(inv.Seller.Name), "", 0, "L", false, 0, "")

	pdf.SetFont(fontFamily, "B", 22)
	pdf.SetXY(pageWidth-pageMargin-60, 9)
	pdf.CellFormat(60, 10, "INVOICE", "", 0, "R", false, 0, "")

	pdf.SetFont(fontFamily, "", 9)
	pdf.SetXY(pageWidth-pageMargin-60, 20)
	pdf.CellFormat(60, 5, inv.Number, "", 0, "R", false, 0, "")

	pdf.SetY(headerBandHeight + 8)
}

func (g *Generator) writeParties(pdf *fpdf.Fpdf, tr func(string) string, inv Invoice) {
	pageWidth, _ := pdf.GetPageSize()
	top := pdf.GetY()
	colWidth := (pageWidth - 2*pageMargin) / 2

	// Seller contact block.
	pdf.SetXY(pageMargin, top)
	sectionTitle(pdf, colWidth, "FROM")
	for _, line := range nonEmpty(inv.Seller.Name, inv.Seller.Address, inv.Seller.Email, inv.Seller.Phone, prefixed("Tax ID: ", inv.Seller.TaxID)) {
		pdf.SetX(pageMargin)
		bodyText(pdf, colWidth, tr(line))
	}
	leftBottom := pdf.GetY()

	// Invoice meta block.
	pdf.SetXY(pageMargin+colWidth, top)
	sectionTitle(pdf, colWidth, "DETAILS")
	meta := [][2]string{
		{"Invoice number", inv.Number},
		{"Date", inv.IssuedAt.Format("January 2, 2006")},
	}
	for _, kv := range meta {
		pdf.SetX(pageMargin + colWidth)
		keyValue(pdf, colWidth, kv[0], kv[1])
	}
	pdf.SetX(pageMargin + colWidth)
	statusBadge(pdf, colWidth, inv.Status)

	pdf.SetY(max(leftBottom, pdf.GetY()) + 6)

	pdf.SetX(pageMargin)
	sectionTitle(pdf, colWidth, "BILL TO")
	for _, line := range nonEmpty(inv.Buyer.Name, inv.Buyer.Email) {
		pdf.SetX(pageMargin)
		bodyText(pdf, colWidth, tr(line))
	}
	pdf.Ln(6)
}

func (g *Generator) writeLineItems(pdf *fpdf.Fpdf, tr func(string) string, inv Invoice) {
	widths := []float64{55, 55, 15, 22.5, 22.5}
	headers := []string{"Description", "Details", "Qty", "Unit price", "Amount"}
	aligns := []string{"L", "L", "C", "R", "R"}

	pdf.SetFont(fontFamily, "B", 9)
	pdf.SetFillColor(colorTableHead[0], colorTableHead[1], colorTableHead[2])
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
	for i, h := range headers {
		pdf.CellFormat(widths[i], 8, h, "B", 0, aligns[i], true, 0, "")
	}
	pdf.Ln(-1)

	base, _ := TaxSplit(inv.Total)
	row := []string{
		tr(inv.Description),
		tr(truncate(inv.Details, 40)),
		"1",
		money.Format(base, inv.Currency),
		money.Format(base, inv.Currency),
	}

	pdf.SetFont(fontFamily, "", 9)
	for i, cell := range row {
		pdf.CellFormat(widths[i], 8, cell, "B", 0, aligns[i], false, 0, "")
	}
	pdf.Ln(12)
}

func (g *Generator) writeTotals(pdf *fpdf.Fpdf, inv Invoice) {
	pageWidth, _ := pdf.GetPageSize()
	labelWidth, valueWidth := 40.0, 35.0
	x := pageWidth - pageMargin - labelWidth - valueWidth

	base, tax := TaxSplit(inv.Total)
	pct := TaxRate.Shift(2).String()

	lines := [][2]string{
		{"Subtotal", money.Format(base, inv.Currency)},
		{fmt.Sprintf("Tax (%s%%)", pct), money.Format(tax, inv.Currency)},
	}
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	for _, l := range lines {
		pdf.SetX(x)
		pdf.CellFormat(labelWidth, 7, l[0], "", 0, "L", false, 0, "")
		pdf.CellFormat(valueWidth, 7, l[1], "", 1, "R", false, 0, "")
	}

	pdf.SetX(x)
	pdf.SetFont(fontFamily, "B", 11)
	pdf.SetFillColor(colorTableHead[0], colorTableHead[1], colorTableHead[2])
	pdf.CellFormat(labelWidth, 9, "Total", "T", 0, "L", true, 0, "")
	pdf.CellFormat(valueWidth, 9, money.Format(inv.Total, inv.Currency), "T", 1, "R", true, 0, "")
	pdf.Ln(8)
}

func (g *Generator) writePayment(pdf *fpdf.Fpdf, tr func(string) string, inv Invoice) {
	if inv.PaymentMethod == "" && inv.TransactionRef == "" {
		return
	}
	width := 100.0
	pdf.SetX(pageMargin)
	sectionTitle(pdf, width, "PAYMENT")
	if inv.PaymentMethod != "" {
		pdf.SetX(pageMargin)
		keyValue(pdf, width, "Method", tr(inv.PaymentMethod))
	}
	if inv.TransactionRef != "" {
		pdf.SetX(pageMargin)
		keyValue(pdf, width, "Transaction", inv.TransactionRef)
	}
	pdf.Ln(6)
}

func (g *Generator) writeQRCode(pdf *fpdf.Fpdf, portalURL string) {
	if strings.TrimSpace(portalURL) == "" {
		return
	}
	png, err := qrcode.Encode(portalURL, qrcode.Medium, qrSizePixels)
	if err != nil {
		g.log.Warn("invoice qr code skipped", logger.Error(err))
		return
	}
	pageWidth, _ := pdf.GetPageSize()
	const size = 28.0
	embedImage(pdf, "portal-qr", "PNG", png, pageWidth-pageMargin-size, pdf.GetY(), size, size)
	pdf.SetY(pdf.GetY() + size + 4)
}

func (g *Generator) writeFooter(pdf *fpdf.Fpdf, tr func(string) string, inv Invoice) {
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(colorPrimary[0], colorPrimary[1], colorPrimary[2])
	pdf.CellFormat(0, 6, "Thank you for your business!", "", 1, "C", false, 0, "")

	contact := strings.Join(nonEmpty(inv.Seller.Email, inv.Seller.Phone), "  |  ")
	if contact != "" {
		pdf.SetFont(fontFamily, "", 8)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 5, tr("Questions about this invoice? Contact "+contact), "", 1, "C", false, 0, "")
	}
}

func (g *Generator) addPageNumbers(pdf *fpdf.Fpdf) {
	pdf.SetAutoPageBreak(false, 0)
	total := pdf.PageCount()
	for i := 1; i <= total; i++ {
		pdf.SetPage(i)
		pageWidth, pageHeight := pdf.GetPageSize()

		pdf.SetDrawColor(colorGridLine[0], colorGridLine[1], colorGridLine[2])
		pdf.SetLineWidth(0.3)
		pdf.Line(pageMargin, pageHeight-20, pageWidth-pageMargin, pageHeight-20)

		pdf.SetY(pageHeight - 15)
		pdf.SetFont(fontFamily, "", 8)
		pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
		pdf.CellFormat(0, 5, fmt.Sprintf("Page %d of %d", i, total), "", 0, "C", false, 0, "")
	}
}

func sectionTitle(pdf *fpdf.Fpdf, w float64, title string) {
	pdf.SetFont(fontFamily, "B", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(w, 6, title, "", 1, "L", false, 0, "")
}

func bodyText(pdf *fpdf.Fpdf, w float64, text string) {
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(w, 5, text, "", 1, "L", false, 0, "")
}

func keyValue(pdf *fpdf.Fpdf, w float64, key, value string) {
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(w*0.4, 5, key, "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "", 10)
	pdf.SetTextColor(colorTextDark[0], colorTextDark[1], colorTextDark[2])
	pdf.CellFormat(w*0.6, 5, value, "", 1, "L", false, 0, "")
}

func statusBadge(pdf *fpdf.Fpdf, w float64, status string) {
	if status == "" {
		return
	}
	c := colorTextMuted
	switch strings.ToUpper(status) {
	case StatusPaid:
		c = colorPaid
	case StatusFailed:
		c = colorFailed
	}
	pdf.SetFont(fontFamily, "", 9)
	pdf.SetTextColor(colorTextMuted[0], colorTextMuted[1], colorTextMuted[2])
	pdf.CellFormat(w*0.4, 6, "Status", "", 0, "L", false, 0, "")
	pdf.SetFont(fontFamily, "B", 10)
	pdf.SetTextColor(c[0], c[1], c[2])
	pdf.CellFormat(w*0.6, 6, strings.ToUpper(status), "", 1, "L", false, 0, "")
}

func nonEmpty(values ...string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			out = append(out, v)
		}
	}
	return out
}

func prefixed(prefix, v string) string {
	if v == "" {
		return ""
	}
	return prefix + v
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
