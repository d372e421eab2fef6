package notification

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"time"

	"checkout-svc/models"
)

type Kind string

const (
	KindConfirmation Kind = "confirmation"
	KindTracking     Kind = "tracking"
)

//go:embed templates/*.html
var templateFS embed.FS

// India Standard Time; fixed offset so rendering does not depend on tzdata.
var ist = time.FixedZone("IST", 5*60*60+30*60)

var templates = template.Must(
	template.New("emails").Funcs(template.FuncMap{
		"money": formatMoney,
		"date":  formatDate,
	}).ParseFS(templateFS, "templates/*.html"),
)

var kinds = map[Kind]struct {
	subject  string
	template string
}{
	KindConfirmation: {"Payment Successful - Khet2Kitchen Order Confirmation", "confirmation.html"},
	KindTracking:     {"Your Order Tracking Details - Khet2Kitchen", "tracking.html"},
}

// Render builds the subject and HTML body for kind. The output depends only on the order.
func Render(kind Kind, order *models.Order) (subject, body string, err error) {
	k, ok := kinds[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown notification kind %q", kind)
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, k.template, order); err != nil {
		return "", "", fmt.Errorf("failed to render %s email: %w", kind, err)
	}
	return k.subject, buf.String(), nil
}

func formatMoney(v float64) string {
	return "₹" + strconv.FormatFloat(v, 'f', -1, 64)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(ist).Format("2/1/2006, 3:04:05 pm")
}
