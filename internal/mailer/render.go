package mailer

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"

	"rating-notifier/internal/models"
)

//go:embed templates/*.html
var templateFS embed.FS

var bodyTemplates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

var bodyTemplateNames = map[models.NotificationType]string{
	models.NotificationTypeRatingChange:  "rating_change.html",
	models.NotificationTypeInvalidHandle: "invalid_handle.html",
}

// view is the data handed to the body templates.
type view struct {
	Handle string
	Rating int
	Rank   string
	// Colors come from the fixed rank table and are trusted in style attributes.
	Color template.CSS
}

// Render produces the HTML body for one notification.
func Render(typ models.NotificationType, payload models.NotificationPayload) (string, error) {
	name, ok := bodyTemplateNames[typ]
	if !ok {
		return "", fmt.Errorf("no template for notification type %q", typ)
	}

	v := view{Handle: payload.Handle, Rank: payload.Rank, Color: template.CSS(payload.Color)}
	if payload.Rating != nil {
		v.Rating = *payload.Rating
	}
	if v.Color == "" {
		v.Color = "inherit"
	}

	var buf bytes.Buffer
	if err := bodyTemplates.ExecuteTemplate(&buf, name, v); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return buf.String(), nil
}
