// Package static holds the server-rendered pages of the sign-in flow.
package static

import (
	"embed"
	"html/template"
	"io"
)

//go:embed pages/*.html
var pagesFS embed.FS

var pages = template.Must(template.ParseFS(pagesFS, "pages/*.html"))

// ConfirmEmailData fills the email confirmation page.
type ConfirmEmailData struct {
	Token string
}

// SuccessData fills the signed-in landing page.
type SuccessData struct {
	Email string
}

// RenderConfirmEmail writes the page that asks for the email a sign-in link was sent to.
func RenderConfirmEmail(w io.Writer, data ConfirmEmailData) error {
	return pages.ExecuteTemplate(w, "confirm-email.html", data)
}

// RenderSuccess writes the landing page shown after sign-in.
func RenderSuccess(w io.Writer, data SuccessData) error {
	return pages.ExecuteTemplate(w, "success.html", data)
}
