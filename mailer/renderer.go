package mailer

import (
	"embed"
	"fmt"
	"sync"

	"github.com/flosch/pongo2/v6"
	auth "github.com/goliatone/go-auth-lifecycle"
	goerrors "github.com/goliatone/go-errors"
)

//go:embed templates/*.txt templates/*.html
var templatesFS embed.FS

// Rendered is a mail body in both formats
type Rendered struct {
	Text string
	HTML string
}

// Renderer renders account mails with pongo2 templates
type Renderer struct {
	mu    sync.Mutex
	cache map[string]*pongo2.Template
	// keyed by "<template>.txt" or "<template>.html"
	overrides map[string]string
}

// NewRenderer creates a renderer over the embedded templates.
// overrides may replace any of them by file name.
func NewRenderer(overrides map[string]string) *Renderer {
	return &Renderer{
		cache:     make(map[string]*pongo2.Template),
		overrides: overrides,
	}
}

// Render renders mail into text and HTML bodies
func (r *Renderer) Render(mail auth.Mail) (Rendered, error) {
	ctx := pongo2.Context{
		"email":      mail.To,
		"subject":    mail.Subject,
		"link":       mail.Link,
		"expires_at": mail.ExpiresAt,
	}

	text, err := r.execute(string(mail.Template)+".txt", ctx)
	if err != nil {
		return Rendered{}, err
	}
	html, err := r.execute(string(mail.Template)+".html", ctx)
	if err != nil {
		return Rendered{}, err
	}
	return Rendered{Text: text, HTML: html}, nil
}

func (r *Renderer) execute(name string, ctx pongo2.Context) (string, error) {
	tpl, err := r.template(name)
	if err != nil {
		return "", err
	}
	out, err := tpl.Execute(ctx)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("failed to render %s", name))
	}
	return out, nil
}

func (r *Renderer) template(name string) (*pongo2.Template, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if tpl, ok := r.cache[name]; ok {
		return tpl, nil
	}

	src, ok := r.overrides[name]
	if !ok {
		raw, err := templatesFS.ReadFile("templates/" + name)
		if err != nil {
			return nil, goerrors.New("unknown mail template", goerrors.CategoryNotFound).
				WithTextCode("MAIL_TEMPLATE_NOT_FOUND").
				WithMetadata(map[string]any{"template": name})
		}
		src = string(raw)
	}

	tpl, err := pongo2.FromString(src)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, fmt.Sprintf("failed to parse %s", name))
	}
	r.cache[name] = tpl
	return tpl, nil
}
