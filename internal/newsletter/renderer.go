package newsletter

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/osteele/liquid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/bissquit/pnw-deals/internal/domain"
)

//go:embed templates/*.tmpl
var templatesFS embed.FS

// DefaultSubject is the subject template used when none is configured.
const DefaultSubject = "Your Weekly PNW Deals"

const dateLayout = "Jan 2, 2006"

// EmailData is everything needed to render one newsletter.
type EmailData struct {
	Subscriber     domain.Subscriber
	Deals          []domain.Deal
	GeneratedAt    time.Time
	PreferencesURL string
	UnsubscribeURL string
}

type dealView struct {
	Title        string
	BusinessName string
	Description  string
	Discount     string
	StartDate    string
	EndDate      string
	URL          string
}

type newsletterView struct {
	Date           string
	Deals          []dealView
	PreferencesURL string
	UnsubscribeURL string
	SiteURL        string
}

// Renderer turns matched deals into a subject line and an HTML document.
// It performs no I/O after construction.
type Renderer struct {
	body    *template.Template
	subject *liquid.Template
	links   Links
}

// NewRenderer parses the embedded newsletter template and the subject
// template. subjectTemplate is a Liquid template with deal_count, week_of and
// first_deal bound; an empty value selects DefaultSubject.
func NewRenderer(baseURL, subjectTemplate string) (*Renderer, error) {
	funcMap := template.FuncMap{
		"upper": upperCase,
	}

	content, err := templatesFS.ReadFile("templates/weekly.html.tmpl")
	if err != nil {
		return nil, fmt.Errorf("read newsletter template: %w", err)
	}
	body, err := template.New("weekly").Funcs(funcMap).Parse(string(content))
	if err != nil {
		return nil, fmt.Errorf("parse newsletter template: %w", err)
	}

	if subjectTemplate == "" {
		subjectTemplate = DefaultSubject
	}
	subject, serr := liquid.NewEngine().ParseString(subjectTemplate)
	if serr != nil {
		return nil, fmt.Errorf("parse subject template: %w", serr)
	}

	return &Renderer{
		body:    body,
		subject: subject,
		links:   Links{BaseURL: baseURL},
	}, nil
}

// Render renders the newsletter for data. Returns subject and HTML body.
func (r *Renderer) Render(data EmailData) (subject, body string, err error) {
	if len(data.Deals) == 0 {
		return "", "", ErrNoDeals
	}

	view := newsletterView{
		Date:           data.GeneratedAt.UTC().Format(dateLayout),
		Deals:          make([]dealView, 0, len(data.Deals)),
		PreferencesURL: data.PreferencesURL,
		UnsubscribeURL: data.UnsubscribeURL,
		SiteURL:        r.links.base(),
	}
	for _, deal := range data.Deals {
		dv, err := r.dealView(deal)
		if err != nil {
			return "", "", err
		}
		view.Deals = append(view.Deals, dv)
	}

	subject, err = r.renderSubject(data)
	if err != nil {
		return "", "", err
	}

	var buf bytes.Buffer
	if err := r.body.Execute(&buf, view); err != nil {
		return "", "", fmt.Errorf("execute newsletter template: %w", err)
	}

	return subject, strings.TrimSpace(buf.String()), nil
}

func (r *Renderer) renderSubject(data EmailData) (string, error) {
	out, err := r.subject.RenderString(liquid.Bindings{
		"deal_count": len(data.Deals),
		"week_of":    data.GeneratedAt.UTC().Format(dateLayout),
		"first_deal": data.Deals[0].Title,
	})
	if err != nil {
		return "", fmt.Errorf("render subject: %w", err)
	}
	return strings.TrimSpace(out), nil
}

func (r *Renderer) dealView(deal domain.Deal) (dealView, error) {
	if deal.Business == nil {
		return dealView{}, errors.New("deal " + deal.ID + " has no business")
	}

	return dealView{
		Title:        deal.Title,
		BusinessName: deal.Business.Name,
		Description:  deal.Description,
		Discount:     derefString(deal.Discount),
		StartDate:    formatDate(deal.StartDate),
		EndDate:      formatDate(deal.EndDate),
		URL:          r.links.Business(deal.Business.Slug),
	}, nil
}

// Template functions

var upperCaser = cases.Upper(language.English)

func upperCase(s string) string {
	return upperCaser.String(s)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(dateLayout)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
