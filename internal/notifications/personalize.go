// internal/notifications/personalize.go

package notifications

import (
	"regexp"
	"strings"
	"time"
)

// Personalizer renders template placeholders and adjusts tone based on
// the relevance score.
type Personalizer struct{}

// NewPersonalizer creates a content personalizer
func NewPersonalizer() *Personalizer {
	return &Personalizer{}
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Score bands for tone adjustment
const (
	highRelevanceScore = 8.0
	midRelevanceScore  = 6.0

	activityMarker = "🔥 "
	engagementNote = "\n\nThis looks especially relevant for you right now."
	contextualNote = " • Suggested for you"
)

// Personalize substitutes {{variable}} placeholders in the template's
// title, body and action fields, then applies score-band augmentation.
// Unknown placeholders are left as literal text.
func (p *Personalizer) Personalize(tpl *Template, user *UserContact, context map[string]string, score float64, now time.Time) (title, body string, actions ActionList) {
	vars := p.variables(user, context, now)

	title = substitute(tpl.TitleTemplate, vars)
	body = substitute(tpl.BodyTemplate, vars)

	actions = make(ActionList, len(tpl.Actions))
	for i, a := range tpl.Actions {
		actions[i] = TemplateAction{
			Label: substitute(a.Label, vars),
			URL:   substitute(a.URL, vars),
		}
	}

	switch {
	case score >= highRelevanceScore:
		title = activityMarker + title
		body += engagementNote
	case score >= midRelevanceScore:
		title += contextualNote
	}

	return title, body, actions
}

// variables builds the fixed variable set plus caller-supplied context.
// Context keys win over the fixed set so callers can override.
func (p *Personalizer) variables(user *UserContact, context map[string]string, now time.Time) map[string]string {
	vars := map[string]string{
		"current_time": now.Format("15:04"),
		"current_date": now.Format("January 2, 2006"),
	}

	if user != nil {
		vars["user_name"] = user.FullName
		vars["first_name"] = firstName(user.FullName)
		vars["city"] = user.City
	}

	for k, v := range context {
		vars[k] = v
	}

	return vars
}

func substitute(text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		key := placeholderRe.FindStringSubmatch(match)[1]
		if val, ok := vars[key]; ok {
			return val
		}
		return match
	})
}

func firstName(full string) string {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return ""
	}
	return parts[0]
}
