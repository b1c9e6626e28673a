package notifications

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var renderTime = time.Date(2025, 6, 12, 14, 30, 0, 0, time.UTC)

func TestPersonalizeSubstitution(t *testing.T) {
	p := NewPersonalizer()
	tpl := &Template{
		TitleTemplate: "Hi {{first_name}}",
		BodyTemplate:  "New listing in {{city}} at {{current_time}} on {{current_date}}",
	}

	title, body, _ := p.Personalize(tpl, testUser(1), nil, 3.0, renderTime)

	assert.Equal(t, "Hi Ada", title)
	assert.Equal(t, "New listing in Lagos at 14:30 on June 12, 2025", body)
}

func TestPersonalizeContextOverridesFixedVariables(t *testing.T) {
	p := NewPersonalizer()
	tpl := &Template{
		TitleTemplate: "{{user_name}}",
		BodyTemplate:  "{{listing_title}} in {{city}}",
	}
	context := map[string]string{
		"listing_title": "2-bed flat",
		"city":          "Abuja",
	}

	title, body, _ := p.Personalize(tpl, testUser(1), context, 3.0, renderTime)

	assert.Equal(t, "Ada Okafor", title)
	assert.Equal(t, "2-bed flat in Abuja", body)
}

func TestPersonalizeUnknownPlaceholderStaysLiteral(t *testing.T) {
	p := NewPersonalizer()
	tpl := &Template{
		TitleTemplate: "Hello {{mystery_var}}",
		BodyTemplate:  "plain",
	}

	title, _, _ := p.Personalize(tpl, testUser(1), nil, 3.0, renderTime)
	assert.Equal(t, "Hello {{mystery_var}}", title)
}

func TestPersonalizeWhitespaceInsidePlaceholder(t *testing.T) {
	p := NewPersonalizer()
	tpl := &Template{
		TitleTemplate: "Hi {{ first_name }}",
		BodyTemplate:  "plain",
	}

	title, _, _ := p.Personalize(tpl, testUser(1), nil, 3.0, renderTime)
	assert.Equal(t, "Hi Ada", title)
}

func TestPersonalizeActions(t *testing.T) {
	p := NewPersonalizer()
	tpl := &Template{
		TitleTemplate: "t",
		BodyTemplate:  "b",
		Actions: ActionList{
			{Label: "View {{listing_title}}", URL: "/listings/{{listing_id}}"},
		},
	}
	context := map[string]string{"listing_title": "Flat", "listing_id": "42"}

	_, _, actions := p.Personalize(tpl, testUser(1), context, 3.0, renderTime)

	assert.Equal(t, "View Flat", actions[0].Label)
	assert.Equal(t, "/listings/42", actions[0].URL)
}

func TestPersonalizeScoreBands(t *testing.T) {
	p := NewPersonalizer()
	tpl := &Template{TitleTemplate: "Title", BodyTemplate: "Body"}
	user := testUser(1)

	// Below 6: untouched
	title, body, _ := p.Personalize(tpl, user, nil, 5.99, renderTime)
	assert.Equal(t, "Title", title)
	assert.Equal(t, "Body", body)

	// [6, 8): contextual augmentation only
	title, body, _ = p.Personalize(tpl, user, nil, 6.0, renderTime)
	assert.Equal(t, "Title"+contextualNote, title)
	assert.Equal(t, "Body", body)

	// >= 8: marker prefix and engagement note
	title, body, _ = p.Personalize(tpl, user, nil, 8.0, renderTime)
	assert.Equal(t, activityMarker+"Title", title)
	assert.Equal(t, "Body"+engagementNote, body)
}

func TestPersonalizeNilUser(t *testing.T) {
	p := NewPersonalizer()
	tpl := &Template{TitleTemplate: "Hi {{first_name}}", BodyTemplate: "b"}

	title, _, _ := p.Personalize(tpl, nil, nil, 3.0, renderTime)
	assert.Equal(t, "Hi {{first_name}}", title)
}

func TestFirstName(t *testing.T) {
	assert.Equal(t, "Ada", firstName("Ada Okafor"))
	assert.Equal(t, "Solo", firstName("Solo"))
	assert.Equal(t, "", firstName("   "))
}
