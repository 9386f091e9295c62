package conversation

import (
	"strings"

	"github.com/edgard/sponsorbot/internal/database"
)

// Field is an editable post field.
type Field struct {
	Name    string
	Aliases []string
	// Rich fields keep Telegram formatting as inline HTML.
	Rich bool
	// Required fields cannot be cleared with "skip".
	Required bool
	// Image fields take a photo instead of text.
	Image bool
	update func(value string) database.PostUpdate
}

// Update returns a PostUpdate that writes value to this field only.
func (f Field) Update(value string) database.PostUpdate {
	return f.update(value)
}

var fields = []Field{
	{
		Name:     "description",
		Aliases:  []string{"text", "desc"},
		Rich:     true,
		Required: true,
		update:   func(v string) database.PostUpdate { return database.PostUpdate{Description: &v} },
	},
	{
		Name:    "image",
		Aliases: []string{"photo", "imageurl"},
		Image:   true,
		update:  func(v string) database.PostUpdate { return database.PostUpdate{ImageURL: &v} },
	},
	{
		Name:    "detailsText",
		Aliases: []string{"details"},
		Rich:    true,
		update:  func(v string) database.PostUpdate { return database.PostUpdate{DetailsText: &v} },
	},
	{
		Name:    "telegramLink",
		Aliases: []string{"telegram", "tg"},
		update:  func(v string) database.PostUpdate { return database.PostUpdate{TelegramLink: &v} },
	},
	{
		Name:    "whatsappLink",
		Aliases: []string{"whatsapp", "wa"},
		update:  func(v string) database.PostUpdate { return database.PostUpdate{WhatsappLink: &v} },
	},
	{
		Name:    "instagramLink",
		Aliases: []string{"instagram", "ig"},
		update:  func(v string) database.PostUpdate { return database.PostUpdate{InstagramLink: &v} },
	},
}

// Fields returns the editable fields in display order.
func Fields() []Field {
	return append([]Field(nil), fields...)
}

// LookupField finds a field by name or alias, ignoring case.
func LookupField(name string) (Field, bool) {
	name = strings.TrimSpace(name)
	for _, f := range fields {
		if strings.EqualFold(f.Name, name) {
			return f, true
		}
		for _, alias := range f.Aliases {
			if strings.EqualFold(alias, name) {
				return f, true
			}
		}
	}
	return Field{}, false
}

func fieldNames() string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return strings.Join(names, ", ")
}
