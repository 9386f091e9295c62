package conversation

// Messages holds every text the bot sends during a conversation. Entries
// ending in Fmt are fmt format strings.
type Messages struct {
	Welcome      string
	Cancelled    string
	GenericError string

	TextPrompt      string
	ImagePrompt     string
	DetailsPrompt   string
	TelegramPrompt  string
	WhatsappPrompt  string
	InstagramPrompt string
	TextRequired    string
	PhotoExpected   string
	ImageSaved      string
	PhotoFailed     string

	SummaryFmt        string
	CreatedFmt        string
	CreationCancelled string

	NoPosts     string
	PostsHeader string
	PostLineFmt string

	NotFoundFmt      string
	EditFieldFmt     string
	UnknownFieldFmt  string
	EditValueFmt     string
	EditImagePrompt  string
	ValueRequiredFmt string
	UpdatedFmt       string
	ImageUpdatedFmt  string
	DeleteConfirmFmt string
	DeletedFmt       string
	DeleteCancelled  string
}

// DefaultMessages returns the stock English texts.
func DefaultMessages() Messages {
	return Messages{
		Welcome: "🤖 Post Manager Bot\n\n" +
			"Commands:\n" +
			"/newpost - Create a new post\n" +
			"/listposts - List all posts\n" +
			"/editpost <id> - Edit a post\n" +
			"/deletepost <id> - Delete a post\n" +
			"/cancel - Cancel current operation",
		Cancelled:    "❌ Operation cancelled.",
		GenericError: "❌ Something went wrong. Please try again.",

		TextPrompt:      "📝 Step 1/6: Send the post TEXT (formatting is kept). You can also send a photo with a caption:",
		ImagePrompt:     "📷 Step 2/6: Send a PHOTO (or \"skip\"):",
		DetailsPrompt:   "📝 Step 3/6: Send DETAILS TEXT for modal (or \"skip\"):",
		TelegramPrompt:  "📝 Step 4/6: Send TELEGRAM link (or \"skip\"):",
		WhatsappPrompt:  "📝 Step 5/6: Send WHATSAPP link (or \"skip\"):",
		InstagramPrompt: "📝 Step 6/6: Send INSTAGRAM link (or \"skip\"):",
		TextRequired:    "⚠️ The post text is required. Send the text, or a photo with a caption:",
		PhotoExpected:   "⚠️ Send a PHOTO, or \"skip\" to continue without one:",
		ImageSaved:      "✅ Image saved!",
		PhotoFailed:     "❌ Failed to download image. Try again.",

		SummaryFmt: "📋 Post summary:\n\n" +
			"Text: %s\n" +
			"Image: %s\n" +
			"Details: %s\n" +
			"TG: %s\n" +
			"WA: %s\n" +
			"IG: %s\n\n" +
			"Send YES to publish, or /cancel.",
		CreatedFmt:        "✅ Post created! ID #%d",
		CreationCancelled: "❌ Post creation cancelled.",

		NoPosts:     "📭 No posts found.",
		PostsHeader: "📋 Posts:",
		PostLineFmt: "#%d - %s (❤️ %d)",

		NotFoundFmt:      "❌ Post #%d not found.",
		EditFieldFmt:     "✏️ Editing post #%d \"%s\".\n\nWhich field to edit?\n%s\n\nSend the field name:",
		UnknownFieldFmt:  "❌ Unknown field \"%s\". Valid fields: %s",
		EditValueFmt:     "📝 Send new value for \"%s\":",
		EditImagePrompt:  "📷 Send the new photo (or \"skip\" to remove the image):",
		ValueRequiredFmt: "⚠️ \"%s\" cannot be empty. Send the new value:",
		UpdatedFmt:       "✅ Post #%d updated! Field \"%s\" changed.",
		ImageUpdatedFmt:  "✅ Post #%d image updated!",
		DeleteConfirmFmt: "🗑 Delete post #%d \"%s\"?\nSend YES to confirm:",
		DeletedFmt:       "✅ Post #%d deleted.",
		DeleteCancelled:  "❌ Delete cancelled.",
	}
}
