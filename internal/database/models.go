package database

import (
	"time"
)

// Post is a sponsor post shown in the client feed. Description and DetailsText
// hold inline HTML produced from Telegram formatting.
type Post struct {
	ID            int64     `db:"id"`
	Description   string    `db:"description"`
	ImageURL      string    `db:"image_url"`
	DetailsText   string    `db:"details_text"`
	TelegramLink  string    `db:"telegram_link"`
	WhatsappLink  string    `db:"whatsapp_link"`
	InstagramLink string    `db:"instagram_link"`
	LikeCount     int64     `db:"like_count"`
	CreatedAt     time.Time `db:"created_at"`
	UpdatedAt     time.Time `db:"updated_at"`
}

// PostUpdate is a partial update of a post. Only non-nil fields are written.
type PostUpdate struct {
	Description   *string
	ImageURL      *string
	DetailsText   *string
	TelegramLink  *string
	WhatsappLink  *string
	InstagramLink *string
}

// IsEmpty reports whether the update sets no field at all.
func (u PostUpdate) IsEmpty() bool {
	return len(u.columns()) == 0
}

type columnValue struct {
	column string
	value  string
}

// columns returns the columns to write in a stable order.
func (u PostUpdate) columns() []columnValue {
	var cols []columnValue
	add := func(column string, v *string) {
		if v != nil {
			cols = append(cols, columnValue{column: column, value: *v})
		}
	}
	add("description", u.Description)
	add("image_url", u.ImageURL)
	add("details_text", u.DetailsText)
	add("telegram_link", u.TelegramLink)
	add("whatsapp_link", u.WhatsappLink)
	add("instagram_link", u.InstagramLink)
	return cols
}

// LikeBoost is the ledger entry tracking synthetic likes added to a post.
// BoostedLikes never exceeds TargetLikes; once equal the entry is exhausted.
type LikeBoost struct {
	PostID       int64     `db:"post_id"`
	TargetLikes  int       `db:"target_likes"`
	BoostedLikes int       `db:"boosted_likes"`
	StartTime    time.Time `db:"start_time"`
	EndTime      time.Time `db:"end_time"`
}

// Remaining returns how many likes are still owed to the post.
func (b LikeBoost) Remaining() int {
	if b.BoostedLikes >= b.TargetLikes {
		return 0
	}
	return b.TargetLikes - b.BoostedLikes
}

// Exhausted reports whether the boost has delivered its full target.
func (b LikeBoost) Exhausted() bool {
	return b.Remaining() == 0
}
