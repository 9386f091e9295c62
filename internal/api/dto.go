package api

import (
	"time"

	"github.com/edgard/sponsorbot/internal/database"
)

// envelope is the body of every JSON response.
type envelope struct {
	Success     bool   `json:"success"`
	Data        any    `json:"data,omitempty"`
	Error       string `json:"error,omitempty"`
	Total       *int   `json:"total,omitempty"`
	StartOffset *int   `json:"startOffset,omitempty"`
}

// PostDTO is the client representation of a post.
type PostDTO struct {
	ID            int64     `json:"id"`
	Description   string    `json:"description"`
	DetailsText   string    `json:"detailsText"`
	ImageURL      string    `json:"imageUrl"`
	TelegramLink  string    `json:"telegramLink"`
	WhatsappLink  string    `json:"whatsappLink"`
	InstagramLink string    `json:"instagramLink"`
	LikeCount     int64     `json:"likeCount"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func toDTO(p database.Post) PostDTO {
	return PostDTO{
		ID:            p.ID,
		Description:   p.Description,
		DetailsText:   p.DetailsText,
		ImageURL:      p.ImageURL,
		TelegramLink:  p.TelegramLink,
		WhatsappLink:  p.WhatsappLink,
		InstagramLink: p.InstagramLink,
		LikeCount:     p.LikeCount,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

func toDTOs(posts []database.Post) []PostDTO {
	out := make([]PostDTO, 0, len(posts))
	for _, p := range posts {
		out = append(out, toDTO(p))
	}
	return out
}

type createPostRequest struct {
	Description   string `json:"description"   validate:"required,notblank"`
	ImageURL      string `json:"imageUrl"      validate:"omitempty,max=2048"`
	DetailsText   string `json:"detailsText"`
	TelegramLink  string `json:"telegramLink"  validate:"omitempty,url"`
	WhatsappLink  string `json:"whatsappLink"  validate:"omitempty,url"`
	InstagramLink string `json:"instagramLink" validate:"omitempty,url"`
}

func (r createPostRequest) post() *database.Post {
	return &database.Post{
		Description:   r.Description,
		ImageURL:      r.ImageURL,
		DetailsText:   r.DetailsText,
		TelegramLink:  r.TelegramLink,
		WhatsappLink:  r.WhatsappLink,
		InstagramLink: r.InstagramLink,
	}
}

// updatePostRequest holds the fields to change. Absent fields are kept and
// an empty link clears it.
type updatePostRequest struct {
	Description   *string `json:"description"   validate:"omitempty,notblank"`
	ImageURL      *string `json:"imageUrl"      validate:"omitempty,max=2048"`
	DetailsText   *string `json:"detailsText"`
	TelegramLink  *string `json:"telegramLink"  validate:"omitempty,len=0|url"`
	WhatsappLink  *string `json:"whatsappLink"  validate:"omitempty,len=0|url"`
	InstagramLink *string `json:"instagramLink" validate:"omitempty,len=0|url"`
}

func (r updatePostRequest) update() database.PostUpdate {
	return database.PostUpdate{
		Description:   r.Description,
		ImageURL:      r.ImageURL,
		DetailsText:   r.DetailsText,
		TelegramLink:  r.TelegramLink,
		WhatsappLink:  r.WhatsappLink,
		InstagramLink: r.InstagramLink,
	}
}
