package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const defaultFileBaseURL = "https://api.telegram.org"

// FileGetter is the part of *bot.Bot used to look up uploaded files.
type FileGetter interface {
	GetFile(ctx context.Context, params *bot.GetFileParams) (*models.File, error)
}

// FileResolver turns Telegram file ids into download URLs.
type FileResolver struct {
	getter  FileGetter
	token   string
	baseURL string
}

// NewFileResolver returns a resolver for files sent to the bot identified by token.
func NewFileResolver(getter FileGetter, token string) *FileResolver {
	return &FileResolver{getter: getter, token: token, baseURL: defaultFileBaseURL}
}

// FileURL resolves fileID through getFile and returns its download link.
func (r *FileResolver) FileURL(ctx context.Context, fileID string) (string, error) {
	if fileID == "" {
		return "", errors.New("empty file id")
	}
	file, err := r.getter.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return "", fmt.Errorf("failed to get file info: %w", err)
	}
	if file == nil || file.FilePath == "" {
		return "", fmt.Errorf("file %s has no download path", fileID)
	}
	return fmt.Sprintf("%s/file/bot%s/%s", r.baseURL, r.token, file.FilePath), nil
}
