package ui

import (
	"context"
	"fmt"
	"os"

	"github.com/ShabbirHasan1/alt-sendme/internal/session"
	"github.com/ShabbirHasan1/alt-sendme/pkg/utils"
)

// ConsolePicker implements the folder picker with a stdin prompt. An empty
// line cancels, keeping the previous selection in effect.
type ConsolePicker struct{}

// BrowseFolder prompts for a directory and validates it exists.
func (ConsolePicker) BrowseFolder(ctx context.Context) (string, error) {
	path, err := utils.AskForPath(ctx, "Save to folder (empty to cancel): ")
	if err != nil {
		return "", session.ErrPickerCancelled
	}
	if path == "" {
		return "", session.ErrPickerCancelled
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("cannot access %s: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", path)
	}
	return path, nil
}
