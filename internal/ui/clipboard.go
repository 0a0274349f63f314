package ui

import "github.com/atotto/clipboard"

// SystemClipboard writes through the OS clipboard.
type SystemClipboard struct{}

// WriteText places text on the clipboard.
func (SystemClipboard) WriteText(text string) error {
	return clipboard.WriteAll(text)
}
