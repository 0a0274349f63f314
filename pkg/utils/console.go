package utils

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
)

// AskForTicket prompts until the user enters a well-formed transfer ticket.
func AskForTicket(ctx context.Context) (string, error) {
	return prompt(ctx, "Enter ticket from sender: ", IsValidCode, "Invalid ticket. Please enter again.")
}

// AskForPath prompts for a filesystem path and returns the first line as
// typed; callers decide what an empty answer means.
func AskForPath(ctx context.Context, label string) (string, error) {
	return prompt(ctx, label, func(string) bool { return true }, "")
}

func prompt(ctx context.Context, label string, valid func(string) bool, retryMsg string) (string, error) {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		inputCh := make(chan string, 1)

		fmt.Print(label)
		go func() {
			if scanner.Scan() {
				inputCh <- strings.TrimSpace(scanner.Text())
			}
		}()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case value := <-inputCh:
			if valid(value) {
				return value, nil
			}
			fmt.Println(retryMsg)
		}
	}
}
