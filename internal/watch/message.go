package watch

import "fmt"

// FormatMessage renders the notification text. sourceURL is the configured
// thread URL, not the redirect-resolved one.
func FormatMessage(delta, current int, sourceURL string) string {
	return fmt.Sprintf("📢 %d new replies detected\nCurrent reply index: %d\n%s", delta, current, sourceURL)
}
