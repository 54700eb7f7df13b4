package display

import (
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/term"
)

// BannerStyle is the muted slate used for the startup banner.
var BannerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("#94a3b8"))

const bannerRaw = `
 ┬─┐┌─┐┌─┐┌┬┐  ┌─┐┬  ┌─┐┬ ┬┌┬┐
 ├┬┘├┤ ├─┤ ││  ├─┤│  │ ││ │ ││
 ┴└─└─┘┴ ┴─┴┘  ┴ ┴┴─┘└─┘└─┘─┴┘
`

// RenderBanner returns the banner art horizontally centred for the
// current terminal width. The host prints it on startup.
func RenderBanner() string {
	width := termWidth()

	lines := strings.Split(strings.Trim(bannerRaw, "\n"), "\n")

	maxW := 0
	for _, l := range lines {
		if n := len([]rune(l)); n > maxW {
			maxW = n
		}
	}

	var b strings.Builder
	for _, l := range lines {
		if width > maxW {
			b.WriteString(strings.Repeat(" ", (width-maxW)/2))
		}
		b.WriteString(BannerStyle.Render(l))
		b.WriteByte('\n')
	}
	return b.String()
}

// termWidth returns the current terminal column count, or 80 as fallback.
func termWidth() int {
	if w, _, err := term.GetSize(os.Stdout.Fd()); err == nil && w > 0 {
		return w
	}
	return 80
}
