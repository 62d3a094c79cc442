package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"protonge/internal/tools"
)

// DownloadReporter adapts installer progress into bar and status updates.
// Updates are sent only when the whole percentage changes so a large
// download does not flood the program.
func DownloadReporter(send func(tea.Msg)) tools.ProgressFunc {
	last := map[string]int{}
	return func(version string, done, total int64) {
		msg := TransferMsg{Key: version, Done: done, Total: total}
		pct := int(msg.Percent() * 100)
		prev, seen := last[version]
		if seen && pct == prev && done != total {
			return
		}
		last[version] = pct

		if !seen {
			send(RowUpdateMsg{Key: version, Fields: map[string]string{"STATUS": StatusDownloading}})
		}
		send(msg)
		if total > 0 && done >= total {
			send(RowUpdateMsg{Key: version, Fields: map[string]string{"STATUS": StatusExtracting}})
		}
	}
}
