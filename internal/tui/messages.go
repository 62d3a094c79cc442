package tui

// RowUpdateMsg updates a single row's fields by column name.
type RowUpdateMsg struct {
	Key    string
	Fields map[string]string
}

// TransferMsg moves a row's progress bar.
type TransferMsg struct {
	Key   string
	Done  int64
	Total int64
}

// Percent returns the completed fraction in [0, 1]. Unknown totals report 0.
func (m TransferMsg) Percent() float64 {
	if m.Total <= 0 {
		return 0
	}
	p := float64(m.Done) / float64(m.Total)
	return min(max(p, 0), 1)
}

// WorkDoneMsg signals that all background work has completed.
type WorkDoneMsg struct{}

// ErrorMsg signals a fatal error; the TUI should quit.
type ErrorMsg struct {
	Err error
}
