package retention

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Confirmer asks the operator to approve deleting ids.
type Confirmer interface {
	Confirm(ids []string) (bool, error)
}

// ConfirmFunc adapts a function into a Confirmer.
type ConfirmFunc func(ids []string) (bool, error)

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ids []string) (bool, error) {
	return f(ids)
}

// LinePrompter lists the candidates and reads one line of free text. Only
// "y"/"yes" approve; "n"/"no" and anything else decline without asking again.
type LinePrompter struct {
	In  io.Reader
	Out io.Writer
}

// Confirm implements Confirmer.
func (p LinePrompter) Confirm(ids []string) (bool, error) {
	for _, id := range ids {
		fmt.Fprintln(p.Out, id)
	}
	fmt.Fprint(p.Out, "Are you sure you want to delete these versions?(y/n)")

	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return Affirmative(line), nil
}

// Affirmative reports whether answer is an exact y/yes, ignoring case and surrounding space.
func Affirmative(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
