package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"protonge/internal/inventory"
	"protonge/internal/reconcile"
	"protonge/internal/tui"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List GE-Proton versions in use and the games using them",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}
}

func runList(cmd *cobra.Command, _ []string) error {
	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	inv, err := s.scan()
	if err != nil {
		return err
	}
	sets := reconcile.FromInventory(inv, reconcile.RetentionPolicy{})
	s.logger.Debug("Reconciled versions", "installed", sets.Installed, "used", sets.Used, "unused", sets.Unused)

	if outputJSON {
		data, err := json.MarshalIndent(usageJSON{stats: inv.Usage}, "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		fmt.Fprintln(s.out, string(data))
		return nil
	}

	printUsageTable(s.out, inv.Usage)
	printVersionSets(s.out, sets)
	return nil
}

// usageJSON encodes usage as version -> [[name, appid], ...] keeping the
// order versions were first seen.
type usageJSON struct {
	stats *inventory.UsageStats
}

func (u usageJSON) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if u.stats != nil {
		for i, v := range u.stats.Versions() {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(v)
			if err != nil {
				return nil, err
			}
			pairs := [][2]string{}
			for _, r := range u.stats.Records(v) {
				pairs = append(pairs, [2]string{r.Name, r.AppID})
			}
			val, err := json.Marshal(pairs)
			if err != nil {
				return nil, err
			}
			buf.Write(key)
			buf.WriteByte(':')
			buf.Write(val)
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// printUsageTable renders one column per version listing the games using it.
func printUsageTable(w io.Writer, usage *inventory.UsageStats) {
	if usage == nil || usage.Len() == 0 {
		fmt.Fprintln(w, "(no games use a GE-Proton version)")
		return
	}
	versions := usage.Versions()
	depth := 0
	for _, v := range versions {
		depth = max(depth, len(usage.Records(v)))
	}
	rows := make([][]string, depth)
	for i := range rows {
		rows[i] = make([]string, len(versions))
		for j, v := range versions {
			if recs := usage.Records(v); i < len(recs) {
				rows[i][j] = recs[i].Name
			}
		}
	}

	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(versions...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return tui.HeaderStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(w)
	fmt.Fprintln(w, t.String())
	fmt.Fprintln(w)
}

func printVersionSets(w io.Writer, sets reconcile.VersionSets) {
	line := func(label string, values []string) {
		fmt.Fprintf(w, "%s %s\n", tui.HeaderStyle.Render(fmt.Sprintf("%-10s", label)), tui.NonEmptyOrDash(strings.Join(values, ", ")))
	}
	line("Installed:", sets.Installed)
	line("Used:", sets.Used)
	line("Unused:", sets.Unused)
}
