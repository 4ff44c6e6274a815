/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package leaderboard

import (
	"io"
	"strconv"

	"github.com/pterm/pterm"
)

// Render writes entries as a terminal table. Nothing is written for an
// empty list.
func Render(w io.Writer, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	data := pterm.TableData{{"", "Player", "Total Clicks"}}
	for _, e := range entries {
		data = append(data, []string{
			strconv.Itoa(e.Rank),
			e.Label(),
			strconv.FormatUint(e.Clicks, 10),
		})
	}

	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}

	_, err = io.WriteString(w, out+"\n")

	return err
}
