package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"post-digest/models"
)

// printCooldowns 는 쿨다운 목록을 표로 출력한다. 이미 끝난 쿨다운은 expired 로 표시한다.
func printCooldowns(out io.Writer, rows []models.ModelCooldown, now time.Time) error {
	if len(rows) == 0 {
		_, err := fmt.Fprintln(out, "no model cooldowns recorded")
		return err
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "MODEL\tUNTIL\tREMAINING\tREASON")
	for _, r := range rows {
		remaining := "expired"
		if left := r.CooldownUntil.Sub(now); left > 0 {
			remaining = left.Truncate(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ModelName, r.CooldownUntil.Format(time.RFC3339), remaining, r.LastFailureReason)
	}
	return w.Flush()
}

type itemReport struct {
	Item      models.Item      `json:"item"`
	Assets    []models.Asset   `json:"assets"`
	Comments  []models.Comment `json:"comments"`
	Summaries []models.Summary `json:"summaries"`
}

func printJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
