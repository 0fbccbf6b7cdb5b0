package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/ui"
)

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		return
	}
	fmt.Println(string(data))
}

func printSession(w io.Writer, s *model.Session) {
	job := s.JobID
	if job == "" {
		job = "-"
	} else if s.LocalJobID {
		job += " (local)"
	}
	fmt.Fprintf(w, "Job:        %s\n", job)
	if s.NodeID != "" {
		fmt.Fprintf(w, "Account:    %s\n", s.NodeID)
	}
	fmt.Fprintf(w, "Status:     %s\n", ui.RenderStatus(s.Status))
	fmt.Fprintf(w, "Tab:        %s\n", s.Tab.Label())
	if r := s.Result; r != nil {
		score := "n/a"
		if r.RiskScore != nil {
			score = fmt.Sprintf("%.2f", *r.RiskScore)
		}
		fmt.Fprintf(w, "Risk score: %s\n", score)
		if len(r.Reasons) > 0 {
			fmt.Fprintf(w, "Reasons:    %s\n", strings.Join(r.Reasons, "; "))
		}
	}
	if s.SubmitError != "" {
		fmt.Fprintf(w, "Submit:     %s\n", ui.RenderFraud(s.SubmitError))
	}
	if s.StreamError != "" {
		fmt.Fprintf(w, "Stream:     %s\n", ui.RenderFraud(s.StreamError))
	}
	if s.DisconnectedAfterDone {
		fmt.Fprintf(w, "Stream:     %s\n", ui.RenderMuted("closed after completion"))
	}
	if s.Dropped > 0 {
		fmt.Fprintf(w, "Dropped:    %d malformed events\n", s.Dropped)
	}
	filter := "all accounts"
	if s.FraudOnly {
		filter = "fraud only"
	}
	fmt.Fprintf(w, "Graph:      %d nodes, %d links, %d anomalous (%s)\n", s.Graph.Nodes, s.Graph.Links, s.Graph.Anomalous, filter)
	if s.GraphError != "" {
		fmt.Fprintf(w, "Graph load: %s\n", ui.RenderFraud(s.GraphError))
	}
	if s.Selected != nil {
		fmt.Fprintf(w, "Selected:   %s (score %.2f)\n", ui.RenderAccount(s.Selected), s.Selected.AnomalyScore)
	}
	if s.Alerted != "" {
		fmt.Fprintf(w, "Alerted:    %s\n", ui.RenderFraud(s.Alerted))
	}
	if s.SearchError != "" {
		fmt.Fprintf(w, "Search:     %q: %s\n", s.SearchQuery, s.SearchError)
	}
	if len(s.Events) > 0 {
		fmt.Fprintln(w)
		printEvents(w, s.Events)
	}
}

func printEvents(w io.Writer, evs []model.StageEvent) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tSTAGE\tDETAIL")
	for _, ev := range evs {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", ev.Seq, ev.Stage, ev.Summary())
	}
	tw.Flush()
}

func printView(w io.Writer, v *model.View, limit int) {
	nodes := slices.Clone(v.Nodes)
	slices.SortFunc(nodes, func(a, b *model.Account) int {
		switch {
		case a.AnomalyScore > b.AnomalyScore:
			return -1
		case a.AnomalyScore < b.AnomalyScore:
			return 1
		}
		return strings.Compare(a.ID, b.ID)
	})
	shown := nodes
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ACCOUNT\tSCORE\tSTATUS\tVOLUME")
	for _, n := range shown {
		status := ui.RenderNormal("normal")
		if n.Anomalous {
			status = ui.RenderFraud("fraud")
		}
		fmt.Fprintf(tw, "%s\t%.2f\t%s\t%g\n", n.ID, n.AnomalyScore, status, n.Volume)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d of %d accounts, %d links\n", len(shown), len(nodes), len(v.Links))
}
