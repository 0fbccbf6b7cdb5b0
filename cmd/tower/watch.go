package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/tower/internal/model"
	"github.com/alfredjeanlab/tower/internal/server"
	"github.com/alfredjeanlab/tower/internal/stream"
	"github.com/alfredjeanlab/tower/internal/ui"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Short:   "Follow the running investigation until it finishes",
	GroupID: "investigate",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		s, err := consoleClient.Session(ctx)
		if err != nil {
			return err
		}
		jobID := ""
		if s.Status == model.StatusRunning {
			jobID = s.JobID
		} else if !jsonOutput {
			fmt.Println(ui.RenderMuted("no run in progress; waiting for the next submission"))
		}
		return followRun(ctx, jobID)
	},
}

// runFollower turns the server's event stream into printed stage lines for
// one job. An empty jobID adopts the next run that starts.
type runFollower struct {
	w       io.Writer
	jobID   string
	lastSeq int
	final   *model.Session
}

// handle processes one event and reports whether to keep following.
func (f *runFollower) handle(m stream.Message) bool {
	switch {
	case m.Stage == server.TopicSessionUpdated:
		var s model.Session
		if err := json.Unmarshal(m.Data, &s); err != nil {
			return true
		}
		if f.jobID == "" && s.Status == model.StatusRunning {
			f.jobID = s.JobID
		}
		if s.JobID != f.jobID || f.jobID == "" {
			return true
		}
		for _, ev := range s.Events {
			f.print(ev)
		}
		if s.Status.IsTerminal() {
			f.final = &s
			return false
		}
	case strings.HasPrefix(m.Stage, server.TopicStagePrefix):
		if f.jobID == "" {
			return true
		}
		var ev model.StageEvent
		if err := json.Unmarshal(m.Data, &ev); err != nil {
			return true
		}
		f.print(ev)
	}
	return true
}

// print writes ev once; the session snapshot and stage topics overlap.
func (f *runFollower) print(ev model.StageEvent) {
	if ev.Seq <= f.lastSeq {
		return
	}
	f.lastSeq = ev.Seq
	if jsonOutput {
		data, _ := json.Marshal(ev)
		fmt.Fprintln(f.w, string(data))
		return
	}
	fmt.Fprintf(f.w, "%3d  %-24s %s\n", ev.Seq, ui.RenderAccent(string(ev.Stage)), ev.Summary())
}

func followRun(ctx context.Context, jobID string) error {
	f := &runFollower{w: os.Stdout, jobID: jobID}
	err := consoleClient.Follow(ctx, []string{stageTopics, server.TopicSessionUpdated}, f.handle)
	if err != nil {
		return err
	}
	if f.final == nil {
		if ctx.Err() != nil {
			return nil
		}
		return errors.New("event stream ended before the run finished")
	}
	if jsonOutput {
		printJSON(f.final)
		return nil
	}
	fmt.Println()
	printSession(os.Stdout, f.final)
	if f.final.Status == model.StatusFailed {
		return fmt.Errorf("run %s failed", f.final.JobID)
	}
	return nil
}

// stageTopics matches every per-stage topic.
const stageTopics = server.TopicStagePrefix + "*"
