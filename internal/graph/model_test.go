package graph

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alfredjeanlab/tower/internal/model"
)

const sampleGraph = `{"nodes":[{"nodeId":"A","isAnomalous":true},{"nodeId":"B"}],"links":[{"source":"A","target":"B","amount":3}]}`

func staticSource(body string) Source {
	return SourceFunc(func(context.Context) ([]byte, error) { return []byte(body), nil })
}

func TestModel_LoadAndView(t *testing.T) {
	m := New(nil)
	if m.CurrentView() != nil {
		t.Fatal("view before first load should be nil")
	}
	snap, err := m.Load(context.Background(), staticSource(sampleGraph))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if snap.Seq != 1 || len(snap.Nodes) != 2 {
		t.Errorf("snapshot = %+v", snap)
	}

	v := m.CurrentView()
	if len(v.Nodes) != 2 || v.Revision != (model.Revision{Seq: 1}) {
		t.Errorf("view = %+v", v)
	}
	if m.CurrentView() != v {
		t.Error("view should be cached per revision")
	}

	m.SetFraudOnly(true)
	fv := m.CurrentView()
	if len(fv.Nodes) != 1 || len(fv.Links) != 0 || !fv.Revision.FraudOnly {
		t.Errorf("fraud-only view = %+v", fv)
	}
}

func TestModel_FailureKeepsPrevious(t *testing.T) {
	m := New(nil)
	if _, err := m.Load(context.Background(), staticSource(sampleGraph)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	before := m.Snapshot()

	_, err := m.Load(context.Background(), staticSource("<html>oops</html>"))
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("err = %v, want *LoadError", err)
	}
	var me *model.MalformedResponseError
	if !errors.As(err, &me) {
		t.Errorf("err = %v, want wrapped *MalformedResponseError", err)
	}
	if m.Snapshot() != before {
		t.Error("failed load replaced the snapshot")
	}

	_, err = m.Load(context.Background(), SourceFunc(func(context.Context) ([]byte, error) {
		return nil, &model.TransportError{Op: "fetch graph", Err: errors.New("connection refused")}
	}))
	var te *model.TransportError
	if !errors.As(err, &te) {
		t.Errorf("err = %v, want wrapped *TransportError", err)
	}
	if m.Snapshot() != before {
		t.Error("failed load replaced the snapshot")
	}
}

func TestModel_FailureWithoutSnapshot(t *testing.T) {
	m := New(nil)
	if _, err := m.Load(context.Background(), staticSource("<html/>")); err == nil {
		t.Fatal("expected error")
	}
	if m.Snapshot() != nil || m.CurrentView() != nil {
		t.Error("expected no snapshot and no view")
	}
}

func TestModel_NewLoadSupersedesInFlight(t *testing.T) {
	m := New(nil)
	started := make(chan struct{})
	release := make(chan struct{})
	slow := SourceFunc(func(ctx context.Context) ([]byte, error) {
		close(started)
		<-release
		return []byte(`{"nodes":[{"nodeId":"stale"}]}`), nil
	})

	errc := make(chan error, 1)
	go func() {
		_, err := m.Load(context.Background(), slow)
		errc <- err
	}()
	<-started

	if _, err := m.Load(context.Background(), staticSource(sampleGraph)); err != nil {
		t.Fatalf("second Load: %v", err)
	}
	close(release)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Errorf("first Load err = %v, want ErrSuperseded", err)
	}
	if _, err := m.FindNode("stale"); err == nil {
		t.Error("stale result was applied")
	}
	if _, err := m.FindNode("A"); err != nil {
		t.Errorf("FindNode(A): %v", err)
	}
}

func TestModel_CloseCancelsInFlight(t *testing.T) {
	m := New(nil)
	started := make(chan struct{})
	blocked := SourceFunc(func(ctx context.Context) ([]byte, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	errc := make(chan error, 1)
	go func() {
		_, err := m.Load(context.Background(), blocked)
		errc <- err
	}()
	<-started
	m.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, ErrSuperseded) {
			t.Errorf("err = %v, want ErrSuperseded", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not cancel the in-flight fetch")
	}
	if _, err := m.Load(context.Background(), staticSource(sampleGraph)); !errors.Is(err, ErrSuperseded) {
		t.Errorf("Load after Close err = %v, want ErrSuperseded", err)
	}
}

func TestModel_FindNode(t *testing.T) {
	m := New(nil)
	if _, err := m.FindNode("A"); err == nil {
		t.Error("FindNode before load should fail")
	}
	if _, err := m.Load(context.Background(), staticSource(sampleGraph)); err != nil {
		t.Fatalf("Load: %v", err)
	}
	n, err := m.FindNode("B")
	if err != nil || n.ID != "B" {
		t.Fatalf("FindNode(B) = %v, %v", n, err)
	}
	m.SetFraudOnly(true)
	_, err = m.FindNode("B")
	var nf *model.NotFoundError
	if !errors.As(err, &nf) || nf.ID != "B" {
		t.Errorf("err = %v, want *NotFoundError for B", err)
	}
}

func TestFileSource(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := os.WriteFile(path, []byte(sampleGraph), 0o644); err != nil {
		t.Fatal(err)
	}
	m := New(nil)
	snap, err := m.Load(context.Background(), FileSource{Path: path})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(snap.Links) != 1 {
		t.Errorf("links = %d, want 1", len(snap.Links))
	}

	_, err = FileSource{Path: filepath.Join(t.TempDir(), "missing.json")}.FetchGraph(context.Background())
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("err = %v, want os.ErrNotExist", err)
	}
}
