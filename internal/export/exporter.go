package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alfredjeanlab/tower/internal/model"
)

// Exporter writes each finished investigation to every destination.
type Exporter struct {
	destinations []Destination
	logger       *slog.Logger
	now          func() time.Time
}

// NewExporter creates an exporter for the given destinations.
func NewExporter(destinations []Destination, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{destinations: destinations, logger: logger, now: time.Now}
}

// Len reports how many destinations are configured.
func (e *Exporter) Len() int { return len(e.destinations) }

// Report encodes s once and writes it to every destination. A failing
// destination does not stop the others; all failures are returned joined.
func (e *Exporter) Report(ctx context.Context, s model.Session) error {
	var buf bytes.Buffer
	if err := WriteJSONL(s, &buf, e.now()); err != nil {
		return fmt.Errorf("export report: %w", err)
	}
	data := buf.Bytes()
	key := KeyFor(s)

	var errs []error
	for i, dest := range e.destinations {
		if err := dest.Write(ctx, key, data); err != nil {
			e.logger.Error("report destination write failed", "destination", fmt.Sprintf("%d", i), "key", key, "err", err)
			errs = append(errs, err)
		}
	}

	e.logger.Info("report exported", "job", s.JobID, "status", s.Status, "destinations", len(e.destinations), "bytes", len(data))
	return errors.Join(errs...)
}
