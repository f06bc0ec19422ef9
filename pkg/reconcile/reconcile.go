// Package reconcile merges batched oracle explanations onto highlights.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/japaniel/readmark/pkg/highlight"
	"github.com/japaniel/readmark/pkg/oracle"
)

// ErrNoHighlights is returned when there is nothing at all to reconcile.
var ErrNoHighlights = errors.New("no highlights to explain")

// Report summarises one reconciliation.
type Report struct {
	// Pending is the number of highlights that lacked an explanation before the call.
	Pending int
	// Phrases is the number of distinct texts sent to the oracle.
	Phrases int
	// Matched is the number of highlights that received an explanation.
	Matched int
	// Unmatched lists the ids still pending after the merge.
	Unmatched []string
	// Skipped counts snapshot highlights removed while the call was in flight.
	Skipped int
}

// Reconciler sends pending highlights to an explainer in one batch.
type Reconciler struct {
	explainer oracle.Explainer
	log       *zap.Logger
}

// New creates a Reconciler. A nil logger disables logging.
func New(explainer oracle.Explainer, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{explainer: explainer, log: log}
}

// Reconcile returns a copy of highlights where every pending highlight whose
// text the oracle explained carries that explanation. Explained highlights are
// returned untouched. On oracle failure the input is returned unchanged along
// with the error.
func (r *Reconciler) Reconcile(ctx context.Context, content string, highlights []highlight.Highlight) ([]highlight.Highlight, Report, error) {
	if len(highlights) == 0 {
		return nil, Report{}, ErrNoHighlights
	}
	out := make([]highlight.Highlight, len(highlights))
	copy(out, highlights)

	pending := make([]highlight.Highlight, 0, len(out))
	for _, h := range out {
		if h.Pending() {
			pending = append(pending, h)
		}
	}

	byPhrase, report, err := r.lookup(ctx, content, pending)
	if err != nil || len(byPhrase) == 0 {
		return out, report, err
	}

	for i := range out {
		if !out[i].Pending() {
			continue
		}
		if e, ok := byPhrase[out[i].Text]; ok {
			x := e.Highlight()
			out[i].Explanation = &x
			report.Matched++
			continue
		}
		report.Unmatched = append(report.Unmatched, out[i].ID)
	}
	r.logReport(report)
	return out, report, nil
}

// ReconcileSet explains the set's pending highlights in place. Only highlights
// that were pending when the call started are merged, and each is written only
// if it is still present and still unexplained.
func (r *Reconciler) ReconcileSet(ctx context.Context, set *highlight.Set) (Report, error) {
	b, err := r.Fetch(ctx, set)
	if err != nil {
		return b.Report(), err
	}
	return b.Apply(set)
}

// Batch holds the oracle answer for a snapshot of pending highlights until it
// is merged with Apply.
type Batch struct {
	r        *Reconciler
	snapshot []highlight.Highlight
	byPhrase map[string]oracle.Entry
	report   Report
}

// Fetch snapshots the set's pending highlights and performs the oracle call
// without touching the set. The returned Batch is never nil.
func (r *Reconciler) Fetch(ctx context.Context, set *highlight.Set) (*Batch, error) {
	if set.Len() == 0 {
		return &Batch{r: r}, ErrNoHighlights
	}
	snapshot := set.Pending()
	byPhrase, report, err := r.lookup(ctx, set.Content(), snapshot)
	return &Batch{r: r, snapshot: snapshot, byPhrase: byPhrase, report: report}, err
}

// Report returns the counts gathered so far.
func (b *Batch) Report() Report { return b.report }

// Apply merges the batch into set. Snapshot highlights removed since Fetch
// are counted as skipped; ones explained in the meantime are left alone.
func (b *Batch) Apply(set *highlight.Set) (Report, error) {
	report := b.report
	if len(b.byPhrase) == 0 {
		return report, nil
	}
	for _, h := range b.snapshot {
		e, ok := b.byPhrase[h.Text]
		if !ok {
			report.Unmatched = append(report.Unmatched, h.ID)
			continue
		}
		applied, err := set.Explain(h.ID, e.Highlight())
		switch {
		case errors.Is(err, highlight.ErrNotFound):
			report.Skipped++
		case err != nil:
			return report, err
		case applied:
			report.Matched++
		}
	}
	b.r.logReport(report)
	return report, nil
}

// lookup performs the single batched oracle call for the distinct texts of
// pending and indexes the first entry returned for each phrase.
func (r *Reconciler) lookup(ctx context.Context, content string, pending []highlight.Highlight) (map[string]oracle.Entry, Report, error) {
	report := Report{Pending: len(pending)}
	if len(pending) == 0 {
		return nil, report, nil
	}

	seen := make(map[string]bool, len(pending))
	phrases := make([]string, 0, len(pending))
	for _, h := range pending {
		if seen[h.Text] {
			continue
		}
		seen[h.Text] = true
		phrases = append(phrases, h.Text)
	}
	report.Phrases = len(phrases)

	entries, err := r.explainer.Explain(ctx, content, phrases)
	if err != nil {
		r.log.Warn("explain failed, highlights stay pending",
			zap.Int("pending", report.Pending),
			zap.Bool("retryable", oracle.Retryable(err)),
			zap.Error(err))
		for _, h := range pending {
			report.Unmatched = append(report.Unmatched, h.ID)
		}
		return nil, report, fmt.Errorf("explain %d phrases: %w", len(phrases), err)
	}

	byPhrase := make(map[string]oracle.Entry, len(entries))
	for _, e := range entries {
		if !seen[e.Phrase] {
			continue
		}
		if _, dup := byPhrase[e.Phrase]; !dup {
			byPhrase[e.Phrase] = e
		}
	}
	if len(byPhrase) == 0 {
		for _, h := range pending {
			report.Unmatched = append(report.Unmatched, h.ID)
		}
		r.logReport(report)
	}
	return byPhrase, report, nil
}

func (r *Reconciler) logReport(report Report) {
	r.log.Info("reconciled explanations",
		zap.Int("pending", report.Pending),
		zap.Int("phrases", report.Phrases),
		zap.Int("matched", report.Matched),
		zap.Int("unmatched", len(report.Unmatched)),
		zap.Int("skipped", report.Skipped))
}
