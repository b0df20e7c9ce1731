package notifier

import (
	"log/slog"

	"github.com/nazmulh/jobdelta/internal/model"
)

// Ensure LogNotifier implements model.Notifier.
var _ model.Notifier = (*LogNotifier)(nil)

// LogNotifier writes newly added postings to the given logger as structured messages.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier returns a notifier that logs each added posting via slog.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify logs each posting with source, title, company, location, and URL.
// Returns nil (stdout logging does not fail).
func (n *LogNotifier) Notify(added []model.Record) error {
	for _, r := range added {
		n.logger.Info("new posting",
			"source", r.Source,
			"title", r.Attr(model.AttrTitle),
			"company", r.Attr(model.AttrCompany),
			"location", r.Attr(model.AttrLocation),
			"url", r.URL,
		)
	}
	return nil
}
