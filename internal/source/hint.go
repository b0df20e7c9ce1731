package source

import (
	"context"
	"maps"

	"github.com/nazmulh/jobdelta/internal/model"
)

// HintSessionFactory produces sessions that promote a candidate's discovery
// hints into a full record without further network I/O. Used by sources whose
// discovery response already carries the complete posting (CareerJet).
type HintSessionFactory struct {
	source string
}

// NewHintSessionFactory returns a factory labelling records with source.
func NewHintSessionFactory(source string) *HintSessionFactory {
	return &HintSessionFactory{source: source}
}

// NewSession returns a stateless hint-promoting session.
func (f *HintSessionFactory) NewSession(_ context.Context) (model.Session, error) {
	return &hintSession{source: f.source}, nil
}

type hintSession struct {
	source string
}

func (s *hintSession) Enrich(_ context.Context, c model.Candidate) (model.Record, error) {
	attrs := make(map[string]string, len(c.Hint))
	maps.Copy(attrs, c.Hint)
	return model.Record{
		Identity:   c.Identity,
		Source:     s.source,
		URL:        c.URL,
		Attributes: attrs,
	}, nil
}

func (s *hintSession) Close() error { return nil }
