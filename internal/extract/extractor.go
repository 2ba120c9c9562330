package extract

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/pagecopilot/internal/page"
)

// Extractor turns a loaded document into a snapshot. Implementations must not
// touch the network or mutate the document.
type Extractor interface {
	Extract(doc page.Document) (page.Snapshot, error)
}

// DOMExtractor is the default Extractor backed by FromHTML.
type DOMExtractor struct {
	Options Options
}

func (e DOMExtractor) Extract(doc page.Document) (page.Snapshot, error) {
	return FromHTML(doc, e.Options)
}

// Request asks for a snapshot of the page behind Target.
type Request struct {
	Target string `json:"target"`
}

// Response is the reply envelope. Exactly one of Data and Error is set.
type Response struct {
	Success bool           `json:"success"`
	Data    *page.Snapshot `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Service answers extraction requests. Failures are reported inside the
// envelope rather than as Go errors, so a caller on the other side of a
// channel always receives a well-formed reply.
type Service struct {
	Loader    page.Loader
	Extractor Extractor
}

// Handle satisfies channel.Func.
func (s *Service) Handle(ctx context.Context, req Request) (Response, error) {
	target := strings.TrimSpace(req.Target)
	if s.Loader == nil {
		return Response{Error: "no page loader configured"}, nil
	}
	doc, err := s.Loader.Load(ctx, target)
	if err != nil {
		log.Warn().Err(err).Str("target", target).Msg("page load failed")
		return Response{Error: err.Error()}, nil
	}
	ex := s.Extractor
	if ex == nil {
		ex = DOMExtractor{}
	}
	snap, err := ex.Extract(doc)
	if err != nil {
		log.Warn().Err(err).Str("url", doc.URL).Msg("extraction failed")
		return Response{Error: err.Error()}, nil
	}
	log.Debug().
		Str("url", snap.URL).
		Int("text_runes", len([]rune(snap.Text))).
		Int("images", len(snap.Images)).
		Int("links", len(snap.Links)).
		Msg("snapshot ready")
	return Response{Success: true, Data: &snap}, nil
}
