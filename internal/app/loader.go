package app

import (
	"context"
	"strings"

	"github.com/hyperifyio/pagecopilot/internal/fetch"
	"github.com/hyperifyio/pagecopilot/internal/page"
)

// Router sends local targets to File and everything else to Web.
type Router struct {
	File page.Loader
	Web  page.Loader
}

func (r Router) Load(ctx context.Context, target string) (page.Document, error) {
	target = strings.TrimSpace(target)
	if fetch.IsLocal(target) {
		return r.File.Load(ctx, target)
	}
	return r.Web.Load(ctx, target)
}
