package dispatch

import "github.com/goliatone/go-dispatch/core"

var _ CommandQueryService = (*core.Service)(nil)
