package core

import glog "github.com/goliatone/go-logger/glog"

var (
	_ URLValidator  = (*DestinationGuard)(nil)
	_ TenantDrainer = (*Service)(nil)

	_ Logger         = glog.Nop()
	_ LoggerProvider = glog.ProviderFromLogger(glog.Nop())
)
