package erroranalytics

import "go.uber.org/fx"

var Module = fx.Module("error.analytics",
	fx.Provide(New),
)
