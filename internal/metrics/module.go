package metrics

import "go.uber.org/fx"

// Module is the Fx module providing the pipeline metrics recorder.
var Module = fx.Options(
	fx.Provide(NewRecorder),
)
