// Package param delivers automation values to real-time processing code.
//
// A parameter is consumed through a View, which reads either a precomputed
// per-sample array or a single block-rate constant behind the same call.
// Call sites are written once against View and stay correct when a
// parameter's delivery mode changes. Per-sample arrays live in a Pool that
// is sized once at prepare time; nothing here allocates on the audio thread.
//
// Control threads write targets through Smoother.SetTarget and Value.Store,
// both of which are single atomic writes the audio thread picks up at its
// own pace.
package param
