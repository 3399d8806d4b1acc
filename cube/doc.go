// Package cube provides image cube data access and the numeric kernels the
// server runs against open cubes: histograms, region statistics, spatial and
// spectral profiles, moment maps, and position-velocity cuts.
//
// A cube is exposed through the Source interface as a stack of 2-D channel
// slices. Long-running kernels take a context and a progress callback; they
// check the context between channels so a cancelled job stops at the next
// channel boundary. All kernels skip NaN pixels.
package cube
