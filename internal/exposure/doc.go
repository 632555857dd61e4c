// Package exposure accumulates detector footprints into sky-coverage maps.
//
// Each Record is one HDU footprint: four sky corners, an exposure time and an
// effective-depth factor tau. The Accumulator orders the corners, resolves
// the HEALPix pixels whose centres fall inside the footprint and adds the
// exposure time (raw map) and tau-weighted exposure time (weighted map) to
// each of them.
//
// Results are bit-identical for any ordering of the input records: records
// are sorted into a canonical order before reduction, and pixel resolution
// (the expensive part) runs in parallel while the grid updates are applied
// sequentially in that order.
//
// A record that cannot be resolved is skipped, counted in Stats and reported
// through OnSkip and the monitoring logger; it never aborts the batch.
package exposure
