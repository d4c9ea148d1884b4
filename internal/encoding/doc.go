// Package encoding executes dispatched jobs with an external encoder binary.
//
// A job's input names a source and one or more outputs, each with its own
// encoder arguments. Runner invokes the encoder once per output into a
// per-job work directory, probes the result, uploads it to the blob store
// and records an Output row. When a job is re-run after an output retry only
// the PENDING outputs are produced again and their rows are updated in place.
//
// The job succeeds only when every declared output is SUCCESSFUL. Encoder
// failures are tagged with services markers so the outcome carries a short
// failure kind.
package encoding
