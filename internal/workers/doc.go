// Package workers defines the boundary between the execution substrate and
// the capabilities that do the actual work.
//
// A Worker handles one capability. The Runner wraps every task invocation
// with the job-store lifecycle (started, then success or error) so workers
// only report failures by returning an error. The default registry carries
// placeholder workers that assemble and remove each chain's work directory;
// conversion and publishing capabilities are accepted and logged without
// touching any files.
package workers
