// Package application contains the admission controller's use cases: the
// long task promotion/demotion state machine and the per-context
// current-long-task accessor. Nothing here depends on net/http; the
// request interceptor that wires this into a handler chain lives one
// level up, in middleware/admission.
package application
