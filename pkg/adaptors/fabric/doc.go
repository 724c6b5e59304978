// Package fabric implements the adaptor for remote-execution fabrics:
// clusters that run inference behind a control plane with registered
// functions, asynchronous batch execution, and a job listing API.
//
// The data plane (single and streaming inference) is OpenAI-compatible
// and delegated to the openaiapi adaptor. The control plane (batch
// submission, batch status, job listing) speaks the fabric's own API and
// is called through a retrying HTTP client; those calls are idempotent,
// so transport-level retry is safe.
//
// The fabric discards task results after a fixed retention window. The
// batch manager, not this package, is responsible for capturing terminal
// status before that window elapses.
//
// Registered under the type identifier "fabric". Recognized Extra keys:
//
//	control_url        control plane base URL (required for batch/jobs)
//	execution_target   fabric execution target id
//	function_id        function id for single inference
//	batch_function_id  function id for batch execution (enables batch)
package fabric
