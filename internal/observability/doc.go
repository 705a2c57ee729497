// Package observability records what happened to a tick project and tells
// the outside world about it. The activity journal is an append-only JSON
// Lines file of committed task events; metrics and alerts are derived on
// demand from the journal and the current document; webhook payloads are
// rendered here and delivered by the integration retry queue.
package observability
