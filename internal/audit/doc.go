// Package audit implements async recording of security-relevant events.
//
//   - [Event]: one structured occurrence (login, verification, revocation).
//   - [Sink]: event consumer: [NoOpSink], [ChannelSink], [JSONWriterSink],
//     [StoreSink] for relational persistence.
//   - [Dispatcher]: buffered relay with drop-if-full or block-if-full
//     delivery, drained on Close.
//
// The package only buffers and delivers. Deciding which events exist, and
// what goes in them, is the engine's job.
package audit
