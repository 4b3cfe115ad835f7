package emit

// NullEmitter discards every event. Useful when a caller wants the engine's
// bookkeeping side effects (node state, final result) without paying for
// event plumbing, e.g. batch replay jobs that only care about the outcome.
type NullEmitter struct{}

func (NullEmitter) Emit(Event)              {}
func (NullEmitter) EmitBatch([]Event) error  { return nil }
func (NullEmitter) Flush() error             { return nil }
