package eventloop

const (
	NamespaceKey = "eventloop"

	LoopIDKey = NamespaceKey + ".loop.id"

	QueueLenKey   = NamespaceKey + ".queue.len"
	TimerLenKey   = NamespaceKey + ".timer.len"
	TimerSeqKey   = NamespaceKey + ".timer.seq"
	DurationKey   = NamespaceKey + ".duration_ms"
	StarvedForKey = NamespaceKey + ".starved_for"

	// NowKey is the time at which a timer was scheduled
	NowKey = NamespaceKey + ".timer.now"
	// AtKey is the time at which a timer is scheduled to fire
	AtKey = NamespaceKey + ".timer.at"
)
