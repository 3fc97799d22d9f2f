package har

// Sink receives pipeline output. PublishStatus carries operator-facing
// state changes ("loading classifier assets", "prediction failed: ...");
// PublishResult carries classified windows. Implementations must not
// block: the pipeline calls sinks from the sampling path.
type Sink interface {
	PublishStatus(status string)
	PublishResult(result PredictionResult)
}

// MultiSink fans every publish out to its members in order.
type MultiSink []Sink

func (m MultiSink) PublishStatus(status string) {
	for _, s := range m {
		if s != nil {
			s.PublishStatus(status)
		}
	}
}

func (m MultiSink) PublishResult(result PredictionResult) {
	for _, s := range m {
		if s != nil {
			s.PublishResult(result)
		}
	}
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) PublishStatus(string)           {}
func (NopSink) PublishResult(PredictionResult) {}
