package metrics

// WorkflowDurationBuckets covers pipeline runs, which take minutes to hours.
var WorkflowDurationBuckets = []float64{1, 5, 15, 30, 60, 300, 900, 1800, 3600, 7200}

// ActivityDurationBuckets covers single task runs.
var ActivityDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900, 3600}

// HTTPDurationBuckets defines latency buckets for HTTP request duration metrics.
var HTTPDurationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
