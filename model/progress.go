package model

// Pair is a data structure that couples one input with the output a
// worker produced for it. It is what ZipInOut streams to the consumer.
type Pair struct {
	Input  interface{} `yaml:"input"`  // The input as it was spooled into the pool.
	Output interface{} `yaml:"output"` // The output the worker produced for that input.
}

// Snapshot is a point-in-time view of a pool's progress. It is what the
// progress server serves and what the periodic reporter logs.
type Snapshot struct {
	Workers   int    `yaml:"workers"`   // Number of worker goroutines in the pool.
	Spooled   uint64 `yaml:"spooled"`   // Inputs read from the feed so far.
	Completed uint64 `yaml:"completed"` // Outputs delivered to consumers so far.
	Failed    uint64 `yaml:"failed"`    // Inputs that ended in a worker failure.
	Running   bool   `yaml:"running"`   // False once the pool has been closed.
}
