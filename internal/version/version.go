package version

// Current is the released version of corpus-querier.
const Current = "0.1.0"
