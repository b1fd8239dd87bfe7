package segment

// Future resolves to the id of a segment written asynchronously by
// Partition.StoreUnordered, mirroring ioqueue.Future's repeatable-Get idiom
// at the partition level rather than the single-I/O-job level (spec §4.7's
// "future file").
type Future struct {
	done chan struct{}
	id   int
	err  error
}

func newFuture() *Future { return &Future{done: make(chan struct{})} }

func (f *Future) complete(id int, err error) {
	f.id, f.err = id, err
	close(f.done)
}

// Get blocks until the write completes, returning the new segment's id.
// It may be called any number of times from any goroutine.
func (f *Future) Get() (int, error) {
	<-f.done
	return f.id, f.err
}
