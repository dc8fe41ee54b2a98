/*
Package channel provides the bounded queue used by the native-thread backend.

Channel is a fixed-capacity ring buffer guarded by a mutex, with one
condition variable signaling "not empty" and one signaling "not full". A push
to a full channel blocks the producer until a consumer frees a slot, which is
how the pipeline applies backpressure without growing memory.

	ch := channel.New[Read](64)

	go func() {
		defer ch.Close()
		for _, r := range reads {
			if err := ch.Push(r); err != nil {
				return
			}
		}
	}()

	for {
		r, ok, err := ch.Pop()
		if err != nil || !ok {
			break
		}
		process(r)
	}

# Close and Poison

Close is the end-of-input signal: consumers drain what is buffered and then
see ok == false. Poison is the abort signal: buffered values are discarded and
every blocked or later Push and Pop returns errors.ErrPoisonedPipeline, so no
goroutine stays blocked on a queue whose other side has died.

# Statistics

Stats reports pushes, pops, how many of them had to wait, and the peak
buffered length, which never exceeds Cap.
*/
package channel
