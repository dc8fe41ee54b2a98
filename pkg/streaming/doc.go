/*
Package streaming holds the queueing building blocks that carry items
between pipeline stages.

  - channel: bounded blocking queue with separate end-of-input and abort signals

Basic usage:

	q := channel.New[int](16)
	go func() {
		defer q.Close()
		for i := 0; i < 100; i++ {
			if err := q.Push(i); err != nil {
				return
			}
		}
	}()

	for {
		v, ok, err := q.Pop()
		if err != nil || !ok {
			break
		}
		use(v)
	}
*/
package streaming
