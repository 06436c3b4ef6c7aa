package utils

import "sync"

type CompletedTask[T any] struct {
	Index  int
	Result T
	Error  error
}

type indexedTask[T any] struct {
	index int
	input T
}

// RunInPool applies worker to every input using at most maxWorkers goroutines.
// Results are streamed to completed in completion order, tagged with the input
// index; completed is closed once every input is processed.
func RunInPool[In any, Out any](worker func(In) (Out, error), inputs []In, completed chan CompletedTask[Out], maxWorkers int) {
	queue := make(chan indexedTask[In], len(inputs))
	for i, input := range inputs {
		queue <- indexedTask[In]{index: i, input: input}
	}
	close(queue)

	workers := max(min(len(inputs), maxWorkers), 1)

	go func() {
		wg := sync.WaitGroup{}
		wg.Add(workers)

		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()

				for next := range queue {
					res, err := worker(next.input)
					if err != nil {
						completed <- CompletedTask[Out]{Index: next.index, Error: err}
					} else {
						completed <- CompletedTask[Out]{Index: next.index, Result: res}
					}
				}
			}()
		}

		wg.Wait()

		close(completed)
	}()
}

// MapInPool is RunInPool with the results collected back into input order.
// The first error by input index is returned.
func MapInPool[In any, Out any](worker func(In) (Out, error), inputs []In, maxWorkers int) ([]Out, error) {
	completed := make(chan CompletedTask[Out], len(inputs))
	RunInPool(worker, inputs, completed, maxWorkers)

	results := make([]Out, len(inputs))
	errs := make([]error, len(inputs))
	for task := range completed {
		results[task.Index] = task.Result
		errs[task.Index] = task.Error
	}

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}
