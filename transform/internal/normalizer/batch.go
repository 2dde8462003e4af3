package normalizer

import (
	"context"
	"sync"

	"github.com/riliasov/chilekids-etl-pipeline/transform/internal/models"
)

// Result is the outcome of normalizing one input. Exactly one of Record and
// Err is set.
type Result struct {
	Input  Input
	Record *models.StagingRecord
	Err    error
}

// NormalizeAll normalizes inputs on up to workers goroutines. Results are in
// input order. A cancelled context marks the remaining inputs with ctx.Err().
func (n *Normalizer) NormalizeAll(ctx context.Context, inputs []Input, workers int) []Result {
	results := make([]Result, len(inputs))
	if len(inputs) == 0 {
		return results
	}
	if workers <= 0 {
		workers = 1
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				in := inputs[i]
				if err := ctx.Err(); err != nil {
					results[i] = Result{Input: in, Err: err}
					continue
				}
				rec, err := n.Normalize(ctx, in)
				results[i] = Result{Input: in, Record: rec, Err: err}
			}
		}()
	}

	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
