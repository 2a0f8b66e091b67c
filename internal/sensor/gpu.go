package sensor

import "context"

// GPUReader reduces a batched GPU query to the hottest temperature and the
// busiest utilization. The two maxima may come from different devices.
type GPUReader struct {
	src GPUSource
}

func NewGPUReader(src GPUSource) *GPUReader {
	return &GPUReader{src: src}
}

func (r *GPUReader) Name() string {
	return r.src.Name()
}

func (r *GPUReader) Probe(ctx context.Context) error {
	if err := r.src.Probe(ctx); err != nil {
		return errFactory.Wrap(ErrGPUProbe, err)
	}
	return nil
}

// ReadGPUSnapshot returns (0, 0, err) when the query fails.
func (r *GPUReader) ReadGPUSnapshot(ctx context.Context) (maxTemp, maxUtil int, err error) {
	records, err := r.src.Query(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, rec := range records {
		if rec.Temperature > maxTemp {
			maxTemp = rec.Temperature
		}
		if rec.Utilization > maxUtil {
			maxUtil = rec.Utilization
		}
	}
	if maxUtil > 100 {
		maxUtil = 100
	}

	return maxTemp, maxUtil, nil
}

func (r *GPUReader) Close() error {
	return r.src.Close()
}
