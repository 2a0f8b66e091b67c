package sensor

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"codeberg.org/mutker/fanctl/internal/command"
)

const smiCommand = "nvidia-smi"

var smiQueryArgs = []string{
	"--query-gpu=temperature.gpu,utilization.gpu",
	"--format=csv,noheader,nounits",
}

// SMISource queries all GPUs with one nvidia-smi call
type SMISource struct {
	runner command.Runner
}

func NewSMISource(runner command.Runner) *SMISource {
	return &SMISource{runner: runner}
}

func (*SMISource) Name() string {
	return "nvidia-smi"
}

func (s *SMISource) Probe(_ context.Context) error {
	if _, err := s.runner.LookPath(smiCommand); err != nil {
		return errFactory.Wrap(ErrToolMissing, err).WithData(smiCommand)
	}
	return nil
}

func (s *SMISource) Query(ctx context.Context) ([]GPURecord, error) {
	out, err := s.runner.Run(ctx, smiCommand, smiQueryArgs...)
	if err != nil {
		return nil, errFactory.Wrap(ErrGPUQuery, err)
	}

	records, err := ParseSMI(string(out))
	if err != nil {
		return nil, errFactory.Wrap(ErrGPUQuery, err)
	}
	if len(records) == 0 {
		return nil, errFactory.WithData(ErrSensorUnavailable, "nvidia-smi returned no GPU records")
	}
	return records, nil
}

func (*SMISource) Close() error {
	return nil
}

// ParseSMI reads "temperature, utilization" records, one per GPU. Records
// with fewer than two fields are skipped; a field that is not a number
// (such as "[N/A]") is reported as -1.
func ParseSMI(output string) ([]GPURecord, error) {
	r := csv.NewReader(strings.NewReader(output))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records []GPURecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return records, err
		}
		if len(row) < 2 {
			continue
		}

		records = append(records, GPURecord{
			Index:       len(records),
			Temperature: parseField(row[0]),
			Utilization: parseField(row[1]),
		})
	}

	return records, nil
}

func parseField(s string) int {
	v, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return -1
	}
	return v
}
