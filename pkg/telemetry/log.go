package telemetry

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/goccy/go-json"
)

const (
	ServiceName    = "upkeep-registry"
	LogPkgStdFlags = log.Lshortfile
)

// WrapLogger namespaces a logger for one component of the registry.
func WrapLogger(logger *log.Logger, ns string) *log.Logger {
	return log.New(logger.Writer(), fmt.Sprintf("[%s | %s] ", ServiceName, ns), LogPkgStdFlags)
}

// Logger pairs a namespaced logger with a collector that receives
// structured per-upkeep records for offline analysis.
type Logger struct {
	*log.Logger
	collector io.Writer
}

func NewTelemetryLogger(logger *log.Logger, collector io.Writer) *Logger {
	return &Logger{
		Logger:    logger,
		collector: collector,
	}
}

type record struct {
	UpkeepID string `json:"upkeepID"`
	Block    uint64 `json:"block"`
	Outcome  string `json:"outcome"`
	Payment  string `json:"payment,omitempty"`
	Time     string `json:"time"`
}

// Collect writes one structured outcome record for an upkeep.
func (l *Logger) Collect(upkeepID string, block uint64, outcome string, payment string) error {
	bts, err := json.Marshal(record{
		UpkeepID: upkeepID,
		Block:    block,
		Outcome:  outcome,
		Payment:  payment,
		Time:     time.Now().Format(time.RFC3339Nano),
	})
	if err != nil {
		return err
	}

	_, err = l.collector.Write(append(bts, '\n'))
	return err
}
