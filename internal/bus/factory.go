package bus

import (
	apperrors "github.com/surisearch/suri-search/internal/pkg/errors"
	"github.com/surisearch/suri-search/internal/pkg/logger"
)

// New creates a dispatcher by type name: "memory" or "kafka".
func New(dispatcherType string, kafka KafkaConfig, log *logger.Logger) (Dispatcher, error) {
	switch dispatcherType {
	case "", "memory":
		return NewMemoryDispatcher(log), nil
	case "kafka":
		return NewKafkaDispatcher(kafka, log)
	default:
		return nil, apperrors.ValidationError("unknown dispatcher type: " + dispatcherType)
	}
}
