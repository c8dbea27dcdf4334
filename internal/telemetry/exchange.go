package telemetry

import (
	"encoding/json"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/platform-crew/loadfire/internal/config"
	"github.com/platform-crew/loadfire/internal/harness"
)

// MessageSetMetadata carries the primary's run metadata to agents over
// the message channel.
const MessageSetMetadata = "set_metadata"

// newRunMetadata builds the metadata set the primary assigns at
// run-start: a fresh sortable run id plus the testplan name.
func newRunMetadata(cfg *config.Config) map[string]string {
	return map[string]string{
		harness.MetaRunID:    ulid.Make().String(),
		harness.MetaTestplan: cfg.Testplan,
	}
}

func encodeMetadata(values map[string]string) ([]byte, error) {
	payload, err := json.Marshal(values)
	if err != nil {
		return nil, fmt.Errorf("encode run metadata: %w", err)
	}
	return payload, nil
}

func decodeMetadata(payload []byte) (map[string]string, error) {
	values := map[string]string{}
	if err := json.Unmarshal(payload, &values); err != nil {
		return nil, fmt.Errorf("decode run metadata: %w", err)
	}
	return values, nil
}
