package pubsub

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/ritzau/agentic-mesh/pkg/model"
)

// WriteSSE writes a snapshot as a Server-Sent Event
// Format: "data: {json}\n\n"
func WriteSSE(w io.Writer, snap *model.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}
