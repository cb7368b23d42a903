package transport

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/ployz-io/zen/internal/cluster"
)

// frame is the wire envelope: a 4-byte big-endian length prefix followed by
// a JSON-encoded frame body. Matching request/response pairs share ID.
type frame struct {
	ID      string          `json:"id"`
	Action  string          `json:"action,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

const maxFrameBytes = 8 << 20 // 8MiB, generous for cluster-state publishes

func writeFrame(w io.Writer, f frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return err
	}
	if len(body) > maxFrameBytes {
		return fmt.Errorf("transport: frame of %d bytes exceeds limit", len(body))
	}

	var hdr [4]byte
	binary.BigEndian.PutUint32(hdr[:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err = w.Write(body)
	return err
}

func readFrame(r io.Reader) (frame, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return frame{}, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if n > maxFrameBytes {
		return frame{}, fmt.Errorf("transport: incoming frame of %d bytes exceeds limit", n)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return frame{}, err
	}

	var f frame
	if err := json.Unmarshal(body, &f); err != nil {
		return frame{}, err
	}
	return f, nil
}

func encodePayload(v any) (json.RawMessage, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// errorFromWire maps a peer's error string back to the matching sentinel
// when recognized, preserving errors.Is semantics across the wire, and
// falls back to a plain wrapped error otherwise.
func errorFromWire(msg string) error {
	for _, sentinel := range []error{
		cluster.ErrActionNotFound,
		cluster.ErrNotMasterForJoin,
		cluster.ErrRemoteRejected,
		cluster.ErrWrongClusterName,
		cluster.ErrStaleState,
		cluster.ErrQuorumLost,
		cluster.ErrNoLongerMaster,
	} {
		if msg == sentinel.Error() {
			return sentinel
		}
	}
	return errors.New(msg)
}
