package onion

import (
	"encoding/binary"
	"fmt"
	"io"
)

// cellHeaderLen is the fixed header size: a 4-byte circuit id followed
// by a 4-byte big-endian ciphertext length.
const cellHeaderLen = 8

// Cell is the wire record for every message exchanged over a channel:
// circuit_id (u32 big-endian), msg_length (u32 big-endian), and
// msg_length bytes of ciphertext.
type Cell struct {
	CircuitID  uint32
	Ciphertext []byte
}

// WriteTo writes the cell's wire encoding to w.
func (c *Cell) WriteTo(w io.Writer) error {
	hdr := make([]byte, cellHeaderLen)
	binary.BigEndian.PutUint32(hdr[0:4], c.CircuitID)
	binary.BigEndian.PutUint32(hdr[4:8], uint32(len(c.Ciphertext)))
	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("onion: write cell header: %w", err)
	}
	if _, err := w.Write(c.Ciphertext); err != nil {
		return fmt.Errorf("onion: write cell ciphertext: %w", err)
	}
	return nil
}

// ReadCell reads one cell from r.
func ReadCell(r io.Reader) (*Cell, error) {
	hdr := make([]byte, cellHeaderLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("onion: read cell header: %w", err)
	}
	circuitID := binary.BigEndian.Uint32(hdr[0:4])
	msgLen := binary.BigEndian.Uint32(hdr[4:8])

	ciphertext := make([]byte, msgLen)
	if msgLen > 0 {
		if _, err := io.ReadFull(r, ciphertext); err != nil {
			return nil, fmt.Errorf("onion: read cell ciphertext: %w", err)
		}
	}
	return &Cell{CircuitID: circuitID, Ciphertext: ciphertext}, nil
}
