package nn

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"slices"
)

// ErrCheckpoint reports a checkpoint that does not match the parameters it is
// loaded into.
var ErrCheckpoint = errors.New("checkpoint mismatch")

const checkpointVersion uint32 = 1

// WriteParams serializes params as little-endian float32 tensors behind a
// four-byte magic, each tensor prefixed by its name and shape.
func WriteParams(w io.Writer, magic string, params []*Param) error {
	if len(magic) != 4 {
		return fmt.Errorf("magic %q must be 4 bytes", magic)
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(magic); err != nil {
		return err
	}
	header := []uint32{checkpointVersion, uint32(len(params))}
	if err := binary.Write(bw, binary.LittleEndian, header); err != nil {
		return err
	}

	for _, p := range params {
		if err := binary.Write(bw, binary.LittleEndian, uint16(len(p.Name))); err != nil {
			return err
		}
		if _, err := bw.WriteString(p.Name); err != nil {
			return err
		}
		shape := make([]uint32, 0, len(p.Shape)+1)
		shape = append(shape, uint32(len(p.Shape)))
		for _, d := range p.Shape {
			shape = append(shape, uint32(d))
		}
		if err := binary.Write(bw, binary.LittleEndian, shape); err != nil {
			return err
		}
		buf := make([]byte, 4*len(p.Data))
		for i, v := range p.Data {
			binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
		}
		if _, err := bw.Write(buf); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// ReadParams fills params from a stream written by WriteParams. Names, order and
// shapes must match exactly.
func ReadParams(r io.Reader, magic string, params []*Param) error {
	br := bufio.NewReader(r)

	got := make([]byte, 4)
	if _, err := io.ReadFull(br, got); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if string(got) != magic {
		return fmt.Errorf("%w: magic %q, want %q", ErrCheckpoint, got, magic)
	}
	header := make([]uint32, 2)
	if err := binary.Read(br, binary.LittleEndian, header); err != nil {
		return fmt.Errorf("failed to read header: %w", err)
	}
	if header[0] != checkpointVersion {
		return fmt.Errorf("%w: version %d", ErrCheckpoint, header[0])
	}
	if int(header[1]) != len(params) {
		return fmt.Errorf("%w: %d tensors, want %d", ErrCheckpoint, header[1], len(params))
	}

	for _, p := range params {
		var nameLen uint16
		if err := binary.Read(br, binary.LittleEndian, &nameLen); err != nil {
			return fmt.Errorf("failed to read %s: %w", p.Name, err)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(br, name); err != nil {
			return fmt.Errorf("failed to read %s: %w", p.Name, err)
		}
		if string(name) != p.Name {
			return fmt.Errorf("%w: tensor %q, want %q", ErrCheckpoint, name, p.Name)
		}

		var ndims uint32
		if err := binary.Read(br, binary.LittleEndian, &ndims); err != nil {
			return fmt.Errorf("failed to read %s: %w", p.Name, err)
		}
		if int(ndims) != len(p.Shape) {
			return fmt.Errorf("%w: %s has %d dims, want %d", ErrCheckpoint, p.Name, ndims, len(p.Shape))
		}
		dims := make([]uint32, ndims)
		if err := binary.Read(br, binary.LittleEndian, dims); err != nil {
			return fmt.Errorf("failed to read %s: %w", p.Name, err)
		}
		shape := make([]int, ndims)
		for i, d := range dims {
			shape[i] = int(d)
		}
		if !slices.Equal(shape, p.Shape) {
			return fmt.Errorf("%w: %s has shape %v, want %v", ErrCheckpoint, p.Name, shape, p.Shape)
		}

		buf := make([]byte, 4*len(p.Data))
		if _, err := io.ReadFull(br, buf); err != nil {
			return fmt.Errorf("failed to read %s: %w", p.Name, err)
		}
		for i := range p.Data {
			p.Data[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
		}
	}
	return nil
}
