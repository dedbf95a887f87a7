// Package npz reads and writes NumPy .npz archives of uint16 arrays: zip
// files whose members are .npy arrays, deflate-compressed the way
// numpy.savez_compressed writes them.
package npz

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	npyMagic   = "\x93NUMPY"
	npyAlign   = 64
	uint16Desc = "<u2"
)

var ErrFormat = errors.New("npz: invalid npy data")

// Array is a decoded uint16 array in row-major order.
type Array struct {
	Shape []int
	Data  []uint16
}

func shapeSize(shape []int) int {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return n
}

func formatShape(shape []int) string {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = strconv.Itoa(d)
	}
	if len(shape) == 1 {
		return "(" + dims[0] + ",)"
	}
	return "(" + strings.Join(dims, ", ") + ")"
}

// npyHeader builds a version 1.0 header padded so the data starts on a
// 64 byte boundary.
func npyHeader(shape []int) []byte {
	dict := fmt.Sprintf("{'descr': '%s', 'fortran_order': False, 'shape': %s, }", uint16Desc, formatShape(shape))
	// magic + version + header length field
	prefix := len(npyMagic) + 2 + 2
	total := prefix + len(dict) + 1
	padding := (npyAlign - total%npyAlign) % npyAlign

	var buf bytes.Buffer
	buf.WriteString(npyMagic)
	buf.WriteByte(1)
	buf.WriteByte(0)
	buf.Write(binary.LittleEndian.AppendUint16(nil, uint16(len(dict)+padding+1)))
	buf.WriteString(dict)
	buf.WriteString(strings.Repeat(" ", padding))
	buf.WriteByte('\n')
	return buf.Bytes()
}

func writeNpy(w io.Writer, data []uint16, shape []int) error {
	if _, err := w.Write(npyHeader(shape)); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, data)
}

func readNpy(r io.Reader) (Array, error) {
	var preamble [8]byte
	if _, err := io.ReadFull(r, preamble[:]); err != nil {
		return Array{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if string(preamble[:6]) != npyMagic {
		return Array{}, fmt.Errorf("%w: bad magic", ErrFormat)
	}

	var headerLen int
	switch preamble[6] {
	case 1:
		var n uint16
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Array{}, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		headerLen = int(n)
	case 2, 3:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return Array{}, fmt.Errorf("%w: %v", ErrFormat, err)
		}
		headerLen = int(n)
	default:
		return Array{}, fmt.Errorf("%w: unsupported version %d", ErrFormat, preamble[6])
	}

	header := make([]byte, headerLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return Array{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	shape, err := parseHeader(string(header))
	if err != nil {
		return Array{}, err
	}

	data := make([]uint16, shapeSize(shape))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return Array{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return Array{Shape: shape, Data: data}, nil
}

// parseHeader accepts only little endian uint16 C-ordered arrays.
func parseHeader(header string) ([]int, error) {
	if !strings.Contains(header, "'descr': '"+uint16Desc+"'") {
		return nil, fmt.Errorf("%w: unsupported dtype in %q", ErrFormat, header)
	}
	if strings.Contains(header, "'fortran_order': True") {
		return nil, fmt.Errorf("%w: fortran order not supported", ErrFormat)
	}
	start := strings.Index(header, "'shape': (")
	if start < 0 {
		return nil, fmt.Errorf("%w: no shape in %q", ErrFormat, header)
	}
	rest := header[start+len("'shape': ("):]
	end := strings.Index(rest, ")")
	if end < 0 {
		return nil, fmt.Errorf("%w: unterminated shape in %q", ErrFormat, header)
	}

	shape := []int{}
	for _, field := range strings.Split(rest[:end], ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		d, err := strconv.Atoi(field)
		if err != nil || d < 0 {
			return nil, fmt.Errorf("%w: bad dimension %q", ErrFormat, field)
		}
		shape = append(shape, d)
	}
	return shape, nil
}
