package checkpoint

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/klauspost/compress/gzip"
	"github.com/x448/float16"
)

// Binary matrix file: gzip stream of a fixed header (magic, dtype, shape)
// followed by the row-major little-endian payload.
var matrixMagic = [4]byte{'K', 'G', 'E', '1'}

const (
	dtypeFP32 byte = 0
	dtypeFP16 byte = 1
)

// writeMatrix writes mat to path. Nil rows are written as zeros, which is
// how lazily-allocated optimizer state serializes.
func writeMatrix(path string, mat [][]float64, cols int, fp16 bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	w := bufio.NewWriter(zw)

	if _, err := w.Write(matrixMagic[:]); err != nil {
		return err
	}
	dtype := dtypeFP32
	if fp16 {
		dtype = dtypeFP16
	}
	if err := w.WriteByte(dtype); err != nil {
		return err
	}
	hdr := make([]byte, 16)
	binary.LittleEndian.PutUint64(hdr[0:], uint64(len(mat)))
	binary.LittleEndian.PutUint64(hdr[8:], uint64(cols))
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	elem := 4
	if fp16 {
		elem = 2
	}
	buf := make([]byte, cols*elem)
	for _, row := range mat {
		for d := 0; d < cols; d++ {
			v := 0.0
			if row != nil {
				v = row[d]
			}
			if fp16 {
				binary.LittleEndian.PutUint16(buf[d*2:], float16.Fromfloat32(float32(v)).Bits())
			} else {
				binary.LittleEndian.PutUint32(buf[d*4:], math.Float32bits(float32(v)))
			}
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}

	if err := w.Flush(); err != nil {
		return err
	}
	if err := zw.Close(); err != nil {
		return err
	}
	return f.Close()
}

// readMatrix reads a matrix written by writeMatrix.
func readMatrix(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("gzip %s: %w", path, err)
	}
	defer zr.Close()
	r := bufio.NewReader(zr)

	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, fmt.Errorf("read header of %s: %w", path, err)
	}
	if magic != matrixMagic {
		return nil, fmt.Errorf("%s is not an embedding matrix file", path)
	}
	dtype, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if dtype != dtypeFP32 && dtype != dtypeFP16 {
		return nil, fmt.Errorf("%s: unknown dtype %d", path, dtype)
	}
	hdr := make([]byte, 16)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, err
	}
	rows := int(binary.LittleEndian.Uint64(hdr[0:]))
	cols := int(binary.LittleEndian.Uint64(hdr[8:]))

	elem := 4
	if dtype == dtypeFP16 {
		elem = 2
	}
	buf := make([]byte, cols*elem)
	mat := make([][]float64, rows)
	for i := range mat {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("read row %d of %s: %w", i, path, err)
		}
		row := make([]float64, cols)
		for d := 0; d < cols; d++ {
			if dtype == dtypeFP16 {
				row[d] = float64(float16.Frombits(binary.LittleEndian.Uint16(buf[d*2:])).Float32())
			} else {
				row[d] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[d*4:])))
			}
		}
		mat[i] = row
	}
	return mat, nil
}
