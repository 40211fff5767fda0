package mesh

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// objIndex references one vertex of a face: position, uv and normal
// indices, each 1-based, 0 when absent.
type objIndex struct {
	v, vt, vn int
}

// LoadOBJ reads a Wavefront OBJ file into tightly packed triangle soup.
// Faces with more than three vertices are fan-triangulated. Missing UVs
// default to the XY of the position mapped from [-1, 1] to [0, 1];
// missing normals to +Z.
func LoadOBJ(path string) (Data, error) {
	f, err := os.Open(path)
	if err != nil {
		return Data{}, err
	}
	defer f.Close()

	var positions [][3]float32
	var uvs [][2]float32
	var normals [][3]float32
	var faces [][]objIndex

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			p, err := extractFloats(fields[1:], 3)
			if err != nil {
				return Data{}, fmt.Errorf("obj line %d: %w", line, err)
			}
			positions = append(positions, [3]float32{p[0], p[1], p[2]})
		case "vt":
			p, err := extractFloats(fields[1:], 2)
			if err != nil {
				return Data{}, fmt.Errorf("obj line %d: %w", line, err)
			}
			uvs = append(uvs, [2]float32{p[0], p[1]})
		case "vn":
			p, err := extractFloats(fields[1:], 3)
			if err != nil {
				return Data{}, fmt.Errorf("obj line %d: %w", line, err)
			}
			normals = append(normals, [3]float32{p[0], p[1], p[2]})
		case "f":
			if len(fields) < 4 {
				return Data{}, fmt.Errorf("obj line %d: face with %d vertices", line, len(fields)-1)
			}
			face := make([]objIndex, 0, len(fields)-1)
			for _, spec := range fields[1:] {
				idx, err := extractIndex(spec)
				if err != nil {
					return Data{}, fmt.Errorf("obj line %d: %w", line, err)
				}
				face = append(face, idx)
			}
			faces = append(faces, face)
		}
	}
	if err := scanner.Err(); err != nil {
		return Data{}, err
	}
	if len(faces) == 0 {
		return Data{}, fmt.Errorf("obj file %s holds no face", path)
	}

	var d Data
	appendVertex := func(idx objIndex) error {
		if idx.v < 1 || idx.v > len(positions) {
			return fmt.Errorf("obj vertex index %d out of range", idx.v)
		}
		p := positions[idx.v-1]
		d.Vertices = append(d.Vertices, p[0], p[1], p[2], 1)

		if idx.vt >= 1 && idx.vt <= len(uvs) {
			uv := uvs[idx.vt-1]
			d.UVs = append(d.UVs, uv[0], uv[1])
		} else {
			d.UVs = append(d.UVs, (p[0]+1)/2, (p[1]+1)/2)
		}

		if idx.vn >= 1 && idx.vn <= len(normals) {
			n := normals[idx.vn-1]
			d.Normals = append(d.Normals, n[0], n[1], n[2], 0)
		} else {
			d.Normals = append(d.Normals, 0, 0, 1, 0)
		}

		d.Annexe = append(d.Annexe, 0, 0, 0, 0)
		return nil
	}

	for _, face := range faces {
		for i := 1; i+1 < len(face); i++ {
			for _, idx := range []objIndex{face[0], face[i], face[i+1]} {
				if err := appendVertex(idx); err != nil {
					return Data{}, err
				}
			}
		}
	}
	return d, nil
}

// extractFloats parses at least n float fields.
func extractFloats(fields []string, n int) ([]float32, error) {
	if len(fields) < n {
		return nil, fmt.Errorf("expected %d components, found %d", n, len(fields))
	}
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		v, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return nil, err
		}
		out[i] = float32(v)
	}
	return out, nil
}

// extractIndex parses one face vertex spec: v, v/vt, v//vn or v/vt/vn.
func extractIndex(spec string) (objIndex, error) {
	parts := strings.Split(spec, "/")
	var idx objIndex
	var err error
	if idx.v, err = strconv.Atoi(parts[0]); err != nil {
		return idx, err
	}
	if len(parts) > 1 && parts[1] != "" {
		if idx.vt, err = strconv.Atoi(parts[1]); err != nil {
			return idx, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if idx.vn, err = strconv.Atoi(parts[2]); err != nil {
			return idx, err
		}
	}
	return idx, nil
}
