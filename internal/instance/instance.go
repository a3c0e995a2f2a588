// Package instance reads problem files and writes assignment files in the
// whitespace separated text format.
//
// A problem file starts with "R C F N B T" (rows, columns, vehicles, rides,
// bonus, turns) followed by N lines "a b x y s f": pickup row and column,
// dropoff row and column, earliest start and latest finish.
//
// An assignment file has one line per vehicle: the number of rides followed
// by their ids in assignment order.
package instance

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ridesim/internal/dispatch"
	"ridesim/internal/sim"
)

var (
	ErrMalformed = errors.New("malformed input")
	ErrTooLarge  = errors.New("instance exceeds limits")
)

// Limits caps the header counts of an instance. A zero field is unlimited.
type Limits struct {
	Vehicles int
	Rides    int
	Turns    int
}

// Check reports the first count above its limit, wrapped in ErrTooLarge.
func (l Limits) Check(vehicles, rides, turns int) error {
	switch {
	case l.Vehicles > 0 && vehicles > l.Vehicles:
		return fmt.Errorf("%w: %d vehicles, max %d", ErrTooLarge, vehicles, l.Vehicles)
	case l.Rides > 0 && rides > l.Rides:
		return fmt.Errorf("%w: %d rides, max %d", ErrTooLarge, rides, l.Rides)
	case l.Turns > 0 && turns > l.Turns:
		return fmt.Errorf("%w: %d turns, max %d", ErrTooLarge, turns, l.Turns)
	}
	return nil
}

// preallocRides bounds the ride slice sized from an untrusted header.
const preallocRides = 4096

// Parse reads a problem instance without limits. Ride ids follow line order.
func Parse(r io.Reader) (sim.Instance, error) {
	return ParseLimited(r, Limits{})
}

// ParseLimited is Parse with the header checked against lim before any
// ride is read.
func ParseLimited(r io.Reader, lim Limits) (sim.Instance, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	next := func() ([]int, bool, error) {
		for sc.Scan() {
			lineNo++
			line := strings.TrimSpace(sc.Text())
			if line == "" {
				continue
			}
			vals, err := ints(line)
			if err != nil {
				return nil, false, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
			}
			return vals, true, nil
		}
		return nil, false, sc.Err()
	}

	head, ok, err := next()
	if err != nil {
		return sim.Instance{}, err
	}
	if !ok {
		return sim.Instance{}, fmt.Errorf("%w: empty input", ErrMalformed)
	}
	if len(head) != 6 {
		return sim.Instance{}, fmt.Errorf("%w: line %d: header needs 6 fields, got %d", ErrMalformed, lineNo, len(head))
	}
	for i, v := range head {
		if v < 0 {
			return sim.Instance{}, fmt.Errorf("%w: line %d: field %d is negative", ErrMalformed, lineNo, i+1)
		}
	}
	in := sim.Instance{Rows: head[0], Cols: head[1], Vehicles: head[2], Bonus: head[4], Turns: head[5]}
	n := head[3]
	if err := lim.Check(in.Vehicles, n, in.Turns); err != nil {
		return sim.Instance{}, err
	}
	in.Rides = make([]dispatch.Ride, 0, min(n, preallocRides))

	for len(in.Rides) < n {
		f, ok, err := next()
		if err != nil {
			return sim.Instance{}, err
		}
		if !ok {
			return sim.Instance{}, fmt.Errorf("%w: expected %d rides, got %d", ErrMalformed, n, len(in.Rides))
		}
		if len(f) != 6 {
			return sim.Instance{}, fmt.Errorf("%w: line %d: ride needs 6 fields, got %d", ErrMalformed, lineNo, len(f))
		}
		if f[4] < 0 || f[4] > f[5] {
			return sim.Instance{}, fmt.Errorf("%w: line %d: start turn %d after end turn %d", ErrMalformed, lineNo, f[4], f[5])
		}
		in.Rides = append(in.Rides, dispatch.Ride{
			ID:        len(in.Rides),
			Start:     dispatch.Position{X: f[0], Y: f[1]},
			End:       dispatch.Position{X: f[2], Y: f[3]},
			StartTurn: f[4],
			EndTurn:   f[5],
		})
	}
	if extra, ok, err := next(); err != nil {
		return sim.Instance{}, err
	} else if ok {
		return sim.Instance{}, fmt.Errorf("%w: line %d: unexpected data after %d rides: %v", ErrMalformed, lineNo, n, extra)
	}
	return in, nil
}

// ReadFile parses the instance stored at path.
func ReadFile(path string) (sim.Instance, error) {
	return ReadFileLimited(path, Limits{})
}

// ReadFileLimited parses the instance stored at path within lim.
func ReadFileLimited(path string, lim Limits) (sim.Instance, error) {
	f, err := os.Open(path)
	if err != nil {
		return sim.Instance{}, err
	}
	defer f.Close()
	in, err := ParseLimited(f, lim)
	if err != nil {
		return sim.Instance{}, fmt.Errorf("%s: %w", path, err)
	}
	return in, nil
}

// Format renders an instance back into the text format.
func Format(w io.Writer, in sim.Instance) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%d %d %d %d %d %d\n", in.Rows, in.Cols, in.Vehicles, len(in.Rides), in.Bonus, in.Turns)
	for _, r := range in.Rides {
		fmt.Fprintf(bw, "%d %d %d %d %d %d\n", r.Start.X, r.Start.Y, r.End.X, r.End.Y, r.StartTurn, r.EndTurn)
	}
	return bw.Flush()
}

// WriteAssignments writes one line per vehicle.
func WriteAssignments(w io.Writer, assignments [][]int) error {
	bw := bufio.NewWriter(w)
	for _, log := range assignments {
		bw.WriteString(strconv.Itoa(len(log)))
		for _, id := range log {
			bw.WriteByte(' ')
			bw.WriteString(strconv.Itoa(id))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

// WriteAssignmentsFile writes the assignment file, creating parent
// directories as needed.
func WriteAssignmentsFile(path string, assignments [][]int) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteAssignments(f, assignments); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ParseAssignments reads an assignment file. Vehicles without a line get an
// empty log; more lines than vehicles is an error.
func ParseAssignments(r io.Reader, vehicles int) ([][]int, error) {
	out := make([][]int, 0, vehicles)
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 16*1024*1024)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		vals, err := ints(line)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrMalformed, lineNo, err)
		}
		if vals[0] != len(vals)-1 {
			return nil, fmt.Errorf("%w: line %d: count %d but %d ids", ErrMalformed, lineNo, vals[0], len(vals)-1)
		}
		if len(out) == vehicles {
			return nil, fmt.Errorf("%w: line %d: more lines than %d vehicles", ErrMalformed, lineNo, vehicles)
		}
		out = append(out, vals[1:])
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	for len(out) < vehicles {
		out = append(out, []int{})
	}
	return out, nil
}

// ReadAssignmentsFile parses the assignment file at path.
func ReadAssignmentsFile(path string, vehicles int) ([][]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseAssignments(f, vehicles)
}

func ints(line string) ([]int, error) {
	fields := strings.Fields(line)
	out := make([]int, len(fields))
	for i, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("field %d: %q is not an integer", i+1, f)
		}
		out[i] = v
	}
	return out, nil
}
