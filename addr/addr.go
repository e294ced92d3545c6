// Package addr implements the static address directory (§4.1): a
// location-name to (network address, machine-id) mapping, loaded once per
// run and shared, byte-identical, by every participant.
//
// Documentation Last Review: 30.07.2026
package addr

import (
	"bufio"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/tomm2000/swirlc/fatal"
	"golang.org/x/xerrors"
)

// LocationID is a small non-negative integer assigned deterministically by
// lexicographic sort of location names at directory-construction time. It is
// stable across all participants provided they load the same directory
// file.
type LocationID int

// Info describes a single location: where to dial it, and which machine it
// runs on. Machine groups co-located locations so the relay planner can
// prefer intra-machine fan-out.
type Info struct {
	Name    string
	Machine string
	Address string
}

// Directory is the static mapping of location names to ids and Info,
// shared by every participant in a run.
//
// - implements a read-only lookup table; there is no mutation after Load.
type Directory struct {
	byID   []Info
	byName map[string]LocationID
	self   LocationID
}

// Load reads a comma-separated directory file, one record per line:
//
//	<name>,<machine-id>,<host:port>
//
// Names are sorted lexicographically and assigned ids 0..N-1. self names the
// location this process plays.
func Load(path string, self string) (*Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, xerrors.Errorf("failed to open directory file: %v", err)
	}
	defer f.Close()

	return Parse(f, self)
}

// Parse reads the directory format from r. See Load.
func Parse(r io.Reader, self string) (*Directory, error) {
	infos := make(map[string]Info)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Split(line, ",")
		if len(fields) != 3 {
			return nil, xerrors.Errorf("malformed directory line %q: expected 3 fields, got %d",
				line, len(fields))
		}

		name := strings.TrimSpace(fields[0])
		machine := strings.TrimSpace(fields[1])
		address := strings.TrimSpace(fields[2])

		if name == "" || machine == "" || address == "" {
			return nil, xerrors.Errorf("malformed directory line %q: empty field", line)
		}

		if _, found := infos[name]; found {
			return nil, xerrors.Errorf("duplicate location name %q", name)
		}

		infos[name] = Info{Name: name, Machine: machine, Address: address}
	}

	if err := scanner.Err(); err != nil {
		return nil, xerrors.Errorf("failed to read directory file: %v", err)
	}

	names := make([]string, 0, len(infos))
	for name := range infos {
		names = append(names, name)
	}
	sort.Strings(names)

	dir := &Directory{
		byID:   make([]Info, len(names)),
		byName: make(map[string]LocationID, len(names)),
	}

	for i, name := range names {
		dir.byID[i] = infos[name]
		dir.byName[name] = LocationID(i)
	}

	selfID, found := dir.byName[self]
	if !found {
		return nil, xerrors.Errorf("%w: self location %q not in directory", fatal.ErrUnknownLocation, self)
	}
	dir.self = selfID

	return dir, nil
}

// IDOf returns the id assigned to name. Unknown names are a fatal
// programmer error.
func (d *Directory) IDOf(name string) (LocationID, error) {
	id, found := d.byName[name]
	if !found {
		return 0, xerrors.Errorf("%w: %q", fatal.ErrUnknownLocation, name)
	}
	return id, nil
}

// NameOf returns the name of id. Unknown ids are a fatal programmer error.
func (d *Directory) NameOf(id LocationID) (string, error) {
	info, err := d.InfoOf(id)
	if err != nil {
		return "", err
	}
	return info.Name, nil
}

// InfoOf returns the Info for id. Unknown ids are a fatal programmer error.
func (d *Directory) InfoOf(id LocationID) (Info, error) {
	if id < 0 || int(id) >= len(d.byID) {
		return Info{}, xerrors.Errorf("%w: id %d", fatal.ErrUnknownLocation, id)
	}
	return d.byID[id], nil
}

// AllIDs returns every location id known to the directory, in ascending
// order.
func (d *Directory) AllIDs() []LocationID {
	ids := make([]LocationID, len(d.byID))
	for i := range d.byID {
		ids[i] = LocationID(i)
	}
	return ids
}

// SelfID returns the id of the location this process plays.
func (d *Directory) SelfID() LocationID {
	return d.self
}

// Len returns the number of known locations.
func (d *Directory) Len() int {
	return len(d.byID)
}

// WithListenOverride returns a Directory identical to d except that self's
// bind address is replaced by address. Used by the CLI's --listen flag to
// bind a different local address (e.g. "0.0.0.0:PORT") than the one the
// directory file advertises to peers.
func (d *Directory) WithListenOverride(address string) *Directory {
	byID := make([]Info, len(d.byID))
	copy(byID, d.byID)

	info := byID[d.self]
	info.Address = address
	byID[d.self] = info

	return &Directory{
		byID:   byID,
		byName: d.byName,
		self:   d.self,
	}
}

// WithSelf returns a Directory sharing this one's id assignment and
// address table but playing a different location. Every participant in a
// run loads the same file and then calls WithSelf with its own name,
// guaranteeing byte-identical LocationID assignment across the cluster.
func (d *Directory) WithSelf(self string) (*Directory, error) {
	selfID, found := d.byName[self]
	if !found {
		return nil, xerrors.Errorf("%w: self location %q not in directory", fatal.ErrUnknownLocation, self)
	}

	return &Directory{
		byID:   d.byID,
		byName: d.byName,
		self:   selfID,
	}, nil
}
