// Package wc reads the metadata store of osc working copies.
package wc

import (
	"encoding/xml"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/spf13/afero"

	"github.com/ernado/osc-babysitter/internal/oscerr"
)

const (
	// StoreDir is the metadata directory inside a working copy.
	StoreDir = ".osc"
	// StoreVersion is the only store format understood.
	StoreVersion = "1.0"
)

// WorkingCopy is a project or package checkout.
type WorkingCopy struct {
	Dir     string
	Project string
	// Package is empty for project checkouts.
	Package string
	// Rev is the checked out revision, empty if unknown.
	Rev string
}

// IsPackage reports whether wc is a package checkout.
func (wc *WorkingCopy) IsPackage() bool { return wc.Package != "" }

// Open reads the store of the working copy in dir.
func Open(fsys afero.Fs, dir string) (*WorkingCopy, error) {
	store := filepath.Join(dir, StoreDir)
	if ok, err := afero.DirExists(fsys, store); err != nil {
		return nil, &oscerr.IOError{Msg: "cannot access " + store, Err: err}
	} else if !ok {
		return nil, &oscerr.NoWorkingCopy{
			Msg: "Error: \"" + dir + "\" is not an osc working copy.",
		}
	}

	version, err := readStoreFile(fsys, store, "_osclib_version")
	if err != nil {
		return nil, err
	}
	if version != StoreVersion {
		return nil, &oscerr.WorkingCopyWrongVersion{
			Msg: "The osc metadata of your working copy \"" + dir + "\"\n" +
				"has format version \"" + version + "\", but this client expects \"" + StoreVersion + "\".",
		}
	}

	wc := &WorkingCopy{Dir: dir}
	if wc.Project, err = readStoreFile(fsys, store, "_project"); err != nil {
		return nil, err
	}
	if wc.Package, err = readOptional(fsys, store, "_package"); err != nil {
		return nil, err
	}
	if wc.IsPackage() {
		if wc.Rev, err = readRevision(fsys, store); err != nil {
			return nil, err
		}
	}
	return wc, nil
}

// CheckRevision fails if the working copy is not at the remote revision.
func (wc *WorkingCopy) CheckRevision(remote string) error {
	if wc.Rev == remote {
		return nil
	}
	return &oscerr.WorkingCopyOutdated{
		Dir:       wc.Dir,
		LocalRev:  wc.Rev,
		RemoteRev: remote,
	}
}

func readStoreFile(fsys afero.Fs, store, name string) (string, error) {
	v, err := readOptional(fsys, store, name)
	if err != nil {
		return "", err
	}
	if v == "" {
		return "", &oscerr.WorkingCopyInconsistent{
			Msg:   "Your working copy \"" + filepath.Dir(store) + "\" is in an inconsistent state",
			Files: []string{name},
		}
	}
	return v, nil
}

func readOptional(fsys afero.Fs, store, name string) (string, error) {
	data, err := afero.ReadFile(fsys, filepath.Join(store, name))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &oscerr.IOError{Msg: "cannot read " + name, Err: err}
	}
	return strings.TrimSpace(string(data)), nil
}

// files is the _files manifest of a package store.
type files struct {
	Name string `xml:"name,attr"`
	Rev  string `xml:"rev,attr"`
}

func readRevision(fsys afero.Fs, store string) (string, error) {
	data, err := afero.ReadFile(fsys, filepath.Join(store, "_files"))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", &oscerr.IOError{Msg: "cannot read _files", Err: err}
	}
	var f files
	if err := xml.Unmarshal(data, &f); err != nil {
		return "", &oscerr.WorkingCopyInconsistent{
			Msg:   "Your working copy \"" + filepath.Dir(store) + "\" has a damaged _files",
			Files: []string{"_files"},
		}
	}
	return f.Rev, nil
}
