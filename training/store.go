package training

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/estateml/estateml/core/model"
	"github.com/estateml/estateml/pkg/errors"
)

// Artifact file names inside a run directory.
const (
	ModelFile    = "model.gob"
	ManifestFile = "features.json"
)

// ArtifactStore persists artifacts by run name.
type ArtifactStore interface {
	Save(ctx context.Context, a *Artifact) (uri string, err error)
	Load(ctx context.Context, runName string) (*Artifact, error)
}

// FSStore keeps each artifact in <Dir>/<run name>/.
type FSStore struct {
	Dir string
}

// NewFSStore returns a store rooted at dir.
func NewFSStore(dir string) *FSStore {
	return &FSStore{Dir: dir}
}

// Path returns the directory of runName.
func (s *FSStore) Path(runName string) string {
	return filepath.Join(s.Dir, runName)
}

// Save writes model.gob and features.json and returns the run directory.
func (s *FSStore) Save(ctx context.Context, a *Artifact) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if a == nil || a.RunName == "" {
		return "", errors.NewValidationError("artifact", "run name is required", nil)
	}
	dir := s.Path(a.RunName)
	if err := model.SaveModel(a, filepath.Join(dir, ModelFile)); err != nil {
		return "", errors.Wrapf(err, "save artifact %s", a.RunName)
	}
	if err := writeManifest(filepath.Join(dir, ManifestFile), a.Manifest()); err != nil {
		return "", err
	}
	return dir, nil
}

// Load reads the artifact of runName.
func (s *FSStore) Load(ctx context.Context, runName string) (*Artifact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return LoadArtifact(filepath.Join(s.Path(runName), ModelFile))
}

// Export copies the artifact files of runName into dst.
func (s *FSStore) Export(ctx context.Context, runName, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	src := s.Path(runName)
	if _, err := os.Stat(filepath.Join(src, ModelFile)); err != nil {
		return errors.Wrapf(err, "artifact %s", runName)
	}
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	for _, name := range []string{ModelFile, ManifestFile} {
		if err := copyFile(filepath.Join(src, name), filepath.Join(dst, name)); err != nil {
			return err
		}
	}
	return nil
}

// LoadArtifact reads a model.gob file written by Save.
func LoadArtifact(path string) (*Artifact, error) {
	a := &Artifact{}
	if err := model.LoadModel(a, path); err != nil {
		return nil, errors.Wrapf(err, "load artifact %s", path)
	}
	if a.Model == nil || a.Encoder == nil {
		return nil, errors.Newf("artifact %s is incomplete", path)
	}
	return a, nil
}

func writeManifest(path string, m Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode manifest")
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return errors.Wrapf(err, "create %s", dst)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errors.Wrapf(err, "copy %s", src)
	}
	return out.Close()
}
