// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shallownet

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/gomlx/gomlx/backends"
	"github.com/gomlx/gomlx/pkg/core/tensors/images"
	"github.com/gomlx/gomlx/pkg/ml/context"
	"github.com/gomlx/gomlx/pkg/ml/context/checkpoints"
	"github.com/gomlx/gomlx/ui/plots"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// ArtifactVersion is the version of the artifact layout written by Save.
const ArtifactVersion = 1

// Names of the entries in the artifact archive.
const (
	ManifestEntry       = "manifest.json"
	CheckpointJSONEntry = "checkpoint" + checkpoints.JsonNameSuffix
	CheckpointBinEntry  = "checkpoint" + checkpoints.BinDataSuffix
	HistoryEntry        = plots.TrainingPlotFileName
)

// Manifest describes a saved model.
type Manifest struct {
	Version       int       `json:"version"`
	RunID         uuid.UUID `json:"run_id"`
	Classes       []string  `json:"classes"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
	Channels      int       `json:"channels"`
	ChannelsFirst bool      `json:"channels_first"`
	GlobalStep    int64     `json:"global_step"`
	Epochs        int       `json:"epochs"`
	Created       time.Time `json:"created"`
}

// Artifact is the raw content of a saved model file.
type Artifact struct {
	Manifest       Manifest
	CheckpointJSON []byte
	CheckpointBin  []byte
	History        *History
}

// Save writes the full model (hyperparameters, weights, optimizer state), the class names and the
// training history to a single file at path.
//
// The file is a tar archive, written to a temporary file next to path and renamed at the end, so
// an incomplete artifact is never left behind.
func (c *Classifier) Save(path string) error {
	if c.state == Uninitialized || c.state == Compiled {
		return errors.Errorf("Classifier.Save: model must be trained, it is %s", c.state)
	}
	checkpoint, err := checkpoints.Build(c.ctx).TempDir("", "shallownet-checkpoint-*").Done()
	if err != nil {
		return errors.WithMessage(err, "creating temporary checkpoint")
	}
	defer func() {
		if err := os.RemoveAll(checkpoint.Dir()); err != nil {
			klog.Warningf("failed to remove temporary checkpoint directory %q: %v", checkpoint.Dir(), err)
		}
	}()
	if err := checkpoint.Save(); err != nil {
		return errors.WithMessage(err, "saving checkpoint")
	}
	baseNames, err := checkpoint.ListCheckpoints()
	if err != nil {
		return err
	}
	if len(baseNames) == 0 {
		return errors.Errorf("no checkpoint written in %q", checkpoint.Dir())
	}
	basePath := filepath.Join(checkpoint.Dir(), baseNames[len(baseNames)-1])

	manifest := Manifest{
		Version:       ArtifactVersion,
		RunID:         c.runID,
		Classes:       c.Classes(),
		Width:         c.config.Width,
		Height:        c.config.Height,
		Channels:      c.config.Channels,
		ChannelsFirst: c.config.ChannelsAxis == images.ChannelsFirst,
		GlobalStep:    c.GlobalStep(),
		Created:       time.Now().UTC(),
	}
	entries := []archiveEntry{
		{name: CheckpointJSONEntry, path: basePath + checkpoints.JsonNameSuffix},
		{name: CheckpointBinEntry, path: basePath + checkpoints.BinDataSuffix},
	}
	if c.history != nil {
		manifest.Epochs = c.history.Len()
		historyPath := filepath.Join(checkpoint.Dir(), HistoryEntry)
		if err := c.history.WritePoints(historyPath); err != nil {
			return err
		}
		entries = append(entries, archiveEntry{name: HistoryEntry, path: historyPath})
	}
	manifestJSON, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding manifest")
	}
	entries = append([]archiveEntry{{name: ManifestEntry, data: manifestJSON}}, entries...)

	if err := writeArchive(path, entries); err != nil {
		return err
	}
	c.state = Persisted
	return nil
}

type archiveEntry struct {
	name string
	path string // Read from path if data is nil.
	data []byte
}

func writeArchive(path string, entries []archiveEntry) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create temporary file for %q", path)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	tw := tar.NewWriter(tmp)
	modTime := time.Now()
	for _, entry := range entries {
		data := entry.data
		if data == nil {
			data, err = os.ReadFile(entry.path)
			if err != nil {
				return errors.Wrapf(err, "failed to read %q", entry.path)
			}
		}
		header := &tar.Header{
			Name:    entry.name,
			Mode:    0644,
			Size:    int64(len(data)),
			ModTime: modTime,
		}
		if err = tw.WriteHeader(header); err != nil {
			return errors.Wrapf(err, "failed to write header of %q to %q", entry.name, path)
		}
		if _, err = tw.Write(data); err != nil {
			return errors.Wrapf(err, "failed to write %q to %q", entry.name, path)
		}
	}
	if err = tw.Close(); err != nil {
		return errors.Wrapf(err, "failed to finish archive %q", path)
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrapf(err, "failed to sync %q", tmp.Name())
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrapf(err, "failed to close %q", tmp.Name())
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "failed to move artifact into %q", path)
	}
	return nil
}

// ReadArtifact reads the content of a file written by Classifier.Save, without building a model.
func ReadArtifact(path string) (*Artifact, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open model artifact")
	}
	defer func() { _ = f.Close() }()

	contents := make(map[string][]byte)
	tr := tar.NewReader(f)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read model artifact %q", path)
		}
		var buf bytes.Buffer
		if _, err := io.Copy(&buf, tr); err != nil {
			return nil, errors.Wrapf(err, "failed to read entry %q of %q", header.Name, path)
		}
		contents[header.Name] = buf.Bytes()
	}

	artifact := &Artifact{}
	for _, name := range []string{ManifestEntry, CheckpointJSONEntry, CheckpointBinEntry} {
		if _, found := contents[name]; !found {
			return nil, errors.Errorf("model artifact %q is missing entry %q", path, name)
		}
	}
	if err := json.Unmarshal(contents[ManifestEntry], &artifact.Manifest); err != nil {
		return nil, errors.Wrapf(err, "failed to parse %q in %q", ManifestEntry, path)
	}
	if artifact.Manifest.Version != ArtifactVersion {
		return nil, errors.Errorf("model artifact %q has version %d, only version %d is supported",
			path, artifact.Manifest.Version, ArtifactVersion)
	}
	artifact.CheckpointJSON = contents[CheckpointJSONEntry]
	artifact.CheckpointBin = contents[CheckpointBinEntry]
	if data, found := contents[HistoryEntry]; found {
		points, err := decodePoints(data)
		if err != nil {
			return nil, errors.WithMessagef(err, "reading history of %q", path)
		}
		if artifact.History, err = HistoryFromPoints(points); err != nil {
			return nil, errors.WithMessagef(err, "reading history of %q", path)
		}
	}
	return artifact, nil
}

// decodePoints parses a stream of JSON encoded plots.Point, as written by plots.CreatePointsWriter.
func decodePoints(data []byte) ([]plots.Point, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	var points []plots.Point
	for {
		var point plots.Point
		err := dec.Decode(&point)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "decoding plot points")
		}
		points = append(points, point)
	}
	return points, nil
}

// Restore loads the hyperparameters and variables of the artifact into ctx.
func (a *Artifact) Restore(ctx *context.Context) error {
	_, err := checkpoints.Build(ctx).
		FromEmbed(string(a.CheckpointJSON), a.CheckpointBin).
		Immediate().
		Done()
	if err != nil {
		return errors.WithMessage(err, "restoring model checkpoint")
	}
	return nil
}

// Load restores a Classifier saved with Save. The returned classifier is in the Persisted state:
// it can Predict and Evaluate, but not be trained further.
func Load(backend backends.Backend, path string) (*Classifier, error) {
	artifact, err := ReadArtifact(path)
	if err != nil {
		return nil, err
	}
	ctx := context.New()
	if err := artifact.Restore(ctx); err != nil {
		return nil, errors.WithMessagef(err, "loading %q", path)
	}
	c, err := NewClassifier(backend, ctx, artifact.Manifest.Classes)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading %q", path)
	}
	c.runID = artifact.Manifest.RunID
	c.history = artifact.History
	c.state = Persisted
	return c, nil
}
