// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dataset

import (
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gomlx/shallownet/preprocess"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
	"k8s.io/klog/v2"
)

// ImageExtensions lists the file extensions (lower case) considered by ListImages.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".tif", ".tiff", ".webp"}

// ListImages walks root recursively and returns the paths of all image files, sorted.
func ListImages(root string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		for _, valid := range ImageExtensions {
			if ext == valid {
				paths = append(paths, path)
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list images under %q", root)
	}
	sort.Strings(paths)
	return paths, nil
}

// LabelFromPath returns the name of the immediate parent directory of path.
func LabelFromPath(path string) string {
	return filepath.Base(filepath.Dir(path))
}

// Loader reads images from disk, applies the preprocessors and collects the labels.
type Loader struct {
	// Preprocessors applied, in order, to every image. It must include a Resize so all images
	// end up with the same dimensions.
	Preprocessors preprocess.Chain

	// Verbose logs a progress line every Verbose images. 0 disables it.
	Verbose int

	// ShowProgressBar displays a terminal progress bar while loading.
	ShowProgressBar bool
}

// NewLoader returns a Loader with the given preprocessors and logging every 500 images.
func NewLoader(preprocessors ...preprocess.Preprocessor) *Loader {
	return &Loader{
		Preprocessors: preprocess.Chain(preprocessors),
		Verbose:       500,
	}
}

// Load reads every path, labeling it with its parent directory name.
//
// Files that can't be opened or decoded are skipped with a warning and recorded in
// Dataset.Skipped. It returns ErrEmptyDataset if nothing could be loaded.
func (l *Loader) Load(paths []string) (*Dataset, error) {
	if err := l.Preprocessors.Validate(); err != nil {
		return nil, err
	}
	var pBar *progressbar.ProgressBar
	if l.ShowProgressBar {
		pBar = progressbar.NewOptions(len(paths),
			progressbar.OptionSetDescription("Loading"),
			progressbar.OptionUseANSICodes(true),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("images"),
			progressbar.OptionSetTheme(progressbar.ThemeUnicode),
		)
	}

	ds := &Dataset{}
	var size image.Point
	for ii, path := range paths {
		img, err := ReadImage(path)
		if err != nil {
			klog.Warningf("skipping %q: %v", path, err)
			ds.Skipped = append(ds.Skipped, path)
		} else {
			img = l.Preprocessors.Apply(img)
			if ds.Len() == 0 {
				size = img.Bounds().Size()
			} else if !img.Bounds().Size().Eq(size) {
				return nil, errors.Errorf("image %q preprocessed to size %s, but previous images have size %s: "+
					"the preprocessors must include a Resize", path, img.Bounds().Size(), size)
			}
			ds.Append(img, LabelFromPath(path), path)
		}
		if pBar != nil {
			_ = pBar.Add(1)
		}
		if l.Verbose > 0 && ii > 0 && (ii+1)%l.Verbose == 0 {
			klog.Infof("processed %d/%d", ii+1, len(paths))
		}
	}
	if pBar != nil {
		_ = pBar.Finish()
	}
	if len(ds.Skipped) > 0 {
		klog.Warningf("skipped %d of %d files that could not be read as images", len(ds.Skipped), len(paths))
	}
	if ds.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	return ds, nil
}

// LoadDir lists the images under root and loads them.
func (l *Loader) LoadDir(root string) (*Dataset, error) {
	paths, err := ListImages(root)
	if err != nil {
		return nil, err
	}
	ds, err := l.Load(paths)
	if err != nil {
		return nil, errors.WithMessagef(err, "loading images from %q", root)
	}
	return ds, nil
}

// ReadImage opens and decodes one image file. The file is closed before returning.
func ReadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open image")
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode image")
	}
	return img, nil
}
