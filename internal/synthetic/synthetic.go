// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package synthetic writes small generated image datasets to disk, laid out like the animals
// dataset (one directory per class). Used by tests.
package synthetic

import (
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// Classes of the generated dataset, sorted.
var Classes = []string{"cat", "dog", "panda"}

// Image generates an image for the given class with a recognizable pattern: cats are reddish,
// dogs greenish with a vertical gradient, and pandas black and white stripes. rng adds noise and
// varies the size.
func Image(class string, rng *rand.Rand) image.Image {
	width, height := 24+rng.Intn(40), 24+rng.Intn(40)
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	noise := func() int { return rng.Intn(40) - 20 }
	clamp := func(v int) uint8 { return uint8(max(0, min(255, v))) }
	for y := range height {
		for x := range width {
			var r, g, b int
			switch class {
			case "cat":
				r, g, b = 200, 80, 60
			case "dog":
				r, g, b = 60, 120+100*y/height, 70
			case "panda":
				if (x/4)%2 == 0 {
					r, g, b = 240, 240, 240
				} else {
					r, g, b = 15, 15, 15
				}
			default:
				r, g, b = 128, 128, 128
			}
			img.Set(x, y, color.RGBA{R: clamp(r + noise()), G: clamp(g + noise()), B: clamp(b + noise()), A: 255})
		}
	}
	return img
}

// WriteDataset writes perClass images of each of Classes under root/<class>/, alternating PNG and
// JPEG files. It returns the paths written, in the order written.
func WriteDataset(root string, perClass int, seed int64) ([]string, error) {
	rng := rand.New(rand.NewSource(seed))
	var paths []string
	for _, class := range Classes {
		dir := filepath.Join(root, class)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, errors.Wrapf(err, "failed to create %q", dir)
		}
		for ii := range perClass {
			img := Image(class, rng)
			var path string
			if ii%2 == 0 {
				path = filepath.Join(dir, fmt.Sprintf("%s_%05d.png", class, ii))
			} else {
				path = filepath.Join(dir, fmt.Sprintf("%s_%05d.jpg", class, ii))
			}
			if err := writeImage(path, img); err != nil {
				return nil, err
			}
			paths = append(paths, path)
		}
	}
	return paths, nil
}

// WriteCorrupt writes a file with an image extension but garbage content.
func WriteCorrupt(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", path)
	}
	return errors.Wrapf(os.WriteFile(path, []byte("definitely not an image"), 0644),
		"failed to write %q", path)
}

func writeImage(path string, img image.Image) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", path)
	}
	defer func() {
		if closeErr := f.Close(); err == nil && closeErr != nil {
			err = errors.Wrapf(closeErr, "failed to close %q", path)
		}
	}()
	if filepath.Ext(path) == ".png" {
		err = png.Encode(f, img)
	} else {
		err = jpeg.Encode(f, img, &jpeg.Options{Quality: 95})
	}
	return errors.Wrapf(err, "failed to encode %q", path)
}
