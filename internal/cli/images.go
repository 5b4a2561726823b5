// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/base64"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/engchina/vscode-oci-ai-unofficial-sub001/internal/model"
)

// MaxImageSize is the largest image file accepted as an attachment.
// SECURITY: Bounds memory use and request size.
const MaxImageSize = 5 * 1024 * 1024 // 5MB

// loadImage reads an image file into an inline data URL attachment.
func loadImage(path string) (model.Image, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return model.Image{}, fmt.Errorf("image not found: %s", path)
		}
		return model.Image{}, fmt.Errorf("cannot access image: %w", err)
	}
	if info.IsDir() {
		return model.Image{}, fmt.Errorf("image path is a directory: %s", path)
	}
	if info.Size() > MaxImageSize {
		return model.Image{}, fmt.Errorf("image too large: %s is %d bytes (max %d bytes)", path, info.Size(), MaxImageSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Image{}, fmt.Errorf("failed to read image: %w", err)
	}

	mimeType := http.DetectContentType(data)
	if !strings.HasPrefix(mimeType, "image/") {
		mimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	if !strings.HasPrefix(mimeType, "image/") {
		return model.Image{}, fmt.Errorf("not an image: %s", path)
	}

	return model.Image{
		DataURL:  "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data),
		MimeType: mimeType,
		Name:     filepath.Base(path),
	}, nil
}

// loadImages loads every path, failing on the first bad file.
func loadImages(paths []string) ([]model.Image, error) {
	images := make([]model.Image, 0, len(paths))
	for _, p := range paths {
		img, err := loadImage(p)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}
