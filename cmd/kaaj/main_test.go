package main

import (
	"bytes"
	"testing"

	"kaaj/internal/config"
	"kaaj/internal/logging"

	"github.com/stretchr/testify/assert"
)

func TestImageHostOptions(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.New(&buf, logging.Options{Level: "info", Format: "logfmt"})

	opts := imageHostOptions(config.ImageHostConfig{}, logger)
	assert.Empty(t, opts)
	assert.Contains(t, buf.String(), "level=warn")
	assert.Contains(t, buf.String(), "photo uploads disabled")

	buf.Reset()
	opts = imageHostOptions(config.ImageHostConfig{BaseURL: "https://api.example", CloudName: "demo", UploadPreset: "kaaj_unsigned"}, logger)
	assert.Len(t, opts, 1)
	assert.Empty(t, buf.String())
}
