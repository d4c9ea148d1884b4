package encoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// MediaSpecs summarizes a produced artifact for its Output row.
type MediaSpecs struct {
	Container       string  `json:"container,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	BitRate         int64   `json:"bit_rate,omitempty"`
	VideoCodec      string  `json:"video_codec,omitempty"`
	Width           int     `json:"width,omitempty"`
	Height          int     `json:"height,omitempty"`
	AudioStreams    int     `json:"audio_streams"`
}

type probeResult struct {
	Streams []struct {
		CodecName string `json:"codec_name"`
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration   string `json:"duration"`
		BitRate    string `json:"bit_rate"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// probeMedia runs an ffprobe-compatible binary against path.
func probeMedia(ctx context.Context, binary, path string) (MediaSpecs, error) {
	if strings.TrimSpace(path) == "" {
		return MediaSpecs{}, errors.New("probe: empty path")
	}
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		return MediaSpecs{}, fmt.Errorf("probe %s: %w", path, err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (MediaSpecs, error) {
	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return MediaSpecs{}, fmt.Errorf("probe parse: %w", err)
	}
	specs := MediaSpecs{
		Container:       result.Format.FormatName,
		DurationSeconds: parseNumber(result.Format.Duration),
		BitRate:         int64(parseNumber(result.Format.BitRate)),
	}
	for _, stream := range result.Streams {
		switch strings.ToLower(stream.CodecType) {
		case "video":
			if specs.VideoCodec == "" {
				specs.VideoCodec = stream.CodecName
				specs.Width = stream.Width
				specs.Height = stream.Height
			}
		case "audio":
			specs.AudioStreams++
		}
	}
	return specs, nil
}

func parseNumber(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || parsed < 0 {
		return 0
	}
	return parsed
}
