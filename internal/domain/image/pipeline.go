package image

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"path"
	"strings"

	"plant-doctor-bot/internal/platform/config"
	"plant-doctor-bot/internal/platform/errors"
	"plant-doctor-bot/internal/platform/logging"
	"plant-doctor-bot/internal/platform/observability"
)

const defaultMaxFileSize = 20 * 1024 * 1024

// Pipeline streams downloaded photos through a size limit, base64 encoding and validation.
type Pipeline struct {
	validator *SecurityValidator
	logger    *logging.Logger
	security  *config.SecurityConfig
}

// Options configures the pipeline behaviour.
type Options struct {
	Security *config.SecurityConfig
	Logger   *logging.Logger
}

// Input describes a streaming image payload.
type Input struct {
	Reader         io.Reader
	DeclaredFormat string
	Source         string
}

// Output is the validated image handed to the vision analyzer.
type Output struct {
	Base64     string
	Bytes      []byte
	Format     string
	Validation ValidationResult
}

// ValidationResult captures the outcome of security validation.
type ValidationResult struct {
	IsValid      bool
	Format       string
	Width        int
	Height       int
	FileSize     int64
	Error        error
	SecurityRisk string
}

var mimeTypes = map[string]string{
	"jpeg": "image/jpeg",
	"jpg":  "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"webp": "image/webp",
}

// MIMEType maps the detected format to a media type, falling back to image/jpeg.
func (o *Output) MIMEType() string {
	if o == nil {
		return "image/jpeg"
	}
	if mt, ok := mimeTypes[strings.ToLower(o.Format)]; ok {
		return mt
	}
	return "image/jpeg"
}

// DataURL renders the image as a base64 data URL.
func (o *Output) DataURL() string {
	if o == nil {
		return ""
	}
	return "data:" + o.MIMEType() + ";base64," + o.Base64
}

// FormatFromPath guesses the declared format from a file path extension.
func FormatFromPath(p string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext == "jpg" {
		return "jpeg"
	}
	return ext
}

// NewPipeline constructs a streaming image pipeline.
func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Security == nil {
		return nil, errors.New(errors.KindConfig, "image.new_pipeline", "security config is required")
	}

	return &Pipeline{
		validator: NewSecurityValidator(opts.Security, opts.Logger),
		logger:    opts.Logger,
		security:  opts.Security,
	}, nil
}

// Process streams the input through base64 encoding and validation.
func (p *Pipeline) Process(ctx context.Context, input Input) (out *Output, err error) {
	if input.Reader == nil {
		return nil, errors.New(errors.KindMedia, "image.process", "image reader is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	_, endSpan := observability.StartSpan(ctx, "image", "process")
	defer func() {
		endSpan(err)
		outcome := "ok"
		if err != nil {
			outcome = "rejected"
		}
		observability.RecordMetric(ctx, "image_processed_total", 1, map[string]string{"outcome": outcome})
	}()

	maxSize := p.security.MaxFileSize
	if maxSize <= 0 {
		maxSize = defaultMaxFileSize
	}

	limited := &io.LimitedReader{
		R: input.Reader,
		N: maxSize + 1,
	}

	rawBuf := bytes.NewBuffer(make([]byte, 0, 32*1024))
	base64Buf := bytes.NewBuffer(make([]byte, 0, 64*1024))

	encoder := base64.NewEncoder(base64.StdEncoding, base64Buf)
	writer := io.MultiWriter(rawBuf, encoder)

	if _, err := io.Copy(writer, limited); err != nil {
		return nil, errors.Wrap(errors.KindMedia, "image.process", "stream image bytes", err)
	}
	if err := encoder.Close(); err != nil {
		return nil, errors.Wrap(errors.KindMedia, "image.process", "finalise base64 encoding", err)
	}

	if limited.N <= 0 {
		return nil, errors.New(errors.KindMedia, "image.process",
			fmt.Sprintf("image exceeds maximum size of %d bytes", maxSize))
	}

	validation := p.validator.ValidateBytes(rawBuf.Bytes(), input.DeclaredFormat)
	if !validation.IsValid {
		p.logger.WarnTag("MEDIA", "rejected image from %s: %v (%s)", input.Source, validation.Error, validation.SecurityRisk)
		if validation.Error != nil {
			return nil, errors.Wrap(errors.KindMedia, "image.validate", "image validation failed", validation.Error)
		}
		return nil, errors.New(errors.KindMedia, "image.validate", "image validation failed")
	}

	return &Output{
		Base64:     base64Buf.String(),
		Bytes:      rawBuf.Bytes(),
		Format:     validation.Format,
		Validation: validation,
	}, nil
}
