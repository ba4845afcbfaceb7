package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"plant-doctor-bot/internal/platform/config"
	"plant-doctor-bot/internal/platform/logging"
)

// SecurityValidator performs layered checks against downloaded photo bytes.
type SecurityValidator struct {
	config *config.SecurityConfig
	logger *logging.Logger
}

func NewSecurityValidator(cfg *config.SecurityConfig, logger *logging.Logger) *SecurityValidator {
	return &SecurityValidator{
		config: cfg,
		logger: logger,
	}
}

var imageSignatures = map[string][]byte{
	"jpeg": {0xFF, 0xD8},
	"jpg":  {0xFF, 0xD8},
	"png":  {0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A},
	"gif":  {0x47, 0x49, 0x46, 0x38},
	"webp": {0x52, 0x49, 0x46, 0x46},
}

var (
	executableSignatures = [][]byte{
		{0x4D, 0x5A},             // PE
		{0x7F, 0x45, 0x4C, 0x46}, // ELF
		{0x25, 0x50, 0x44, 0x46}, // PDF
	}
	archiveSignatures = [][]byte{
		{0x50, 0x4B, 0x03, 0x04}, // zip
		{0x1F, 0x8B, 0x08},       // gzip
	}
	svgScriptTokens = []string{
		"<script",
		"javascript:",
		"vbscript:",
		"onload=",
		"onerror=",
		"eval(",
		"document.cookie",
		"window.location",
		"<iframe",
		"<object",
		"<embed",
	}
)

// ValidateBytes runs size, format, decode, dimension and content checks.
func (v *SecurityValidator) ValidateBytes(data []byte, declaredFormat string) ValidationResult {
	result := ValidationResult{IsValid: false}

	if len(data) == 0 {
		result.Error = fmt.Errorf("empty image payload")
		return result
	}

	if v.config.MaxFileSize > 0 && int64(len(data)) > v.config.MaxFileSize {
		result.Error = fmt.Errorf("file size exceeds limit: %d bytes (max %d bytes)", len(data), v.config.MaxFileSize)
		result.SecurityRisk = "file too large"
		return result
	}

	if declaredFormat != "" && !v.isFormatAllowed(declaredFormat) {
		result.Error = fmt.Errorf("unsupported format: %s", declaredFormat)
		result.SecurityRisk = "unapproved format"
		return result
	}

	if v.config.EnableDeepScan {
		if risk := v.scanForMaliciousContent(data); risk != "" {
			result.Error = fmt.Errorf("potential malicious content detected")
			result.SecurityRisk = risk
			return result
		}
	}

	decoded := v.validateImageDecoding(data, declaredFormat)
	if !decoded.IsValid {
		if declaredFormat != "" && !v.validateFileSignature(data, declaredFormat) {
			v.logger.WarnTag("MEDIA", "file signature mismatch: declared_format=%s actual_header=%x",
				declaredFormat, data[:min(len(data), 16)])
		}
		return decoded
	}

	if !v.isFormatAllowed(decoded.Format) {
		decoded.IsValid = false
		decoded.Error = fmt.Errorf("unsupported format: %s", decoded.Format)
		decoded.SecurityRisk = "unapproved format"
		return decoded
	}

	return decoded
}

func (v *SecurityValidator) isFormatAllowed(format string) bool {
	if len(v.config.AllowedFormats) == 0 || format == "" {
		return true
	}

	format = strings.ToLower(format)
	for _, allowed := range v.config.AllowedFormats {
		if strings.ToLower(allowed) == format {
			return true
		}
	}
	return false
}

func (v *SecurityValidator) validateFileSignature(data []byte, format string) bool {
	signature, ok := imageSignatures[strings.ToLower(format)]
	if !ok {
		return true
	}
	return bytes.HasPrefix(data, signature)
}

// scanForMaliciousContent returns a non-empty risk label when data looks like
// an executable, an archive or a scripted SVG.
func (v *SecurityValidator) scanForMaliciousContent(data []byte) string {
	for _, signature := range executableSignatures {
		if bytes.HasPrefix(data, signature) {
			v.logger.WarnTag("MEDIA", "detected executable signature: %x", signature)
			return "executable payload"
		}
	}

	for _, signature := range archiveSignatures {
		if bytes.HasPrefix(data, signature) {
			v.logger.WarnTag("MEDIA", "detected compressed archive: %x", signature)
			return "archive payload"
		}
	}

	lower := strings.ToLower(string(data))
	if strings.Contains(lower, "<svg") {
		for _, token := range svgScriptTokens {
			if strings.Contains(lower, token) {
				v.logger.WarnTag("MEDIA", "detected suspicious SVG content: token=%s", token)
				return "scripted svg"
			}
		}
	}

	return ""
}

func (v *SecurityValidator) validateImageDecoding(data []byte, format string) ValidationResult {
	result := ValidationResult{Format: format}

	cfg, actualFormat, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		result.Error = fmt.Errorf("decode image config: %w", err)
		result.SecurityRisk = "corrupted image data"
		return result
	}
	if actualFormat != "" {
		result.Format = actualFormat
	}

	if (v.config.MaxWidth > 0 && cfg.Width > v.config.MaxWidth) ||
		(v.config.MaxHeight > 0 && cfg.Height > v.config.MaxHeight) {
		result.Error = fmt.Errorf("dimensions exceed limit: %dx%d (max %dx%d)",
			cfg.Width, cfg.Height, v.config.MaxWidth, v.config.MaxHeight)
		result.SecurityRisk = "dimensions too large"
		return result
	}

	totalPixels := int64(cfg.Width) * int64(cfg.Height)
	if v.config.MaxPixels > 0 && totalPixels > v.config.MaxPixels {
		result.Error = fmt.Errorf("pixel count exceeds limit: %d (max %d)", totalPixels, v.config.MaxPixels)
		result.SecurityRisk = "pixel count too high"
		return result
	}

	result.IsValid = true
	result.Width = cfg.Width
	result.Height = cfg.Height
	result.FileSize = int64(len(data))

	v.logger.DebugTag("MEDIA", "image validated: format=%s width=%d height=%d size=%d",
		result.Format, result.Width, result.Height, result.FileSize)

	return result
}
