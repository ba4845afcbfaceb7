package dispatcher

import (
	"context"
	"time"

	"github.com/go-telegram/bot/models"

	"plant-doctor-bot/internal/domain/analyzer"
	"plant-doctor-bot/internal/domain/eventbus"
	"plant-doctor-bot/internal/domain/formatter"
	"plant-doctor-bot/internal/domain/image"
	"plant-doctor-bot/internal/platform/errors"
)

// largestPhoto picks the variant with the most pixels; ties go to the later entry,
// since Telegram lists sizes in ascending order.
func largestPhoto(photos []models.PhotoSize) models.PhotoSize {
	best := photos[0]
	for _, p := range photos[1:] {
		if p.Width*p.Height >= best.Width*best.Height {
			best = p
		}
	}
	return best
}

func (d *Dispatcher) handlePhoto(ctx context.Context, req request, msg *models.Message) error {
	start := time.Now()
	d.publish(eventbus.EventAnalysisStarted, req, eventbus.Event{Backend: d.analyzer.Name()})

	chunks, err := d.analyzePhoto(ctx, req, msg)
	if err != nil {
		d.publish(eventbus.EventAnalysisFailed, req, eventbus.Event{
			Backend:  d.analyzer.Name(),
			Duration: time.Since(start),
			Error:    err.Error(),
		})
		return err
	}

	d.publish(eventbus.EventAnalysisCompleted, req, eventbus.Event{
		Backend:  d.analyzer.Name(),
		Chunks:   chunks,
		Duration: time.Since(start),
	})
	return nil
}

func (d *Dispatcher) analyzePhoto(ctx context.Context, req request, msg *models.Message) (int, error) {
	noticeID, err := d.messenger.SendMessage(ctx, req.chatID, AnalyzingNotice, false)
	if err != nil {
		return 0, err
	}

	photo := largestPhoto(msg.Photo)
	d.logger.InfoTag("DISPATCH", "analyzing photo %dx%d from chat %d (request %s)", photo.Width, photo.Height, req.chatID, req.id)

	body, path, err := d.fetcher.FetchFile(ctx, photo.FileID)
	if err != nil {
		return 0, errors.Wrap(errors.KindMedia, "dispatcher.fetch", "fetch photo failed", err)
	}
	defer body.Close()

	img, err := d.images.Process(ctx, image.Input{
		Reader:         body,
		DeclaredFormat: image.FormatFromPath(path),
		Source:         photo.FileID,
	})
	if err != nil {
		return 0, errors.Wrap(errors.KindMedia, "dispatcher.process_image", "image rejected", err)
	}

	analysis, err := d.analyze(ctx, img)
	if err != nil {
		return 0, errors.Wrap(errors.KindAnalyzer, "dispatcher.analyze", "analysis failed", err)
	}

	if err := d.messenger.DeleteMessage(ctx, req.chatID, noticeID); err != nil {
		d.logger.WarnTag("DISPATCH", "could not delete analyzing notice %d in chat %d: %v", noticeID, req.chatID, err)
	}

	chunks := formatter.Format(analysis)
	if err := d.deliver(ctx, req.chatID, chunks); err != nil {
		return 0, err
	}
	return len(chunks), nil
}

func (d *Dispatcher) analyze(ctx context.Context, img *image.Output) (string, error) {
	actx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.analyzer.Analyze(actx, analyzer.DiagnosisPrompt, img)
}

// deliver sends each chunk with Markdown and falls back to plain text once per chunk.
func (d *Dispatcher) deliver(ctx context.Context, chatID int64, chunks []string) error {
	for i, chunk := range chunks {
		_, err := d.messenger.SendMessage(ctx, chatID, chunk, true)
		if err == nil {
			continue
		}
		d.logger.WarnTag("DISPATCH", "markdown send of chunk %d/%d to chat %d failed, retrying as plain text: %v",
			i+1, len(chunks), chatID, err)

		if _, err := d.messenger.SendMessage(ctx, chatID, chunk, false); err != nil {
			return errors.Wrap(errors.KindMessenger, "dispatcher.deliver",
				"plain-text fallback failed", err)
		}
	}
	return nil
}
