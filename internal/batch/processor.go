package batch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/crowdcanvas/crowdcanvas/internal/database"
	"github.com/crowdcanvas/crowdcanvas/internal/gemini"
)

// ImageURLPrefix is the public path under which generated images are served.
const ImageURLPrefix = "/static/generated_images/"

// interBatchPause is the breather between batches when draining the whole
// queue, keeping the provider from seeing back-to-back requests.
const interBatchPause = 500 * time.Millisecond

// BasePromptSource supplies the current base style prompt for generation.
type BasePromptSource interface {
	Current() string
}

// ProcessorOptions bundles the tunables for a Processor.
type ProcessorOptions struct {
	PromptMaxLen    int
	GenerateTimeout time.Duration
	ImagesDir       string
}

// Processor is the single sequential worker advancing batches through
// mixing and image generation. At most one run is active at a time; a
// concurrent ProcessNext call returns ok=false instead of racing.
type Processor struct {
	logger     *slog.Logger
	store      database.Store
	mixer      *Mixer
	ai         gemini.Client
	basePrompt BasePromptSource
	opts       ProcessorOptions
	stats      *ProcessorStats
}

// NewProcessor creates the sequential batch processor.
func NewProcessor(logger *slog.Logger, store database.Store, mixer *Mixer, ai gemini.Client, basePrompt BasePromptSource, opts ProcessorOptions) (*Processor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(opts.ImagesDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create images directory %s: %w", opts.ImagesDir, err)
	}
	return &Processor{
		logger:     logger.With("component", "processor"),
		store:      store,
		mixer:      mixer,
		ai:         ai,
		basePrompt: basePrompt,
		opts:       opts,
		stats:      &ProcessorStats{},
	}, nil
}

// Stats returns the processor's running statistics ledger.
func (p *Processor) Stats() *ProcessorStats {
	return p.stats
}

// ProcessNext selects the oldest pending batch and drives it to a terminal
// state. Returns the batch id and ok=true on success. ok=false with a nil
// error means either no pending batch exists, another run is active, or the
// selected batch failed; in every case the batch record itself carries the
// outcome. A non-nil error means the store could not record outcomes and is
// the only condition surfaced as a command failure.
func (p *Processor) ProcessNext(ctx context.Context) (string, bool, error) {
	if !p.stats.tryStart() {
		p.logger.WarnContext(ctx, "Processing already in progress, skipping")
		return "", false, nil
	}
	defer p.stats.endRun()

	b, err := p.store.NextPendingBatch(ctx)
	if err != nil {
		return "", false, fmt.Errorf("failed to select next batch: %w", err)
	}
	if b == nil {
		p.logger.DebugContext(ctx, "No pending batches available")
		return "", false, nil
	}

	p.stats.setCurrentBatch(b.ID)
	log := p.logger.With("batch_id", b.ShortID())
	log.InfoContext(ctx, "Starting batch processing", "message_count", b.MessageCount)

	startedAt := time.Now().UTC()
	if err := p.store.MarkBatchProcessing(ctx, b.ID, startedAt); err != nil {
		return b.ID, false, err
	}

	messages, err := p.store.BatchMessages(ctx, b.ID)
	if err != nil {
		return b.ID, false, err
	}

	mixedText, err := p.mixer.Mix(ctx, messages)
	if err != nil {
		// Mixing failures are terminal, processing -> failed directly.
		return b.ID, false, p.failBatch(ctx, log, b.ID, startedAt, err)
	}
	if err := p.store.SetBatchMixed(ctx, b.ID, mixedText); err != nil {
		return b.ID, false, err
	}
	log.InfoContext(ctx, "Mixed text created", "length", len([]rune(mixedText)))

	if err := p.store.SetBatchGenerating(ctx, b.ID); err != nil {
		return b.ID, false, err
	}

	imagePath, err := p.generateAndSaveImage(ctx, log, b, mixedText)
	if err != nil {
		return b.ID, false, p.failBatch(ctx, log, b.ID, startedAt, &GenerationError{Err: err})
	}

	completedAt := time.Now().UTC()
	processingTime := completedAt.Sub(startedAt).Seconds()
	imageURL := ImageURLPrefix + filepath.Base(imagePath)
	if err := p.store.CompleteBatch(ctx, b.ID, imagePath, imageURL, completedAt, processingTime); err != nil {
		return b.ID, false, err
	}

	p.stats.recordTerminal(true, true, processingTime)
	log.InfoContext(ctx, "Batch processed successfully", "processing_time", processingTime, "image_path", imagePath)
	return b.ID, true, nil
}

// failBatch records a terminal failure for the batch. Provider errors stop
// here: only a store failure propagates upward.
func (p *Processor) failBatch(ctx context.Context, log *slog.Logger, batchID string, startedAt time.Time, cause error) error {
	completedAt := time.Now().UTC()
	processingTime := completedAt.Sub(startedAt).Seconds()

	log.ErrorContext(ctx, "Batch processing failed", "error", cause, "processing_time", processingTime)

	if err := p.store.FailBatch(ctx, batchID, cause.Error(), completedAt, processingTime); err != nil {
		return fmt.Errorf("failed to record batch failure: %w", err)
	}

	p.stats.recordTerminal(false, false, processingTime)
	return nil
}

// generateAndSaveImage composes the full prompt, invokes the image provider
// within its timeout, and writes the result under the images directory.
func (p *Processor) generateAndSaveImage(ctx context.Context, log *slog.Logger, b *database.Batch, mixedText string) (string, error) {
	fullPrompt := p.composePrompt(mixedText)
	log.InfoContext(ctx, "Generating image", "prompt_len", len(fullPrompt))

	callCtx, cancel := context.WithTimeout(ctx, p.opts.GenerateTimeout)
	defer cancel()

	data, mimeType, err := p.ai.GenerateImage(callCtx, fullPrompt)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("batch_%s_%d%s", b.ShortID(), time.Now().Unix(), imageExtension(mimeType))
	path := filepath.Join(p.opts.ImagesDir, filename)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save image to %s: %w", path, err)
	}

	log.InfoContext(ctx, "Image saved", "path", path, "bytes", len(data))
	return path, nil
}

// composePrompt joins the mixed text with the current base style prompt,
// keeping the whole thing under the configured cap. The style part gives
// way first; the mixed text is never cut.
func (p *Processor) composePrompt(mixedText string) string {
	style := strings.TrimSpace(p.basePrompt.Current())

	full := fmt.Sprintf("Create an artistic image: %s. %s", mixedText, style)
	if len([]rune(full)) <= p.opts.PromptMaxLen {
		return full
	}

	base := fmt.Sprintf("Create an artistic image: %s. ", mixedText)
	available := p.opts.PromptMaxLen - len([]rune(base))
	if available > 3 {
		return base + truncateRunes(style, available)
	}
	return strings.TrimSuffix(base, ". ")
}

func imageExtension(mimeType string) string {
	switch mimeType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// ProcessAll drains every pending batch sequentially with a short pause
// between batches. Returns how many batches succeeded and failed.
func (p *Processor) ProcessAll(ctx context.Context) (processed, failed int, err error) {
	for {
		batchID, ok, runErr := p.ProcessNext(ctx)
		if runErr != nil {
			return processed, failed, runErr
		}
		if ok {
			processed++
		} else {
			if batchID == "" {
				// Nothing selected: queue is drained (or another run is active).
				return processed, failed, nil
			}
			failed++
		}

		select {
		case <-time.After(interBatchPause):
		case <-ctx.Done():
			return processed, failed, ctx.Err()
		}
	}
}
