// Package attachments classifies and relocates attached files by size.
// Three regimes: inline pass-through, external re-hosting with expiry, and
// rejection with a reason the original sender can act on.
package attachments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lerndmina/Heimdall-sub004/internal/config"
	"github.com/lerndmina/Heimdall-sub004/internal/domain"
)

// Tier identifies where an attachment ended up.
type Tier string

const (
	TierInline   Tier = "inline"
	TierExternal Tier = "external"
	TierRejected Tier = "rejected"
)

// ExternalFile is an attachment re-hosted on the external store.
type ExternalFile struct {
	Descriptor domain.AttachmentDescriptor
	URL        string
	ExpiresAt  time.Time
}

// RejectedFile is an attachment that could not be delivered.
type RejectedFile struct {
	Descriptor domain.AttachmentDescriptor
	Reason     string
}

// Result aggregates the per-attachment outcomes of one relay call.
type Result struct {
	Inline   []domain.AttachmentDescriptor
	External []ExternalFile
	Rejected []RejectedFile
}

// HasLargeFiles reports whether any attachment was re-hosted externally.
func (r *Result) HasLargeFiles() bool {
	return len(r.External) > 0
}

// AllSuccessful is the relay's atomicity gate: true only when zero
// attachments were rejected.
func (r *Result) AllSuccessful() bool {
	return len(r.Rejected) == 0
}

// Pipeline tiers attachments for the relay service.
type Pipeline struct {
	cfg    config.AttachmentConfig
	store  BlobStore
	client *http.Client
	logger *zap.Logger
}

// NewPipeline builds the pipeline. A nil store disables the external tier.
func NewPipeline(cfg config.AttachmentConfig, store BlobStore, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		cfg:    cfg,
		store:  store,
		client: &http.Client{Timeout: 2 * time.Minute},
		logger: logger,
	}
}

type tierOutcome struct {
	tier     Tier
	external *ExternalFile
	reason   string
}

// Process classifies every attachment independently. Per-attachment network
// calls run concurrently, but Process returns only after all complete; the
// caller's atomicity check depends on the aggregate. Failures against a
// configured store are not retried here; the sender may resend the message.
func (p *Pipeline) Process(ctx context.Context, atts []domain.AttachmentDescriptor) *Result {
	outcomes := make([]tierOutcome, len(atts))

	var wg sync.WaitGroup
	for i, att := range atts {
		wg.Add(1)
		go func(i int, att domain.AttachmentDescriptor) {
			defer wg.Done()
			outcomes[i] = p.tierOne(ctx, att)
		}(i, att)
	}
	wg.Wait()

	result := &Result{}
	for i, att := range atts {
		switch outcomes[i].tier {
		case TierInline:
			result.Inline = append(result.Inline, att)
		case TierExternal:
			result.External = append(result.External, *outcomes[i].external)
		case TierRejected:
			result.Rejected = append(result.Rejected, RejectedFile{Descriptor: att, Reason: outcomes[i].reason})
		}
	}
	return result
}

func (p *Pipeline) tierOne(ctx context.Context, att domain.AttachmentDescriptor) tierOutcome {
	switch {
	case att.Size <= p.cfg.InlineLimitBytes:
		return tierOutcome{tier: TierInline}
	case att.Size > p.cfg.ExternalLimitBytes:
		return tierOutcome{
			tier: TierRejected,
			reason: fmt.Sprintf("%s is %s, over the %s maximum",
				att.Filename, humanSize(att.Size), humanSize(p.cfg.ExternalLimitBytes)),
		}
	case p.store == nil:
		return tierOutcome{
			tier: TierRejected,
			reason: fmt.Sprintf("%s is over %s and no external file host is configured",
				att.Filename, humanSize(p.cfg.InlineLimitBytes)),
		}
	}

	data, err := p.download(ctx, att.URL)
	if err != nil {
		p.logger.Warn("attachment download failed",
			zap.String("filename", att.Filename), zap.Error(err))
		return tierOutcome{
			tier:   TierRejected,
			reason: fmt.Sprintf("%s could not be downloaded; try sending it again", att.Filename),
		}
	}

	blob, err := p.store.Upload(ctx, data, att.Filename, p.cfg.ExternalExpiry)
	if err != nil {
		p.logger.Warn("attachment upload failed",
			zap.String("filename", att.Filename), zap.Error(err))
		return tierOutcome{
			tier:   TierRejected,
			reason: fmt.Sprintf("%s could not be re-hosted; try sending it again", att.Filename),
		}
	}

	return tierOutcome{
		tier: TierExternal,
		external: &ExternalFile{
			Descriptor: att,
			URL:        blob.URL,
			ExpiresAt:  blob.ExpiresAt,
		},
	}
}

func (p *Pipeline) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download returned %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, p.cfg.ExternalLimitBytes+1))
}

func humanSize(bytes int64) string {
	const mb = 1024 * 1024
	if bytes >= mb {
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	}
	return fmt.Sprintf("%.1f KB", float64(bytes)/1024)
}
