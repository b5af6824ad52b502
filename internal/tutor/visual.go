package tutor

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"studynerd/internal/logging"
)

// VisualKind distinguishes feed item kinds.
type VisualKind string

const (
	VisualDiagram VisualKind = "diagram"
	VisualImage   VisualKind = "image"
)

// VisualItem is one renderable unit in the visualization feed: mermaid
// diagram source, or an image reference (URL or data URI). Items are never
// mutated after creation.
type VisualItem struct {
	ID      string
	Kind    VisualKind
	Content string
	Time    time.Time
}

// ImageTier selects the resolution tier for generated images.
type ImageTier string

const (
	Tier1K ImageTier = "1K"
	Tier2K ImageTier = "2K"
	Tier4K ImageTier = "4K"
)

// ImageGenerator is the external image-generation collaborator.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string, tier ImageTier) (string, error)
}

// AuthDenied is implemented by transport errors that carry an
// authorization-denied signal (HTTP 403 / permission denied).
type AuthDenied interface {
	AuthDenied() bool
}

// KeySelector is the out-of-band authorization-recovery collaborator: it can
// tell whether a usable API key exists and run the key-selection flow.
type KeySelector interface {
	HasKey() bool
	PromptForKey(ctx context.Context) error
}

// =============================================================================
// VISUALIZATION FEED
// =============================================================================

// Feed is the append-only ordered store of visualization items. It has a
// single writer (the Builder); subscribers observe appends.
type Feed struct {
	mu    sync.RWMutex
	items []VisualItem
	subs  []func(VisualItem)
}

// NewFeed returns an empty feed.
func NewFeed() *Feed {
	return &Feed{}
}

func (f *Feed) append(item VisualItem) {
	f.mu.Lock()
	f.items = append(f.items, item)
	subs := make([]func(VisualItem), len(f.subs))
	copy(subs, f.subs)
	f.mu.Unlock()

	for _, fn := range subs {
		fn(item)
	}
}

// Items returns a copy of the feed in append order.
func (f *Feed) Items() []VisualItem {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]VisualItem, len(f.items))
	copy(out, f.items)
	return out
}

// Len returns the number of items appended so far.
func (f *Feed) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.items)
}

// Load seeds the feed with previously stored items, preserving their
// identity and order. Subscribers registered before the call are notified.
func (f *Feed) Load(items []VisualItem) {
	for _, item := range items {
		f.append(item)
	}
}

// Subscribe registers fn to be called for every appended item.
func (f *Feed) Subscribe(fn func(VisualItem)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, fn)
}

// Reset clears the feed. Appended subscribers are not replayed.
func (f *Feed) Reset() {
	f.mu.Lock()
	f.items = nil
	f.mu.Unlock()
}

// =============================================================================
// VISUALIZATION ITEM BUILDER
// =============================================================================

// Builder converts extraction candidates (and inline image payloads delivered
// directly with a response) into feed items. Image-request candidates are
// resolved one at a time, in extraction order; a failed generation drops the
// candidate without surfacing an error.
type Builder struct {
	images ImageGenerator
	keys   KeySelector
	feed   *Feed
	state  *State
	tier   ImageTier
}

// NewBuilder wires a builder to its collaborators. keys may be nil when no
// recovery flow is available.
func NewBuilder(images ImageGenerator, keys KeySelector, feed *Feed, state *State) *Builder {
	return &Builder{images: images, keys: keys, feed: feed, state: state, tier: Tier1K}
}

// SetTier selects the resolution tier for generated images. Call before the
// first turn; the builder does not guard tier against concurrent use.
func (b *Builder) SetTier(tier ImageTier) {
	if tier != "" {
		b.tier = tier
	}
}

// BuildFromResponse runs the full post-processing pipeline for one backend
// response: extract candidates, append diagram items, append the inline image
// payload if present, then resolve image-request candidates sequentially.
func (b *Builder) BuildFromResponse(ctx context.Context, text, inlineImage string) {
	candidates := ExtractCandidates(text)

	for _, c := range candidates {
		if c.Kind == CandidateDiagram {
			b.appendItem(VisualDiagram, c.Payload)
		}
	}

	if inlineImage != "" {
		b.appendItem(VisualImage, inlineImage)
	}

	for _, c := range candidates {
		if c.Kind == CandidateImagePrompt {
			b.buildImage(ctx, c.Payload)
		}
	}
}

// buildImage resolves one conceptual-image candidate through the image
// backend. The generating flag is held for the duration of the call and
// released on every exit path. Failures are swallowed; an authorization
// failure additionally triggers the key-selection flow as best-effort
// recovery.
func (b *Builder) buildImage(ctx context.Context, prompt string) {
	b.state.setGenerating(true)
	defer b.state.setGenerating(false)

	ref, err := b.images.GenerateImage(ctx, prompt, b.tier)
	if err != nil {
		logging.VisualError("image generation failed for prompt %q: %v", prompt, err)
		var denied AuthDenied
		if errors.As(err, &denied) && denied.AuthDenied() && b.keys != nil {
			logging.VisualWarn("authorization denied; starting key-selection flow")
			if kerr := b.keys.PromptForKey(ctx); kerr != nil {
				logging.VisualWarn("key-selection flow failed: %v", kerr)
			}
		}
		return
	}
	if ref == "" {
		logging.VisualWarn("image backend returned empty result for prompt %q", prompt)
		return
	}

	b.appendItem(VisualImage, ref)
}

func (b *Builder) appendItem(kind VisualKind, content string) {
	if content == "" {
		return
	}
	item := VisualItem{
		ID:      uuid.NewString(),
		Kind:    kind,
		Content: content,
		Time:    time.Now(),
	}
	b.feed.append(item)
	logging.Visual("appended %s item %s (%d bytes)", kind, item.ID, len(content))
}
